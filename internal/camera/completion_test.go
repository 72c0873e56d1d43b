package camera

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletion_ResolveOnce(t *testing.T) {
	c := NewCompletion()
	assert.False(t, c.Finished())
	assert.NoError(t, c.Err())

	assert.True(t, c.Resolve())
	assert.False(t, c.Reject(errors.New("late")))
	assert.False(t, c.Cancel())

	assert.True(t, c.Finished())
	assert.NoError(t, c.Err())
}

func TestCompletion_CancelWins(t *testing.T) {
	c := NewCompletion()
	assert.True(t, c.Cancel())
	assert.False(t, c.Resolve())
	assert.ErrorIs(t, c.Err(), ErrCanceled)
}

func TestCompletion_RejectNilBecomesCanceled(t *testing.T) {
	c := NewCompletion()
	c.Reject(nil)
	assert.ErrorIs(t, c.Err(), ErrCanceled)
}

func TestCompletion_WaitContextCancelsHandle(t *testing.T) {
	c := NewCompletion()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := c.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, c.Err(), ErrCanceled)
}

func TestCompletion_WaitResolvedFromOtherGoroutine(t *testing.T) {
	c := NewCompletion()
	go func() {
		time.Sleep(5 * time.Millisecond)
		c.Reject(ErrCameraClosed)
	}()
	err := c.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCameraClosed)
}

func TestCompletionSlot(t *testing.T) {
	var s completionSlot
	first := NewCompletion()
	second := NewCompletion()

	require.True(t, s.arm(first))
	assert.False(t, s.arm(second), "未完了のハンドルがある間は保持できない")

	first.Resolve()
	assert.True(t, s.arm(second), "完了済みのハンドルは置き換えられる")

	s.clear(first)
	assert.Same(t, second, s.take())
	assert.Nil(t, s.take())

	prev := s.replace(first)
	assert.Nil(t, prev)
	assert.Same(t, first, s.replace(second))
}
