package camera

import (
	"context"
	"sync"
)

// Completion は一度だけ解決・拒否・キャンセルできる完了ハンドル
// ハードウェアのコールバックをブロッキング待機に橋渡しするために使う
type Completion struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewCompletion は未完了の Completion を作成する
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

func (c *Completion) finish(err error) bool {
	finished := false
	c.once.Do(func() {
		c.err = err
		close(c.done)
		finished = true
	})
	return finished
}

// Resolve は成功として完了する。既に完了していれば false を返す
func (c *Completion) Resolve() bool {
	return c.finish(nil)
}

// Reject は err で完了する
func (c *Completion) Reject(err error) bool {
	if err == nil {
		err = ErrCanceled
	}
	return c.finish(err)
}

// Cancel はキャンセルとして完了する
func (c *Completion) Cancel() bool {
	return c.finish(ErrCanceled)
}

// Done は完了時にクローズされるチャンネルを返す
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Finished は完了済みかを返す
func (c *Completion) Finished() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Err は完了結果を返す。未完了なら nil
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait は完了または ctx の終了まで待つ
// ctx が先に終了した場合はハンドル自体をキャンセルする
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		c.Cancel()
		return ctx.Err()
	}
}

// completionSlot は同種の操作につき高々一つの完了ハンドルを保持する
type completionSlot struct {
	mu sync.Mutex
	c  *Completion
}

// arm は c を保持する。未完了のハンドルが既にあれば false を返す
func (s *completionSlot) arm(c *Completion) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil && !s.c.Finished() {
		return false
	}
	s.c = c
	return true
}

// replace は c を保持し、以前のハンドルを返す
func (s *completionSlot) replace(c *Completion) *Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.c
	s.c = c
	return prev
}

// take はハンドルを取り出してスロットを空にする
func (s *completionSlot) take() *Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.c
	s.c = nil
	return c
}

// clear は保持しているハンドルが c の場合のみスロットを空にする
func (s *completionSlot) clear(c *Completion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == c {
		s.c = nil
	}
}
