package v4l2

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camkit/internal/camera"
)

func jpegLike(payload string) []byte {
	b := append([]byte{0xFF, 0xD8}, payload...)
	return append(b, 0xFF, 0xD9)
}

func TestSplitJPEGFrames(t *testing.T) {
	first := jpegLike("first")
	second := jpegLike("second")

	var stream bytes.Buffer
	stream.WriteString("noise")
	stream.Write(first)
	stream.WriteString("\x00\x01")
	stream.Write(second)
	// 終端のない途中のフレームは捨てられる
	stream.Write([]byte{0xFF, 0xD8, 'x'})

	var frames [][]byte
	err := splitJPEGFrames(iotest.OneByteReader(&stream), func(frame []byte) {
		frames = append(frames, frame)
	})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{first, second}, frames)
}

func TestSplitJPEGFrames_ReadError(t *testing.T) {
	boom := errors.New("boom")
	err := splitJPEGFrames(iotest.ErrReader(boom), func([]byte) {})
	assert.ErrorIs(t, err, boom)
}

func TestCapturer_Stream(t *testing.T) {
	cmd := &fakeCommander{frames: [][]byte{jpegLike("a"), jpegLike("b")}}
	c := NewCapturer(cmd, "/dev/video0", camera.Size{Width: 640, Height: 480}, 15)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan []byte, 2)
	done := make(chan error, 1)
	go func() {
		done <- c.Stream(ctx, func(frame []byte) { got <- frame })
	}()

	assert.Equal(t, jpegLike("a"), <-got)
	assert.Equal(t, jpegLike("b"), <-got)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}

	calls := cmd.callsContaining("ffmpeg")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "-video_size 640x480")
	assert.Contains(t, calls[0], "-r 15")
}

func TestCapturer_StreamFailure(t *testing.T) {
	cmd := &fakeCommander{streamErr: errors.New("device busy")}
	c := NewCapturer(cmd, "/dev/video0", camera.Size{Width: 640, Height: 480}, 30)

	err := c.Stream(context.Background(), func([]byte) {})
	assert.Error(t, err)
}

func TestCapturer_Controls(t *testing.T) {
	cmd := &fakeCommander{}
	c := NewCapturer(cmd, "/dev/video0", camera.Size{Width: 640, Height: 480}, 30)
	ctx := context.Background()

	assert.True(t, c.HasControl(ctx, focusContinuousControl))
	assert.False(t, c.HasControl(ctx, "zoom_absolute"))

	require.NoError(t, c.SetControls(ctx, map[string]int{focusContinuousControl: 0}))
	assert.Equal(t,
		[]string{"v4l2-ctl --device /dev/video0 --set-ctrl focus_automatic_continuous=0"},
		cmd.callsContaining("--set-ctrl"))
}

func TestCapturer_CaptureFrameAsJPEG(t *testing.T) {
	cmd := &fakeCommander{}
	c := NewCapturer(cmd, "/dev/video2", camera.Size{Width: 640, Height: 480}, 30)

	jpeg, err := c.WithSize(camera.Size{Width: 1280, Height: 720}).CaptureFrameAsJPEG(context.Background())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(jpeg, jpegSOI))

	calls := cmd.callsContaining("ffmpeg")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "-video_size 1280x720")
	assert.Contains(t, calls[0], "-i /dev/video2")
}
