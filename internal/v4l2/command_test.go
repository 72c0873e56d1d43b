package v4l2

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"camkit/internal/camera"
	"camkit/internal/camera/fake"
)

const listCtrls = `
                     brightness 0x00980900 (int)    : min=-64 max=64 step=1 default=0 value=0
     focus_automatic_continuous 0x009a090c (bool)   : default=1 value=1
`

const listFormats = `ioctl: VIDIOC_ENUM_FMT
	Type: Video Capture

	[0]: 'MJPG' (Motion-JPEG, compressed)
		Size: Discrete 1280x720
			Interval: Discrete 0.033s (30.000 fps)
		Size: Discrete 640x480
			Interval: Discrete 0.033s (30.000 fps)
	[1]: 'YUYV' (YUYV 4:2:2)
		Size: Discrete 640x480
			Interval: Discrete 0.033s (30.000 fps)
`

const deviceInfo = `Driver Info:
	Driver name      : uvcvideo
	Card type        : HD Webcam: HD Webcam
	Bus info         : usb-0000:00:14.0-1
`

// fakeCommander は v4l2-ctl と ffmpeg の出力を模倣する
type fakeCommander struct {
	mu        sync.Mutex
	calls     []string
	noFocus   bool
	streamErr error
	frames    [][]byte
}

func (f *fakeCommander) record(name string, args []string) string {
	call := name + " " + strings.Join(args, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return call
}

// callsContaining は substr を含む呼び出しを返す
func (f *fakeCommander) callsContaining(substr string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.Contains(c, substr) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeCommander) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	call := f.record(name, args)
	switch {
	case strings.Contains(call, "--list-ctrls"):
		if f.noFocus {
			return []byte("brightness 0x00980900 (int) : value=0\n"), nil
		}
		return []byte(listCtrls), nil
	case strings.Contains(call, "--list-formats-ext"):
		return []byte(listFormats), nil
	case strings.Contains(call, "--info"):
		return []byte(deviceInfo), nil
	case strings.Contains(call, "--set-ctrl"):
		return nil, nil
	case name == "ffmpeg":
		return fake.SyntheticJPEG(camera.Size{Width: 64, Height: 48}, 1), nil
	}
	return nil, fmt.Errorf("unexpected command: %s", call)
}

func (f *fakeCommander) Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, func() error, error) {
	f.record(name, args)
	f.mu.Lock()
	frames := append([][]byte(nil), f.frames...)
	streamErr := f.streamErr
	f.mu.Unlock()

	pr, pw := io.Pipe()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		if streamErr != nil {
			_ = pw.CloseWithError(streamErr)
			return
		}
		for _, frame := range frames {
			if _, err := pw.Write(frame); err != nil {
				return
			}
		}
		<-ctx.Done()
		_ = pw.Close()
	}()
	return pr, func() error {
		<-finished
		return nil
	}, nil
}
