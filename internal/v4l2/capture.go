package v4l2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"camkit/internal/camera"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}

	// errStreamEnded はキャンセルされていないのにストリームが終わった
	errStreamEnded = errors.New("フレームストリームが終了しました")
)

// Capturer は ffmpeg と v4l2-ctl でデバイスを操作する
type Capturer struct {
	cmd        Commander
	devicePath string
	size       camera.Size
	fps        int
}

// NewCapturer は新しい Capturer を作成する
func NewCapturer(cmd Commander, devicePath string, size camera.Size, fps int) *Capturer {
	return &Capturer{
		cmd:        cmd,
		devicePath: devicePath,
		size:       size,
		fps:        fps,
	}
}

// WithSize は解像度だけを変えた Capturer を返す
func (c *Capturer) WithSize(size camera.Size) *Capturer {
	cp := *c
	cp.size = size
	return &cp
}

// CaptureFrameAsJPEG は1フレームをキャプチャしてJPEGバイト配列として返す
func (c *Capturer) CaptureFrameAsJPEG(ctx context.Context) ([]byte, error) {
	out, err := c.cmd.Output(ctx,
		"ffmpeg",
		"-f", "v4l2",
		"-video_size", c.size.String(),
		"-i", c.devicePath,
		"-vframes", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"-q:v", "2", // 高品質JPEG
		"-",
	)
	if err != nil {
		return nil, fmt.Errorf("JPEGフレームキャプチャに失敗: %w", err)
	}
	if !bytes.HasPrefix(out, jpegSOI) {
		return nil, fmt.Errorf("JPEGフレームキャプチャに失敗: 出力がJPEGではありません (%d bytes)", len(out))
	}
	return out, nil
}

// Stream は MJPEG ストリームを開始し、フレームごとに onFrame を呼ぶ
// ctx がキャンセルされるまでブロックする
func (c *Capturer) Stream(ctx context.Context, onFrame func([]byte)) error {
	stdout, wait, err := c.cmd.Stream(ctx,
		"ffmpeg",
		"-f", "v4l2",
		"-video_size", c.size.String(),
		"-r", strconv.Itoa(c.fps),
		"-i", c.devicePath,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)
	if err != nil {
		return err
	}

	splitErr := splitJPEGFrames(stdout, onFrame)
	_ = stdout.Close()
	waitErr := wait()

	if ctx.Err() != nil {
		// キャンセル時の終了コードは無視する
		return nil
	}
	if splitErr != nil {
		return splitErr
	}
	if waitErr != nil {
		return fmt.Errorf("ffmpegが異常終了しました: %w", waitErr)
	}
	return errStreamEnded
}

// SetControls はカメラのコントロールを設定する
func (c *Capturer) SetControls(ctx context.Context, controls map[string]int) error {
	for control, value := range controls {
		_, err := c.cmd.Output(ctx, "v4l2-ctl", "--device", c.devicePath, "--set-ctrl", fmt.Sprintf("%s=%d", control, value))
		if err != nil {
			return fmt.Errorf("コントロール %s の設定に失敗: %w", control, err)
		}
	}
	return nil
}

// HasControl はデバイスが control をサポートしているかを返す
func (c *Capturer) HasControl(ctx context.Context, control string) bool {
	out, err := c.cmd.Output(ctx, "v4l2-ctl", "--device", c.devicePath, "--list-ctrls")
	if err != nil {
		return false
	}
	return bytes.Contains(out, []byte(control+" "))
}

// splitJPEGFrames は r から連続するJPEGを切り出して onFrame に渡す
func splitJPEGFrames(r io.Reader, onFrame func([]byte)) error {
	buf := make([]byte, 64*1024)
	var pending []byte

	for {
		n, err := r.Read(buf)
		pending = append(pending, buf[:n]...)

		for {
			start := bytes.Index(pending, jpegSOI)
			if start == -1 {
				// マーカーの途中で切れている可能性があるので末尾1バイトは残す
				if len(pending) > 1 {
					pending = pending[len(pending)-1:]
				}
				break
			}

			end := bytes.Index(pending[start+len(jpegSOI):], jpegEOI)
			if end == -1 {
				pending = pending[start:]
				break
			}
			end += start + len(jpegSOI) + len(jpegEOI)

			frame := make([]byte, end-start)
			copy(frame, pending[start:end])
			onFrame(frame)
			pending = pending[end:]
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("フレーム読み取りエラー: %w", err)
		}
	}
}
