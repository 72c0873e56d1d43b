// Package v4l2 は v4l2-ctl と ffmpeg を使って Linux の V4L2 デバイスを
// 単一コールバック方式のカメラドライバーとして扱う
package v4l2

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Commander は外部コマンドの実行を抽象化する
type Commander interface {
	// Output はコマンドを実行して標準出力を返す
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// Stream はコマンドを起動して標準出力を返す。wait は終了を待つ
	Stream(ctx context.Context, name string, args ...string) (stdout io.ReadCloser, wait func() error, err error)
}

// ExecCommander は os/exec でコマンドを実行する
type ExecCommander struct{}

func (ExecCommander) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s の実行に失敗: %w (stderr: %s)", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func (ExecCommander) Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, func() error, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = io.Discard

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("%s の起動に失敗: %w", name, err)
	}
	return stdout, cmd.Wait, nil
}
