package legacy

import (
	"errors"

	"camkit/internal/camera"
)

// 単一コールバック方式のベンダーAPIの抽象
// コールバックは呼び出し元とは別のゴルーチンから届く

// ErrDisconnected はデバイスが切断された（エラーコールバックで通知される）
var ErrDisconnected = errors.New("カメラデバイスが切断されました")

// FocusMode はフォーカスモード
type FocusMode string

const (
	FocusModeAuto              FocusMode = "auto"
	FocusModeContinuousPicture FocusMode = "continuous-picture"
	FocusModeFixed             FocusMode = "fixed"
)

// フォーカス領域の座標範囲
const (
	focusAreaMin = -1000
	focusAreaMax = 1000
)

// Info はオープン前に取得できるカメラ情報
type Info struct {
	ID          string
	Facing      camera.Facing
	Orientation int // センサーの回転
}

// Area はフォーカス領域（-1000..1000 の座標系）
type Area struct {
	Left, Top, Right, Bottom int
	Weight                   int
}

// Parameters はデバイスのパラメーター
type Parameters struct {
	PreviewSize camera.Size
	PictureSize camera.Size
	Flash       camera.Flash
	FocusMode   FocusMode
	FocusAreas  []Area

	SupportedPreviewSizes []camera.Size
	SupportedPictureSizes []camera.Size
	SupportedFlashes      []camera.Flash
	SupportedFocusModes   []FocusMode
}

// SupportsFocusMode はフォーカスモードがサポートされているかを返す
func (p Parameters) SupportsFocusMode(mode FocusMode) bool {
	for _, m := range p.SupportedFocusModes {
		if m == mode {
			return true
		}
	}
	return false
}

// Driver はカメラの列挙とオープンを行う
type Driver interface {
	CameraInfos() ([]Info, error)
	// Open はデバイスを開く。完了までブロックする
	Open(id string) (Device, error)
}

// Device は開かれたカメラデバイス
type Device interface {
	Parameters() (Parameters, error)
	SetParameters(p Parameters) error
	SetDisplayOrientation(degrees int) error
	SetPreviewTarget(surface camera.Surface) error
	StartPreview() error
	StopPreview() error
	// TakePicture は撮影する。撮影後はプレビューが停止する
	TakePicture(cb func(jpeg []byte, err error)) error
	AutoFocus(cb func(success bool)) error
	CancelAutoFocus() error
	// SetPreviewCallback はプレビューフレームの通知を設定する。nil で解除する
	SetPreviewCallback(cb func(frame []byte))
	SetErrorCallback(cb func(err error))
	Release()
}
