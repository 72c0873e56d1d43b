package camera

import "fmt"

// Facing はカメラの向き
type Facing string

const (
	FacingBack  Facing = "back"  // 背面カメラ
	FacingFront Facing = "front" // 前面カメラ
)

// ParseFacing は文字列から Facing を得る
func ParseFacing(s string) (Facing, error) {
	switch Facing(s) {
	case FacingBack, FacingFront:
		return Facing(s), nil
	default:
		return "", fmt.Errorf("無効なカメラの向き: %q", s)
	}
}

// Flash はフラッシュモード
type Flash string

const (
	FlashOff   Flash = "off"
	FlashOn    Flash = "on"
	FlashAuto  Flash = "auto"
	FlashTorch Flash = "torch"
)

// ParseFlash は文字列から Flash を得る
func ParseFlash(s string) (Flash, error) {
	switch Flash(s) {
	case FlashOff, FlashOn, FlashAuto, FlashTorch:
		return Flash(s), nil
	default:
		return "", fmt.Errorf("無効なフラッシュモード: %q", s)
	}
}

// Size は幅と高さ
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Swap は幅と高さを入れ替えたサイズを返す
func (s Size) Swap() Size {
	return Size{Width: s.Height, Height: s.Width}
}

// Area は面積を返す
func (s Size) Area() int {
	return s.Width * s.Height
}

// Contains は target を内包するかを返す
func (s Size) Contains(target Size) bool {
	return s.Width >= target.Width && s.Height >= target.Height
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Attributes はオープン成功時に取得するカメラ属性のスナップショット
type Attributes struct {
	Facing            Facing
	SensorOrientation int
	PreviewSizes      []Size
	PhotoSizes        []Size
	Flashes           []Flash
}

// Clone はスライスを複製したコピーを返す
func (a Attributes) Clone() Attributes {
	c := a
	c.PreviewSizes = append([]Size(nil), a.PreviewSizes...)
	c.PhotoSizes = append([]Size(nil), a.PhotoSizes...)
	c.Flashes = append([]Flash(nil), a.Flashes...)
	return c
}

// LifecycleState はホスト側のライフサイクル状態
type LifecycleState string

const (
	LifecycleStarted LifecycleState = "started"
	LifecycleResumed LifecycleState = "resumed"
	LifecyclePaused  LifecycleState = "paused"
	LifecycleStopped LifecycleState = "stopped"
)

// SurfaceState は描画サーフェスの準備状態
type SurfaceState string

const (
	SurfaceWaiting   SurfaceState = "waiting"
	SurfaceAvailable SurfaceState = "available"
)

// State はカメラの状態
type State string

const (
	StateClosed          State = "closed"
	StateOpening         State = "opening"
	StateOpened          State = "opened"
	StatePreviewStarting State = "preview_starting"
	StatePreviewStarted  State = "preview_started"
	StatePreviewStopping State = "preview_stopping"
	StatePreviewStopped  State = "preview_stopped"
	StateClosing         State = "closing"
)

// Generation はハードウェアAPIの世代
type Generation string

const (
	GenerationLegacy Generation = "legacy" // 単一コールバック方式
	GenerationModern Generation = "modern" // セッション + リピーティングリクエスト方式
)

// FrameSink はフレームタップの受け口
type FrameSink func(frame []byte)

// Surface はプレビューの描画先
type Surface interface {
	// SetDefaultBufferSize はバッファのサイズを設定する
	SetDefaultBufferSize(size Size)
	// SetSize は論理サイズを設定する
	SetSize(size Size)
	// Size は論理サイズを返す
	Size() Size
	// SetRotation は回転のヒント（度）を設定する
	SetRotation(degrees int)
}

// SizeSelector はサポートサイズから target を内包する最も近いサイズを選ぶ
type SizeSelector interface {
	ClosestContaining(sizes []Size, target Size) Size
}

// ImageTransform は撮影したJPEGを回転する
type ImageTransform interface {
	Rotate(jpeg []byte, degrees int) ([]byte, error)
}

// Events はセッションからコントローラーへのイベント通知
// ハードウェアの通知コンテキストから呼ばれる
type Events interface {
	OnCameraOpened(attrs Attributes)
	OnCameraClosed()
	OnCameraError(err error)
	OnPreviewStarted()
	OnPreviewStopped()
	OnPreviewError(err error)
	OnTapFocusFinish()
}

// Session はハードウェアAPI世代を抽象化したカメラセッション
type Session interface {
	// Generation は実装の世代を返す
	Generation() Generation

	// Open は非同期にカメラを開く。結果は Events で通知される
	// 向きに合うデバイスがない場合は ErrDeviceUnavailable を返す
	Open(facing Facing) error

	// Release はデバイスとセッションを解放し、最後に OnCameraClosed を通知する
	Release()

	// Destroy は実行リソースを解放する
	Destroy()

	// 設定は次回の StartPreview / CapturePhoto から有効になる
	SetPreviewOrientation(degrees int)
	SetPreviewSize(size Size)
	SetPhotoSize(size Size)
	SetFlash(flash Flash)

	// StartPreview はプレビューを開始する。最初のフレームで OnPreviewStarted を通知する
	StartPreview(surface Surface)

	// StopPreview はプレビューを停止し OnPreviewStopped を通知する
	StopPreview()

	// CapturePhoto は静止画を撮影する
	CapturePhoto(callback func(jpeg []byte))

	// TapFocus はビュー座標でのタップフォーカスを行う
	TapFocus(x, y int)

	// StartFrameTap はプレビューを維持したまま生フレームを sink へ流す
	StartFrameTap(sink FrameSink) error

	// StopFrameTap はフレームタップを停止する
	StopFrameTap()
}

// SessionFactory はイベントの通知先を受け取ってセッションを生成する
type SessionFactory func(events Events) Session

// Listener はカメラ状態の変化を受け取る
// コールバックはコントローラーのワーカー上で呼ばれる
type Listener interface {
	OnCameraOpened()
	OnCameraClosed()
	OnPreviewStarted()
	OnPreviewStopped()
	OnTapFocusFinish()
}

// ListenerFuncs は関数で Listener を実装するアダプター
type ListenerFuncs struct {
	CameraOpened   func()
	CameraClosed   func()
	PreviewStarted func()
	PreviewStopped func()
	TapFocusFinish func()
}

func (l ListenerFuncs) OnCameraOpened() {
	if l.CameraOpened != nil {
		l.CameraOpened()
	}
}

func (l ListenerFuncs) OnCameraClosed() {
	if l.CameraClosed != nil {
		l.CameraClosed()
	}
}

func (l ListenerFuncs) OnPreviewStarted() {
	if l.PreviewStarted != nil {
		l.PreviewStarted()
	}
}

func (l ListenerFuncs) OnPreviewStopped() {
	if l.PreviewStopped != nil {
		l.PreviewStopped()
	}
}

func (l ListenerFuncs) OnTapFocusFinish() {
	if l.TapFocusFinish != nil {
		l.TapFocusFinish()
	}
}

// Listeners は複数のリスナーへ順に通知する
type Listeners []Listener

func (ls Listeners) OnCameraOpened() {
	for _, l := range ls {
		l.OnCameraOpened()
	}
}

func (ls Listeners) OnCameraClosed() {
	for _, l := range ls {
		l.OnCameraClosed()
	}
}

func (ls Listeners) OnPreviewStarted() {
	for _, l := range ls {
		l.OnPreviewStarted()
	}
}

func (ls Listeners) OnPreviewStopped() {
	for _, l := range ls {
		l.OnPreviewStopped()
	}
}

func (ls Listeners) OnTapFocusFinish() {
	for _, l := range ls {
		l.OnTapFocusFinish()
	}
}
