package modern

import (
	"camkit/internal/camera"
)

// ベンダーのセッション型カメラAPIの抽象
//
// コールバックは全て呼び出し元とは別のゴルーチンから非同期に届く。
// 実装は呼び出しの内側からコールバックを同期的に呼んではならない

// Target はキャプチャ出力先のハンドル（比較可能な値）
type Target any

// Template はキャプチャリクエストのテンプレート
type Template int

const (
	TemplatePreview Template = iota + 1
	TemplateStillCapture
)

// AFMode はオートフォーカスのモード
type AFMode int

const (
	AFModeOff AFMode = iota
	AFModeAuto
	AFModeContinuousPicture
)

// AEMode は自動露出のモード
type AEMode int

const (
	AEModeOff AEMode = iota
	AEModeOn
)

// ControlMode は3A制御全体のモード
type ControlMode int

const (
	ControlModeOff ControlMode = iota
	ControlModeAuto
)

// AFTrigger はオートフォーカスのトリガー
type AFTrigger int

const (
	AFTriggerIdle AFTrigger = iota
	AFTriggerStart
	AFTriggerCancel
)

// AEPrecaptureTrigger は露出プリキャプチャのトリガー
type AEPrecaptureTrigger int

const (
	AEPrecaptureTriggerIdle AEPrecaptureTrigger = iota
	AEPrecaptureTriggerStart
)

// FlashMode はリクエスト単位のフラッシュ制御
type FlashMode int

const (
	FlashModeOff FlashMode = iota
	FlashModeSingle
	FlashModeTorch
)

// AFState は結果に含まれるオートフォーカスの状態
type AFState int

const (
	AFStateUnset AFState = iota // 結果に含まれない
	AFStateInactive
	AFStatePassiveScan
	AFStatePassiveFocused
	AFStateActiveScan
	AFStateFocusedLocked
	AFStateNotFocusedLocked
	AFStatePassiveUnfocused
)

// AEState は結果に含まれる自動露出の状態
type AEState int

const (
	AEStateUnset AEState = iota // 結果に含まれない
	AEStateInactive
	AEStateSearching
	AEStateConverged
	AEStateLocked
	AEStateFlashRequired
	AEStatePrecapture
)

// ImageFormat は画像リーダーのフォーマット
type ImageFormat int

const (
	FormatJPEG ImageFormat = iota + 1
	FormatYUV420888
)

// Rect はセンサー座標の矩形
type Rect struct {
	Left, Top, Right, Bottom int
}

// Width は矩形の幅
func (r Rect) Width() int { return r.Right - r.Left }

// Height は矩形の高さ
func (r Rect) Height() int { return r.Bottom - r.Top }

// MeteringRectangle は測光・測距の領域
type MeteringRectangle struct {
	Rect   Rect
	Weight int
}

// CaptureRequest はキャプチャリクエスト
type CaptureRequest struct {
	Template            Template
	Targets             []Target
	ControlMode         ControlMode
	AFMode              AFMode
	AEMode              AEMode
	AFTrigger           AFTrigger
	AEPrecaptureTrigger AEPrecaptureTrigger
	FlashMode           FlashMode
	AFRegions           []MeteringRectangle
	AERegions           []MeteringRectangle
	JPEGOrientation     int
}

// AddTarget は出力先を追加する。既にあれば何もしない
func (r *CaptureRequest) AddTarget(t Target) {
	for _, existing := range r.Targets {
		if existing == t {
			return
		}
	}
	r.Targets = append(r.Targets, t)
}

// RemoveTarget は出力先を取り除く
func (r *CaptureRequest) RemoveTarget(t Target) {
	kept := r.Targets[:0]
	for _, existing := range r.Targets {
		if existing != t {
			kept = append(kept, existing)
		}
	}
	r.Targets = kept
}

// Clone はスライスを複製したコピーを返す
func (r *CaptureRequest) Clone() *CaptureRequest {
	c := *r
	c.Targets = append([]Target(nil), r.Targets...)
	c.AFRegions = append([]MeteringRectangle(nil), r.AFRegions...)
	c.AERegions = append([]MeteringRectangle(nil), r.AERegions...)
	return &c
}

// CaptureResult はキャプチャ結果（部分結果を含む）
type CaptureResult struct {
	Partial bool
	AFState AFState
	AEState AEState
}

// CaptureCallback はキャプチャ結果の受け取り手
// セッションは結果ハンドラを明示的な値として入れ替えるため、実装は比較可能であること
type CaptureCallback interface {
	OnCaptureResult(req *CaptureRequest, result CaptureResult)
}

// Characteristics はカメラの静的な特性
type Characteristics struct {
	Facing            camera.Facing
	SensorOrientation int
	ActiveArray       Rect
	PreviewSizes      []camera.Size
	PhotoSizes        []camera.Size
	Flashes           []camera.Flash
}

// DeviceStateCallback はデバイスの状態通知
type DeviceStateCallback struct {
	OnOpened       func(Device)
	OnDisconnected func(Device)
	OnError        func(Device, error)
}

// DeviceManager はカメラデバイスの列挙とオープンを行う
type DeviceManager interface {
	CameraIDs() ([]string, error)
	Characteristics(id string) (Characteristics, error)
	// OpenCamera は非同期にデバイスを開く。結果は cb で通知される
	OpenCamera(id string, cb DeviceStateCallback) error
	NewImageReader(size camera.Size, format ImageFormat, maxImages int) (ImageReader, error)
}

// Device は開かれたカメラデバイス
type Device interface {
	ID() string
	// CreateCaptureSession は非同期にセッションを構成する
	CreateCaptureSession(outputs []Target, cb func(CaptureSession, error)) error
	CreateCaptureRequest(template Template) (*CaptureRequest, error)
	Close()
}

// CaptureSession は構成済みのキャプチャセッション
type CaptureSession interface {
	SetRepeatingRequest(req *CaptureRequest, cb CaptureCallback) error
	Capture(req *CaptureRequest, cb CaptureCallback) error
	StopRepeating() error
	AbortCaptures() error
	Close()
}

// ImageReader は出力先として画像を受け取る
type ImageReader interface {
	Target() Target
	AcquireLatestImage() (Image, error)
	// SetOnImageAvailable は画像到着時の通知を設定する。nil で解除する
	SetOnImageAvailable(fn func(ImageReader))
	Close()
}

// Image は取得した画像。使用後は Close する
type Image interface {
	Format() ImageFormat
	Planes() [][]byte
	Close()
}
