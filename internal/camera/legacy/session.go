package legacy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"camkit/internal/camera"
	"camkit/internal/metrics"
)

// Session は単一コールバック方式のハードウェアセッション
// プレビュー開始は最初のプレビューフレームで通知する
type Session struct {
	log    zerolog.Logger
	driver Driver
	events camera.Events

	mu          sync.Mutex
	openSeq     uint64
	info        Info
	device      Device
	params      Parameters
	orientation int
	previewSize camera.Size
	photoSize   camera.Size
	flash       camera.Flash

	openPreview    bool
	previewStarted bool
	tapSink        camera.FrameSink
	wg             sync.WaitGroup
}

// Option はセッションのオプション
type Option func(*Session)

// WithLogger はロガーを設定する
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.log = logger
	}
}

// NewSession は新しいセッションを作成する
func NewSession(driver Driver, events camera.Events, opts ...Option) *Session {
	s := &Session{
		log:    zerolog.Nop(),
		driver: driver,
		events: events,
		flash:  camera.FlashOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("generation", string(camera.GenerationLegacy)).Logger()
	return s
}

// Factory はコントローラー用のセッションファクトリを返す
func Factory(driver Driver, opts ...Option) camera.SessionFactory {
	return func(events camera.Events) camera.Session {
		return NewSession(driver, events, opts...)
	}
}

func (s *Session) Generation() camera.Generation {
	return camera.GenerationLegacy
}

// Open は向きに合うカメラを探し、別ゴルーチンで開く
func (s *Session) Open(facing camera.Facing) error {
	info, err := s.infoFor(facing)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.openSeq++
	seq := s.openSeq
	s.info = info
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.open(seq, info)
	}()
	return nil
}

// stale は seq のオープンが後続の Open / Release で無効になったかを返す
func (s *Session) stale(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seq != s.openSeq
}

func (s *Session) infoFor(facing camera.Facing) (Info, error) {
	infos, err := s.driver.CameraInfos()
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", camera.ErrDeviceUnavailable, err)
	}
	for _, info := range infos {
		if info.Facing == facing {
			return info, nil
		}
	}
	return Info{}, fmt.Errorf("%w: 向き %s", camera.ErrDeviceUnavailable, facing)
}

func (s *Session) open(seq uint64, info Info) {
	device, err := s.driver.Open(info.ID)
	if err != nil {
		metrics.IncVendorError("open")
		if s.stale(seq) {
			return
		}
		s.events.OnCameraError(fmt.Errorf("%w: カメラ %s: %w", camera.ErrDeviceUnavailable, info.ID, err))
		s.events.OnCameraClosed()
		return
	}

	params, err := device.Parameters()
	if err != nil {
		device.Release()
		metrics.IncVendorError("parameters")
		if s.stale(seq) {
			return
		}
		s.events.OnCameraError(fmt.Errorf("%w: %w", camera.ErrSessionConfiguration, err))
		s.events.OnCameraClosed()
		return
	}

	s.mu.Lock()
	if seq != s.openSeq {
		s.mu.Unlock()
		device.Release()
		return
	}
	s.device = device
	s.params = params
	s.mu.Unlock()

	device.SetErrorCallback(func(err error) { s.onDeviceError(seq, err) })

	s.log.Debug().Str("camera_id", info.ID).Msg("カメラを開きました")
	s.events.OnCameraOpened(camera.Attributes{
		Facing:            info.Facing,
		SensorOrientation: info.Orientation,
		PreviewSizes:      params.SupportedPreviewSizes,
		PhotoSizes:        params.SupportedPictureSizes,
		Flashes:           params.SupportedFlashes,
	}.Clone())
}

func (s *Session) onDeviceError(seq uint64, err error) {
	if !errors.Is(err, ErrDisconnected) {
		metrics.IncVendorError("device")
		s.events.OnCameraError(err)
		return
	}

	s.mu.Lock()
	if seq != s.openSeq {
		s.mu.Unlock()
		return
	}
	s.openSeq++
	device := s.takeDeviceLocked()
	s.mu.Unlock()

	if device != nil {
		device.Release()
	}
	s.log.Warn().Msg("カメラが切断されました")
	s.events.OnCameraClosed()
}

// takeDeviceLocked はデバイスを取り出してプレビュー状態を初期化する
func (s *Session) takeDeviceLocked() Device {
	device := s.device
	s.device = nil
	s.openPreview = false
	s.previewStarted = false
	s.tapSink = nil
	return device
}

// Release はデバイスを解放し OnCameraClosed を通知する
func (s *Session) Release() {
	s.mu.Lock()
	s.openSeq++
	device := s.takeDeviceLocked()
	s.mu.Unlock()

	if device != nil {
		s.shutdown(device)
	}
	s.events.OnCameraClosed()
}

// Destroy は通知せずにデバイスを解放し、オープン中のゴルーチンを待つ
func (s *Session) Destroy() {
	s.mu.Lock()
	s.openSeq++
	device := s.takeDeviceLocked()
	s.mu.Unlock()

	if device != nil {
		s.shutdown(device)
	}
	s.wg.Wait()
}

func (s *Session) shutdown(device Device) {
	device.SetPreviewCallback(nil)
	if err := device.StopPreview(); err != nil {
		s.log.Debug().Err(err).Msg("プレビューを停止できませんでした")
	}
	device.Release()
}

func (s *Session) SetPreviewOrientation(degrees int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orientation = degrees
}

func (s *Session) SetPreviewSize(size camera.Size) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previewSize = size
}

func (s *Session) SetPhotoSize(size camera.Size) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photoSize = size
}

func (s *Session) SetFlash(flash camera.Flash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flash = flash
}

// StartPreview はパラメーターを反映してプレビューを開始する
func (s *Session) StartPreview(surface camera.Surface) {
	s.mu.Lock()
	device := s.device
	if device == nil {
		s.mu.Unlock()
		s.events.OnPreviewError(fmt.Errorf("%w: デバイスが開かれていません", camera.ErrSessionConfiguration))
		return
	}

	params := s.params
	if s.previewSize.Area() > 0 {
		params.PreviewSize = s.previewSize
	}
	if s.photoSize.Area() > 0 {
		params.PictureSize = s.photoSize
	}
	if params.SupportsFocusMode(FocusModeContinuousPicture) {
		params.FocusMode = FocusModeContinuousPicture
	}
	orientation := s.orientation
	s.openPreview = true
	s.previewStarted = false
	s.mu.Unlock()

	err := device.SetParameters(params)
	if err == nil {
		err = device.SetDisplayOrientation(orientation)
	}
	if err == nil {
		err = device.SetPreviewTarget(surface)
	}
	if err == nil {
		device.SetPreviewCallback(s.onPreviewFrame)
		err = device.StartPreview()
	}
	if err != nil {
		metrics.IncVendorError("start_preview")
		s.mu.Lock()
		s.openPreview = false
		s.mu.Unlock()
		s.events.OnPreviewError(fmt.Errorf("%w: %w", camera.ErrSessionConfiguration, err))
		return
	}

	s.mu.Lock()
	s.params = params
	s.mu.Unlock()
}

func (s *Session) onPreviewFrame(frame []byte) {
	s.mu.Lock()
	if !s.openPreview {
		s.mu.Unlock()
		return
	}
	started := !s.previewStarted
	s.previewStarted = true
	sink := s.tapSink
	s.mu.Unlock()

	if started {
		s.events.OnPreviewStarted()
	}
	if sink != nil {
		metrics.ObserveFrame(true)
		sink(append([]byte(nil), frame...))
	}
}

// StopPreview はプレビューを停止し OnPreviewStopped を通知する
func (s *Session) StopPreview() {
	s.mu.Lock()
	requested := s.openPreview
	s.openPreview = false
	s.previewStarted = false
	s.tapSink = nil
	device := s.device
	s.mu.Unlock()

	if device != nil {
		device.SetPreviewCallback(nil)
		if err := device.StopPreview(); err != nil {
			s.log.Warn().Err(err).Msg("プレビューを停止できませんでした")
		}
	}
	if device != nil || requested {
		s.events.OnPreviewStopped()
	}
}

// CapturePhoto は撮影し、撮影で止まったプレビューを再開する
func (s *Session) CapturePhoto(callback func(jpeg []byte)) {
	s.mu.Lock()
	device := s.device
	if device == nil {
		s.mu.Unlock()
		s.log.Warn().Msg("カメラが開かれていないため撮影できません")
		return
	}
	params := s.params
	params.Flash = s.flash
	s.params = params
	s.mu.Unlock()

	if err := device.SetParameters(params); err != nil {
		s.log.Warn().Err(err).Str("flash", string(params.Flash)).Msg("フラッシュを設定できませんでした")
	}

	err := device.TakePicture(func(jpeg []byte, err error) {
		if err != nil {
			metrics.IncVendorError("take_picture")
			s.events.OnCameraError(err)
			return
		}
		s.restartPreview(device)
		callback(jpeg)
	})
	if err != nil {
		metrics.IncVendorError("take_picture")
		s.log.Error().Err(err).Msg("撮影に失敗しました")
	}
}

func (s *Session) restartPreview(device Device) {
	s.mu.Lock()
	resume := s.openPreview && s.device == device
	s.mu.Unlock()
	if !resume {
		return
	}
	if err := device.StartPreview(); err != nil {
		s.log.Warn().Err(err).Msg("撮影後にプレビューを再開できませんでした")
	}
}

// TapFocus はビュー座標をフォーカス領域に変換してオートフォーカスする
func (s *Session) TapFocus(x, y int) {
	s.mu.Lock()
	device := s.device
	if device == nil || !s.openPreview || s.params.PreviewSize.Area() == 0 {
		s.mu.Unlock()
		return
	}
	params := s.params
	params.FocusAreas = []Area{focusArea(x, y, params.PreviewSize)}
	if params.SupportsFocusMode(FocusModeAuto) {
		params.FocusMode = FocusModeAuto
	}
	s.params = params
	s.mu.Unlock()

	if err := device.SetParameters(params); err != nil {
		s.log.Warn().Err(err).Msg("フォーカス領域を設定できませんでした")
		return
	}
	if err := device.CancelAutoFocus(); err != nil {
		s.log.Debug().Err(err).Msg("オートフォーカスを取り消せませんでした")
	}
	err := device.AutoFocus(func(success bool) {
		if !success {
			s.log.Debug().Msg("タップフォーカスで合焦しませんでした")
		}
		s.restoreFocusMode(device)
		s.events.OnTapFocusFinish()
	})
	if err != nil {
		metrics.IncVendorError("tap_focus")
		s.log.Warn().Err(err).Msg("オートフォーカスを開始できませんでした")
	}
}

func (s *Session) restoreFocusMode(device Device) {
	s.mu.Lock()
	if s.device != device || !s.params.SupportsFocusMode(FocusModeContinuousPicture) {
		s.mu.Unlock()
		return
	}
	params := s.params
	params.FocusMode = FocusModeContinuousPicture
	s.params = params
	s.mu.Unlock()

	if err := device.SetParameters(params); err != nil {
		s.log.Warn().Err(err).Msg("フォーカスモードを戻せませんでした")
	}
}

// focusArea はプレビュー座標 (x, y) を -1000..1000 のフォーカス領域に変換する
func focusArea(x, y int, preview camera.Size) Area {
	span := focusAreaMax - focusAreaMin
	cx := clamp(x*span/preview.Width+focusAreaMin, focusAreaMin, focusAreaMax)
	cy := clamp(y*span/preview.Height+focusAreaMin, focusAreaMin, focusAreaMax)
	half := 50 * span / preview.Width

	return Area{
		Left:   clamp(cx-half, focusAreaMin, focusAreaMax),
		Top:    clamp(cy-half, focusAreaMin, focusAreaMax),
		Right:  clamp(cx+half, cx, focusAreaMax),
		Bottom: clamp(cy+half, cy, focusAreaMax),
		Weight: 1000,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// StartFrameTap はプレビューフレームを sink へ流す
func (s *Session) StartFrameTap(sink camera.FrameSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil || !s.openPreview {
		return fmt.Errorf("%w: プレビューが開始されていません", camera.ErrFrameTapUnsupported)
	}
	s.tapSink = sink
	return nil
}

// StopFrameTap はフレームタップを停止する
func (s *Session) StopFrameTap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tapSink = nil
}

var _ camera.Session = (*Session)(nil)
