package modern

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"camkit/internal/camera"
	"camkit/internal/metrics"
)

const (
	photoReaderMaxImages = 2
	flashCaptureDelay    = 75 * time.Millisecond
)

// Session はセッション + リピーティングリクエスト方式のハードウェアセッション
//
// ベンダーのハンドルは mu で保護する。コントローラーへのイベント通知は
// 必ずロックの外で行う
type Session struct {
	log     zerolog.Logger
	manager DeviceManager
	events  camera.Events
	after   func(d time.Duration, f func())

	mu              sync.Mutex
	openSeq         uint64 // 古いデバイス通知を捨てるための世代番号
	cameraID        string
	chars           Characteristics
	device          Device
	captureSession  CaptureSession
	previewRequest  *CaptureRequest
	photoReader     ImageReader
	photoReaderSize camera.Size

	previewOrientation int
	previewSize        camera.Size
	photoSize          camera.Size
	flash              camera.Flash

	openPreview    bool // StopPreview 後の結果は処理しない
	previewStarted bool

	seq       *Sequencer
	previewCB *previewCallback
	focusCB   *tapFocusCallback
	tap       *frameTap
	destroyed bool

	precapture bool // 撮影前に露出のプリキャプチャを行う
}

// Option はセッションのオプション
type Option func(*Session)

// WithLogger はロガーを設定する
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.log = logger
	}
}

// WithPrecapture は撮影前に露出のプリキャプチャを行うかを設定する
func WithPrecapture(enabled bool) Option {
	return func(s *Session) {
		s.precapture = enabled
	}
}

// NewSession は新しいセッションを作成する
func NewSession(manager DeviceManager, events camera.Events, opts ...Option) *Session {
	s := &Session{
		log:     zerolog.Nop(),
		manager: manager,
		events:  events,
		after:   func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		flash:   camera.FlashOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("generation", string(camera.GenerationModern)).Logger()
	s.seq = newSequencer(s)
	s.previewCB = &previewCallback{s: s}
	s.focusCB = &tapFocusCallback{s: s}
	return s
}

// Factory はコントローラー用のセッションファクトリを返す
func Factory(manager DeviceManager, opts ...Option) camera.SessionFactory {
	return func(events camera.Events) camera.Session {
		return NewSession(manager, events, opts...)
	}
}

func (s *Session) Generation() camera.Generation {
	return camera.GenerationModern
}

// Open は向きに合うカメラを非同期に開く
func (s *Session) Open(facing camera.Facing) error {
	id, chars, err := s.cameraIDFor(facing)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.openSeq++
	seq := s.openSeq
	s.cameraID = id
	s.chars = chars
	s.mu.Unlock()

	s.log.Debug().Str("camera_id", id).Str("facing", string(facing)).Msg("カメラを開きます")

	err = s.manager.OpenCamera(id, DeviceStateCallback{
		OnOpened:       func(d Device) { s.onOpened(seq, d) },
		OnDisconnected: func(d Device) { s.onDisconnected(seq, d) },
		OnError:        func(d Device, err error) { s.onDeviceError(seq, d, err) },
	})
	if err != nil {
		metrics.IncVendorError("open")
		return fmt.Errorf("%w: カメラ %s: %w", camera.ErrDeviceUnavailable, id, err)
	}
	return nil
}

// cameraIDFor は向きに合う最初のカメラIDと特性を返す
func (s *Session) cameraIDFor(facing camera.Facing) (string, Characteristics, error) {
	ids, err := s.manager.CameraIDs()
	if err != nil {
		return "", Characteristics{}, fmt.Errorf("%w: %w", camera.ErrDeviceUnavailable, err)
	}
	for _, id := range ids {
		chars, err := s.manager.Characteristics(id)
		if err != nil {
			s.log.Warn().Err(err).Str("camera_id", id).Msg("カメラ特性を取得できませんでした")
			continue
		}
		if chars.Facing == facing {
			return id, chars, nil
		}
	}
	return "", Characteristics{}, fmt.Errorf("%w: 向き %s", camera.ErrDeviceUnavailable, facing)
}

func (s *Session) onOpened(seq uint64, d Device) {
	s.mu.Lock()
	if seq != s.openSeq || s.destroyed {
		s.mu.Unlock()
		d.Close()
		return
	}
	s.device = d
	attrs := attributesOf(s.chars)
	s.mu.Unlock()

	s.events.OnCameraOpened(attrs)
}

func (s *Session) onDisconnected(seq uint64, d Device) {
	s.mu.Lock()
	if seq != s.openSeq {
		s.mu.Unlock()
		return
	}
	s.openSeq++
	stored := s.device == d
	s.closeLocked()
	s.mu.Unlock()

	if !stored {
		d.Close()
	}
	s.log.Warn().Msg("カメラが切断されました")
	s.events.OnCameraClosed()
}

// onDeviceError はデバイスを閉じ、エラーと切断を通知する
func (s *Session) onDeviceError(seq uint64, d Device, err error) {
	s.mu.Lock()
	if seq != s.openSeq {
		s.mu.Unlock()
		return
	}
	s.openSeq++
	stored := s.device == d
	s.closeLocked()
	s.mu.Unlock()

	if !stored {
		d.Close()
	}
	metrics.IncVendorError("device")
	s.events.OnCameraError(err)
	s.events.OnCameraClosed()
}

func attributesOf(c Characteristics) camera.Attributes {
	return camera.Attributes{
		Facing:            c.Facing,
		SensorOrientation: c.SensorOrientation,
		PreviewSizes:      c.PreviewSizes,
		PhotoSizes:        c.PhotoSizes,
		Flashes:           c.Flashes,
	}.Clone()
}

// Release はデバイスとセッションを閉じ、OnCameraClosed を通知する
func (s *Session) Release() {
	s.mu.Lock()
	s.openSeq++
	s.closeLocked()
	s.mu.Unlock()

	s.events.OnCameraClosed()
}

// Destroy は通知せずに全てのハンドルを閉じる
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openSeq++
	s.destroyed = true
	s.closeLocked()
}

// closeLocked はデバイス、セッション、リーダーを閉じる
func (s *Session) closeLocked() {
	s.dropFrameTapLocked()
	if s.captureSession != nil {
		s.captureSession.Close()
		s.captureSession = nil
	}
	if s.device != nil {
		s.device.Close()
		s.device = nil
	}
	if s.photoReader != nil {
		s.photoReader.SetOnImageAvailable(nil)
		s.photoReader.Close()
		s.photoReader = nil
		s.photoReaderSize = camera.Size{}
	}
	s.previewRequest = nil
	s.openPreview = false
	s.previewStarted = false
	s.seq = newSequencer(s)
}

func (s *Session) SetPreviewOrientation(degrees int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previewOrientation = degrees
}

func (s *Session) SetPreviewSize(size camera.Size) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previewSize = size
}

// SetPhotoSize は次回のプレビュー開始時に写真リーダーの大きさとして使われる
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

// StartPreview はキャプチャセッションを構成してリピーティングリクエストを開始する
func (s *Session) StartPreview(surface camera.Surface) {
	s.mu.Lock()
	s.openPreview = true
	s.previewStarted = false
	device := s.device
	seq := s.openSeq
	if device == nil {
		s.mu.Unlock()
		s.events.OnPreviewError(fmt.Errorf("%w: デバイスが開かれていません", camera.ErrSessionConfiguration))
		return
	}
	reader, err := s.ensurePhotoReaderLocked()
	s.mu.Unlock()
	if err != nil {
		metrics.IncVendorError("image_reader")
		s.events.OnPreviewError(err)
		return
	}

	outputs := []Target{surface, reader.Target()}
	err = device.CreateCaptureSession(outputs, func(cs CaptureSession, err error) {
		s.onSessionConfigured(seq, device, surface, cs, err)
	})
	if err != nil {
		metrics.IncVendorError("create_session")
		s.events.OnPreviewError(fmt.Errorf("%w: %w", camera.ErrSessionConfiguration, err))
	}
}

// ensurePhotoReaderLocked は撮影サイズの写真リーダーを用意する
func (s *Session) ensurePhotoReaderLocked() (ImageReader, error) {
	size := s.photoSize
	if size.Area() == 0 {
		size = camera.PhotoSizeFor(s.previewOrientation)
	}
	if s.photoReader != nil && s.photoReaderSize == size {
		return s.photoReader, nil
	}
	if s.photoReader != nil {
		s.photoReader.SetOnImageAvailable(nil)
		s.photoReader.Close()
		s.photoReader = nil
	}

	reader, err := s.manager.NewImageReader(size, FormatJPEG, photoReaderMaxImages)
	if err != nil {
		return nil, fmt.Errorf("%w: 写真リーダー %s: %w", camera.ErrSessionConfiguration, size, err)
	}
	reader.SetOnImageAvailable(func(ImageReader) { s.onPhotoAvailable() })
	s.photoReader = reader
	s.photoReaderSize = size
	return reader, nil
}

func (s *Session) onSessionConfigured(seq uint64, device Device, surface camera.Surface, cs CaptureSession, err error) {
	if err != nil {
		metrics.IncVendorError("configure_session")
		s.events.OnPreviewError(fmt.Errorf("%w: %w", camera.ErrSessionConfiguration, err))
		return
	}

	s.mu.Lock()
	if seq != s.openSeq || s.device != device || !s.openPreview {
		// 構成中に解放またはプレビュー停止された
		s.mu.Unlock()
		cs.Close()
		return
	}

	req, err := device.CreateCaptureRequest(TemplatePreview)
	if err == nil {
		req.AddTarget(surface)
		req.AFMode = AFModeContinuousPicture
		req.ControlMode = ControlModeAuto
		err = cs.SetRepeatingRequest(req.Clone(), s.previewCB)
	}
	if err != nil {
		s.mu.Unlock()
		cs.Close()
		metrics.IncVendorError("repeating_request")
		s.events.OnPreviewError(fmt.Errorf("%w: %w", camera.ErrSessionConfiguration, err))
		return
	}

	s.captureSession = cs
	s.previewRequest = req
	s.mu.Unlock()
}

// StopPreview はリピーティングを止めてセッションを閉じる
func (s *Session) StopPreview() {
	s.mu.Lock()
	requested := s.openPreview
	s.openPreview = false
	s.previewStarted = false
	s.dropFrameTapLocked()
	cs := s.captureSession
	s.captureSession = nil
	s.previewRequest = nil
	s.mu.Unlock()

	if cs != nil {
		if err := cs.StopRepeating(); err != nil {
			s.log.Warn().Err(err).Msg("リピーティングリクエストを停止できませんでした")
		}
		if err := cs.AbortCaptures(); err != nil {
			s.log.Warn().Err(err).Msg("キャプチャを中断できませんでした")
		}
		cs.Close()
	}
	if cs != nil || requested {
		s.events.OnPreviewStopped()
	}
}

// CapturePhoto は静止画を撮影する。プレビュー中でなければ何もしない
func (s *Session) CapturePhoto(callback func(jpeg []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.captureSession == nil {
		s.log.Warn().Msg("プレビュー中でないため撮影できません")
		return
	}
	// フレームタップ中はリピーティングの結果が届かないため直接撮影する
	if s.precapture && s.tap == nil {
		err := s.seq.CaptureAfterPrecapture(callback)
		if err == nil {
			return
		}
		s.log.Warn().Err(err).Msg("プリキャプチャを開始できないため直接撮影します")
	}
	s.seq.Capture(callback)
}

// TapFocus はビュー座標の周辺にAF/AE領域を設定してフォーカスを合わせる
func (s *Session) TapFocus(x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, req := s.captureSession, s.previewRequest
	if cs == nil || req == nil || s.previewSize.Area() == 0 {
		return
	}

	region := MeteringRectangle{
		Rect:   meteringRect(x, y, s.previewSize, s.chars.ActiveArray),
		Weight: 1000,
	}
	req.AFRegions = []MeteringRectangle{region}
	req.AERegions = []MeteringRectangle{region}
	req.AFMode = AFModeAuto
	req.AFTrigger = AFTriggerStart
	req.AEPrecaptureTrigger = AEPrecaptureTriggerStart

	s.log.Debug().Int("x", x).Int("y", y).Interface("rect", region.Rect).Msg("タップフォーカスを開始します")
	if err := cs.SetRepeatingRequest(req.Clone(), s.focusCB); err != nil {
		metrics.IncVendorError("tap_focus")
		s.log.Warn().Err(err).Msg("タップフォーカスのリクエストに失敗しました")
	}
}

// meteringRect はプレビュー座標をセンサー座標に変換し、測光領域を返す
func meteringRect(x, y int, preview camera.Size, active Rect) Rect {
	right, bottom := active.Right, active.Bottom

	left := clamp(x*right/preview.Width, 0, right)
	top := clamp(y*bottom/preview.Height, 0, bottom)
	half := 50 * right / preview.Width

	return Rect{
		Left:   clamp(left-half, 0, right),
		Top:    clamp(top-half, 0, bottom),
		Right:  clamp(left+half, left, right),
		Bottom: clamp(top+half, top, bottom),
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

// onPreviewResult は通常のリピーティングリクエストと静止画の結果を処理する
func (s *Session) onPreviewResult(result CaptureResult) {
	s.mu.Lock()
	started := false
	if !result.Partial && s.openPreview && !s.previewStarted {
		s.previewStarted = true
		started = true
	}
	deliver := s.seq.Process(result)
	s.mu.Unlock()

	if started {
		s.events.OnPreviewStarted()
	}
	if deliver != nil {
		deliver()
	}
}

// onPhotoAvailable はリピーティングの結果を受け取れない間も写真を渡す
func (s *Session) onPhotoAvailable() {
	s.mu.Lock()
	deliver := s.seq.Drain()
	s.mu.Unlock()

	if deliver != nil {
		deliver()
	}
}

// onTapFocusResult はAFがロックしたら通常のプレビューリクエストに戻す
func (s *Session) onTapFocusResult(result CaptureResult) {
	if result.AFState != AFStateFocusedLocked && result.AFState != AFStateNotFocusedLocked {
		return
	}

	s.mu.Lock()
	cs, req := s.captureSession, s.previewRequest
	if cs == nil || req == nil {
		s.mu.Unlock()
		return
	}
	if result.AFState == AFStateNotFocusedLocked {
		s.log.Debug().Msg("タップフォーカスで合焦しませんでした")
	}
	req.AFTrigger = AFTriggerIdle
	req.AFMode = AFModeContinuousPicture
	req.AEMode = AEModeOn
	req.AEPrecaptureTrigger = AEPrecaptureTriggerIdle
	if err := cs.SetRepeatingRequest(req.Clone(), s.previewCB); err != nil {
		metrics.IncVendorError("tap_focus")
		s.log.Warn().Err(err).Msg("プレビューリクエストを復元できませんでした")
	}
	s.mu.Unlock()

	s.events.OnTapFocusFinish()
}

// sequencerOps の実装（ロック下で呼ばれる）

func (s *Session) latestPhoto() ([]byte, bool) {
	if s.photoReader == nil {
		return nil, false
	}
	img, err := s.photoReader.AcquireLatestImage()
	if err != nil || img == nil {
		return nil, false
	}
	defer img.Close()

	jpeg, err := imageBytes(img)
	if err != nil {
		s.log.Warn().Err(err).Msg("写真を変換できませんでした")
		return nil, false
	}
	return jpeg, true
}

func (s *Session) issueStillCapture() {
	cs, device, reader := s.captureSession, s.device, s.photoReader
	if cs == nil || device == nil || reader == nil {
		return
	}

	req, err := device.CreateCaptureRequest(TemplateStillCapture)
	if err != nil {
		metrics.IncVendorError("still_capture")
		s.log.Error().Err(err).Msg("静止画リクエストを作成できませんでした")
		return
	}
	req.AddTarget(reader.Target())
	req.AFMode = AFModeContinuousPicture
	req.FlashMode = FlashModeOff
	if s.flash == camera.FlashOn {
		req.FlashMode = FlashModeSingle
	}

	if req.FlashMode == FlashModeOff {
		s.captureLocked(cs, req)
		return
	}
	// フラッシュの発光準備を待ってから発行する
	s.after(flashCaptureDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.captureSession != cs {
			return
		}
		s.captureLocked(cs, req)
	})
}

func (s *Session) captureLocked(cs CaptureSession, req *CaptureRequest) {
	if err := cs.Capture(req, s.previewCB); err != nil {
		metrics.IncVendorError("still_capture")
		s.log.Error().Err(err).Msg("静止画の撮影に失敗しました")
	}
}

// issueOneShotLocked はトリガー付きのプレビューリクエストを一度だけ発行する
func (s *Session) issueOneShotLocked(set func(*CaptureRequest)) error {
	cs, req := s.captureSession, s.previewRequest
	if cs == nil || req == nil {
		return fmt.Errorf("%w: プレビューが開始されていません", camera.ErrSessionConfiguration)
	}
	shot := req.Clone()
	set(shot)
	return cs.Capture(shot, s.previewCB)
}

func (s *Session) issueFocusLock() error {
	return s.issueOneShotLocked(func(r *CaptureRequest) {
		r.AFTrigger = AFTriggerStart
	})
}

func (s *Session) issuePrecapture() error {
	if err := s.issueOneShotLocked(func(r *CaptureRequest) {
		r.AEPrecaptureTrigger = AEPrecaptureTriggerStart
	}); err != nil {
		return err
	}
	s.previewRequest.FlashMode = FlashModeOff
	if s.flash == camera.FlashOn {
		s.previewRequest.FlashMode = FlashModeTorch
	}
	return s.captureSession.SetRepeatingRequest(s.previewRequest.Clone(), s.previewCB)
}

func (s *Session) issueFocusUnlock() error {
	if err := s.issueOneShotLocked(func(r *CaptureRequest) {
		r.AFTrigger = AFTriggerCancel
	}); err != nil {
		return err
	}
	s.previewRequest.AFTrigger = AFTriggerIdle
	s.previewRequest.FlashMode = FlashModeOff
	return s.captureSession.SetRepeatingRequest(s.previewRequest.Clone(), s.previewCB)
}

// 結果ハンドラはセッションの状態として明示的に保持する

type previewCallback struct {
	s *Session
}

func (cb *previewCallback) OnCaptureResult(_ *CaptureRequest, result CaptureResult) {
	cb.s.onPreviewResult(result)
}

type tapFocusCallback struct {
	s *Session
}

func (cb *tapFocusCallback) OnCaptureResult(_ *CaptureRequest, result CaptureResult) {
	if result.Partial {
		return
	}
	cb.s.onTapFocusResult(result)
}

var _ camera.Session = (*Session)(nil)
