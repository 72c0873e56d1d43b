package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"camkit/internal/metrics"
)

// Options はコントローラーの生成オプション
type Options struct {
	Logger    zerolog.Logger
	Sizes     SizeSelector   // プレビューサイズの選択（必須）
	Transform ImageTransform // 撮影画像の回転（必須）
	Listener  Listener

	DisplayOrientation int  // ディスプレイの回転（0/90/180/270）
	ViewSize           Size // ビューの大きさ（未指定ならサーフェスのサイズ）
	Flash              Flash
}

// Controller はカメラのライフサイクルを制御する最上位のオーケストレーター
//
// 公開メソッドは任意のゴルーチンから呼べる。ハードウェア操作と状態変更は
// 全て内部のワーカーで直列に実行される。リスナーのコールバックもワーカー上で
// 呼ばれるため、コールバック内から Start / Resume / Pause / Stop / Destroy を
// 同期的に呼んではならない
type Controller struct {
	id        string
	log       zerolog.Logger
	session   Session
	sizes     SizeSelector
	transform ImageTransform

	w       *worker
	machine *stateMachine // ワーカー上でのみ操作する

	mu                 sync.RWMutex
	listener           Listener
	state              State
	lifecycle          LifecycleState
	surfaceState       SurfaceState
	surface            Surface
	facing             Facing
	attributes         *Attributes
	displayOrientation int
	previewOrientation int
	captureOrientation int
	previewSize        Size
	photoSize          Size
	viewSize           Size
	flash              Flash

	shuttingDown atomic.Bool
	openWait     completionSlot
	previewWait  completionSlot
	destroyOnce  sync.Once
}

// NewController は新しいコントローラーを作成する
// newSession はコントローラーをイベントの通知先としてセッションを生成する
func NewController(newSession SessionFactory, opts Options) (*Controller, error) {
	if newSession == nil {
		return nil, fmt.Errorf("セッションファクトリが指定されていません")
	}
	if opts.Sizes == nil {
		return nil, fmt.Errorf("サイズ選択が指定されていません")
	}
	if opts.Transform == nil {
		return nil, fmt.Errorf("画像変換が指定されていません")
	}

	flash := opts.Flash
	if flash == "" {
		flash = FlashOff
	}

	c := &Controller{
		id:                 uuid.NewString(),
		sizes:              opts.Sizes,
		transform:          opts.Transform,
		listener:           opts.Listener,
		state:              StateClosed,
		lifecycle:          LifecycleStopped,
		surfaceState:       SurfaceWaiting,
		facing:             FacingBack,
		displayOrientation: normalizeDegrees(opts.DisplayOrientation),
		viewSize:           opts.ViewSize,
		flash:              flash,
	}
	c.machine = newStateMachine(c.onTransition)
	c.session = newSession(sessionEvents{c: c})
	if c.session == nil {
		return nil, fmt.Errorf("セッションの生成に失敗しました")
	}
	c.log = opts.Logger.With().
		Str("controller", c.id).
		Str("generation", string(c.session.Generation())).
		Logger()
	c.w = newWorker()

	return c, nil
}

// ID はコントローラーの識別子を返す
func (c *Controller) ID() string {
	return c.id
}

// Generation は使用中のハードウェアAPI世代を返す
func (c *Controller) Generation() Generation {
	return c.session.Generation()
}

// Start はカメラを開く。オープン完了、失敗、または ctx の終了まで待つ
func (c *Controller) Start(ctx context.Context, facing Facing) error {
	wait := NewCompletion()
	if !c.w.post(func() { c.openCamera(facing, wait) }) {
		return ErrCanceled
	}
	return c.waitFor(ctx, "open", wait)
}

// Resume はサーフェスが利用可能ならプレビューを開始し、開始まで待つ
// 重複した開始要求や一時停止との競合による失敗はログに記録して無視する
func (c *Controller) Resume(ctx context.Context) error {
	c.shuttingDown.Store(false)

	wait := NewCompletion()
	if !c.w.post(func() { c.resumePreview(wait) }) {
		return ErrCanceled
	}

	err := c.waitFor(ctx, "preview", wait)
	if errors.Is(err, ErrStatePrecondition) {
		c.log.Debug().Err(err).Msg("プレビュー開始要求を無視しました")
		return nil
	}
	return err
}

// Pause はプレビューを停止する
// 進行中のプレビュー開始は成功として完了しなくなる
func (c *Controller) Pause() {
	c.shuttingDown.Store(true)
	if w := c.previewWait.take(); w != nil {
		w.Reject(fmt.Errorf("%w: 一時停止が要求されました", ErrStatePrecondition))
	}

	if err := c.w.run(func() {
		c.setLifecycle(LifecyclePaused)
		c.stopPreview()
		c.w.drain()
	}); err != nil {
		c.log.Debug().Err(err).Msg("一時停止を実行できませんでした")
	}
}

// Stop はカメラを解放する
func (c *Controller) Stop() {
	if w := c.openWait.take(); w != nil {
		w.Reject(ErrCameraClosed)
	}
	if w := c.previewWait.take(); w != nil {
		w.Reject(ErrCameraClosed)
	}

	if err := c.w.run(func() {
		c.setLifecycle(LifecycleStopped)
		if c.machine.can(eventStopPreview) {
			c.stopPreview()
			// 同期的に届いた停止通知を適用してから解放する
			c.w.drain()
		}
		c.closeCamera()
		c.w.drain()
	}); err != nil {
		c.log.Debug().Err(err).Msg("停止を実行できませんでした")
	}
}

// Destroy は保留中の待機を全てキャンセルし、ワーカーとセッションを破棄する
// 何度呼んでもよい
func (c *Controller) Destroy() {
	c.destroyOnce.Do(func() {
		// 先にワーカーを止め、以降のハードウェア通知を捨てる
		c.w.stop()
		if w := c.openWait.take(); w != nil {
			w.Cancel()
		}
		if w := c.previewWait.take(); w != nil {
			w.Cancel()
		}
		c.session.Destroy()
		c.log.Info().Msg("コントローラーを破棄しました")
	})
}

// SurfaceReady は描画サーフェスが利用可能になったことを通知する
// ライフサイクルが開始済みなら自動的にプレビューを再開する
func (c *Controller) SurfaceReady(surface Surface) {
	c.w.post(func() {
		c.mu.Lock()
		c.surface = surface
		c.surfaceState = SurfaceAvailable
		lifecycle := c.lifecycle
		c.mu.Unlock()

		if lifecycle == LifecycleStarted || lifecycle == LifecycleResumed {
			go func() {
				if err := c.Resume(context.Background()); err != nil {
					c.log.Debug().Err(err).Msg("サーフェス準備後の再開に失敗しました")
				}
			}()
		}
	})
}

// CapturePhoto は静止画を撮影する
// callback は回転補正後のJPEGを受け取り、ワーカー上で呼ばれる
func (c *Controller) CapturePhoto(callback func(jpeg []byte)) error {
	if callback == nil {
		return fmt.Errorf("コールバックが指定されていません")
	}
	if !c.w.post(func() {
		c.session.SetFlash(c.Flash())
		c.session.CapturePhoto(func(raw []byte) {
			c.w.emit(func() { c.deliverPhoto(raw, callback) })
		})
	}) {
		return ErrCanceled
	}
	return nil
}

// TapFocus はビュー座標 (x, y) にフォーカスを合わせる
func (c *Controller) TapFocus(x, y int) error {
	if !c.w.post(func() { c.session.TapFocus(x, y) }) {
		return ErrCanceled
	}
	return nil
}

// StartFrameTap はプレビューを維持したまま生フレームを sink へ流す
// sink はハードウェアの通知ゴルーチンから呼ばれる
func (c *Controller) StartFrameTap(sink FrameSink) error {
	if sink == nil {
		return fmt.Errorf("フレームの受け口が指定されていません")
	}
	var tapErr error
	if err := c.w.run(func() { tapErr = c.session.StartFrameTap(sink) }); err != nil {
		return err
	}
	return tapErr
}

// StopFrameTap はフレームタップを停止する
func (c *Controller) StopFrameTap() {
	_ = c.w.run(func() { c.session.StopFrameTap() })
}

// ワーカー上の処理

func (c *Controller) openCamera(facing Facing, wait *Completion) {
	c.setLifecycle(LifecycleStarted)
	if wait.Finished() {
		return
	}
	// 以前のオープン待機は無効にする
	if prev := c.openWait.replace(wait); prev != nil && prev != wait {
		prev.Cancel()
	}

	if err := c.machine.fire(eventOpen); err != nil {
		c.openWait.clear(wait)
		wait.Reject(err)
		return
	}
	c.mu.Lock()
	c.facing = facing
	c.mu.Unlock()

	if err := c.session.Open(facing); err != nil {
		c.log.Error().Err(err).Str("facing", string(facing)).Msg("カメラを開けませんでした")
		c.openWait.clear(wait)
		_ = c.machine.fire(eventClosed)
		wait.Reject(err)
		return
	}

	if err := c.w.await(wait); err != nil {
		c.log.Debug().Err(err).Msg("カメラのオープン待機が終了しました")
	}
}

func (c *Controller) resumePreview(wait *Completion) {
	c.setLifecycle(LifecycleResumed)

	c.mu.RLock()
	available := c.surfaceState == SurfaceAvailable
	c.mu.RUnlock()
	if !available {
		// サーフェスの準備ができたら SurfaceReady から再開される
		wait.Resolve()
		return
	}
	c.startPreview(wait)
}

func (c *Controller) startPreview(wait *Completion) {
	if wait.Finished() {
		return
	}
	if c.shuttingDown.Load() || c.machine.current() == StatePreviewStarted {
		c.previewWait.clear(wait)
		wait.Reject(fmt.Errorf("%w: プレビューは開始済みか停止が要求されています", ErrStatePrecondition))
		return
	}
	if !c.previewWait.arm(wait) {
		wait.Reject(fmt.Errorf("%w: プレビュー開始を待機中です", ErrStatePrecondition))
		return
	}

	c.mu.RLock()
	surface := c.surface
	attrs := c.attributes
	facing := c.facing
	display := c.displayOrientation
	view := c.viewSize
	c.mu.RUnlock()

	if surface == nil || attrs == nil {
		c.previewWait.clear(wait)
		wait.Reject(fmt.Errorf("%w: サーフェスまたはカメラ属性がありません", ErrStatePrecondition))
		return
	}
	if err := c.machine.fire(eventStartPreview); err != nil {
		c.previewWait.clear(wait)
		wait.Reject(err)
		return
	}

	previewOrientation := PreviewOrientation(attrs.SensorOrientation, display, facing)
	captureOrientation := CaptureOrientation(attrs.SensorOrientation, display, facing)

	if c.session.Generation() == GenerationModern {
		surface.SetRotation(display)
	}

	if view.Area() == 0 {
		view = surface.Size()
	}
	previewSize := c.sizes.ClosestContaining(attrs.PreviewSizes, PreviewTarget(view, previewOrientation))
	surface.SetDefaultBufferSize(previewSize)
	if isSideways(previewOrientation) {
		surface.SetSize(previewSize.Swap())
	} else {
		surface.SetSize(previewSize)
	}
	photoSize := PhotoSizeFor(previewOrientation)

	c.mu.Lock()
	c.previewOrientation = previewOrientation
	c.captureOrientation = captureOrientation
	c.previewSize = previewSize
	c.photoSize = photoSize
	c.mu.Unlock()

	c.log.Debug().
		Int("preview_orientation", previewOrientation).
		Int("capture_orientation", captureOrientation).
		Int("display_orientation", display).
		Int("sensor_orientation", attrs.SensorOrientation).
		Stringer("preview_size", previewSize).
		Stringer("photo_size", photoSize).
		Msg("プレビューを開始します")

	c.session.SetPreviewOrientation(previewOrientation)
	c.session.SetPreviewSize(previewSize)
	c.session.SetPhotoSize(photoSize)
	c.session.StartPreview(surface)

	if err := c.w.await(wait); err != nil {
		c.log.Debug().Err(err).Msg("プレビュー開始の待機が終了しました")
	}
}

func (c *Controller) stopPreview() {
	if !c.machine.can(eventStopPreview) {
		return
	}
	if err := c.machine.fire(eventStopPreview); err != nil {
		c.log.Warn().Err(err).Msg("プレビュー停止に遷移できませんでした")
		return
	}
	c.session.StopPreview()
}

func (c *Controller) closeCamera() {
	if c.machine.can(eventRelease) {
		if err := c.machine.fire(eventRelease); err != nil {
			c.log.Warn().Err(err).Msg("解放に遷移できませんでした")
		}
	}
	// 状態に関わらず解放する。解放完了は OnCameraClosed で通知される
	c.session.Release()
}

func (c *Controller) deliverPhoto(raw []byte, callback func([]byte)) {
	orientation := c.CaptureOrientation()
	out, err := c.transform.Rotate(raw, orientation)
	if err != nil {
		c.log.Warn().Err(err).Int("degrees", orientation).Msg("撮影画像の回転に失敗したため元の画像を渡します")
		out = raw
	}
	metrics.ObservePhoto(string(c.session.Generation()))
	callback(out)
}

// onTransition は状態遷移ごとに状態を記録しリスナーへ通知する
func (c *Controller) onTransition(from, to State) {
	c.mu.Lock()
	c.state = to
	l := c.listener
	c.mu.Unlock()

	metrics.ObserveTransition(string(from), string(to))
	c.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("カメラ状態が遷移しました")

	if l == nil {
		return
	}
	switch to {
	case StateOpened:
		// プレビュー失敗で戻った場合は通知しない
		if from == StateOpening {
			l.OnCameraOpened()
		}
	case StatePreviewStarted:
		l.OnPreviewStarted()
	case StatePreviewStopped:
		l.OnPreviewStopped()
	case StateClosing:
		l.OnCameraClosed()
	case StateClosed:
		// 切断による直接の遷移のみ通知する（Closing で通知済み）
		if from != StateClosing {
			l.OnCameraClosed()
		}
	}
}

// waitFor は完了ハンドル、ctx、ワーカー停止のいずれかまで待つ
func (c *Controller) waitFor(ctx context.Context, op string, wait *Completion) error {
	var err error
	select {
	case <-wait.Done():
		err = wait.Err()
	case <-ctx.Done():
		wait.Cancel()
		err = ctx.Err()
	case <-c.w.done:
		wait.Cancel()
		err = wait.Err()
	}
	metrics.ObserveCompletion(op, outcome(err))
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "resolved"
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "rejected"
	}
}

func (c *Controller) setLifecycle(l LifecycleState) {
	c.mu.Lock()
	c.lifecycle = l
	c.mu.Unlock()
}

// sessionEvents はセッションからの通知をワーカーのイベントキューへ積む
type sessionEvents struct {
	c *Controller
}

func (e sessionEvents) OnCameraOpened(attrs Attributes) {
	attrs = attrs.Clone()
	e.c.w.emit(func() { e.c.handleOpened(attrs) })
}

func (e sessionEvents) OnCameraClosed() {
	e.c.w.emit(e.c.handleClosed)
}

func (e sessionEvents) OnCameraError(err error) {
	e.c.w.emit(func() {
		e.c.log.Error().Err(err).Msg("カメラデバイスでエラーが発生しました")
	})
}

func (e sessionEvents) OnPreviewStarted() {
	e.c.w.emit(e.c.handlePreviewStarted)
}

func (e sessionEvents) OnPreviewStopped() {
	e.c.w.emit(e.c.handlePreviewStopped)
}

func (e sessionEvents) OnPreviewError(err error) {
	e.c.w.emit(func() { e.c.handlePreviewError(err) })
}

func (e sessionEvents) OnTapFocusFinish() {
	e.c.w.emit(e.c.handleTapFocusFinish)
}

func (c *Controller) handleOpened(attrs Attributes) {
	c.mu.Lock()
	c.attributes = &attrs
	c.mu.Unlock()

	if err := c.machine.fire(eventOpened); err != nil {
		c.log.Warn().Err(err).Msg("オープン通知を適用できませんでした")
	}
	if w := c.openWait.take(); w != nil {
		w.Resolve()
	}
}

func (c *Controller) handleClosed() {
	c.mu.Lock()
	c.attributes = nil
	c.mu.Unlock()

	if c.machine.can(eventClosed) {
		_ = c.machine.fire(eventClosed)
	}
	if w := c.openWait.take(); w != nil {
		w.Reject(ErrCameraClosed)
	}
	if w := c.previewWait.take(); w != nil {
		w.Reject(ErrCameraClosed)
	}
}

func (c *Controller) handlePreviewStarted() {
	if err := c.machine.fire(eventPreviewStarted); err != nil {
		c.log.Debug().Err(err).Msg("プレビュー開始通知を適用できませんでした")
	}
	if w := c.previewWait.take(); w != nil {
		w.Resolve()
	}
}

func (c *Controller) handlePreviewStopped() {
	if c.machine.can(eventPreviewStopped) {
		_ = c.machine.fire(eventPreviewStopped)
	}
}

func (c *Controller) handlePreviewError(err error) {
	c.log.Error().Err(err).Msg("プレビューの構成に失敗しました")
	if c.machine.can(eventPreviewFailed) {
		_ = c.machine.fire(eventPreviewFailed)
	}
	if w := c.previewWait.take(); w != nil {
		w.Reject(err)
	}
}

func (c *Controller) handleTapFocusFinish() {
	c.mu.RLock()
	l := c.listener
	c.mu.RUnlock()
	if l != nil {
		l.OnTapFocusFinish()
	}
}

// プロパティ

// SetListener はリスナーを設定する
func (c *Controller) SetListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

// State は現在のカメラ状態を返す
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Lifecycle は現在のライフサイクル状態を返す
func (c *Controller) Lifecycle() LifecycleState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lifecycle
}

// SurfaceState はサーフェスの準備状態を返す
func (c *Controller) SurfaceState() SurfaceState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.surfaceState
}

// Facing は最後に要求されたカメラの向きを返す
func (c *Controller) Facing() Facing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.facing
}

// Attributes はオープン中のカメラ属性を返す
func (c *Controller) Attributes() (Attributes, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.attributes == nil {
		return Attributes{}, false
	}
	return c.attributes.Clone(), true
}

// SupportedFlashes はサポートされるフラッシュモードを返す
func (c *Controller) SupportedFlashes() []Flash {
	attrs, ok := c.Attributes()
	if !ok {
		return nil
	}
	return attrs.Flashes
}

// HasFlash はオフ以外のフラッシュモードがあるかを返す
func (c *Controller) HasFlash() bool {
	for _, f := range c.SupportedFlashes() {
		if f != FlashOff {
			return true
		}
	}
	return false
}

// Flash は現在のフラッシュモードを返す
func (c *Controller) Flash() Flash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flash
}

// SetFlash はフラッシュモードを設定する。次回の撮影から有効になる
func (c *Controller) SetFlash(f Flash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flash = f
}

// DisplayOrientation はディスプレイの回転を返す
func (c *Controller) DisplayOrientation() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.displayOrientation
}

// SetDisplayOrientation はディスプレイの回転を設定する。次回のプレビュー開始から有効になる
func (c *Controller) SetDisplayOrientation(degrees int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.displayOrientation = normalizeDegrees(degrees)
}

// SetViewSize はビューの大きさを設定する
func (c *Controller) SetViewSize(size Size) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewSize = size
}

// PreviewOrientation は直近のプレビュー開始で計算した回転を返す
func (c *Controller) PreviewOrientation() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.previewOrientation
}

// CaptureOrientation は撮影画像に適用する回転を返す
func (c *Controller) CaptureOrientation() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.captureOrientation
}

// SetCaptureOrientation は撮影画像に適用する回転を上書きする
// 次回のプレビュー開始で再計算される
func (c *Controller) SetCaptureOrientation(degrees int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captureOrientation = normalizeDegrees(degrees)
}

// PreviewSize は現在のプレビューサイズを返す
func (c *Controller) PreviewSize() Size {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.previewSize
}

// SetPreviewSize はプレビューサイズを上書きしセッションへ反映する
// 次回のプレビュー開始で再計算される
func (c *Controller) SetPreviewSize(size Size) {
	c.mu.Lock()
	c.previewSize = size
	c.mu.Unlock()
	c.w.post(func() { c.session.SetPreviewSize(size) })
}

// PhotoSize は現在の撮影サイズを返す
func (c *Controller) PhotoSize() Size {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.photoSize
}

// SetPhotoSize は撮影サイズを上書きしセッションへ反映する
// 次回のプレビュー開始で固定ポリシーの値に戻る
func (c *Controller) SetPhotoSize(size Size) {
	c.mu.Lock()
	c.photoSize = size
	c.mu.Unlock()
	c.w.post(func() { c.session.SetPhotoSize(size) })
}

func normalizeDegrees(degrees int) int {
	return ((degrees % 360) + 360) % 360
}
