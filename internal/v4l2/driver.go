package v4l2

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"camkit/internal/camera"
	"camkit/internal/camera/legacy"
)

const (
	defaultFPS     = 30
	commandTimeout = 10 * time.Second

	// continuous-picture に対応するコントロール
	focusContinuousControl = "focus_automatic_continuous"
)

// ErrReleased は解放済みのデバイスを操作した
var ErrReleased = errors.New("デバイスは解放済みです")

// DeviceConfig はデバイスパスとカメラの向きの対応
type DeviceConfig struct {
	Path        string
	Facing      camera.Facing
	Orientation int
}

// Driver は V4L2 デバイスを legacy.Driver として提供する
type Driver struct {
	log       zerolog.Logger
	cmd       Commander
	discovery Discovery
	devices   []DeviceConfig
	fps       int
	hotplug   bool

	wg sync.WaitGroup
}

// Option はドライバーのオプション
type Option func(*Driver)

// WithLogger はロガーを設定する
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Driver) {
		d.log = logger
	}
}

// WithCommander はコマンド実行を差し替える
func WithCommander(cmd Commander) Option {
	return func(d *Driver) {
		d.cmd = cmd
	}
}

// WithFPS はプレビューのフレームレートを設定する
func WithFPS(fps int) Option {
	return func(d *Driver) {
		if fps > 0 {
			d.fps = fps
		}
	}
}

// WithHotplug はデバイスファイルの削除を切断として通知するかを設定する
func WithHotplug(enabled bool) Option {
	return func(d *Driver) {
		d.hotplug = enabled
	}
}

// NewDriver は新しい Driver を作成する
// devices が空ならスキャンした先頭を背面、次を前面とする
func NewDriver(discovery Discovery, devices []DeviceConfig, opts ...Option) *Driver {
	d := &Driver{
		log:       zerolog.Nop(),
		cmd:       ExecCommander{},
		discovery: discovery,
		devices:   append([]DeviceConfig(nil), devices...),
		fps:       defaultFPS,
		hotplug:   true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CameraInfos は利用可能なデバイスを返す
func (d *Driver) CameraInfos() ([]legacy.Info, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if len(d.devices) > 0 {
		var infos []legacy.Info
		for _, dev := range d.devices {
			if d.discovery.IsDeviceAvailable(ctx, dev.Path) {
				infos = append(infos, legacy.Info{ID: dev.Path, Facing: dev.Facing, Orientation: dev.Orientation})
			}
		}
		return infos, nil
	}

	paths, err := d.discovery.ScanDevices(ctx)
	if err != nil {
		return nil, err
	}
	facings := []camera.Facing{camera.FacingBack, camera.FacingFront}
	var infos []legacy.Info
	for i, path := range paths {
		if i >= len(facings) {
			break
		}
		infos = append(infos, legacy.Info{ID: path, Facing: facings[i]})
	}
	return infos, nil
}

// Open はデバイスを開く
func (d *Driver) Open(id string) (legacy.Device, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	info, err := d.discovery.GetDeviceInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(info.Resolutions) == 0 {
		return nil, fmt.Errorf("解像度を取得できませんでした: %s", id)
	}

	capturer := NewCapturer(d.cmd, id, info.Resolutions[0], d.fps)
	params := legacy.Parameters{
		PreviewSize:           info.Resolutions[0],
		PictureSize:           info.Resolutions[len(info.Resolutions)-1],
		Flash:                 camera.FlashOff,
		FocusMode:             legacy.FocusModeFixed,
		SupportedPreviewSizes: append([]camera.Size(nil), info.Resolutions...),
		SupportedPictureSizes: append([]camera.Size(nil), info.Resolutions...),
		SupportedFlashes:      []camera.Flash{camera.FlashOff},
		SupportedFocusModes:   []legacy.FocusMode{legacy.FocusModeFixed},
	}
	if capturer.HasControl(ctx, focusContinuousControl) {
		params.FocusMode = legacy.FocusModeContinuousPicture
		params.SupportedFocusModes = []legacy.FocusMode{legacy.FocusModeAuto, legacy.FocusModeContinuousPicture}
	}

	dev := &Device{
		log:      d.log.With().Str("device", id).Str("open_id", uuid.NewString()).Logger(),
		driver:   d,
		capturer: capturer,
		params:   params,
	}

	if d.hotplug {
		stop, err := WatchRemoval(id, dev.disconnected)
		if err != nil {
			d.log.Warn().Err(err).Str("device", id).Msg("切断の監視を開始できませんでした")
		} else {
			dev.stopWatch = stop
		}
	}

	dev.log.Info().Str("name", info.Name).Str("driver", info.Driver).Msg("デバイスを開きました")
	return dev, nil
}

// Close はデバイスが起動したゴルーチンの終了を待つ
func (d *Driver) Close() {
	d.wg.Wait()
}

func (d *Driver) goTracked(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

// Device は開かれた V4L2 デバイス
type Device struct {
	log       zerolog.Logger
	driver    *Driver
	capturer  *Capturer
	stopWatch func()

	mu          sync.Mutex
	params      legacy.Parameters
	orientation int
	target      camera.Surface
	previewCB   func([]byte)
	errorCB     func(error)
	latest      []byte
	latestSize  camera.Size
	cancel      context.CancelFunc
	streamDone  chan struct{}
	released    bool
}

func (d *Device) Parameters() (legacy.Parameters, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return legacy.Parameters{}, ErrReleased
	}
	return d.params, nil
}

// SetParameters はパラメーターを反映する。フォーカスモードの変更はコントロールに書き込む
func (d *Device) SetParameters(p legacy.Parameters) error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return ErrReleased
	}
	if p.PreviewSize.Area() > 0 && !containsSize(d.params.SupportedPreviewSizes, p.PreviewSize) {
		d.mu.Unlock()
		return fmt.Errorf("サポートされていないプレビューサイズ: %s", p.PreviewSize)
	}
	if p.FocusMode != "" && !d.params.SupportsFocusMode(p.FocusMode) {
		d.mu.Unlock()
		return fmt.Errorf("サポートされていないフォーカスモード: %s", p.FocusMode)
	}
	focusChanged := p.FocusMode != d.params.FocusMode

	// 対応リストはデバイス側の値を保つ
	p.SupportedPreviewSizes = d.params.SupportedPreviewSizes
	p.SupportedPictureSizes = d.params.SupportedPictureSizes
	p.SupportedFlashes = d.params.SupportedFlashes
	p.SupportedFocusModes = d.params.SupportedFocusModes
	d.params = p
	d.mu.Unlock()

	if !focusChanged || p.FocusMode == legacy.FocusModeFixed {
		return nil
	}
	value := 0
	if p.FocusMode == legacy.FocusModeContinuousPicture {
		value = 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return d.capturer.SetControls(ctx, map[string]int{focusContinuousControl: value})
}

// SetDisplayOrientation は回転を記録する。V4L2 には表示回転がないため出力は変わらない
func (d *Device) SetDisplayOrientation(degrees int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orientation = degrees
	return nil
}

func (d *Device) SetPreviewTarget(surface camera.Surface) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	d.target = surface
	return nil
}

// StartPreview は ffmpeg の MJPEG ストリームを開始する
func (d *Device) StartPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	if d.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d.cancel = cancel
	d.streamDone = done
	size := d.params.PreviewSize
	capturer := d.capturer.WithSize(size)
	if d.target != nil {
		d.target.SetDefaultBufferSize(size)
	}

	d.driver.goTracked(func() {
		err := capturer.Stream(ctx, func(frame []byte) { d.onFrame(ctx, size, frame) })

		d.mu.Lock()
		if d.streamDone == done {
			d.cancel, d.streamDone = nil, nil
		}
		d.mu.Unlock()
		cancel()
		close(done)

		if err != nil {
			d.log.Warn().Err(err).Msg("プレビューストリームが停止しました")
			d.reportError(err)
		}
	})
	d.log.Debug().Str("size", size.String()).Msg("プレビューを開始しました")
	return nil
}

func (d *Device) onFrame(ctx context.Context, size camera.Size, frame []byte) {
	d.mu.Lock()
	if ctx.Err() != nil {
		d.mu.Unlock()
		return
	}
	d.latest = frame
	d.latestSize = size
	cb := d.previewCB
	d.mu.Unlock()

	if cb != nil {
		cb(frame)
	}
}

// StopPreview はストリームを止め、ffmpeg の終了を待つ
func (d *Device) StopPreview() error {
	d.mu.Lock()
	cancel, done := d.cancel, d.streamDone
	d.cancel, d.streamDone = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// TakePicture はプレビューを止めて撮影する
// プレビューの最新フレームが撮影サイズと同じならそれを使う
func (d *Device) TakePicture(cb func(jpeg []byte, err error)) error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return ErrReleased
	}
	size := d.params.PictureSize
	var frame []byte
	if d.cancel != nil && d.latestSize == size {
		frame = d.latest
	}
	d.mu.Unlock()

	if err := d.StopPreview(); err != nil {
		return err
	}

	d.driver.goTracked(func() {
		if frame != nil {
			cb(frame, nil)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		jpeg, err := d.capturer.WithSize(size).CaptureFrameAsJPEG(ctx)
		cb(jpeg, err)
	})
	return nil
}

// AutoFocus はオートフォーカスを一度走らせる
// 固定フォーカスのデバイスでは失敗を通知する
func (d *Device) AutoFocus(cb func(success bool)) error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return ErrReleased
	}
	supported := d.params.SupportsFocusMode(legacy.FocusModeAuto)
	d.mu.Unlock()

	d.driver.goTracked(func() {
		if !supported {
			cb(false)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		// 連続AFを一度有効にして合焦させ、固定に戻す
		err := d.capturer.SetControls(ctx, map[string]int{focusContinuousControl: 1})
		if err == nil {
			err = d.capturer.SetControls(ctx, map[string]int{focusContinuousControl: 0})
		}
		if err != nil {
			d.log.Debug().Err(err).Msg("オートフォーカスに失敗しました")
		}
		cb(err == nil)
	})
	return nil
}

func (d *Device) CancelAutoFocus() error {
	return nil
}

func (d *Device) SetPreviewCallback(cb func(frame []byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.previewCB = cb
}

func (d *Device) SetErrorCallback(cb func(err error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errorCB = cb
}

// Release はストリームと切断の監視を止める
func (d *Device) Release() {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.released = true
	d.previewCB = nil
	d.errorCB = nil
	stopWatch := d.stopWatch
	d.mu.Unlock()

	_ = d.StopPreview()
	if stopWatch != nil {
		stopWatch()
	}
	d.log.Info().Msg("デバイスを解放しました")
}

func (d *Device) disconnected() {
	d.log.Warn().Msg("デバイスファイルが削除されました")
	d.reportError(legacy.ErrDisconnected)
}

func (d *Device) reportError(err error) {
	d.mu.Lock()
	cb := d.errorCB
	d.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func containsSize(sizes []camera.Size, size camera.Size) bool {
	for _, s := range sizes {
		if s == size {
			return true
		}
	}
	return false
}
