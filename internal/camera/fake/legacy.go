package fake

import (
	"fmt"
	"sync"

	"camkit/internal/camera"
	"camkit/internal/camera/legacy"
)

// LegacyDriver はインメモリの legacy.Driver
type LegacyDriver struct {
	d *dispatcher

	mu      sync.Mutex
	infos   []legacy.Info
	params  map[string]legacy.Parameters
	devices map[string]*LegacyDevice
	seq     int

	// OpenErr が設定されていれば Open が失敗する
	OpenErr error
	// ParametersErr が設定されていれば Parameters が失敗する
	ParametersErr error
	// ParametersGate が設定されていれば Parameters はそれが閉じるまで戻らない
	ParametersGate chan struct{}

	autoFocusResult bool
}

// NewLegacyDriver は空の LegacyDriver を作成する。使用後は Close する
func NewLegacyDriver() *LegacyDriver {
	return &LegacyDriver{
		d:       newDispatcher(),
		params:  make(map[string]legacy.Parameters),
		devices: make(map[string]*LegacyDevice),
	}
}

// AddCamera はカメラを登録する
func (l *LegacyDriver) AddCamera(info legacy.Info, params legacy.Parameters) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, info)
	l.params[info.ID] = params
}

// Sync はこれまでに発生したコールバックの完了を待つ
func (l *LegacyDriver) Sync() {
	l.d.sync()
}

// Close はコールバック用のゴルーチンを停止する
func (l *LegacyDriver) Close() {
	l.d.close()
}

func (l *LegacyDriver) CameraInfos() ([]legacy.Info, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]legacy.Info(nil), l.infos...), nil
}

func (l *LegacyDriver) Open(id string) (legacy.Device, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.OpenErr != nil {
		return nil, l.OpenErr
	}
	params, ok := l.params[id]
	if !ok {
		return nil, fmt.Errorf("fake: カメラ %s は存在しません", id)
	}
	dev := &LegacyDevice{driver: l, id: id, params: params, AutoFocusResult: l.autoFocusResult}
	l.devices[id] = dev
	return dev, nil
}

// Device は最後に開かれたデバイスを返す
func (l *LegacyDriver) Device(id string) *LegacyDevice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.devices[id]
}

// Tick はプレビュー中の全デバイスに合成フレームを一枚流す
func (l *LegacyDriver) Tick() {
	l.mu.Lock()
	l.seq++
	seq := l.seq
	devices := make([]*LegacyDevice, 0, len(l.devices))
	for _, d := range l.devices {
		devices = append(devices, d)
	}
	l.mu.Unlock()

	for _, d := range devices {
		if d.Previewing() {
			d.EmitFrame(SyntheticJPEG(d.Current().PreviewSize, seq))
		}
	}
}

// LegacyDevice はインメモリの legacy.Device
type LegacyDevice struct {
	driver *LegacyDriver
	id     string

	mu          sync.Mutex
	params      legacy.Parameters
	orientation int
	target      camera.Surface
	previewing  bool
	released    bool
	previewCB   func([]byte)
	errorCB     func(error)
	pictures    int
	autoFocuses int

	// AutoFocusResult はオートフォーカスの結果
	AutoFocusResult bool
}

func (d *LegacyDevice) Parameters() (legacy.Parameters, error) {
	d.driver.mu.Lock()
	gate, paramsErr := d.driver.ParametersGate, d.driver.ParametersErr
	d.driver.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if paramsErr != nil {
		return legacy.Parameters{}, paramsErr
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return legacy.Parameters{}, ErrClosed
	}
	return d.params, nil
}

// Current は現在のパラメーターを返す（解放後も取得できる）
func (d *LegacyDevice) Current() legacy.Parameters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params
}

func (d *LegacyDevice) SetParameters(p legacy.Parameters) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrClosed
	}
	d.params = p
	return nil
}

func (d *LegacyDevice) SetDisplayOrientation(degrees int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orientation = degrees
	return nil
}

// DisplayOrientation は設定された表示の回転を返す
func (d *LegacyDevice) DisplayOrientation() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.orientation
}

func (d *LegacyDevice) SetPreviewTarget(surface camera.Surface) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.target = surface
	return nil
}

func (d *LegacyDevice) StartPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrClosed
	}
	d.previewing = true
	return nil
}

func (d *LegacyDevice) StopPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.previewing = false
	return nil
}

// Previewing はプレビュー中かを返す
func (d *LegacyDevice) Previewing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.previewing
}

// TakePicture は撮影サイズの合成JPEGを非同期に返し、プレビューを止める
func (d *LegacyDevice) TakePicture(cb func(jpeg []byte, err error)) error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return ErrClosed
	}
	d.previewing = false
	d.pictures++
	size := d.params.PictureSize
	seq := d.pictures
	d.mu.Unlock()

	d.driver.d.post(func() { cb(SyntheticJPEG(size, seq), nil) })
	return nil
}

// Pictures は撮影回数を返す
func (d *LegacyDevice) Pictures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pictures
}

func (d *LegacyDevice) AutoFocus(cb func(success bool)) error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return ErrClosed
	}
	d.autoFocuses++
	result := d.AutoFocusResult
	d.mu.Unlock()

	d.driver.d.post(func() { cb(result) })
	return nil
}

// AutoFocuses はオートフォーカスの回数を返す
func (d *LegacyDevice) AutoFocuses() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.autoFocuses
}

func (d *LegacyDevice) CancelAutoFocus() error {
	return nil
}

func (d *LegacyDevice) SetPreviewCallback(cb func(frame []byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.previewCB = cb
}

func (d *LegacyDevice) SetErrorCallback(cb func(err error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errorCB = cb
}

func (d *LegacyDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
	d.previewing = false
	d.previewCB = nil
}

// Released は解放されたかを返す
func (d *LegacyDevice) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// EmitFrame はプレビュー中ならフレームを非同期に通知する
func (d *LegacyDevice) EmitFrame(frame []byte) {
	d.mu.Lock()
	cb := d.previewCB
	previewing := d.previewing
	d.mu.Unlock()
	if cb == nil || !previewing {
		return
	}
	d.driver.d.post(func() { cb(frame) })
}

// Fail はエラーコールバックへ err を通知する
func (d *LegacyDevice) Fail(err error) {
	d.mu.Lock()
	cb := d.errorCB
	d.mu.Unlock()
	if cb != nil {
		d.driver.d.post(func() { cb(err) })
	}
}

// Disconnect は切断を通知する
func (d *LegacyDevice) Disconnect() {
	d.Fail(legacy.ErrDisconnected)
}

var (
	_ legacy.Driver = (*LegacyDriver)(nil)
	_ legacy.Device = (*LegacyDevice)(nil)
)
