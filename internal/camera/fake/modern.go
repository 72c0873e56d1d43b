package fake

import (
	"errors"
	"fmt"
	"sync"

	"camkit/internal/camera"
	"camkit/internal/camera/modern"
)

// ErrClosed は閉じたハンドルへの操作
var ErrClosed = errors.New("fake: 閉じられたハンドルです")

// Manager はインメモリの modern.DeviceManager
type Manager struct {
	d *dispatcher

	mu      sync.Mutex
	ids     []string
	chars   map[string]modern.Characteristics
	devices map[string]*Device
	readers []*ImageReader
	seq     int

	// OpenErr が設定されていれば OpenCamera が失敗する
	OpenErr error
	// HoldOpen が真なら OpenCamera は完了を通知しない（Complete で通知する）
	HoldOpen bool
	// ConfigureErr が設定されていればセッション構成が失敗として通知される
	ConfigureErr error

	held map[string]modern.DeviceStateCallback
}

// NewManager は空の Manager を作成する。使用後は Close する
func NewManager() *Manager {
	return &Manager{
		d:       newDispatcher(),
		chars:   make(map[string]modern.Characteristics),
		devices: make(map[string]*Device),
		held:    make(map[string]modern.DeviceStateCallback),
	}
}

// AddCamera はカメラを登録する
func (m *Manager) AddCamera(id string, c modern.Characteristics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chars[id]; !ok {
		m.ids = append(m.ids, id)
	}
	m.chars[id] = c
}

// Sync はこれまでに発生したコールバックの完了を待つ
func (m *Manager) Sync() {
	m.d.sync()
}

// Close はコールバック用のゴルーチンを停止する
func (m *Manager) Close() {
	m.d.close()
}

func (m *Manager) CameraIDs() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ids...), nil
}

func (m *Manager) Characteristics(id string) (modern.Characteristics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chars[id]
	if !ok {
		return modern.Characteristics{}, fmt.Errorf("fake: カメラ %s は存在しません", id)
	}
	return c, nil
}

func (m *Manager) OpenCamera(id string, cb modern.DeviceStateCallback) error {
	m.mu.Lock()
	if m.OpenErr != nil {
		m.mu.Unlock()
		return m.OpenErr
	}
	if _, ok := m.chars[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("fake: カメラ %s は存在しません", id)
	}
	dev := &Device{m: m, id: id, cb: cb}
	m.devices[id] = dev
	if m.HoldOpen {
		m.held[id] = cb
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.d.post(func() { cb.OnOpened(dev) })
	return nil
}

// Complete は HoldOpen で保留したオープンを完了させる
func (m *Manager) Complete(id string) {
	m.mu.Lock()
	cb, ok := m.held[id]
	delete(m.held, id)
	dev := m.devices[id]
	m.mu.Unlock()
	if ok {
		m.d.post(func() { cb.OnOpened(dev) })
	}
}

// Disconnect はデバイスの切断を通知する
func (m *Manager) Disconnect(id string) {
	m.mu.Lock()
	dev := m.devices[id]
	m.mu.Unlock()
	if dev != nil && dev.cb.OnDisconnected != nil {
		m.d.post(func() { dev.cb.OnDisconnected(dev) })
	}
}

// Fail はデバイスのエラーを通知する
func (m *Manager) Fail(id string, err error) {
	m.mu.Lock()
	dev := m.devices[id]
	m.mu.Unlock()
	if dev != nil && dev.cb.OnError != nil {
		m.d.post(func() { dev.cb.OnError(dev, err) })
	}
}

// Device は最後に開かれたデバイスを返す
func (m *Manager) Device(id string) *Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices[id]
}

// Readers は作成された全てのリーダーを返す
func (m *Manager) Readers() []*ImageReader {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ImageReader(nil), m.readers...)
}

func (m *Manager) NewImageReader(size camera.Size, format modern.ImageFormat, maxImages int) (modern.ImageReader, error) {
	r := &ImageReader{m: m, size: size, format: format, maxImages: maxImages}
	m.mu.Lock()
	m.readers = append(m.readers, r)
	m.mu.Unlock()
	return r, nil
}

// Tick は開いている全セッションのリピーティングリクエストを一回分進める
func (m *Manager) Tick() {
	m.mu.Lock()
	devices := make([]*Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, d)
	}
	m.mu.Unlock()

	for _, d := range devices {
		if cs := d.Session(); cs != nil {
			cs.Deliver(ResultFor(cs.RepeatingRequest()))
		}
	}
}

func (m *Manager) nextSeq() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq
}

// ResultFor はリクエストのトリガーに応じたもっともらしい結果を返す
func ResultFor(req *modern.CaptureRequest) modern.CaptureResult {
	result := modern.CaptureResult{
		AFState: modern.AFStatePassiveFocused,
		AEState: modern.AEStateConverged,
	}
	if req == nil {
		return result
	}
	if req.AFTrigger == modern.AFTriggerStart {
		result.AFState = modern.AFStateFocusedLocked
	}
	if req.AEPrecaptureTrigger == modern.AEPrecaptureTriggerStart {
		result.AEState = modern.AEStatePrecapture
	}
	return result
}

// Device はインメモリの modern.Device
type Device struct {
	m  *Manager
	id string
	cb modern.DeviceStateCallback

	mu       sync.Mutex
	closed   bool
	sessions []*CaptureSession
}

func (d *Device) ID() string {
	return d.id
}

func (d *Device) CreateCaptureSession(outputs []modern.Target, cb func(modern.CaptureSession, error)) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	cs := &CaptureSession{m: d.m, outputs: append([]modern.Target(nil), outputs...)}
	d.sessions = append(d.sessions, cs)
	d.mu.Unlock()

	d.m.mu.Lock()
	configureErr := d.m.ConfigureErr
	d.m.mu.Unlock()

	d.m.d.post(func() {
		if configureErr != nil {
			cb(nil, configureErr)
			return
		}
		cb(cs, nil)
	})
	return nil
}

func (d *Device) CreateCaptureRequest(template modern.Template) (*modern.CaptureRequest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return &modern.CaptureRequest{Template: template}, nil
}

func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
}

// Closed は閉じられたかを返す
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Session は最後に作成された閉じていないセッションを返す
func (d *Device) Session() *CaptureSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || len(d.sessions) == 0 {
		return nil
	}
	cs := d.sessions[len(d.sessions)-1]
	if cs.Closed() {
		return nil
	}
	return cs
}

// Capture は一回分のキャプチャ要求
type Capture struct {
	Request  *modern.CaptureRequest
	Callback modern.CaptureCallback
}

// CaptureSession はインメモリの modern.CaptureSession
type CaptureSession struct {
	m       *Manager
	outputs []modern.Target

	mu          sync.Mutex
	repeating   *modern.CaptureRequest
	repeatingCB modern.CaptureCallback
	history     []Capture
	captures    []Capture
	aborted     int
	closed      bool
}

func (s *CaptureSession) SetRepeatingRequest(req *modern.CaptureRequest, cb modern.CaptureCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.repeating = req
	s.repeatingCB = cb
	s.history = append(s.history, Capture{Request: req, Callback: cb})
	return nil
}

// Capture は要求を記録し、結果と出力先リーダーへの画像を非同期に届ける
func (s *CaptureSession) Capture(req *modern.CaptureRequest, cb modern.CaptureCallback) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.captures = append(s.captures, Capture{Request: req, Callback: cb})
	s.mu.Unlock()

	seq := s.m.nextSeq()
	s.m.d.post(func() {
		for _, t := range req.Targets {
			if r, ok := t.(*ImageReader); ok {
				r.pushSynthetic(seq)
			}
		}
		if cb != nil {
			cb.OnCaptureResult(req, ResultFor(req))
		}
	})
	return nil
}

func (s *CaptureSession) StopRepeating() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.repeating = nil
	s.repeatingCB = nil
	return nil
}

func (s *CaptureSession) AbortCaptures() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.aborted++
	return nil
}

func (s *CaptureSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.repeating = nil
	s.repeatingCB = nil
}

// Closed は閉じられたかを返す
func (s *CaptureSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Outputs はセッション構成時の出力先を返す
func (s *CaptureSession) Outputs() []modern.Target {
	return append([]modern.Target(nil), s.outputs...)
}

// Repeating は現在のリピーティングリクエストと結果ハンドラを返す
func (s *CaptureSession) Repeating() (*modern.CaptureRequest, modern.CaptureCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repeating, s.repeatingCB
}

// RepeatingRequest は現在のリピーティングリクエストを返す
func (s *CaptureSession) RepeatingRequest() *modern.CaptureRequest {
	req, _ := s.Repeating()
	return req
}

// History はこれまでに設定されたリピーティングリクエストを返す
func (s *CaptureSession) History() []Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Capture(nil), s.history...)
}

// Captures はこれまでの一回分の要求を返す
func (s *CaptureSession) Captures() []Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Capture(nil), s.captures...)
}

// Deliver はリピーティングリクエストの結果を非同期に届ける
// 出力先のリーダーには合成画像を積む
func (s *CaptureSession) Deliver(result modern.CaptureResult) {
	s.mu.Lock()
	req, cb := s.repeating, s.repeatingCB
	s.mu.Unlock()
	if req == nil {
		return
	}

	seq := s.m.nextSeq()
	s.m.d.post(func() {
		if !result.Partial {
			for _, t := range req.Targets {
				if r, ok := t.(*ImageReader); ok {
					r.pushSynthetic(seq)
				}
			}
		}
		if cb != nil {
			cb.OnCaptureResult(req, result)
		}
	})
}

// ImageReader はインメモリの modern.ImageReader
type ImageReader struct {
	m         *Manager
	size      camera.Size
	format    modern.ImageFormat
	maxImages int

	mu       sync.Mutex
	images   []*Image
	listener func(modern.ImageReader)
	closed   bool
}

func (r *ImageReader) Target() modern.Target {
	return r
}

// Size はリーダーの大きさを返す
func (r *ImageReader) Size() camera.Size {
	return r.size
}

// Format はリーダーのフォーマットを返す
func (r *ImageReader) Format() modern.ImageFormat {
	return r.format
}

func (r *ImageReader) AcquireLatestImage() (modern.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if len(r.images) == 0 {
		return nil, nil
	}
	latest := r.images[len(r.images)-1]
	for _, img := range r.images[:len(r.images)-1] {
		img.Close()
	}
	r.images = nil
	return latest, nil
}

func (r *ImageReader) SetOnImageAvailable(fn func(modern.ImageReader)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = fn
}

func (r *ImageReader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.images = nil
	r.listener = nil
}

// Closed は閉じられたかを返す
func (r *ImageReader) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Push は画像を積み、リスナーへ非同期に通知する
func (r *ImageReader) Push(planes ...[]byte) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.images = append(r.images, &Image{format: r.format, planes: planes})
	if r.maxImages > 0 && len(r.images) > r.maxImages {
		r.images = r.images[len(r.images)-r.maxImages:]
	}
	listener := r.listener
	r.mu.Unlock()

	if listener != nil {
		r.m.d.post(func() { listener(r) })
	}
}

func (r *ImageReader) pushSynthetic(seq int) {
	switch r.format {
	case modern.FormatJPEG:
		r.Push(SyntheticJPEG(r.size, seq))
	case modern.FormatYUV420888:
		r.Push(SyntheticYUV(r.size, seq)...)
	}
}

// Image はインメモリの modern.Image
type Image struct {
	format modern.ImageFormat
	planes [][]byte

	mu     sync.Mutex
	closed bool
}

// NewImage は画像を作成する
func NewImage(format modern.ImageFormat, planes ...[]byte) *Image {
	return &Image{format: format, planes: planes}
}

func (i *Image) Format() modern.ImageFormat {
	return i.format
}

func (i *Image) Planes() [][]byte {
	return i.planes
}

func (i *Image) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
}

// Closed は閉じられたかを返す
func (i *Image) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

var (
	_ modern.DeviceManager  = (*Manager)(nil)
	_ modern.Device         = (*Device)(nil)
	_ modern.CaptureSession = (*CaptureSession)(nil)
	_ modern.ImageReader    = (*ImageReader)(nil)
	_ modern.Image          = (*Image)(nil)
)
