package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// scriptedSession はイベントを同期的に通知するテスト用セッション
type scriptedSession struct {
	mu     sync.Mutex
	events Events
	gen    Generation
	attrs  Attributes

	openErr     error
	holdOpen    bool // Open の完了を通知しない
	holdPreview bool // 最初のフレームを通知しない
	tapErr      error
	photo       []byte

	calls              []string
	previewOrientation int
	previewSize        Size
	photoSize          Size
	flash              Flash
	tapX, tapY         int
}

func (s *scriptedSession) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *scriptedSession) count(call string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (s *scriptedSession) Generation() Generation { return s.gen }

func (s *scriptedSession) Open(facing Facing) error {
	s.record("open")
	if s.openErr != nil {
		return s.openErr
	}
	if !s.holdOpen {
		s.events.OnCameraOpened(s.attrs)
	}
	return nil
}

func (s *scriptedSession) Release() {
	s.record("release")
	s.events.OnCameraClosed()
}

func (s *scriptedSession) Destroy() { s.record("destroy") }

func (s *scriptedSession) SetPreviewOrientation(degrees int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previewOrientation = degrees
}

func (s *scriptedSession) SetPreviewSize(size Size) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previewSize = size
}

func (s *scriptedSession) SetPhotoSize(size Size) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photoSize = size
}

func (s *scriptedSession) SetFlash(flash Flash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flash = flash
}

func (s *scriptedSession) StartPreview(surface Surface) {
	s.record("start_preview")
	s.mu.Lock()
	hold := s.holdPreview
	s.mu.Unlock()
	if !hold {
		s.events.OnPreviewStarted()
	}
}

func (s *scriptedSession) setHoldPreview(hold bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdPreview = hold
}

func (s *scriptedSession) StopPreview() {
	s.record("stop_preview")
	s.events.OnPreviewStopped()
}

func (s *scriptedSession) CapturePhoto(callback func(jpeg []byte)) {
	s.record("capture")
	callback(s.photo)
}

func (s *scriptedSession) TapFocus(x, y int) {
	s.mu.Lock()
	s.tapX, s.tapY = x, y
	s.mu.Unlock()
	s.record("tap_focus")
	s.events.OnTapFocusFinish()
}

func (s *scriptedSession) StartFrameTap(sink FrameSink) error {
	s.record("start_frame_tap")
	return s.tapErr
}

func (s *scriptedSession) StopFrameTap() { s.record("stop_frame_tap") }

// firstContaining は target を内包する最初のサイズを選ぶ
type firstContaining struct{}

func (firstContaining) ClosestContaining(sizes []Size, target Size) Size {
	for _, s := range sizes {
		if s.Contains(target) {
			return s
		}
	}
	return target
}

// recordingTransform は回転角を先頭バイトに付けて返す
type recordingTransform struct {
	err error
}

func (r recordingTransform) Rotate(jpeg []byte, degrees int) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return append([]byte{byte(degrees / 90)}, jpeg...), nil
}

type recordingListener struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingListener) add(ev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *recordingListener) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *recordingListener) OnCameraOpened()   { l.add("opened") }
func (l *recordingListener) OnCameraClosed()   { l.add("closed") }
func (l *recordingListener) OnPreviewStarted() { l.add("preview_started") }
func (l *recordingListener) OnPreviewStopped() { l.add("preview_stopped") }
func (l *recordingListener) OnTapFocusFinish() { l.add("tap_focus_finish") }

func backAttributes() Attributes {
	return Attributes{
		Facing:            FacingBack,
		SensorOrientation: 90,
		PreviewSizes:      []Size{{Width: 640, Height: 480}, {Width: 1920, Height: 1080}, {Width: 3264, Height: 1840}},
		PhotoSizes:        []Size{{Width: 3264, Height: 1840}},
		Flashes:           []Flash{FlashOff, FlashOn, FlashAuto},
	}
}

func newTestController(t *testing.T, session *scriptedSession, opts Options) (*Controller, *recordingListener) {
	t.Helper()

	if session.gen == "" {
		session.gen = GenerationModern
	}
	listener := &recordingListener{}
	opts.Logger = zerolog.Nop()
	opts.Listener = listener
	if opts.Sizes == nil {
		opts.Sizes = firstContaining{}
	}
	if opts.Transform == nil {
		opts.Transform = recordingTransform{}
	}

	c, err := NewController(func(events Events) Session {
		session.events = events
		return session
	}, opts)
	require.NoError(t, err)
	t.Cleanup(c.Destroy)
	return c, listener
}

func TestNewController_RequiresCollaborators(t *testing.T) {
	factory := func(Events) Session { return &scriptedSession{} }

	_, err := NewController(nil, Options{Sizes: firstContaining{}, Transform: recordingTransform{}})
	assert.Error(t, err)
	_, err = NewController(factory, Options{Transform: recordingTransform{}})
	assert.Error(t, err)
	_, err = NewController(factory, Options{Sizes: firstContaining{}})
	assert.Error(t, err)
}

func TestController_FullCycleNotifiesOncePerEdge(t *testing.T) {
	session := &scriptedSession{attrs: backAttributes()}
	c, listener := newTestController(t, session, Options{ViewSize: Size{Width: 1080, Height: 1920}})
	ctx := context.Background()

	c.SurfaceReady(NewMemorySurface(Size{Width: 1080, Height: 1920}))
	require.NoError(t, c.Start(ctx, FacingBack))
	assert.Equal(t, StateOpened, c.State())
	assert.Equal(t, LifecycleStarted, c.Lifecycle())

	require.NoError(t, c.Resume(ctx))
	assert.Equal(t, StatePreviewStarted, c.State())
	assert.Equal(t, SurfaceAvailable, c.SurfaceState())

	c.Pause()
	assert.Equal(t, StatePreviewStopped, c.State())
	assert.Equal(t, LifecyclePaused, c.Lifecycle())

	require.NoError(t, c.Resume(ctx))
	assert.Equal(t, StatePreviewStarted, c.State())

	c.Stop()
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, LifecycleStopped, c.Lifecycle())

	assert.Equal(t, []string{
		"opened",
		"preview_started",
		"preview_stopped",
		"preview_started",
		"preview_stopped",
		"closed",
	}, listener.snapshot())

	_, ok := c.Attributes()
	assert.False(t, ok, "attributes should be cleared after close")
}

func TestController_DuplicateStartPreviewIsRejected(t *testing.T) {
	session := &scriptedSession{attrs: backAttributes()}
	c, listener := newTestController(t, session, Options{})
	ctx := context.Background()

	c.SurfaceReady(NewMemorySurface(Size{Width: 1080, Height: 1920}))
	require.NoError(t, c.Start(ctx, FacingBack))
	require.NoError(t, c.Resume(ctx))

	// 公開APIでは握りつぶされる
	require.NoError(t, c.Resume(ctx))
	assert.Equal(t, 1, session.count("start_preview"))

	// 内部では前提条件エラーになり、状態は変わらない
	var startErr error
	require.NoError(t, c.w.run(func() {
		wait := NewCompletion()
		c.startPreview(wait)
		startErr = wait.Err()
	}))
	assert.ErrorIs(t, startErr, ErrStatePrecondition)
	assert.Equal(t, StatePreviewStarted, c.State())
	assert.Nil(t, c.previewWait.take(), "slot should be cleared")
	assert.Equal(t, 1, session.count("start_preview"))
	assert.Equal(t, []string{"opened", "preview_started"}, listener.snapshot())
}

func TestController_DestroyCancelsPendingOpen(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	session := &scriptedSession{attrs: backAttributes(), holdOpen: true, gen: GenerationModern}
	listener := &recordingListener{}
	c, err := NewController(func(events Events) Session {
		session.events = events
		return session
	}, Options{Logger: zerolog.Nop(), Sizes: firstContaining{}, Transform: recordingTransform{}, Listener: listener})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(context.Background(), FacingBack) }()

	require.Eventually(t, func() bool { return session.count("open") == 1 }, time.Second, time.Millisecond)
	c.Destroy()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCanceled)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Destroy")
	}

	// 破棄後に届いたオープン通知は適用されない
	session.events.OnCameraOpened(session.attrs)
	assert.Empty(t, listener.snapshot())
	assert.Equal(t, StateOpening, c.State())
	assert.Equal(t, 1, session.count("destroy"))

	// 二度目の Destroy は何もしない
	c.Destroy()
	assert.Equal(t, 1, session.count("destroy"))
}

func TestController_DestroyStopsWorkerBeforeCancellingWaits(t *testing.T) {
	session := &scriptedSession{attrs: backAttributes(), holdOpen: true}
	c, listener := newTestController(t, session, Options{})

	go func() { _ = c.Start(context.Background(), FacingBack) }()

	var wait *Completion
	require.Eventually(t, func() bool {
		c.openWait.mu.Lock()
		defer c.openWait.mu.Unlock()
		wait = c.openWait.c
		return wait != nil
	}, time.Second, time.Millisecond)

	// 待機がキャンセルされた直後に届くオープン通知も受け付けない
	accepted := make(chan bool, 1)
	go func() {
		<-wait.Done()
		accepted <- c.w.emit(func() { c.handleOpened(session.attrs) })
	}()

	c.Destroy()
	select {
	case ok := <-accepted:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("open wait was not cancelled")
	}
	assert.ErrorIs(t, wait.Err(), ErrCanceled)
	assert.Empty(t, listener.snapshot())
	assert.Equal(t, StateOpening, c.State())
}

func TestController_ResumeAfterPreviewConfigurationFailure(t *testing.T) {
	session := &scriptedSession{attrs: backAttributes(), holdPreview: true}
	c, listener := newTestController(t, session, Options{})
	ctx := context.Background()

	c.SurfaceReady(NewMemorySurface(Size{Width: 1080, Height: 1920}))
	require.NoError(t, c.Start(ctx, FacingBack))

	errCh := make(chan error, 1)
	go func() { errCh <- c.Resume(ctx) }()
	require.Eventually(t, func() bool { return session.count("start_preview") == 1 }, time.Second, time.Millisecond)

	session.events.OnPreviewError(fmt.Errorf("%w: 出力を構成できません", ErrSessionConfiguration))
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSessionConfiguration)
	case <-time.After(time.Second):
		t.Fatal("Resume did not return after the configuration failure")
	}
	assert.Equal(t, StateOpened, c.State())

	// 再度の Resume でプレビューが構成し直される
	session.setHoldPreview(false)
	require.NoError(t, c.Resume(ctx))
	assert.Equal(t, StatePreviewStarted, c.State())
	assert.Equal(t, 2, session.count("start_preview"))
	assert.Equal(t, []string{"opened", "preview_started"}, listener.snapshot())
}

func TestController_StartContextTimeout(t *testing.T) {
	session := &scriptedSession{attrs: backAttributes(), holdOpen: true}
	c, listener := newTestController(t, session, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Start(ctx, FacingBack)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// 開きかけのデバイスも Stop で解放できる
	c.Stop()
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 1, session.count("release"))
	assert.Equal(t, []string{"closed"}, listener.snapshot())
}

func TestController_StartDeviceUnavailable(t *testing.T) {
	session := &scriptedSession{openErr: fmt.Errorf("向き front: %w", ErrDeviceUnavailable)}
	c, listener := newTestController(t, session, Options{})

	err := c.Start(context.Background(), FacingFront)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, FacingFront, c.Facing())
	assert.Equal(t, []string{"closed"}, listener.snapshot())
}

func TestController_StartTwiceIsPrecondition(t *testing.T) {
	session := &scriptedSession{attrs: backAttributes()}
	c, _ := newTestController(t, session, Options{})

	require.NoError(t, c.Start(context.Background(), FacingBack))
	err := c.Start(context.Background(), FacingBack)
	assert.ErrorIs(t, err, ErrStatePrecondition)
	assert.Equal(t, StateOpened, c.State())
	assert.Equal(t, 1, session.count("open"))
}

func TestController_PreviewGeometry(t *testing.T) {
	tests := []struct {
		name               string
		facing             Facing
		display            int
		view               Size
		wantPreview        int
		wantCapture        int
		wantPhoto          Size
		wantPreviewSize    Size
		wantSurfaceLogical Size
	}{
		{
			name:               "back sideways",
			facing:             FacingBack,
			display:            0,
			view:               Size{Width: 1080, Height: 1920},
			wantPreview:        90,
			wantCapture:        90,
			wantPhoto:          Size{Width: 1840, Height: 3264},
			wantPreviewSize:    Size{Width: 1920, Height: 1080},
			wantSurfaceLogical: Size{Width: 1080, Height: 1920},
		},
		{
			name:               "front sideways",
			facing:             FacingFront,
			display:            0,
			view:               Size{Width: 1080, Height: 1920},
			wantPreview:        270,
			wantCapture:        90,
			wantPhoto:          Size{Width: 1840, Height: 3264},
			wantPreviewSize:    Size{Width: 1920, Height: 1080},
			wantSurfaceLogical: Size{Width: 1080, Height: 1920},
		},
		{
			name:               "back landscape display",
			facing:             FacingBack,
			display:            90,
			view:               Size{Width: 1920, Height: 1080},
			wantPreview:        0,
			wantCapture:        0,
			wantPhoto:          Size{Width: 3264, Height: 1840},
			wantPreviewSize:    Size{Width: 1920, Height: 1080},
			wantSurfaceLogical: Size{Width: 1920, Height: 1080},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := backAttributes()
			attrs.Facing = tt.facing
			session := &scriptedSession{attrs: attrs}
			c, _ := newTestController(t, session, Options{
				DisplayOrientation: tt.display,
				ViewSize:           tt.view,
			})
			surface := NewMemorySurface(tt.view)
			ctx := context.Background()

			c.SurfaceReady(surface)
			require.NoError(t, c.Start(ctx, tt.facing))
			require.NoError(t, c.Resume(ctx))

			assert.Equal(t, tt.wantPreview, c.PreviewOrientation())
			assert.Equal(t, tt.wantCapture, c.CaptureOrientation())
			assert.Equal(t, tt.wantPhoto, c.PhotoSize())
			assert.Equal(t, tt.wantPreviewSize, c.PreviewSize())

			assert.Equal(t, tt.wantPreviewSize, surface.BufferSize())
			assert.Equal(t, tt.wantSurfaceLogical, surface.Size())
			assert.Equal(t, tt.display, surface.Rotation())

			session.mu.Lock()
			defer session.mu.Unlock()
			assert.Equal(t, tt.wantPreview, session.previewOrientation)
			assert.Equal(t, tt.wantPreviewSize, session.previewSize)
			assert.Equal(t, tt.wantPhoto, session.photoSize)
		})
	}
}

func TestController_LegacySkipsSurfaceRotation(t *testing.T) {
	session := &scriptedSession{attrs: backAttributes(), gen: GenerationLegacy}
	c, _ := newTestController(t, session, Options{DisplayOrientation: 180})
	surface := NewMemorySurface(Size{Width: 1080, Height: 1920})
	surface.SetRotation(0)
	ctx := context.Background()

	c.SurfaceReady(surface)
	require.NoError(t, c.Start(ctx, FacingBack))
	require.NoError(t, c.Resume(ctx))

	assert.Equal(t, 0, surface.Rotation())
	assert.Equal(t, GenerationLegacy, c.Generation())
}

func TestController_PauseRejectsPendingPreview(t *testing.T) {
	session := &scriptedSession{attrs: backAttributes(), holdPreview: true}
	c, listener := newTestController(t, session, Options{})
	ctx := context.Background()

	c.SurfaceReady(NewMemorySurface(Size{Width: 1080, Height: 1920}))
	require.NoError(t, c.Start(ctx, FacingBack))

	errCh := make(chan error, 1)
	go func() { errCh <- c.Resume(ctx) }()
	require.Eventually(t, func() bool { return session.count("start_preview") == 1 }, time.Second, time.Millisecond)

	c.Pause()

	select {
	case err := <-errCh:
		assert.NoError(t, err, "rejection by pause is swallowed")
	case <-time.After(time.Second):
		t.Fatal("Resume did not return after Pause")
	}
	assert.Equal(t, StatePreviewStopped, c.State())
	assert.Equal(t, 1, session.count("stop_preview"))
	assert.Equal(t, []string{"opened", "preview_stopped"}, listener.snapshot())

	// 遅れて届いた最初のフレームは無視される
	session.events.OnPreviewStarted()
	require.NoError(t, c.w.run(func() {}))
	assert.Equal(t, StatePreviewStopped, c.State())
}

func TestController_ResumeWithoutSurface(t *testing.T) {
	session := &scriptedSession{attrs: backAttributes()}
	c, _ := newTestController(t, session, Options{})
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, FacingBack))
	require.NoError(t, c.Resume(ctx))
	assert.Equal(t, StateOpened, c.State())
	assert.Equal(t, 0, session.count("start_preview"))

	// サーフェスが届くと自動で再開する
	c.SurfaceReady(NewMemorySurface(Size{Width: 1080, Height: 1920}))
	require.Eventually(t, func() bool { return c.State() == StatePreviewStarted }, time.Second, time.Millisecond)
}

func TestController_StopFromPreviewWalksThroughStopped(t *testing.T) {
	session := &scriptedSession{attrs: backAttributes()}
	c, _ := newTestController(t, session, Options{})
	ctx := context.Background()

	var states []State
	var mu sync.Mutex
	c.SetListener(ListenerFuncs{
		PreviewStopped: func() {
			mu.Lock()
			states = append(states, c.State())
			mu.Unlock()
		},
		CameraClosed: func() {
			mu.Lock()
			states = append(states, c.State())
			mu.Unlock()
		},
	})

	c.SurfaceReady(NewMemorySurface(Size{Width: 1080, Height: 1920}))
	require.NoError(t, c.Start(ctx, FacingBack))
	require.NoError(t, c.Resume(ctx))
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StatePreviewStopped, StateClosing}, states)
	assert.Equal(t, StateClosed, c.State())
}

func TestController_DisconnectNotifiesClosed(t *testing.T) {
	session := &scriptedSession{attrs: backAttributes()}
	c, listener := newTestController(t, session, Options{})
	ctx := context.Background()

	c.SurfaceReady(NewMemorySurface(Size{Width: 1080, Height: 1920}))
	require.NoError(t, c.Start(ctx, FacingBack))
	require.NoError(t, c.Resume(ctx))

	session.events.OnCameraClosed()
	require.Eventually(t, func() bool { return c.State() == StateClosed }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"opened", "preview_started", "closed"}, listener.snapshot())

	// 切断後は再度開ける
	require.NoError(t, c.Start(ctx, FacingBack))
	assert.Equal(t, StateOpened, c.State())
}

func TestController_CapturePhotoRotatesByCaptureOrientation(t *testing.T) {
	session := &scriptedSession{attrs: backAttributes(), photo: []byte{0xff, 0xd8}}
	c, _ := newTestController(t, session, Options{Flash: FlashAuto})
	ctx := context.Background()

	c.SurfaceReady(NewMemorySurface(Size{Width: 1080, Height: 1920}))
	require.NoError(t, c.Start(ctx, FacingBack))
	require.NoError(t, c.Resume(ctx))

	got := make(chan []byte, 1)
	require.NoError(t, c.CapturePhoto(func(jpeg []byte) { got <- jpeg }))

	select {
	case jpeg := <-got:
		assert.Equal(t, []byte{1, 0xff, 0xd8}, jpeg)
	case <-time.After(time.Second):
		t.Fatal("photo was not delivered")
	}

	session.mu.Lock()
	assert.Equal(t, FlashAuto, session.flash)
	session.mu.Unlock()
}

func TestController_CapturePhotoDeliversRawOnRotationFailure(t *testing.T) {
	session := &scriptedSession{attrs: backAttributes(), photo: []byte{0xff, 0xd8}}
	c, _ := newTestController(t, session, Options{Transform: recordingTransform{err: errors.New("decode failed")}})

	require.NoError(t, c.Start(context.Background(), FacingBack))

	got := make(chan []byte, 1)
	require.NoError(t, c.CapturePhoto(func(jpeg []byte) { got <- jpeg }))

	select {
	case jpeg := <-got:
		assert.Equal(t, []byte{0xff, 0xd8}, jpeg)
	case <-time.After(time.Second):
		t.Fatal("photo was not delivered")
	}
}

func TestController_TapFocusAndFrameTap(t *testing.T) {
	session := &scriptedSession{attrs: backAttributes()}
	c, listener := newTestController(t, session, Options{})

	require.NoError(t, c.Start(context.Background(), FacingBack))
	require.NoError(t, c.TapFocus(10, 20))
	require.Eventually(t, func() bool {
		snapshot := listener.snapshot()
		return len(snapshot) > 0 && snapshot[len(snapshot)-1] == "tap_focus_finish"
	}, time.Second, time.Millisecond)

	session.mu.Lock()
	assert.Equal(t, 10, session.tapX)
	assert.Equal(t, 20, session.tapY)
	session.mu.Unlock()

	require.NoError(t, c.StartFrameTap(func([]byte) {}))
	c.StopFrameTap()
	assert.Equal(t, 1, session.count("start_frame_tap"))
	assert.Equal(t, 1, session.count("stop_frame_tap"))

	session.tapErr = ErrFrameTapUnsupported
	assert.ErrorIs(t, c.StartFrameTap(func([]byte) {}), ErrFrameTapUnsupported)
	assert.Error(t, c.StartFrameTap(nil))
}

func TestController_FlashQueries(t *testing.T) {
	attrs := backAttributes()
	attrs.Flashes = []Flash{FlashOff}
	session := &scriptedSession{attrs: attrs}
	c, _ := newTestController(t, session, Options{})

	assert.False(t, c.HasFlash())
	assert.Nil(t, c.SupportedFlashes())

	require.NoError(t, c.Start(context.Background(), FacingBack))
	assert.False(t, c.HasFlash())
	assert.Equal(t, []Flash{FlashOff}, c.SupportedFlashes())

	c.Stop()
	session.attrs.Flashes = []Flash{FlashOff, FlashTorch}
	require.NoError(t, c.Start(context.Background(), FacingBack))
	assert.True(t, c.HasFlash())
}

func TestController_OperationsAfterDestroy(t *testing.T) {
	session := &scriptedSession{attrs: backAttributes()}
	c, _ := newTestController(t, session, Options{})
	c.Destroy()

	assert.ErrorIs(t, c.Start(context.Background(), FacingBack), ErrCanceled)
	assert.ErrorIs(t, c.Resume(context.Background()), ErrCanceled)
	assert.ErrorIs(t, c.CapturePhoto(func([]byte) {}), ErrCanceled)
	assert.ErrorIs(t, c.TapFocus(0, 0), ErrCanceled)
	assert.ErrorIs(t, c.StartFrameTap(func([]byte) {}), ErrCanceled)
	c.Pause()
	c.Stop()
}

func TestController_DisplayOrientationIsNormalized(t *testing.T) {
	c, _ := newTestController(t, &scriptedSession{}, Options{DisplayOrientation: -90})
	assert.Equal(t, 270, c.DisplayOrientation())
	c.SetDisplayOrientation(450)
	assert.Equal(t, 90, c.DisplayOrientation())
}
