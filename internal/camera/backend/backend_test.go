package backend

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camkit/internal/camera"
	"camkit/internal/camera/fake"
	"camkit/internal/config"
	"camkit/internal/imaging"
)

func TestSelect(t *testing.T) {
	simulated := fake.NewSimulatedManager()
	defer simulated.Close()
	empty := fake.NewManager()
	defer empty.Close()
	driver := fake.NewSimulatedLegacyDriver()
	defer driver.Close()

	tests := []struct {
		name    string
		probe   Probe
		want    camera.Generation
		wantErr bool
	}{
		{name: "modern when cameras are listed", probe: Probe{Modern: simulated, Legacy: driver}, want: camera.GenerationModern},
		{name: "forced legacy", probe: Probe{Modern: simulated, Legacy: driver, ForceLegacy: true}, want: camera.GenerationLegacy},
		{name: "modern without cameras", probe: Probe{Modern: empty, Legacy: driver}, want: camera.GenerationLegacy},
		{name: "legacy only", probe: Probe{Legacy: driver}, want: camera.GenerationLegacy},
		{name: "nothing available", probe: Probe{Modern: empty}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, gen, err := Select(tt.probe, Options{Logger: zerolog.Nop()})
			if tt.wantErr {
				assert.ErrorIs(t, err, camera.ErrDeviceUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, gen)

			session := factory(nopEvents{})
			assert.Equal(t, tt.want, session.Generation())
			session.Destroy()
		})
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := config.Default().Camera
	cfg.Backend = "gphoto"
	_, err := New(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNew_V4L2IsLegacy(t *testing.T) {
	cfg := config.Default().Camera
	cfg.Backend = "v4l2"
	cfg.Hotplug = false

	b, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, camera.GenerationLegacy, b.Generation)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, b.Run(ctx))
}

// TestSimulatedBackend_Capture はシミュレーターでプレビューから撮影までを通す
func TestSimulatedBackend_Capture(t *testing.T) {
	for _, forceLegacy := range []bool{false, true} {
		cfg := config.Default().Camera
		cfg.Backend = "simulated"
		cfg.FPS = 50
		cfg.ForceLegacyAPI = forceLegacy

		b, err := New(cfg, zerolog.Nop())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		runDone := make(chan error, 1)
		go func() { runDone <- b.Run(ctx) }()

		started := make(chan struct{}, 1)
		c, err := camera.NewController(b.Factory, camera.Options{
			Logger:    zerolog.Nop(),
			Sizes:     imaging.SizeSelector{},
			Transform: imaging.NewJPEGRotator(),
			Listener: camera.ListenerFuncs{PreviewStarted: func() {
				select {
				case started <- struct{}{}:
				default:
				}
			}},
			ViewSize: cfg.ViewSize(),
		})
		require.NoError(t, err)

		startCtx, startCancel := context.WithTimeout(ctx, 5*time.Second)
		require.NoError(t, c.Start(startCtx, camera.FacingBack))
		startCancel()

		c.SurfaceReady(camera.NewMemorySurface(cfg.ViewSize()))
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatalf("preview did not start (legacy=%v)", forceLegacy)
		}
		assert.Equal(t, camera.StatePreviewStarted, c.State())

		photos := make(chan []byte, 1)
		require.NoError(t, c.CapturePhoto(func(jpeg []byte) { photos <- jpeg }))
		select {
		case jpeg := <-photos:
			assert.True(t, imaging.IsJPEG(jpeg))
		case <-time.After(5 * time.Second):
			t.Fatalf("photo was not delivered (legacy=%v)", forceLegacy)
		}

		c.Stop()
		assert.Equal(t, camera.StateClosed, c.State())
		c.Destroy()
		cancel()
		assert.NoError(t, <-runDone)
		b.Close()
	}
}

type nopEvents struct{}

func (nopEvents) OnCameraOpened(camera.Attributes) {}
func (nopEvents) OnCameraClosed()                  {}
func (nopEvents) OnCameraError(error)              {}
func (nopEvents) OnPreviewStarted()                {}
func (nopEvents) OnPreviewStopped()                {}
func (nopEvents) OnPreviewError(error)             {}
func (nopEvents) OnTapFocusFinish()                {}
