package fake

import (
	"context"
	"time"

	"camkit/internal/camera"
	"camkit/internal/camera/legacy"
	"camkit/internal/camera/modern"
)

var (
	simulatedPreviewSizes = []camera.Size{
		{Width: 320, Height: 240},
		{Width: 640, Height: 480},
		{Width: 1280, Height: 720},
		{Width: 1920, Height: 1080},
	}
	simulatedPhotoSizes = []camera.Size{
		{Width: 1920, Height: 1080},
		{Width: 3264, Height: 1840},
	}
)

// NewSimulatedManager は背面と前面のカメラを持つ Manager を作成する
func NewSimulatedManager() *Manager {
	m := NewManager()
	m.AddCamera("0", modern.Characteristics{
		Facing:            camera.FacingBack,
		SensorOrientation: 90,
		ActiveArray:       modern.Rect{Right: 4032, Bottom: 3024},
		PreviewSizes:      simulatedPreviewSizes,
		PhotoSizes:        simulatedPhotoSizes,
		Flashes:           []camera.Flash{camera.FlashOff, camera.FlashOn, camera.FlashAuto, camera.FlashTorch},
	})
	m.AddCamera("1", modern.Characteristics{
		Facing:            camera.FacingFront,
		SensorOrientation: 270,
		ActiveArray:       modern.Rect{Right: 3264, Bottom: 2448},
		PreviewSizes:      simulatedPreviewSizes,
		PhotoSizes:        simulatedPhotoSizes,
		Flashes:           []camera.Flash{camera.FlashOff},
	})
	return m
}

// NewSimulatedLegacyDriver は背面と前面のカメラを持つ LegacyDriver を作成する
func NewSimulatedLegacyDriver() *LegacyDriver {
	l := NewLegacyDriver()
	l.AddCamera(legacy.Info{ID: "0", Facing: camera.FacingBack, Orientation: 90}, legacy.Parameters{
		PreviewSize:           simulatedPreviewSizes[1],
		PictureSize:           simulatedPhotoSizes[1],
		Flash:                 camera.FlashOff,
		FocusMode:             legacy.FocusModeContinuousPicture,
		SupportedPreviewSizes: simulatedPreviewSizes,
		SupportedPictureSizes: simulatedPhotoSizes,
		SupportedFlashes:      []camera.Flash{camera.FlashOff, camera.FlashOn, camera.FlashAuto},
		SupportedFocusModes:   []legacy.FocusMode{legacy.FocusModeAuto, legacy.FocusModeContinuousPicture},
	})
	l.AddCamera(legacy.Info{ID: "1", Facing: camera.FacingFront, Orientation: 270}, legacy.Parameters{
		PreviewSize:           simulatedPreviewSizes[1],
		PictureSize:           simulatedPhotoSizes[0],
		Flash:                 camera.FlashOff,
		FocusMode:             legacy.FocusModeFixed,
		SupportedPreviewSizes: simulatedPreviewSizes,
		SupportedPictureSizes: simulatedPhotoSizes,
		SupportedFlashes:      []camera.Flash{camera.FlashOff},
		SupportedFocusModes:   []legacy.FocusMode{legacy.FocusModeFixed},
	})
	l.setAutoFocusResult(true)
	return l
}

func (l *LegacyDriver) setAutoFocusResult(result bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.autoFocusResult = result
}

// Run は ctx が終わるまで interval ごとに Tick する
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	return runTicker(ctx, interval, m.Tick)
}

// Run は ctx が終わるまで interval ごとに Tick する
func (l *LegacyDriver) Run(ctx context.Context, interval time.Duration) error {
	return runTicker(ctx, interval, l.Tick)
}

func runTicker(ctx context.Context, interval time.Duration, tick func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick()
		}
	}
}
