// Package backend は起動時に一度だけセッションの世代を選び、
// 対応するベンダーAPIの実装を組み立てる
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"camkit/internal/camera"
	"camkit/internal/camera/fake"
	"camkit/internal/camera/legacy"
	"camkit/internal/camera/modern"
	"camkit/internal/config"
	"camkit/internal/v4l2"
)

// Probe は利用できるベンダーAPI
type Probe struct {
	Modern      modern.DeviceManager // nil なら新しい方式は使えない
	Legacy      legacy.Driver
	ForceLegacy bool
}

// Options はセッションに渡すオプション
type Options struct {
	Logger     zerolog.Logger
	Precapture bool
}

// Select はセッションファクトリと世代を選ぶ
// 新しい方式はカメラが一つ以上列挙でき、強制されていないときだけ使う
func Select(p Probe, opts Options) (camera.SessionFactory, camera.Generation, error) {
	if p.Modern != nil && !p.ForceLegacy {
		ids, err := p.Modern.CameraIDs()
		if err == nil && len(ids) > 0 {
			return modern.Factory(p.Modern,
				modern.WithLogger(opts.Logger),
				modern.WithPrecapture(opts.Precapture),
			), camera.GenerationModern, nil
		}
		opts.Logger.Info().Err(err).Msg("新しいカメラAPIが使えないため従来のAPIを使います")
	}

	if p.Legacy == nil {
		return nil, "", fmt.Errorf("%w: 利用できるカメラAPIがありません", camera.ErrDeviceUnavailable)
	}
	return legacy.Factory(p.Legacy, legacy.WithLogger(opts.Logger)), camera.GenerationLegacy, nil
}

// Backend は選ばれたセッションファクトリと、ベンダー実装の寿命を持つ
type Backend struct {
	Factory    camera.SessionFactory
	Generation camera.Generation

	run   func(ctx context.Context) error
	close func()
}

// New は設定からバックエンドを組み立てる
func New(cfg config.CameraConfig, logger zerolog.Logger) (*Backend, error) {
	opts := Options{Logger: logger, Precapture: cfg.Precapture}

	switch cfg.Backend {
	case "simulated":
		return newSimulated(cfg, opts)
	case "v4l2":
		return newV4L2(cfg, opts)
	default:
		return nil, fmt.Errorf("未対応のバックエンド: %s", cfg.Backend)
	}
}

func newSimulated(cfg config.CameraConfig, opts Options) (*Backend, error) {
	manager := fake.NewSimulatedManager()
	driver := fake.NewSimulatedLegacyDriver()
	closeAll := func() {
		manager.Close()
		driver.Close()
	}

	factory, gen, err := Select(Probe{Modern: manager, Legacy: driver, ForceLegacy: cfg.ForceLegacyAPI}, opts)
	if err != nil {
		closeAll()
		return nil, err
	}

	interval := time.Second / time.Duration(cfg.FPS)
	return &Backend{
		Factory:    factory,
		Generation: gen,
		run: func(ctx context.Context) error {
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return manager.Run(ctx, interval) })
			g.Go(func() error { return driver.Run(ctx, interval) })
			return g.Wait()
		},
		close: closeAll,
	}, nil
}

func newV4L2(cfg config.CameraConfig, opts Options) (*Backend, error) {
	devices := make([]v4l2.DeviceConfig, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		devices = append(devices, v4l2.DeviceConfig{
			Path:        d.Device,
			Facing:      camera.Facing(d.Facing),
			Orientation: d.Orientation,
		})
	}

	driver := v4l2.NewDriver(v4l2.NewLinuxDiscovery(v4l2.ExecCommander{}), devices,
		v4l2.WithLogger(opts.Logger.With().Str("component", "v4l2").Logger()),
		v4l2.WithFPS(cfg.FPS),
		v4l2.WithHotplug(cfg.Hotplug),
	)

	// V4L2 には新しい方式がない
	factory, gen, err := Select(Probe{Legacy: driver, ForceLegacy: cfg.ForceLegacyAPI}, opts)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Factory:    factory,
		Generation: gen,
		close:      driver.Close,
	}, nil
}

// Run はベンダー実装のループを ctx が終わるまで動かす
func (b *Backend) Run(ctx context.Context) error {
	if b.run == nil {
		<-ctx.Done()
		return nil
	}
	return b.run(ctx)
}

// Close はベンダー実装を停止する。コントローラーを破棄した後に呼ぶ
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}
