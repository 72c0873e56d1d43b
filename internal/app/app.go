// Package app はカメラ、バックエンド、HTTPサーバーを組み立てて動かす
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"camkit/internal/camera"
	"camkit/internal/camera/backend"
	"camkit/internal/config"
	"camkit/internal/imaging"
	"camkit/internal/log"
	"camkit/internal/server"
)

// App は起動中のカメラサーバー
type App struct {
	config     *config.Config
	log        zerolog.Logger
	backend    *backend.Backend
	controller *camera.Controller
	server     *server.Server
}

// New は設定に従って各コンポーネントを生成する
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	b, err := backend.New(cfg.Camera, logger.With().Str("component", "backend").Logger())
	if err != nil {
		return nil, fmt.Errorf("バックエンドの初期化に失敗: %w", err)
	}

	ctrlLog := logger.With().Str("component", "controller").Logger()
	ctrl, err := camera.NewController(b.Factory, camera.Options{
		Logger:             ctrlLog,
		Sizes:              imaging.SizeSelector{},
		Transform:          imaging.NewJPEGRotator(),
		DisplayOrientation: cfg.Camera.DisplayRotation,
		ViewSize:           cfg.Camera.ViewSize(),
		Flash:              cfg.Camera.FlashValue(),
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("コントローラーの作成に失敗: %w", err)
	}
	// ヘッドレスなのでメモリ上のサーフェスを常に用意しておく
	ctrl.SurfaceReady(camera.NewMemorySurface(cfg.Camera.ViewSize()))

	logger.Info().
		Str("backend", cfg.Camera.Backend).
		Str("generation", string(b.Generation)).
		Msg("カメラを初期化しました")

	srv := server.New(cfg, ctrl, logger.With().Str("component", "server").Logger())
	ctrl.SetListener(camera.Listeners{stateLogger(ctrlLog), srv.Listener()})

	return &App{
		config:     cfg,
		log:        logger,
		backend:    b,
		controller: ctrl,
		server:     srv,
	}, nil
}

// Run は ctx が終わるまでサーバーとバックエンドを動かし、終了時にカメラを解放する
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.backend.Run(ctx)
	})
	g.Go(func() error {
		return a.server.Start(ctx)
	})
	return g.Wait()
}

func (a *App) close() {
	a.controller.Stop()
	a.controller.Destroy()
	a.backend.Close()
	a.log.Info().Msg("カメラを解放しました")
}

// Run はグローバルロガーを設定してアプリケーションを実行する
func Run(ctx context.Context, cfg *config.Config) error {
	log.Configure(log.Config{Level: cfg.Log.Level})

	a, err := New(cfg, log.Base())
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func stateLogger(logger zerolog.Logger) camera.Listener {
	return camera.ListenerFuncs{
		CameraOpened:   func() { logger.Info().Msg("カメラが開きました") },
		CameraClosed:   func() { logger.Info().Msg("カメラが閉じました") },
		PreviewStarted: func() { logger.Debug().Msg("プレビューが開始されました") },
		PreviewStopped: func() { logger.Debug().Msg("プレビューが停止しました") },
	}
}
