package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"camkit/internal/camera"
	"camkit/internal/camera/modern"
	"camkit/internal/config"
)

// Camera はサーバーが操作するカメラコントローラー
type Camera interface {
	ID() string
	Generation() camera.Generation
	Start(ctx context.Context, facing camera.Facing) error
	Resume(ctx context.Context) error
	Pause()
	Stop()
	CapturePhoto(callback func(jpeg []byte)) error
	TapFocus(x, y int) error
	StartFrameTap(sink camera.FrameSink) error
	StopFrameTap()

	State() camera.State
	Lifecycle() camera.LifecycleState
	SurfaceState() camera.SurfaceState
	Facing() camera.Facing
	Attributes() (camera.Attributes, bool)
	SupportedFlashes() []camera.Flash
	HasFlash() bool
	Flash() camera.Flash
	SetFlash(f camera.Flash)
	PreviewSize() camera.Size
	PhotoSize() camera.Size
	DisplayOrientation() int
	PreviewOrientation() int
	CaptureOrientation() int
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	log        zerolog.Logger
	camera     Camera
	frames     *frameHub
	photos     *photoStore
	engine     *gin.Engine
	httpServer *http.Server
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, cam Camera, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		config: cfg,
		log:    logger,
		camera: cam,
		frames: newFrameHub(cam, modern.FrameTapSize, logger),
		engine: engine,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
	if cfg.Camera.PhotoDir != "" {
		s.photos = &photoStore{dir: cfg.Camera.PhotoDir}
	}
	s.setupRoutes()
	return s
}

// Listener はコントローラーに登録するリスナーを返す
// プレビューが再開されたときにフレーム配信を張り直す
func (s *Server) Listener() camera.Listener {
	return s.frames.listener()
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start はサーバーを起動し、ctx が終わるとシャットダウンする
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.config.ServerAddress()).Msg("HTTPサーバーを起動しています")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("コンテキストがキャンセルされました")
	case err := <-errCh:
		return err
	}

	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
// 配信中のMJPEGストリームは先に閉じる
func (s *Server) Shutdown() error {
	s.log.Info().Msg("サーバーをシャットダウンしています")
	s.frames.Close()

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.log.Info().Msg("サーバーが正常にシャットダウンされました")
	return nil
}

// requestLogger はリクエストごとにアクセスログを出す
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = logger.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("リクエスト")
	}
}
