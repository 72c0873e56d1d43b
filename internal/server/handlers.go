package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"camkit/internal/camera"
	"camkit/internal/imaging"
)

// MJPEG配信で再エンコードするときのJPEG品質
const streamJPEGQuality = 80

// HealthResponse はヘルスチェックの応答
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// SizeResponse は画像サイズ
type SizeResponse struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// StatusResponse はカメラの状態
type StatusResponse struct {
	ID                 string         `json:"id"`
	Generation         string         `json:"generation"`
	State              string         `json:"state"`
	Lifecycle          string         `json:"lifecycle"`
	Surface            string         `json:"surface"`
	Facing             string         `json:"facing,omitempty"`
	Flash              string         `json:"flash"`
	HasFlash           bool           `json:"has_flash"`
	SupportedFlashes   []camera.Flash `json:"supported_flashes"`
	PreviewSize        *SizeResponse  `json:"preview_size,omitempty"`
	PhotoSize          *SizeResponse  `json:"photo_size,omitempty"`
	SensorOrientation  *int           `json:"sensor_orientation,omitempty"`
	DisplayOrientation int            `json:"display_orientation"`
	PreviewOrientation int            `json:"preview_orientation"`
	CaptureOrientation int            `json:"capture_orientation"`
	Timestamp          time.Time      `json:"timestamp"`
}

// ErrorResponse はエラー応答
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// StartRequest はカメラ開始の要求
type StartRequest struct {
	Facing string `json:"facing" binding:"omitempty,oneof=back front"`
}

// FocusRequest はタップフォーカスの要求（ビュー座標）
type FocusRequest struct {
	X *int `json:"x" binding:"required,min=0"`
	Y *int `json:"y" binding:"required,min=0"`
}

// FlashRequest はフラッシュ設定の要求
type FlashRequest struct {
	Flash string `json:"flash" binding:"required"`
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api/camera")
	api.GET("", s.handleStatus)
	api.POST("/start", s.handleStart)
	api.POST("/resume", s.handleResume)
	api.POST("/pause", s.handlePause)
	api.POST("/stop", s.handleStop)
	api.POST("/photo", s.handlePhoto)
	api.POST("/focus", s.handleFocus)
	api.PUT("/flash", s.handleFlash)
	api.GET("/frames", s.handleFrames)
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

// handleStatus はカメラの状態を返す
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status())
}

// handleStart はカメラを開いてプレビューを開始する
func (s *Server) handleStart(c *gin.Context) {
	var req StartRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, err)
			return
		}
	}
	facing := s.config.Camera.FacingValue()
	if req.Facing != "" {
		facing = camera.Facing(req.Facing)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.Server.StartTimeout)
	defer cancel()

	if err := s.camera.Start(ctx, facing); err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.camera.Resume(ctx); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.status())
}

// handleResume は一時停止したプレビューを再開する
func (s *Server) handleResume(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.Server.StartTimeout)
	defer cancel()

	if err := s.camera.Resume(ctx); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.status())
}

// handlePause はプレビューを停止する
func (s *Server) handlePause(c *gin.Context) {
	s.camera.Pause()
	c.JSON(http.StatusOK, s.status())
}

// handleStop はカメラを解放する
func (s *Server) handleStop(c *gin.Context) {
	s.camera.Stop()
	c.JSON(http.StatusOK, s.status())
}

// handlePhoto は静止画を撮影してJPEGを返す
// photo_dir が設定されていれば保存し、パスを X-Photo-Path で返す
func (s *Server) handlePhoto(c *gin.Context) {
	if state := s.camera.State(); state != camera.StatePreviewStarted {
		s.respond(c, http.StatusConflict, "state_precondition", "プレビュー中ではないため撮影できません: "+string(state))
		return
	}

	photos := make(chan []byte, 1)
	err := s.camera.CapturePhoto(func(jpeg []byte) {
		select {
		case photos <- jpeg:
		default:
		}
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.Server.PhotoTimeout)
	defer cancel()

	var jpeg []byte
	select {
	case jpeg = <-photos:
	case <-ctx.Done():
		s.respond(c, http.StatusGatewayTimeout, "timeout", "撮影がタイムアウトしました")
		return
	}

	if s.photos != nil {
		path, err := s.photos.Save(jpeg, time.Now())
		if err != nil {
			s.log.Warn().Err(err).Msg("撮影画像を保存できませんでした")
		} else {
			c.Header("X-Photo-Path", path)
		}
	}
	c.Data(http.StatusOK, "image/jpeg", jpeg)
}

// handleFocus はビュー座標にフォーカスを合わせる
func (s *Server) handleFocus(c *gin.Context) {
	var req FocusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.camera.TapFocus(*req.X, *req.Y); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "focusing"})
}

// handleFlash はフラッシュモードを設定する
func (s *Server) handleFlash(c *gin.Context) {
	var req FlashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	flash, err := camera.ParseFlash(req.Flash)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	if _, opened := s.camera.Attributes(); opened && !slices.Contains(s.camera.SupportedFlashes(), flash) {
		s.respond(c, http.StatusUnprocessableEntity, "flash_unsupported", "このカメラはフラッシュモード "+req.Flash+" に対応していません")
		return
	}

	s.camera.SetFlash(flash)
	c.JSON(http.StatusOK, s.status())
}

// handleFrames はフレームタップをMJPEGストリームとして配信する
func (s *Server) handleFrames(c *gin.Context) {
	frames, err := s.frames.Subscribe()
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer s.frames.Unsubscribe(frames)

	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	writer := c.Writer
	writer.WriteHeaderNow()
	writer.Flush()
	limiter := rate.NewLimiter(rate.Limit(s.config.Server.StreamFPS), 1)
	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return

		case frame, ok := <-frames:
			if !ok {
				return
			}
			if !limiter.Allow() {
				continue
			}

			jpeg, err := imaging.FrameToJPEG(frame, s.frames.frameSize, streamJPEGQuality)
			if err != nil {
				s.log.Debug().Err(err).Msg("フレームを変換できませんでした")
				continue
			}
			if err := writePart(writer, jpeg); err != nil {
				return
			}
			writer.Flush()
		}
	}
}

// writePart はMJPEGの1フレームを書き込む
func writePart(w gin.ResponseWriter, jpeg []byte) error {
	for _, b := range [][]byte{
		[]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n"),
		jpeg,
		[]byte("\r\n"),
	} {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) status() StatusResponse {
	resp := StatusResponse{
		ID:                 s.camera.ID(),
		Generation:         string(s.camera.Generation()),
		State:              string(s.camera.State()),
		Lifecycle:          string(s.camera.Lifecycle()),
		Surface:            string(s.camera.SurfaceState()),
		Facing:             string(s.camera.Facing()),
		Flash:              string(s.camera.Flash()),
		HasFlash:           s.camera.HasFlash(),
		SupportedFlashes:   s.camera.SupportedFlashes(),
		DisplayOrientation: s.camera.DisplayOrientation(),
		PreviewOrientation: s.camera.PreviewOrientation(),
		CaptureOrientation: s.camera.CaptureOrientation(),
		Timestamp:          time.Now(),
	}
	if attrs, ok := s.camera.Attributes(); ok {
		orientation := attrs.SensorOrientation
		resp.SensorOrientation = &orientation
	}
	if size := s.camera.PreviewSize(); size.Area() > 0 {
		resp.PreviewSize = &SizeResponse{Width: size.Width, Height: size.Height}
	}
	if size := s.camera.PhotoSize(); size.Area() > 0 {
		resp.PhotoSize = &SizeResponse{Width: size.Width, Height: size.Height}
	}
	return resp
}

// respondError はカメラのエラーをHTTPステータスに変換する
func (s *Server) respondError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, camera.ErrDeviceUnavailable):
		status, code = http.StatusServiceUnavailable, "device_unavailable"
	case errors.Is(err, camera.ErrStatePrecondition):
		status, code = http.StatusConflict, "state_precondition"
	case errors.Is(err, camera.ErrCameraClosed):
		status, code = http.StatusConflict, "camera_closed"
	case errors.Is(err, camera.ErrFrameTapUnsupported):
		status, code = http.StatusConflict, "frame_tap_unsupported"
	case errors.Is(err, camera.ErrSessionConfiguration):
		status, code = http.StatusBadGateway, "session_configuration"
	case errors.Is(err, camera.ErrCanceled), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "canceled"
	case errors.Is(err, errHubClosed):
		status, code = http.StatusServiceUnavailable, "shutting_down"
	}
	if status >= http.StatusInternalServerError {
		s.log.Warn().Err(err).Int("status", status).Msg("カメラ操作に失敗しました")
	}
	s.respond(c, status, code, err.Error())
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.respond(c, http.StatusBadRequest, "bad_request", err.Error())
}

func (s *Server) respond(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Error: code, Message: message, Timestamp: time.Now()})
}
