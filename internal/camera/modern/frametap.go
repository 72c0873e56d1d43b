package modern

import (
	"errors"
	"fmt"

	"camkit/internal/camera"
	"camkit/internal/metrics"
)

// FrameTapSize はフレームタップが流す NV21 フレームの大きさ
// 1920 以上のサイズや JPEG ではプレビューが詰まるため YUV の 1280x720 に固定する
var FrameTapSize = camera.Size{Width: 1280, Height: 720}

const tapMaxImages = 3

var errImageFormat = errors.New("対応していない画像フォーマットです")

// frameTap は有効なフレームタップ
type frameTap struct {
	reader ImageReader
	sink   camera.FrameSink
}

// StartFrameTap はプレビューのリピーティングリクエストに YUV リーダーを追加する
// 既にタップ中なら古いタップを止めてから開始する
func (s *Session) StartFrameTap(sink camera.FrameSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.captureSession == nil || s.previewRequest == nil {
		return fmt.Errorf("%w: プレビューが開始されていません", camera.ErrFrameTapUnsupported)
	}
	s.stopFrameTapLocked()
	cs, req := s.captureSession, s.previewRequest

	reader, err := s.manager.NewImageReader(FrameTapSize, FormatYUV420888, tapMaxImages)
	if err != nil {
		metrics.IncVendorError("image_reader")
		return fmt.Errorf("%w: %w", camera.ErrFrameTapUnsupported, err)
	}

	if err := cs.StopRepeating(); err != nil {
		s.log.Warn().Err(err).Msg("リピーティングリクエストを停止できませんでした")
	}
	req.AddTarget(reader.Target())
	// タップ中は結果ハンドラを外す
	if err := cs.SetRepeatingRequest(req.Clone(), nil); err != nil {
		metrics.IncVendorError("frame_tap")
		req.RemoveTarget(reader.Target())
		reader.Close()
		if err := cs.SetRepeatingRequest(req.Clone(), s.previewCB); err != nil {
			s.log.Error().Err(err).Msg("プレビューリクエストを復元できませんでした")
		}
		return fmt.Errorf("%w: %w", camera.ErrFrameTapUnsupported, err)
	}

	tap := &frameTap{reader: reader, sink: sink}
	s.tap = tap
	reader.SetOnImageAvailable(func(r ImageReader) { s.onTapImage(tap, r) })

	s.log.Info().Stringer("size", FrameTapSize).Msg("フレームタップを開始しました")
	return nil
}

// StopFrameTap はタップ用の出力先を外し、通常の結果ハンドラに戻す
func (s *Session) StopFrameTap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopFrameTapLocked()
}

func (s *Session) stopFrameTapLocked() {
	tap := s.tap
	if tap == nil {
		return
	}
	s.tap = nil
	tap.reader.SetOnImageAvailable(nil)

	cs, req := s.captureSession, s.previewRequest
	if cs != nil && req != nil {
		if err := cs.StopRepeating(); err != nil {
			s.log.Warn().Err(err).Msg("リピーティングリクエストを停止できませんでした")
		}
		req.RemoveTarget(tap.reader.Target())
		if err := cs.SetRepeatingRequest(req.Clone(), s.previewCB); err != nil {
			metrics.IncVendorError("frame_tap")
			s.log.Error().Err(err).Msg("プレビューリクエストを復元できませんでした")
		}
	}
	tap.reader.Close()
	s.log.Info().Msg("フレームタップを停止しました")
}

// dropFrameTapLocked はリクエストを再発行せずにタップを破棄する
func (s *Session) dropFrameTapLocked() {
	tap := s.tap
	if tap == nil {
		return
	}
	s.tap = nil
	tap.reader.SetOnImageAvailable(nil)
	tap.reader.Close()
}

func (s *Session) onTapImage(tap *frameTap, r ImageReader) {
	s.mu.Lock()
	if s.tap != tap {
		s.mu.Unlock()
		return
	}
	frame, err := acquireFrame(r)
	s.mu.Unlock()

	if err != nil {
		metrics.ObserveFrame(false)
		s.log.Debug().Err(err).Msg("フレームを破棄しました")
		return
	}
	if frame == nil {
		return
	}
	metrics.ObserveFrame(true)
	tap.sink(frame)
}

func acquireFrame(r ImageReader) ([]byte, error) {
	img, err := r.AcquireLatestImage()
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, nil
	}
	defer img.Close()
	return imageBytes(img)
}

// imageBytes は画像をバイト列に変換する
// JPEG は先頭プレーン、YUV_420_888 は Y と VU プレーンを連結した NV21
func imageBytes(img Image) ([]byte, error) {
	planes := img.Planes()
	switch img.Format() {
	case FormatJPEG:
		if len(planes) < 1 {
			return nil, fmt.Errorf("JPEG のプレーンがありません")
		}
		return append([]byte(nil), planes[0]...), nil
	case FormatYUV420888:
		if len(planes) < 3 {
			return nil, fmt.Errorf("YUV のプレーンが不足しています: %d", len(planes))
		}
		y, vu := planes[0], planes[2]
		nv21 := make([]byte, 0, len(y)+len(vu))
		nv21 = append(nv21, y...)
		nv21 = append(nv21, vu...)
		return nv21, nil
	default:
		return nil, fmt.Errorf("%w: %d", errImageFormat, img.Format())
	}
}
