package server

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"camkit/internal/camera"
	"camkit/internal/metrics"
)

// 購読者ごとのバッファ。溢れたフレームは捨てる
const subscriberBuffer = 2

var errHubClosed = errors.New("フレーム配信は終了しています")

// frameHub はフレームタップを複数のストリームに配る
// 最初の購読でタップを開始し、最後の購読解除で停止する。
// 一時停止や停止でセッションがタップを捨てるため、購読者が残っていれば
// プレビュー再開時にタップを張り直す
type frameHub struct {
	camera    Camera
	frameSize camera.Size
	log       zerolog.Logger

	// tapMu はタップの開始と停止を直列にする。カメラ操作中に mu は持たない
	tapMu sync.Mutex

	mu     sync.Mutex
	subs   map[chan []byte]struct{}
	closed bool

	restarts sync.WaitGroup
}

func newFrameHub(cam Camera, frameSize camera.Size, logger zerolog.Logger) *frameHub {
	return &frameHub{
		camera:    cam,
		frameSize: frameSize,
		log:       logger,
		subs:      make(map[chan []byte]struct{}),
	}
}

// Subscribe はフレームを受け取るチャンネルを返す
func (h *frameHub) Subscribe() (chan []byte, error) {
	h.tapMu.Lock()
	defer h.tapMu.Unlock()

	h.mu.Lock()
	closed, first := h.closed, len(h.subs) == 0
	h.mu.Unlock()
	if closed {
		return nil, errHubClosed
	}

	if first {
		if err := h.camera.StartFrameTap(h.publish); err != nil {
			return nil, err
		}
		h.log.Debug().Msg("フレーム配信を開始しました")
	}

	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	metrics.StreamClients.Inc()
	return ch, nil
}

// Unsubscribe は購読を解除する。最後の購読者ならタップを停止する
func (h *frameHub) Unsubscribe(ch chan []byte) {
	h.tapMu.Lock()
	defer h.tapMu.Unlock()

	h.mu.Lock()
	if _, ok := h.subs[ch]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, ch)
	close(ch)
	last := len(h.subs) == 0
	h.mu.Unlock()
	metrics.StreamClients.Dec()

	if last {
		h.camera.StopFrameTap()
		h.log.Debug().Msg("フレーム配信を停止しました")
	}
}

// listener はプレビュー開始でタップを張り直すリスナーを返す
func (h *frameHub) listener() camera.Listener {
	return camera.ListenerFuncs{PreviewStarted: h.previewStarted}
}

// previewStarted はコントローラーのワーカー上で呼ばれるため、
// タップの開始は別ゴルーチンで行う
func (h *frameHub) previewStarted() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || len(h.subs) == 0 {
		return
	}
	h.restarts.Add(1)
	go func() {
		defer h.restarts.Done()
		h.restartTap()
	}()
}

func (h *frameHub) restartTap() {
	h.tapMu.Lock()
	defer h.tapMu.Unlock()

	h.mu.Lock()
	active := !h.closed && len(h.subs) > 0
	h.mu.Unlock()
	if !active {
		return
	}
	if err := h.camera.StartFrameTap(h.publish); err != nil {
		h.log.Warn().Err(err).Msg("フレーム配信を再開できませんでした")
		return
	}
	h.log.Debug().Msg("フレーム配信を再開しました")
}

// Close は全ての購読を終了し、以降の購読を拒否する
func (h *frameHub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()
	h.restarts.Wait()

	h.tapMu.Lock()
	defer h.tapMu.Unlock()

	h.mu.Lock()
	active := len(h.subs) > 0
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
		metrics.StreamClients.Dec()
	}
	h.mu.Unlock()

	if active {
		h.camera.StopFrameTap()
	}
}

// publish はハードウェアの通知ゴルーチンから呼ばれる
func (h *frameHub) publish(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- frame:
		default:
			metrics.ObserveFrame(false)
		}
	}
}

// subscribers は購読者数を返す
func (h *frameHub) subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
