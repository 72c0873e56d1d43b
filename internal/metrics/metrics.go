// Package metrics はPrometheusメトリクスを定義する
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CameraTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camkit_camera_transitions_total",
		Help: "Total number of camera state transitions by source and destination state",
	}, []string{"from", "to"})

	PhotosCapturedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camkit_photos_captured_total",
		Help: "Total number of still photos delivered to callers",
	}, []string{"generation"})

	FrameTapFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camkit_frame_tap_frames_total",
		Help: "Total number of frame tap frames by result (delivered, dropped)",
	}, []string{"result"})

	CompletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camkit_completions_total",
		Help: "Total number of waitable hardware completions by operation and outcome",
	}, []string{"op", "outcome"})

	VendorErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camkit_vendor_errors_total",
		Help: "Total number of errors returned by the vendor camera API, by operation",
	}, []string{"op"})

	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camkit_stream_clients",
		Help: "Number of connected MJPEG stream clients",
	})

	PhotosSavedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camkit_photos_saved_total",
		Help: "Total number of photos written to the photo directory by result",
	}, []string{"result"})
)

// ObserveTransition はカメラ状態遷移を記録する
func ObserveTransition(from, to string) {
	CameraTransitionsTotal.WithLabelValues(from, to).Inc()
}

// ObservePhoto は撮影完了を記録する
func ObservePhoto(generation string) {
	if generation == "" {
		generation = "unknown"
	}
	PhotosCapturedTotal.WithLabelValues(generation).Inc()
}

// ObserveFrame はフレームタップの配信結果を記録する
func ObserveFrame(delivered bool) {
	if delivered {
		FrameTapFramesTotal.WithLabelValues("delivered").Inc()
		return
	}
	FrameTapFramesTotal.WithLabelValues("dropped").Inc()
}

// ObserveCompletion は待機可能な完了ハンドルの結果を記録する
func ObserveCompletion(op, outcome string) {
	CompletionsTotal.WithLabelValues(op, outcome).Inc()
}

// IncVendorError はベンダーAPIのエラーを記録する
func IncVendorError(op string) {
	if op == "" {
		op = "unknown"
	}
	VendorErrorsTotal.WithLabelValues(op).Inc()
}

// ObservePhotoSaved は撮影画像の保存結果を記録する
func ObservePhotoSaved(err error) {
	if err != nil {
		PhotosSavedTotal.WithLabelValues("error").Inc()
		return
	}
	PhotosSavedTotal.WithLabelValues("ok").Inc()
}
