package camera

import "errors"

var (
	// ErrDeviceUnavailable は要求された向きのデバイスが存在しない
	ErrDeviceUnavailable = errors.New("カメラデバイスが利用できません")

	// ErrSessionConfiguration はセッションまたはリクエストの構築に失敗した
	ErrSessionConfiguration = errors.New("カメラセッションの構成に失敗しました")

	// ErrStatePrecondition は現在の状態では操作できない
	ErrStatePrecondition = errors.New("カメラの状態が操作の前提条件を満たしていません")

	// ErrCanceled は待機がキャンセルされた
	ErrCanceled = errors.New("待機がキャンセルされました")

	// ErrCameraClosed は待機中にカメラが閉じられた
	ErrCameraClosed = errors.New("カメラが閉じられました")

	// ErrFrameTapUnsupported はフレームタップを開始できない
	ErrFrameTapUnsupported = errors.New("フレームタップを開始できません")
)
