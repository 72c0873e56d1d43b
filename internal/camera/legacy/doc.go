// Package legacy は、単一コールバック方式のカメラAPIの上に camera.Session を実装します。
//
// 責務:
//   - 向きに合うカメラを探して別ゴルーチンで開く
//   - プレビューサイズ、撮影サイズ、フラッシュ、フォーカスモードのパラメーター設定
//   - プレビューフレームのコールバックによる開始通知とフレームタップ
//   - オートフォーカスのコールバックによるタップフォーカス完了通知
//
// 仕様:
//   - デバイスのメソッドはセッションのロックを持たずに呼ぶ
//   - 切断はエラーコールバックの ErrDisconnected で届き、OnCameraClosed として通知する
//   - 後続の Open / Release で無効になったオープンの結果は通知しない
//   - Linux では internal/v4l2 が Driver を実装する
package legacy
