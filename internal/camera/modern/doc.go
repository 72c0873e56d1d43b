// Package modern は、セッションとリピーティングリクエスト方式のカメラAPIの上に
// camera.Session を実装します。
//
// 責務:
//   - デバイスを非同期に開き、カメラ属性をスナップショットとして通知
//   - プレビュー用のキャプチャセッション構成とリピーティングリクエストの発行
//   - CaptureSequencer による静止画撮影（AFロック、AE precapture、フラッシュ）
//   - タップフォーカスの測光領域計算とAFトリガー
//   - FrameTap によるプレビュー中のYUVフレームの取り出し（NV21に変換）
//
// 仕様:
//   - ベンダーAPIのハンドルはセッションのミューテックスで保護する
//   - コールバックはベンダーのゴルーチンから届く。古いオープンの通知は openSeq で捨てる
//   - プレビュー開始の通知は開始と停止の一巡につき一度だけ
//   - 構成の失敗は camera.ErrSessionConfiguration として OnPreviewError で通知する
package modern
