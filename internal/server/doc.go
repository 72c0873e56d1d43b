// Package server は、カメラコントローラーをHTTPで操作するサーバーです。
//
// 責務:
//   - カメラの開始・再開・一時停止・停止
//   - 静止画の撮影と保存
//   - タップフォーカスとフラッシュの設定
//   - フレームタップのMJPEG配信
//   - ヘルスチェックとPrometheusメトリクス
//
// 仕様:
//   - ルーティングは gin を使用
//   - 撮影画像は renameio で原子的に保存
//   - MJPEG配信は x/time/rate でフレームレートを制限
//   - グレースフルシャットダウンに対応
package server
