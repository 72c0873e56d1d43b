// Package camera はカメラデバイスのライフサイクル制御を担う
//
// # 責務
//
//   - ホストのライフサイクル（start/resume/pause/stop）と描画サーフェスの準備状態、
//     ハードウェアの非同期な open/configure/close を一つの状態機械に統合する
//   - 全てのハードウェア操作を単一ワーカーに直列化する
//   - ハードウェアの非同期イベントを待機可能な完了ハンドルに変換する
//   - プレビュー/撮影の向きとサイズを決定する
//   - 状態遷移をリスナーへ通知する
//
// # 使い分け
//
// このパッケージは以下の場合に使用する：
//   - カメラを開いてプレビューを表示し、静止画を撮影したい
//   - ハードウェアAPIの世代（legacy/modern）を意識せずに制御したい
//
// # 仕様
//
//   - Controller: 最上位のオーケストレーター
//   - Session: ハードウェアAPI世代を抽象化した能力インターフェース
//     （実装は camera/legacy と camera/modern、選択は camera/backend）
//   - Completion: 一度だけ解決/キャンセルできる単一スロットの完了ハンドル
//   - ハードウェア操作にタイムアウトはない。コールバックが返らない実装では
//     操作は保留のままになる（呼び出し側が ctx で待機を打ち切れる）
//   - プレビューの構成に失敗すると Opened に戻り、Resume で再試行できる
package camera
