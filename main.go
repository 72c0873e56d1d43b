package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"camkit/internal/app"
	"camkit/internal/config"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// シグナルで終了するコンテキストを作成
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// サーバーを起動
	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
