// Command socialburst はSocialBurstのWebサーバー、ワーカー、マイグレーションを起動する。
package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/hitoshi/socialburst/internal/app"
)

func main() {
	// 開発環境では.envから環境変数を読み込む。既に設定済みの値は上書きしない
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn(".envの読み込みに失敗しました", slog.String("error", err.Error()))
	}

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("アプリケーションが異常終了しました", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
