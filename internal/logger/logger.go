package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// FormatText は開発用のカラー付きテキスト出力を表す。
const FormatText = "text"

// Setup は構造化ログ出力のslog.Loggerを生成して返す。
// formatが"text"の場合はtintによるテキスト出力、それ以外はJSON出力とする。
// levelはParseLevelで解釈する。
func Setup(w io.Writer, format, level string) *slog.Logger {
	lv := ParseLevel(level)
	if format == FormatText {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      lv,
			TimeFormat: time.TimeOnly,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv}))
}

// ParseLevel は "debug"、"info"、"warn"、"error" を解釈する。
// 空文字や不明な値はINFO。
func ParseLevel(s string) slog.Level {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lv
}

// SetupDefault は構造化ログ出力をグローバルロガーとして設定する。wがnilならos.Stdout。
func SetupDefault(w io.Writer, format, level string) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, format, level))
}
