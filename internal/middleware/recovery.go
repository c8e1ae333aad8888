package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
)

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 500レスポンスを返すミドルウェアを生成する。
// /api配下やJSONを要求するリクエストには統一エラーフォーマットを、
// それ以外には汎用エラーページ（errorPage）を返す。errorPageがnilの場合は簡易ページを返す。
func NewRecoveryMiddleware(errorPage http.Handler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					slog.Error("panic recovered",
						slog.Any("panic", rec),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("stack", string(debug.Stack())),
					)
					if wantsJSON(r) {
						WriteInternalServerError(w)
						return
					}
					w.Header().Set("Cache-Control", "no-store")
					if errorPage != nil {
						errorPage.ServeHTTP(w, r)
						return
					}
					writeFallbackErrorPage(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wantsJSON はリクエストがJSONレスポンスを期待しているかどうかを判定する。
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/auth/me" {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}

func writeFallbackErrorPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>Something went wrong</title></head>` +
		`<body><h1>Something went wrong</h1><p>An unexpected error occurred.</p><a href="/">Return to home</a></body></html>`))
}
