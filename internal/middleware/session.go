// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/socialburst/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// StoreFactory はリクエストごとのSession Storeを生成する。session.Factoryが実装する。
type StoreFactory interface {
	FromRequest(w http.ResponseWriter, r *http.Request) (*session.Store, error)
}

// NewSessionMiddleware はリクエストのCookieからSession Storeを生成して復元し、
// コンテキストに格納するミドルウェアを返す。アクセスの可否は判定しない。
// Storeはリクエストの終了時にCloseする。
func NewSessionMiddleware(factory StoreFactory) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store, err := factory.FromRequest(w, r)
			if err != nil {
				slog.Error("failed to create session store",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			defer store.Close()

			// 復元できない場合はloadingのまま後続に委ねる
			_ = store.Init(r.Context())

			ctx := session.WithStore(r.Context(), store)
			if userID := store.UserID(); userID != "" {
				ctx = context.WithValue(ctx, userIDContextKey, userID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// Route Guardを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
