package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/socialburst/internal/session"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw はユーザーの退会処理を実行する。
	// 投稿、キャンペーン、リスト（購読者を含む）、連携アカウント、プロフィール、
	// 認証プロバイダーのアカウントを削除する。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 成功後はSession Storeをサインアウトさせ、トークンCookieを破棄する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		fail(w, r, err)
		return
	}

	if store := session.FromContext(r.Context()); store != nil {
		// アカウントは削除済みのため、ローカルの状態とトークンCookieを破棄する
		if err := store.SignOut(r.Context()); err != nil {
			slog.Warn("退会後のサインアウトに失敗しました", slog.String("error", err.Error()))
		}
	}

	if isFormRequest(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
