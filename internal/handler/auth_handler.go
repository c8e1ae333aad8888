package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/socialburst/internal/auth"
	"github.com/hitoshi/socialburst/internal/middleware"
	"github.com/hitoshi/socialburst/internal/model"
	"github.com/hitoshi/socialburst/internal/session"
	"github.com/hitoshi/socialburst/internal/web"
)

// ProfileEnsurer はサインアップ直後にプロフィールを用意するインターフェース。
type ProfileEnsurer interface {
	Ensure(ctx context.Context, sess *model.Session) (*model.Profile, error)
}

// AuthHandler はサインイン画面と認証操作のHTTPハンドラー。
// 認証状態の変更はすべてリクエストのSession Storeを経由する。
type AuthHandler struct {
	pages    *web.Renderer
	profiles ProfileEnsurer
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(pages *web.Renderer, profiles ProfileEnsurer) *AuthHandler {
	return &AuthHandler{
		pages:    pages,
		profiles: profiles,
	}
}

// authRequestBody はサインイン/サインアップのJSONリクエストボディ。
type authRequestBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Next     string `json:"next"`
}

// sessionResponse はセッション情報のAPIレスポンス。トークンは含めない。
type sessionResponse struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// authView はサインイン画面のテンプレートデータ。
type authView struct {
	Tab   string
	Next  string
	Email string
	Name  string
}

func toSessionResponse(sess *model.Session) sessionResponse {
	return sessionResponse{
		UserID:      sess.UserID,
		Email:       sess.Email,
		DisplayName: sess.DisplayName,
		ExpiresAt:   sess.Expiry,
	}
}

// Page はサインイン/サインアップ画面を表示する。
// GET /auth?tab=signin|signup
// 認証済みの場合はダッシュボード（またはnext）へリダイレクトする。
func (h *AuthHandler) Page(w http.ResponseWriter, r *http.Request) {
	next := safeRedirect(r.URL.Query().Get("next"), "")

	if store := session.FromContext(r.Context()); store != nil && store.State() == session.StateAuthenticated {
		http.Redirect(w, r, safeRedirect(next, "/dashboard"), http.StatusSeeOther)
		return
	}

	tab := r.URL.Query().Get("tab")
	if tab != "signup" {
		tab = "signin"
	}
	h.renderPage(w, r, http.StatusOK, authView{Tab: tab, Next: next}, "")
}

// SignIn はメールアドレスとパスワードでサインインする。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	body, ok := readAuthRequest(w, r)
	if !ok {
		return
	}

	req := auth.NormalizeRequest(model.AuthRequest{Email: body.Email, Password: body.Password})
	view := authView{Tab: "signin", Next: safeRedirect(body.Next, ""), Email: req.Email}

	if err := auth.ValidateSignIn(req); err != nil {
		h.authFailed(w, r, view, err)
		return
	}

	sess, err := store.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.authFailed(w, r, view, err)
		return
	}

	h.authSucceeded(w, r, http.StatusOK, view.Next, sess)
}

// SignUp はアカウントを作成してサインインする。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	body, ok := readAuthRequest(w, r)
	if !ok {
		return
	}

	req := auth.NormalizeRequest(model.AuthRequest{Email: body.Email, Password: body.Password, Name: body.Name})
	view := authView{Tab: "signup", Next: safeRedirect(body.Next, ""), Email: req.Email, Name: req.Name}

	if err := auth.ValidateSignUp(req); err != nil {
		h.authFailed(w, r, view, err)
		return
	}

	sess, err := store.SignUp(r.Context(), req)
	if err != nil {
		h.authFailed(w, r, view, err)
		return
	}

	// プロフィールは保護されたページの初回表示でも作成されるため、失敗してもサインアップは成功とする
	if _, err := h.profiles.Ensure(r.Context(), sess); err != nil {
		slog.Warn("プロフィールの作成に失敗しました",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
	}

	h.authSucceeded(w, r, http.StatusCreated, view.Next, sess)
}

// SignOut はサインアウトする。プロバイダーの結果に関わらずトークンは破棄される。
// POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	if err := store.SignOut(r.Context()); err != nil {
		slog.Warn("サインアウト中にエラーが発生しました",
			slog.String("error", err.Error()),
		)
	}

	if isFormRequest(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のセッション情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	store := session.FromContext(r.Context())
	if store == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	snap := store.Snapshot()
	switch snap.State {
	case session.StateAuthenticated:
		writeJSON(w, http.StatusOK, toSessionResponse(snap.Session))
	case session.StateLoading:
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewAuthUnavailableError())
	default:
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
	}
}

func (h *AuthHandler) store(w http.ResponseWriter, r *http.Request) (*session.Store, bool) {
	store := session.FromContext(r.Context())
	if store == nil {
		slog.Error("Session Storeがコンテキストにありません", slog.String("path", r.URL.Path))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return store, true
}

func (h *AuthHandler) authFailed(w http.ResponseWriter, r *http.Request, view authView, err error) {
	apiErr := toAPIError(err)
	if isFormRequest(r) {
		h.renderPage(w, r, mapAPIErrorToHTTPStatus(apiErr), view, apiErr.Message)
		return
	}
	writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
}

func (h *AuthHandler) authSucceeded(w http.ResponseWriter, r *http.Request, statusCode int, next string, sess *model.Session) {
	if isFormRequest(r) {
		http.Redirect(w, r, safeRedirect(next, "/dashboard"), http.StatusSeeOther)
		return
	}
	writeJSON(w, statusCode, toSessionResponse(sess))
}

func (h *AuthHandler) renderPage(w http.ResponseWriter, r *http.Request, statusCode int, view authView, message string) {
	title := "Sign In"
	if view.Tab == "signup" {
		title = "Sign Up"
	}
	h.pages.Render(w, statusCode, web.PageAuth, web.PageData{
		Title:     title,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Error:     message,
		Data:      view,
	})
}

// readAuthRequest はフォームまたはJSONから認証リクエストを読み込む。
func readAuthRequest(w http.ResponseWriter, r *http.Request) (authRequestBody, bool) {
	if isFormRequest(r) {
		return authRequestBody{
			Email:    r.PostFormValue("email"),
			Password: r.PostFormValue("password"),
			Name:     r.PostFormValue("name"),
			Next:     r.PostFormValue("next"),
		}, true
	}

	var body authRequestBody
	if !decodeJSON(w, r, &body) {
		return body, false
	}
	return body, true
}
