package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/socialburst/internal/model"
	"github.com/hitoshi/socialburst/internal/session"
)

// Decision はRoute Guardの判定結果。
type Decision int

const (
	// DecisionPlaceholder はセッション状態が未確定のためプレースホルダーを表示する。
	DecisionPlaceholder Decision = iota
	// DecisionRedirect は未認証のためサインイン画面へリダイレクトする。
	DecisionRedirect
	// DecisionRender は認証済みのため保護されたビューを表示する。
	DecisionRender
)

// String はログ出力用の名前を返す。
func (d Decision) String() string {
	switch d {
	case DecisionPlaceholder:
		return "placeholder"
	case DecisionRedirect:
		return "redirect"
	case DecisionRender:
		return "render"
	default:
		return "unknown"
	}
}

// Decide はSession Storeの状態から判定を1つだけ返す。
// 未知の状態はリダイレクトとして扱う。
func Decide(state session.State) Decision {
	switch state {
	case session.StateLoading:
		return DecisionPlaceholder
	case session.StateAuthenticated:
		return DecisionRender
	default:
		return DecisionRedirect
	}
}

// GuardMode は判定結果の表現方法。
type GuardMode int

const (
	// GuardModePage はHTMLページ向け。未認証は303リダイレクト。
	GuardModePage GuardMode = iota
	// GuardModeAPI はJSON API向け。未認証は401。
	GuardModeAPI
)

// DefaultSignInPath はサインイン画面のパス。
const DefaultSignInPath = "/auth?tab=signin"

// GuardConfig はRoute Guardの設定。
type GuardConfig struct {
	Mode       GuardMode
	SignInPath string        // 空の場合はDefaultSignInPath
	RetryAfter time.Duration // プレースホルダーの再読み込み間隔。0の場合は2秒
	// Placeholder はページモードでセッション未確定時に表示するハンドラー。
	// nilの場合は最小限のローディングページを返す。
	Placeholder http.Handler
}

// NewGuardMiddleware はSession Storeを参照して保護されたルートへのアクセスを制御する
// ミドルウェアを返す。NewSessionMiddlewareが格納したStoreがあればそれを使い、
// 無ければfactoryから生成する。
func NewGuardMiddleware(factory StoreFactory, config GuardConfig) func(next http.Handler) http.Handler {
	if config.SignInPath == "" {
		config.SignInPath = DefaultSignInPath
	}
	if config.RetryAfter <= 0 {
		config.RetryAfter = 2 * time.Second
	}
	retrySeconds := retryAfterSeconds(config.RetryAfter)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := session.FromContext(r.Context())
			if store == nil {
				var err error
				store, err = factory.FromRequest(w, r)
				if err != nil {
					slog.Error("failed to create session store",
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
				defer store.Close()
				_ = store.Init(r.Context())
			}

			snap := store.Snapshot()
			switch Decide(snap.State) {
			case DecisionRender:
				ctx := session.WithStore(r.Context(), store)
				ctx = context.WithValue(ctx, userIDContextKey, snap.UserID())
				next.ServeHTTP(w, r.WithContext(ctx))

			case DecisionPlaceholder:
				w.Header().Set("Cache-Control", "no-store")
				if config.Mode == GuardModeAPI {
					WriteRetryableError(w, http.StatusServiceUnavailable, model.NewAuthUnavailableError(), config.RetryAfter)
					return
				}
				w.Header().Set("Refresh", retrySeconds)
				if config.Placeholder != nil {
					config.Placeholder.ServeHTTP(w, r)
					return
				}
				writeLoadingPage(w)

			default:
				if config.Mode == GuardModeAPI {
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
					return
				}
				http.Redirect(w, r, signInURL(config.SignInPath, r), http.StatusSeeOther)
			}
		})
	}
}

// signInURL はサインイン画面のURLに元のパスをnextパラメータとして付与する。
func signInURL(signInPath string, r *http.Request) string {
	u, err := url.Parse(signInPath)
	if err != nil {
		return DefaultSignInPath
	}
	q := u.Query()
	q.Set("next", r.URL.RequestURI())
	u.RawQuery = q.Encode()
	return u.String()
}

func writeLoadingPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>Loading…</title></head>` +
		`<body><main aria-busy="true"><p>Loading…</p></main></body></html>`))
}
