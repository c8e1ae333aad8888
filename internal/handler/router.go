package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/socialburst/internal/middleware"
	"github.com/hitoshi/socialburst/internal/web"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFactory    middleware.StoreFactory
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           middleware.HTTPRecorder

	// 運用
	MetricsHandler http.Handler  // nilの場合は/metricsを公開しない
	HealthChecker  HealthChecker // nilの場合はプロセスの生存のみを返す

	// 画面
	Pages *web.Renderer

	// サービス
	ProfileService   ProfileServiceInterface
	PostService      PostServiceInterface
	CampaignService  CampaignServiceInterface
	EmailListService EmailListServiceInterface
	TrendService     TrendServiceInterface
	UserService      UserServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → MethodOverride → Session → Logging → CORS → CSRF
//
// 保護されたページとAPIはさらにRoute Guardを通過する。APIはその後にレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware(deps.Pages.Handler(http.StatusInternalServerError, web.PageError, "Error")))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CSRF.CookieSecure))
	r.Use(middleware.NewMethodOverrideMiddleware())
	r.Use(middleware.NewSessionMiddleware(deps.SessionFactory))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

	authHandler := NewAuthHandler(deps.Pages, deps.ProfileService)
	profileHandler := NewProfileHandler(deps.ProfileService)
	postHandler := NewPostHandler(deps.PostService)
	campaignHandler := NewCampaignHandler(deps.CampaignService)
	listHandler := NewListHandler(deps.EmailListService)
	dashboardHandler := NewDashboardHandler(deps.PostService, deps.ProfileService, deps.CampaignService, deps.TrendService)
	userHandler := NewUserHandler(deps.UserService)
	healthHandler := NewHealthHandler(deps.HealthChecker)
	pageHandler := NewPageHandler(deps.Pages, deps.ProfileService, deps.PostService, deps.CampaignService, deps.EmailListService, dashboardHandler)

	r.NotFound(pageHandler.NotFound)

	// --- 認証不要のルート ---

	r.Get("/", pageHandler.Landing)
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/", authHandler.Page)
		r.With(deps.RateLimiter.AuthAttemptMiddleware()).Post("/signin", authHandler.SignIn)
		r.With(deps.RateLimiter.AuthAttemptMiddleware()).Post("/signup", authHandler.SignUp)
		r.Post("/signout", authHandler.SignOut)
		r.Get("/me", authHandler.Me)
	})

	// --- 保護されたページ ---
	// セッション確定前はローディングページ、未認証はサインイン画面へリダイレクト
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewGuardMiddleware(deps.SessionFactory, middleware.GuardConfig{
			Mode:        middleware.GuardModePage,
			Placeholder: deps.Pages.Handler(http.StatusOK, web.PageLoading, "Loading"),
		}))

		r.Get("/dashboard", pageHandler.Dashboard)
		r.Get("/calendar", pageHandler.Calendar)
		r.Get("/analytics", pageHandler.Analytics)
		r.Get("/settings", pageHandler.Settings)
		r.Get("/create", pageHandler.Create)
		r.Get("/email-marketing", pageHandler.EmailMarketing)
		r.Get("/customize-dashboard", pageHandler.CustomizeDashboard)
	})

	// --- 認証が必要なAPI ---
	// ミドルウェアスタック: Guard(API) → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewGuardMiddleware(deps.SessionFactory, middleware.GuardConfig{
			Mode: middleware.GuardModeAPI,
		}))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// プロフィールとダッシュボード設定
		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.Put("/", profileHandler.UpdateProfile)
			r.Put("/preferences", profileHandler.UpdatePreferences)
		})

		// SNSアカウント連携
		r.Route("/api/social-accounts", func(r chi.Router) {
			r.Get("/", profileHandler.ListAccounts)
			r.Post("/", profileHandler.Connect)
			r.Delete("/{platform}", profileHandler.Disconnect)
		})

		// 投稿
		r.Route("/api/posts", func(r chi.Router) {
			r.Get("/", postHandler.ListPosts)
			r.Post("/", postHandler.CreatePost)
			r.Get("/ideas", postHandler.GenerateIdeas)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", postHandler.GetPost)
				r.Put("/", postHandler.UpdatePost)
				r.Delete("/", postHandler.DeletePost)
				r.Post("/publish", postHandler.PublishPost)
			})
		})

		// メールキャンペーン
		r.Route("/api/campaigns", func(r chi.Router) {
			r.Get("/", campaignHandler.ListCampaigns)
			r.Post("/", campaignHandler.CreateCampaign)
			r.Post("/preview", campaignHandler.PreviewCampaign)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", campaignHandler.GetCampaign)
				r.Put("/", campaignHandler.UpdateCampaign)
				r.Delete("/", campaignHandler.DeleteCampaign)
				r.Post("/send", campaignHandler.SendCampaign)
			})
		})

		// 購読者リスト
		r.Route("/api/lists", func(r chi.Router) {
			r.Get("/", listHandler.ListLists)
			r.Post("/", listHandler.CreateList)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", listHandler.DeleteList)
				r.Get("/subscribers", listHandler.ListSubscribers)
				r.Post("/import", listHandler.ImportSubscribers)
				r.Post("/subscribers/{subscriberID}/unsubscribe", listHandler.Unsubscribe)
			})
		})

		r.Get("/api/email/stats", campaignHandler.Stats)
		r.Get("/api/dashboard/summary", dashboardHandler.Summary)
		r.Get("/api/trends", dashboardHandler.Trends)

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}
