package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/socialburst/internal/auth"
	"github.com/hitoshi/socialburst/internal/campaign"
	"github.com/hitoshi/socialburst/internal/config"
	"github.com/hitoshi/socialburst/internal/database"
	"github.com/hitoshi/socialburst/internal/datastore"
	"github.com/hitoshi/socialburst/internal/emaillist"
	"github.com/hitoshi/socialburst/internal/handler"
	"github.com/hitoshi/socialburst/internal/logger"
	"github.com/hitoshi/socialburst/internal/metrics"
	"github.com/hitoshi/socialburst/internal/middleware"
	"github.com/hitoshi/socialburst/internal/post"
	"github.com/hitoshi/socialburst/internal/profile"
	"github.com/hitoshi/socialburst/internal/repository"
	"github.com/hitoshi/socialburst/internal/security"
	"github.com/hitoshi/socialburst/internal/session"
	"github.com/hitoshi/socialburst/internal/trend"
	"github.com/hitoshi/socialburst/internal/user"
	"github.com/hitoshi/socialburst/internal/web"
	"github.com/hitoshi/socialburst/internal/worker/cleanup"
)

// dbPingTimeout は起動時のDB疎通確認のタイムアウト。
const dbPingTimeout = 5 * time.Second

// Init はアプリケーションの初期化を行う。
// 構造化ログをセットアップしてから環境変数のConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする（LOG_FORMAT未設定時はJSON）
	logger.SetupDefault(w, os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetupDefault(w, cfg.LogFormat, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	var action MigrateAction
	if cmd == CommandMigrate {
		if action, err = ParseMigrateAction(args[1:]); err != nil {
			return err
		}
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("アプリケーションを起動します",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("auth_provider", cfg.AuthProvider),
		slog.String("data_store", cfg.DataStore),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(w, cfg, action)
	default:
		return runServe(cfg)
	}
}

// needsDatabase はPostgreSQL接続が必要な構成かどうかを返す。
// LocalProviderのusers/sessionsとpostgresデータストアがPostgreSQLを使う。
func needsDatabase(cfg *config.Config) bool {
	return cfg.DataStore == "postgres" || cfg.AuthProvider == "local"
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("データベースに接続しました")
	return db, nil
}

// newDataStore はDATA_STOREに対応するデータストアを生成する。
func newDataStore(cfg *config.Config, db *sql.DB) (datastore.Store, error) {
	switch cfg.DataStore {
	case "memory":
		slog.Warn("インメモリのデータストアを使用します。再起動でデータは失われます")
		return datastore.NewMemoryStore(), nil
	default:
		if db == nil {
			return nil, errors.New("postgres data store requires a database connection")
		}
		return datastore.NewPostgresStore(db), nil
	}
}

// newAuthProvider はAUTH_PROVIDERに対応する認証プロバイダーを生成する。
func newAuthProvider(cfg *config.Config, db *sql.DB) (auth.Provider, error) {
	switch cfg.AuthProvider {
	case "gotrue":
		return auth.NewGoTrueProvider(auth.GoTrueConfig{
			URL:        cfg.GoTrueURL,
			APIKey:     cfg.GoTrueAPIKey,
			ServiceKey: cfg.GoTrueServiceKey,
			Timeout:    cfg.AuthTimeout,
		}), nil
	default:
		if db == nil {
			return nil, errors.New("local auth provider requires a database connection")
		}
		return auth.NewLocalProvider(
			repository.NewPostgresUserRepo(db),
			repository.NewPostgresSessionRepo(db),
			auth.LocalConfig{
				Secret:          []byte(cfg.SessionSecret),
				AccessTokenTTL:  cfg.AccessTokenTTL,
				RefreshTokenTTL: cfg.RefreshTokenTTL,
			},
		), nil
	}
}

// server はserveモードで組み立てたHTTPハンドラーと、終了時に解放する依存。
type server struct {
	handler     http.Handler
	factory     *session.Factory
	rateLimiter *middleware.RateLimiter
}

// Close はレートリミッターを停止し、Session Storeの生成を締め切る。
func (s *server) Close() error {
	s.rateLimiter.Stop()
	return s.factory.Close()
}

// newServer は全依存関係をワイヤリングしてserverを生成する。
// dbはDB不要の構成（memory + gotrue）ではnilでよい。
func newServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (*server, error) {
	collector := metrics.NewCollector(reg)

	store, err := newDataStore(cfg, db)
	if err != nil {
		return nil, err
	}
	provider, err := newAuthProvider(cfg, db)
	if err != nil {
		return nil, err
	}
	accounts, ok := provider.(auth.AccountRemover)
	if !ok {
		return nil, fmt.Errorf("auth provider %q cannot delete accounts", cfg.AuthProvider)
	}

	pages, err := web.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	// リポジトリ
	profileRepo := repository.NewStoreProfileRepo(store)
	accountRepo := repository.NewStoreSocialAccountRepo(store)
	postRepo := repository.NewStorePostRepo(store)
	campaignRepo := repository.NewStoreCampaignRepo(store)
	listRepo := repository.NewStoreEmailListRepo(store)
	subscriberRepo := repository.NewStoreSubscriberRepo(store)

	// セキュリティ
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// ドメインサービス
	profileService := profile.NewService(profileRepo, accountRepo, ssrfGuard)
	postService := post.NewService(postRepo, sanitizer, ssrfGuard)
	campaignService := campaign.NewService(campaignRepo, listRepo, subscriberRepo, sanitizer)
	listService := emaillist.NewService(listRepo, subscriberRepo)
	trendService := trend.NewService(
		cfg.TrendFeedURL, cfg.TrendCacheTTL,
		ssrfGuard.NewSafeClient(cfg.FetchTimeout),
		sanitizer, collector,
	)
	userService := user.NewService(profileRepo, accounts, user.Deleters{
		Posts:          postRepo,
		Campaigns:      campaignRepo,
		EmailLists:     listRepo,
		SocialAccounts: accountRepo,
	})

	factory := session.NewFactory(provider, session.FactoryConfig{
		Cookie: session.CookieConfig{
			Domain: cfg.CookieDomain,
			Secure: cfg.CookieSecure,
			MaxAge: cfg.RefreshTokenTTL,
		},
		Observer: collector,
	})
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)

	deps := &handler.RouterDeps{
		SessionFactory:    factory,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    rateLimiter,
		Logger:         slog.Default(),
		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),

		Pages: pages,

		ProfileService:   profileService,
		PostService:      postService,
		CampaignService:  campaignService,
		EmailListService: listService,
		TrendService:     trendService,
		UserService:      userService,
	}
	// *sql.DBのnilをインターフェースに入れるとnilチェックをすり抜けるため分岐する
	if db != nil {
		deps.HealthChecker = db
	}

	return &server{
		handler:     handler.NewRouter(deps),
		factory:     factory,
		rateLimiter: rateLimiter,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	var db *sql.DB
	if needsDatabase(cfg) {
		var err error
		db, err = openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	reg := prometheus.NewRegistry()
	srv, err := newServer(cfg, db, reg)
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			slog.Warn("Session Storeの終了処理に失敗しました", slog.String("error", err.Error()))
		}
	}()

	return serveHTTP(&http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	})
}

// serveHTTP はHTTPサーバーを起動し、シグナル受信でグレースフルシャットダウンする。
func serveHTTP(server *http.Server) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTPサーバーを起動します", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen failed: %w", err)
	case <-stop:
	}
	slog.Info("HTTPサーバーを停止しています...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTPサーバーを停止しました")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションを定期的に削除し、/healthと/metricsを公開する。
func runWorker(cfg *config.Config) error {
	if cfg.AuthProvider != "local" {
		slog.Info("外部の認証プロバイダーを使用しているためワーカーの処理対象はありません",
			slog.String("auth_provider", cfg.AuthProvider),
		)
		return nil
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	job := cleanup.NewSessionCleanupJob(db, slog.Default(), collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("ワーカーを起動します",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		job.Loop(ctx, cfg.SessionCleanupInterval)
	}()

	router := chi.NewRouter()
	router.Get("/health", handler.NewHealthHandler(db).Health)
	router.Handle("/metrics", metrics.Handler(reg))

	err = serveHTTP(&http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	})
	cancel()
	<-done

	slog.Info("ワーカーを停止しました")
	return err
}

// runMigrate はマイグレーションの適用、1つ分の取り消し、バージョン表示のいずれかを行う。
func runMigrate(w io.Writer, cfg *config.Config, action MigrateAction) error {
	slog.Info("データベースマイグレーションを実行します",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case MigrateDown:
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	case MigrateVersion:
		status, err := database.CurrentMigration(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("migration version failed: %w", err)
		}
		if !status.Applied {
			fmt.Fprintln(w, "no migrations applied")
			return nil
		}
		fmt.Fprintf(w, "version %d (dirty: %t)\n", status.Version, status.Dirty)
		return nil
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	slog.Info("データベースマイグレーションが完了しました", slog.String("action", string(action)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
