// Package app はサブコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/bookmarkman/internal/auth"
	"github.com/hitoshi/bookmarkman/internal/bookmark"
	"github.com/hitoshi/bookmarkman/internal/config"
	"github.com/hitoshi/bookmarkman/internal/database"
	"github.com/hitoshi/bookmarkman/internal/handler"
	"github.com/hitoshi/bookmarkman/internal/logger"
	"github.com/hitoshi/bookmarkman/internal/metrics"
	"github.com/hitoshi/bookmarkman/internal/middleware"
	"github.com/hitoshi/bookmarkman/internal/preview"
	"github.com/hitoshi/bookmarkman/internal/repository"
	"github.com/hitoshi/bookmarkman/internal/security"
	"github.com/hitoshi/bookmarkman/internal/user"
	"github.com/hitoshi/bookmarkman/internal/worker/cleanup"
)

// --- compile-time interface checks ---

var (
	_ handler.AuthServiceInterface     = (*auth.Service)(nil)
	_ handler.BookmarkServiceInterface = (*bookmark.Service)(nil)
	_ handler.PreviewServiceInterface  = (*preview.Service)(nil)
	_ handler.UserServiceInterface     = (*user.Service)(nil)
	_ handler.SessionCookieCodec       = (*security.CookieCodec)(nil)
	_ middleware.HTTPMetricsRecorder   = (*metrics.Collector)(nil)
	_ bookmark.MetricsRecorder         = (*metrics.Collector)(nil)
	_ preview.MetricsRecorder          = (*metrics.Collector)(nil)
	_ cleanup.MetricsRecorder          = (*metrics.Collector)(nil)
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envを読み込む（LOG_LEVELを含むため、ログ初期化より前に行う）
	if err := config.LoadDotEnv(""); err != nil {
		return nil, err
	}

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

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

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandUseradd:
		return runUseradd(ctx, cfg, args[1:])
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	bookmarkRepo := repository.NewPostgresBookmarkRepo(db)

	// 4. セキュリティ部品の初期化
	urlGuard := security.NewURLGuard()
	cookieCodec := security.NewCookieCodec(cfg.SessionSecret, cfg.SessionMaxAge)

	// 5. ドメインサービスの初期化
	authService := auth.NewService(userRepo, sessionRepo, auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge})

	reorderer := bookmark.NewReorderer(cfg.ReorderMode, bookmarkRepo, cfg.ReorderMaxConcurrent)
	bookmarkService := bookmark.NewService(bookmarkRepo, reorderer, collector, bookmark.ServiceConfig{BaseURL: cfg.BaseURL})

	previewCache := newPreviewCache(ctx, cfg)
	previewService := preview.NewService(urlGuard, security.NewTextSanitizer(), previewCache, collector, preview.ServiceConfig{
		Timeout:         cfg.PreviewTimeout,
		MaxSize:         cfg.PreviewMaxSize,
		SummaryEndpoint: cfg.SummaryEndpoint,
	})

	userService := user.NewService(userRepo, sessionRepo, bookmarkRepo)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitPreview, cfg.RateLimitAuth))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     sessionRepo,
		CookieCodec:       cookieCodec,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,
		HTTPMetrics: collector,

		DB:             db,
		MetricsHandler: metrics.Handler(registry),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		BookmarkService: bookmarkService,
		PreviewService:  previewService,
		UserService:     userService,
	})

	slog.Info("services initialized",
		slog.String("reorder_mode", string(reorderer.Mode())),
		slog.Bool("preview_cache", cfg.RedisURL != ""),
	)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.PreviewTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serveUntilDone(ctx, server, "API server")
}

// newPreviewCache はREDIS_URLが設定されていればRedisキャッシュを返す。
// 接続できない場合はキャッシュなしで起動を続ける。
func newPreviewCache(ctx context.Context, cfg *config.Config) preview.Cache {
	if cfg.RedisURL == "" {
		return preview.NopCache{}
	}

	client, err := preview.ConnectRedis(ctx, cfg.RedisURL, preview.DefaultConnectOptions())
	if err != nil {
		slog.Warn("Redisに接続できないため、プレビューキャッシュを無効にします",
			slog.String("error", err.Error()),
		)
		return preview.NopCache{}
	}
	return preview.NewRedisCache(client, cfg.PreviewCacheTTL)
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除ジョブを定期実行し、/metricsを公開する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. クリーンアップジョブの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, collector, slog.Default())

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
	)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	// メトリクスサーバーが起動に失敗した場合はジョブも止める
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverDone := make(chan error, 1)
	go func() {
		err := serveUntilDone(ctx, server, "worker metrics server")
		if err != nil {
			cancel()
		}
		serverDone <- err
	}()

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	if err := <-serverDone; err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// serveUntilDone はserverを起動し、ctxがキャンセルされたらシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
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
	if i := strings.Index(url, "@"); i >= 0 {
		if j := strings.Index(url, "://"); j >= 0 && j < i {
			return url[:j+3] + "***" + url[i:]
		}
	}
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
