// Package app はサブコマンドごとの依存関係の組み立てと起動を行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/linknote/internal/auth"
	"github.com/hitoshi/linknote/internal/cache"
	"github.com/hitoshi/linknote/internal/config"
	"github.com/hitoshi/linknote/internal/database"
	"github.com/hitoshi/linknote/internal/handler"
	"github.com/hitoshi/linknote/internal/logger"
	"github.com/hitoshi/linknote/internal/metrics"
	"github.com/hitoshi/linknote/internal/middleware"
	"github.com/hitoshi/linknote/internal/note"
	"github.com/hitoshi/linknote/internal/repository"
	"github.com/hitoshi/linknote/internal/security"
	"github.com/hitoshi/linknote/internal/shortcode"
	"github.com/hitoshi/linknote/internal/shortener"
	"github.com/hitoshi/linknote/internal/user"
	"github.com/hitoshi/linknote/internal/worker/cleanup"
	"github.com/hitoshi/linknote/internal/worker/preview"
)

const (
	// apiKeyLength はAPIキーの文字数。
	apiKeyLength = 256
	// dbConnectTimeout は起動時のDB疎通確認のタイムアウト。
	dbConnectTimeout = 10 * time.Second
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELとAPP_ENVに従って構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		// 設定エラーを出力できるよう既定のロガーを用意する
		logger.SetupDefault(w, logger.Options{Level: slog.LevelInfo})
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.Options{
		Level: logger.ParseLevel(cfg.LogLevel),
		Text:  cfg.IsDevelopment(),
	})
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, known := ParseCommand(args)

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

	if !known {
		slog.Warn("unknown command, falling back to serve",
			slog.String("command", args[0]),
			slog.String("usage", Usage()),
		)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("env", cfg.AppEnv),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.OpenAndPing(ctx, cfg.DatabaseURL, dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リダイレクト先キャッシュ（任意）
	destCache, closeCache := openCache(ctx, cfg)
	defer closeCache()

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	services, err := newServices(db, cfg, destCache, collector)
	if err != nil {
		return err
	}

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitShorten),
	)
	defer rateLimiter.Stop()

	cookies := handler.AuthHandlerConfig{
		BaseURL:      cfg.BaseURL,
		CookieDomain: cfg.CookieDomain,
		CookieSecure: cfg.CookieSecure,
	}
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Verifier:          services.verifier,
		OutcomeRecorder:   collector,
		StatusRecorder:    collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:     rateLimiter,
		HealthChecker:   db,
		Metrics:         metrics.Handler(registry),
		AuthService:     services.auth,
		AuthConfig:      cookies,
		ShortURLService: services.shortener,
		NoteService:     services.notes,
		UserService:     services.users,
		APIKeyService:   services.auth,
		AdminService:    services.users,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// リダイレクトと閲覧で起動したクリック数更新の完了を待つ
	services.shortener.Wait()
	services.notes.Wait()

	slog.Info("API server stopped gracefully")
	return nil
}

// services はAPIサーバーが使用するドメインサービスの集合。
type services struct {
	verifier  *auth.Verifier
	auth      *auth.Service
	shortener *shortener.Service
	notes     *note.Service
	users     *user.Service
}

// newServices はリポジトリとドメインサービスを組み立てる。
func newServices(db *sql.DB, cfg *config.Config, destCache cache.DestinationCache, collector *metrics.Collector) (*services, error) {
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	inviteRepo := repository.NewPostgresInviteRepo(db)
	shortURLRepo := repository.NewPostgresShortURLRepo(db)
	noteRepo := repository.NewPostgresNoteRepo(db)

	apiKeys, err := shortcode.NewGenerator(shortcode.ExistenceFunc(userRepo.APIKeyExists), shortcode.Config{
		Charset: shortcode.APIKeyCharset,
		Length:  apiKeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create api key generator: %w", err)
	}
	aliases, err := shortcode.NewGenerator(shortURLRepo, shortcode.Config{
		Charset: shortcode.Alphanumeric,
		Length:  cfg.AliasLength,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create alias generator: %w", err)
	}

	ssrfGuard := security.NewSSRFGuard(hostOf(cfg.BaseURL))

	return &services{
		verifier: auth.NewVerifier(userRepo, sessionRepo),
		auth: auth.NewService(
			newOAuthProviders(cfg), userRepo, identRepo, sessionRepo, apiKeys,
			auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
		),
		shortener: shortener.NewService(
			shortURLRepo, aliases, ssrfGuard, destCache, collector,
			shortener.Config{BaseURL: cfg.BaseURL},
		),
		notes: note.NewService(noteRepo, security.NewNoteSanitizer(), collector),
		users: user.NewService(userRepo, sessionRepo, inviteRepo, apiKeys, destCache, user.Config{
			InviteLimit:            cfg.InviteLimit,
			DefaultSessionDuration: cfg.SessionMaxAge,
		}),
	}, nil
}

// newOAuthProviders は設定済みのOAuthプロバイダーだけを登録する。
func newOAuthProviders(cfg *config.Config) auth.Providers {
	var providers []auth.OAuthProvider
	if cfg.GitHubEnabled() {
		providers = append(providers, auth.NewGitHubProvider(auth.OAuthConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL(auth.ProviderGitHub),
		}))
	}
	if cfg.DiscordEnabled() {
		providers = append(providers, auth.NewDiscordProvider(auth.OAuthConfig{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL(auth.ProviderDiscord),
		}))
	}
	return auth.NewProviders(providers...)
}

// openCache はREDIS_URLが設定されていればRedisキャッシュを返す。
// 未設定または接続できない場合はキャッシュなしで起動する。
func openCache(ctx context.Context, cfg *config.Config) (cache.DestinationCache, func()) {
	if cfg.RedisURL == "" {
		return cache.Nop{}, func() {}
	}

	client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Warn("redis unavailable, starting without destination cache",
			slog.String("error", err.Error()),
		)
		return cache.Nop{}, func() {}
	}

	slog.Info("redis connection established", slog.Duration("ttl", cfg.CacheTTL))
	return cache.NewRedisDestinationCache(client, cfg.CacheTTL), func() { closeRedis(client) }
}

func closeRedis(client *redis.Client) {
	if err := client.Close(); err != nil {
		slog.Error("failed to close redis client", slog.String("error", err.Error()))
	}
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除とリンク先タイトルの取得を実行する。
// ctxがキャンセルされると両方のジョブの終了を待って戻る。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := database.OpenAndPing(ctx, cfg.DatabaseURL, dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	collector := metrics.NewCollector(prometheus.NewRegistry())

	cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), collector)
	cleanupJob.Interval = cfg.CleanupInterval

	fetcher := preview.NewTitleFetcher(
		security.NewSSRFGuard(hostOf(cfg.BaseURL)), cfg.PreviewTimeout, cfg.PreviewMaxSize,
	)
	previewWorker := preview.NewWorker(
		repository.NewPostgresShortURLRepo(db), fetcher, collector,
		slog.Default(), cfg.PreviewMaxConcurrent,
	)

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("preview_interval", cfg.PreviewInterval),
		slog.Int("preview_max_concurrent", cfg.PreviewMaxConcurrent),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		cleanupJob.Start(ctx)
	}()

	// タイトル取得をメインgoroutineで実行（ブロッキング）
	previewWorker.Start(ctx, cfg.PreviewInterval)
	<-done

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(ctx context.Context, cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(target string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
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
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.Redacted()
}

// hostOf はBASE_URLのホスト名を返す。自ホストへの短縮を拒否するために使う。
func hostOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
