package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/linknote/internal/auth"
	"github.com/hitoshi/linknote/internal/middleware"
	"github.com/hitoshi/linknote/internal/model"
)

// access はルートの認証方式。
type access int

const (
	accessPublic   access = iota // 認証しない
	accessOptional               // 認証情報があればユーザーをコンテキストに格納する
	accessGated                  // policyに従って認可する
)

// limit はルートに適用するレート制限。
type limit int

const (
	limitGeneral limit = iota
	limitShorten       // API全般に加えて短縮URL作成の制限を適用する
	limitNone
)

// route はルーティング表の1行。
type route struct {
	method  string
	pattern string
	access  access
	policy  auth.Policy
	limit   limit
	handler http.HandlerFunc
}

var (
	// userPolicy はログイン済みであればよいルート。承認待ちでもアカウント操作はできる。
	userPolicy = auth.Policy{Scopes: model.Fields(model.FieldID)}
	// memberPolicy は承認済みユーザーのみのルート。
	memberPolicy = auth.Policy{Scopes: model.Fields(model.FieldID), RequireAuthorized: true}
	// adminPolicy は管理者のみのルート。
	adminPolicy = auth.Policy{Scopes: model.Fields(model.FieldID), Admin: true}
)

// HealthChecker はDB接続の確認に使う。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Verifier          middleware.CredentialVerifier
	OutcomeRecorder   middleware.OutcomeRecorder
	StatusRecorder    middleware.StatusRecorder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker HealthChecker
	Metrics       http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 短縮URL
	ShortURLService ShortURLServiceInterface

	// ノート
	NoteService NoteServiceInterface

	// ユーザー
	UserService   UserServiceInterface
	APIKeyService APIKeyRegenerator
	AdminService  AdminServiceInterface
}

// routes はルーティング表を返す。認可要件はここで一元管理する。
func routes(a *AuthHandler, u *URLHandler, n *NoteHandler, us *UserHandler, ad *AdminHandler) []route {
	return []route{
		// 認証
		{method: http.MethodGet, pattern: "/auth/login", handler: a.Providers},
		{method: http.MethodGet, pattern: "/auth/providers", handler: a.Providers},
		{method: http.MethodPost, pattern: "/auth/signup", handler: a.Signup},
		{method: http.MethodPost, pattern: "/auth/login", handler: a.Login},
		{method: http.MethodPost, pattern: "/auth/logout", handler: a.Logout},
		{method: http.MethodGet, pattern: "/auth/{provider}/login", handler: a.OAuthLogin},
		{method: http.MethodGet, pattern: "/auth/{provider}/callback", handler: a.OAuthCallback},

		// 短縮URL
		{method: http.MethodPost, pattern: "/api/urls", access: accessGated, policy: memberPolicy, limit: limitShorten, handler: u.Create},
		{method: http.MethodGet, pattern: "/api/urls", access: accessGated, policy: memberPolicy, handler: u.List},
		{method: http.MethodGet, pattern: "/api/urls/sharex", access: accessGated, handler: u.ShareX, policy: auth.Policy{
			Scopes:            model.Fields(model.FieldID, model.FieldAPIKey),
			RequireAuthorized: true,
			Redirect:          true,
		}},
		{method: http.MethodGet, pattern: "/api/urls/{alias}", access: accessGated, policy: memberPolicy, handler: u.Get},
		{method: http.MethodPatch, pattern: "/api/urls/{alias}", access: accessGated, policy: memberPolicy, handler: u.Edit},
		{method: http.MethodDelete, pattern: "/api/urls/{alias}", access: accessGated, policy: memberPolicy, handler: u.Delete},

		// ノート
		{method: http.MethodPost, pattern: "/api/notes", access: accessGated, policy: memberPolicy, handler: n.Create},
		{method: http.MethodGet, pattern: "/api/notes", access: accessGated, policy: memberPolicy, handler: n.List},
		{method: http.MethodDelete, pattern: "/api/notes/{id}", access: accessGated, policy: memberPolicy, handler: n.Delete},
		{method: http.MethodGet, pattern: "/notes/{id}/info", handler: n.Info},
		{method: http.MethodGet, pattern: "/notes/{id}", access: accessOptional, handler: n.View},
		{method: http.MethodPost, pattern: "/notes/{id}", access: accessOptional, handler: n.Unlock},

		// アカウント
		{method: http.MethodGet, pattern: "/api/account", access: accessGated, policy: userPolicy, handler: us.Me},
		{method: http.MethodPatch, pattern: "/api/account", access: accessGated, policy: userPolicy, handler: us.UpdateAccount},
		{method: http.MethodDelete, pattern: "/api/account", access: accessGated, policy: userPolicy, handler: us.Withdraw},
		{method: http.MethodPost, pattern: "/api/account/api-key", access: accessGated, policy: userPolicy, handler: us.RegenerateAPIKey},
		{method: http.MethodGet, pattern: "/api/account/sessions", access: accessGated, policy: userPolicy, handler: us.ListSessions},
		{method: http.MethodDelete, pattern: "/api/account/sessions/{id}", access: accessGated, policy: userPolicy, handler: us.RevokeSession},

		// 招待コード
		{method: http.MethodGet, pattern: "/api/invites", access: accessGated, policy: memberPolicy, handler: us.ListInvites},
		{method: http.MethodPost, pattern: "/api/invites", access: accessGated, handler: us.CreateInvite, policy: auth.Policy{
			Scopes:            model.Fields(model.FieldID, model.FieldAdmin),
			RequireAuthorized: true,
		}},

		// 管理
		{method: http.MethodGet, pattern: "/api/admin/stats", access: accessGated, policy: adminPolicy, handler: ad.Stats},
		{method: http.MethodGet, pattern: "/api/admin/users", access: accessGated, policy: adminPolicy, handler: ad.ListUsers},
		{method: http.MethodPost, pattern: "/api/admin/users", access: accessGated, policy: adminPolicy, handler: ad.CreateUser},
		{method: http.MethodPatch, pattern: "/api/admin/users/{id}", access: accessGated, policy: adminPolicy, handler: ad.EditUser},
		{method: http.MethodDelete, pattern: "/api/admin/users/{id}", access: accessGated, policy: adminPolicy, handler: ad.DeleteUser},
		{method: http.MethodPost, pattern: "/api/admin/users/{id}/authorize", access: accessGated, policy: adminPolicy, handler: ad.Authorize},
		{method: http.MethodPost, pattern: "/api/admin/users/{id}/unauthorize", access: accessGated, policy: adminPolicy, handler: ad.Unauthorize},

		// リダイレクト
		{method: http.MethodGet, pattern: "/{alias}", limit: limitNone, handler: u.Redirect},
	}
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 全ルート共通のミドルウェア:
//
//	Recovery → Logging → SecurityHeaders → CORS → CSRF
//
// ルートごとのミドルウェア:
//
//	AuthGate（またはOptionalAuth） → RateLimit(General) → RateLimit(Shorten)
//
// レート制限を認可の後に置くことで、認証済みリクエストはユーザー単位で数える。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CSRFConfig.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	r.NotFound(middleware.WriteNotFound)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}
	r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	urlHandler := NewURLHandler(deps.ShortURLService)
	noteHandler := NewNoteHandler(deps.NoteService)
	userHandler := NewUserHandler(deps.UserService, deps.APIKeyService, deps.AuthConfig)
	adminHandler := NewAdminHandler(deps.AdminService)

	for _, rt := range routes(authHandler, urlHandler, noteHandler, userHandler, adminHandler) {
		r.With(routeMiddlewares(deps, rt)...).Method(rt.method, rt.pattern, rt.handler)
	}

	return r
}

// routeMiddlewares はルートの認証方式とレート制限からミドルウェアを組み立てる。
func routeMiddlewares(deps *RouterDeps, rt route) []func(http.Handler) http.Handler {
	var mws []func(http.Handler) http.Handler

	switch rt.access {
	case accessGated:
		mws = append(mws, middleware.NewAuthGate(deps.Verifier, rt.policy, deps.OutcomeRecorder))
	case accessOptional:
		mws = append(mws, middleware.NewOptionalAuth(deps.Verifier, model.Fields(model.FieldID)))
	}

	if deps.RateLimiter != nil {
		switch rt.limit {
		case limitGeneral:
			mws = append(mws, deps.RateLimiter.GeneralMiddleware())
		case limitShorten:
			mws = append(mws, deps.RateLimiter.GeneralMiddleware(), deps.RateLimiter.ShortenMiddleware())
		}
	}
	return mws
}

// healthHandler はDB接続を確認するヘルスチェックハンドラーを返す。
func healthHandler(db HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
