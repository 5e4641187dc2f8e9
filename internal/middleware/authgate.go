// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/linknote/internal/auth"
	"github.com/hitoshi/linknote/internal/model"
)

// LoginPath は未認証時のリダイレクト先。
const LoginPath = "/auth/login"

// StatusPendingAuthorization は承認待ちユーザーに返すステータスコード。
const StatusPendingAuthorization = 499

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var principalContextKey = contextKey("principal")

// CredentialVerifier は認証情報の検証に必要なインターフェース。
type CredentialVerifier interface {
	Verify(ctx context.Context, creds auth.Credentials, scopes model.Scopes, requireAdmin bool) (*model.ProjectedUser, error)
}

// OutcomeRecorder は認可判定の結果を記録する。
type OutcomeRecorder interface {
	RecordAuthOutcome(outcome string)
}

// NewAuthGate はpolicyに従ってリクエストを認可するミドルウェアを返す。
//
//   - 認証情報が一致しない: Redirectなら302でLoginPathへ、それ以外は401
//   - 承認待ち: 499（管理者判定より先に行う）
//   - 管理者でない: 403
//   - 許可: 検証済みユーザーをコンテキストに格納してnextを呼ぶ
//
// ストアのエラーは500で応答する。recorderはnilでもよい。
func NewAuthGate(verifier CredentialVerifier, policy auth.Policy, recorder OutcomeRecorder) func(next http.Handler) http.Handler {
	scopes := policy.EffectiveScopes()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := auth.CredentialsFromRequest(r)

			user, err := verifier.Verify(r.Context(), creds, scopes, policy.Admin)
			if err != nil {
				slog.Error("failed to verify credentials",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			outcome := policy.Decide(user)
			if recorder != nil {
				recorder.RecordAuthOutcome(outcome.String())
			}

			switch outcome {
			case auth.OutcomeAnonymous:
				if policy.Redirect {
					http.Redirect(w, r, LoginPath, http.StatusFound)
					return
				}
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			case auth.OutcomePending:
				WriteErrorResponse(w, StatusPendingAuthorization, model.NewPendingAuthorizationError())
			case auth.OutcomeForbidden:
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
			default:
				if user.Has(model.FieldID) {
					noteUserID(r.Context(), user.ID)
				}
				next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), user)))
			}
		})
	}
}

// NewOptionalAuth は認証情報があればユーザーをコンテキストに格納し、なければそのままnextを呼ぶ。
// 公開ページで所有者かどうかを判定するために使う。
func NewOptionalAuth(verifier CredentialVerifier, scopes model.Scopes) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := auth.CredentialsFromRequest(r)
			if creds.SessionToken == "" && creds.APIKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := verifier.Verify(r.Context(), creds, scopes, false)
			if err != nil {
				slog.Error("failed to verify credentials",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if user == nil {
				next.ServeHTTP(w, r)
				return
			}
			if user.Has(model.FieldID) {
				noteUserID(r.Context(), user.ID)
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), user)))
		})
	}
}

// PrincipalFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// AuthGateを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (*model.ProjectedUser, bool) {
	user, ok := ctx.Value(principalContextKey).(*model.ProjectedUser)
	return user, ok && user != nil
}

// ContextWithPrincipal はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, user *model.ProjectedUser) context.Context {
	return context.WithValue(ctx, principalContextKey, user)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// ポリシーのスコープにidを含むルートでのみ有効。
func UserIDFromContext(ctx context.Context) (int64, error) {
	user, ok := PrincipalFromContext(ctx)
	if !ok || !user.Has(model.FieldID) {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return user.ID, nil
}
