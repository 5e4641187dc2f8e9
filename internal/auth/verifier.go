package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/hitoshi/linknote/internal/model"
	"github.com/hitoshi/linknote/internal/repository"
)

const (
	// SessionCookieName はセッショントークンを保持するCookie名。
	SessionCookieName = "_session"
	// APIKeyHeader はAPIキーを渡すリクエストヘッダー名。
	APIKeyHeader = "x-api-key"
)

// Credentials はリクエストから取り出した認証情報。
type Credentials struct {
	SessionToken string
	APIKey       string
}

// CredentialsFromRequest は_session CookieとAPIキーヘッダーを読み取る。
func CredentialsFromRequest(r *http.Request) Credentials {
	var creds Credentials
	if c, err := r.Cookie(SessionCookieName); err == nil {
		creds.SessionToken = c.Value
	}
	creds.APIKey = r.Header.Get(APIKeyHeader)
	return creds
}

// sessionToken はUUIDとして解釈できるトークンを正規化して返す。
// 解釈できない場合はセッションなしとして空文字を返す。
func (c Credentials) sessionToken() string {
	if c.SessionToken == "" {
		return ""
	}
	id, err := uuid.Parse(c.SessionToken)
	if err != nil {
		return ""
	}
	return id.String()
}

// Verifier はセッションまたはAPIキーでリクエスト元のユーザーを特定する。
type Verifier struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
}

// NewVerifier はVerifierを生成する。
func NewVerifier(users repository.UserRepository, sessions repository.SessionRepository) *Verifier {
	return &Verifier{users: users, sessions: sessions}
}

// Verify は認証情報を検証し、scopesのフィールドだけを読み込んだユーザーを返す。
// セッション、APIキーの順に照合し、最初に一致したものを採用する。
// どちらにも一致しない場合は nil, nil を返す。
//
// scopesが空でrequireAdminがfalseの場合は存在確認のみ行い、
// フィールドが空のProjectedUserを返す。
func (v *Verifier) Verify(ctx context.Context, creds Credentials, scopes model.Scopes, requireAdmin bool) (*model.ProjectedUser, error) {
	if requireAdmin {
		scopes = scopes.With(model.FieldAdmin)
	}
	token := creds.sessionToken()

	if scopes.IsEmpty() {
		return v.exists(ctx, token, creds.APIKey)
	}

	fields, err := scopes.Resolve()
	if err != nil {
		return nil, err
	}

	if token != "" {
		user, err := v.users.ProjectBySession(ctx, token, fields)
		if err != nil {
			return nil, fmt.Errorf("failed to verify session: %w", err)
		}
		if user != nil {
			return user, nil
		}
	}

	if creds.APIKey != "" {
		user, err := v.users.ProjectByAPIKey(ctx, creds.APIKey, fields)
		if err != nil {
			return nil, fmt.Errorf("failed to verify api key: %w", err)
		}
		if user != nil {
			return user, nil
		}
	}

	return nil, nil
}

func (v *Verifier) exists(ctx context.Context, token, apiKey string) (*model.ProjectedUser, error) {
	if token != "" {
		ok, err := v.sessions.Exists(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("failed to verify session: %w", err)
		}
		if ok {
			return &model.ProjectedUser{}, nil
		}
	}

	if apiKey != "" {
		ok, err := v.users.APIKeyExists(ctx, apiKey)
		if err != nil {
			return nil, fmt.Errorf("failed to verify api key: %w", err)
		}
		if ok {
			return &model.ProjectedUser{}, nil
		}
	}

	return nil, nil
}
