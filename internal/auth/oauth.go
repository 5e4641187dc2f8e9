package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	ProviderGitHub  = "github"
	ProviderDiscord = "discord"

	defaultGitHubAuthURL      = "https://github.com/login/oauth/authorize"
	defaultGitHubTokenURL     = "https://github.com/login/oauth/access_token"
	defaultGitHubUserInfoURL  = "https://api.github.com/user"
	defaultDiscordAuthURL     = "https://discord.com/api/oauth2/authorize"
	defaultDiscordTokenURL    = "https://discord.com/api/oauth2/token"
	defaultDiscordUserInfoURL = "https://discord.com/api/users/@me"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string // "github", "discord"
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// Name はプロバイダー名を返す。
	Name() string
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// OAuthConfig はOAuthプロバイダーの設定。
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string

	HTTPClient *http.Client
}

// oauthProvider はauthorization codeフローの共通実装。
// プロバイダーごとの差分はスコープ、追加パラメータ、ユーザー情報の解析のみ。
type oauthProvider struct {
	name        string
	config      OAuthConfig
	scope       string
	extraParams url.Values
	parseUser   func(body []byte) (*OAuthUserInfo, error)
}

// NewGitHubProvider はGitHub OAuthプロバイダーを生成する。
// 新規のGitHubアカウント作成は許可しない。
func NewGitHubProvider(config OAuthConfig) OAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGitHubAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGitHubTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultGitHubUserInfoURL
	}
	return &oauthProvider{
		name:        ProviderGitHub,
		config:      config,
		scope:       "user:email",
		extraParams: url.Values{"allow_signup": {"false"}},
		parseUser:   parseGitHubUser,
	}
}

// NewDiscordProvider はDiscord OAuthプロバイダーを生成する。
func NewDiscordProvider(config OAuthConfig) OAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultDiscordAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultDiscordTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultDiscordUserInfoURL
	}
	return &oauthProvider{
		name:      ProviderDiscord,
		config:    config,
		scope:     "identify email",
		parseUser: parseDiscordUser,
	}
}

func (p *oauthProvider) Name() string {
	return p.name
}

// GetLoginURL は認証URLを生成する。
func (p *oauthProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {p.scope},
		"state":         {state},
	}
	for k, v := range p.extraParams {
		params[k] = v
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// tokenResponse はトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
func (p *oauthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	accessToken, err := p.exchangeToken(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	body, err := p.fetchUserInfo(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	info, err := p.parseUser(body)
	if err != nil {
		return nil, err
	}
	info.Provider = p.name
	return info, nil
}

func (p *oauthProvider) client() *http.Client {
	if p.config.HTTPClient != nil {
		return p.config.HTTPClient
	}
	return http.DefaultClient
}

// exchangeToken は認可コードをアクセストークンに交換する。
func (p *oauthProvider) exchangeToken(ctx context.Context, code string) (string, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// GitHubはAcceptがない場合form形式で返す
	req.Header.Set("Accept", "application/json")

	body, err := p.do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.Error != "" {
		return "", fmt.Errorf("token exchange failed: %s", tokenResp.Error)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}

	return tokenResp.AccessToken, nil
}

// fetchUserInfo はアクセストークンでユーザー情報を取得する。
func (p *oauthProvider) fetchUserInfo(ctx context.Context, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	return p.do(req)
}

func (p *oauthProvider) do(req *http.Request) ([]byte, error) {
	resp, err := p.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// githubUser はGitHubの /user レスポンス。idは数値。
type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
}

func parseGitHubUser(body []byte) (*OAuthUserInfo, error) {
	var u githubUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("empty id in user info response")
	}
	return &OAuthUserInfo{
		ProviderUserID: strconv.FormatInt(u.ID, 10),
		Email:          u.Email,
		Name:           u.Login,
	}, nil
}

// discordUser はDiscordの /users/@me レスポンス。idはsnowflake文字列。
type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func parseDiscordUser(body []byte) (*OAuthUserInfo, error) {
	var u discordUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("empty id in user info response")
	}
	return &OAuthUserInfo{
		ProviderUserID: u.ID,
		Email:          u.Email,
		Name:           u.Username,
	}, nil
}

// Providers は有効なOAuthプロバイダーの集合。起動時に1回構築する。
type Providers map[string]OAuthProvider

// NewProviders はプロバイダーを名前で登録する。nilは無視する。
func NewProviders(providers ...OAuthProvider) Providers {
	ps := make(Providers, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		ps[p.Name()] = p
	}
	return ps
}

// Get は名前でプロバイダーを返す。
func (ps Providers) Get(name string) (OAuthProvider, bool) {
	p, ok := ps[name]
	return p, ok
}

// Names はプロバイダー名を昇順で返す。
func (ps Providers) Names() []string {
	names := make([]string, 0, len(ps))
	for name := range ps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// compile-time interface check
var _ OAuthProvider = (*oauthProvider)(nil)
