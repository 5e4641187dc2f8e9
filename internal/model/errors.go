// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, shortener, note, invite, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodePendingAuthorization = "PENDING_AUTHORIZATION"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeValidation           = "VALIDATION_FAILED"
	ErrCodeInvalidURL           = "INVALID_URL"
	ErrCodeSSRFBlocked          = "SSRF_BLOCKED"
	ErrCodeAliasTaken           = "ALIAS_TAKEN"
	ErrCodeInvalidAlias         = "INVALID_ALIAS"
	ErrCodeShortURLNotFound     = "SHORT_URL_NOT_FOUND"
	ErrCodeNoteNotFound         = "NOTE_NOT_FOUND"
	ErrCodeIncorrectPassword    = "INCORRECT_PASSWORD"
	ErrCodePasswordRequired     = "PASSWORD_REQUIRED"
	ErrCodeNotePrivate          = "NOTE_PRIVATE"
	ErrCodeInvalidNoteID        = "INVALID_NOTE_ID"
	ErrCodeEmailTaken           = "EMAIL_TAKEN"
	ErrCodeInviteInvalid        = "INVITE_INVALID"
	ErrCodeInviteLimit          = "INVITE_LIMIT"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeSessionNotFound      = "SESSION_NOT_FOUND"
	ErrCodeUnknownProvider      = "UNKNOWN_PROVIDER"
	ErrCodeInvalidSort          = "INVALID_SORT"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeCSRFTokenInvalid     = "CSRF_TOKEN_INVALID"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインするか、x-api-key ヘッダーにAPIキーを指定してください。",
	}
}

// NewPendingAuthorizationError は管理者の承認待ちエラーを生成する。
func NewPendingAuthorizationError() *APIError {
	return &APIError{
		Code:     ErrCodePendingAuthorization,
		Message:  "Pending Authorization",
		Category: "auth",
		Action:   "管理者がアカウントを承認するまでお待ちください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("%s が不正です: %s", field, reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLは短縮できません。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPは指定できません。",
	}
}

// NewAliasTakenError はエイリアス重複エラーを生成する。
func NewAliasTakenError(alias string) *APIError {
	return &APIError{
		Code:     ErrCodeAliasTaken,
		Message:  fmt.Sprintf("A shortened url with this alias already exists: %s", alias),
		Category: "shortener",
		Action:   "別のエイリアスを指定してください。",
	}
}

// NewInvalidAliasError は無効なエイリアスエラーを生成する。
func NewInvalidAliasError(alias string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAlias,
		Message:  fmt.Sprintf("無効なエイリアスです: %s", alias),
		Category: "validation",
		Action:   "エイリアスは3〜64文字の英数字、- または _ で指定してください。予約語は使用できません。",
	}
}

// NewShortURLNotFoundError は短縮URL未検出エラーを生成する。
func NewShortURLNotFoundError(alias string) *APIError {
	return &APIError{
		Code:     ErrCodeShortURLNotFound,
		Message:  fmt.Sprintf("指定された短縮URLが見つかりません: %s", alias),
		Category: "shortener",
		Action:   "エイリアスを確認してください。",
	}
}

// NewNoteNotFoundError はノート未検出エラーを生成する。
func NewNoteNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNoteNotFound,
		Message:  "指定されたノートが見つかりません。",
		Category: "note",
		Action:   "ノートのURLを確認してください。",
	}
}

// NewIncorrectPasswordError はノートのパスワード不一致エラーを生成する。
func NewIncorrectPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeIncorrectPassword,
		Message:  "パスワードが正しくありません。",
		Category: "note",
		Action:   "ノートのパスワードを確認してください。",
	}
}

// NewPasswordRequiredError はパスワード付きノートをパスワードなしで閲覧した場合のエラーを生成する。
func NewPasswordRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordRequired,
		Message:  "Password required",
		Category: "note",
		Action:   "ノートのパスワードを指定してください。",
	}
}

// NewNotePrivateError は非公開ノートを所有者以外が閲覧した場合のエラーを生成する。
func NewNotePrivateError() *APIError {
	return &APIError{
		Code:     ErrCodeNotePrivate,
		Message:  "Note is private",
		Category: "note",
		Action:   "ノートの所有者としてログインしてください。",
	}
}

// NewInvalidNoteIDError はノートIDの形式が不正な場合のエラーを生成する。
func NewInvalidNoteIDError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidNoteID,
		Message:  "Invalid Note ID",
		Category: "validation",
		Action:   "ノートのURLを確認してください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewInviteInvalidError は招待コード無効エラーを生成する。
func NewInviteInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeInviteInvalid,
		Message:  "招待コードが無効です。",
		Category: "invite",
		Action:   "未使用の招待コードを指定してください。メールアドレス指定の招待はそのアドレスでのみ使用できます。",
	}
}

// NewInviteLimitError は招待コード発行上限エラーを生成する。
func NewInviteLimitError(limit int) *APIError {
	return &APIError{
		Code:     ErrCodeInviteLimit,
		Message:  fmt.Sprintf("招待コードの発行数が上限（%d件）に達しています。", limit),
		Category: "invite",
		Action:   "既存の招待コードが使用されるまでお待ちください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewSessionNotFoundError はセッションが見つからない場合のエラーを生成する。
func NewSessionNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  "指定されたセッションが見つかりません。",
		Category: "auth",
		Action:   "セッション一覧を再読み込みしてください。",
	}
}

// NewUnknownProviderError は未設定のOAuthプロバイダーを指定した場合のエラーを生成する。
func NewUnknownProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownProvider,
		Message:  fmt.Sprintf("OAuthプロバイダーが設定されていません: %s", provider),
		Category: "auth",
		Action:   "GET /auth/providers で利用可能なプロバイダーを確認してください。",
	}
}

// NewInvalidSortError は無効な並び順エラーを生成する。
func NewInvalidSortError(sortBy string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSort,
		Message:  fmt.Sprintf("無効な並び順です: %s", sortBy),
		Category: "validation",
		Action:   "sortby と direction（asc または desc）を確認してください。",
	}
}

// NewNotFoundError は存在しないパスへのアクセスエラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "指定されたページが見つかりません。",
		Category: "system",
		Action:   "URLを確認してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCSRFTokenInvalidError はCSRFトークン検証の失敗エラーを生成する。
func NewCSRFTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFTokenInvalid,
		Message:  "CSRF token validation failed",
		Category: "auth",
		Action:   "GET /api/csrf-token で取得したトークンを X-CSRF-Token ヘッダーか csrf_token フィールドに指定してください。",
	}
}
