// Package model はドメインモデルを定義する。
package model

import "time"

// DefaultSessionDuration はセッション有効期間の既定値（秒）。
const DefaultSessionDuration = 86400

// User はサービス利用ユーザーを表す。
// PasswordHashはOAuthのみで登録したユーザーではnilになる。
type User struct {
	ID              int64
	Email           string
	PasswordHash    *string
	APIKey          string
	Admin           bool
	Authorized      bool
	SessionDuration int // 秒
	Joined          time.Time
}

// ProjectedUser は認証時にスコープ分だけ読み込んだユーザーを表す。
// Fieldsに含まれないフィールドはゼロ値のまま。
type ProjectedUser struct {
	User
	Fields []UserField
}

// Has は指定フィールドが読み込まれているかを返す。
func (p *ProjectedUser) Has(field UserField) bool {
	for _, f := range p.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         int64
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// Tokenは_session Cookieの値（UUID文字列）。
type Session struct {
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
	Browser   string
	OS        string
	IP        *string
}

// Invite は招待コードを表す。
type Invite struct {
	Code          string
	Owner         int64
	RequiredEmail *string
	UsedBy        *int64
	CreatedAt     time.Time
}

// UserStats は管理画面の集計値。
type UserStats struct {
	URLs     int64
	Users    int64
	Sessions int64
	Notes    int64
}

// UserSort はユーザー一覧の並び順。
type UserSort string

const (
	UserSortByID     UserSort = "id"
	UserSortByEmail  UserSort = "email"
	UserSortByJoined UserSort = "joined"
)

// Valid は既知の並び順かどうかを返す。
func (s UserSort) Valid() bool {
	switch s {
	case UserSortByID, UserSortByEmail, UserSortByJoined:
		return true
	}
	return false
}
