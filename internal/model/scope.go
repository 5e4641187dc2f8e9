package model

import "fmt"

// UserField は認証時に射影可能なユーザーフィールド。
type UserField string

const (
	FieldID              UserField = "id"
	FieldEmail           UserField = "email"
	FieldAPIKey          UserField = "api_key"
	FieldAdmin           UserField = "admin"
	FieldAuthorized      UserField = "authorized"
	FieldSessionDuration UserField = "session_duration"
	FieldJoined          UserField = "joined"
)

// AllUserFields は射影可能な全フィールド。カラム順で並ぶ。
var AllUserFields = []UserField{
	FieldID,
	FieldEmail,
	FieldAPIKey,
	FieldAdmin,
	FieldAuthorized,
	FieldSessionDuration,
	FieldJoined,
}

// Valid はフィールドが既知のものかを返す。
func (f UserField) Valid() bool {
	for _, known := range AllUserFields {
		if f == known {
			return true
		}
	}
	return false
}

// Scopes は認証時に読み込むユーザーフィールドの集合。
// ゼロ値は空集合で、存在確認のみを意味する。
type Scopes struct {
	all    bool
	fields []UserField
}

// AllFields は全フィールドを表すワイルドカードのスコープを返す。
func AllFields() Scopes {
	return Scopes{all: true}
}

// Fields は指定フィールドからなるスコープを返す。重複は取り除く。
func Fields(fields ...UserField) Scopes {
	var s Scopes
	for _, f := range fields {
		s = s.With(f)
	}
	return s
}

// IsAll はワイルドカードかどうかを返す。
func (s Scopes) IsAll() bool {
	return s.all
}

// IsEmpty はフィールドが1つも要求されていないかを返す。
func (s Scopes) IsEmpty() bool {
	return !s.all && len(s.fields) == 0
}

// Has は指定フィールドを含むかを返す。ワイルドカードは常にtrue。
func (s Scopes) Has(field UserField) bool {
	if s.all {
		return true
	}
	for _, f := range s.fields {
		if f == field {
			return true
		}
	}
	return false
}

// With はfieldを加えたスコープを返す。ワイルドカードはそのまま返す。
func (s Scopes) With(field UserField) Scopes {
	if s.all || s.Has(field) {
		return s
	}
	fields := make([]UserField, len(s.fields), len(s.fields)+1)
	copy(fields, s.fields)
	return Scopes{fields: append(fields, field)}
}

// Resolve は読み込むフィールドをカラム順で返す。
// 未知のフィールドを含む場合はエラーを返す。
func (s Scopes) Resolve() ([]UserField, error) {
	if s.all {
		out := make([]UserField, len(AllUserFields))
		copy(out, AllUserFields)
		return out, nil
	}
	for _, f := range s.fields {
		if !f.Valid() {
			return nil, fmt.Errorf("unknown user field: %q", f)
		}
	}
	out := make([]UserField, 0, len(s.fields))
	for _, known := range AllUserFields {
		if s.Has(known) {
			out = append(out, known)
		}
	}
	return out, nil
}

// String はログ出力用の表現を返す。
func (s Scopes) String() string {
	if s.all {
		return "*"
	}
	return fmt.Sprint(s.fields)
}
