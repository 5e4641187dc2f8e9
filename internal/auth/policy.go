package auth

import "github.com/hitoshi/linknote/internal/model"

// Policy はルートごとの認可要件。
type Policy struct {
	// Admin は管理者のみ許可する。
	Admin bool
	// Redirect は未認証時に401ではなくログイン画面へリダイレクトする。
	Redirect bool
	// Scopes はハンドラーが必要とするユーザーフィールド。
	Scopes model.Scopes
	// RequireAuthorized は管理者の承認済みユーザーのみ許可する。
	RequireAuthorized bool
}

// EffectiveScopes は判定に必要なフィールドを加えたスコープを返す。
// ワイルドカードはそのまま返す。
func (p Policy) EffectiveScopes() model.Scopes {
	s := p.Scopes
	if s.IsAll() {
		return s
	}
	if p.Admin {
		s = s.With(model.FieldAdmin)
	}
	if p.RequireAuthorized {
		s = s.With(model.FieldAuthorized)
	}
	return s
}

// Outcome は認可判定の結果。
type Outcome int

const (
	OutcomeAnonymous Outcome = iota
	OutcomePending
	OutcomeForbidden
	OutcomeAuthorized
)

// String はメトリクスのラベル用の表現を返す。
func (o Outcome) String() string {
	switch o {
	case OutcomeAnonymous:
		return "anonymous"
	case OutcomePending:
		return "pending"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// Decide は検証結果のユーザーに対してポリシーを評価する。
// 承認待ちの判定は管理者判定より先に行う。
func (p Policy) Decide(user *model.ProjectedUser) Outcome {
	if user == nil {
		return OutcomeAnonymous
	}
	if p.RequireAuthorized && !user.Authorized {
		return OutcomePending
	}
	if p.Admin && !user.Admin {
		return OutcomeForbidden
	}
	return OutcomeAuthorized
}
