package model

import "strings"

// PageSize は一覧の1ページあたりの件数。
const PageSize = 50

// ListQuery は一覧取得の条件。
type ListQuery struct {
	SortBy     string
	Descending bool
	Page       int // 1始まり
	PageSize   int
}

// Offset はPageとPageSizeから読み飛ばす件数を返す。
func (q ListQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

// Direction はasc/descの表記を返す。
func (q ListQuery) Direction() string {
	if q.Descending {
		return "desc"
	}
	return "asc"
}

// ListParams はクエリ文字列から受け取る一覧条件。空の値は既定値を使う。
type ListParams struct {
	SortBy    string
	Direction string
	Page      int
}

// Query は並び順を検証してListQueryに変換する。
// 既定はdefaultSortの降順、1ページ目。
func (p ListParams) Query(valid func(string) bool, defaultSort string) (ListQuery, error) {
	q := ListQuery{SortBy: defaultSort, Descending: true, Page: 1, PageSize: PageSize}

	if p.SortBy != "" {
		if !valid(p.SortBy) {
			return ListQuery{}, NewInvalidSortError(p.SortBy)
		}
		q.SortBy = p.SortBy
	}

	switch strings.ToLower(p.Direction) {
	case "", "desc":
	case "asc":
		q.Descending = false
	default:
		return ListQuery{}, NewInvalidSortError(p.Direction)
	}

	if p.Page < 0 {
		return ListQuery{}, NewValidationError("page", "1以上で指定してください")
	}
	if p.Page > 0 {
		q.Page = p.Page
	}
	return q, nil
}

// MaxPages は件数から最大ページ数を返す。0件でも1ページとする。
func MaxPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}
