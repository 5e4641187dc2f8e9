package model

import "time"

// ShortURL は短縮URLを表す。Keyはパスに使われるエイリアス。
type ShortURL struct {
	Key            string
	Owner          int64
	Destination    string
	Clicks         int64
	Title          *string
	TitleFetchedAt *time.Time
	CreatedAt      time.Time
}

// ShortURLSort は短縮URL一覧の並び順。
type ShortURLSort string

const (
	SortByAlias        ShortURLSort = "alias"
	SortByDestination  ShortURLSort = "destination"
	SortByClicks       ShortURLSort = "clicks"
	SortByCreationDate ShortURLSort = "creation_date"
)

// Valid は既知の並び順かどうかを返す。
func (s ShortURLSort) Valid() bool {
	switch s {
	case SortByAlias, SortByDestination, SortByClicks, SortByCreationDate:
		return true
	}
	return false
}
