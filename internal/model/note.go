package model

import "time"

// Note はノート（ペーストビン）を表す。
// HasPasswordがtrueの場合、Contentはsalt(32バイト)と暗号文の連結。
type Note struct {
	ID          string
	Owner       int64
	Name        string
	Content     []byte
	HasPassword bool
	ShareEmail  bool
	Private     bool
	Clicks      int64
	CreatedAt   time.Time
}

// NoteWithOwner は閲覧用に所有者のメールアドレスを付与したノート。
type NoteWithOwner struct {
	Note
	OwnerEmail string
}

// NoteSort はノート一覧の並び順。
type NoteSort string

const (
	NoteSortByID           NoteSort = "id"
	NoteSortByName         NoteSort = "name"
	NoteSortByHasPassword  NoteSort = "has_password"
	NoteSortByShareEmail   NoteSort = "share_email"
	NoteSortByPrivate      NoteSort = "private"
	NoteSortByClicks       NoteSort = "clicks"
	NoteSortByCreationDate NoteSort = "creation_date"
)

// Valid は既知の並び順かどうかを返す。
func (s NoteSort) Valid() bool {
	switch s {
	case NoteSortByID, NoteSortByName, NoteSortByHasPassword, NoteSortByShareEmail,
		NoteSortByPrivate, NoteSortByClicks, NoteSortByCreationDate:
		return true
	}
	return false
}
