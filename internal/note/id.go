package note

import (
	"encoding/base64"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/linknote/internal/model"
)

// EncodeID はノートのUUIDをURL用の公開IDに変換する。
// 公開IDはUUID文字列をURLセーフなbase64で符号化したもの。
func EncodeID(id string) string {
	return base64.URLEncoding.EncodeToString([]byte(id))
}

// DecodeID は公開IDをUUID文字列に戻す。パディングの有無は問わない。
func DecodeID(publicID string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(publicID, "="))
	if err != nil {
		return "", model.NewInvalidNoteIDError()
	}
	id, err := uuid.ParseBytes(raw)
	if err != nil {
		return "", model.NewInvalidNoteIDError()
	}
	return id.String(), nil
}
