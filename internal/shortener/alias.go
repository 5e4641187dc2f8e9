package shortener

import (
	"regexp"
	"strings"
)

const (
	// MinAliasLength は指定できるエイリアスの最小長。
	MinAliasLength = 3
	// MaxAliasLength は指定できるエイリアスの最大長。
	MaxAliasLength = 64
)

var aliasPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// reservedAliases はルーティングと衝突するため使用できないエイリアス。
var reservedAliases = map[string]bool{
	"api":       true,
	"auth":      true,
	"admin":     true,
	"dashboard": true,
	"notes":     true,
	"metrics":   true,
	"health":    true,
	"login":     true,
	"logout":    true,
	"signup":    true,
}

// ValidateAlias はユーザー指定のエイリアスが使用可能な形式かを返す。
func ValidateAlias(alias string) bool {
	if len(alias) < MinAliasLength || len(alias) > MaxAliasLength {
		return false
	}
	if reservedAliases[strings.ToLower(alias)] {
		return false
	}
	return aliasPattern.MatchString(alias)
}
