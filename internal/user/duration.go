package user

import (
	"fmt"
	"strings"

	"github.com/hitoshi/linknote/internal/model"
)

const (
	minDurationAmount = 1
	maxDurationAmount = 64
)

// durationUnits はセッション有効期間の単位と秒数。短い順に並ぶ。
var durationUnits = []struct {
	name    string
	seconds int
}{
	{"minutes", 60},
	{"hours", 60 * 60},
	{"days", 60 * 60 * 24},
	{"weeks", 60 * 60 * 24 * 7},
	{"months", 60 * 60 * 24 * 30},
}

// SessionDurationUnits は指定可能な単位名を返す。
func SessionDurationUnits() []string {
	names := make([]string, len(durationUnits))
	for i, u := range durationUnits {
		names[i] = u.name
	}
	return names
}

// ParseSessionDuration は量と単位からセッション有効期間（秒）を求める。
// 量は1〜64、単位はminutes、hours、days、weeks、monthsのいずれか。
func ParseSessionDuration(amount int, unit string) (int, error) {
	if amount < minDurationAmount || amount > maxDurationAmount {
		return 0, model.NewValidationError("session_duration_amount",
			fmt.Sprintf("%d〜%dで指定してください", minDurationAmount, maxDurationAmount))
	}
	for _, u := range durationUnits {
		if u.name == unit {
			return amount * u.seconds, nil
		}
	}
	return 0, model.NewValidationError("session_duration_unit",
		"次のいずれかを指定してください: "+strings.Join(SessionDurationUnits(), ", "))
}

// SplitSessionDuration は秒数を表示用の量と単位に分ける。
// 割り切れる単位のうち量が最小になるものを選ぶ。
// どの単位でも割り切れない場合は分に切り上げる。
func SplitSessionDuration(seconds int) (amount int, unit string) {
	for i := len(durationUnits) - 1; i >= 0; i-- {
		u := durationUnits[i]
		if seconds >= u.seconds && seconds%u.seconds == 0 {
			return seconds / u.seconds, u.name
		}
	}
	minutes := (seconds + 59) / 60
	if minutes < 1 {
		minutes = 1
	}
	return minutes, "minutes"
}
