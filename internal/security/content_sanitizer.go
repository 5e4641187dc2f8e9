package security

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MaxNoteNameLength はノート名の最大文字数。
const MaxNoteNameLength = 256

// NoteSanitizerService はノートの入力と表示用HTMLのサニタイズを定義する。
type NoteSanitizerService interface {
	// SanitizeName はノート名から全てのHTMLを除去し、前後の空白を取り除く。
	SanitizeName(name string) string

	// RenderContent はノート本文を表示用の安全なHTMLに変換する。
	// 許可タグ（p, br, a, ul, ol, li, blockquote, pre, code, strong, em, img）のみを通過させ、
	// それ以外のタグとon*イベント属性を除去する。
	// 同一入力に対して常に同一出力を返す（冪等）。
	RenderContent(content string) string
}

// noteSanitizer はNoteSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフなので共有する。
type noteSanitizer struct {
	name    *bluemonday.Policy
	content *bluemonday.Policy
}

// NewNoteSanitizer はNoteSanitizerServiceの新しいインスタンスを生成する。
// 本文用ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em, img
//   - imgのsrc属性: httpsスキームのみ許可
//   - aタグ: target="_blank" と rel="noopener noreferrer" を自動付与
func NewNoteSanitizer() *noteSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src").OnElements("img")
	p.AllowAttrs("alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &noteSanitizer{
		name:    bluemonday.StrictPolicy(),
		content: p,
	}
}

// SanitizeName はノート名をプレーンテキストにする。
// StrictPolicyはエンティティをエスケープするため、表示側で再エスケープしない前提。
func (s *noteSanitizer) SanitizeName(name string) string {
	return strings.TrimSpace(s.name.Sanitize(name))
}

// RenderContent はノート本文を表示用の安全なHTMLに変換する。
func (s *noteSanitizer) RenderContent(content string) string {
	return s.content.Sanitize(content)
}
