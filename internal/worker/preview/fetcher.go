package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// maxTitleLength はタイトルとして保存する最大文字数。
const maxTitleLength = 200

// ErrNotHTML はリンク先がHTMLでない場合のエラー。
var ErrNotHTML = errors.New("response is not html")

// ClientFactory はSSRF対策済みのHTTPクライアントを生成する。security.SSRFGuardServiceが実装する。
type ClientFactory interface {
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// TitleFetcher はリンク先ページのタイトルを取得する。
type TitleFetcher struct {
	client  *http.Client
	maxSize int64
}

// NewTitleFetcher はTitleFetcherを生成する。
// クライアントは起動時に1回生成し、全ての取得で使い回す。
func NewTitleFetcher(clients ClientFactory, timeout time.Duration, maxSize int64) *TitleFetcher {
	return &TitleFetcher{
		client:  clients.NewSafeClient(timeout, maxSize),
		maxSize: maxSize,
	}
}

// FetchTitle はrawURLのHTMLを取得してタイトルを返す。
// タイトルが見つからない場合は nil, nil を返す。
func (f *TitleFetcher) FetchTitle(ctx context.Context, rawURL string) (*string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "Linknote/1.0 (+link preview)")
	req.Header.Set("Accept", "text/html, application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("予期しないHTTPステータス: %d", resp.StatusCode)
	}
	if !isHTML(resp.Header.Get("Content-Type")) {
		return nil, ErrNotHTML
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}

	title := ExtractTitle(body)
	if title == "" {
		return nil, nil
	}
	return &title, nil
}

// ExtractTitle はHTMLから<title>の内容を取り出す。
// <title>が空の場合はog:titleを使う。空白は1つにまとめる。
func ExtractTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))

	var title, ogTitle strings.Builder
	inTitle := false
scan:
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			break scan
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := tokenizer.Token()
			switch tok.Data {
			case "title":
				inTitle = title.Len() == 0
			case "meta":
				if ogTitle.Len() == 0 && attr(tok, "property") == "og:title" {
					ogTitle.WriteString(attr(tok, "content"))
				}
			case "body":
				// タイトルは<head>内にしかない
				break scan
			}
		case html.TextToken:
			if inTitle {
				title.Write(tokenizer.Text())
			}
		case html.EndTagToken:
			if tokenizer.Token().Data == "title" {
				inTitle = false
			}
		}
	}

	if t := normalizeTitle(title.String()); t != "" {
		return t
	}
	return normalizeTitle(ogTitle.String())
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func normalizeTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > maxTitleLength {
		s = string([]rune(s)[:maxTitleLength])
	}
	return s
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
