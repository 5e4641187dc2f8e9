package preview

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// plainClients はテスト用にSSRF対策なしのクライアントを返す。
type plainClients struct{}

func (plainClients) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"基本", `<html><head><title>Hello</title></head><body></body></html>`, "Hello"},
		{"空白の正規化", "<title>\n  Hello \t World\n</title>", "Hello World"},
		{"エンティティ", `<title>Tom &amp; Jerry</title>`, "Tom & Jerry"},
		{"og:titleにフォールバック", `<head><meta property="og:title" content="OG Title"><title> </title></head>`, "OG Title"},
		{"titleを優先", `<head><meta property="og:title" content="OG"><title>Real</title></head>`, "Real"},
		{"body内のtitleは無視", `<head></head><body><svg><title>icon</title></svg></body>`, ""},
		{"タイトルなし", `<html><body>no title</body></html>`, ""},
		{"最初のtitleのみ", `<title>First</title><title>Second</title>`, "First"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractTitle([]byte(tt.body)); got != tt.want {
				t.Errorf("ExtractTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractTitle_TruncatesLongTitle(t *testing.T) {
	long := strings.Repeat("あ", maxTitleLength+50)
	got := ExtractTitle([]byte("<title>" + long + "</title>"))
	if n := len([]rune(got)); n != maxTitleLength {
		t.Errorf("title length = %d, want %d", n, maxTitleLength)
	}
}

func TestTitleFetcher_FetchTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(`<html><head><title>Example Page</title></head></html>`))
		case "/notitle":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html><body>hi</body></html>`))
		case "/image":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte{0x89, 'P', 'N', 'G'})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewTitleFetcher(plainClients{}, 5*time.Second, 1<<20)
	ctx := context.Background()

	title, err := f.FetchTitle(ctx, srv.URL+"/page")
	if err != nil {
		t.Fatalf("FetchTitle() error = %v", err)
	}
	if title == nil || *title != "Example Page" {
		t.Errorf("title = %v, want Example Page", title)
	}

	title, err = f.FetchTitle(ctx, srv.URL+"/notitle")
	if err != nil || title != nil {
		t.Errorf("FetchTitle(notitle) = %v, %v; want nil, nil", title, err)
	}

	if _, err := f.FetchTitle(ctx, srv.URL+"/image"); !errors.Is(err, ErrNotHTML) {
		t.Errorf("FetchTitle(image) error = %v, want ErrNotHTML", err)
	}

	if _, err := f.FetchTitle(ctx, srv.URL+"/missing"); err == nil {
		t.Error("FetchTitle(missing) should fail on 404")
	}
}

func TestTitleFetcher_RespectsMaxSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<head>" + strings.Repeat(" ", 100) + "<title>Too Late</title></head>"))
	}))
	defer srv.Close()

	f := NewTitleFetcher(plainClients{}, 5*time.Second, 50)
	title, err := f.FetchTitle(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchTitle() error = %v", err)
	}
	if title != nil {
		t.Errorf("title = %q, want nil beyond max size", *title)
	}
}
