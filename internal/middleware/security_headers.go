package middleware

import "net/http"

// NewSecurityHeadersMiddleware はレスポンスにセキュリティヘッダーを付与するミドルウェアを返す。
// 応答はJSONとリダイレクトのみなので、CSPで全リソースの読み込みを禁止する。
// httpsで配信している場合はHSTSも付与する。
func NewSecurityHeadersMiddleware(https bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			// 短縮URLのリダイレクト先にオリジンだけを渡す
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if https {
				h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
