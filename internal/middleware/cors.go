package middleware

import (
	"net/http"
	"strings"
)

// corsAllowedMethods はAPIが受け付ける全メソッド。
var corsAllowedMethods = strings.Join([]string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}, ", ")

// corsAllowedHeaders はプリフライトで許可するリクエストヘッダー。
// 状態変更APIはX-CSRF-Tokenを必須とするため、ここで許可しておく必要がある。
var corsAllowedHeaders = strings.Join([]string{
	"Content-Type",
	csrfHeaderName,
}, ", ")

// NewCORSMiddleware は単一オリジン向けのCORSミドルウェアを返す。
// セッションCookieをcredentialsとして送るため、ワイルドカード(*)は使えない。
// OPTIONSプリフライトリクエストには204で応答する。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Max-Age", "86400")
			// オリジン固定のレスポンスを共有キャッシュに誤配させない
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
