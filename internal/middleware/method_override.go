package middleware

import (
	"mime"
	"net/http"
	"strings"
)

// MethodOverrideField はHTMLフォームで実際のHTTPメソッドを指定するフィールド名。
const MethodOverrideField = "_method"

// NewMethodOverrideMiddleware はフォームのPOSTを_methodフィールドで指定された
// PUT、PATCH、DELETEとして扱うミドルウェアを返す。ルーティングより前に適用する。
func NewMethodOverrideMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && isFormContent(r) {
				switch method := strings.ToUpper(r.PostFormValue(MethodOverrideField)); method {
				case http.MethodPut, http.MethodPatch, http.MethodDelete:
					r = r.WithContext(r.Context())
					r.Method = method
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isFormContent(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data"
}
