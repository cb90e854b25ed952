package auth

import (
	"net/http"
	"strings"
)

// AnonymousName identifies REST callers that sent no token.
const AnonymousName = "anonymous"

// Middleware attaches the caller's Principal to the request context. Requests
// without an Authorization header act as the anonymous customer; a header that
// fails validation is rejected with 401.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			p := &Principal{Name: AnonymousName, Kind: KindCustomer}
			if header != "" {
				var err error
				if p, err = ParseBearer(header, secret); err != nil {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"error":"invalid token"}`))
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
