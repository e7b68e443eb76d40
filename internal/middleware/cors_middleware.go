package middleware

import (
	"net/http"

	"github.com/gorilla/mux"
)

// CORS is the origin gate. An origin on the allow-list is echoed back
// verbatim as Access-Control-Allow-Origin; anything else (including a
// missing header) gets no origin header but the request still proceeds —
// an unlisted origin is policy, not a fault. Preflight requests
// short-circuit to an empty 200 after the headers are set.
func CORS(allowedOrigins []string) mux.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if _, ok := allowed[origin]; ok && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
