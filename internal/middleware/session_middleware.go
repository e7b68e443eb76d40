package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/SMVEC2025/agribackend/internal/service"
	"github.com/sirupsen/logrus"
)

type contextKey string

// SessionClaimsKey carries the verified session claims on the request
// context.
const SessionClaimsKey contextKey = "session_claims"

// SessionMiddleware guards verification endpoints: it expects the
// verification-session token minted at OTP issuance as a Bearer credential.
// A missing or bad token is a session failure (400), not an auth failure —
// the client's session simply no longer correlates to a challenge.
type SessionMiddleware struct {
	sessions *service.SessionService
	logger   *logrus.Logger
}

func NewSessionMiddleware(sessions *service.SessionService, logger *logrus.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		sessions: sessions,
		logger:   logger,
	}
}

func (m *SessionMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondSessionInvalid(w)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondSessionInvalid(w)
			return
		}

		claims, err := m.sessions.Verify(parts[1])
		if err != nil {
			m.logger.WithError(err).Debug("Session token verification failed")
			m.respondSessionInvalid(w)
			return
		}

		ctx := context.WithValue(r.Context(), SessionClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *SessionMiddleware) respondSessionInvalid(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	w.Write([]byte(`{"error":"Session expired or invalid"}`))
}

// SessionClaimsFromContext returns the claims placed by RequireSession.
func SessionClaimsFromContext(ctx context.Context) (*service.SessionClaims, bool) {
	claims, ok := ctx.Value(SessionClaimsKey).(*service.SessionClaims)
	return claims, ok
}
