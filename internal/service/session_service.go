package service

import (
	"fmt"
	"time"

	"github.com/SMVEC2025/agribackend/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SessionService mints and checks the verification-session tokens that tie a
// send-otp response to the later verify-otp attempt. The token carries the
// server-generated session ID keying the challenge store, so the client
// never holds the OTP or any other server state.
type SessionService struct {
	secretKey []byte
	ttl       time.Duration
	logger    *logrus.Logger
}

func NewSessionService(cfg *config.SessionConfig, logger *logrus.Logger) (*SessionService, error) {
	secretKey := []byte(cfg.Secret)
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}

	return &SessionService{
		secretKey: secretKey,
		ttl:       cfg.TTL,
		logger:    logger,
	}, nil
}

type SessionClaims struct {
	SessionID         string `json:"sid"`
	ApplicationNumber string `json:"application_no"`
	jwt.RegisteredClaims
}

// Issue returns a signed verification-session token and its session ID.
func (s *SessionService) Issue(applicationNumber string) (string, string, error) {
	now := time.Now()
	sessionID := uuid.New().String()

	claims := &SessionClaims{
		SessionID:         sessionID,
		ApplicationNumber: applicationNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   applicationNumber,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        sessionID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign session token")
		return "", "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, sessionID, nil
}

func (s *SessionService) Verify(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse session token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}

	return claims, nil
}
