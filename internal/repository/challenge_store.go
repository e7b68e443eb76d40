package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SMVEC2025/agribackend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrChallengeNotFound reports an absent (or already consumed/expired)
// challenge for a session key.
var ErrChallengeNotFound = errors.New("challenge not found")

// RedisChallengeStore keeps outstanding OTP challenges keyed by session ID,
// TTL-bounded by Redis itself. Consume is GETDEL, so a challenge is handed
// out at most once across concurrent verification attempts.
type RedisChallengeStore struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisChallengeStore(client *redis.Client, logger *logrus.Logger) *RedisChallengeStore {
	return &RedisChallengeStore{
		client: client,
		logger: logger,
	}
}

func challengeKey(sessionID string) string {
	return fmt.Sprintf("challenge:%s", sessionID)
}

func (s *RedisChallengeStore) Put(ctx context.Context, sessionID string, challenge models.Challenge) error {
	dataJSON, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	ttl := time.Until(challenge.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("challenge already expired")
	}

	if err := s.client.Set(ctx, challengeKey(sessionID), dataJSON, ttl).Err(); err != nil {
		s.logger.WithError(err).Error("Failed to store challenge in Redis")
		return fmt.Errorf("failed to store challenge: %w", err)
	}

	return nil
}

func (s *RedisChallengeStore) Get(ctx context.Context, sessionID string) (*models.Challenge, error) {
	dataJSON, err := s.client.Get(ctx, challengeKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to get challenge from Redis")
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	var challenge models.Challenge
	if err := json.Unmarshal([]byte(dataJSON), &challenge); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}

	return &challenge, nil
}

// Consume atomically removes and returns the challenge for sessionID.
func (s *RedisChallengeStore) Consume(ctx context.Context, sessionID string) (*models.Challenge, error) {
	dataJSON, err := s.client.GetDel(ctx, challengeKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to consume challenge from Redis")
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}

	var challenge models.Challenge
	if err := json.Unmarshal([]byte(dataJSON), &challenge); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}

	challenge.Consumed = true
	return &challenge, nil
}
