package repository

import (
	"context"
	"sync"
	"time"

	"github.com/SMVEC2025/agribackend/internal/models"
)

// MemoryChallengeStore is the single-process fallback used when no Redis
// endpoint is configured. Entries past their expiry are kept until read so
// the verifier can distinguish an expired challenge from a missing one; a
// background sweep drops entries well past expiry.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]models.Challenge
	stop       chan struct{}
}

const sweepInterval = time.Minute

// Expired entries linger this long before the sweeper removes them.
const expiredGrace = 5 * time.Minute

func NewMemoryChallengeStore() *MemoryChallengeStore {
	s := &MemoryChallengeStore{
		challenges: make(map[string]models.Challenge),
		stop:       make(chan struct{}),
	}
	go s.sweep()
	return s
}

func (s *MemoryChallengeStore) Put(ctx context.Context, sessionID string, challenge models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[sessionID] = challenge
	return nil
}

func (s *MemoryChallengeStore) Get(ctx context.Context, sessionID string) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[sessionID]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	return &challenge, nil
}

func (s *MemoryChallengeStore) Consume(ctx context.Context, sessionID string) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[sessionID]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	delete(s.challenges, sessionID)

	challenge.Consumed = true
	return &challenge, nil
}

func (s *MemoryChallengeStore) Close() {
	close(s.stop)
}

func (s *MemoryChallengeStore) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for sessionID, challenge := range s.challenges {
				if now.After(challenge.ExpiresAt.Add(expiredGrace)) {
					delete(s.challenges, sessionID)
				}
			}
			s.mu.Unlock()
		}
	}
}
