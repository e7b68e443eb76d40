package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SMVEC2025/agribackend/internal/config"
	"github.com/SMVEC2025/agribackend/internal/crm"
	"github.com/SMVEC2025/agribackend/internal/models"
	"github.com/SMVEC2025/agribackend/internal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// ChallengeStore holds outstanding OTP challenges keyed by session ID.
// Consume must be atomic: a challenge is removed by at most one caller.
type ChallengeStore interface {
	Put(ctx context.Context, sessionID string, challenge models.Challenge) error
	Get(ctx context.Context, sessionID string) (*models.Challenge, error)
	Consume(ctx context.Context, sessionID string) (*models.Challenge, error)
}

type VerificationOutcome int

const (
	OutcomeVerified VerificationOutcome = iota
	OutcomeMismatch
	OutcomeExpired
	OutcomeSessionMissing
)

// VerificationResult is produced once per verification attempt.
// RedirectURL is set only for OutcomeVerified.
type VerificationResult struct {
	Outcome     VerificationOutcome
	RedirectURL string
}

type IssueResult struct {
	ApplicationNumber string
	SessionToken      string
}

type OTPService struct {
	crm      crm.API
	store    ChallengeStore
	sessions *SessionService
	cfg      *config.OTPConfig
	// redirectBase prefixes the application URL returned on a verified match.
	redirectBase string
	logger       *logrus.Logger
}

func NewOTPService(
	crmClient crm.API,
	store ChallengeStore,
	sessions *SessionService,
	cfg *config.OTPConfig,
	redirectBase string,
	logger *logrus.Logger,
) *OTPService {
	return &OTPService{
		crm:          crmClient,
		store:        store,
		sessions:     sessions,
		cfg:          cfg,
		redirectBase: redirectBase,
		logger:       logger,
	}
}

// Issue asks the CRM to send an OTP to mobileNumber and records the returned
// challenge before handing the session token back. The challenge must be in
// the store before the caller sees the response: a verification attempt can
// arrive the moment the token is out. At-most-once: nothing is retried, a
// timed-out send means the caller re-requests.
func (s *OTPService) Issue(ctx context.Context, mobileNumber string) (*IssueResult, error) {
	result, err := s.crm.SendOTP(ctx, mobileNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to send OTP: %w", err)
	}

	hashedOTP, err := bcrypt.GenerateFromPassword([]byte(result.OTP), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash OTP: %w", err)
	}

	token, sessionID, err := s.sessions.Issue(result.ApplicationNumber)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	challenge := models.Challenge{
		ApplicationNumber: result.ApplicationNumber,
		OTPHash:           string(hashedOTP),
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.cfg.TTL),
		Consumed:          false,
	}

	if err := s.store.Put(ctx, sessionID, challenge); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"application_no": result.ApplicationNumber,
		"session_id":     sessionID,
	}).Info("OTP challenge issued")

	return &IssueResult{
		ApplicationNumber: result.ApplicationNumber,
		SessionToken:      token,
	}, nil
}

// Verify runs one verification attempt for the session identified by claims.
//
// SessionMissing, Mismatch and Expired come back as results; a failed CRM
// verified-flag update comes back as an error so the handler reports it as
// an upstream fault. On that path the challenge is left in place unless
// ConsumeOnUpstreamFailure says otherwise, so the caller may retry with the
// same OTP.
func (s *OTPService) Verify(ctx context.Context, claims *SessionClaims, submittedOTP string) (*VerificationResult, error) {
	if claims == nil || claims.SessionID == "" || claims.ApplicationNumber == "" {
		return &VerificationResult{Outcome: OutcomeSessionMissing}, nil
	}

	challenge, err := s.store.Get(ctx, claims.SessionID)
	if errors.Is(err, repository.ErrChallengeNotFound) {
		return &VerificationResult{Outcome: OutcomeSessionMissing}, nil
	}
	if err != nil {
		return nil, err
	}

	if challenge.Expired(time.Now()) {
		// Drop the stale entry so later attempts see a clean miss.
		if _, err := s.store.Consume(ctx, claims.SessionID); err != nil && !errors.Is(err, repository.ErrChallengeNotFound) {
			s.logger.WithError(err).Warn("Failed to drop expired challenge")
		}
		return &VerificationResult{Outcome: OutcomeExpired}, nil
	}

	if bcrypt.CompareHashAndPassword([]byte(challenge.OTPHash), []byte(submittedOTP)) != nil {
		return &VerificationResult{Outcome: OutcomeMismatch}, nil
	}

	applicantID, err := s.crm.MarkVerified(ctx, challenge.ApplicationNumber)
	if err != nil {
		if s.cfg.ConsumeOnUpstreamFailure {
			if _, cerr := s.store.Consume(ctx, claims.SessionID); cerr != nil && !errors.Is(cerr, repository.ErrChallengeNotFound) {
				s.logger.WithError(cerr).Warn("Failed to consume challenge after upstream failure")
			}
		}
		return nil, fmt.Errorf("failed to mark applicant verified: %w", err)
	}

	if _, err := s.store.Consume(ctx, claims.SessionID); err != nil && !errors.Is(err, repository.ErrChallengeNotFound) {
		s.logger.WithError(err).Warn("Failed to consume challenge after verification")
	}

	s.logger.WithFields(logrus.Fields{
		"application_no": challenge.ApplicationNumber,
		"session_id":     claims.SessionID,
	}).Info("OTP verified")

	return &VerificationResult{
		Outcome:     OutcomeVerified,
		RedirectURL: fmt.Sprintf("%s/application?id=%s", s.redirectBase, applicantID),
	}, nil
}
