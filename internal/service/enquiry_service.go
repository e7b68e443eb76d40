package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/SMVEC2025/agribackend/internal/crm"
	"github.com/SMVEC2025/agribackend/internal/models"
	"github.com/SMVEC2025/agribackend/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Attribution identifiers stamped onto every enquiry, empty when the caller
// omits them.
var attributionFields = []string{"utm_source", "utm_medium", "utm_campaign"}

// EnquiryService enriches caller-supplied enquiry payloads and forwards them
// through the CRM gateway. A copy is archived when an archive repository is
// configured; archive failures never fail the submission.
type EnquiryService struct {
	crm     crm.API
	archive *repository.EnquiryRepository
	logger  *logrus.Logger
}

func NewEnquiryService(crmClient crm.API, archive *repository.EnquiryRepository, logger *logrus.Logger) *EnquiryService {
	return &EnquiryService{
		crm:     crmClient,
		archive: archive,
		logger:  logger,
	}
}

func (s *EnquiryService) Submit(ctx context.Context, payload map[string]interface{}) (json.RawMessage, error) {
	now := time.Now()

	enriched := make(map[string]interface{}, len(payload)+len(attributionFields)+1)
	for k, v := range payload {
		enriched[k] = v
	}
	enriched["created_at"] = now.Format(time.RFC3339)
	for _, field := range attributionFields {
		if _, ok := enriched[field]; !ok {
			enriched[field] = ""
		}
	}

	response, err := s.crm.SubmitEnquiry(ctx, enriched)
	if err != nil {
		return nil, err
	}

	if s.archive != nil {
		payloadJSON, merr := json.Marshal(enriched)
		if merr != nil {
			s.logger.WithError(merr).Warn("Failed to marshal enquiry for archive")
			return response, nil
		}
		submission := models.EnquirySubmission{
			ID:        uuid.New().String(),
			Payload:   string(payloadJSON),
			CreatedAt: now,
		}
		if aerr := s.archive.Store(ctx, submission); aerr != nil {
			// The CRM already has the enquiry; losing the audit copy is
			// logged and swallowed.
			s.logger.WithError(aerr).Warn("Failed to archive enquiry")
		}
	}

	return response, nil
}
