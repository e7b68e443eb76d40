package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/SMVEC2025/agribackend/internal/service"
	"github.com/sirupsen/logrus"
)

type EmailHandlers struct {
	mailService *service.MailService
	logger      *logrus.Logger
}

func NewEmailHandlers(mailService *service.MailService, logger *logrus.Logger) *EmailHandlers {
	return &EmailHandlers{
		mailService: mailService,
		logger:      logger,
	}
}

type SendEmailResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	MessageID string `json:"messageId,omitempty"`
}

func (h *EmailHandlers) SendEmail(w http.ResponseWriter, r *http.Request) {
	var inv service.MeetingInvitation
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		respondWithJSON(w, http.StatusBadRequest, SendEmailResponse{
			Status:  "error",
			Message: "Invalid request body",
		})
		return
	}

	messageID, err := h.mailService.Send(&inv)
	if err != nil {
		var validationErr *service.ValidationError
		if errors.As(err, &validationErr) {
			h.logger.WithField("missing", validationErr.Missing).Warn("Rejected send-email request")
			respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
				"status":  "error",
				"message": "Missing or invalid required fields in the request body.",
				"missing": validationErr.Missing,
			})
			return
		}

		h.logger.WithError(err).Error("Failed to send invitation emails")
		respondWithJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status":  "error",
			"message": "Failed to send emails due to server error.",
			"details": err.Error(),
		})
		return
	}

	respondWithJSON(w, http.StatusOK, SendEmailResponse{
		Status:    "success",
		Message:   fmt.Sprintf("Emails successfully sent to %d recipient(s).", len(inv.Emails)),
		MessageID: messageID,
	})
}
