package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/SMVEC2025/agribackend/internal/service"
	"github.com/sirupsen/logrus"
)

type EnquiryHandlers struct {
	enquiryService *service.EnquiryService
	logger         *logrus.Logger
}

func NewEnquiryHandlers(enquiryService *service.EnquiryService, logger *logrus.Logger) *EnquiryHandlers {
	return &EnquiryHandlers{
		enquiryService: enquiryService,
		logger:         logger,
	}
}

// SubmitForm forwards a free-form enquiry to the CRM and proxies its
// response back unchanged.
func (h *EnquiryHandlers) SubmitForm(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	response, err := h.enquiryService.Submit(r.Context(), payload)
	if err != nil {
		h.logger.WithError(err).Error("Failed to forward enquiry to CRM")
		respondWithJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to submit to CRM"})
		return
	}

	respondWithRaw(w, http.StatusOK, response)
}
