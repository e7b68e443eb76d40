package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/SMVEC2025/agribackend/internal/middleware"
	"github.com/SMVEC2025/agribackend/internal/service"
	"github.com/sirupsen/logrus"
)

type OTPHandlers struct {
	otpService *service.OTPService
	logger     *logrus.Logger
}

func NewOTPHandlers(otpService *service.OTPService, logger *logrus.Logger) *OTPHandlers {
	return &OTPHandlers{
		otpService: otpService,
		logger:     logger,
	}
}

type SendOTPRequest struct {
	MobileNumber string `json:"mobile_number"`
}

type SendOTPResponse struct {
	ApplicationNumber string `json:"application_no"`
	SessionToken      string `json:"session_token"`
}

type VerifyOTPRequest struct {
	InputOTP string `json:"inputotp"`
}

type VerifyOTPResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

// SendOTP asks the CRM to text an OTP to the supplied mobile number and
// returns the application number with a session token for the follow-up
// verification call. The mobile number's format is the CRM's concern.
func (h *OTPHandlers) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	mobileNumber := strings.TrimSpace(req.MobileNumber)
	if mobileNumber == "" {
		respondWithJSON(w, http.StatusBadRequest, map[string]string{"error": "mobile_number is required"})
		return
	}

	result, err := h.otpService.Issue(r.Context(), mobileNumber)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue OTP")
		respondWithJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to send OTP",
			"details": err.Error(),
		})
		return
	}

	respondWithJSON(w, http.StatusOK, SendOTPResponse{
		ApplicationNumber: result.ApplicationNumber,
		SessionToken:      result.SessionToken,
	})
}

// VerifyOTP runs one verification attempt against the session established by
// SendOTP. The session middleware has already validated the token.
func (h *OTPHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.SessionClaimsFromContext(r.Context())
	if !ok {
		respondWithJSON(w, http.StatusBadRequest, map[string]string{"error": "Session expired or invalid"})
		return
	}

	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	result, err := h.otpService.Verify(r.Context(), claims, strings.TrimSpace(req.InputOTP))
	if err != nil {
		h.logger.WithError(err).Error("Failed to verify OTP")
		respondWithJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "Failed to verify OTP",
			"detail": err.Error(),
		})
		return
	}

	switch result.Outcome {
	case service.OutcomeVerified:
		respondWithJSON(w, http.StatusOK, VerifyOTPResponse{RedirectURL: result.RedirectURL})
	case service.OutcomeMismatch:
		// A wrong OTP is a 200 with an error code so the client renders
		// "try again" instead of a fatal error.
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"error": "Invalid OTP",
			"code":  2,
		})
	default:
		respondWithJSON(w, http.StatusBadRequest, map[string]string{"error": "Session expired or invalid"})
	}
}
