package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SMVEC2025/agribackend/internal/config"
	"github.com/SMVEC2025/agribackend/internal/crm"
	"github.com/SMVEC2025/agribackend/internal/middleware"
	"github.com/SMVEC2025/agribackend/internal/repository"
	"github.com/SMVEC2025/agribackend/internal/service"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

// fakeCRMServer stands in for the remote admissions system, routing on the
// envelope's method tag and recording every rest_data payload.
type fakeCRMServer struct {
	server *httptest.Server

	sendOTPStatus int
	verifyStatus  int

	calls []fakeCRMCall
}

type fakeCRMCall struct {
	Method   string
	RestData map[string]interface{}
}

func newFakeCRMServer(t *testing.T) *fakeCRMServer {
	t.Helper()
	f := &fakeCRMServer{
		sendOTPStatus: http.StatusOK,
		verifyStatus:  http.StatusOK,
	}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		call := fakeCRMCall{Method: r.PostFormValue("method")}
		require.NoError(t, json.Unmarshal([]byte(r.PostFormValue("rest_data")), &call.RestData))
		f.calls = append(f.calls, call)

		switch call.Method {
		case "send_otp":
			if f.sendOTPStatus != http.StatusOK {
				w.WriteHeader(f.sendOTPStatus)
				return
			}
			w.Write([]byte(`{"applicationNumber":"APP1","otp":"123456"}`))
		case "update_otp_verfied":
			if f.verifyStatus != http.StatusOK {
				w.WriteHeader(f.verifyStatus)
				return
			}
			w.Write([]byte(`"CRM-42"`))
		case "submit_enquiry":
			w.Write([]byte(`{"status":"received"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCRMServer) callsFor(method string) []fakeCRMCall {
	var out []fakeCRMCall
	for _, call := range f.calls {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

type testEnv struct {
	router *mux.Router
	crm    *fakeCRMServer
	sent   *[]*gomail.Message
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	fakeCRM := newFakeCRMServer(t)

	crmClient := crm.NewClient(&config.CRMConfig{
		URL:       fakeCRM.server.URL,
		VerifyURL: fakeCRM.server.URL,
		User:      "Admission_Enquiry",
		Key:       "test-key",
		Timeout:   5 * time.Second,
	}, logger)

	sessions, err := service.NewSessionService(&config.SessionConfig{
		Secret: "0123456789abcdef0123456789abcdef",
		TTL:    10 * time.Minute,
	}, logger)
	require.NoError(t, err)

	store := repository.NewMemoryChallengeStore()
	t.Cleanup(store.Close)

	otpService := service.NewOTPService(crmClient, store, sessions,
		&config.OTPConfig{TTL: 5 * time.Minute}, "https://apply.smvec.ac.in", logger)
	enquiryService := service.NewEnquiryService(crmClient, nil, logger)

	var sent []*gomail.Message
	mailService := service.NewMailServiceWithTransport(&config.SMTPConfig{
		Host: "smtp.example.com", Port: 587, User: "sender@example.com", Pass: "secret",
	}, logger, func(m ...*gomail.Message) error {
		sent = append(sent, m...)
		return nil
	})

	otpHandlers := NewOTPHandlers(otpService, logger)
	enquiryHandlers := NewEnquiryHandlers(enquiryService, logger)
	emailHandlers := NewEmailHandlers(mailService, logger)
	popupHandlers := NewPopupHandlers(&config.PopupConfig{Enabled: true, ImageURL: "https://cdn.example.com/pop.webp"})
	sessionMiddleware := middleware.NewSessionMiddleware(sessions, logger)

	router := mux.NewRouter()
	router.Use(middleware.CORS([]string{"https://agri.smvec.ac.in"}))
	router.MethodNotAllowedHandler = http.HandlerFunc(MethodNotAllowed)
	router.HandleFunc("/send-otp", otpHandlers.SendOTP).Methods("POST", "OPTIONS")
	router.Handle("/verify-otp", sessionMiddleware.RequireSession(http.HandlerFunc(otpHandlers.VerifyOTP))).Methods("POST", "OPTIONS")
	router.HandleFunc("/submit-form", enquiryHandlers.SubmitForm).Methods("POST", "OPTIONS")
	router.HandleFunc("/send-email", emailHandlers.SendEmail).Methods("POST", "OPTIONS")
	router.HandleFunc("/get-pop", popupHandlers.GetPop).Methods("GET", "POST", "OPTIONS")

	return &testEnv{router: router, crm: fakeCRM, sent: &sent}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	e.router.ServeHTTP(recorder, req)
	return recorder
}

func (e *testEnv) sendOTP(t *testing.T) SendOTPResponse {
	t.Helper()
	recorder := e.do(t, http.MethodPost, "/send-otp", "", map[string]string{"mobile_number": "9999999999"})
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp SendOTPResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return resp
}

func TestSendOTPReturnsApplicationNumberAndToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.sendOTP(t)
	assert.Equal(t, "APP1", resp.ApplicationNumber)
	assert.NotEmpty(t, resp.SessionToken)

	calls := env.crm.callsFor("send_otp")
	require.Len(t, calls, 1)
	assert.Equal(t, "9999999999", calls[0].RestData["mobile_number"])
}

func TestSendOTPRequiresMobileNumber(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodPost, "/send-otp", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Empty(t, env.crm.calls)
}

func TestSendOTPUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.crm.sendOTPStatus = http.StatusBadGateway

	recorder := env.do(t, http.MethodPost, "/send-otp", "", map[string]string{"mobile_number": "9999999999"})
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "Failed to send OTP", body["error"])
	assert.NotEmpty(t, body["details"])
	assert.NotContains(t, body["details"], "test-key")
}

// The full issuance/verification round trip: OTP for 9999999999, CRM hands
// back APP1/123456, the correct submission flips the verified flag upstream
// and redirects to the application page.
func TestVerifyOTPHappyPath(t *testing.T) {
	env := newTestEnv(t)
	issued := env.sendOTP(t)

	recorder := env.do(t, http.MethodPost, "/verify-otp", issued.SessionToken, map[string]string{"inputotp": "123456"})
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp VerifyOTPResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "https://apply.smvec.ac.in/application?id=CRM-42", resp.RedirectURL)

	calls := env.crm.callsFor("update_otp_verfied")
	require.Len(t, calls, 1)
	applicant, ok := calls[0].RestData["applicant"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "APP1", applicant["application_no"])
	assert.Equal(t, true, applicant["is_verified"])
}

func TestVerifyOTPMismatch(t *testing.T) {
	env := newTestEnv(t)
	issued := env.sendOTP(t)

	recorder := env.do(t, http.MethodPost, "/verify-otp", issued.SessionToken, map[string]string{"inputotp": "654321"})
	require.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "Invalid OTP", body["error"])
	assert.Equal(t, float64(2), body["code"])

	assert.Empty(t, env.crm.callsFor("update_otp_verfied"))
}

func TestVerifyOTPWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodPost, "/verify-otp", "", map[string]string{"inputotp": "123456"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.JSONEq(t, `{"error":"Session expired or invalid"}`, recorder.Body.String())
}

func TestVerifyOTPSecondAttemptAfterSuccess(t *testing.T) {
	env := newTestEnv(t)
	issued := env.sendOTP(t)

	first := env.do(t, http.MethodPost, "/verify-otp", issued.SessionToken, map[string]string{"inputotp": "123456"})
	require.Equal(t, http.StatusOK, first.Code)

	second := env.do(t, http.MethodPost, "/verify-otp", issued.SessionToken, map[string]string{"inputotp": "123456"})
	assert.Equal(t, http.StatusBadRequest, second.Code)
	assert.Len(t, env.crm.callsFor("update_otp_verfied"), 1)
}

func TestVerifyOTPUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	issued := env.sendOTP(t)
	env.crm.verifyStatus = http.StatusServiceUnavailable

	recorder := env.do(t, http.MethodPost, "/verify-otp", issued.SessionToken, map[string]string{"inputotp": "123456"})
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "Failed to verify OTP", body["error"])
	assert.NotEmpty(t, body["detail"])

	// Reference behavior: the challenge survives, the same OTP may retry.
	env.crm.verifyStatus = http.StatusOK
	retry := env.do(t, http.MethodPost, "/verify-otp", issued.SessionToken, map[string]string{"inputotp": "123456"})
	assert.Equal(t, http.StatusOK, retry.Code)
}

func TestSubmitFormProxiesCRMResponse(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodPost, "/submit-form", "", map[string]string{"name": "A"})
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"status":"received"}`, recorder.Body.String())

	calls := env.crm.callsFor("submit_enquiry")
	require.Len(t, calls, 1)
	enquiry, ok := calls[0].RestData["enquiry"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "A", enquiry["name"])
	assert.NotEmpty(t, enquiry["created_at"])
}

func TestSendEmailValidation(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodPost, "/send-email", "", map[string]interface{}{
		"emails":      []string{},
		"meet_url":    "https://meet.example.com/xyz",
		"mentor_name": "Dr. Rao",
		"slot_date":   "2026-09-15",
		"start_time":  "10:00",
		"end_time":    "10:30",
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["missing"], "emails")

	assert.Empty(t, *env.sent, "validation failure must not touch the mail transport")
}

func TestSendEmailSuccess(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodPost, "/send-email", "", map[string]interface{}{
		"emails":      []string{"a@example.com", "b@example.com"},
		"meet_url":    "https://meet.example.com/xyz",
		"mentor_name": "Dr. Rao",
		"slot_date":   "2026-09-15",
		"start_time":  "10:00",
		"end_time":    "10:30",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp SendEmailResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "Emails successfully sent to 2 recipient(s).", resp.Message)
	assert.NotEmpty(t, resp.MessageID)

	assert.Len(t, *env.sent, 1)
}

func TestGetPop(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodGet, "/get-pop", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"status":true,"img":"https://cdn.example.com/pop.webp"}`, recorder.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodDelete, "/send-otp", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
	assert.JSONEq(t, `{"error":"Method Not Allowed"}`, recorder.Body.String())
}

func TestPreflightOnEveryEndpoint(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/send-otp", "/verify-otp", "/submit-form", "/send-email", "/get-pop"} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", "https://agri.smvec.ac.in")
		recorder := httptest.NewRecorder()
		env.router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code, path)
		assert.Empty(t, recorder.Body.String(), path)
		assert.Equal(t, "https://agri.smvec.ac.in", recorder.Header().Get("Access-Control-Allow-Origin"), path)
	}
}
