package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/SMVEC2025/agribackend/internal/config"
	"github.com/sirupsen/logrus"
)

// Method tags understood by the admissions CRM. The verified-flag tag keeps
// the remote system's misspelling; the endpoint rejects the corrected form.
const (
	methodSendOTP        = "send_otp"
	methodUpdateVerified = "update_otp_verfied"
	methodSubmitEnquiry  = "submit_enquiry"
)

// UpstreamError reports a failed CRM call: either a transport fault
// (Status == 0, Cause set) or a non-success upstream status.
type UpstreamError struct {
	Method string
	Status int
	Cause  error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("crm %s: %v", e.Method, e.Cause)
	}
	return fmt.Sprintf("crm %s: upstream status %d", e.Method, e.Status)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// SendOTPResult is the CRM's answer to a send_otp call.
type SendOTPResult struct {
	ApplicationNumber string `json:"applicationNumber"`
	OTP               string `json:"otp"`
}

// API is the single choke point for all remote admissions-system calls.
type API interface {
	SendOTP(ctx context.Context, mobileNumber string) (*SendOTPResult, error)
	MarkVerified(ctx context.Context, applicationNumber string) (string, error)
	SubmitEnquiry(ctx context.Context, enquiry map[string]interface{}) (json.RawMessage, error)
}

type Client struct {
	cfg        *config.CRMConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(cfg *config.CRMConfig, logger *logrus.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// call posts the CRM's uniform envelope to endpoint. The shared credential
// pair is injected here and nowhere else; callers supply only the
// method-specific fields of rest_data. One attempt per invocation, no retry.
func (c *Client) call(ctx context.Context, endpoint, method string, restData map[string]interface{}) ([]byte, error) {
	payload := make(map[string]interface{}, len(restData)+2)
	for k, v := range restData {
		payload[k] = v
	}
	payload["user"] = c.cfg.User
	payload["key"] = c.cfg.Key

	restJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rest_data: %w", err)
	}

	form := url.Values{
		"method":        {method},
		"input_type":    {"JSON"},
		"response_type": {"JSON"},
		"rest_data":     {string(restJSON)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build CRM request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("method", method).Error("CRM call failed")
		return nil, &UpstreamError{Method: method, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Method: method, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"status": resp.StatusCode,
		}).Error("CRM returned non-success status")
		return nil, &UpstreamError{Method: method, Status: resp.StatusCode}
	}

	return body, nil
}

func (c *Client) SendOTP(ctx context.Context, mobileNumber string) (*SendOTPResult, error) {
	body, err := c.call(ctx, c.cfg.URL, methodSendOTP, map[string]interface{}{
		"mobile_number": mobileNumber,
	})
	if err != nil {
		return nil, err
	}

	var result SendOTPResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &UpstreamError{Method: methodSendOTP, Cause: fmt.Errorf("failed to decode response: %w", err)}
	}
	if result.ApplicationNumber == "" || result.OTP == "" {
		return nil, &UpstreamError{Method: methodSendOTP, Cause: fmt.Errorf("response missing applicationNumber or otp")}
	}

	return &result, nil
}

// MarkVerified flags the applicant verified and returns the CRM-assigned
// identifier used to build the redirect target.
func (c *Client) MarkVerified(ctx context.Context, applicationNumber string) (string, error) {
	body, err := c.call(ctx, c.cfg.VerifyURL, methodUpdateVerified, map[string]interface{}{
		"applicant": map[string]interface{}{
			"application_no": applicationNumber,
			"is_verified":    true,
		},
	})
	if err != nil {
		return "", err
	}

	return decodeIdentifier(body), nil
}

func (c *Client) SubmitEnquiry(ctx context.Context, enquiry map[string]interface{}) (json.RawMessage, error) {
	body, err := c.call(ctx, c.cfg.URL, methodSubmitEnquiry, map[string]interface{}{
		"enquiry": enquiry,
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// decodeIdentifier extracts the applicant identifier from the verify
// response: a bare JSON string or number, falling back to the trimmed body.
func decodeIdentifier(body []byte) string {
	var value interface{}
	if err := json.Unmarshal(body, &value); err == nil {
		switch v := value.(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return strings.TrimSpace(string(body))
}
