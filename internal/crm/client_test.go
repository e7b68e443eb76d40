package crm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SMVEC2025/agribackend/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedCall struct {
	Method       string
	InputType    string
	ResponseType string
	RestData     map[string]interface{}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.CRMConfig{
		URL:       server.URL,
		VerifyURL: server.URL + "/verify",
		User:      "Admission_Enquiry",
		Key:       "test-key",
		Timeout:   5 * time.Second,
	}
	return NewClient(cfg, logger), server
}

func captureCall(t *testing.T, r *http.Request) capturedCall {
	t.Helper()
	require.NoError(t, r.ParseForm())

	call := capturedCall{
		Method:       r.PostFormValue("method"),
		InputType:    r.PostFormValue("input_type"),
		ResponseType: r.PostFormValue("response_type"),
	}
	require.NoError(t, json.Unmarshal([]byte(r.PostFormValue("rest_data")), &call.RestData))
	return call
}

func TestSendOTPEnvelope(t *testing.T) {
	var got capturedCall
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = captureCall(t, r)
		w.Write([]byte(`{"applicationNumber":"APP1","otp":"123456"}`))
	})

	result, err := client.SendOTP(context.Background(), "9999999999")
	require.NoError(t, err)

	assert.Equal(t, "send_otp", got.Method)
	assert.Equal(t, "JSON", got.InputType)
	assert.Equal(t, "JSON", got.ResponseType)
	assert.Equal(t, "9999999999", got.RestData["mobile_number"])
	assert.Equal(t, "Admission_Enquiry", got.RestData["user"])
	assert.Equal(t, "test-key", got.RestData["key"])

	assert.Equal(t, "APP1", result.ApplicationNumber)
	assert.Equal(t, "123456", result.OTP)
}

func TestSendOTPRejectsIncompleteResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"applicationNumber":"APP1"}`))
	})

	_, err := client.SendOTP(context.Background(), "9999999999")
	require.Error(t, err)
	var upstreamErr *UpstreamError
	assert.ErrorAs(t, err, &upstreamErr)
}

func TestMarkVerifiedEnvelope(t *testing.T) {
	var got capturedCall
	var path string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		got = captureCall(t, r)
		w.Write([]byte(`"CRM-42"`))
	})

	id, err := client.MarkVerified(context.Background(), "APP1")
	require.NoError(t, err)
	assert.Equal(t, "CRM-42", id)

	assert.Equal(t, "/verify", path)
	assert.Equal(t, "update_otp_verfied", got.Method)

	applicant, ok := got.RestData["applicant"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "APP1", applicant["application_no"])
	assert.Equal(t, true, applicant["is_verified"])
	assert.Equal(t, "Admission_Enquiry", got.RestData["user"])
	assert.Equal(t, "test-key", got.RestData["key"])
}

func TestMarkVerifiedDecodesNumericIdentifier(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`1042`))
	})

	id, err := client.MarkVerified(context.Background(), "APP1")
	require.NoError(t, err)
	assert.Equal(t, "1042", id)
}

func TestSubmitEnquiryProxiesResponse(t *testing.T) {
	var got capturedCall
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = captureCall(t, r)
		w.Write([]byte(`{"id":"E-7","status":"received"}`))
	})

	response, err := client.SubmitEnquiry(context.Background(), map[string]interface{}{"name": "A"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"E-7","status":"received"}`, string(response))

	assert.Equal(t, "submit_enquiry", got.Method)
	enquiry, ok := got.RestData["enquiry"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "A", enquiry["name"])
}

func TestCallReportsUpstreamStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.SendOTP(context.Background(), "9999999999")
	require.Error(t, err)

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusBadGateway, upstreamErr.Status)
}

func TestCallReportsTransportFailure(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := client.SendOTP(context.Background(), "9999999999")
	require.Error(t, err)

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Zero(t, upstreamErr.Status)
	assert.Error(t, upstreamErr.Cause)
}

func TestErrorNeverContainsCredential(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.SendOTP(context.Background(), "9999999999")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "test-key")
}
