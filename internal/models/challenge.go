package models

import "time"

// Challenge is the server-held expectation for one OTP verification session.
// At most one live challenge exists per session key; the store owns the
// record and the verifier consumes it.
type Challenge struct {
	ApplicationNumber string    `json:"application_number"`
	OTPHash           string    `json:"otp_hash"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	Consumed          bool      `json:"consumed"`
}

func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
