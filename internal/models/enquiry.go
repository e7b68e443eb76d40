package models

import "time"

// EnquirySubmission is the archived copy of an enquiry forwarded to the CRM.
// Payload holds the enriched caller body as a JSON document.
type EnquirySubmission struct {
	ID        string    `json:"id" dynamodbav:"-"`
	Payload   string    `json:"payload" dynamodbav:"Payload"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"CreatedAt"`
}

func (e *EnquirySubmission) GetPK() string {
	return "ENQUIRY#" + e.ID
}

func (e *EnquirySubmission) GetSK() string {
	return "METADATA"
}
