package service

import (
	"bytes"
	"fmt"
	"html/template"
	"reflect"
	"strings"
	"time"

	"github.com/SMVEC2025/agribackend/internal/config"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// MeetingInvitation is the send-email request body. Unknown extra fields are
// accepted and ignored.
type MeetingInvitation struct {
	Emails     []string `json:"emails" validate:"required,min=1,dive,required"`
	MeetURL    string   `json:"meet_url" validate:"required"`
	MentorName string   `json:"mentor_name" validate:"required"`
	SlotDate   string   `json:"slot_date" validate:"required"`
	StartTime  string   `json:"start_time" validate:"required"`
	EndTime    string   `json:"end_time" validate:"required"`
}

// ValidationError lists the request fields that were missing or invalid.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing or invalid fields: %s", strings.Join(e.Missing, ", "))
}

// MailService renders meeting-invitation emails and delivers them over SMTP.
type MailService struct {
	from     string
	validate *validator.Validate
	tmpl     *template.Template
	send     func(m ...*gomail.Message) error
	logger   *logrus.Logger
}

func NewMailService(cfg *config.SMTPConfig, logger *logrus.Logger) *MailService {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	return NewMailServiceWithTransport(cfg, logger, dialer.DialAndSend)
}

// NewMailServiceWithTransport swaps the SMTP dial-and-send step, for tests
// and for deployments that relay through something other than plain SMTP.
func NewMailServiceWithTransport(cfg *config.SMTPConfig, logger *logrus.Logger, send func(m ...*gomail.Message) error) *MailService {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &MailService{
		from:     cfg.User,
		validate: validate,
		tmpl:     template.Must(template.New("invitation").Parse(invitationTemplate)),
		send:     send,
		logger:   logger,
	}
}

// Validate reports every missing required field at once so the caller can
// fix the whole request in one pass. No transport is contacted on failure.
func (s *MailService) Validate(inv *MeetingInvitation) error {
	err := s.validate.Struct(inv)
	if err == nil {
		return nil
	}

	var missing []string
	if fieldErrors, ok := err.(validator.ValidationErrors); ok {
		seen := make(map[string]bool)
		for _, fe := range fieldErrors {
			name := fe.Field()
			if !seen[name] {
				seen[name] = true
				missing = append(missing, name)
			}
		}
		return &ValidationError{Missing: missing}
	}
	return err
}

// Send validates, renders and delivers the invitation as a single message to
// all recipients. It returns the Message-ID stamped on the outgoing mail.
func (s *MailService) Send(inv *MeetingInvitation) (string, error) {
	if err := s.Validate(inv); err != nil {
		return "", err
	}

	htmlBody, err := s.render(inv)
	if err != nil {
		return "", fmt.Errorf("failed to render invitation: %w", err)
	}

	messageID := fmt.Sprintf("<%s@agribackend>", uuid.New().String())

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", inv.Emails...)
	m.SetHeader("Subject", fmt.Sprintf("Meeting Scheduled:  with %s", inv.MentorName))
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/plain", fmt.Sprintf(
		"Meeting Invitation with %s on %s at %s.\nJoin here: %s",
		inv.MentorName, inv.SlotDate, inv.StartTime, inv.MeetURL,
	))
	m.AddAlternative("text/html", htmlBody)

	if err := s.send(m); err != nil {
		s.logger.WithError(err).Error("Failed to send invitation email")
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"recipients": len(inv.Emails),
		"message_id": messageID,
	}).Info("Invitation email sent")

	return messageID, nil
}

type invitationData struct {
	Subject       string
	MentorName    string
	FormattedDate string
	StartTime     string
	EndTime       string
	MeetURL       string
}

func (s *MailService) render(inv *MeetingInvitation) (string, error) {
	data := invitationData{
		Subject:       fmt.Sprintf("Your  Meeting with %s", inv.MentorName),
		MentorName:    inv.MentorName,
		FormattedDate: formatSlotDate(inv.SlotDate),
		StartTime:     inv.StartTime,
		EndTime:       inv.EndTime,
		MeetURL:       inv.MeetURL,
	}

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatSlotDate(slotDate string) string {
	if t, err := time.Parse("2006-01-02", slotDate); err == nil {
		return t.Format("January 2, 2006")
	}
	return slotDate
}

const invitationTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; line-height: 1.6; color: #333333; margin: 0; padding: 0; background-color: #f4f4f4; }
        .email-container { max-width: 600px; margin: 30px auto; background-color: #ffffff; border-radius: 8px; overflow: hidden; box-shadow: 0 4px 12px rgba(0, 0, 0, 0.05); }
        .header { background-color: #0056b3; color: white; padding: 20px 25px; text-align: center; }
        .header h1 { margin: 0; font-size: 24px; }
        .content { padding: 25px; }
        .details-box { border: 1px solid #e0e0e0; border-left: 5px solid #4CAF50; padding: 15px; margin-top: 20px; border-radius: 4px; background-color: #f9f9f9; }
        .details-box p { margin: 0 0 10px 0; font-size: 16px; }
        .details-box strong { color: #0056b3; display: inline-block; width: 100px; }
        .button-container { text-align: center; margin: 30px 0; }
        .button {
            display: inline-block;
            padding: 12px 25px;
            background-color: #4CAF50;
            color: white !important;
            text-decoration: none;
            border-radius: 6px;
            font-weight: bold;
            font-size: 16px;
            transition: background-color 0.3s ease;
        }
        .footer { padding: 20px 25px; text-align: center; font-size: 12px; color: #777777; border-top: 1px solid #eeeeee; margin-top: 20px; }
    </style>
</head>
<body>
    <div class="email-container">
        <div class="header">
            <h1>Meeting Invitation</h1>
        </div>
        <div class="content">
            <p>Hello Team,</p>
            <p>This is a confirmation of your scheduled meeting. We look forward to seeing you online.</p>

            <div class="details-box">
                <p><strong>Topic:</strong> {{.Subject}}</p>
                <p><strong>Mentor:</strong> {{.MentorName}}</p>
                <p><strong>Date:</strong> {{.FormattedDate}}</p>
                <p><strong>Time:</strong> {{.StartTime}} - {{.EndTime}} IST</p>
            </div>

            <div class="button-container">
                <a href="{{.MeetURL}}" class="button" target="_blank">
                    Click Here to Join Meeting
                </a>
            </div>

            <p style="text-align: center; font-size: 14px; color: #555;">
                Alternatively, copy and paste this link: <br>
                <a href="{{.MeetURL}}" style="color: #0056b3; word-break: break-all;">{{.MeetURL}}</a>
            </p>

        </div>
        <div class="footer">
            <p>This invitation was sent by your scheduling system.</p>
        </div>
    </div>
</body>
</html>
`
