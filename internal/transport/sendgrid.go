package transport

import (
	"context"
	"fmt"

	sendgrid "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/unclebandit/outreach-backend/internal/model"
)

var _ Sender = (*SendGrid)(nil)

// StatusError is a non-2xx answer from an HTTP mail API.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded %d: %s", e.Provider, e.StatusCode, e.Body)
}

// SendGrid sends through the v3 mail API with the account's API key.
type SendGrid struct {
	send func(ctx context.Context, apiKey string, m *mail.SGMailV3) (int, string, error)
}

func NewSendGrid() *SendGrid {
	return &SendGrid{send: func(ctx context.Context, apiKey string, m *mail.SGMailV3) (int, string, error) {
		resp, err := sendgrid.NewSendClient(apiKey).SendWithContext(ctx, m)
		if err != nil {
			return 0, "", err
		}
		return resp.StatusCode, resp.Body, nil
	}}
}

func (s *SendGrid) Send(ctx context.Context, account *model.SendingAccount, msg Message) error {
	if account.APIKey == "" {
		return Classify(&StatusError{Provider: "sendgrid", StatusCode: 401, Body: "no api key configured"}, account)
	}

	from := mail.NewEmail(account.FromName, account.FromEmail)
	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	html := ""
	if msg.IsHTML() {
		html = msg.Content
	}
	m := mail.NewSingleEmail(from, msg.Subject, to, msg.PlainText(), html)
	if msg.MessageID != "" {
		m.SetHeader("Message-ID", "<"+msg.MessageID+">")
	}

	status, body, err := s.send(ctx, account.APIKey, m)
	if err != nil {
		return Classify(err, account)
	}
	if status < 200 || status >= 300 {
		return Classify(&StatusError{Provider: "sendgrid", StatusCode: status, Body: body}, account)
	}
	return nil
}
