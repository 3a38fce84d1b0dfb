package transport

import (
	"context"

	"github.com/unclebandit/outreach-backend/internal/model"
)

var _ Sender = (*Router)(nil)

// Router picks the implementation by account provider. Everything that is not an API
// provider goes through SMTP.
type Router struct {
	smtp     Sender
	sendgrid Sender
}

func NewRouter(smtp, sendgrid Sender) *Router {
	return &Router{smtp: smtp, sendgrid: sendgrid}
}

func (r *Router) Send(ctx context.Context, account *model.SendingAccount, msg Message) error {
	switch account.Provider {
	case model.ProviderSendGrid:
		return r.sendgrid.Send(ctx, account, msg)
	default:
		return r.smtp.Send(ctx, account, msg)
	}
}
