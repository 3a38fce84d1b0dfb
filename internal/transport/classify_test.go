package transport

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

func TestClassify(t *testing.T) {
	plain := &model.SendingAccount{Provider: model.ProviderSMTP, SMTPHost: "mail.acme.io"}
	gmail := &model.SendingAccount{Provider: model.ProviderSMTP, SMTPHost: "smtp.gmail.com"}

	cases := []struct {
		name     string
		err      error
		account  *model.SendingAccount
		category appErrors.TransportCategory
		errType  string
	}{
		{"smtp 535", &textproto.Error{Code: 535, Msg: "5.7.8 bad credentials"}, plain, appErrors.TransportAuthFailure, "authentication_failed"},
		{"gmail 535", &textproto.Error{Code: 535, Msg: "5.7.8 Username and Password not accepted"}, gmail, appErrors.TransportAuthFailure, "gmail_app_password_required"},
		{"api 401", &StatusError{Provider: "sendgrid", StatusCode: 401}, plain, appErrors.TransportAuthFailure, "authentication_failed"},
		{"api 503", &StatusError{Provider: "sendgrid", StatusCode: 503}, plain, appErrors.TransportConnectionFailure, "connection_failed"},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect: connection refused")}, plain, appErrors.TransportConnectionFailure, "connection_failed"},
		{"dns", &net.DNSError{Err: "no such host", Name: "nowhere.invalid"}, plain, appErrors.TransportConnectionFailure, "connection_failed"},
		{"deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), plain, appErrors.TransportConnectionFailure, "connection_failed"},
		{"unknown ca", x509.UnknownAuthorityError{}, plain, appErrors.TransportTLSFailure, "ssl_tls_error"},
		{"tls message", errors.New("tls: first record does not look like a TLS handshake"), plain, appErrors.TransportTLSFailure, "ssl_tls_error"},
		{"other", errors.New("mailbox full"), plain, appErrors.TransportUnknownFailure, "unknown_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			te := Classify(tc.err, tc.account)
			assert.Equal(t, tc.category, te.Category)
			assert.Equal(t, tc.errType, te.ErrorType())
			assert.ErrorIs(t, te, tc.err)
		})
	}
}

func TestClassify_GmailGuidance(t *testing.T) {
	account := &model.SendingAccount{Provider: model.ProviderGmail}
	te := Classify(&textproto.Error{Code: 535, Msg: "Username and Password not accepted"}, account)
	assert.Contains(t, te.Error(), "App Password")
	assert.Contains(t, te.Error(), "https://myaccount.google.com/apppasswords")
}

func TestClassify_KeepsExistingTransportError(t *testing.T) {
	original := appErrors.NewTransportError(appErrors.TransportTLSFailure, errors.New("x"), false)
	assert.Same(t, original, Classify(fmt.Errorf("wrapped: %w", original), nil))
	assert.Nil(t, Classify(nil, nil))
}
