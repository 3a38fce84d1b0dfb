package transport

import (
	"context"
	"testing"

	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type captureSender struct {
	called bool
	last   Message
}

func (c *captureSender) Send(ctx context.Context, account *model.SendingAccount, msg Message) error {
	c.called = true
	c.last = msg
	return nil
}

func TestRouter_SelectsByProvider(t *testing.T) {
	for _, tc := range []struct {
		provider     model.Provider
		wantSendGrid bool
	}{
		{model.ProviderSMTP, false},
		{model.ProviderGmail, false},
		{model.ProviderOutlook, false},
		{model.ProviderSendGrid, true},
	} {
		smtpCap, sgCap := &captureSender{}, &captureSender{}
		r := NewRouter(smtpCap, sgCap)
		require.NoError(t, r.Send(context.Background(), &model.SendingAccount{Provider: tc.provider}, Message{ToEmail: "a@b.io"}))
		assert.Equal(t, tc.wantSendGrid, sgCap.called, tc.provider)
		assert.Equal(t, !tc.wantSendGrid, smtpCap.called, tc.provider)
	}
}

func TestSendGrid_MapsStatus(t *testing.T) {
	var gotKey string
	var gotMail *mail.SGMailV3
	sg := &SendGrid{send: func(ctx context.Context, apiKey string, m *mail.SGMailV3) (int, string, error) {
		gotKey, gotMail = apiKey, m
		if apiKey == "revoked" {
			return 403, `{"errors":[{"message":"forbidden"}]}`, nil
		}
		return 202, "", nil
	}}
	account := &model.SendingAccount{Provider: model.ProviderSendGrid, FromEmail: "me@acme.io", APIKey: "SG.key"}

	err := sg.Send(context.Background(), account, Message{ToEmail: "jane@example.com", Subject: "Hi", Content: "<b>Hello</b>"})
	require.NoError(t, err)
	assert.Equal(t, "SG.key", gotKey)
	require.NotNil(t, gotMail)
	assert.Equal(t, "Hi", gotMail.Subject)
	require.Len(t, gotMail.Content, 2)
	assert.Equal(t, "Hello", gotMail.Content[0].Value)

	account.APIKey = "revoked"
	err = sg.Send(context.Background(), account, Message{ToEmail: "jane@example.com", Subject: "Hi", Content: "Hello"})
	te, ok := appErrors.AsTransportError(err)
	require.True(t, ok)
	assert.Equal(t, appErrors.TransportAuthFailure, te.Category)
}

func TestMessage_PlainText(t *testing.T) {
	m := Message{Content: "<p>Hi Jane</p><p>Bye<br/>now</p>"}
	assert.True(t, m.IsHTML())
	assert.Equal(t, "Hi Jane\nBye\nnow", m.PlainText())

	plain := Message{Content: "1 < 2 and 3 > 2"}
	assert.False(t, plain.IsHTML())
	assert.Equal(t, "1 < 2 and 3 > 2", plain.PlainText())
}
