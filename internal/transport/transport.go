// Package transport delivers rendered messages through a sending account's provider.
package transport

import (
	"context"
	"regexp"
	"strings"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// Message is a fully rendered email ready for the wire.
type Message struct {
	MessageID string
	ToEmail   string
	ToName    string
	Subject   string
	Content   string
}

// IsHTML reports whether the content carries markup and should be sent as text/html.
func (m Message) IsHTML() bool {
	return htmlTag.MatchString(m.Content)
}

// PlainText is the text/plain rendition of the content.
func (m Message) PlainText() string {
	if !m.IsHTML() {
		return m.Content
	}
	text := breakTag.ReplaceAllString(m.Content, "\n")
	text = htmlTag.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

var (
	htmlTag  = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)
	breakTag = regexp.MustCompile(`(?i)<br\s*/?>|</p>`)
)

// Sender sends one message from one account. Errors are *appErrors.TransportError.
type Sender interface {
	Send(ctx context.Context, account *model.SendingAccount, msg Message) error
}
