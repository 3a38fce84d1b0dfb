package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
)

var _ Sender = (*SMTP)(nil)

type preset struct {
	host string
	port int
}

var providerPresets = map[model.Provider]preset{
	model.ProviderGmail:   {host: "smtp.gmail.com", port: 587},
	model.ProviderOutlook: {host: "smtp.office365.com", port: 587},
}

// SMTP sends through the account's own mail server. Port 465 uses implicit TLS,
// any other port upgrades with STARTTLS when the account asks for TLS.
type SMTP struct {
	Timeout time.Duration

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewSMTP(timeout time.Duration) *SMTP {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	d := &net.Dialer{Timeout: timeout}
	return &SMTP{Timeout: timeout, dial: d.DialContext}
}

// Endpoint resolves host and port, filling provider presets for gmail and outlook.
func Endpoint(a *model.SendingAccount) (string, int) {
	host, port := strings.TrimSpace(a.SMTPHost), a.SMTPPort
	if p, ok := providerPresets[a.Provider]; ok {
		if host == "" {
			host = p.host
		}
		if port == 0 {
			port = p.port
		}
	}
	if port == 0 {
		port = 587
	}
	return host, port
}

func (s *SMTP) Send(ctx context.Context, account *model.SendingAccount, msg Message) error {
	if err := s.send(ctx, account, msg); err != nil {
		return Classify(err, account)
	}
	return nil
}

func (s *SMTP) send(ctx context.Context, account *model.SendingAccount, msg Message) error {
	host, port := Endpoint(account)
	if host == "" {
		return fmt.Errorf("no smtp host configured for account %s", account.ID)
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	conn, err := s.dial(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	tlsConfig := &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	if port == 465 {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return err
		}
		conn = tlsConn
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if port != 465 && account.UseTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return fmt.Errorf("tls requested but %s does not offer STARTTLS", host)
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			return err
		}
	}

	if account.SMTPUsername != "" {
		if err := c.Auth(smtp.PlainAuth("", account.SMTPUsername, account.SMTPPassword, host)); err != nil {
			return err
		}
	}
	if err := c.Mail(account.FromEmail); err != nil {
		return err
	}
	if err := c.Rcpt(msg.ToEmail); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(buildMIME(account, msg)); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMIME(account *model.SendingAccount, msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", formatAddress(account.FromName, account.FromEmail))
	fmt.Fprintf(&b, "To: %s\r\n", formatAddress(msg.ToName, msg.ToEmail))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	if msg.MessageID != "" {
		fmt.Fprintf(&b, "Message-ID: <%s>\r\n", msg.MessageID)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	if msg.IsHTML() {
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	} else {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	}
	b.WriteString("\r\n")
	body := strings.ReplaceAll(msg.Content, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

func formatAddress(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), email)
}
