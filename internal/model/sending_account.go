// internal/model/sending_account.go
package model

import (
	"strings"
	"time"
)

type Provider string

const (
	ProviderSMTP     Provider = "smtp"
	ProviderGmail    Provider = "gmail"
	ProviderOutlook  Provider = "outlook"
	ProviderSendGrid Provider = "sendgrid"
)

// SendingAccount is an outbound mail identity with a per-UTC-day cap.
// DailySentCount belongs to UsageDate; on any other day the effective count is zero.
type SendingAccount struct {
	ID                  string     `db:"id" json:"id"`
	TenantID            string     `db:"tenant_id" json:"tenant_id"`
	Name                string     `db:"name" json:"name"`
	Provider            Provider   `db:"provider" json:"provider"`
	FromEmail           string     `db:"from_email" json:"from_email"`
	FromName            string     `db:"from_name" json:"from_name,omitempty"`
	SMTPHost            string     `db:"smtp_host" json:"smtp_host,omitempty"`
	SMTPPort            int        `db:"smtp_port" json:"smtp_port,omitempty"`
	SMTPUsername        string     `db:"smtp_username" json:"smtp_username,omitempty"`
	SMTPPassword        string     `db:"smtp_password" json:"-"`
	UseTLS              bool       `db:"use_tls" json:"use_tls"`
	APIKey              string     `db:"api_key" json:"-"`
	IsActive            bool       `db:"is_active" json:"is_active"`
	DailyLimit          int        `db:"daily_limit" json:"daily_limit"`
	DailySentCount      int        `db:"daily_sent_count" json:"daily_sent_count"`
	UsageDate           string     `db:"usage_date" json:"usage_date,omitempty"`
	ConsecutiveFailures int        `db:"consecutive_failures" json:"consecutive_failures"`
	LastError           string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// UsageDay formats t as the UTC calendar day used for UsageDate.
func UsageDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// SentOn returns the number of sends counted against the given UTC day.
func (a *SendingAccount) SentOn(day string) int {
	if a.UsageDate != day {
		return 0
	}
	return a.DailySentCount
}

func (a *SendingAccount) Headroom(day string) int {
	h := a.DailyLimit - a.SentOn(day)
	if h < 0 {
		return 0
	}
	return h
}

func (a *SendingAccount) IsGmail() bool {
	return a.Provider == ProviderGmail || strings.EqualFold(strings.TrimSpace(a.SMTPHost), "smtp.gmail.com")
}
