// internal/model/queue_item.go
package model

import "time"

type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueueSent    QueueStatus = "sent"
	QueueFailed  QueueStatus = "failed"
)

// DefaultMaxAttempts is fixed for every item; there is no per-error override.
const DefaultMaxAttempts = 3

// QueueItem is the scheduled unit of work for one (campaign, contact, step).
type QueueItem struct {
	ID               string      `db:"id" json:"id"`
	TenantID         string      `db:"tenant_id" json:"tenant_id"`
	CampaignID       string      `db:"campaign_id" json:"campaign_id"`
	StepID           string      `db:"step_id" json:"step_id"`
	VariationID      string      `db:"variation_id" json:"variation_id"`
	ContactID        string      `db:"contact_id" json:"contact_id"`
	SendingAccountID string      `db:"sending_account_id" json:"sending_account_id,omitempty"`
	Status           QueueStatus `db:"status" json:"status"`
	ScheduledAt      time.Time   `db:"scheduled_at" json:"scheduled_at"`
	Attempts         int         `db:"attempts" json:"attempts"`
	MaxAttempts      int         `db:"max_attempts" json:"max_attempts"`
	ErrorMessage     string      `db:"error_message" json:"error_message,omitempty"`
	SentAt           *time.Time  `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

// QueueKey identifies the one queue item a campaign may hold per contact and step.
type QueueKey struct {
	ContactID string
	StepID    string
}

func (q *QueueItem) Key() QueueKey {
	return QueueKey{ContactID: q.ContactID, StepID: q.StepID}
}

func (q *QueueItem) IsTerminal() bool {
	return q.Status == QueueSent || q.Status == QueueFailed
}
