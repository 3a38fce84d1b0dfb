// internal/model/delivery_record.go
package model

import "time"

// DeliveryRecord is created once per sent QueueItem and updated in place by tracking callbacks.
type DeliveryRecord struct {
	ID               string     `db:"id" json:"id"`
	TenantID         string     `db:"tenant_id" json:"tenant_id"`
	QueueItemID      string     `db:"queue_item_id" json:"queue_item_id"`
	CampaignID       string     `db:"campaign_id" json:"campaign_id"`
	StepID           string     `db:"step_id" json:"step_id"`
	VariationID      string     `db:"variation_id" json:"variation_id"`
	ContactID        string     `db:"contact_id" json:"contact_id"`
	SendingAccountID string     `db:"sending_account_id" json:"sending_account_id"`
	TrackingToken    string     `db:"tracking_token" json:"tracking_token"`
	MessageID        string     `db:"message_id" json:"message_id,omitempty"`
	SentAt           time.Time  `db:"sent_at" json:"sent_at"`
	DeliveredAt      *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	OpenedAt         *time.Time `db:"opened_at" json:"opened_at,omitempty"`
	OpenCount        int        `db:"open_count" json:"open_count"`
	ClickedAt        *time.Time `db:"clicked_at" json:"clicked_at,omitempty"`
	Clicks           []Click    `db:"clicks" json:"clicks,omitempty"`
	BouncedAt        *time.Time `db:"bounced_at" json:"bounced_at,omitempty"`
	RepliedAt        *time.Time `db:"replied_at" json:"replied_at,omitempty"`
}

type Click struct {
	URL string    `json:"url"`
	At  time.Time `json:"at"`
}

// DeliveryStats is the group/sum aggregate of delivery records for one variation
// (or the whole campaign when VariationID is empty).
type DeliveryStats struct {
	StepID      string `json:"step_id,omitempty"`
	VariationID string `json:"variation_id,omitempty"`
	Sent        int    `json:"sent"`
	Opened      int    `json:"opened"`
	Clicked     int    `json:"clicked"`
	Bounced     int    `json:"bounced"`
	Replied     int    `json:"replied"`
	TotalOpens  int    `json:"total_opens"`
	TotalClicks int    `json:"total_clicks"`
}

func (s DeliveryStats) OpenRate() float64 {
	if s.Sent == 0 {
		return 0
	}
	return float64(s.Opened) / float64(s.Sent) * 100
}

func (s DeliveryStats) ClickRate() float64 {
	if s.Sent == 0 {
		return 0
	}
	return float64(s.Clicked) / float64(s.Sent) * 100
}
