// internal/model/campaign.go
package model

import (
	"sort"
	"time"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignPaused    CampaignStatus = "paused"
)

// Dispatchable reports whether queue items of a campaign in this status may be dequeued.
func (s CampaignStatus) Dispatchable() bool {
	return s == CampaignScheduled || s == CampaignSending
}

// Editable reports whether the campaign content and audience may still change.
func (s CampaignStatus) Editable() bool {
	return s == CampaignDraft || s == CampaignPaused
}

type Campaign struct {
	ID              string            `db:"id" json:"id"`
	TenantID        string            `db:"tenant_id" json:"tenant_id"`
	Name            string            `db:"name" json:"name"`
	Status          CampaignStatus    `db:"status" json:"status"`
	ContactIDs      []string          `db:"contact_ids" json:"contact_ids"`
	CustomVariables map[string]string `db:"custom_variables" json:"custom_variables,omitempty"`
	DailyLimit      int               `db:"daily_limit" json:"daily_limit"`
	DelayMinSeconds int               `db:"delay_min_seconds" json:"delay_min_seconds"`
	DelayMaxSeconds int               `db:"delay_max_seconds" json:"delay_max_seconds"`
	TrackOpens      bool              `db:"track_opens" json:"track_opens"`
	TrackClicks     bool              `db:"track_clicks" json:"track_clicks"`
	Steps           []Step            `db:"steps" json:"steps"`
	StartedAt       *time.Time        `db:"started_at" json:"started_at,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       *time.Time        `db:"updated_at" json:"updated_at,omitempty"`
}

// Step is one touch-point of a sequence. DelayDays is counted from the campaign start.
type Step struct {
	ID            string      `json:"id"`
	SequenceOrder int         `json:"sequence_order"`
	DelayDays     int         `json:"delay_days"`
	Variations    []Variation `json:"variations"`
}

// Variation is one A/B alternative of a step. Weights are relative proportions.
type Variation struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Subject string `json:"subject"`
	Content string `json:"content"`
	Weight  int    `json:"weight"`
}

// OrderedSteps returns the steps sorted by SequenceOrder without touching the receiver.
func (c *Campaign) OrderedSteps() []Step {
	steps := make([]Step, len(c.Steps))
	copy(steps, c.Steps)
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].SequenceOrder < steps[j].SequenceOrder
	})
	return steps
}

func (c *Campaign) Step(id string) (*Step, bool) {
	for i := range c.Steps {
		if c.Steps[i].ID == id {
			return &c.Steps[i], true
		}
	}
	return nil, false
}

func (s *Step) Variation(id string) (*Variation, bool) {
	for i := range s.Variations {
		if s.Variations[i].ID == id {
			return &s.Variations[i], true
		}
	}
	return nil, false
}

func (s *Step) TotalWeight() int {
	total := 0
	for _, v := range s.Variations {
		if v.Weight > 0 {
			total += v.Weight
		}
	}
	return total
}
