// internal/model/tenant.go
package model

import "time"

type PlanName string

const (
	PlanFree    PlanName = "free"
	PlanStarter PlanName = "starter"
	PlanPro     PlanName = "pro"
)

type Plan struct {
	Name               PlanName `json:"name"`
	MaxContacts        int      `json:"max_contacts"`
	MaxCampaigns       int      `json:"max_campaigns"`
	MaxSendingAccounts int      `json:"max_sending_accounts"`
	MonthlyEmails      int      `json:"monthly_emails"`
}

var plans = map[PlanName]Plan{
	PlanFree:    {Name: PlanFree, MaxContacts: 500, MaxCampaigns: 5, MaxSendingAccounts: 1, MonthlyEmails: 1000},
	PlanStarter: {Name: PlanStarter, MaxContacts: 5000, MaxCampaigns: 50, MaxSendingAccounts: 5, MonthlyEmails: 20000},
	PlanPro:     {Name: PlanPro, MaxContacts: 50000, MaxCampaigns: 500, MaxSendingAccounts: 25, MonthlyEmails: 250000},
}

// LookupPlan returns the limits of a plan. Unknown names fall back to the free plan.
func LookupPlan(name PlanName) (Plan, bool) {
	p, ok := plans[name]
	if !ok {
		return plans[PlanFree], false
	}
	return p, true
}

type Tenant struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Plan      PlanName  `db:"plan" json:"plan"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
