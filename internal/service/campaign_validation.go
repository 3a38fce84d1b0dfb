package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// ValidationReport is what the validate endpoint returns and what StartCampaign enforces.
type ValidationReport struct {
	Valid               bool     `json:"valid"`
	Errors              []string `json:"errors"`
	Warnings            []string `json:"warnings"`
	UnresolvedVariables []string `json:"unresolved_variables"`
	Contacts            int      `json:"contacts"`
	ActiveAccounts      int      `json:"active_accounts"`
	DailyCapacity       int      `json:"daily_capacity"`
	EstimatedDays       int      `json:"estimated_days"`
}

// ValidateCampaign checks a campaign against its resolved contacts and the tenant's accounts.
func ValidateCampaign(c *model.Campaign, contacts []*model.Contact, pool []*model.SendingAccount, now time.Time) ValidationReport {
	r := ValidationReport{Errors: []string{}, Warnings: []string{}, UnresolvedVariables: []string{}}

	if len(c.Steps) == 0 {
		r.Errors = append(r.Errors, "campaign has no steps")
	}
	unresolved := map[string]bool{}
	maxDelay := 0
	for _, step := range c.OrderedSteps() {
		label := fmt.Sprintf("step %d", step.SequenceOrder)
		if len(step.Variations) == 0 {
			r.Errors = append(r.Errors, label+" has no variations")
		}
		if step.DelayDays < 0 {
			r.Errors = append(r.Errors, label+" has a negative delay")
		}
		if step.DelayDays > maxDelay {
			maxDelay = step.DelayDays
		}
		for _, v := range step.Variations {
			if v.Weight < 0 {
				r.Errors = append(r.Errors, fmt.Sprintf("%s variation %q has a negative weight", label, v.Name))
			}
			if v.Subject == "" {
				r.Warnings = append(r.Warnings, fmt.Sprintf("%s variation %q has an empty subject", label, v.Name))
			}
			for _, name := range UnresolvedVariables(v.Subject+"\n"+v.Content, c.CustomVariables) {
				unresolved[name] = true
			}
		}
		if len(step.Variations) > 0 && step.TotalWeight() == 0 {
			r.Warnings = append(r.Warnings, label+" has zero total weight; the first variation is always used")
		}
	}
	for _, name := range sortedKeys(unresolved) {
		r.UnresolvedVariables = append(r.UnresolvedVariables, name)
	}
	if len(r.UnresolvedVariables) > 0 {
		r.Warnings = append(r.Warnings, "some variables cannot be resolved and will be sent verbatim")
	}

	r.Contacts = len(contacts)
	if len(c.ContactIDs) == 0 || len(contacts) == 0 {
		r.Errors = append(r.Errors, "campaign has no contacts")
	} else if missing := len(uniqueStrings(c.ContactIDs)) - len(contacts); missing > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d contacts no longer exist and will be skipped", missing))
	}

	r.ActiveAccounts = ActiveAccounts(pool)
	capacity := PoolCapacity(pool)
	if r.ActiveAccounts == 0 {
		r.Errors = append(r.Errors, "no active sending account")
	} else if capacity == 0 {
		r.Errors = append(r.Errors, "active sending accounts have a daily limit of zero")
	} else if PoolHeadroom(pool, model.UsageDay(now)) == 0 {
		r.Warnings = append(r.Warnings, "all sending accounts are at their daily limit; sending starts tomorrow")
	}

	if c.DailyLimit < 0 {
		r.Errors = append(r.Errors, "daily limit cannot be negative")
	}
	if c.DelayMinSeconds < 0 || c.DelayMaxSeconds < 0 {
		r.Errors = append(r.Errors, "delays cannot be negative")
	} else if c.DelayMaxSeconds < c.DelayMinSeconds {
		r.Errors = append(r.Errors, "delay_max_seconds must not be lower than delay_min_seconds")
	}

	r.DailyCapacity = capacity
	if c.DailyLimit > 0 && c.DailyLimit < capacity {
		r.DailyCapacity = c.DailyLimit
	}
	if r.DailyCapacity > 0 && r.Contacts > 0 {
		r.EstimatedDays = (r.Contacts+r.DailyCapacity-1)/r.DailyCapacity + maxDelay
	}

	r.Valid = len(r.Errors) == 0
	return r
}

func uniqueStrings(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
