package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/outreach-backend/internal/model"
)

func TestValidateCampaign_Valid(t *testing.T) {
	c := &model.Campaign{
		ContactIDs:      []string{"c1", "c2", "c3"},
		DelayMinSeconds: 60,
		DelayMaxSeconds: 120,
		DailyLimit:      2,
		Steps:           []model.Step{oneVariationStep("s1", 1, 0), oneVariationStep("s2", 2, 4)},
	}
	contacts := []*model.Contact{{ID: "c1"}, {ID: "c2"}, {ID: "c3"}}
	pool := []*model.SendingAccount{poolAccount("a", 10, 0, "", testStart)}

	r := ValidateCampaign(c, contacts, pool, testStart)
	assert.True(t, r.Valid)
	assert.Empty(t, r.Errors)
	assert.Equal(t, 3, r.Contacts)
	assert.Equal(t, 1, r.ActiveAccounts)
	assert.Equal(t, 2, r.DailyCapacity)
	assert.Equal(t, 6, r.EstimatedDays)
}

func TestValidateCampaign_Problems(t *testing.T) {
	c := &model.Campaign{
		ContactIDs:      []string{"c1", "gone"},
		DelayMinSeconds: 300,
		DelayMaxSeconds: 60,
		Steps: []model.Step{
			{ID: "s1", SequenceOrder: 1},
			{ID: "s2", SequenceOrder: 2, DelayDays: -1, Variations: []model.Variation{
				{ID: "v", Name: "A", Subject: "", Content: "Use {{promo}}", Weight: 0},
			}},
		},
	}
	r := ValidateCampaign(c, []*model.Contact{{ID: "c1"}}, nil, testStart)

	assert.False(t, r.Valid)
	assert.Contains(t, r.Errors, "step 1 has no variations")
	assert.Contains(t, r.Errors, "step 2 has a negative delay")
	assert.Contains(t, r.Errors, "no active sending account")
	assert.Contains(t, r.Errors, "delay_max_seconds must not be lower than delay_min_seconds")
	assert.Contains(t, r.Warnings, "1 contacts no longer exist and will be skipped")
	assert.Contains(t, r.Warnings, "step 2 has zero total weight; the first variation is always used")
	assert.Equal(t, []string{"promo"}, r.UnresolvedVariables)
}

func TestValidateCampaign_EmptyCampaign(t *testing.T) {
	pool := []*model.SendingAccount{poolAccount("a", 5, 5, "2026-03-02", testStart)}
	r := ValidateCampaign(&model.Campaign{}, nil, pool, testStart)

	assert.False(t, r.Valid)
	assert.Contains(t, r.Errors, "campaign has no steps")
	assert.Contains(t, r.Errors, "campaign has no contacts")
	assert.Contains(t, r.Warnings, "all sending accounts are at their daily limit; sending starts tomorrow")
}
