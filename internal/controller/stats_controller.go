package controller

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/service"
)

type StatsController struct {
	CampaignService     *service.CampaignService
	SubscriptionService *service.SubscriptionService
	Log                 zerolog.Logger
}

func (c *StatsController) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := c.CampaignService.Dashboard(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (c *StatsController) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := c.SubscriptionService.Get(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (c *StatsController) ChangePlan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Plan string `json:"plan" validate:"required,oneof=free starter pro"`
	}
	if err := decode(w, r, &body); err != nil {
		writeError(w, c.Log, err)
		return
	}
	sub, err := c.SubscriptionService.ChangePlan(r.Context(), tenantID(r), model.PlanName(body.Plan))
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
