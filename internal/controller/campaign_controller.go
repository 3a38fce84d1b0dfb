// internal/controller/campaign_controller.go
package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/unclebandit/outreach-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Log             zerolog.Logger
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CampaignInput
	if err := decode(w, r, &body); err != nil {
		writeError(w, c.Log, err)
		return
	}
	campaign, err := c.CampaignService.CreateCampaign(r.Context(), tenantID(r), body)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), tenantID(r), page, pageSize,
		r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := c.CampaignService.GetCampaign(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CampaignInput
	if err := decode(w, r, &body); err != nil {
		writeError(w, c.Log, err)
		return
	}
	campaign, err := c.CampaignService.UpdateCampaign(r.Context(), tenantID(r), chi.URLParam(r, "id"), body)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := c.CampaignService.DeleteCampaign(r.Context(), tenantID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "campaign deleted"})
}

func (c *CampaignController) ValidateCampaign(w http.ResponseWriter, r *http.Request) {
	report, err := c.CampaignService.Validate(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (c *CampaignController) StartCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := c.CampaignService.Start(r.Context(), tenantID(r), id)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaign_id":   id,
		"status":        "scheduled",
		"queued":        result.Queued,
		"first_send_at": result.FirstSendAt,
		"last_send_at":  result.LastSendAt,
	})
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := c.CampaignService.Pause(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := c.CampaignService.Resume(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) CampaignAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := c.CampaignService.Analytics(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (c *CampaignController) CampaignQueue(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	items, pagination, err := c.CampaignService.QueueItems(r.Context(), tenantID(r), chi.URLParam(r, "id"),
		r.URL.Query().Get("status"), page, pageSize)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": pagination,
	})
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	var body service.PreviewInput
	if err := decode(w, r, &body); err != nil {
		writeError(w, c.Log, err)
		return
	}
	preview, err := c.CampaignService.PersonalizedPreview(r.Context(), tenantID(r), chi.URLParam(r, "id"), body)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}
