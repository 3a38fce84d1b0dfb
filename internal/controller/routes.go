package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/service"
)

// API groups the tenant-facing controllers. Mount Routes under /api.
type API struct {
	Tenants   repository.TenantRepositoryInterface
	Contacts  *ContactController
	Accounts  *AccountController
	Campaigns *CampaignController
	Stats     *StatsController
	Log       zerolog.Logger
}

func NewAPI(store *repository.Store, contacts *service.ContactService, accounts *service.AccountService,
	campaigns *service.CampaignService, subs *service.SubscriptionService, log zerolog.Logger) *API {
	log = log.With().Str("component", "api").Logger()
	return &API{
		Tenants:   store.Tenants,
		Contacts:  &ContactController{ContactService: contacts, Log: log},
		Accounts:  &AccountController{AccountService: accounts, Log: log},
		Campaigns: &CampaignController{CampaignService: campaigns, Log: log},
		Stats:     &StatsController{CampaignService: campaigns, SubscriptionService: subs, Log: log},
		Log:       log,
	}
}

func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TenantMiddleware(a.Tenants, a.Log))

	r.Route("/contacts", func(r chi.Router) {
		r.Post("/", a.Contacts.CreateContact)
		r.Get("/", a.Contacts.ListContacts)
		r.Get("/{id}", a.Contacts.GetContact)
		r.Put("/{id}", a.Contacts.UpdateContact)
		r.Delete("/{id}", a.Contacts.DeleteContact)
	})

	r.Route("/sending-accounts", func(r chi.Router) {
		r.Post("/", a.Accounts.CreateAccount)
		r.Get("/", a.Accounts.ListAccounts)
		r.Get("/{id}", a.Accounts.GetAccount)
		r.Put("/{id}", a.Accounts.UpdateAccount)
		r.Delete("/{id}", a.Accounts.DeleteAccount)
		r.Post("/{id}/test", a.Accounts.TestAccount)
	})

	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", a.Campaigns.CreateCampaign)
		r.Get("/", a.Campaigns.ListCampaigns)
		r.Get("/{id}", a.Campaigns.GetCampaign)
		r.Put("/{id}", a.Campaigns.UpdateCampaign)
		r.Delete("/{id}", a.Campaigns.DeleteCampaign)
		r.Post("/{id}/validate", a.Campaigns.ValidateCampaign)
		r.Post("/{id}/start", a.Campaigns.StartCampaign)
		r.Post("/{id}/pause", a.Campaigns.PauseCampaign)
		r.Post("/{id}/resume", a.Campaigns.ResumeCampaign)
		r.Get("/{id}/analytics", a.Campaigns.CampaignAnalytics)
		r.Get("/{id}/queue", a.Campaigns.CampaignQueue)
		r.Post("/{id}/personalized-preview", a.Campaigns.PersonalizedPreview)
	})

	r.Get("/stats/dashboard", a.Stats.Dashboard)
	r.Get("/subscription", a.Stats.GetSubscription)
	r.Put("/subscription", a.Stats.ChangePlan)
	return r
}
