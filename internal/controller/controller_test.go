package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/controller"
	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/service"
	"github.com/unclebandit/outreach-backend/internal/transport"
)

const tenant = "tenant-1"

type stubTransport struct {
	err error
}

func (s *stubTransport) Send(ctx context.Context, account *model.SendingAccount, msg transport.Message) error {
	return s.err
}

type testAPI struct {
	t         *testing.T
	store     *repository.Store
	transport *stubTransport
	handler   http.Handler
}

func newTestAPI(t *testing.T, plan model.PlanName) *testAPI {
	t.Helper()
	store := repository.NewMemoryStore()
	require.NoError(t, store.Tenants.Create(context.Background(), &model.Tenant{ID: tenant, Name: "Acme", Plan: plan}))

	log := logger.Nop()
	tr := &stubTransport{}
	executor := service.NewExecutor(store, tr, service.ExecutorConfig{PublicBaseURL: "https://track.example.com"}, log)
	scheduler := service.NewScheduler(store, executor, service.SchedulerConfig{SendWindowStartHour: 9}, log)
	subs := service.NewSubscriptionService(store, log)
	api := controller.NewAPI(store,
		service.NewContactService(store, subs, log),
		service.NewAccountService(store, subs, tr, log),
		service.NewCampaignService(store, scheduler, subs, nil, service.CampaignDefaults{}, log),
		subs, log)

	r := chi.NewRouter()
	r.Mount("/api", api.Routes())
	return &testAPI{t: t, store: store, transport: tr, handler: r}
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(controller.TenantHeader, tenant)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestTenantMiddleware(t *testing.T) {
	api := newTestAPI(t, model.PlanStarter)

	req := httptest.NewRequest(http.MethodGet, "/api/contacts", nil)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/contacts", nil)
	req.Header.Set(controller.TenantHeader, "ghost")
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unknown tenant", decodeBody[controller.ErrorBody](t, rec).Error)
}

func TestContacts_CRUD(t *testing.T) {
	api := newTestAPI(t, model.PlanStarter)

	rec := api.do(http.MethodPost, "/api/contacts", map[string]any{
		"first_name": "Ada", "email": "ada@example.org", "tags": []string{"vip"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[model.Contact](t, rec)
	assert.NotEmpty(t, created.ID)

	rec = api.do(http.MethodPost, "/api/contacts", map[string]any{"email": "ADA@example.org"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/api/contacts", map[string]any{"email": "not-an-email"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[controller.ErrorBody](t, rec)
	assert.Equal(t, "validation failed", body.Error)
	assert.Equal(t, []string{"email must be a valid email address"}, body.Fields)

	rec = api.do(http.MethodGet, "/api/contacts?tags=vip&page_size=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Data       []model.Contact    `json:"data"`
		Pagination service.Pagination `json:"pagination"`
	}](t, rec)
	assert.Len(t, list.Data, 1)
	assert.Equal(t, service.Pagination{Page: 1, PageSize: 5, TotalCount: 1, TotalPages: 1}, list.Pagination)

	rec = api.do(http.MethodPut, "/api/contacts/"+created.ID, map[string]any{"first_name": "Augusta"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Augusta", decodeBody[model.Contact](t, rec).FirstName)

	rec = api.do(http.MethodDelete, "/api/contacts/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(http.MethodGet, "/api/contacts/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccounts_LimitAndConnectionTest(t *testing.T) {
	api := newTestAPI(t, model.PlanFree)
	in := map[string]any{
		"name": "Sales", "provider": "gmail", "from_email": "sales@gmail.com", "smtp_password": "pw",
	}

	rec := api.do(http.MethodPost, "/api/sending-accounts", in)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	account := decodeBody[model.SendingAccount](t, rec)
	assert.Equal(t, "smtp.gmail.com", account.SMTPHost)
	assert.NotContains(t, rec.Body.String(), "smtp_password")

	rec = api.do(http.MethodPost, "/api/sending-accounts", in)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPost, "/api/sending-accounts", map[string]any{"name": "x", "provider": "fax", "from_email": "x@acme.io"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	api.transport.err = errors.New("535 5.7.8 Username and Password not accepted")
	rec = api.do(http.MethodPost, "/api/sending-accounts/"+account.ID+"/test", map[string]any{"test_email": "me@acme.io"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[service.ConnectionTestResult](t, rec)
	assert.False(t, result.Success)
	assert.Equal(t, "gmail_app_password_required", result.ErrorType)

	api.transport.err = nil
	rec = api.do(http.MethodPost, "/api/sending-accounts/"+account.ID+"/test", map[string]any{"test_email": "me@acme.io"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[service.ConnectionTestResult](t, rec).Success)
}

func TestCampaigns_Flow(t *testing.T) {
	api := newTestAPI(t, model.PlanStarter)

	rec := api.do(http.MethodPost, "/api/contacts", map[string]any{"first_name": "Ada", "email": "ada@example.org", "company": "Initech"})
	require.Equal(t, http.StatusCreated, rec.Code)
	contact := decodeBody[model.Contact](t, rec)

	rec = api.do(http.MethodPost, "/api/campaigns", map[string]any{
		"name":        "Launch",
		"contact_ids": []string{contact.ID},
		"steps": []map[string]any{{
			"variations": []map[string]any{{"subject": "Hi {{first_name}}", "content": "Hello from {{company}}", "weight": 1}},
		}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	campaign := decodeBody[model.Campaign](t, rec)
	base := "/api/campaigns/" + campaign.ID

	rec = api.do(http.MethodPost, base+"/personalized-preview", map[string]any{"contact_id": contact.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decodeBody[service.Preview](t, rec)
	assert.Equal(t, "Hi Ada", preview.Subject)
	assert.Equal(t, "Hello from Initech", preview.Content)

	rec = api.do(http.MethodPost, base+"/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[service.ValidationReport](t, rec).Valid)

	// no sending account yet
	rec = api.do(http.MethodPost, base+"/start", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/api/sending-accounts", map[string]any{
		"name": "Ops", "from_email": "ops@acme.io", "smtp_host": "mail.acme.io", "smtp_password": "pw",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, base+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decodeBody[map[string]any](t, rec)["queued"])

	rec = api.do(http.MethodGet, base+"/queue?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_count":1`)

	rec = api.do(http.MethodPut, base, map[string]any{"name": "Edited"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, base+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.CampaignPaused, decodeBody[model.Campaign](t, rec).Status)

	rec = api.do(http.MethodPost, base+"/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.CampaignScheduled, decodeBody[model.Campaign](t, rec).Status)

	rec = api.do(http.MethodGet, base+"/analytics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	analytics := decodeBody[service.CampaignAnalytics](t, rec)
	assert.Equal(t, 1, analytics.Queue[model.QueuePending])

	rec = api.do(http.MethodGet, "/api/stats/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dashboard := decodeBody[service.DashboardStats](t, rec)
	assert.Equal(t, 1, dashboard.TotalContacts)
	assert.Equal(t, 1, dashboard.ActiveCampaigns)

	rec = api.do(http.MethodGet, "/api/campaigns/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCampaigns_RejectsInvalidBody(t *testing.T) {
	api := newTestAPI(t, model.PlanStarter)

	rec := api.do(http.MethodPost, "/api/campaigns", map[string]any{
		"steps": []map[string]any{{"variations": []map[string]any{}}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[controller.ErrorBody](t, rec)
	assert.Contains(t, body.Fields, "name is required")
	assert.Contains(t, body.Fields, "steps[0].variations must be at least 1")

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns", bytes.NewBufferString("{"))
	req.Header.Set(controller.TenantHeader, tenant)
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscription(t *testing.T) {
	api := newTestAPI(t, model.PlanFree)

	rec := api.do(http.MethodGet, "/api/subscription", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sub := decodeBody[service.Subscription](t, rec)
	assert.Equal(t, model.PlanFree, sub.Plan.Name)

	rec = api.do(http.MethodPut, "/api/subscription", map[string]string{"plan": "pro"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.PlanPro, decodeBody[service.Subscription](t, rec).Plan.Name)

	rec = api.do(http.MethodPut, "/api/subscription", map[string]string{"plan": "gold"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
