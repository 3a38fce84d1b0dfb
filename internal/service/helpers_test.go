package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/transport"
)

var testStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingSleeper struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, d)
	return ctx.Err()
}

func (s *recordingSleeper) Calls() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration{}, s.calls...)
}

// fakeTransport returns the queued errors in order, then succeeds.
type fakeTransport struct {
	mu       sync.Mutex
	errs     []error
	sent     []transport.Message
	accounts []string
	calls    int
	// onSend runs before each send, outside the lock
	onSend   func()
}

func (f *fakeTransport) Send(ctx context.Context, account *model.SendingAccount, msg transport.Message) error {
	if f.onSend != nil {
		f.onSend()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, msg)
	f.accounts = append(f.accounts, account.ID)
	return nil
}

func (f *fakeTransport) Sent() []transport.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Message{}, f.sent...)
}

func (f *fakeTransport) Recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.ToEmail
	}
	return out
}

func (f *fakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	store     *repository.Store
	clock     *testClock
	sleeper   *recordingSleeper
	transport *fakeTransport
	executor  *Executor
	scheduler *Scheduler
	tenantID  string
	seq       int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		ctx:       context.Background(),
		store:     repository.NewMemoryStore(),
		clock:     &testClock{t: testStart},
		sleeper:   &recordingSleeper{},
		transport: &fakeTransport{},
		tenantID:  "tenant-1",
	}

	h.executor = NewExecutor(h.store, h.transport, ExecutorConfig{
		Retry:                   RetryPolicy{Base: 300 * time.Second, Cap: time.Hour},
		NoAccountRetryDelay:     15 * time.Minute,
		AccountFailureThreshold: 5,
		SendWindowStartHour:     9,
		PublicBaseURL:           "https://track.example.com",
	}, logger.Nop())
	h.executor.Clock = h.clock
	h.executor.NewID = h.nextID

	h.scheduler = NewScheduler(h.store, h.executor, SchedulerConfig{
		BatchSize:           10,
		PaceMin:             5 * time.Second,
		PaceMax:             15 * time.Second,
		SendWindowStartHour: 9,
		DefaultDelayMin:     60,
		DefaultDelayMax:     300,
	}, logger.Nop())
	h.scheduler.Clock = h.clock
	h.scheduler.Sleeper = h.sleeper
	h.scheduler.NewID = h.nextID
	h.scheduler.SetPaceSource(rand.NewPCG(1, 2))

	require.NoError(t, h.store.Tenants.Create(h.ctx, &model.Tenant{ID: h.tenantID, Name: "Acme", Plan: model.PlanStarter}))
	return h
}

func (h *harness) nextID() string {
	h.seq++
	return fmt.Sprintf("id-%04d", h.seq)
}

func (h *harness) addAccount(id string, limit, sentToday int) *model.SendingAccount {
	h.t.Helper()
	a := &model.SendingAccount{
		ID:         id,
		TenantID:   h.tenantID,
		Name:       id,
		Provider:   model.ProviderSMTP,
		FromEmail:  id + "@sender.example.com",
		SMTPHost:   "smtp.example.com",
		SMTPPort:   587,
		IsActive:   true,
		DailyLimit: limit,
		CreatedAt:  testStart.Add(-time.Duration(100-h.seq) * time.Hour),
	}
	if sentToday > 0 {
		a.DailySentCount = sentToday
		a.UsageDate = model.UsageDay(h.clock.Now())
	}
	h.seq++
	require.NoError(h.t, h.store.Accounts.Create(h.ctx, a))
	return a
}

func (h *harness) addContacts(n int) []*model.Contact {
	h.t.Helper()
	out := make([]*model.Contact, 0, n)
	for i := 0; i < n; i++ {
		c := &model.Contact{
			ID:        fmt.Sprintf("contact-%03d", i),
			TenantID:  h.tenantID,
			FirstName: fmt.Sprintf("Name%d", i),
			Email:     fmt.Sprintf("person%d@example.org", i),
			Company:   "Initech",
		}
		require.NoError(h.t, h.store.Contacts.Create(h.ctx, c))
		out = append(out, c)
	}
	return out
}

func (h *harness) addCampaign(contacts []*model.Contact, steps ...model.Step) *model.Campaign {
	h.t.Helper()
	if len(steps) == 0 {
		steps = []model.Step{oneVariationStep("step-1", 1, 0)}
	}
	ids := make([]string, len(contacts))
	for i, c := range contacts {
		ids[i] = c.ID
	}
	c := &model.Campaign{
		ID:              "campaign-1",
		TenantID:        h.tenantID,
		Name:            "Spring outreach",
		Status:          model.CampaignDraft,
		ContactIDs:      ids,
		DelayMinSeconds: 60,
		DelayMaxSeconds: 120,
		Steps:           steps,
	}
	require.NoError(h.t, h.store.Campaigns.Create(h.ctx, c))
	return c
}

func oneVariationStep(id string, order, delayDays int) model.Step {
	return model.Step{
		ID:            id,
		SequenceOrder: order,
		DelayDays:     delayDays,
		Variations: []model.Variation{
			{ID: id + "-a", Name: "A", Subject: "Hello {{first_name}}", Content: "Hi {{first_name}} from {{company}}", Weight: 100},
		},
	}
}

func (h *harness) items(campaignID string) []*model.QueueItem {
	h.t.Helper()
	items, _, err := h.store.Queue.ListByCampaign(h.ctx, campaignID, "", 0, 0)
	require.NoError(h.t, err)
	return items
}

func (h *harness) account(id string) *model.SendingAccount {
	h.t.Helper()
	a, err := h.store.Accounts.GetByID(h.ctx, h.tenantID, id)
	require.NoError(h.t, err)
	return a
}

func (h *harness) campaignStatus(id string) model.CampaignStatus {
	h.t.Helper()
	c, err := h.store.Campaigns.GetByID(h.ctx, h.tenantID, id)
	require.NoError(h.t, err)
	return c.Status
}

// enqueue stores a pending item for the first step of c and makes the campaign dispatchable.
func (h *harness) enqueue(c *model.Campaign, contact *model.Contact, at time.Time) *model.QueueItem {
	h.t.Helper()
	step := c.Steps[0]
	it := &model.QueueItem{
		ID:          h.nextID(),
		TenantID:    h.tenantID,
		CampaignID:  c.ID,
		StepID:      step.ID,
		VariationID: step.Variations[0].ID,
		ContactID:   contact.ID,
		ScheduledAt: at,
		MaxAttempts: 3,
	}
	require.NoError(h.t, h.store.Queue.CreateBatch(h.ctx, []*model.QueueItem{it}))
	require.NoError(h.t, h.store.Campaigns.UpdateStatus(h.ctx, c.ID, model.CampaignScheduled))
	return it
}

func (h *harness) item(id string) *model.QueueItem {
	h.t.Helper()
	it, err := h.store.Queue.GetByID(h.ctx, id)
	require.NoError(h.t, err)
	require.NotNil(h.t, it)
	return it
}
