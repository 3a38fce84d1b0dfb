package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// Memory is a process-local store used by tests and STORAGE_DRIVER=memory.
// All views share one mutex, which also makes IncrementSent atomic.
type Memory struct {
	mu  sync.Mutex
	seq int64

	tenants    map[string]*model.Tenant
	contacts   map[string]*model.Contact
	campaigns  map[string]*model.Campaign
	accounts   map[string]*model.SendingAccount
	queue      map[string]*model.QueueItem
	deliveries map[string]*model.DeliveryRecord // keyed by tracking token

	order map[string]int64
}

func NewMemory() *Memory {
	return &Memory{
		tenants:    map[string]*model.Tenant{},
		contacts:   map[string]*model.Contact{},
		campaigns:  map[string]*model.Campaign{},
		accounts:   map[string]*model.SendingAccount{},
		queue:      map[string]*model.QueueItem{},
		deliveries: map[string]*model.DeliveryRecord{},
		order:      map[string]int64{},
	}
}

func (m *Memory) Tenants() *MemoryTenants       { return &MemoryTenants{m} }
func (m *Memory) Contacts() *MemoryContacts     { return &MemoryContacts{m} }
func (m *Memory) Campaigns() *MemoryCampaigns   { return &MemoryCampaigns{m} }
func (m *Memory) Accounts() *MemoryAccounts     { return &MemoryAccounts{m} }
func (m *Memory) Queue() *MemoryQueue           { return &MemoryQueue{m} }
func (m *Memory) Deliveries() *MemoryDeliveries { return &MemoryDeliveries{m} }

// stamp records insertion order, used to break created_at ties like the SQL ORDER BY id would.
func (m *Memory) stamp(id string) {
	m.seq++
	m.order[id] = m.seq
}

func now() time.Time { return time.Now().UTC() }

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// ====================== Tenants ======================

type MemoryTenants struct{ m *Memory }

func (r *MemoryTenants) Create(ctx context.Context, t *model.Tenant) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.tenants[t.ID]; ok {
		return appErrors.NewConflict("tenant %s already exists", t.ID)
	}
	t.CreatedAt = now()
	if t.Plan == "" {
		t.Plan = model.PlanFree
	}
	cp := *t
	r.m.tenants[t.ID] = &cp
	return nil
}

func (r *MemoryTenants) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.tenants[id]
	if !ok {
		return nil, appErrors.NewTenantNotFound(id)
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryTenants) UpdatePlan(ctx context.Context, id string, plan model.PlanName) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.tenants[id]
	if !ok {
		return appErrors.NewTenantNotFound(id)
	}
	t.Plan = plan
	return nil
}

// ====================== Contacts ======================

type MemoryContacts struct{ m *Memory }

func cloneContact(c *model.Contact) *model.Contact {
	cp := *c
	cp.Tags = append([]string{}, c.Tags...)
	return &cp
}

func (r *MemoryContacts) Create(ctx context.Context, c *model.Contact) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c.Email = model.NormalizeEmail(c.Email)
	for _, existing := range r.m.contacts {
		if existing.TenantID == c.TenantID && existing.Email == c.Email {
			return appErrors.NewConflict("contact with email %s already exists", c.Email)
		}
	}
	c.CreatedAt = now()
	r.m.contacts[c.ID] = cloneContact(c)
	r.m.stamp(c.ID)
	return nil
}

func (r *MemoryContacts) Update(ctx context.Context, c *model.Contact) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	existing, ok := r.m.contacts[c.ID]
	if !ok || existing.TenantID != c.TenantID {
		return appErrors.NewContactNotFound(c.ID)
	}
	ts := now()
	existing.FirstName = c.FirstName
	existing.LastName = c.LastName
	existing.Company = c.Company
	existing.Phone = c.Phone
	existing.Tags = append([]string{}, c.Tags...)
	existing.UpdatedAt = &ts
	return nil
}

func (r *MemoryContacts) Delete(ctx context.Context, tenantID, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.contacts[id]
	if !ok || c.TenantID != tenantID {
		return appErrors.NewContactNotFound(id)
	}
	delete(r.m.contacts, id)
	return nil
}

func (r *MemoryContacts) GetByID(ctx context.Context, tenantID, id string) (*model.Contact, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.contacts[id]
	if !ok || c.TenantID != tenantID {
		return nil, appErrors.NewContactNotFound(id)
	}
	return cloneContact(c), nil
}

func (r *MemoryContacts) GetByEmail(ctx context.Context, tenantID, email string) (*model.Contact, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	email = model.NormalizeEmail(email)
	for _, c := range r.m.contacts {
		if c.TenantID == tenantID && c.Email == email {
			return cloneContact(c), nil
		}
	}
	return nil, nil
}

func (r *MemoryContacts) List(ctx context.Context, tenantID string, f ContactFilter) ([]*model.Contact, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	matched := []*model.Contact{}
	for _, c := range r.m.contacts {
		if c.TenantID != tenantID {
			continue
		}
		if search != "" && !contactMatches(c, search) {
			continue
		}
		if len(f.Tags) > 0 && !hasAnyTag(c.Tags, f.Tags) {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool {
		return r.m.order[matched[i].ID] > r.m.order[matched[j].ID]
	})
	page := paginate(matched, f.Offset, f.Limit)
	out := make([]*model.Contact, len(page))
	for i, c := range page {
		out[i] = cloneContact(c)
	}
	return out, len(matched), nil
}

func (r *MemoryContacts) ListByIDs(ctx context.Context, tenantID string, ids []string) ([]*model.Contact, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := []*model.Contact{}
	seen := map[string]bool{}
	for _, id := range ids {
		c, ok := r.m.contacts[id]
		if !ok || c.TenantID != tenantID || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, cloneContact(c))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return r.m.order[out[i].ID] < r.m.order[out[j].ID]
	})
	return out, nil
}

func (r *MemoryContacts) Count(ctx context.Context, tenantID string) (int, error) {
	return r.CountCreatedSince(ctx, tenantID, time.Time{})
}

func (r *MemoryContacts) CountCreatedSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := 0
	for _, c := range r.m.contacts {
		if c.TenantID == tenantID && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func contactMatches(c *model.Contact, search string) bool {
	for _, field := range []string{c.FirstName, c.LastName, c.Email, c.Company} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// ====================== Campaigns ======================

type MemoryCampaigns struct{ m *Memory }

func cloneCampaign(c *model.Campaign) *model.Campaign {
	cp := *c
	cp.ContactIDs = append([]string{}, c.ContactIDs...)
	if c.CustomVariables != nil {
		cp.CustomVariables = make(map[string]string, len(c.CustomVariables))
		for k, v := range c.CustomVariables {
			cp.CustomVariables[k] = v
		}
	}
	cp.Steps = make([]model.Step, len(c.Steps))
	for i, s := range c.Steps {
		s.Variations = append([]model.Variation{}, s.Variations...)
		cp.Steps[i] = s
	}
	if c.StartedAt != nil {
		t := *c.StartedAt
		cp.StartedAt = &t
	}
	return &cp
}

func (r *MemoryCampaigns) Create(ctx context.Context, c *model.Campaign) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c.CreatedAt = now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	r.m.campaigns[c.ID] = cloneCampaign(c)
	r.m.stamp(c.ID)
	return nil
}

func (r *MemoryCampaigns) Update(ctx context.Context, c *model.Campaign) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	existing, ok := r.m.campaigns[c.ID]
	if !ok || existing.TenantID != c.TenantID {
		return appErrors.NewCampaignNotFound(c.ID)
	}
	cp := cloneCampaign(c)
	cp.CreatedAt = existing.CreatedAt
	ts := now()
	cp.UpdatedAt = &ts
	r.m.campaigns[c.ID] = cp
	return nil
}

func (r *MemoryCampaigns) UpdateStatus(ctx context.Context, campaignID string, status model.CampaignStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if c, ok := r.m.campaigns[campaignID]; ok {
		ts := now()
		c.Status = status
		c.UpdatedAt = &ts
	}
	return nil
}

func (r *MemoryCampaigns) GetByID(ctx context.Context, tenantID, id string) (*model.Campaign, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return cloneCampaign(c), nil
}

func (r *MemoryCampaigns) List(ctx context.Context, tenantID string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	matched := []*model.Campaign{}
	for _, c := range r.m.campaigns {
		if c.TenantID != tenantID || (status != "" && string(c.Status) != status) {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool {
		return r.m.order[matched[i].ID] > r.m.order[matched[j].ID]
	})
	page := paginate(matched, offset, limit)
	out := make([]*model.Campaign, len(page))
	for i, c := range page {
		out[i] = cloneCampaign(c)
	}
	return out, len(matched), nil
}

func (r *MemoryCampaigns) Delete(ctx context.Context, tenantID, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return appErrors.NewCampaignNotFound(id)
	}
	delete(r.m.campaigns, id)
	for qid, it := range r.m.queue {
		if it.CampaignID == id {
			delete(r.m.queue, qid)
		}
	}
	for token, d := range r.m.deliveries {
		if d.CampaignID == id {
			delete(r.m.deliveries, token)
		}
	}
	return nil
}

func (r *MemoryCampaigns) Count(ctx context.Context, tenantID string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := 0
	for _, c := range r.m.campaigns {
		if c.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (r *MemoryCampaigns) CountByStatus(ctx context.Context, tenantID string) (map[model.CampaignStatus]int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stats := map[model.CampaignStatus]int{}
	for _, c := range r.m.campaigns {
		if c.TenantID == tenantID {
			stats[c.Status]++
		}
	}
	return stats, nil
}

// ====================== Sending accounts ======================

type MemoryAccounts struct{ m *Memory }

func (r *MemoryAccounts) Create(ctx context.Context, a *model.SendingAccount) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now()
	}
	cp := *a
	r.m.accounts[a.ID] = &cp
	r.m.stamp(a.ID)
	return nil
}

func (r *MemoryAccounts) Update(ctx context.Context, a *model.SendingAccount) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	existing, ok := r.m.accounts[a.ID]
	if !ok || existing.TenantID != a.TenantID {
		return appErrors.NewAccountNotFound(a.ID)
	}
	ts := now()
	existing.Name = a.Name
	existing.Provider = a.Provider
	existing.FromEmail = a.FromEmail
	existing.FromName = a.FromName
	existing.SMTPHost = a.SMTPHost
	existing.SMTPPort = a.SMTPPort
	existing.SMTPUsername = a.SMTPUsername
	existing.SMTPPassword = a.SMTPPassword
	existing.UseTLS = a.UseTLS
	existing.APIKey = a.APIKey
	existing.IsActive = a.IsActive
	existing.DailyLimit = a.DailyLimit
	if a.IsActive {
		existing.ConsecutiveFailures = 0
	}
	existing.UpdatedAt = &ts
	return nil
}

func (r *MemoryAccounts) Delete(ctx context.Context, tenantID, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.accounts[id]
	if !ok || a.TenantID != tenantID {
		return appErrors.NewAccountNotFound(id)
	}
	delete(r.m.accounts, id)
	return nil
}

func (r *MemoryAccounts) GetByID(ctx context.Context, tenantID, id string) (*model.SendingAccount, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.accounts[id]
	if !ok || a.TenantID != tenantID {
		return nil, appErrors.NewAccountNotFound(id)
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryAccounts) List(ctx context.Context, tenantID string) ([]*model.SendingAccount, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := []*model.SendingAccount{}
	for _, a := range r.m.accounts {
		if a.TenantID == tenantID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return r.m.order[out[i].ID] < r.m.order[out[j].ID]
	})
	return out, nil
}

func (r *MemoryAccounts) Count(ctx context.Context, tenantID string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := 0
	for _, a := range r.m.accounts {
		if a.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (r *MemoryAccounts) IncrementSent(ctx context.Context, id, day string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.accounts[id]
	if !ok || !a.IsActive || a.SentOn(day) >= a.DailyLimit {
		return false, nil
	}
	a.DailySentCount = a.SentOn(day) + 1
	a.UsageDate = day
	return true, nil
}

func (r *MemoryAccounts) RecordFailure(ctx context.Context, id, message string, threshold int) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.accounts[id]
	if !ok {
		return false, appErrors.NewAccountNotFound(id)
	}
	a.ConsecutiveFailures++
	a.LastError = message
	if threshold > 0 && a.ConsecutiveFailures >= threshold {
		a.IsActive = false
	}
	return threshold > 0 && a.ConsecutiveFailures == threshold, nil
}

func (r *MemoryAccounts) ResetFailures(ctx context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if a, ok := r.m.accounts[id]; ok {
		a.ConsecutiveFailures = 0
		a.LastError = ""
	}
	return nil
}

func (r *MemoryAccounts) ResetDailyCounts(ctx context.Context, day string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for _, a := range r.m.accounts {
		if a.UsageDate != day {
			a.DailySentCount = 0
			a.UsageDate = day
			n++
		}
	}
	return n, nil
}

// ====================== Queue ======================

type MemoryQueue struct{ m *Memory }

func cloneItem(it *model.QueueItem) *model.QueueItem {
	cp := *it
	if it.SentAt != nil {
		t := *it.SentAt
		cp.SentAt = &t
	}
	return &cp
}

func (r *MemoryQueue) CreateBatch(ctx context.Context, items []*model.QueueItem) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	type campaignKey struct {
		campaignID string
		key        model.QueueKey
	}
	taken := map[campaignKey]bool{}
	for _, it := range r.m.queue {
		taken[campaignKey{it.CampaignID, it.Key()}] = true
	}
	for _, it := range items {
		k := campaignKey{it.CampaignID, it.Key()}
		if taken[k] {
			return appErrors.NewConflict("campaign %s already queued step %s for contact %s", it.CampaignID, it.StepID, it.ContactID)
		}
		taken[k] = true
	}

	ts := now()
	for _, it := range items {
		if it.Status == "" {
			it.Status = model.QueuePending
		}
		if it.MaxAttempts == 0 {
			it.MaxAttempts = model.DefaultMaxAttempts
		}
		it.CreatedAt, it.UpdatedAt = ts, ts
		r.m.queue[it.ID] = cloneItem(it)
		r.m.stamp(it.ID)
	}
	return nil
}

func (r *MemoryQueue) Keys(ctx context.Context, campaignID string) (map[model.QueueKey]bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	keys := map[model.QueueKey]bool{}
	for _, it := range r.m.queue {
		if it.CampaignID == campaignID {
			keys[it.Key()] = true
		}
	}
	return keys, nil
}

func (r *MemoryQueue) GetByID(ctx context.Context, id string) (*model.QueueItem, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	it, ok := r.m.queue[id]
	if !ok {
		return nil, nil
	}
	return cloneItem(it), nil
}

func (r *MemoryQueue) sorted(filter func(*model.QueueItem) bool) []*model.QueueItem {
	out := []*model.QueueItem{}
	for _, it := range r.m.queue {
		if filter(it) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return r.m.order[out[i].ID] < r.m.order[out[j].ID]
	})
	return out
}

func (r *MemoryQueue) ListDue(ctx context.Context, at time.Time, limit int) ([]*model.QueueItem, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	due := r.sorted(func(it *model.QueueItem) bool {
		c, ok := r.m.campaigns[it.CampaignID]
		return ok && c.Status.Dispatchable() &&
			it.Status == model.QueuePending &&
			!it.ScheduledAt.After(at) &&
			it.Attempts < it.MaxAttempts
	})
	page := paginate(due, 0, limit)
	out := make([]*model.QueueItem, len(page))
	for i, it := range page {
		out[i] = cloneItem(it)
	}
	return out, nil
}

func (r *MemoryQueue) ListByCampaign(ctx context.Context, campaignID, status string, offset, limit int) ([]*model.QueueItem, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	matched := r.sorted(func(it *model.QueueItem) bool {
		return it.CampaignID == campaignID && (status == "" || string(it.Status) == status)
	})
	page := paginate(matched, offset, limit)
	out := make([]*model.QueueItem, len(page))
	for i, it := range page {
		out[i] = cloneItem(it)
	}
	return out, len(matched), nil
}

func (r *MemoryQueue) CountByStatus(ctx context.Context, campaignID string) (map[model.QueueStatus]int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	counts := map[model.QueueStatus]int{}
	for _, it := range r.m.queue {
		if it.CampaignID == campaignID {
			counts[it.Status]++
		}
	}
	return counts, nil
}

// pending returns the item only while it can still transition.
func (r *MemoryQueue) pending(id string) (*model.QueueItem, bool) {
	it, ok := r.m.queue[id]
	if !ok || it.Status != model.QueuePending {
		return nil, false
	}
	return it, true
}

func (r *MemoryQueue) MarkSent(ctx context.Context, id, accountID string, sentAt time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	it, ok := r.pending(id)
	if !ok {
		return false, nil
	}
	t := sentAt
	it.Status = model.QueueSent
	it.SendingAccountID = accountID
	it.SentAt = &t
	it.ErrorMessage = ""
	it.UpdatedAt = now()
	return true, nil
}

func (r *MemoryQueue) MarkRetry(ctx context.Context, id string, attempts int, next time.Time, message string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if it, ok := r.pending(id); ok {
		it.Attempts = attempts
		it.ScheduledAt = next
		it.ErrorMessage = message
		it.UpdatedAt = now()
	}
	return nil
}

func (r *MemoryQueue) MarkFailed(ctx context.Context, id string, attempts int, message string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if it, ok := r.pending(id); ok {
		it.Status = model.QueueFailed
		it.Attempts = attempts
		it.ErrorMessage = message
		it.UpdatedAt = now()
	}
	return nil
}

func (r *MemoryQueue) Defer(ctx context.Context, id string, next time.Time, message string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if it, ok := r.pending(id); ok {
		it.ScheduledAt = next
		it.ErrorMessage = message
		it.UpdatedAt = now()
	}
	return nil
}

// ====================== Deliveries ======================

type MemoryDeliveries struct{ m *Memory }

func cloneDelivery(d *model.DeliveryRecord) *model.DeliveryRecord {
	cp := *d
	cp.Clicks = append([]model.Click{}, d.Clicks...)
	return &cp
}

func (r *MemoryDeliveries) Create(ctx context.Context, d *model.DeliveryRecord) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.deliveries[d.TrackingToken]; ok {
		return appErrors.NewConflict("tracking token %s already used", d.TrackingToken)
	}
	r.m.deliveries[d.TrackingToken] = cloneDelivery(d)
	return nil
}

func (r *MemoryDeliveries) GetByToken(ctx context.Context, token string) (*model.DeliveryRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.deliveries[token]
	if !ok {
		return nil, nil
	}
	return cloneDelivery(d), nil
}

func (r *MemoryDeliveries) MarkOpened(ctx context.Context, token string, at time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.deliveries[token]
	if !ok {
		return false, nil
	}
	if d.OpenedAt == nil {
		t := at
		d.OpenedAt = &t
	}
	d.OpenCount++
	return true, nil
}

func (r *MemoryDeliveries) RecordClick(ctx context.Context, token, url string, at time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.deliveries[token]
	if !ok {
		return false, nil
	}
	if d.ClickedAt == nil {
		t := at
		d.ClickedAt = &t
	}
	d.Clicks = append(d.Clicks, model.Click{URL: url, At: at})
	return true, nil
}

func (r *MemoryDeliveries) Aggregate(ctx context.Context, campaignID string) ([]model.DeliveryStats, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	type key struct{ step, variation string }
	groups := map[key]*model.DeliveryStats{}
	for _, d := range r.m.deliveries {
		if d.CampaignID != campaignID {
			continue
		}
		k := key{d.StepID, d.VariationID}
		s, ok := groups[k]
		if !ok {
			s = &model.DeliveryStats{StepID: d.StepID, VariationID: d.VariationID}
			groups[k] = s
		}
		s.Sent++
		if d.OpenedAt != nil {
			s.Opened++
		}
		if d.ClickedAt != nil {
			s.Clicked++
		}
		if d.BouncedAt != nil {
			s.Bounced++
		}
		if d.RepliedAt != nil {
			s.Replied++
		}
		s.TotalOpens += d.OpenCount
		s.TotalClicks += len(d.Clicks)
	}
	stats := make([]model.DeliveryStats, 0, len(groups))
	for _, s := range groups {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].StepID != stats[j].StepID {
			return stats[i].StepID < stats[j].StepID
		}
		return stats[i].VariationID < stats[j].VariationID
	})
	return stats, nil
}

func (r *MemoryDeliveries) TenantTotals(ctx context.Context, tenantID string) (model.DeliveryStats, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var s model.DeliveryStats
	for _, d := range r.m.deliveries {
		if d.TenantID != tenantID {
			continue
		}
		s.Sent++
		if d.OpenedAt != nil {
			s.Opened++
		}
		if d.ClickedAt != nil {
			s.Clicked++
		}
		if d.BouncedAt != nil {
			s.Bounced++
		}
		if d.RepliedAt != nil {
			s.Replied++
		}
		s.TotalOpens += d.OpenCount
		s.TotalClicks += len(d.Clicks)
	}
	return s, nil
}

func (r *MemoryDeliveries) CountSentSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := 0
	for _, d := range r.m.deliveries {
		if d.TenantID == tenantID && !d.SentAt.Before(since) {
			n++
		}
	}
	return n, nil
}

var (
	_ TenantRepositoryInterface         = (*MemoryTenants)(nil)
	_ ContactRepositoryInterface        = (*MemoryContacts)(nil)
	_ CampaignRepositoryInterface       = (*MemoryCampaigns)(nil)
	_ SendingAccountRepositoryInterface = (*MemoryAccounts)(nil)
	_ QueueRepositoryInterface          = (*MemoryQueue)(nil)
	_ DeliveryRepositoryInterface       = (*MemoryDeliveries)(nil)
)
