package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
)

type TenantRepositoryInterface interface {
	Create(ctx context.Context, t *model.Tenant) error
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
	UpdatePlan(ctx context.Context, id string, plan model.PlanName) error
}

// ContactFilter narrows contact listings. Tags match when a contact has any of them.
type ContactFilter struct {
	Search string
	Tags   []string
	Offset int
	Limit  int
}

type ContactRepositoryInterface interface {
	Create(ctx context.Context, c *model.Contact) error
	Update(ctx context.Context, c *model.Contact) error
	Delete(ctx context.Context, tenantID, id string) error
	GetByID(ctx context.Context, tenantID, id string) (*model.Contact, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*model.Contact, error)
	List(ctx context.Context, tenantID string, f ContactFilter) ([]*model.Contact, int, error)
	ListByIDs(ctx context.Context, tenantID string, ids []string) ([]*model.Contact, error)
	Count(ctx context.Context, tenantID string) (int, error)
	CountCreatedSince(ctx context.Context, tenantID string, since time.Time) (int, error)
}

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	Update(ctx context.Context, c *model.Campaign) error
	UpdateStatus(ctx context.Context, campaignID string, status model.CampaignStatus) error
	GetByID(ctx context.Context, tenantID, id string) (*model.Campaign, error)
	List(ctx context.Context, tenantID string, offset, limit int, status string) ([]*model.Campaign, int, error)
	// Delete removes the campaign together with its queue items and delivery records.
	Delete(ctx context.Context, tenantID, id string) error
	Count(ctx context.Context, tenantID string) (int, error)
	CountByStatus(ctx context.Context, tenantID string) (map[model.CampaignStatus]int, error)
}

type SendingAccountRepositoryInterface interface {
	Create(ctx context.Context, a *model.SendingAccount) error
	// Update writes configuration fields only; counters change through the methods below.
	Update(ctx context.Context, a *model.SendingAccount) error
	Delete(ctx context.Context, tenantID, id string) error
	GetByID(ctx context.Context, tenantID, id string) (*model.SendingAccount, error)
	List(ctx context.Context, tenantID string) ([]*model.SendingAccount, error)
	Count(ctx context.Context, tenantID string) (int, error)

	// IncrementSent atomically counts one send against day. It reports false, without
	// changing anything, when the account is inactive or already at its daily limit.
	IncrementSent(ctx context.Context, id, day string) (bool, error)
	// RecordFailure bumps the consecutive failure streak and deactivates the account once
	// the streak reaches threshold (threshold <= 0 disables deactivation).
	RecordFailure(ctx context.Context, id, message string, threshold int) (deactivated bool, err error)
	ResetFailures(ctx context.Context, id string) error
	// ResetDailyCounts zeroes every counter that does not belong to day.
	ResetDailyCounts(ctx context.Context, day string) (int64, error)
}

type QueueRepositoryInterface interface {
	// CreateBatch is all or nothing. An item whose (campaign, contact, step) is already queued
	// fails the batch with a Conflict error.
	CreateBatch(ctx context.Context, items []*model.QueueItem) error
	// Keys lists the (contact, step) pairs the campaign already has items for.
	Keys(ctx context.Context, campaignID string) (map[model.QueueKey]bool, error)
	GetByID(ctx context.Context, id string) (*model.QueueItem, error)
	// ListDue returns pending items with scheduled_at <= now and attempts left whose campaign
	// is scheduled or sending, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.QueueItem, error)
	ListByCampaign(ctx context.Context, campaignID, status string, offset, limit int) ([]*model.QueueItem, int, error)
	CountByStatus(ctx context.Context, campaignID string) (map[model.QueueStatus]int, error)

	// The Mark* methods only touch items that are still pending.
	MarkSent(ctx context.Context, id, accountID string, sentAt time.Time) (bool, error)
	MarkRetry(ctx context.Context, id string, attempts int, next time.Time, message string) error
	MarkFailed(ctx context.Context, id string, attempts int, message string) error
	// Defer reschedules without consuming an attempt.
	Defer(ctx context.Context, id string, next time.Time, message string) error
}

type DeliveryRepositoryInterface interface {
	Create(ctx context.Context, r *model.DeliveryRecord) error
	GetByToken(ctx context.Context, token string) (*model.DeliveryRecord, error)
	MarkOpened(ctx context.Context, token string, at time.Time) (bool, error)
	RecordClick(ctx context.Context, token, url string, at time.Time) (bool, error)
	// Aggregate groups the campaign's deliveries by step and variation.
	Aggregate(ctx context.Context, campaignID string) ([]model.DeliveryStats, error)
	TenantTotals(ctx context.Context, tenantID string) (model.DeliveryStats, error)
	CountSentSince(ctx context.Context, tenantID string, since time.Time) (int, error)
}

// Store bundles the repositories a process works with.
type Store struct {
	Tenants    TenantRepositoryInterface
	Contacts   ContactRepositoryInterface
	Campaigns  CampaignRepositoryInterface
	Accounts   SendingAccountRepositoryInterface
	Queue      QueueRepositoryInterface
	Deliveries DeliveryRepositoryInterface
}

func NewPostgresStore(db *sql.DB) *Store {
	return &Store{
		Tenants:    &TenantRepository{DB: db},
		Contacts:   &ContactRepository{DB: db},
		Campaigns:  &CampaignRepository{DB: db},
		Accounts:   &SendingAccountRepository{DB: db},
		Queue:      &QueueRepository{DB: db},
		Deliveries: &DeliveryRepository{DB: db},
	}
}

func NewMemoryStore() *Store {
	m := NewMemory()
	return &Store{
		Tenants:    m.Tenants(),
		Contacts:   m.Contacts(),
		Campaigns:  m.Campaigns(),
		Accounts:   m.Accounts(),
		Queue:      m.Queue(),
		Deliveries: m.Deliveries(),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}
