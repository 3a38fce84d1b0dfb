package repository_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/db"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("skipping integration test: DATABASE_URL not set")
	}
	ctx := context.Background()
	conn, err := db.Open(ctx, os.Getenv("DATABASE_URL"), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Reset(ctx, conn, logger.Nop()))
	return conn
}

func TestPostgresStore_SendingLifecycle(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	store := repository.NewPostgresStore(conn)

	tenantID := uuid.NewString()
	require.NoError(t, store.Tenants.Create(ctx, &model.Tenant{ID: tenantID, Name: "Acme"}))

	contact := &model.Contact{ID: uuid.NewString(), TenantID: tenantID, FirstName: "Jane", Email: "Jane@Example.com", Tags: []string{"vip"}}
	require.NoError(t, store.Contacts.Create(ctx, contact))
	err := store.Contacts.Create(ctx, &model.Contact{ID: uuid.NewString(), TenantID: tenantID, Email: "jane@example.com"})
	require.Error(t, err, "duplicate email must be rejected")

	account := &model.SendingAccount{ID: uuid.NewString(), TenantID: tenantID, Name: "main", Provider: model.ProviderSMTP,
		FromEmail: "me@acme.io", IsActive: true, DailyLimit: 1}
	require.NoError(t, store.Accounts.Create(ctx, account))

	campaign := &model.Campaign{
		ID: uuid.NewString(), TenantID: tenantID, Name: "Launch", Status: model.CampaignScheduled,
		ContactIDs: []string{contact.ID}, DailyLimit: 50,
		Steps: []model.Step{{ID: "s1", SequenceOrder: 1, Variations: []model.Variation{{ID: "v1", Subject: "Hi", Content: "Hello", Weight: 1}}}},
	}
	require.NoError(t, store.Campaigns.Create(ctx, campaign))

	got, err := store.Campaigns.GetByID(ctx, tenantID, campaign.ID)
	require.NoError(t, err)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "v1", got.Steps[0].Variations[0].ID)

	now := time.Now().UTC().Truncate(time.Second)
	item := &model.QueueItem{ID: uuid.NewString(), TenantID: tenantID, CampaignID: campaign.ID, StepID: "s1",
		VariationID: "v1", ContactID: contact.ID, ScheduledAt: now.Add(-time.Minute)}
	require.NoError(t, store.Queue.CreateBatch(ctx, []*model.QueueItem{item}))

	dup := *item
	dup.ID = uuid.NewString()
	err = store.Queue.CreateBatch(ctx, []*model.QueueItem{&dup})
	var conflict *appErrors.ConflictError
	require.ErrorAs(t, err, &conflict)
	keys, err := store.Queue.Keys(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, map[model.QueueKey]bool{{ContactID: contact.ID, StepID: "s1"}: true}, keys)

	due, err := store.Queue.ListDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, item.ID, due[0].ID)

	day := model.UsageDay(now)
	ok, err := store.Accounts.IncrementSent(ctx, account.ID, day)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Accounts.IncrementSent(ctx, account.ID, day)
	require.NoError(t, err)
	assert.False(t, ok, "daily limit of one already used")

	sent, err := store.Queue.MarkSent(ctx, item.ID, account.ID, now)
	require.NoError(t, err)
	assert.True(t, sent)
	sent, err = store.Queue.MarkSent(ctx, item.ID, account.ID, now)
	require.NoError(t, err)
	assert.False(t, sent)

	token := uuid.NewString()
	require.NoError(t, store.Deliveries.Create(ctx, &model.DeliveryRecord{
		ID: uuid.NewString(), TenantID: tenantID, QueueItemID: item.ID, CampaignID: campaign.ID, StepID: "s1",
		VariationID: "v1", ContactID: contact.ID, SendingAccountID: account.ID, TrackingToken: token, SentAt: now,
	}))
	_, err = store.Deliveries.MarkOpened(ctx, token, now)
	require.NoError(t, err)
	_, err = store.Deliveries.RecordClick(ctx, token, "https://acme.io", now)
	require.NoError(t, err)

	stats, err := store.Deliveries.Aggregate(ctx, campaign.ID)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Sent)
	assert.Equal(t, 1, stats[0].Opened)
	assert.Equal(t, 1, stats[0].TotalClicks)

	require.NoError(t, store.Campaigns.Delete(ctx, tenantID, campaign.ID))
	gone, err := store.Queue.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
