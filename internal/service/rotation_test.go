package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

const today = "2026-03-02"

func poolAccount(id string, limit, sent int, usage string, created time.Time) *model.SendingAccount {
	return &model.SendingAccount{ID: id, IsActive: true, DailyLimit: limit, DailySentCount: sent, UsageDate: usage, CreatedAt: created}
}

func TestSelectAccount_LeastLoaded(t *testing.T) {
	pool := []*model.SendingAccount{
		poolAccount("busy", 10, 7, today, testStart.Add(-2*time.Hour)),
		poolAccount("quiet", 10, 2, today, testStart.Add(-time.Hour)),
	}
	a, err := SelectAccount(pool, today)
	require.NoError(t, err)
	assert.Equal(t, "quiet", a.ID)
}

func TestSelectAccount_TieGoesToOldest(t *testing.T) {
	pool := []*model.SendingAccount{
		poolAccount("newer", 10, 3, today, testStart),
		poolAccount("older", 10, 3, today, testStart.Add(-time.Hour)),
	}
	a, err := SelectAccount(pool, today)
	require.NoError(t, err)
	assert.Equal(t, "older", a.ID)
}

func TestSelectAccount_StaleCounterIsZero(t *testing.T) {
	pool := []*model.SendingAccount{
		poolAccount("yesterday-full", 5, 5, "2026-03-01", testStart.Add(-time.Hour)),
		poolAccount("today", 5, 1, today, testStart.Add(-2*time.Hour)),
	}
	a, err := SelectAccount(pool, today)
	require.NoError(t, err)
	assert.Equal(t, "yesterday-full", a.ID)
	assert.Equal(t, 5, a.Headroom(today))
}

func TestSelectAccount_Exhausted(t *testing.T) {
	inactive := poolAccount("off", 10, 0, today, testStart)
	inactive.IsActive = false
	pool := []*model.SendingAccount{
		poolAccount("full", 3, 3, today, testStart),
		inactive,
		nil,
	}
	_, err := SelectAccount(pool, today)
	assert.ErrorIs(t, err, appErrors.ErrNoAccountAvailable)

	_, err = SelectAccount(nil, today)
	assert.ErrorIs(t, err, appErrors.ErrNoAccountAvailable)
}

func TestPoolCapacityAndHeadroom(t *testing.T) {
	inactive := poolAccount("off", 100, 0, today, testStart)
	inactive.IsActive = false
	pool := []*model.SendingAccount{
		poolAccount("a", 10, 4, today, testStart),
		poolAccount("b", 5, 5, "2026-03-01", testStart),
		inactive,
	}
	assert.Equal(t, 15, PoolCapacity(pool))
	assert.Equal(t, 11, PoolHeadroom(pool, today))
	assert.Equal(t, 2, ActiveAccounts(pool))
}
