package service

import (
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// SelectAccount returns the least-loaded active account that still has headroom on day.
// Ties go to the earliest created account, then to pool order. An exhausted pool yields
// ErrNoAccountAvailable, which callers treat as a deferral.
func SelectAccount(pool []*model.SendingAccount, day string) (*model.SendingAccount, error) {
	var best *model.SendingAccount
	for _, a := range pool {
		if a == nil || !a.IsActive || a.SentOn(day) >= a.DailyLimit {
			continue
		}
		if best == nil || lessLoaded(a, best, day) {
			best = a
		}
	}
	if best == nil {
		return nil, appErrors.ErrNoAccountAvailable
	}
	return best, nil
}

func lessLoaded(a, b *model.SendingAccount, day string) bool {
	if a.SentOn(day) != b.SentOn(day) {
		return a.SentOn(day) < b.SentOn(day)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// PoolHeadroom sums the remaining sends of every active account on day.
func PoolHeadroom(pool []*model.SendingAccount, day string) int {
	total := 0
	for _, a := range pool {
		if a != nil && a.IsActive {
			total += a.Headroom(day)
		}
	}
	return total
}

// PoolCapacity is the headroom of a fresh day, the sum of active daily limits.
func PoolCapacity(pool []*model.SendingAccount) int {
	total := 0
	for _, a := range pool {
		if a != nil && a.IsActive && a.DailyLimit > 0 {
			total += a.DailyLimit
		}
	}
	return total
}

// ActiveAccounts counts accounts that can ever send.
func ActiveAccounts(pool []*model.SendingAccount) int {
	n := 0
	for _, a := range pool {
		if a != nil && a.IsActive {
			n++
		}
	}
	return n
}
