package service

import (
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// RetryPolicy is exponential backoff with a ceiling.
type RetryPolicy struct {
	Base time.Duration
	Cap  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: 300 * time.Second, Cap: time.Hour}
}

// RetryDecision is the next state of an item after a failed attempt.
type RetryDecision struct {
	Attempts    int
	Status      model.QueueStatus
	ScheduledAt time.Time
}

func (d RetryDecision) Terminal() bool { return d.Status == model.QueueFailed }

// Next counts the failed attempt. Once the new count reaches maxAttempts the item is failed,
// otherwise it is rescheduled min(Base*2^attempts, Cap) after now.
func (p RetryPolicy) Next(attempts, maxAttempts int, now time.Time) RetryDecision {
	if maxAttempts <= 0 {
		maxAttempts = model.DefaultMaxAttempts
	}
	newAttempts := attempts + 1
	if newAttempts >= maxAttempts {
		return RetryDecision{Attempts: newAttempts, Status: model.QueueFailed}
	}
	return RetryDecision{
		Attempts:    newAttempts,
		Status:      model.QueuePending,
		ScheduledAt: now.Add(p.Backoff(newAttempts)),
	}
}

func (p RetryPolicy) Backoff(attempts int) time.Duration {
	delay := p.Base
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= p.Cap {
			return p.Cap
		}
	}
	if delay > p.Cap {
		return p.Cap
	}
	return delay
}
