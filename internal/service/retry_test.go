package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/outreach-backend/internal/model"
)

func TestRetryPolicy_Next(t *testing.T) {
	p := RetryPolicy{Base: 300 * time.Second, Cap: time.Hour}

	d := p.Next(0, 3, testStart)
	assert.False(t, d.Terminal())
	assert.Equal(t, 1, d.Attempts)
	assert.Equal(t, model.QueuePending, d.Status)
	assert.Equal(t, testStart.Add(600*time.Second), d.ScheduledAt)

	d = p.Next(1, 3, testStart)
	assert.False(t, d.Terminal())
	assert.Equal(t, 2, d.Attempts)
	assert.Equal(t, testStart.Add(1200*time.Second), d.ScheduledAt)

	d = p.Next(2, 3, testStart)
	assert.True(t, d.Terminal())
	assert.Equal(t, 3, d.Attempts)
	assert.True(t, d.ScheduledAt.IsZero())
}

func TestRetryPolicy_DefaultMaxAttempts(t *testing.T) {
	d := DefaultRetryPolicy().Next(model.DefaultMaxAttempts-1, 0, testStart)
	assert.True(t, d.Terminal())
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{Base: 300 * time.Second, Cap: time.Hour}
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 300 * time.Second},
		{1, 600 * time.Second},
		{2, 1200 * time.Second},
		{3, 2400 * time.Second},
		{4, time.Hour},
		{40, time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.attempts), "attempts=%d", tt.attempts)
	}
}
