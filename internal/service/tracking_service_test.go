package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

func TestInstrument(t *testing.T) {
	html := `<html><body><a href="https://acme.io/a?b=1">A</a> <a href='http://x.io'>X</a> <a href="mailto:me@x.io">m</a></body></html>`

	out := Instrument(html, "https://t.example.com/", "tok", true, true)
	assert.Contains(t, out, `href="https://t.example.com/track/click/tok?url=https%3A%2F%2Facme.io%2Fa%3Fb%3D1"`)
	assert.Contains(t, out, `href='https://t.example.com/track/click/tok?url=http%3A%2F%2Fx.io'`)
	assert.Contains(t, out, `href="mailto:me@x.io"`)
	assert.Contains(t, out, `<img src="https://t.example.com/track/pixel/tok" width="1" height="1" alt="" style="display:none" /></body>`)

	opensOnly := Instrument(html, "https://t.example.com", "tok", true, false)
	assert.Contains(t, opensOnly, `href="https://acme.io/a?b=1"`)
	assert.Contains(t, opensOnly, "/track/pixel/tok")

	assert.Equal(t, html, Instrument(html, "https://t.example.com", "tok", false, false))
}

func TestInstrument_WithoutBodyAppendsPixel(t *testing.T) {
	out := Instrument("<p>Hello</p>", "https://t.example.com", "tok", true, true)
	assert.Equal(t, `<p>Hello</p><img src="https://t.example.com/track/pixel/tok" width="1" height="1" alt="" style="display:none" />`, out)
}

func TestInstrument_PlainTextUntouched(t *testing.T) {
	text := "Hi Ana,\nsee https://acme.io\n"
	assert.Equal(t, text, Instrument(text, "https://t.example.com", "tok", true, true))
}

func TestValidateRedirect(t *testing.T) {
	got, err := ValidateRedirect(" https://acme.io/pricing?x=1 ")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.io/pricing?x=1", got)

	for _, raw := range []string{"", "javascript:alert(1)", "/relative", "ftp://files.io/x", "https://"} {
		_, err := ValidateRedirect(raw)
		assert.True(t, appErrors.IsValidation(err), raw)
	}
}

func TestTrackingService_RecordsEvents(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	clock := &testClock{t: testStart}
	svc := &TrackingService{Deliveries: store.Deliveries, Clock: clock, Log: logger.Nop()}
	require.NoError(t, store.Deliveries.Create(ctx, &model.DeliveryRecord{
		ID: "d1", TenantID: "t", CampaignID: "c", TrackingToken: "tok", SentAt: testStart,
	}))

	require.NoError(t, svc.RecordOpen(ctx, "tok"))
	clock.Advance(time.Minute)
	require.NoError(t, svc.RecordOpen(ctx, "tok"))

	target, err := svc.RecordClick(ctx, "tok", "https://acme.io/pricing")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.io/pricing", target)

	d, err := store.Deliveries.GetByToken(ctx, "tok")
	require.NoError(t, err)
	require.NotNil(t, d.OpenedAt)
	assert.Equal(t, testStart, *d.OpenedAt)
	assert.Equal(t, 2, d.OpenCount)
	require.Len(t, d.Clicks, 1)
	assert.Equal(t, "https://acme.io/pricing", d.Clicks[0].URL)

	// opens for unknown tokens are ignored, clicks are refused
	require.NoError(t, svc.RecordOpen(ctx, "nope"))
	target, err = svc.RecordClick(ctx, "nope", "https://evil.example/login")
	assert.True(t, appErrors.IsNotFound(err))
	assert.Empty(t, target)

	_, err = svc.RecordClick(ctx, "tok", "javascript:alert(1)")
	assert.True(t, appErrors.IsValidation(err))
}
