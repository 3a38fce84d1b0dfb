package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/logger"
)

func TestInMemoryQueue_DeliversJSON(t *testing.T) {
	q := NewInMemoryQueue(logger.Nop())
	got := make(chan DispatchTrigger, 1)
	require.NoError(t, q.Subscribe(TopicCampaignDispatch, func(ctx context.Context, body []byte) error {
		var trig DispatchTrigger
		if err := json.Unmarshal(body, &trig); err != nil {
			return err
		}
		got <- trig
		return nil
	}))

	require.NoError(t, q.Publish(context.Background(), TopicCampaignDispatch, DispatchTrigger{CampaignID: "c1", Reason: "start"}))

	select {
	case trig := <-got:
		assert.Equal(t, "c1", trig.CampaignID)
		assert.Equal(t, "start", trig.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("trigger not delivered")
	}
	require.NoError(t, q.Close())
}

func TestInMemoryQueue_RetriesThenGivesUp(t *testing.T) {
	q := NewInMemoryQueue(logger.Nop())
	q.backoff = time.Millisecond
	var calls int32
	require.NoError(t, q.Subscribe("t", func(ctx context.Context, body []byte) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("nope")
	}))

	require.NoError(t, q.Publish(context.Background(), "t", "x"))
	require.NoError(t, q.Close())
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls), "first try plus three retries")
}

func TestInMemoryQueue_NoSubscribers(t *testing.T) {
	q := NewInMemoryQueue(logger.Nop())
	err := q.Publish(context.Background(), "nobody", 1)
	require.Error(t, err)
}
