package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TopicCampaignDispatch carries "run a dequeue cycle now" triggers from the API to the worker.
const TopicCampaignDispatch = "campaign_dispatch"

// DispatchTrigger is published when a campaign starts or resumes.
type DispatchTrigger struct {
	TenantID   string    `json:"tenant_id"`
	CampaignID string    `json:"campaign_id"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}

// Handler receives the JSON body of a published message.
type Handler func(ctx context.Context, body []byte) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// InMemoryQueue delivers to in-process subscribers with retry.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]Handler
	log        zerolog.Logger
	maxRetries int
	backoff    time.Duration
	wg         sync.WaitGroup
}

func NewInMemoryQueue(log zerolog.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		log:        log.With().Str("component", "memqueue").Logger(),
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
	}
}

type job struct {
	topic      string
	body       []byte
	retryCount int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	q.mu.Lock()
	handlers := append([]Handler(nil), q.handlers[topic]...)
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}
	for _, h := range handlers {
		q.wg.Add(1)
		go q.process(h, job{topic: topic, body: body})
	}
	return nil
}

// process retries with a linear backoff and drops the job once retries run out.
func (q *InMemoryQueue) process(h Handler, j job) {
	defer q.wg.Done()
	for {
		err := h(context.Background(), j.body)
		if err == nil {
			return
		}
		j.retryCount++
		if j.retryCount > q.maxRetries {
			q.log.Error().Err(err).Str("topic", j.topic).Int("attempts", j.retryCount).Msg("job permanently failed")
			return
		}
		q.log.Warn().Err(err).Str("topic", j.topic).Int("attempt", j.retryCount).Msg("job failed, retrying")
		time.Sleep(time.Duration(j.retryCount) * q.backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close waits for in-flight jobs.
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
