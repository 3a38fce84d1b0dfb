package ratelimit

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/outreach-backend/internal/metrics"
)

// Policy is a fixed-window limit: at most Limit requests per Window for each key.
type Policy struct {
	// Name identifies the limited route group in logs and metrics (e.g. "tracking").
	Name   string
	Window time.Duration
	Limit  int
	// Key builds the bucket key for a request. Defaults to the client IP.
	Key func(*http.Request) string
}

// Store is a shared fixed-window counter.
type Store interface {
	// Allow counts one request against key and reports whether it fits the window.
	// When it does not, retryAfter is the time until the window resets.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error)
}

// Middleware enforces p using s. Store errors fail open.
func Middleware(p Policy, s Store, log zerolog.Logger) func(http.Handler) http.Handler {
	if p.Window <= 0 {
		p.Window = time.Minute
	}
	if p.Limit <= 0 {
		p.Limit = 60
	}
	if p.Key == nil {
		p.Key = KeyIP(p.Name)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := p.Key(r)
			allowed, retryAfter, err := s.Allow(r.Context(), key, p.Limit, p.Window)
			if err != nil {
				log.Warn().Err(err).Str("policy", p.Name).Msg("rate limit store unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			metrics.IncRateLimited(p.Name)
			secs := int((retryAfter + time.Second - 1) / time.Second)
			log.Warn().Str("policy", p.Name).Str("key", key).Int("limit", p.Limit).Int("retry_after", secs).
				Msg("rate limit exceeded")
			if secs > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
		})
	}
}

// KeyIP buckets by client address. chi's RealIP middleware, when installed, has already
// rewritten RemoteAddr from X-Forwarded-For.
func KeyIP(prefix string) func(*http.Request) string {
	return func(r *http.Request) string {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		return prefix + ":ip:" + strings.TrimSpace(host)
	}
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	start time.Time
	count int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: map[string]*bucket{}, now: time.Now}
}

func (s *MemoryStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || now.Sub(b.start) >= window {
		s.buckets[key] = &bucket{start: now, count: 1}
		s.sweep(now, window)
		return true, 0, nil
	}
	if b.count < limit {
		b.count++
		return true, 0, nil
	}
	return false, window - now.Sub(b.start), nil
}

// sweep drops expired buckets once the map grows.
func (s *MemoryStore) sweep(now time.Time, window time.Duration) {
	if len(s.buckets) < 10000 {
		return
	}
	for k, b := range s.buckets {
		if now.Sub(b.start) >= window {
			delete(s.buckets, k)
		}
	}
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
