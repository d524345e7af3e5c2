package provider

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// limitState is per-adapter rate-limit bookkeeping. It is written only
// from within that adapter's calls and read by the orchestrator to decide
// when to fall through.
type limitState struct {
	mu        sync.Mutex
	remaining int
	resetAt   time.Time
}

func newLimitState() *limitState {
	return &limitState{remaining: 1}
}

// recordLimited marks the quota exhausted until now + retryAfter.
func (s *limitState) recordLimited(retryAfter time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remaining = 0
	s.resetAt = time.Now().Add(retryAfter)
}

// recordOK restores the quota after a successful call.
func (s *limitState) recordOK() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remaining = 1
	s.resetAt = time.Time{}
}

func (s *limitState) status() RateLimitStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RateLimitStatus{Remaining: s.remaining, ResetAt: s.resetAt}
}

// retryAfterHeader parses a Retry-After response header as delay seconds,
// falling back to def when absent or malformed.
func retryAfterHeader(h http.Header, def time.Duration) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return def
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}
