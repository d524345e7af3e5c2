package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
	"github.com/SILVESTRIKE/document-to-quiz/pkg/resilience"
)

// Store is the cache backend. Get returns domain.ErrAnswerNotCached when
// the key is absent; a hit atomically bumps hitCount and lastHitAt. Put
// upserts entries with set-on-insert semantics for CorrectKey, Explanation,
// Confidence and Provider, so a later write never overwrites the first
// authoritative answer.
type Store interface {
	Get(ctx context.Context, stemHash, choicesHash string) (domain.CachedAnswer, error)
	Put(ctx context.Context, entries []domain.CachedAnswer) error
}

// Cache wraps a Store with best-effort semantics behind a circuit breaker.
// A tripped breaker or a backend error turns lookups into misses and drops
// writes with a warning; processing never fails on cache trouble.
type Cache struct {
	store   Store
	breaker *resilience.Breaker
	log     *slog.Logger
}

func New(store Store, log *slog.Logger) *Cache {
	return &Cache{
		store:   store,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		log:     log.With("component", "cache"),
	}
}

// Lookup fetches the cached answer for a question, returning found=false on
// a miss or on any backend failure.
func (c *Cache) Lookup(ctx context.Context, stem string, choices []domain.Choice) (domain.CachedAnswer, bool) {
	stemHash, choicesHash := Keys(stem, choices)

	var ans domain.CachedAnswer
	var missed bool
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		got, err := c.store.Get(ctx, stemHash, choicesHash)
		if errors.Is(err, domain.ErrAnswerNotCached) {
			missed = true
			return nil
		}
		if err != nil {
			return err
		}
		ans = got
		return nil
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.log.Warn("cache lookup failed, treating as miss", "error", err)
		}
		return domain.CachedAnswer{}, false
	}
	if missed {
		return domain.CachedAnswer{}, false
	}
	return ans, true
}

// Writeback upserts freshly answered entries. Failures are logged and
// swallowed.
func (c *Cache) Writeback(ctx context.Context, entries []domain.CachedAnswer) {
	if len(entries) == 0 {
		return
	}
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		return c.store.Put(ctx, entries)
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.log.Warn("cache writeback failed", "entries", len(entries), "error", err)
		}
		return
	}
	c.log.Debug("cache writeback", "entries", len(entries))
}

// Entry builds a CachedAnswer for writeback from an answered question.
func Entry(stem string, choices []domain.Choice, correctKey, explanation, provider string, confidence float64) domain.CachedAnswer {
	stemHash, choicesHash := Keys(stem, choices)
	return domain.CachedAnswer{
		StemHash:    stemHash,
		ChoicesHash: choicesHash,
		CorrectKey:  correctKey,
		Explanation: explanation,
		Confidence:  confidence,
		Provider:    provider,
		HitCount:    0,
		LastHitAt:   time.Now().UTC(),
	}
}
