// Package orchestrate resolves answers for a batch of questions: cache
// first, then a priority-ordered cascade of providers with per-provider
// retries, immediate fallthrough on rate limits, and asynchronous cache
// writeback of fresh answers.
package orchestrate

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/SILVESTRIKE/document-to-quiz/engine/cache"
	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
	"github.com/SILVESTRIKE/document-to-quiz/engine/provider"
	"github.com/SILVESTRIKE/document-to-quiz/pkg/fn"
)

// Options tunes a solve run. Zero values select the defaults.
type Options struct {
	// ChunkSize bounds how many uncached questions go into one prompt.
	ChunkSize int
	// MaxRetries caps attempts per provider per chunk.
	MaxRetries int
}

const (
	defaultChunkSize  = 30
	defaultMaxRetries = 2
)

// Result is the outcome of one SolveQuestions run. Responses is ordered by
// question index and covers cache hits plus provider answers; indices
// missing from it are counted in FailedQuestions.
type Result struct {
	Responses       []provider.Answer
	CacheHits       int
	CacheMisses     int
	ProvidersUsed   []string // consulted sources, de-duplicated, insertion-ordered; "Cache" first when hits occurred
	TotalTokens     int
	FailedQuestions int
	// RateLimited reports that at least one provider refused with a quota
	// signal during the run; the pipeline's postponement rule reads it.
	RateLimited bool
}

// Orchestrator drives the cache and the provider cascade.
type Orchestrator struct {
	cache     *cache.Cache
	providers []provider.Provider
	log       *slog.Logger

	// sleep is swapped out in tests.
	sleep func(context.Context, time.Duration)
}

func New(c *cache.Cache, providers []provider.Provider, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cache:     c,
		providers: provider.ByPriority(providers),
		log:       log.With("component", "orchestrator"),
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// SolveQuestions answers the given questions. It never returns an error;
// questions nothing could answer are reported through FailedQuestions.
func (o *Orchestrator) SolveQuestions(ctx context.Context, questions []provider.Question, opts Options) Result {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}

	var res Result
	var uncached []provider.Question
	for _, q := range questions {
		ans, found := o.cache.Lookup(ctx, q.Stem, q.Choices)
		if !found {
			uncached = append(uncached, q)
			continue
		}
		res.CacheHits++
		res.Responses = append(res.Responses, provider.Answer{
			Index:       q.Index,
			CorrectKey:  ans.CorrectKey,
			Explanation: ans.Explanation,
			Confidence:  ans.Confidence,
		})
	}
	res.CacheMisses = len(uncached)
	if res.CacheHits > 0 {
		res.ProvidersUsed = append(res.ProvidersUsed, "Cache")
	}

	for _, chunk := range fn.Chunk(uncached, opts.ChunkSize) {
		remaining := o.solveChunk(ctx, chunk, opts, &res)
		res.FailedQuestions += len(remaining)
	}

	sort.Slice(res.Responses, func(i, j int) bool { return res.Responses[i].Index < res.Responses[j].Index })
	res.ProvidersUsed = fn.Unique(res.ProvidersUsed)
	return res
}

// solveChunk runs one chunk through the provider cascade and returns the
// questions still unanswered.
func (o *Orchestrator) solveChunk(ctx context.Context, chunk []provider.Question, opts Options, res *Result) []provider.Question {
	remaining := chunk

	for _, p := range o.providers {
		if len(remaining) == 0 {
			return nil
		}
		if !p.Available() {
			continue
		}
		// A provider that signalled quota exhaustion earlier in the run is
		// skipped until its reset time instead of being sent another call.
		if limit := p.RateLimit(); limit.Remaining == 0 && time.Now().Before(limit.ResetAt) {
			res.RateLimited = true
			res.ProvidersUsed = append(res.ProvidersUsed, p.Name())
			o.log.Warn("provider still rate limited, skipping",
				"provider", p.Name(), "reset_at", limit.ResetAt)
			continue
		}
		res.ProvidersUsed = append(res.ProvidersUsed, p.Name())

		for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
			batch, err := p.SolveBatch(ctx, remaining)
			res.TotalTokens += batch.TokensUsed

			if batch.QuestionsAnswered > 0 {
				res.Responses = append(res.Responses, batch.Responses...)
				o.writeback(remaining, batch.Responses, p.Name())
				remaining = dropAnswered(remaining, batch.Responses)
				break
			}

			if p.RateLimit().Remaining == 0 {
				res.RateLimited = true
				o.log.Warn("provider rate limited, falling through",
					"provider", p.Name(), "reset_at", p.RateLimit().ResetAt)
				break
			}
			if err != nil {
				o.log.Warn("provider batch failed", "provider", p.Name(), "attempt", attempt, "error", err)
			}
			if attempt < opts.MaxRetries {
				o.sleep(ctx, time.Duration(attempt)*time.Second)
			}
		}
	}
	return remaining
}

// writeback upserts fresh provider answers into the cache without blocking
// the solve loop.
func (o *Orchestrator) writeback(questions []provider.Question, answers []provider.Answer, providerName string) {
	byIndex := make(map[int]provider.Question, len(questions))
	for _, q := range questions {
		byIndex[q.Index] = q
	}
	var entries []domain.CachedAnswer
	for _, a := range answers {
		q, ok := byIndex[a.Index]
		if !ok {
			continue
		}
		entries = append(entries, cache.Entry(q.Stem, q.Choices, a.CorrectKey, a.Explanation, providerName, a.Confidence))
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		o.cache.Writeback(ctx, entries)
	}()
}

func dropAnswered(questions []provider.Question, answers []provider.Answer) []provider.Question {
	answered := make(map[int]struct{}, len(answers))
	for _, a := range answers {
		answered[a.Index] = struct{}{}
	}
	return fn.Filter(questions, func(q provider.Question) bool {
		_, ok := answered[q.Index]
		return !ok
	})
}
