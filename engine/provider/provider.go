// Package provider contains the language-model adapters that answer
// batches of multiple-choice questions. Adapters share key rotation,
// rate-limit bookkeeping, prompt construction with injection filtering,
// and tolerant JSON response decoding; the vendor-specific part of each
// adapter is only its request body and response envelope.
package provider

import (
	"context"
	"sort"
	"time"

	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
)

// Question is one question submitted to a provider. Index is the 1-based
// document order and is how answers are matched back.
type Question struct {
	Index   int
	Stem    string
	Choices []domain.Choice
	Section string
}

// Answer is a provider's answer for one question index.
type Answer struct {
	Index       int
	CorrectKey  string
	Explanation string
	Confidence  float64
}

// BatchResult is the outcome of one SolveBatch call.
type BatchResult struct {
	Responses         []Answer
	Provider          string
	TokensUsed        int
	Duration          time.Duration
	QuestionsAnswered int
	QuestionsFailed   int
}

// RateLimitStatus reports the adapter's last observed quota state.
// Remaining == 0 means the provider signalled exhaustion; ResetAt is when
// the adapter expects the quota back.
type RateLimitStatus struct {
	Remaining int
	ResetAt   time.Time
}

// Provider is a single answer backend. Priority orders the fallback
// cascade (lower runs earlier). Available reports configuration presence,
// not quota; quota is exposed separately through RateLimit so the caller
// decides when to skip.
type Provider interface {
	Name() string
	Priority() int
	Available() bool
	RateLimit() RateLimitStatus
	SolveBatch(ctx context.Context, questions []Question) (BatchResult, error)
}

// ByPriority returns providers sorted by ascending priority, stable for
// equal priorities.
func ByPriority(providers []Provider) []Provider {
	out := make([]Provider, len(providers))
	copy(out, providers)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority() < out[j].Priority() })
	return out
}

func failedResult(name string, n int, start time.Time) BatchResult {
	return BatchResult{
		Provider:        name,
		Duration:        time.Since(start),
		QuestionsFailed: n,
	}
}
