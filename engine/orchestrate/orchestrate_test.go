package orchestrate

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/SILVESTRIKE/document-to-quiz/engine/cache"
	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
	"github.com/SILVESTRIKE/document-to-quiz/engine/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider scripts SolveBatch outcomes per call.
type fakeProvider struct {
	name     string
	priority int
	keys     int
	// script entries are consumed one per SolveBatch call; the last entry
	// repeats once the script is exhausted.
	script []scriptStep
	calls  int
	asked  [][]int // question indices per call
	limit  provider.RateLimitStatus
}

type scriptStep struct {
	answers   map[int]string
	tokens    int
	rateLimit bool
	err       error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Priority() int { return f.priority }

func (f *fakeProvider) Available() bool { return f.keys > 0 }

func (f *fakeProvider) RateLimit() provider.RateLimitStatus { return f.limit }

func (f *fakeProvider) SolveBatch(ctx context.Context, questions []provider.Question) (provider.BatchResult, error) {
	step := f.script[min(f.calls, len(f.script)-1)]
	f.calls++

	var indices []int
	for _, q := range questions {
		indices = append(indices, q.Index)
	}
	f.asked = append(f.asked, indices)

	if step.rateLimit {
		f.limit = provider.RateLimitStatus{Remaining: 0, ResetAt: time.Now().Add(30 * time.Second)}
		return provider.BatchResult{Provider: f.name, QuestionsFailed: len(questions)}, provider.ErrRateLimited
	}
	if step.err != nil {
		return provider.BatchResult{Provider: f.name, QuestionsFailed: len(questions)}, step.err
	}

	f.limit = provider.RateLimitStatus{Remaining: 1}
	var answers []provider.Answer
	for _, q := range questions {
		if key, ok := step.answers[q.Index]; ok {
			answers = append(answers, provider.Answer{Index: q.Index, CorrectKey: key})
		}
	}
	return provider.BatchResult{
		Responses:         answers,
		Provider:          f.name,
		TokensUsed:        step.tokens,
		QuestionsAnswered: len(answers),
		QuestionsFailed:   len(questions) - len(answers),
	}, nil
}

func questionN(n int) provider.Question {
	return provider.Question{
		Index: n,
		Stem:  "question " + string(rune('0'+n)),
		Choices: []domain.Choice{
			{Key: "A", Text: "first"}, {Key: "B", Text: "second"},
			{Key: "C", Text: "third"}, {Key: "D", Text: "fourth"},
		},
	}
}

func newOrchestrator(store cache.Store, providers ...provider.Provider) *Orchestrator {
	o := New(cache.New(store, testLogger()), providers, testLogger())
	o.sleep = func(context.Context, time.Duration) {}
	return o
}

func waitForEntries(t *testing.T, store *cache.MemoryStore, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for store.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("cache has %d entries, want %d", store.Len(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSolveQuestions_PureCacheHit(t *testing.T) {
	store := cache.NewMemoryStore()
	q := provider.Question{
		Index: 1,
		Stem:  "What is 2+2?",
		Choices: []domain.Choice{
			{Key: "A", Text: "3"}, {Key: "B", Text: "4"}, {Key: "C", Text: "5"}, {Key: "D", Text: "6"},
		},
	}
	store.Put(context.Background(), []domain.CachedAnswer{cache.Entry(q.Stem, q.Choices, "B", "", "Gemini", 0)})

	prov := &fakeProvider{name: "Primary", priority: 1, keys: 1, script: []scriptStep{{}}}
	o := newOrchestrator(store, prov)

	res := o.SolveQuestions(context.Background(), []provider.Question{q}, Options{})
	if prov.calls != 0 {
		t.Errorf("provider called %d times, want 0", prov.calls)
	}
	if !reflect.DeepEqual(res.ProvidersUsed, []string{"Cache"}) {
		t.Errorf("providersUsed = %v", res.ProvidersUsed)
	}
	if res.CacheHits != 1 || res.CacheMisses != 0 || res.TotalTokens != 0 {
		t.Errorf("hits=%d misses=%d tokens=%d", res.CacheHits, res.CacheMisses, res.TotalTokens)
	}
	if len(res.Responses) != 1 || res.Responses[0].CorrectKey != "B" {
		t.Errorf("responses = %+v", res.Responses)
	}
}

func TestSolveQuestions_PrimaryAnswersAll(t *testing.T) {
	store := cache.NewMemoryStore()
	prov := &fakeProvider{name: "Primary", priority: 1, keys: 1, script: []scriptStep{
		{answers: map[int]string{1: "A", 2: "C", 3: "B"}, tokens: 42},
	}}
	o := newOrchestrator(store, prov)

	qs := []provider.Question{questionN(1), questionN(2), questionN(3)}
	res := o.SolveQuestions(context.Background(), qs, Options{})

	if !reflect.DeepEqual(res.ProvidersUsed, []string{"Primary"}) {
		t.Errorf("providersUsed = %v", res.ProvidersUsed)
	}
	if res.FailedQuestions != 0 || res.TotalTokens != 42 {
		t.Errorf("failed=%d tokens=%d", res.FailedQuestions, res.TotalTokens)
	}
	keys := []string{res.Responses[0].CorrectKey, res.Responses[1].CorrectKey, res.Responses[2].CorrectKey}
	if !reflect.DeepEqual(keys, []string{"A", "C", "B"}) {
		t.Errorf("keys = %v", keys)
	}

	// Writeback is async; all three must land tagged with the provider.
	waitForEntries(t, store, 3)
	stemHash, choicesHash := cache.Keys(qs[0].Stem, qs[0].Choices)
	ans, err := store.Get(context.Background(), stemHash, choicesHash)
	if err != nil {
		t.Fatal(err)
	}
	if ans.Provider != "Primary" || ans.CorrectKey != "A" {
		t.Errorf("cached entry = %+v", ans)
	}
}

func TestSolveQuestions_RateLimitedFallsThrough(t *testing.T) {
	primary := &fakeProvider{name: "Primary", priority: 1, keys: 1, script: []scriptStep{{rateLimit: true}}}
	secondary := &fakeProvider{name: "Secondary", priority: 2, keys: 1, script: []scriptStep{
		{answers: map[int]string{1: "D", 2: "D"}},
	}}
	o := newOrchestrator(cache.NewMemoryStore(), primary, secondary)

	res := o.SolveQuestions(context.Background(), []provider.Question{questionN(1), questionN(2)}, Options{})

	if primary.calls != 1 {
		t.Errorf("primary called %d times, want 1 (no retry after quota exhaustion)", primary.calls)
	}
	if !reflect.DeepEqual(res.ProvidersUsed, []string{"Primary", "Secondary"}) {
		t.Errorf("providersUsed = %v", res.ProvidersUsed)
	}
	if !res.RateLimited {
		t.Error("RateLimited not reported")
	}
	keys := []string{res.Responses[0].CorrectKey, res.Responses[1].CorrectKey}
	if !reflect.DeepEqual(keys, []string{"D", "D"}) {
		t.Errorf("keys = %v", keys)
	}
}

func TestSolveQuestions_ExhaustedProviderSkippedOnLaterChunks(t *testing.T) {
	// Primary hits its quota on the first chunk; later chunks must go to
	// the secondary without another primary round-trip until the reset.
	primary := &fakeProvider{name: "Primary", priority: 1, keys: 1, script: []scriptStep{{rateLimit: true}}}
	secondary := &fakeProvider{name: "Secondary", priority: 2, keys: 1, script: []scriptStep{
		{answers: map[int]string{1: "A"}}, {answers: map[int]string{2: "B"}},
	}}
	o := newOrchestrator(cache.NewMemoryStore(), primary, secondary)

	res := o.SolveQuestions(context.Background(), []provider.Question{questionN(1), questionN(2)}, Options{ChunkSize: 1})

	if primary.calls != 1 {
		t.Errorf("primary calls = %d, want 1 (second chunk must skip on known exhaustion)", primary.calls)
	}
	if secondary.calls != 2 {
		t.Errorf("secondary calls = %d, want 2", secondary.calls)
	}
	if !res.RateLimited || res.FailedQuestions != 0 {
		t.Errorf("rateLimited=%v failed=%d", res.RateLimited, res.FailedQuestions)
	}
	if !reflect.DeepEqual(res.ProvidersUsed, []string{"Primary", "Secondary"}) {
		t.Errorf("providersUsed = %v", res.ProvidersUsed)
	}
}

func TestSolveQuestions_RetryThenNextProvider(t *testing.T) {
	// Primary fails twice (transient), secondary picks everything up.
	primary := &fakeProvider{name: "Primary", priority: 1, keys: 1, script: []scriptStep{
		{err: provider.ErrInvalidResponse}, {err: provider.ErrInvalidResponse},
	}}
	primary.limit = provider.RateLimitStatus{Remaining: 1}
	secondary := &fakeProvider{name: "Secondary", priority: 2, keys: 1, script: []scriptStep{
		{answers: map[int]string{1: "B"}},
	}}
	o := newOrchestrator(cache.NewMemoryStore(), primary, secondary)

	res := o.SolveQuestions(context.Background(), []provider.Question{questionN(1)}, Options{MaxRetries: 2})
	if primary.calls != 2 {
		t.Errorf("primary calls = %d, want 2", primary.calls)
	}
	if res.FailedQuestions != 0 || res.Responses[0].CorrectKey != "B" {
		t.Errorf("res = %+v", res)
	}
}

func TestSolveQuestions_PartialAnswersShrinkRemaining(t *testing.T) {
	// Primary answers question 1 only; secondary must be asked only about 2.
	primary := &fakeProvider{name: "Primary", priority: 1, keys: 1, script: []scriptStep{
		{answers: map[int]string{1: "A"}},
	}}
	secondary := &fakeProvider{name: "Secondary", priority: 2, keys: 1, script: []scriptStep{
		{answers: map[int]string{2: "C"}},
	}}
	o := newOrchestrator(cache.NewMemoryStore(), primary, secondary)

	res := o.SolveQuestions(context.Background(), []provider.Question{questionN(1), questionN(2)}, Options{})
	if res.FailedQuestions != 0 {
		t.Errorf("failed = %d", res.FailedQuestions)
	}
	if !reflect.DeepEqual(secondary.asked, [][]int{{2}}) {
		t.Errorf("secondary asked %v, want [[2]]", secondary.asked)
	}
}

func TestSolveQuestions_AllProvidersFail(t *testing.T) {
	primary := &fakeProvider{name: "Primary", priority: 1, keys: 1, script: []scriptStep{
		{answers: map[int]string{1: "C"}}, {err: provider.ErrInvalidResponse},
	}}
	primary.limit = provider.RateLimitStatus{Remaining: 1}
	o := newOrchestrator(cache.NewMemoryStore(), primary)

	res := o.SolveQuestions(context.Background(), []provider.Question{questionN(1), questionN(2)}, Options{})
	if res.FailedQuestions != 1 {
		t.Errorf("failed = %d, want 1", res.FailedQuestions)
	}
	if len(res.Responses)+res.FailedQuestions != 2 {
		t.Errorf("responses+failed = %d, want 2", len(res.Responses)+res.FailedQuestions)
	}
}

func TestSolveQuestions_UnavailableSkippedSilently(t *testing.T) {
	unavailable := &fakeProvider{name: "Primary", priority: 1, keys: 0, script: []scriptStep{{}}}
	secondary := &fakeProvider{name: "Secondary", priority: 2, keys: 1, script: []scriptStep{
		{answers: map[int]string{1: "A"}},
	}}
	o := newOrchestrator(cache.NewMemoryStore(), unavailable, secondary)

	res := o.SolveQuestions(context.Background(), []provider.Question{questionN(1)}, Options{})
	if unavailable.calls != 0 {
		t.Errorf("unavailable provider was called")
	}
	if !reflect.DeepEqual(res.ProvidersUsed, []string{"Secondary"}) {
		t.Errorf("providersUsed = %v", res.ProvidersUsed)
	}
}

func TestSolveQuestions_Accounting(t *testing.T) {
	store := cache.NewMemoryStore()
	seeded := questionN(1)
	store.Put(context.Background(), []domain.CachedAnswer{cache.Entry(seeded.Stem, seeded.Choices, "A", "", "Gemini", 0)})

	prov := &fakeProvider{name: "Primary", priority: 1, keys: 1, script: []scriptStep{
		{answers: map[int]string{2: "B"}},
	}}
	prov.limit = provider.RateLimitStatus{Remaining: 1}
	o := newOrchestrator(store, prov)

	qs := []provider.Question{seeded, questionN(2), questionN(3)}
	res := o.SolveQuestions(context.Background(), qs, Options{MaxRetries: 1})

	if res.CacheHits+res.CacheMisses != len(qs) {
		t.Errorf("hits+misses = %d, want %d", res.CacheHits+res.CacheMisses, len(qs))
	}
	if len(res.Responses)+res.FailedQuestions != len(qs) {
		t.Errorf("responses+failed = %d, want %d", len(res.Responses)+res.FailedQuestions, len(qs))
	}
	// Responses ordered by index.
	for i := 1; i < len(res.Responses); i++ {
		if res.Responses[i-1].Index >= res.Responses[i].Index {
			t.Errorf("responses out of order: %+v", res.Responses)
		}
	}
}

func TestSolveQuestions_ChunkingRespected(t *testing.T) {
	prov := &fakeProvider{name: "Primary", priority: 1, keys: 1, script: []scriptStep{
		{answers: map[int]string{1: "A", 2: "A"}}, {answers: map[int]string{3: "A"}},
	}}
	o := newOrchestrator(cache.NewMemoryStore(), prov)

	qs := []provider.Question{questionN(1), questionN(2), questionN(3)}
	res := o.SolveQuestions(context.Background(), qs, Options{ChunkSize: 2})
	if prov.calls != 2 {
		t.Errorf("provider calls = %d, want 2 chunks", prov.calls)
	}
	if res.FailedQuestions != 0 {
		t.Errorf("failed = %d", res.FailedQuestions)
	}
}
