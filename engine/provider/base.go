package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/SILVESTRIKE/document-to-quiz/pkg/fn"
)

var (
	ErrNoAPIKey        = errors.New("no api key configured")
	ErrRateLimited     = errors.New("provider rate limited")
	ErrInvalidResponse = errors.New("unparseable provider response")
)

const defaultTimeout = 60 * time.Second

// apiClient is the shared machinery of every adapter: key rotation, request
// pacing, rate-limit bookkeeping, and the solve loop. The vendor-specific
// pieces are injected as the build and extract callbacks.
type apiClient struct {
	name       string
	priority   int
	keys       *KeyRing
	http       *http.Client
	pace       *rate.Limiter
	limits     *limitState
	retryAfter time.Duration // 429 fallback when Retry-After is absent
	maxBatch   int
	log        *slog.Logger
}

func newAPIClient(name string, priority int, keys *KeyRing, reqsPerMin float64, retryAfter time.Duration, maxBatch int, log *slog.Logger) *apiClient {
	return &apiClient{
		name:     name,
		priority: priority,
		keys:     keys,
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		pace:       rate.NewLimiter(rate.Limit(reqsPerMin/60.0), 1),
		limits:     newLimitState(),
		retryAfter: retryAfter,
		maxBatch:   maxBatch,
		log:        log.With("provider", name),
	}
}

func (c *apiClient) Name() string { return c.name }

func (c *apiClient) Priority() int { return c.priority }

func (c *apiClient) Available() bool { return c.keys.Len() > 0 }

func (c *apiClient) RateLimit() RateLimitStatus { return c.limits.status() }

type buildFunc func(key string, prompt string) (*http.Request, error)
type extractFunc func(body []byte) (content string, tokens int, err error)

// solve runs the batch through the provider, splitting into sub-batches of
// maxBatch. A sub-batch failure stops the loop; answers gathered before it
// are still returned, so the orchestrator only re-asks what is missing.
func (c *apiClient) solve(ctx context.Context, questions []Question, build buildFunc, extract extractFunc) (BatchResult, error) {
	start := time.Now()
	if !c.Available() {
		return failedResult(c.name, len(questions), start), ErrNoAPIKey
	}

	var answers []Answer
	var tokens int
	var callErr error
	for _, batch := range fn.Chunk(questions, c.maxBatch) {
		got, t, err := c.solveOne(ctx, batch, build, extract)
		tokens += t
		if err != nil {
			callErr = err
			break
		}
		answers = append(answers, got...)
	}

	res := BatchResult{
		Responses:         answers,
		Provider:          c.name,
		TokensUsed:        tokens,
		Duration:          time.Since(start),
		QuestionsAnswered: len(answers),
		QuestionsFailed:   len(questions) - len(answers),
	}
	if len(answers) == 0 && callErr != nil {
		return res, callErr
	}
	return res, nil
}

func (c *apiClient) solveOne(ctx context.Context, batch []Question, build buildFunc, extract extractFunc) ([]Answer, int, error) {
	if err := c.pace.Wait(ctx); err != nil {
		return nil, 0, err
	}

	req, err := build(c.keys.Next(), BuildPrompt(batch, MaxPromptLen))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		return nil, 0, fmt.Errorf("call %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := retryAfterHeader(resp.Header, c.retryAfter)
		c.limits.recordLimited(wait)
		c.log.Warn("rate limited", "retry_after", wait)
		return nil, 0, ErrRateLimited
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("read %s response: %w", c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, 0, fmt.Errorf("%s returned status %d", c.name, resp.StatusCode)
	}

	content, tokens, err := extract(body)
	if err != nil {
		return nil, tokens, fmt.Errorf("%s response envelope: %w", c.name, err)
	}
	mapped, ok := DecodeAnswerMap(content)
	if !ok {
		return nil, tokens, ErrInvalidResponse
	}
	c.limits.recordOK()

	var answers []Answer
	for _, q := range batch {
		key, found := mapped[q.Index]
		if !found || !hasChoice(q, key) {
			continue
		}
		answers = append(answers, Answer{Index: q.Index, CorrectKey: key})
	}
	return answers, tokens, nil
}

func hasChoice(q Question, key string) bool {
	for _, c := range q.Choices {
		if c.Key == key {
			return true
		}
	}
	return false
}
