package provider

import (
	"context"
	"log/slog"
	"time"
)

const (
	groqDefaultBaseURL = "https://api.groq.com/openai"
	groqDefaultModel   = "llama-3.3-70b-versatile"
)

// Groq is the tertiary adapter: low-latency inference over the same batch
// interface.
type Groq struct {
	*apiClient
	build buildFunc
}

// GroqConfig configures the tertiary adapter from GROQ_API_KEY.
type GroqConfig struct {
	Key     string
	Model   string
	BaseURL string
}

func NewGroq(cfg GroqConfig, log *slog.Logger) *Groq {
	if cfg.BaseURL == "" {
		cfg.BaseURL = groqDefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = groqDefaultModel
	}
	return &Groq{
		apiClient: newAPIClient("Groq", 3, NewKeyRing(cfg.Key), 25, 60*time.Second, 30, log),
		build:     buildChat(cfg.BaseURL+"/v1/chat/completions", cfg.Model),
	}
}

func (g *Groq) SolveBatch(ctx context.Context, questions []Question) (BatchResult, error) {
	return g.solve(ctx, questions, g.build, extractChat)
}
