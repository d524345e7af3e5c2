package provider

import (
	"context"
	"log/slog"
	"time"
)

const (
	hfDefaultBaseURL = "https://router.huggingface.co"
	hfDefaultModel   = "meta-llama/Llama-3.1-8B-Instruct"
)

// HuggingFace is the last-resort adapter: a generic inference API driven
// with smaller batches and a longer rate-limit cooldown (120 s when the
// response carries no Retry-After).
type HuggingFace struct {
	*apiClient
	build buildFunc
}

// HuggingFaceConfig configures the last-resort adapter from
// HF_ACCESS_TOKEN.
type HuggingFaceConfig struct {
	Token   string
	Model   string
	BaseURL string
}

func NewHuggingFace(cfg HuggingFaceConfig, log *slog.Logger) *HuggingFace {
	if cfg.BaseURL == "" {
		cfg.BaseURL = hfDefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = hfDefaultModel
	}
	return &HuggingFace{
		apiClient: newAPIClient("HuggingFace", 4, NewKeyRing(cfg.Token), 10, 120*time.Second, 10, log),
		build:     buildChat(cfg.BaseURL+"/v1/chat/completions", cfg.Model),
	}
}

func (h *HuggingFace) SolveBatch(ctx context.Context, questions []Question) (BatchResult, error) {
	return h.solve(ctx, questions, h.build, extractChat)
}
