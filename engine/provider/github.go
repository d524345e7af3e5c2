package provider

import (
	"context"
	"log/slog"
	"time"
)

const (
	githubDefaultBaseURL = "https://models.github.ai/inference"
	githubDefaultModel   = "openai/gpt-4o-mini"
)

// GitHubModels is the secondary adapter, a conversational API driven with
// a deliberately short system message to keep input tokens down.
type GitHubModels struct {
	*apiClient
	build buildFunc
}

// GitHubConfig configures the secondary adapter from GITHUB_TOKEN and
// GITHUB_MODEL.
type GitHubConfig struct {
	Token   string
	Model   string
	BaseURL string
}

func NewGitHubModels(cfg GitHubConfig, log *slog.Logger) *GitHubModels {
	if cfg.BaseURL == "" {
		cfg.BaseURL = githubDefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = githubDefaultModel
	}
	return &GitHubModels{
		apiClient: newAPIClient("GitHub", 2, NewKeyRing(cfg.Token), 10, 60*time.Second, 30, log),
		build:     buildChat(cfg.BaseURL+"/chat/completions", cfg.Model),
	}
}

func (g *GitHubModels) SolveBatch(ctx context.Context, questions []Question) (BatchResult, error) {
	return g.solve(ctx, questions, g.build, extractChat)
}
