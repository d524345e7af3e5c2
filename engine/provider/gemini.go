package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"
	geminiDefaultModel   = "gemini-2.0-flash"
)

// Gemini is the primary adapter: high throughput, large batches, and an
// explicit JSON output mode.
type Gemini struct {
	*apiClient
	baseURL string
	model   string
}

// GeminiConfig configures the primary adapter. Keys is the comma-separated
// GEMINI_API_KEYS value. BaseURL and Model default when empty.
type GeminiConfig struct {
	Keys    string
	BaseURL string
	Model   string
}

func NewGemini(cfg GeminiConfig, log *slog.Logger) *Gemini {
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiDefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	return &Gemini{
		apiClient: newAPIClient("Gemini", 1, NewKeyRing(cfg.Keys), 15, 60*time.Second, 40, log),
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
	}
}

type geminiRequest struct {
	SystemInstruction geminiContent   `json:"systemInstruction"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		ResponseMIMEType string `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (g *Gemini) SolveBatch(ctx context.Context, questions []Question) (BatchResult, error) {
	return g.solve(ctx, questions, g.buildRequest, extractGemini)
}

func (g *Gemini) buildRequest(key, prompt string) (*http.Request, error) {
	body := geminiRequest{
		SystemInstruction: geminiContent{Parts: []geminiPart{{Text: SystemInstruction}}},
		Contents:          []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	}
	body.GenerationConfig.ResponseMIMEType = "application/json"

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)
	return req, nil
}

func extractGemini(body []byte) (string, int, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", 0, err
	}
	tokens := resp.UsageMetadata.TotalTokenCount
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", tokens, fmt.Errorf("no candidates in response")
	}
	return resp.Candidates[0].Content.Parts[0].Text, tokens, nil
}
