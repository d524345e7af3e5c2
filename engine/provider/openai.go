package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// chatRequest is the OpenAI-compatible chat-completions body shared by the
// GitHub Models, Groq, and Hugging Face adapters.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// buildChat returns a buildFunc posting an OpenAI-style completion request
// with Bearer auth.
func buildChat(url, model string) buildFunc {
	return func(key, prompt string) (*http.Request, error) {
		body, err := json.Marshal(chatRequest{
			Model: model,
			Messages: []chatMessage{
				{Role: "system", Content: SystemInstruction},
				{Role: "user", Content: prompt},
			},
		})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+key)
		return req, nil
	}
}

// extractChat pulls the assistant text and token count out of an
// OpenAI-style completion response.
func extractChat(body []byte) (string, int, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", 0, err
	}
	if len(resp.Choices) == 0 {
		return "", resp.Usage.TotalTokens, fmt.Errorf("no choices in completion")
	}
	return resp.Choices[0].Message.Content, resp.Usage.TotalTokens, nil
}
