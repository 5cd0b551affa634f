package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bosun/internal/pkg/httpclient"
)

// CompatClient speaks the OpenAI-compatible /chat/completions dialect over
// plain HTTP, for self-hosted or proxy inference backends.
type CompatClient struct {
	http          *httpclient.Client
	baseURL       string
	model         string
	researchModel string
}

func NewCompatClient(baseURL, apiKey, model, researchModel string) *CompatClient {
	if researchModel == "" {
		researchModel = model
	}
	h := httpclient.New().WithTimeout(DefaultTimeout)
	if apiKey != "" {
		h = h.WithBearerToken(apiKey)
	}
	return &CompatClient{
		http:          h,
		baseURL:       baseURL,
		model:         model,
		researchModel: researchModel,
	}
}

type compatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type compatRequest struct {
	Model       string          `json:"model"`
	Messages    []compatMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type compatResponse struct {
	Choices []struct {
		Message compatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate runs one completion against the compatible backend.
func (c *CompatClient) Generate(ctx context.Context, req Request) (string, error) {
	model := c.model
	if req.WebSearch {
		model = c.researchModel
	}

	messages := make([]compatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, compatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, compatMessage{Role: "user", Content: req.Prompt})

	body := compatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	resp, err := c.http.Request().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.baseURL + "/chat/completions")
	if err != nil {
		return "", fmt.Errorf("inference call failed: %w", err)
	}

	var parsed compatResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", fmt.Errorf("invalid inference response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("inference backend error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	return parsed.Choices[0].Message.Content, nil
}

// SetTimeout overrides the HTTP timeout.
func (c *CompatClient) SetTimeout(d time.Duration) {
	c.http.WithTimeout(d)
}

var _ Client = (*CompatClient)(nil)
