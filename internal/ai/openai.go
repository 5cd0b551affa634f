package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	// DefaultTimeout bounds a single completion call.
	DefaultTimeout = 120 * time.Second

	// MaxRetries is the retry budget for rate-limit errors.
	MaxRetries = 3

	// BaseBackoff and MaxBackoff shape the exponential backoff between retries.
	BaseBackoff = 2 * time.Second
	MaxBackoff  = 32 * time.Second
)

var (
	// ErrAPIKeyNotSet means no OpenAI API key was configured.
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

	// ErrMaxRetriesExceeded means the rate-limit retry budget ran out.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// OpenAIClient calls the OpenAI API. WebSearch requests are routed to the
// research model, which carries web-search grounding.
type OpenAIClient struct {
	client        openai.Client
	model         string
	researchModel string
	timeout       time.Duration
}

func NewOpenAIClient(apiKey, model, researchModel string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if researchModel == "" {
		researchModel = model
	}
	return &OpenAIClient{
		client:        openai.NewClient(option.WithAPIKey(apiKey)),
		model:         model,
		researchModel: researchModel,
		timeout:       DefaultTimeout,
	}, nil
}

// SetTimeout overrides the per-call timeout.
func (c *OpenAIClient) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Generate runs one completion, retrying rate-limit errors with backoff.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := c.model
	if req.WebSearch {
		model = c.researchModel
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * BaseBackoff
			if backoff > MaxBackoff {
				backoff = MaxBackoff
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return "", fmt.Errorf("OpenAI API call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("no completion choices returned")
		}
		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

var _ Client = (*OpenAIClient)(nil)
