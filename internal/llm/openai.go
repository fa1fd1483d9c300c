package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"finsight/internal/chat/interfaces"
	"finsight/internal/chat/schema"
)

// OpenAI generates answers through the OpenAI chat completion API.
type OpenAI struct {
	client *openai.Client
	model  string
}

var _ interfaces.Generator = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI client for the given model. baseURL
// overrides the API endpoint for compatible providers; leave it empty
// for the official one.
func NewOpenAI(model, apiKey, baseURL string) (*OpenAI, error) {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Generate sends the conversation as-is; the roles already follow the
// system/user/assistant convention OpenAI expects.
func (o *OpenAI) Generate(ctx context.Context, messages []schema.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: openai: %v", schema.ErrRateLimited, err)
		}
		return "", fmt.Errorf("creating chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
