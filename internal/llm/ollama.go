package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	olla "github.com/ollama/ollama/api"

	"finsight/internal/chat/interfaces"
	"finsight/internal/chat/schema"
)

// Ollama generates answers through a local Ollama server.
type Ollama struct {
	client *olla.Client
	model  string
}

var _ interfaces.Generator = (*Ollama)(nil)

// NewOllama creates an Ollama client. baseURL defaults to the local
// server when empty.
func NewOllama(model, baseURL string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	hc := &http.Client{
		Timeout: 120 * time.Second,
	}
	return &Ollama{client: olla.NewClient(parsedURL, hc), model: model}, nil
}

// Generate sends the conversation to Ollama's chat endpoint and
// collects the non-streamed reply.
func (o *Ollama) Generate(ctx context.Context, messages []schema.Message) (string, error) {
	chat := make([]olla.Message, 0, len(messages))
	for _, m := range messages {
		chat = append(chat, olla.Message{Role: m.Role, Content: m.Content})
	}

	stream := false
	var sb strings.Builder
	err := o.client.Chat(ctx, &olla.ChatRequest{
		Model:    o.model,
		Messages: chat,
		Stream:   &stream,
	}, func(resp olla.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		var statusErr olla.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: ollama: %v", schema.ErrRateLimited, err)
		}
		return "", fmt.Errorf("generating with ollama: %w", err)
	}

	return sb.String(), nil
}
