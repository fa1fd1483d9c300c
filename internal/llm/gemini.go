package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"finsight/internal/chat/interfaces"
	"finsight/internal/chat/schema"
)

// Gemini generates answers through the Google GenAI API.
type Gemini struct {
	client *genai.Client
	model  string
}

var _ interfaces.Generator = (*Gemini)(nil)

// NewGemini creates a Gemini client for the given model.
func NewGemini(ctx context.Context, model, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Generate sends the conversation to Gemini and returns the answer text.
// The leading system message becomes the model's system instruction, and
// earlier turns are replayed as chat history.
func (g *Gemini) Generate(ctx context.Context, messages []schema.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages to generate from")
	}

	model := g.client.GenerativeModel(g.model)

	rest := messages
	if rest[0].Role == schema.MessageRoleSystem {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(rest[0].Content)},
		}
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return "", fmt.Errorf("no user message to generate from")
	}

	session := model.StartChat()
	for _, m := range rest[:len(rest)-1] {
		session.History = append(session.History, &genai.Content{
			Role:  toGeminiRole(m.Role),
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(rest[len(rest)-1].Content))
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 429 {
			return "", fmt.Errorf("%w: gemini: %v", schema.ErrRateLimited, err)
		}
		return "", err
	}

	return textFromResponse(resp), nil
}

func toGeminiRole(role string) string {
	if role == schema.MessageRoleAssistant {
		return "model"
	}
	return "user"
}

func textFromResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return sb.String()
}
