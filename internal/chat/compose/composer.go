package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"finsight/internal/chat/interfaces"
	"finsight/internal/chat/retrieval"
	"finsight/internal/chat/schema"
	"finsight/pkg/logger"
)

// FallbackAnswer is returned when the generation capability produces no
// answer text for a question.
const FallbackAnswer = "I cannot answer this question based on the available financial data."

// RetryPolicy bounds the backoff loop applied to rate-limited generation
// calls. Any other generation failure propagates immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy mirrors the upstream quota behavior we see in
// practice: 4 attempts, exponential backoff from 2s capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

// Composer builds a grounded prompt from retrieved context and
// conversation history and invokes the generation capability. It has no
// side effects: appending the turn to memory is the orchestrator's job,
// which keeps composition idempotent across retries.
type Composer struct {
	retriever *retrieval.Retriever
	generator interfaces.Generator
	retry     RetryPolicy
	log       *logger.Logger
}

// NewComposer creates a Composer.
func NewComposer(retriever *retrieval.Retriever, generator interfaces.Generator, retry RetryPolicy, log *logger.Logger) *Composer {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	return &Composer{
		retriever: retriever,
		generator: generator,
		retry:     retry,
		log:       log,
	}
}

// Compose retrieves context for the question, assembles the message
// sequence and returns the generated answer with its deduplicated source
// labels. companies is the caller's requested set; scope is the
// identity's authorized scope the retriever intersects it with.
func (c *Composer) Compose(ctx context.Context, question string, company *schema.Company, companies []uint, scope schema.Scope, history []schema.Turn) (*schema.Answer, error) {
	if len(scope.Intersect(companies)) == 0 {
		// Nothing the identity may see. Answer from nothing rather than
		// asking the model to speculate.
		return &schema.Answer{Text: FallbackAnswer}, nil
	}

	chunks, err := c.retriever.Retrieve(ctx, question, companies, scope)
	if err != nil {
		return nil, err
	}

	messages := c.buildMessages(question, company, chunks, history)

	text, err := c.generateWithBackoff(ctx, messages)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		text = FallbackAnswer
	}

	return &schema.Answer{
		Text:    text,
		Sources: dedupeSources(chunks),
	}, nil
}

// generateWithBackoff calls the generation capability, retrying only
// rate-limit failures on an exponential schedule. The sleep honors
// context cancellation so a dropped client does not pin a worker.
func (c *Composer) generateWithBackoff(ctx context.Context, messages []schema.Message) (string, error) {
	delay := c.retry.BaseDelay

	for attempt := 1; ; attempt++ {
		text, err := c.generator.Generate(ctx, messages)
		if err == nil {
			return text, nil
		}

		if !errors.Is(err, schema.ErrRateLimited) {
			c.log.Error(fmt.Sprintf("generation failed: %v", err))
			return "", fmt.Errorf("%w: %v", schema.ErrGenerationFailed, err)
		}
		if attempt >= c.retry.MaxAttempts {
			c.log.Error(fmt.Sprintf("generation still rate limited after %d attempts", attempt))
			return "", fmt.Errorf("%w: rate limited after %d attempts", schema.ErrGenerationFailed, attempt)
		}

		c.log.Warn(fmt.Sprintf("generation rate limited, attempt %d/%d, backing off %s", attempt, c.retry.MaxAttempts, delay))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}

		delay *= 2
		if delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}
}

// buildMessages assembles [system, ...history, user]. The system message
// carries the analyst persona, the authorized company context and the
// retrieved chunks in similarity order.
func (c *Composer) buildMessages(question string, company *schema.Company, chunks []*schema.Chunk, history []schema.Turn) []schema.Message {
	var sb strings.Builder
	sb.WriteString("You are a financial analyst AI assistant specializing in balance sheet analysis. ")
	if company != nil {
		sb.WriteString(fmt.Sprintf("You have access to balance sheet data for %s. ", company.Name))
	}
	sb.WriteString("Use the provided context to answer questions about financial metrics, trends, and insights. ")
	sb.WriteString("Be precise, analytical, and provide specific numbers from the data when available. ")
	sb.WriteString("If you cannot find relevant information in the context, clearly state that. ")
	sb.WriteString("Keep your responses concise but informative.\n\nContext:\n")

	if len(chunks) == 0 {
		sb.WriteString("(no relevant data)\n")
	}
	for i, chunk := range chunks {
		sb.WriteString("---\n")
		sb.WriteString(fmt.Sprintf("Context %d:\n%s\n", i+1, chunk.Text))
	}

	messages := make([]schema.Message, 0, 2*len(history)+2)
	messages = append(messages, schema.Message{Role: schema.MessageRoleSystem, Content: sb.String()})
	for _, turn := range history {
		messages = append(messages,
			schema.Message{Role: schema.MessageRoleUser, Content: turn.Question},
			schema.Message{Role: schema.MessageRoleAssistant, Content: turn.Answer},
		)
	}
	messages = append(messages, schema.Message{Role: schema.MessageRoleUser, Content: question})
	return messages
}

// dedupeSources collects the distinct provenance labels of the chunks
// that were actually passed as context, preserving similarity order.
func dedupeSources(chunks []*schema.Chunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	sources := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Source == "" {
			continue
		}
		if _, ok := seen[chunk.Source]; ok {
			continue
		}
		seen[chunk.Source] = struct{}{}
		sources = append(sources, chunk.Source)
	}
	return sources
}
