// Package chat implements the retrieval-augmented conversational
// answering pipeline: per-request authorization scoping, metadata-filtered
// retrieval, grounded prompt composition and bounded conversation memory.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"finsight/internal/chat/authz"
	"finsight/internal/chat/compose"
	"finsight/internal/chat/interfaces"
	"finsight/internal/chat/memory"
	"finsight/internal/chat/schema"
	"finsight/pkg/logger"
)

// DefaultUpstreamTimeout bounds the retrieve-and-compose phase of a
// single request, covering the embedding, search and generation calls
// plus the composer's internal backoff.
const DefaultUpstreamTimeout = 90 * time.Second

// Orchestrator is the public entry point of the answering pipeline. It
// runs each request through Validate -> AuthorizeScope -> Retrieve+Compose
// -> PersistTurn -> Respond. All collaborators are injected once at
// construction; nothing is re-initialized inside request handling.
type Orchestrator struct {
	directory interfaces.Directory
	resolver  *authz.Resolver
	composer  *compose.Composer
	memory    *memory.Store
	log       *logger.Logger
	timeout   time.Duration
	ready     bool
}

// NewOrchestrator wires the pipeline. ready reports whether the
// generation capability was actually initialized at startup; when false
// the orchestrator answers ErrServiceUnavailable instead of crashing or
// attempting retrieval.
func NewOrchestrator(
	directory interfaces.Directory,
	resolver *authz.Resolver,
	composer *compose.Composer,
	mem *memory.Store,
	timeout time.Duration,
	ready bool,
	log *logger.Logger,
) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	return &Orchestrator{
		directory: directory,
		resolver:  resolver,
		composer:  composer,
		memory:    mem,
		log:       log,
		timeout:   timeout,
		ready:     ready,
	}
}

// Ready reports whether the pipeline can accept questions.
func (o *Orchestrator) Ready() bool {
	return o.ready
}

// Answer handles one question about one company on behalf of the
// authenticated user. On any failure the conversation memory is left
// untouched; the turn is appended only after composition succeeded.
func (o *Orchestrator) Answer(ctx context.Context, userID uint, question string, companyID uint) (*schema.AnswerResult, error) {
	if !o.ready {
		return nil, schema.ErrServiceUnavailable
	}

	// Validate.
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", schema.ErrInvalidRequest)
	}
	if companyID == 0 {
		return nil, fmt.Errorf("%w: company_id is required", schema.ErrInvalidRequest)
	}

	identity, err := o.directory.GetUser(ctx, userID)
	if err != nil {
		return nil, schema.ErrIdentityNotFound
	}
	company, err := o.directory.GetCompany(ctx, companyID)
	if err != nil {
		return nil, schema.ErrCompanyNotFound
	}

	// AuthorizeScope. An out-of-scope target is rejected before any
	// retrieval is issued, so no chunk of the denied company is ever
	// fetched, let alone leaked into an error message.
	scope, err := o.resolver.Scope(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !scope.Contains(companyID) {
		o.log.Warn(fmt.Sprintf("user %d denied access to company %d", identity.ID, companyID))
		return nil, schema.ErrForbidden
	}

	// One critical section per conversation: history-read, compose and
	// append serialize so concurrent requests for the same key cannot
	// interleave or lose turns.
	key := memory.Key{UserID: identity.ID, CompanyID: companyID}
	unlock := o.memory.Lock(key)
	defer unlock()

	history := o.memory.History(key)

	cctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	answer, err := o.composer.Compose(cctx, question, company, []uint{companyID}, scope, history)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || cctx.Err() == context.DeadlineExceeded {
			return nil, schema.ErrUpstreamTimeout
		}
		return nil, err
	}

	// PersistTurn: only after a successful compose.
	o.memory.Append(key, question, answer.Text)

	return &schema.AnswerResult{
		Answer:    answer.Text,
		Sources:   answer.Sources,
		TurnCount: o.memory.Len(key),
	}, nil
}

// EndSession drops all conversation state the user holds. Called on
// logout; memory is not durable, so there is nothing else to tear down.
func (o *Orchestrator) EndSession(userID uint) {
	o.memory.ClearUser(userID)
}
