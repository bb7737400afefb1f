// ABOUTME: Orchestrator drives one chat request from question to answer
// ABOUTME: RECEIVED -> CONTEXT_RESOLVED -> PROMPT_COMPOSED -> ANSWERED, or FAILED from any state
package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/harper/ragchat/internal/models"
	"github.com/harper/ragchat/internal/util"
)

// Orchestrator answers chat requests using retrieved context and session memory
type Orchestrator struct {
	resolver  *ContextResolver
	composer  *PromptComposer
	memory    *SessionMemory
	generator Generator
	retry     util.RetryPolicy
	verbose   bool
}

// OrchestratorOptions configures an Orchestrator
type OrchestratorOptions struct {
	Retry   util.RetryPolicy
	Verbose bool
}

// NewOrchestrator wires the request pipeline
func NewOrchestrator(resolver *ContextResolver, composer *PromptComposer, memory *SessionMemory, generator Generator, opts OrchestratorOptions) *Orchestrator {
	return &Orchestrator{
		resolver:  resolver,
		composer:  composer,
		memory:    memory,
		generator: generator,
		retry:     opts.Retry,
		verbose:   opts.Verbose,
	}
}

// Memory returns the session memory the orchestrator commits to
func (o *Orchestrator) Memory() *SessionMemory {
	return o.memory
}

// request tracks the state of one in-flight chat request. target is the
// state being worked towards, so a failure names the step that broke.
type request struct {
	sessionID string
	state     models.RequestState
	target    models.RequestState
	verbose   bool
}

// attempt marks the start of the work that leads to next and reports a
// cancelled caller
func (r *request) attempt(ctx context.Context, next models.RequestState) error {
	r.target = next
	return ctx.Err()
}

func (r *request) advance(next models.RequestState) {
	if r.verbose {
		log.Printf("[Orchestrator] session %s: %s -> %s", r.sessionID, r.state, next)
	}
	r.state = next
}

func (r *request) fail(err error) (*models.ChatResult, error) {
	log.Printf("[Orchestrator] session %s failed in %s: %v", r.sessionID, r.target, err)
	r.state = models.StateFailed
	return &models.ChatResult{SessionID: r.sessionID, State: models.StateFailed}, err
}

// Chat runs one request to a terminal state. On success the exchange is
// committed to session memory; a failed request leaves the session's
// persisted log untouched.
func (o *Orchestrator) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResult, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = models.NewSessionID()
	}
	r := &request{sessionID: sessionID, state: models.StateReceived, target: models.StateReceived, verbose: o.verbose}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return r.fail(&models.ValidationError{Field: "question", Message: "cannot be empty"})
	}
	if req.Attachment != nil {
		if err := req.Attachment.Validate(); err != nil {
			return r.fail(&models.ValidationError{Field: "attachment", Message: err.Error()})
		}
	}

	// Reconcile before any slow call so the history is pinned for this request.
	session, err := o.memory.ReconcileSession(sessionID, req.History)
	if err != nil {
		return r.fail(err)
	}

	if err := r.attempt(ctx, models.StateContextResolved); err != nil {
		return r.fail(err)
	}
	contextText, err := o.resolver.Resolve(ctx, SourceFor(question, req.Attachment))
	if err != nil {
		return r.fail(err)
	}
	r.advance(models.StateContextResolved)

	if err := r.attempt(ctx, models.StatePromptComposed); err != nil {
		return r.fail(err)
	}
	prompt, err := o.composer.Compose(contextText, session.Turns, question)
	if err != nil {
		return r.fail(err)
	}
	if prompt.TurnsDropped > 0 {
		log.Printf("[Orchestrator] session %s: dropped %d oldest history turns to fit prompt budget", sessionID, prompt.TurnsDropped)
	}
	r.advance(models.StatePromptComposed)

	if err := r.attempt(ctx, models.StateAnswered); err != nil {
		return r.fail(err)
	}
	answer, err := o.generate(ctx, prompt.Text)
	if err != nil {
		return r.fail(err)
	}

	if err := o.commit(sessionID, question, req.Attachment, answer); err != nil {
		log.Printf("[Orchestrator] Warning: session %s answered but not recorded: %v", sessionID, err)
	}
	r.advance(models.StateAnswered)

	return &models.ChatResult{
		SessionID: sessionID,
		Response:  answer,
		State:     models.StateAnswered,
		Context:   contextText,
	}, nil
}

// generate calls the model under the retry policy. Exhausted retries become
// *models.UpstreamError; caller cancellation is returned as the context error.
func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	var answer string
	err := o.retry.Do(ctx, "generate", func(ctx context.Context) error {
		out, err := o.generator.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		if strings.TrimSpace(out) == "" {
			return errors.New("model returned an empty response")
		}
		answer = out
		return nil
	})
	if err == nil {
		return answer, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", fmt.Errorf("request abandoned: %w", ctxErr)
	}

	attempts := 1
	var retryErr *util.RetryError
	if errors.As(err, &retryErr) {
		attempts = retryErr.Attempts
	}
	return "", &models.UpstreamError{Attempts: attempts, Err: err}
}

func (o *Orchestrator) commit(sessionID, question string, att *models.Attachment, answer string) error {
	var ref *models.AttachmentRef
	if att != nil {
		ref = att.Ref()
	}
	human, err := models.NewTurn(models.RoleHuman, question, ref)
	if err != nil {
		return err
	}
	assistant, err := models.NewTurn(models.RoleAssistant, answer, nil)
	if err != nil {
		return err
	}
	return o.memory.Commit(sessionID, *human, *assistant)
}
