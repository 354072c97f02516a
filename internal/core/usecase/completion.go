package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/core/ports"
)

const (
	DefaultCompletionTimeout = 5 * time.Minute
	tokenBuffer              = 64
)

// CompletionRequest is one streaming completion call.
// OnOpen runs once the upstream stream has opened and before any token is
// forwarded. OnComplete runs at most once, only after the stream ended
// without error.
type CompletionRequest struct {
	Messages   []domain.ChatMessage
	Model      string
	Mode       domain.ChatMode
	OnOpen     func(ctx context.Context)
	OnComplete func(ctx context.Context, text string)
}

type CompletionOrchestrator struct {
	completer ports.ChatCompleter
	timeout   time.Duration
	logger    *slog.Logger
	observer  ports.PipelineObserver
}

func NewCompletionOrchestrator(completer ports.ChatCompleter, timeout time.Duration, logger *slog.Logger, observer ports.PipelineObserver) *CompletionOrchestrator {
	if timeout <= 0 {
		timeout = DefaultCompletionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CompletionOrchestrator{
		completer: completer,
		timeout:   timeout,
		logger:    logger,
		observer:  observerOrNoop(observer),
	}
}

// Invoke opens the upstream stream and starts forwarding tokens. The stream is
// bound to a context detached from ctx so a client disconnect does not cut the
// completion short.
func (o *CompletionOrchestrator) Invoke(ctx context.Context, req CompletionRequest) (*Completion, error) {
	started := time.Now()
	streamCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)

	completion := newCompletion()
	completion.setState(domain.CompletionAwaitingFirstToken)

	stream, err := o.completer.StreamCompletion(streamCtx, req.Messages, req.Model)
	if err != nil {
		cancel()
		err = startError(err)
		completion.finish("", err)
		o.logger.Error("completion_failed", "mode", req.Mode, "model", req.Model, "stage", "open", "error", err)
		o.observer.ObserveCompletion(req.Mode, req.Model, domain.CompletionFailed, 0, time.Since(started))
		return nil, err
	}

	if req.OnOpen != nil {
		req.OnOpen(streamCtx)
	}

	go func() {
		defer cancel()
		o.pump(streamCtx, stream, completion, req, started)
	}()
	return completion, nil
}

func (o *CompletionOrchestrator) pump(ctx context.Context, stream ports.TokenStream, c *Completion, req CompletionRequest, started time.Time) {
	defer close(c.tokens)

	var text strings.Builder
	tokens := 0
	for stream.Next() {
		token := stream.Token()
		if token == "" {
			continue
		}
		tokens++
		text.WriteString(token)
		c.setState(domain.CompletionStreaming)
		c.forward(token)
	}
	streamErr := stream.Err()
	if closeErr := stream.Close(); closeErr != nil {
		o.logger.Warn("completion_stream_close_failed", "error", closeErr)
	}

	if streamErr != nil {
		err := &domain.DetailedError{
			Kind:    domain.ErrUpstreamUnavailable,
			Message: "the completion stream was interrupted: " + streamErr.Error(),
			Err:     streamErr,
		}
		c.finish(text.String(), err)
		o.logger.Error("completion_failed", "mode", req.Mode, "model", req.Model, "stage", "stream", "tokens", tokens, "error", err)
		o.observer.ObserveCompletion(req.Mode, req.Model, domain.CompletionFailed, tokens, time.Since(started))
		return
	}

	full := text.String()
	c.completeOnce.Do(func() {
		if req.OnComplete != nil {
			req.OnComplete(ctx, full)
		}
	})
	c.finish(full, nil)
	o.observer.ObserveCompletion(req.Mode, req.Model, domain.CompletionCompleted, tokens, time.Since(started))
}

// startError keeps configuration and rate-limit kinds and reports everything
// else as an unavailable upstream. The cause is part of the user message.
func startError(err error) error {
	kind := domain.ErrUpstreamUnavailable
	for _, candidate := range []error{domain.ErrConfiguration, domain.ErrRateLimited} {
		if domain.IsKind(err, candidate) {
			kind = candidate
			break
		}
	}
	return &domain.DetailedError{
		Kind:    kind,
		Message: "the completion service failed: " + err.Error(),
		Err:     err,
	}
}

// Completion is one in-flight streamed answer.
type Completion struct {
	tokens       chan string
	done         chan struct{}
	detached     chan struct{}
	detachOnce   sync.Once
	completeOnce sync.Once

	mu    sync.Mutex
	state domain.CompletionState
	text  string
	err   error
}

func newCompletion() *Completion {
	return &Completion{
		tokens:   make(chan string, tokenBuffer),
		done:     make(chan struct{}),
		detached: make(chan struct{}),
		state:    domain.CompletionIdle,
	}
}

// Tokens is closed when the upstream stream ends.
func (c *Completion) Tokens() <-chan string {
	return c.tokens
}

// Detach stops token forwarding. The upstream stream keeps draining.
func (c *Completion) Detach() {
	c.detachOnce.Do(func() { close(c.detached) })
}

// Wait blocks until the completion is terminal and returns the full text.
func (c *Completion) Wait() (string, error) {
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, c.err
}

func (c *Completion) State() domain.CompletionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Completion) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Completion) forward(token string) {
	select {
	case <-c.detached:
		return
	default:
	}
	select {
	case c.tokens <- token:
	case <-c.detached:
	}
}

func (c *Completion) setState(state domain.CompletionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Terminal() {
		c.state = state
	}
}

func (c *Completion) finish(text string, err error) {
	c.mu.Lock()
	c.text = text
	c.err = err
	if err != nil {
		c.state = domain.CompletionFailed
	} else {
		c.state = domain.CompletionCompleted
	}
	c.mu.Unlock()
	close(c.done)
}
