package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/becomeliminal/nim-memory/core"
)

// Memory is the conversation memory an Engine records into and recalls from.
// *memory.Manager implements it.
type Memory interface {
	RecordUser(ctx context.Context, conversationID, text string) error
	RecordAssistant(ctx context.Context, conversationID, text string) error
	BuildContext(ctx context.Context, conversationID, query string, k int) (core.Context, error)
}

// TurnObserver receives the outcome of each completion.
type TurnObserver interface {
	ChatTurn(backend string, err error)
}

// Engine runs conversation turns: record the user message, assemble the
// context, complete it, and record the reply.
type Engine struct {
	memory   Memory
	router   *Router
	config   *Config
	observer TurnObserver // Optional
}

// Option configures the engine.
type Option func(*Engine)

// WithObserver reports completion outcomes to o.
func WithObserver(o TurnObserver) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// NewEngine creates an engine over mem and router.
func NewEngine(mem Memory, router *Router, config *Config, opts ...Option) *Engine {
	if config == nil {
		config = DefaultConfig
	}
	e := &Engine{
		memory: mem,
		router: router,
		config: config,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Router returns the engine's backend router.
func (e *Engine) Router() *Router {
	return e.router
}

// Turn handles one user message and returns the model's reply.
//
// An unsupported model fails before anything is recorded. A backend failure
// leaves the user turn pending and records no assistant turn. If recording the
// reply fails, the reply is returned together with the error.
func (e *Engine) Turn(ctx context.Context, conversationID, model, text string) (string, error) {
	if model == "" {
		model = e.config.DefaultModel
	}
	backend, err := e.router.Route(model)
	if err != nil {
		return "", err
	}

	if err := e.memory.RecordUser(ctx, conversationID, text); err != nil {
		return "", fmt.Errorf("record user turn: %w", err)
	}

	c, err := e.memory.BuildContext(ctx, conversationID, text, e.config.TopK)
	if err != nil {
		return "", fmt.Errorf("build context: %w", err)
	}

	callCtx := ctx
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := backend.Complete(callCtx, model, c)
	if e.observer != nil {
		e.observer.ChatTurn(backend.Name(), err)
	}
	if err != nil {
		log.Printf("[CHAT] %s completion failed (conversation=%s, model=%s): %v", backend.Name(), conversationID, model, err)
		return "", fmt.Errorf("%s completion: %w", backend.Name(), err)
	}
	log.Printf("[CHAT] %s replied in %s (conversation=%s, context=%d turns)",
		backend.Name(), time.Since(start).Round(time.Millisecond), conversationID, len(c))

	if err := e.memory.RecordAssistant(ctx, conversationID, reply); err != nil {
		return reply, fmt.Errorf("record assistant turn: %w", err)
	}
	return reply, nil
}

// Config holds Engine configuration.
type Config struct {
	// DefaultModel is used when a turn names no model.
	// Default: mistral
	DefaultModel string

	// Timeout bounds each backend call.
	// Default: 60s
	Timeout time.Duration

	// TopK is passed to BuildContext; 0 uses the memory default.
	TopK int
}

// DefaultConfig returns sensible defaults.
var DefaultConfig = &Config{
	DefaultModel: "mistral",
	Timeout:      60 * time.Second,
}
