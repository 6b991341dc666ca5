// Package chatpipeline implements the Handler Chain & Strategy (§4.5): a
// chain of responsibility over ChatContext terminated by a Standard handler
// that delegates to SimpleChatStrategy. Grounded on the teacher's strategy
// dispatch style in internal/agent (provider selection by capability) but
// restructured as an explicit ordered chain per the spec's "first handler
// that answers true owns the message" rule.
package chatpipeline

import (
	"context"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

// Handler is one link in the chain of responsibility.
type Handler interface {
	// CanHandle reports whether this handler owns ctx.
	CanHandle(ctx context.Context, cctx models.ChatContext) bool
	// Process runs the handler and returns the processing result.
	Process(ctx context.Context, cctx models.ChatContext) (models.ChatProcessingResult, error)
	// Name identifies the handler for logging/metrics.
	Name() string
}

// Chain runs an ordered list of handlers, the first whose CanHandle answers
// true owns the message. Construction policy: specialized handlers are
// registered ahead of the terminal Standard handler only when their
// dependencies are available; otherwise the chain degrades to Standard
// alone.
type Chain struct {
	handlers []Handler
}

// NewChain builds a Chain. The caller is responsible for appending a
// terminal handler (one whose CanHandle always returns true) last.
func NewChain(handlers ...Handler) *Chain {
	return &Chain{handlers: handlers}
}

// Process runs ctx through the chain and returns the first handler's result.
func (c *Chain) Process(ctx context.Context, cctx models.ChatContext) (models.ChatProcessingResult, error) {
	for _, h := range c.handlers {
		if h.CanHandle(ctx, cctx) {
			return h.Process(ctx, cctx)
		}
	}
	return models.ChatProcessingResult{}, ErrNoHandler
}

// ErrNoHandler is returned when no handler (not even a terminal one) claims
// the message; a correctly constructed Chain never reaches this.
var ErrNoHandler = errNoHandler{}

type errNoHandler struct{}

func (errNoHandler) Error() string { return "chatpipeline: no handler claimed the message" }
