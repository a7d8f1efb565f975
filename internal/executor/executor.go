// Package executor holds one executor per capability. Executors deliver
// their own output through the gateway; the dispatcher only decides
// whether they run.
package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/snarkbot/snark/internal/convo"
	"github.com/snarkbot/snark/internal/gateway"
	"github.com/snarkbot/snark/internal/intent"
	"github.com/snarkbot/snark/internal/memory"
	"github.com/snarkbot/snark/internal/provider"
)

// Request carries one routed message into an executor.
type Request struct {
	Msg          *gateway.InboundMessage
	Intent       *intent.Intent
	Conversation convo.Conversation
	// Messages is the prepared prompt (system + conversation) the router
	// decided on, reused by executors that call the model again.
	Messages   []provider.Message
	ExcludeIDs []string // message ids already in the conversation
}

// Result reports what an executor delivered. Text is what was said, for
// the context cache; empty when the output was not textual.
type Result struct {
	Text string
}

// Executor performs one capability end to end, including delivery.
type Executor interface {
	Capability() intent.Capability
	Execute(ctx context.Context, req *Request) (*Result, error)
}

// Retriever supplies semantically relevant past messages.
type Retriever interface {
	Retrieve(ctx context.Context, query string, excludeIDs []string, limit int) ([]intent.Excerpt, error)
}

// Deps are the shared collaborators executors are built from.
type Deps struct {
	Gateway *gateway.Gateway
	Models  *provider.Router
	Memory  *memory.Memory
	Index   Retriever
	Logger  *zap.Logger
}

// Registry maps capabilities to executors, exhaustively.
type Registry struct {
	executors map[intent.Capability]Executor
}

// NewRegistry builds the full executor set.
func NewRegistry(deps Deps) *Registry {
	search := &WebSearch{deps: deps}
	r := &Registry{executors: make(map[intent.Capability]Executor)}
	for _, e := range []Executor{
		&Chat{deps: deps},
		search,
		&ImageGen{deps: deps},
		&DocumentGen{deps: deps, search: search, renderer: MarkdownRenderer{}},
		&FileBuild{deps: deps},
		&Poll{deps: deps},
		&Pin{deps: deps},
		&HistorySearch{deps: deps},
		&Roster{deps: deps},
	} {
		r.executors[e.Capability()] = e
	}
	return r
}

// For returns the executor for a capability.
func (r *Registry) For(c intent.Capability) (Executor, error) {
	e, ok := r.executors[c]
	if !ok {
		return nil, fmt.Errorf("no executor for capability %q", c)
	}
	return e, nil
}
