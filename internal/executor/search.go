package executor

import (
	"context"

	"go.uber.org/zap"

	"github.com/snarkbot/snark/internal/intent"
	"github.com/snarkbot/snark/internal/provider"
)

// WebSearch answers with live web access through the provider's search
// endpoint. Provider failure degrades to an honest "couldn't look it up"
// reply instead of an error: stale conversation beats silence.
type WebSearch struct {
	deps Deps
}

func (e *WebSearch) Capability() intent.Capability { return intent.CapSearch }

func (e *WebSearch) Execute(ctx context.Context, req *Request) (*Result, error) {
	text, err := e.run(ctx, req)
	if err != nil {
		e.deps.Logger.Warn("Web search failed", zap.Error(err))
		text = "I couldn't reach anything current on that. Ask again in a bit, or settle for my training data."
	}
	if err := reply(ctx, e.deps.Gateway, req.Msg, text); err != nil {
		return nil, err
	}
	return &Result{Text: text}, nil
}

// run performs the search without delivering, so other executors can
// compose it.
func (e *WebSearch) run(ctx context.Context, req *Request) (string, error) {
	text, err := e.deps.Models.Search(ctx, "search", &provider.SearchRequest{
		Messages: req.Messages,
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		text = "No results found."
	}
	return text, nil
}
