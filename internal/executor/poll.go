package executor

import (
	"context"
	"fmt"

	"github.com/snarkbot/snark/internal/gateway"
	"github.com/snarkbot/snark/internal/intent"
)

// Poll creates a platform-native poll in the triggering channel.
type Poll struct {
	deps Deps
}

func (e *Poll) Capability() intent.Capability { return intent.CapPoll }

func (e *Poll) Execute(ctx context.Context, req *Request) (*Result, error) {
	p := req.Intent.Poll
	// The router validated once; re-validate here so a hand-built intent
	// can't reach the platform malformed.
	if err := req.Intent.Validate(); err != nil {
		return nil, fmt.Errorf("poll params: %w", err)
	}
	err := e.deps.Gateway.CreatePoll(ctx, req.Msg.Platform, req.Msg.ChannelID, &gateway.PollSpec{
		Question: p.Question,
		Options:  p.Options,
		Duration: p.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("create poll: %w", err)
	}
	return &Result{Text: "Poll created: " + p.Question}, nil
}
