package executor

import (
	"context"

	"go.uber.org/zap"

	"github.com/snarkbot/snark/internal/intent"
)

// Pin pins the triggering message. Already-pinned is success: pinning
// twice is a no-op, not a failure.
type Pin struct {
	deps Deps
}

func (e *Pin) Capability() intent.Capability { return intent.CapPin }

func (e *Pin) Execute(ctx context.Context, req *Request) (*Result, error) {
	if err := e.deps.Gateway.Pin(ctx, req.Msg.Platform, req.Msg.ChannelID, req.Msg.ID); err != nil {
		e.deps.Logger.Warn("Pin failed", zap.String("message", req.Msg.ID), zap.Error(err))
		apology := "Tried to pin that and the platform said no."
		if rerr := reply(ctx, e.deps.Gateway, req.Msg, apology); rerr != nil {
			return nil, rerr
		}
		return &Result{Text: apology}, nil
	}
	text := "Pinned. That one's going on the fridge."
	if err := reply(ctx, e.deps.Gateway, req.Msg, text); err != nil {
		return nil, err
	}
	return &Result{Text: text}, nil
}
