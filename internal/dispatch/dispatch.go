// Package dispatch drives one inbound message from arrival to delivery:
// gate, context, routing, cooldown, execution. One goroutine per message;
// messages from the same user in the same channel run in order.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/snarkbot/snark/internal/convo"
	"github.com/snarkbot/snark/internal/cooldown"
	"github.com/snarkbot/snark/internal/executor"
	"github.com/snarkbot/snark/internal/gateway"
	"github.com/snarkbot/snark/internal/intent"
	"github.com/snarkbot/snark/internal/memory"
)

// state names the stages a dispatch moves through, for logging.
type state string

const (
	stateReceived        state = "received"
	stateGateChecked     state = "gate_checked"
	stateContextBuilt    state = "context_built"
	stateRouted          state = "routed"
	stateCooldownChecked state = "cooldown_checked"
	stateExecuting       state = "executing"
	stateDelivered       state = "delivered"
	stateDropped         state = "dropped"
)

// Indexer receives every inbound message for semantic retrieval.
type Indexer interface {
	Store(ctx context.Context, id, content, author, channel string, ts time.Time) error
}

// Config tunes the dispatcher.
type Config struct {
	Cooldowns       map[intent.Capability]time.Duration
	RefundOnFailure bool
	CallTimeout     time.Duration // per external call
	AmbientLines    int
}

// Dispatcher wires the pipeline together.
type Dispatcher struct {
	gw       *gateway.Gateway
	gate     *intent.Gate
	recon    *convo.Reconstructor
	router   *intent.Router
	registry *executor.Registry
	ledger   cooldown.Ledger
	mem      *memory.Memory
	cache    *memory.ContextCache
	index    Indexer
	retr     executor.Retriever
	cfg      Config
	locks    *keyedMutex
	logger   *zap.Logger
}

// New creates a Dispatcher. index, retr and cache may be nil; the
// pipeline then runs without retrieval or the channel cache.
func New(gw *gateway.Gateway, gate *intent.Gate, recon *convo.Reconstructor,
	router *intent.Router, registry *executor.Registry, ledger cooldown.Ledger,
	mem *memory.Memory, cache *memory.ContextCache, index Indexer,
	retr executor.Retriever, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 120 * time.Second
	}
	if cfg.AmbientLines <= 0 {
		cfg.AmbientLines = 3
	}
	return &Dispatcher{
		gw: gw, gate: gate, recon: recon, router: router, registry: registry,
		ledger: ledger, mem: mem, cache: cache, index: index, retr: retr,
		cfg: cfg, locks: newKeyedMutex(), logger: logger,
	}
}

// Handle is the gateway message handler. It records the message for
// retrieval and context regardless of the gate, then dispatches engaged
// messages on their own goroutine.
func (d *Dispatcher) Handle(msg *gateway.InboundMessage) {
	if msg.FromBot {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.CallTimeout)
	d.record(ctx, msg)
	cancel()

	replyToBot := d.isReplyToBot(msg)
	if !d.gate.Allow(msg.ChannelName, msg.BotMention, replyToBot) {
		d.logger.Debug("Message dropped at gate",
			zap.String("channel", msg.ChannelName),
			zap.String("state", string(stateDropped)))
		return
	}

	go d.dispatch(msg)
}

// record stores every message, engaged or not, into the retrieval index
// and the channel context cache.
func (d *Dispatcher) record(ctx context.Context, msg *gateway.InboundMessage) {
	if msg.Content == "" {
		return
	}
	if d.index != nil {
		if err := d.index.Store(ctx, msg.ID, msg.Content, msg.UserName, msg.ChannelName, msg.Timestamp); err != nil {
			d.logger.Warn("Message indexing failed", zap.String("message", msg.ID), zap.Error(err))
		}
	}
	if d.cache != nil {
		d.cache.Append(ctx, msg.ChannelID, convo.Turn{
			MessageID: msg.ID,
			Speaker:   msg.UserName,
			UserID:    msg.UserID,
			Text:      msg.Content,
			FromBot:   false,
			Timestamp: msg.Timestamp,
		})
	}
}

func (d *Dispatcher) isReplyToBot(msg *gateway.InboundMessage) bool {
	if msg.ReplyToID == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	parent, err := d.gw.FetchMessage(ctx, msg.Platform, msg.ChannelID, msg.ReplyToID)
	if err != nil {
		return false
	}
	return parent.FromBot || parent.UserID == d.gw.BotUserID(msg.Platform)
}

// dispatch runs the state machine for one engaged message. It never
// panics out and always delivers exactly one outcome.
func (d *Dispatcher) dispatch(msg *gateway.InboundMessage) {
	key := msg.ChannelID + "/" + msg.UserID
	d.locks.Lock(key)
	defer d.locks.Unlock(key)

	log := d.logger.With(
		zap.String("message", msg.ID),
		zap.String("platform", msg.Platform),
		zap.String("user", msg.UserID))
	log.Info("Dispatching", zap.String("state", string(stateReceived)))

	delivered := false
	defer func() {
		if r := recover(); r != nil {
			log.Error("Dispatch panicked", zap.Any("panic", r))
			if !delivered {
				d.apologize(msg, "Something broke on my end. Give it another shot.")
			}
		}
	}()

	root := context.Background()
	d.gw.Typing(root, msg.Platform, msg.ChannelID)

	// Context reconstruction.
	ctx, cancel := context.WithTimeout(root, d.cfg.CallTimeout)
	conv, chainIDs, err := d.recon.Build(ctx, msg)
	cancel()
	if err != nil {
		log.Warn("Context reconstruction failed, using the message alone", zap.Error(err))
		conv = convo.Conversation{convoTurn(msg)}
		chainIDs = []string{msg.ID}
	}
	log.Debug("Context built",
		zap.String("state", string(stateContextBuilt)),
		zap.Int("turns", len(conv)))

	prompt := d.buildPrompt(root, msg, conv, chainIDs)

	// Routing.
	ctx, cancel = context.WithTimeout(root, d.cfg.CallTimeout)
	in, err := d.router.Route(ctx, conv, prompt)
	cancel()
	if err != nil {
		log.Warn("Routing failed", zap.Error(err))
		d.apologize(msg, "The thinking half of me is unreachable right now. Try again in a bit.")
		delivered = true
		return
	}
	log.Info("Routed",
		zap.String("state", string(stateRouted)),
		zap.String("capability", string(in.Capability)))

	// Cooldown: checked after routing because the capability determines
	// the window. Uncooled capabilities never touch the ledger.
	window := d.cfg.Cooldowns[in.Capability]
	if window > 0 {
		ctx, cancel = context.WithTimeout(root, 10*time.Second)
		decision, err := d.ledger.CheckAndReserve(ctx, msg.UserID, string(in.Capability), window)
		cancel()
		switch {
		case err != nil:
			// A broken ledger must not take the bot down with it.
			log.Error("Cooldown ledger unavailable, admitting", zap.Error(err))
		case !decision.Admitted:
			log.Info("Rejected by cooldown",
				zap.String("state", string(stateCooldownChecked)),
				zap.Duration("remaining", decision.Remaining))
			d.apologize(msg, cooldownNotice(in.Capability, decision.Remaining))
			delivered = true
			return
		}
	}

	// Execution.
	exec, err := d.registry.For(in.Capability)
	if err != nil {
		log.Error("No executor", zap.Error(err))
		d.apologize(msg, "I decided to do something I apparently can't do. Embarrassing.")
		delivered = true
		return
	}
	log.Debug("Executing", zap.String("state", string(stateExecuting)))

	req := &executor.Request{
		Msg:          msg,
		Intent:       in,
		Conversation: conv,
		Messages:     d.router.Messages(conv, prompt),
		ExcludeIDs:   chainIDs,
	}
	ctx, cancel = context.WithTimeout(root, d.cfg.CallTimeout)
	res, err := exec.Execute(ctx, req)
	cancel()
	if err != nil {
		log.Error("Execution failed", zap.String("capability", string(in.Capability)), zap.Error(err))
		if d.cfg.RefundOnFailure && window > 0 {
			rctx, rcancel := context.WithTimeout(root, 10*time.Second)
			if rerr := d.ledger.Release(rctx, msg.UserID, string(in.Capability)); rerr != nil {
				log.Warn("Cooldown refund failed", zap.Error(rerr))
			}
			rcancel()
		}
		d.apologize(msg, "That didn't work out. Try again in a minute.")
		delivered = true
		return
	}
	delivered = true

	if d.cache != nil && res.Text != "" {
		cctx, ccancel := context.WithTimeout(root, 10*time.Second)
		d.cache.Append(cctx, msg.ChannelID, convo.Turn{
			Speaker:   "snark",
			Text:      res.Text,
			FromBot:   true,
			Timestamp: time.Now(),
		})
		ccancel()
	}
	log.Info("Delivered", zap.String("state", string(stateDelivered)))
}

// buildPrompt gathers everything the router folds into the system prompt:
// speaker facts, referenced users, retrieved excerpts, ambient activity.
// Each lookup degrades independently.
func (d *Dispatcher) buildPrompt(root context.Context, msg *gateway.InboundMessage, conv convo.Conversation, chainIDs []string) intent.Prompt {
	ctx, cancel := context.WithTimeout(root, 15*time.Second)
	defer cancel()

	p := intent.Prompt{SpeakerName: msg.UserName}
	p.SpeakerNotes = d.mem.Notes(ctx, msg.UserID)
	p.Referenced = d.mem.ReferencedUsers(ctx, conv.Text(), msg.UserID, msg.Mentions)

	if d.retr != nil {
		excerpts, err := d.retr.Retrieve(ctx, msg.Content, chainIDs, 5)
		if err != nil {
			d.logger.Warn("Retrieval failed", zap.Error(err))
		} else {
			p.Excerpts = excerpts
		}
	}

	p.Ambient = d.ambient(ctx, msg)
	return p
}

// ambient pulls a few recent lines from other users in the channel.
func (d *Dispatcher) ambient(ctx context.Context, msg *gateway.InboundMessage) []string {
	if d.cache == nil {
		return nil
	}
	turns, err := d.cache.Recent(ctx, msg.ChannelID, 10)
	if err != nil {
		return nil
	}
	var lines []string
	for _, t := range turns {
		if t.FromBot || t.UserID == msg.UserID || t.Text == "" {
			continue
		}
		lines = append(lines, t.Speaker+": "+t.Text)
	}
	if len(lines) > d.cfg.AmbientLines {
		lines = lines[len(lines)-d.cfg.AmbientLines:]
	}
	return lines
}

// apologize sends a failure notice, best effort.
func (d *Dispatcher) apologize(msg *gateway.InboundMessage, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_, err := d.gw.Send(ctx, &gateway.OutboundMessage{
		Platform:  msg.Platform,
		ChannelID: msg.ChannelID,
		Content:   text,
		ReplyTo:   msg.ID,
	})
	if err != nil {
		d.logger.Error("Failed to deliver notice", zap.String("message", msg.ID), zap.Error(err))
	}
}

func cooldownNotice(c intent.Capability, remaining time.Duration) string {
	remaining = remaining.Round(time.Second)
	m := int(remaining.Minutes())
	s := int(remaining.Seconds()) % 60
	name := strings.ToUpper(string(c[:1])) + string(c[1:])
	return fmt.Sprintf("%s cooldown. Try again in %dm %ds.", name, m, s)
}

func convoTurn(msg *gateway.InboundMessage) convo.Turn {
	return convo.Turn{
		MessageID: msg.ID,
		Speaker:   msg.UserName,
		UserID:    msg.UserID,
		Text:      msg.Content,
		FromBot:   false,
		Timestamp: msg.Timestamp,
	}
}
