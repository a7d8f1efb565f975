package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RESTAdapter implements Adapter for HTTP-based message ingestion. It is a
// development surface: messages POSTed to it run the full dispatch pipeline,
// with channel history, pins, and polls kept in memory.
type RESTAdapter struct {
	handler MessageHandler
	waiters map[string]chan *OutboundMessage // messageID -> pending response
	history map[string][]*InboundMessage     // channelID -> messages
	pinned  map[string]bool                  // messageID -> pinned
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewRESTAdapter creates a REST adapter.
func NewRESTAdapter(logger *zap.Logger) *RESTAdapter {
	return &RESTAdapter{
		waiters: make(map[string]chan *OutboundMessage),
		history: make(map[string][]*InboundMessage),
		pinned:  make(map[string]bool),
		logger:  logger,
	}
}

func (a *RESTAdapter) Platform() string { return "rest" }

func (a *RESTAdapter) Connect(_ context.Context) error { return nil }

func (a *RESTAdapter) OnMessage(h MessageHandler) { a.handler = h }

func (a *RESTAdapter) BotUserID() string { return "rest-bot" }

func (a *RESTAdapter) Close() error { return nil }

// Send delivers a reply to the waiting HTTP request, if any, and records it
// in channel history.
func (a *RESTAdapter) Send(_ context.Context, msg *OutboundMessage) (string, error) {
	id := uuid.New().String()
	a.mu.Lock()
	a.history[msg.ChannelID] = append(a.history[msg.ChannelID], &InboundMessage{
		ID:        id,
		Platform:  "rest",
		ChannelID: msg.ChannelID,
		UserID:    a.BotUserID(),
		UserName:  "snark",
		Content:   msg.Content,
		FromBot:   true,
		Timestamp: time.Now(),
	})
	ch, ok := a.waiters[msg.ReplyTo]
	a.mu.Unlock()

	if ok {
		select {
		case ch <- msg:
		default:
		}
	}
	return id, nil
}

// SendFile reports the attachment as text; the REST surface has no file store.
func (a *RESTAdapter) SendFile(ctx context.Context, channelID string, file *FileUpload) error {
	content := fmt.Sprintf("[file: %s, %d bytes] %s", file.Name, len(file.Data), file.Caption)
	_, err := a.Send(ctx, &OutboundMessage{Platform: "rest", ChannelID: channelID, Content: content})
	return err
}

// CreatePoll renders the poll as text.
func (a *RESTAdapter) CreatePoll(ctx context.Context, channelID string, poll *PollSpec) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[poll] %s", poll.Question)
	for i, opt := range poll.Options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
	}
	_, err := a.Send(ctx, &OutboundMessage{Platform: "rest", ChannelID: channelID, Content: b.String()})
	return err
}

// Pin marks a message as pinned. Idempotent.
func (a *RESTAdapter) Pin(_ context.Context, _, messageID string) error {
	a.mu.Lock()
	a.pinned[messageID] = true
	a.mu.Unlock()
	return nil
}

// FetchMessage looks up a message in the in-memory history.
func (a *RESTAdapter) FetchMessage(_ context.Context, channelID, messageID string) (*InboundMessage, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, m := range a.history[channelID] {
		if m.ID == messageID {
			return m, nil
		}
	}
	return nil, fmt.Errorf("rest message %s not found", messageID)
}

// FetchHistory returns recorded channel messages after the given time.
func (a *RESTAdapter) FetchHistory(_ context.Context, channelID string, limit int, after time.Time) ([]*InboundMessage, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []*InboundMessage
	for _, m := range a.history[channelID] {
		if !after.IsZero() && m.Timestamp.Before(after) {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (a *RESTAdapter) Typing(_ context.Context, _ string) {}

// Routes returns a chi router with the REST ingestion endpoint.
func (a *RESTAdapter) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/message", a.handleMessage)
	return r
}

// handleMessage accepts an inbound message via HTTP and waits for the reply.
func (a *RESTAdapter) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		UserName  string `json:"user_name"`
		ChannelID string `json:"channel_id"`
		ReplyToID string `json:"reply_to_id"`
		Content   string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, `{"error":"content is required"}`, http.StatusBadRequest)
		return
	}
	if req.ChannelID == "" {
		req.ChannelID = "rest-" + uuid.New().String()
	}

	msg := &InboundMessage{
		ID:          uuid.New().String(),
		Platform:    "rest",
		ChannelID:   req.ChannelID,
		ChannelName: "snark-rest",
		UserID:      req.UserID,
		UserName:    req.UserName,
		Content:     req.Content,
		ReplyToID:   req.ReplyToID,
		BotMention:  true,
		Timestamp:   time.Now(),
	}

	ch := make(chan *OutboundMessage, 1)
	a.mu.Lock()
	a.waiters[msg.ID] = ch
	a.history[req.ChannelID] = append(a.history[req.ChannelID], msg)
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.waiters, msg.ID)
		a.mu.Unlock()
	}()

	if a.handler != nil {
		a.handler(msg)
	}

	select {
	case reply := <-ch:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"channel_id": req.ChannelID,
			"message_id": msg.ID,
			"content":    reply.Content,
		})
	case <-time.After(60 * time.Second):
		http.Error(w, `{"error":"response timeout"}`, http.StatusGatewayTimeout)
	case <-r.Context().Done():
	}
}
