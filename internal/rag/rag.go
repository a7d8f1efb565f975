// Package rag indexes every message the bot can see and retrieves the
// ones semantically close to the current exchange.
package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snarkbot/snark/internal/embedding"
	"github.com/snarkbot/snark/internal/vectorstore"
)

const collMessages = "messages"

// minScore drops low-relevance hits; cosine similarity below this is noise.
const minScore float32 = 0.25

// Index embeds messages into a Qdrant collection and searches it.
type Index struct {
	embedder embedding.Provider
	qdrant   *vectorstore.Client
	logger   *zap.Logger
}

// New creates a message index.
func New(embedder embedding.Provider, qdrant *vectorstore.Client, logger *zap.Logger) *Index {
	return &Index{embedder: embedder, qdrant: qdrant, logger: logger}
}

// Init ensures the message collection exists.
func (x *Index) Init(ctx context.Context) error {
	dim := uint64(x.embedder.Dimension())
	if dim == 0 {
		dim = 1024
	}
	if err := x.qdrant.EnsureCollection(ctx, collMessages, dim); err != nil {
		return fmt.Errorf("init collection %s: %w", collMessages, err)
	}
	return nil
}

// Result is one retrieved message.
type Result struct {
	MessageID string
	Content   string
	Author    string
	Channel   string
	Score     float32
}

// Store embeds and upserts one message. Re-sending the same message id
// overwrites the same point, so indexing is idempotent.
func (x *Index) Store(ctx context.Context, id, content, author, channel string, ts time.Time) error {
	if len(content) < 3 {
		return nil
	}
	vectors, err := x.embedder.Embed(ctx, []string{content})
	if err != nil {
		return fmt.Errorf("embed message: %w", err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("empty embedding result")
	}

	payload := map[string]string{
		"message_id": id,
		"content":    content,
		"author":     author,
		"channel":    channel,
		"timestamp":  ts.UTC().Format(time.RFC3339),
	}
	return x.qdrant.Upsert(ctx, collMessages, pointID(id), vectors[0], payload)
}

// Retrieve returns the messages most relevant to the query, skipping the
// ones whose ids are already in the conversation.
func (x *Index) Retrieve(ctx context.Context, query string, excludeIDs []string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 5
	}
	vectors, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	exclude := make([]string, len(excludeIDs))
	for i, id := range excludeIDs {
		exclude[i] = pointID(id)
	}
	hits, err := x.qdrant.Search(ctx, collMessages, vectors[0], uint64(limit), &vectorstore.SearchOptions{
		ExcludeIDs:     exclude,
		ScoreThreshold: minScore,
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collMessages, err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			MessageID: h.Payload["message_id"],
			Content:   h.Payload["content"],
			Author:    h.Payload["author"],
			Channel:   h.Payload["channel"],
			Score:     h.Score,
		})
	}
	x.logger.Debug("retrieval complete",
		zap.Int("hits", len(results)),
		zap.Int("excluded", len(excludeIDs)))
	return results, nil
}

// pointID derives a stable Qdrant point id from a platform message id.
func pointID(messageID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(messageID)).String()
}
