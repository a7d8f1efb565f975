package rag

import (
	"context"

	"github.com/snarkbot/snark/internal/intent"
)

// Adapter bridges the Index to the dispatcher's retriever interface,
// converting Results into prompt excerpts.
type Adapter struct {
	inner *Index
}

// NewAdapter wraps an Index.
func NewAdapter(x *Index) *Adapter {
	return &Adapter{inner: x}
}

// Retrieve delegates to the Index and converts its results.
func (a *Adapter) Retrieve(ctx context.Context, query string, excludeIDs []string, limit int) ([]intent.Excerpt, error) {
	results, err := a.inner.Retrieve(ctx, query, excludeIDs, limit)
	if err != nil {
		return nil, err
	}
	out := make([]intent.Excerpt, len(results))
	for i, r := range results {
		out[i] = intent.Excerpt{
			Channel: r.Channel,
			Author:  r.Author,
			Content: r.Content,
		}
	}
	return out, nil
}
