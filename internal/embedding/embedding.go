package embedding

import "context"

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// maxInputChars bounds a single embedding input. Longer messages are cut;
// the head of a message carries the topical signal.
const maxInputChars = 4000

func clampAll(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		if len(t) > maxInputChars {
			t = t[:maxInputChars]
		}
		out[i] = t
	}
	return out
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string `json:"provider"`  // "api" or "local"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}
