package executor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/snarkbot/snark/internal/gateway"
	"github.com/snarkbot/snark/internal/intent"
	"github.com/snarkbot/snark/internal/provider"
)

// Renderer turns a written document body into an uploadable file.
// The shipped renderer emits Markdown; slide and sheet writers plug in
// behind the same interface.
type Renderer interface {
	Render(kind, topic, body string) (*gateway.FileUpload, error)
}

// MarkdownRenderer writes the document as a Markdown file.
type MarkdownRenderer struct{}

func (MarkdownRenderer) Render(kind, topic, body string) (*gateway.FileUpload, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", topic)
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteByte('\n')
	}
	return &gateway.FileUpload{
		Name: docFilename(kind, topic),
		Data: []byte(b.String()),
	}, nil
}

func docFilename(kind, topic string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ', r == '-', r == '_':
			return '-'
		}
		return -1
	}, topic)
	slug = strings.Trim(slug, "-")
	if len(slug) > 40 {
		slug = slug[:40]
	}
	if slug == "" {
		slug = kind
	}
	return slug + ".md"
}

// DocumentGen writes a structured document, optionally backed by a web
// research pass, and uploads the rendered file. Any failure ends in a
// text apology; a half-written file never ships.
type DocumentGen struct {
	deps     Deps
	search   *WebSearch
	renderer Renderer
}

func (e *DocumentGen) Capability() intent.Capability { return intent.CapDocument }

func (e *DocumentGen) Execute(ctx context.Context, req *Request) (*Result, error) {
	p := req.Intent.Document

	var research string
	if p.Research {
		text, err := e.search.run(ctx, &Request{
			Msg: req.Msg,
			Messages: []provider.Message{
				{Role: "user", Content: "Research current information on: " + p.Topic},
			},
		})
		if err != nil {
			// Write from training data instead of failing the document.
			e.deps.Logger.Warn("Document research failed, writing without it",
				zap.String("topic", p.Topic), zap.Error(err))
		} else {
			research = text
		}
	}

	body, err := e.write(ctx, p, research)
	if err != nil {
		e.deps.Logger.Warn("Document generation failed", zap.Error(err))
		apology := "The document fell apart mid-draft. Give it another go in a minute."
		if rerr := reply(ctx, e.deps.Gateway, req.Msg, apology); rerr != nil {
			return nil, rerr
		}
		return &Result{Text: apology}, nil
	}

	file, err := e.renderer.Render(p.Kind, p.Topic, body)
	if err != nil {
		return nil, fmt.Errorf("render document: %w", err)
	}
	if p.Filename != "" {
		file.Name = p.Filename
	}
	file.Caption = fmt.Sprintf("Here's your %s on %s.", p.Kind, p.Topic)
	if err := e.deps.Gateway.SendFile(ctx, req.Msg.Platform, req.Msg.ChannelID, file); err != nil {
		return nil, fmt.Errorf("upload document: %w", err)
	}
	return &Result{Text: file.Caption}, nil
}

func (e *DocumentGen) write(ctx context.Context, p intent.DocumentParams, research string) (string, error) {
	var prompt strings.Builder
	switch p.Kind {
	case "slides":
		fmt.Fprintf(&prompt, "Write a slide-by-slide outline for a presentation on %q. One '## Slide N: title' heading per slide with insightful prose points under it, not lazy bullet fragments.", p.Topic)
	case "sheet":
		fmt.Fprintf(&prompt, "Write a structured reference sheet on %q using Markdown tables and short sections.", p.Topic)
	default:
		fmt.Fprintf(&prompt, "Write a well-structured brief on %q with Markdown section headings.", p.Topic)
	}
	if research != "" {
		fmt.Fprintf(&prompt, "\n\nBase it on this research:\n%s", research)
	}

	resp, err := e.deps.Models.Chat(ctx, "decide", &provider.ChatRequest{
		Messages: []provider.Message{{Role: "user", Content: prompt.String()}},
	})
	if err != nil {
		return "", err
	}
	if resp.Content == "" {
		return "", fmt.Errorf("empty document body")
	}
	return resp.Content, nil
}
