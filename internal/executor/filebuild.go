package executor

import (
	"context"
	"fmt"

	"github.com/snarkbot/snark/internal/gateway"
	"github.com/snarkbot/snark/internal/intent"
)

// FileBuild ships a model-authored text file as a single attachment.
type FileBuild struct {
	deps Deps
}

func (e *FileBuild) Capability() intent.Capability { return intent.CapFile }

func (e *FileBuild) Execute(ctx context.Context, req *Request) (*Result, error) {
	p := req.Intent.File
	caption := p.Description
	if caption == "" {
		caption = fmt.Sprintf("Here's `%s`:", p.Filename)
	}
	file := &gateway.FileUpload{
		Name:    p.Filename,
		Data:    []byte(p.Content),
		Caption: caption,
	}
	if err := e.deps.Gateway.SendFile(ctx, req.Msg.Platform, req.Msg.ChannelID, file); err != nil {
		return nil, fmt.Errorf("upload file %s: %w", p.Filename, err)
	}
	return &Result{Text: caption}, nil
}
