package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/snarkbot/snark/internal/gateway"
	"github.com/snarkbot/snark/internal/intent"
)

// maxImageBytes caps the downloaded image size.
const maxImageBytes = 8 << 20

// ImageGen generates one image and uploads it as an attachment. The
// provider hands back a short-lived URL, so the bytes are fetched and
// re-hosted on the platform rather than pasted as a link.
type ImageGen struct {
	deps Deps
}

func (e *ImageGen) Capability() intent.Capability { return intent.CapImage }

func (e *ImageGen) Execute(ctx context.Context, req *Request) (*Result, error) {
	url, err := e.deps.Models.GenerateImage(ctx, "image", req.Intent.Prompt)
	if err != nil {
		e.deps.Logger.Warn("Image generation failed", zap.Error(err))
		apology := "The image didn't come out. The paint supplier is having a moment, try again later."
		if rerr := reply(ctx, e.deps.Gateway, req.Msg, apology); rerr != nil {
			return nil, rerr
		}
		return &Result{Text: apology}, nil
	}

	data, err := download(ctx, url)
	if err != nil {
		// The URL itself still works for a while; better than nothing.
		e.deps.Logger.Warn("Image download failed, sending URL",
			zap.String("url", url), zap.Error(err))
		if rerr := reply(ctx, e.deps.Gateway, req.Msg, url); rerr != nil {
			return nil, rerr
		}
		return &Result{Text: "[generated an image]"}, nil
	}

	file := &gateway.FileUpload{
		Name: imageFilename(url),
		Data: data,
	}
	if err := e.deps.Gateway.SendFile(ctx, req.Msg.Platform, req.Msg.ChannelID, file); err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	return &Result{Text: "[generated an image]"}, nil
}

func download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("download: image exceeds %d bytes", maxImageBytes)
	}
	return data, nil
}

func imageFilename(url string) string {
	name := path.Base(strings.SplitN(url, "?", 2)[0])
	if name == "" || name == "." || name == "/" || !strings.Contains(name, ".") {
		return "image.png"
	}
	return name
}
