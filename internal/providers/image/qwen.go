package image

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/providers/qwen"
)

type qwenImageClient interface {
	GenerateImage(context.Context, qwen.ImageRequest) (*qwen.ImageAsset, error)
	HasCredentials() bool
	Model() string
}

// Qwen adapts DashScope's Qwen image model to the Provider interface.
type Qwen struct {
	client qwenImageClient
}

// NewQwen wires a Qwen client.
func NewQwen(client qwenImageClient) *Qwen {
	return &Qwen{client: client}
}

func (g *Qwen) Name() string { return "qwen" }

func (g *Qwen) Configured() bool {
	return g != nil && g.client != nil && g.client.HasCredentials()
}

// Generate calls the API once and retries a transient failure with a
// simplified request.
func (g *Qwen) Generate(ctx context.Context, req Request) (Asset, error) {
	if !g.Configured() {
		return Asset{}, qwen.ErrMissingAPIKey
	}
	prompt := BuildPrompt(req)
	imageReq := qwen.ImageRequest{
		Prompt:         prompt,
		NegativePrompt: DefaultNegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		Seed:           qwenSeed(req.RequestID, req.Slot, prompt),
		RequestID:      req.RequestID,
	}
	asset, err := g.client.GenerateImage(ctx, imageReq)
	if err != nil && isTransientQwenError(err) && ctx.Err() == nil {
		asset, err = g.client.GenerateImage(ctx, simplifyQwenRequest(imageReq))
	}
	if err != nil {
		return Asset{}, err
	}
	if asset == nil || len(asset.Data) == 0 {
		return Asset{}, errors.New("qwen: empty image asset")
	}
	return Asset{
		Data:     asset.Data,
		URL:      asset.URL,
		MIME:     normalizeFormat(asset.Format),
		Width:    asset.Width,
		Height:   asset.Height,
		Provider: g.Name(),
		Metadata: map[string]string{
			"model":      g.client.Model(),
			"request_id": asset.RequestID,
		},
	}, nil
}

func qwenSeed(values ...any) int {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	n := binary.BigEndian.Uint32(sum[:4])
	value := int(n % 2147483647)
	if value <= 0 {
		fallback := binary.BigEndian.Uint32(sum[4:8]) % 2147483647
		if fallback == 0 {
			fallback = 1
		}
		value = int(fallback)
	}
	return value
}

func simplifyQwenRequest(req qwen.ImageRequest) qwen.ImageRequest {
	simplified := req
	simplified.NegativePrompt = ""
	if i := strings.IndexByte(simplified.Prompt, '\n'); i > 0 {
		simplified.Prompt = simplified.Prompt[:i]
	}
	return simplified
}

func isTransientQwenError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if msg == "" {
		return false
	}
	if strings.Contains(msg, "internalerror") || strings.Contains(msg, "internal error") {
		return true
	}
	if strings.Contains(msg, "service unavailable") || strings.Contains(msg, "server unavailable") {
		return true
	}
	return strings.Contains(msg, "timeout")
}

var _ Provider = (*Qwen)(nil)
