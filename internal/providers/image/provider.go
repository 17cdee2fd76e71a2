package image

import (
	"context"
	"strings"
)

// Request describes one image slot to produce.
type Request struct {
	Slot      string
	Prompt    string
	Style     string
	Width     int
	Height    int
	RequestID string
}

// Asset is a generated image as returned by a provider.
type Asset struct {
	Data     []byte
	URL      string
	MIME     string
	Width    int
	Height   int
	Provider string
	Metadata map[string]string
}

// Provider generates images from a prompt.
type Provider interface {
	Name() string
	// Configured reports whether the provider has the credentials it needs.
	Configured() bool
	Generate(ctx context.Context, req Request) (Asset, error)
}

func normalizeFormat(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/jpeg", "image/jpg":
		return "image/jpeg"
	case "image/png":
		return "image/png"
	default:
		if strings.HasPrefix(mime, "image/") {
			return mime
		}
		return "image/png"
	}
}
