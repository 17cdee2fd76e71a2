package capture

import (
	"bytes"
	"fmt"
	"image/png"
	"strings"

	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

// Encoder converts a PNG screenshot into the stored preview format.
type Encoder interface {
	Encode(pngData []byte) ([]byte, error)
	ContentType() string
}

// PNG stores screenshots unchanged.
type PNG struct{}

func (PNG) Encode(pngData []byte) ([]byte, error) { return pngData, nil }
func (PNG) ContentType() string                  { return "image/png" }

// WebP re-encodes screenshots as lossy WebP.
type WebP struct {
	Quality float32
}

func (w WebP) Encode(pngData []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("capture: decode png: %w", err)
	}
	quality := w.Quality
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return nil, fmt.Errorf("capture: webp options: %w", err)
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, options); err != nil {
		return nil, fmt.Errorf("capture: encode webp: %w", err)
	}
	return buf.Bytes(), nil
}

func (WebP) ContentType() string { return "image/webp" }

// EncoderFor maps a configured encoding name to an Encoder.
func EncoderFor(name string, quality int) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "png":
		return PNG{}, nil
	case "webp":
		return WebP{Quality: float32(quality)}, nil
	default:
		return nil, fmt.Errorf("capture: unknown encoding %q", name)
	}
}
