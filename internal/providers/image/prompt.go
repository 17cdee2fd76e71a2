package image

import (
	"fmt"
	"strings"
)

// DefaultNegativePrompt captures undesirable artefacts we want the model to avoid.
const DefaultNegativePrompt = "low quality, blurry, distorted, washed out, text artefacts, watermark"

// BuildPrompt turns a slot directive into an instruction for text-to-image
// models. The aspect is spelled out because not every provider accepts a size.
func BuildPrompt(req Request) string {
	var lines []string
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = "A clean product marketing visual."
	}
	lines = append(lines, prompt)
	if style := strings.TrimSpace(req.Style); style != "" {
		lines = append(lines, fmt.Sprintf("Visual style: %s.", style))
	}
	if req.Width > 0 && req.Height > 0 {
		lines = append(lines, fmt.Sprintf("Compose for a %s frame (%dx%d pixels).", orientation(req.Width, req.Height), req.Width, req.Height))
	}
	if slot := strings.TrimSpace(req.Slot); slot != "" {
		lines = append(lines, fmt.Sprintf("The image is used as the %s of an advertisement.", strings.ReplaceAll(slot, "_", " ")))
	}
	lines = append(lines, "Do not render any text, captions or logos in the image.")
	return strings.Join(lines, "\n")
}

func orientation(width, height int) string {
	switch {
	case width > height:
		return "landscape"
	case height > width:
		return "portrait"
	default:
		return "square"
	}
}
