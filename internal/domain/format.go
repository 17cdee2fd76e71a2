package domain

import (
	"fmt"
	"strings"
)

// Format names a target aspect ratio for a creative.
type Format string

const (
	FormatLandscape Format = "landscape"
	FormatSquare    Format = "square"
	FormatStory     Format = "story"
)

// FormatSpec holds the authoritative pixel size of a format together with the
// heading length limit used by the validator.
type FormatSpec struct {
	Format        Format
	Width         int
	Height        int
	HeadlineLimit int
}

// Formats is the single dimension table shared by the renderer, the validator
// and the preview capturer.
var Formats = map[Format]FormatSpec{
	FormatLandscape: {Format: FormatLandscape, Width: 1200, Height: 628, HeadlineLimit: 150},
	FormatSquare:    {Format: FormatSquare, Width: 1080, Height: 1080, HeadlineLimit: 125},
	FormatStory:     {Format: FormatStory, Width: 1080, Height: 1920, HeadlineLimit: 100},
}

// AllFormats lists the supported formats in a stable order.
var AllFormats = []Format{FormatLandscape, FormatSquare, FormatStory}

// Spec returns the table entry for the format.
func (f Format) Spec() (FormatSpec, bool) {
	spec, ok := Formats[f]
	return spec, ok
}

// Valid reports whether the format is part of the dimension table.
func (f Format) Valid() bool {
	_, ok := Formats[f]
	return ok
}

// Dimensions returns width and height in pixels for the format.
func Dimensions(f Format) (int, int, bool) {
	spec, ok := Formats[f]
	if !ok {
		return 0, 0, false
	}
	return spec.Width, spec.Height, true
}

// ParseFormat normalizes user input into a known format.
func ParseFormat(raw string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(raw)))
	if !f.Valid() {
		return "", fmt.Errorf("unknown format %q", raw)
	}
	return f, nil
}
