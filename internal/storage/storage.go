package storage

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Object identifies a stored blob.
type Object struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Store is the durable storage boundary used by the pipeline.
type Store interface {
	Upload(ctx context.Context, data []byte, folder, contentType string) (Object, error)
	Delete(ctx context.Context, id string) error
}

// Reader fetches stored objects back by id.
type Reader interface {
	Read(ctx context.Context, id string) ([]byte, error)
}

var extensions = map[string]string{
	"image/png":        ".png",
	"image/webp":       ".webp",
	"image/jpeg":       ".jpg",
	"text/html":        ".html",
	"text/css":         ".css",
	"application/json": ".json",
}

// ExtensionFor maps a content type to a file extension.
func ExtensionFor(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ext, ok := extensions[ct]; ok {
		return ext
	}
	return ".bin"
}

// NewKey builds a unique object key inside folder.
func NewKey(folder, contentType string) string {
	name := uuid.NewString() + ExtensionFor(contentType)
	folder = strings.Trim(strings.ReplaceAll(folder, "\\", "/"), "/")
	if folder == "" {
		return name
	}
	return path.Join(folder, name)
}
