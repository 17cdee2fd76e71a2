package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/storage"
)

type stubBrowser struct {
	mu      sync.Mutex
	sizes   [][2]int
	hang    bool
	err     error
	docSeen string
}

func (b *stubBrowser) Screenshot(ctx context.Context, document string, width, height int) ([]byte, error) {
	b.mu.Lock()
	b.sizes = append(b.sizes, [2]int{width, height})
	b.docSeen = document
	b.mu.Unlock()
	if b.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if b.err != nil {
		return nil, b.err
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	return buf.Bytes(), nil
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (s *memoryStore) Upload(_ context.Context, data []byte, folder, contentType string) (storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return storage.Object{}, s.err
	}
	if s.objects == nil {
		s.objects = map[string][]byte{}
		s.types = map[string]string{}
	}
	key := storage.NewKey(folder, contentType)
	s.objects[key] = data
	s.types[key] = contentType
	return storage.Object{ID: key, URL: "https://cdn.test/" + key}, nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, id)
	return nil
}

func TestCaptureUsesFormatDimensions(t *testing.T) {
	browser := &stubBrowser{}
	store := &memoryStore{}
	c := New(browser, store)
	for _, f := range domain.AllFormats {
		preview, err := c.Capture(context.Background(), "previews/job-1", "<p>x</p>", f)
		if err != nil {
			t.Fatalf("Capture(%s) returned error: %v", f, err)
		}
		if !strings.HasPrefix(preview.ID, "previews/job-1/") || !strings.HasSuffix(preview.ID, ".png") {
			t.Fatalf("unexpected preview id %q", preview.ID)
		}
		if preview.URL != "https://cdn.test/"+preview.ID {
			t.Fatalf("unexpected preview url %q", preview.URL)
		}
	}
	want := [][2]int{{1200, 628}, {1080, 1080}, {1080, 1920}}
	for i, size := range browser.sizes {
		if size != want[i] {
			t.Fatalf("viewport %d = %v, want %v", i, size, want[i])
		}
	}
	if len(store.objects) != 3 {
		t.Fatalf("stored %d previews, want 3", len(store.objects))
	}
}

func TestCaptureTimesOut(t *testing.T) {
	c := New(&stubBrowser{hang: true}, &memoryStore{}, WithTimeout(20*time.Millisecond))
	start := time.Now()
	_, err := c.Capture(context.Background(), "previews", "<p>x</p>", domain.FormatSquare)
	if !errors.Is(err, domain.ErrCaptureFailed) {
		t.Fatalf("error = %v, want ErrCaptureFailed", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("error = %v, want timeout", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("capture did not honor timeout")
	}
}

func TestCaptureFailures(t *testing.T) {
	tests := []struct {
		name    string
		browser Browser
		store   *memoryStore
		format  domain.Format
		storage bool
	}{
		{name: "unknown format", browser: &stubBrowser{}, store: &memoryStore{}, format: "banner"},
		{name: "browser error", browser: &stubBrowser{err: errors.New("crashed")}, store: &memoryStore{}, format: domain.FormatStory},
		{name: "no browser", browser: nil, store: &memoryStore{}, format: domain.FormatStory},
		{name: "upload error", browser: &stubBrowser{}, store: &memoryStore{err: domain.ErrStorageFailure}, format: domain.FormatStory, storage: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.browser, tc.store).Capture(context.Background(), "previews", "<p/>", tc.format)
			if !errors.Is(err, domain.ErrCaptureFailed) {
				t.Fatalf("error = %v, want ErrCaptureFailed", err)
			}
			if tc.storage && !errors.Is(err, domain.ErrStorageFailure) {
				t.Fatalf("error = %v, want ErrStorageFailure in chain", err)
			}
		})
	}
}

func TestDocument(t *testing.T) {
	doc := Document("<h1>Hi</h1>", ".a{color:red}", domain.FormatStory)
	for _, want := range []string{"width:1080px;height:1920px", "<style>.a{color:red}</style>", "<body><h1>Hi</h1></body>"} {
		if !strings.Contains(doc, want) {
			t.Fatalf("document missing %q: %s", want, doc)
		}
	}
	if strings.Count(Document("<p/>", "  ", domain.FormatSquare), "<style>") != 1 {
		t.Fatal("blank style should not add a style block")
	}
}

func TestEncoderFor(t *testing.T) {
	if e, err := EncoderFor("", 0); err != nil || e.ContentType() != "image/png" {
		t.Fatalf("default encoder = %v, %v", e, err)
	}
	if e, err := EncoderFor("WEBP", 80); err != nil || e.ContentType() != "image/webp" {
		t.Fatalf("webp encoder = %v, %v", e, err)
	}
	if _, err := EncoderFor("gif", 0); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
}
