package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Browser renders a document in a viewport of the given size and returns a
// PNG screenshot.
type Browser interface {
	Screenshot(ctx context.Context, document string, width, height int) ([]byte, error)
}

// ChromeOptions configures the headless Chrome browser.
type ChromeOptions struct {
	ExecPath string
	// Settle is how long to wait after the document loads before the
	// screenshot. Fonts and remote images get this long to arrive.
	Settle time.Duration
	NoSandbox bool
}

// Chrome drives one headless Chrome process. Each screenshot runs in its own
// tab so concurrent captures do not share page state.
type Chrome struct {
	cancelAlloc context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	settle      time.Duration
	closeOnce   sync.Once
}

// NewChrome starts the browser process.
func NewChrome(opts ChromeOptions) (*Chrome, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
	)
	if path := strings.TrimSpace(opts.ExecPath); path != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(path))
	}
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		cancelAlloc()
		return nil, fmt.Errorf("capture: start chrome: %w", err)
	}
	settle := opts.Settle
	if settle < 0 {
		settle = 0
	}
	return &Chrome{
		cancelAlloc: cancelAlloc,
		browserCtx:  browserCtx,
		cancel:      cancel,
		settle:      settle,
	}, nil
}

// Screenshot loads document into a fresh tab sized width x height.
func (c *Chrome) Screenshot(ctx context.Context, document string, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("capture: viewport size must be positive")
	}
	tabCtx, cancelTab := chromedp.NewContext(c.browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var buf []byte
	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, document).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(c.settle),
		chromedp.CaptureScreenshot(&buf),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("capture: chrome: %w", err)
	}
	return buf, nil
}

// Close terminates the browser process.
func (c *Chrome) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.cancelAlloc()
	})
}

var _ Browser = (*Chrome)(nil)
