package tools

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

const renderTimeout = 60 * time.Second

// Renderer returns the DOM of a page after scripts have run
type Renderer interface {
	Render(ctx context.Context, url, waitSelector string) (string, error)
}

// Browser renders pages in a shared Chrome instance that is started on
// first use and kept until Close
type Browser struct {
	Headless bool

	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewBrowser(headless bool) *Browser {
	return &Browser{Headless: headless}
}

func (b *Browser) init() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return b.browserCtx, nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", b.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	if err := chromedp.Run(b.browserCtx); err != nil {
		b.cleanup()
		return nil, err
	}
	return b.browserCtx, nil
}

func (b *Browser) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
}

// Render navigates to url in a fresh tab, optionally waits for a selector
// to become visible, and returns the document's outer HTML
func (b *Browser) Render(ctx context.Context, url, waitSelector string) (string, error) {
	browserCtx, err := b.init()
	if err != nil {
		return "", executionError("failed to start browser: %w", err)
	}

	tabCtx, closeTab := chromedp.NewContext(browserCtx)
	defer closeTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, renderTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if waitSelector != "" {
		actions = append(actions, chromedp.WaitVisible(waitSelector, chromedp.ByQuery))
	}

	var html string
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return "", executionError("failed to render %s: %w", url, err)
	}
	return html, nil
}

// Close shuts the browser down
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanup()
}
