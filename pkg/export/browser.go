package export

import (
	"context"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	errs "wxexport/pkg/errors"
	"wxexport/pkg/logger"
)

// Browser is a live headless browser able to print a page to PDF
type Browser interface {
	PrintPDF(ctx context.Context, pageURL string) ([]byte, error)
	Close() error
}

// LaunchFunc starts a Browser
type LaunchFunc func(ctx context.Context) (Browser, error)

// BrowserOptions configures the Chrome process
type BrowserOptions struct {
	ExecPath  string
	Headless  bool
	NoSandbox bool
}

// BrowserManager owns the single process-wide browser. Only one render
// runs at a time; a failed render discards the browser and the next
// caller launches a fresh one.
type BrowserManager struct {
	mu      sync.Mutex
	launch  LaunchFunc
	browser Browser
	timeout time.Duration
	logger  logger.Logger

	launches int
}

// NewBrowserManager creates a manager. The browser is started lazily on
// first use. A nil launch uses headless Chrome via chromedp.
func NewBrowserManager(launch LaunchFunc, timeout time.Duration, log logger.Logger) *BrowserManager {
	if launch == nil {
		launch = ChromeLauncher(BrowserOptions{Headless: true, NoSandbox: true})
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &BrowserManager{launch: launch, timeout: timeout, logger: log.WithField("component", "browser")}
}

// WithBrowser runs fn with exclusive access to the browser
func (m *BrowserManager) WithBrowser(ctx context.Context, fn func(Browser) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		b, err := m.launch(ctx)
		if err != nil {
			return errs.Wrap(errs.ErrorTypeRender, err, "failed to launch browser")
		}
		m.browser = b
		m.launches++
		m.logger.DebugWithFields("browser launched", map[string]interface{}{"launches": m.launches})
	}

	if err := fn(m.browser); err != nil {
		m.logger.WithError(err).Warn("render failed, discarding browser")
		m.resetLocked()
		return err
	}
	return nil
}

// RenderPDF loads the local HTML file and prints it: portrait, with
// backgrounds, page size taken from the document's CSS, no header/footer.
func (m *BrowserManager) RenderPDF(ctx context.Context, htmlPath string) ([]byte, error) {
	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeFilesystem, err, "failed to resolve %s", htmlPath)
	}
	fileURL := (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()

	var pdf []byte
	err = m.WithBrowser(ctx, func(b Browser) error {
		rctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()

		out, err := b.PrintPDF(rctx, fileURL)
		if err != nil {
			return errs.Wrap(errs.ErrorTypeRender, err, "print to PDF failed")
		}
		pdf = out
		return nil
	})
	return pdf, err
}

// Close shuts the browser down if one is running
func (m *BrowserManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser == nil {
		return nil
	}
	err := m.browser.Close()
	m.browser = nil
	return err
}

// Launches reports how many browsers have been started
func (m *BrowserManager) Launches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.launches
}

func (m *BrowserManager) resetLocked() {
	if m.browser == nil {
		return
	}
	if err := m.browser.Close(); err != nil {
		m.logger.WithError(err).Debug("browser close failed")
	}
	m.browser = nil
}

// chromeBrowser is a chromedp-driven Chrome process
type chromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// ChromeLauncher returns a LaunchFunc that starts Chrome with chromedp
func ChromeLauncher(opts BrowserOptions) LaunchFunc {
	return func(ctx context.Context) (Browser, error) {
		allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		allocOpts = append(allocOpts,
			chromedp.Flag("headless", opts.Headless),
			chromedp.DisableGPU,
			chromedp.Flag("allow-file-access-from-files", true),
		)
		if opts.NoSandbox {
			allocOpts = append(allocOpts, chromedp.NoSandbox)
		}
		if opts.ExecPath != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
		}

		// The browser outlives the caller's context; it is torn down by Close.
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
		bctx, cancel := chromedp.NewContext(allocCtx)

		started := make(chan error, 1)
		go func() { started <- chromedp.Run(bctx) }()
		select {
		case err := <-started:
			if err != nil {
				cancel()
				allocCancel()
				return nil, err
			}
		case <-ctx.Done():
			cancel()
			allocCancel()
			return nil, ctx.Err()
		}

		return &chromeBrowser{ctx: bctx, cancel: cancel, allocCancel: allocCancel}, nil
	}
}

func (b *chromeBrowser) PrintPDF(ctx context.Context, pageURL string) ([]byte, error) {
	tabCtx, cancel := chromedp.NewContext(b.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var pdf []byte
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithLandscape(false).
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				WithDisplayHeaderFooter(false).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return pdf, nil
}

func (b *chromeBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.allocCancel()
	return err
}
