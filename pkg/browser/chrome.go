package browser

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"assetgrab/pkg/behavior"
)

// maskAutomationScript hides the usual automation fingerprints before any
// page script runs
const maskAutomationScript = `
Object.defineProperty(navigator, 'webdriver', {
	get: () => false,
});
Object.defineProperty(navigator, 'plugins', {
	get: () => [1, 2, 3, 4, 5],
});
Object.defineProperty(navigator, 'languages', {
	get: () => ['en-US', 'en'],
});
window.chrome = { runtime: {} };
`

// Options configures a Chrome session
type Options struct {
	Headless          bool
	ProxyServer       string
	Identity          behavior.Identity
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
}

// ChromeSession implements Session on top of a headless Chrome instance
// driven over the DevTools protocol.
type ChromeSession struct {
	ctx           context.Context
	cancelCtx     context.CancelFunc
	cancelAlloc   context.CancelFunc
	navTimeout    time.Duration
	actionTimeout time.Duration
}

// NewChromeSession launches a browser and prepares a page with the given
// identity applied: extra HTTP headers, masked automation markers and a
// randomized viewport.
func NewChromeSession(opts Options) (*ChromeSession, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(opts.Identity.UserAgent),
	)
	if opts.ProxyServer != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyServer))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx)

	headers := make(network.Headers, len(opts.Identity.Headers))
	for k, v := range opts.Identity.Headers {
		headers[k] = v
	}

	width := int64(1200 + rand.Intn(720))
	height := int64(800 + rand.Intn(280))

	err := chromedp.Run(ctx,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(maskAutomationScript).Do(ctx)
			return err
		}),
		chromedp.EmulateViewport(width, height),
	)
	if err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}

	return &ChromeSession{
		ctx:           ctx,
		cancelCtx:     cancelCtx,
		cancelAlloc:   cancelAlloc,
		navTimeout:    opts.NavigationTimeout,
		actionTimeout: opts.ActionTimeout,
	}, nil
}

// run executes actions against the page with a bounded deadline
func (s *ChromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	return chromedp.Run(tctx, actions...)
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, s.navTimeout, chromedp.Navigate(url))
}

func (s *ChromeSession) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, s.actionTimeout, chromedp.Title(&title))
	return title, err
}

func (s *ChromeSession) Content(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, s.actionTimeout,
		chromedp.Evaluate("document.documentElement.outerHTML", &html))
	return html, err
}

func (s *ChromeSession) ClickFirst(ctx context.Context, selector string) (bool, error) {
	var count int
	err := s.run(ctx, s.actionTimeout,
		chromedp.Evaluate(fmt.Sprintf("document.querySelectorAll(%q).length", selector), &count))
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}

	err = s.run(ctx, s.actionTimeout,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return true, err
	}
	return true, nil
}

func (s *ChromeSession) ScrollToBottom(ctx context.Context) error {
	return s.run(ctx, s.actionTimeout,
		chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight)", nil))
}

func (s *ChromeSession) ContentHeight(ctx context.Context) (int64, error) {
	var height int64
	err := s.run(ctx, s.actionTimeout,
		chromedp.Evaluate("document.body.scrollHeight", &height))
	return height, err
}

func (s *ChromeSession) ExtractAttrs(ctx context.Context, selector, attr string) ([]string, error) {
	js := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map(e => e.getAttribute(%q)).filter(v => v)`,
		selector, attr)

	var attrs []string
	err := s.run(ctx, s.actionTimeout, chromedp.Evaluate(js, &attrs))
	if err != nil {
		return nil, err
	}
	return attrs, nil
}

func (s *ChromeSession) Prune(ctx context.Context, selectors []string, keep int) error {
	for _, selector := range selectors {
		js := fmt.Sprintf(`(() => {
			const nodes = document.querySelectorAll(%q);
			const extra = nodes.length - %d;
			for (let i = 0; i < extra; i++) {
				nodes[i].remove();
			}
		})()`, selector, keep)

		if err := s.run(ctx, s.actionTimeout, chromedp.Evaluate(js, nil)); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChromeSession) MoveMouse(ctx context.Context) error {
	x := float64(100 + rand.Intn(900))
	y := float64(100 + rand.Intn(700))
	return s.run(ctx, s.actionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
	}))
}

func (s *ChromeSession) Close() error {
	s.cancelCtx()
	s.cancelAlloc()
	return nil
}
