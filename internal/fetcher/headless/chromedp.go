// Package headless implements the rendered fetch strategy with a headless Chrome driven by chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
)

// Rendering defaults.
const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultSettleDelay       = 500 * time.Millisecond
)

// scrollScript pulls lazily loaded article bodies into the DOM.
const scrollScript = `window.scrollTo(0, document.body ? document.body.scrollHeight : 0); true`

// Config controls the renderer.
type Config struct {
	// MaxParallel caps concurrent browser tabs. Zero means unlimited.
	MaxParallel       int
	UserAgent         string
	AcceptLanguage    string
	NavigationTimeout time.Duration
	// SettleDelay is waited after the scroll so late scripts can fill the article. Zero uses
	// DefaultSettleDelay and a negative value disables the wait.
	SettleDelay time.Duration
	// ExecPath overrides Chrome discovery.
	ExecPath string
}

// Fetcher renders pages in tabs of one shared browser process.
type Fetcher struct {
	cfg         Config
	slots       *semaphore.Weighted
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp prepares the browser allocator. Chrome itself starts on the first Fetch, so a
// missing binary surfaces there as crawler.ErrRendererUnavailable.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	switch {
	case cfg.SettleDelay == 0:
		cfg.SettleDelay = DefaultSettleDelay
	case cfg.SettleDelay < 0:
		cfg.SettleDelay = 0
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		// Article text never depends on images.
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("mute-audio", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	f := &Fetcher{cfg: cfg, allocator: allocCtx, allocCancel: allocCancel}
	if cfg.MaxParallel > 0 {
		f.slots = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}
	return f, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch renders request.URL and returns the serialized DOM. A document response outside 2xx is
// returned together with a crawler.StatusError.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if f.slots != nil {
		if err := f.slots.Acquire(ctx, 1); err != nil {
			return crawler.FetchResponse{}, fmt.Errorf("wait for render slot: %w", err)
		}
		defer f.slots.Release(1)
	}

	tab, closeTab := chromedp.NewContext(f.allocator)
	defer closeTab()
	// A canceled ctx must also abort the render.
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	tab, cancel := context.WithTimeout(tab, f.cfg.NavigationTimeout)
	defer cancel()

	doc := &documentResponse{}
	chromedp.ListenTarget(tab, doc.listen)

	start := time.Now()
	var html, location string
	if err := chromedp.Run(tab, f.renderActions(request, &html, &location)...); err != nil {
		return crawler.FetchResponse{}, classifyRunError(ctx, err)
	}

	resp := doc.response(request.URL, location)
	resp.Body = []byte(html)
	resp.Charset = "utf-8"
	resp.Duration = time.Since(start)
	resp.UsedHeadless = true
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, &crawler.StatusError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (f *Fetcher) renderActions(request crawler.FetchRequest, html, location *string) []chromedp.Action {
	actions := []chromedp.Action{
		f.prepareTab(f.requestHeaders(request.Headers)),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(scrollScript, nil),
	}
	if f.cfg.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(f.cfg.SettleDelay))
	}
	return append(actions,
		chromedp.Location(location),
		chromedp.OuterHTML("html", html, chromedp.ByQuery),
	)
}

func (f *Fetcher) prepareTab(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network: %w", err)
		}
		if lang := headers.Get("Accept-Language"); lang != "" && f.cfg.UserAgent != "" {
			override := emulation.SetUserAgentOverride(f.cfg.UserAgent).WithAcceptLanguage(lang)
			if err := override.Do(ctx); err != nil {
				return fmt.Errorf("set user agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) requestHeaders(extra http.Header) http.Header {
	headers := http.Header{}
	for k, values := range extra {
		for _, v := range values {
			headers.Add(k, v)
		}
	}
	if f.cfg.AcceptLanguage != "" && headers.Get("Accept-Language") == "" {
		headers.Set("Accept-Language", f.cfg.AcceptLanguage)
	}
	return headers
}

// classifyRunError maps a missing browser binary onto ErrRendererUnavailable so the auto
// strategy can keep the direct result.
func classifyRunError(ctx context.Context, err error) error {
	var execErr *exec.Error
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.As(err, &execErr) {
		return fmt.Errorf("start browser: %w: %w", crawler.ErrRendererUnavailable, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("render: %w", ctxErr)
	}
	return fmt.Errorf("render: %w", err)
}

// documentResponse remembers the document response of the tab's main frame. The first document
// response comes from the navigation, so its frame is taken as the main frame and documents of
// other frames (iframes) are ignored.
type documentResponse struct {
	mu        sync.Mutex
	seen      bool
	mainFrame cdp.FrameID
	status    int
	url       string
	headers   http.Header
}

func (d *documentResponse) listen(ev any) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.seen {
		d.seen = true
		d.mainFrame = e.FrameID
	} else if e.FrameID != d.mainFrame {
		return
	}
	headers := http.Header{}
	for key, value := range e.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	d.status = int(e.Response.Status)
	d.url = e.Response.URL
	d.headers = headers
}

// response builds the fetch metadata. Without a captured document (e.g. a page served from
// cache) the status is assumed 200 and the browser location names the page.
func (d *documentResponse) response(requestURL, location string) crawler.FetchResponse {
	d.mu.Lock()
	defer d.mu.Unlock()
	resp := crawler.FetchResponse{URL: requestURL, StatusCode: d.status, Headers: d.headers}
	switch {
	case location != "":
		resp.URL = location
	case d.url != "":
		resp.URL = d.url
	}
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	if resp.Headers == nil {
		resp.Headers = http.Header{}
	}
	return resp
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := make(network.Headers, len(h))
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			headers[key] = values[0]
		default:
			// CDP expects repeated header values joined by newlines.
			joined := values[0]
			for _, v := range values[1:] {
				joined += "\n" + v
			}
			headers[key] = joined
		}
	}
	return headers
}
