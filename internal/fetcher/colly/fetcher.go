// Package collyfetcher implements the direct fetch strategy using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
)

// DefaultUserAgent mimics a desktop browser; several news sites serve stripped pages otherwise.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36"

// DefaultAcceptLanguage prefers English and then Polish pages.
const DefaultAcceptLanguage = "en-US,en;q=0.9,pl;q=0.8"

// Limits applied to every direct fetch.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxBodyBytes = 8 << 20
	MaxRedirects        = 10
)

const acceptHTML = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"

// ErrUnsupportedContent is returned for responses that cannot hold an article, such as images
// or PDFs.
var ErrUnsupportedContent = errors.New("unsupported content type")

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	AcceptLanguage string
	RespectRobots  bool
	Timeout        time.Duration
	MaxBodyBytes   int
}

// Fetcher implements crawler.Fetcher. Each Fetch runs on a clone of one base collector so all
// requests share the transport and its connection pool.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = DefaultAcceptLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	base := colly.NewCollector(colly.Async(false))
	base.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: cfg.Timeout,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	})
	// Clones share the base collector's http.Client, so client settings are fixed here once.
	base.SetRequestTimeout(cfg.Timeout)
	base.SetRedirectHandler(func(_ *http.Request, via []*http.Request) error {
		if len(via) >= MaxRedirects {
			return fmt.Errorf("stopped after %d redirects", MaxRedirects)
		}
		return nil
	})
	return &Fetcher{cfg: cfg, base: base}
}

// Fetch performs one GET and returns the body decoded to UTF-8. Non-2xx responses are returned
// along with a StatusError.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	v := &visit{fetcher: f, request: request, start: time.Now()}
	collector := f.collectorFor(request)
	v.attach(collector)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(request.URL)
	}()

	select {
	case <-ctx.Done():
		return crawler.FetchResponse{}, fmt.Errorf("direct fetch canceled: %w", ctx.Err())
	case err := <-done:
		return v.outcome(err)
	}
}

func (f *Fetcher) collectorFor(request crawler.FetchRequest) *colly.Collector {
	c := f.base.Clone()
	c.UserAgent = f.cfg.UserAgent
	c.IgnoreRobotsTxt = !(f.cfg.RespectRobots || request.RespectRobots)
	// Clones share the visited set, and re-fetching a URL is always intentional here.
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	c.MaxBodySize = f.cfg.MaxBodyBytes
	return c
}

// hooks is the part of a collector a visit registers on.
type hooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// visit holds the state of a single Fetch.
type visit struct {
	fetcher *Fetcher
	request crawler.FetchRequest
	start   time.Time

	response crawler.FetchResponse
	err      error
}

func (v *visit) attach(h hooks) {
	h.OnRequest(v.onRequest)
	h.OnResponse(v.onResponse)
	h.OnError(func(_ *colly.Response, err error) { v.err = err })
}

func (v *visit) onRequest(r *colly.Request) {
	r.Headers.Set("Accept", acceptHTML)
	if lang := v.fetcher.cfg.AcceptLanguage; lang != "" {
		r.Headers.Set("Accept-Language", lang)
	}
	for key, values := range v.request.Headers {
		r.Headers.Del(key)
		for _, value := range values {
			r.Headers.Add(key, value)
		}
	}
}

func (v *visit) onResponse(r *colly.Response) {
	headers := http.Header{}
	if r.Headers != nil {
		headers = r.Headers.Clone()
	}
	contentType := headers.Get("Content-Type")
	if !isTextual(contentType) {
		v.err = fmt.Errorf("%w: %s", ErrUnsupportedContent, contentType)
		return
	}
	body, charset := DecodeBody(r.Body, contentType)
	v.response = crawler.FetchResponse{
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
		Headers:    headers,
		Body:       body,
		Charset:    charset,
		Duration:   time.Since(v.start),
	}
}

func (v *visit) outcome(visitErr error) (crawler.FetchResponse, error) {
	switch {
	case visitErr != nil:
		return crawler.FetchResponse{}, fmt.Errorf("direct fetch: %w", visitErr)
	case v.err != nil:
		return crawler.FetchResponse{}, fmt.Errorf("direct fetch: %w", v.err)
	case v.response.StatusCode < 200 || v.response.StatusCode > 299:
		return v.response, &crawler.StatusError{StatusCode: v.response.StatusCode}
	}
	return v.response, nil
}

// isTextual accepts HTML, XML and plain text. A missing Content-Type is given the benefit of
// the doubt.
func isTextual(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	media, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return true
	}
	switch {
	case strings.HasPrefix(media, "text/"):
		return true
	case media == "application/xhtml+xml", media == "application/xml":
		return true
	}
	return false
}
