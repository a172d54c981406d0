package headless

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
)

func TestNewChromedpConfig(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	f, err := NewChromedp(Config{MaxParallel: 2, SettleDelay: -time.Second})
	require.NoError(t, err)
	defer f.Close()
	require.NotNil(t, f.slots)
	require.Equal(t, DefaultNavigationTimeout, f.cfg.NavigationTimeout)
	require.Zero(t, f.cfg.SettleDelay)

	unlimited, err := NewChromedp(Config{NavigationTimeout: time.Second})
	require.NoError(t, err)
	defer unlimited.Close()
	require.Nil(t, unlimited.slots)
	require.Equal(t, time.Second, unlimited.cfg.NavigationTimeout)
	require.Equal(t, DefaultSettleDelay, unlimited.cfg.SettleDelay)
}

func TestRenderActionsSkipSettleWhenDisabled(t *testing.T) {
	t.Parallel()

	var html, location string
	settled := &Fetcher{cfg: Config{SettleDelay: time.Millisecond}}
	plain := &Fetcher{}
	req := crawler.FetchRequest{URL: "https://example.com/news/1"}

	require.Len(t, settled.renderActions(req, &html, &location), 7)
	require.Len(t, plain.renderActions(req, &html, &location), 6)
}

func TestRequestHeadersAddsAcceptLanguage(t *testing.T) {
	t.Parallel()

	f := &Fetcher{cfg: Config{AcceptLanguage: "pl-PL,pl;q=0.9"}}
	extra := http.Header{"X-Trace": {"1"}}
	headers := f.requestHeaders(extra)
	require.Equal(t, "pl-PL,pl;q=0.9", headers.Get("Accept-Language"))
	require.Equal(t, "1", headers.Get("X-Trace"))
	require.Empty(t, extra.Get("Accept-Language"))

	headers = f.requestHeaders(http.Header{"Accept-Language": {"en"}})
	require.Equal(t, "en", headers.Get("Accept-Language"))

	require.Empty(t, (&Fetcher{}).requestHeaders(nil))
}

func TestToNetworkHeadersJoinsRepeatedValues(t *testing.T) {
	t.Parallel()

	got := toNetworkHeaders(http.Header{
		"Cookie":   {"a=1", "b=2"},
		"X-Single": {"v"},
		"X-Empty":  {},
	})
	require.Equal(t, network.Headers{"Cookie": "a=1\nb=2", "X-Single": "v"}, got)
}

func TestDocumentResponseFollowsRedirects(t *testing.T) {
	t.Parallel()

	doc := &documentResponse{}
	doc.listen(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		FrameID:  "main",
		Response: &network.Response{Status: 301, URL: "https://example.com/old"},
	})
	doc.listen(&network.EventResponseReceived{
		Type:    network.ResourceTypeDocument,
		FrameID: "main",
		Response: &network.Response{
			Status:  200,
			URL:     "https://example.com/news/1",
			Headers: network.Headers{"Content-Type": "text/html", "Vary": []any{"a", "b"}},
		},
	})
	doc.listen(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 404, URL: "https://example.com/app.js"},
	})
	doc.listen("not an event")

	resp := doc.response("https://example.com/old", "")
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "https://example.com/news/1", resp.URL)
	require.Equal(t, "text/html", resp.Headers.Get("Content-Type"))
	require.Equal(t, []string{"a", "b"}, resp.Headers.Values("Vary"))

	resp = doc.response("https://example.com/old", "https://example.com/news/1#top")
	require.Equal(t, "https://example.com/news/1#top", resp.URL)
}

func TestDocumentResponseIgnoresIframes(t *testing.T) {
	t.Parallel()

	doc := &documentResponse{}
	doc.listen(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		FrameID:  "main",
		Response: &network.Response{Status: 200, URL: "https://example.com/news/1"},
	})
	doc.listen(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		FrameID:  "ad-slot",
		Response: &network.Response{Status: 404, URL: "https://ads.example.net/slot"},
	})

	resp := doc.response("https://example.com/news/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://example.com/news/1", resp.URL)
}

func TestDocumentResponseFallbacks(t *testing.T) {
	t.Parallel()

	resp := (&documentResponse{}).response("https://example.com/a", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://example.com/a", resp.URL)
	require.NotNil(t, resp.Headers)
}

func TestClassifyRunError(t *testing.T) {
	t.Parallel()

	missing := []error{
		exec.ErrNotFound,
		&exec.Error{Name: "chrome", Err: exec.ErrNotFound},
		&fs.PathError{Op: "fork/exec", Path: "/opt/chrome", Err: fs.ErrNotExist},
	}
	for _, err := range missing {
		require.ErrorIs(t, classifyRunError(context.Background(), err), crawler.ErrRendererUnavailable)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := classifyRunError(ctx, errors.New("target closed"))
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, crawler.ErrRendererUnavailable)

	err = classifyRunError(context.Background(), context.DeadlineExceeded)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNoopFetcherError(t *testing.T) {
	t.Parallel()

	_, err := NewNoop().Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com"})
	require.ErrorIs(t, err, crawler.ErrRendererUnavailable)
}
