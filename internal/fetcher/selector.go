// Package fetcher chooses between the direct and rendered fetch strategies.
package fetcher

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
	"github.com/mkonefal2/clickbait-verifier/internal/metrics"
)

// Selector fetches pages with a direct fetcher, a renderer, or both.
type Selector struct {
	direct   crawler.Fetcher
	rendered crawler.Fetcher
	detector crawler.HeadlessDetector
	logger   *zap.Logger
}

// NewSelector wires the strategies together. rendered may be a headless.Noop.
func NewSelector(direct, rendered crawler.Fetcher, detector crawler.HeadlessDetector, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{direct: direct, rendered: rendered, detector: detector, logger: logger}
}

// Fetch returns the page HTML for url. Every failure is a *crawler.FetchError.
//
// Auto tries the direct fetch first and escalates when it fails or when the detector finds the
// result implausibly short. When the render then fails, the direct outcome is returned as is.
// Auto never succeeds with a blank page; crawler.ErrEmptyPage is returned instead.
func (s *Selector) Fetch(ctx context.Context, url string, strategy crawler.Strategy) (crawler.Page, error) {
	switch strategy {
	case crawler.StrategyDirect:
		return s.fetchWith(ctx, s.direct, url, strategy)
	case crawler.StrategyRendered:
		return s.fetchWith(ctx, s.rendered, url, strategy)
	}

	page, directErr := s.fetchWith(ctx, s.direct, url, crawler.StrategyDirect)
	reason := ""
	switch {
	case directErr != nil:
		if ctx.Err() != nil {
			return crawler.Page{}, directErr
		}
		reason = "error"
	case isBlank(page.HTML):
		reason = "empty"
	case s.detector != nil && s.detector.ShouldPromote(page.HTML):
		reason = "short"
	default:
		return page, nil
	}

	metrics.ObserveEscalation(reason)
	s.logger.Debug("Escalating to renderer", zap.String("url", url), zap.String("reason", reason))
	rendered, renderErr := s.fetchWith(ctx, s.rendered, url, crawler.StrategyRendered)
	if renderErr == nil && !isBlank(rendered.HTML) {
		return rendered, nil
	}
	if renderErr == nil {
		renderErr = &crawler.FetchError{URL: url, Strategy: crawler.StrategyRendered, Err: crawler.ErrEmptyPage}
	}
	s.logger.Warn("Render fallback failed",
		zap.String("url", url),
		zap.Bool("renderer_unavailable", errors.Is(renderErr, crawler.ErrRendererUnavailable)),
		zap.Error(renderErr),
	)
	if directErr != nil {
		return crawler.Page{}, directErr
	}
	if isBlank(page.HTML) {
		return crawler.Page{}, &crawler.FetchError{URL: url, Strategy: crawler.StrategyAuto, Err: crawler.ErrEmptyPage}
	}
	return page, nil
}

func isBlank(html string) bool {
	return strings.TrimSpace(html) == ""
}

func (s *Selector) fetchWith(
	ctx context.Context,
	f crawler.Fetcher,
	url string,
	strategy crawler.Strategy,
) (crawler.Page, error) {
	if f == nil {
		metrics.ObserveFetch(string(strategy), "unavailable", url, 0)
		return crawler.Page{}, &crawler.FetchError{URL: url, Strategy: strategy, Err: crawler.ErrRendererUnavailable}
	}
	resp, err := f.Fetch(ctx, crawler.FetchRequest{URL: url})
	if err != nil {
		metrics.ObserveFetch(string(strategy), "error", url, 0)
		return crawler.Page{}, &crawler.FetchError{URL: url, Strategy: strategy, Err: err}
	}
	metrics.ObserveFetch(string(strategy), "ok", url, len(resp.Body))
	finalURL := resp.URL
	if finalURL == "" {
		finalURL = url
	}
	return crawler.Page{
		URL:        finalURL,
		HTML:       string(resp.Body),
		StatusCode: resp.StatusCode,
		Rendered:   resp.UsedHeadless || strategy == crawler.StrategyRendered,
	}, nil
}
