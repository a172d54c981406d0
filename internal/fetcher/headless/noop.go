package headless

import (
	"context"
	"fmt"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
)

// Noop stands in for the renderer when headless browsing is disabled.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails with ErrRendererUnavailable.
func (Noop) Fetch(_ context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	return crawler.FetchResponse{}, fmt.Errorf("render %s: %w", request.URL, crawler.ErrRendererUnavailable)
}
