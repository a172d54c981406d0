// Package detector decides when a direct fetch should be retried in a headless browser.
package detector

import "unicode/utf8"

// DefaultMinChars is the shortest direct result accepted without rendering.
const DefaultMinChars = 1000

// Heuristic promotes pages whose direct HTML is implausibly short. Such pages are usually
// interstitials or JavaScript shells rather than the article itself.
type Heuristic struct {
	MinChars int
}

// NewHeuristic creates a new detector. A non-positive threshold uses DefaultMinChars.
func NewHeuristic(minChars int) *Heuristic {
	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	return &Heuristic{MinChars: minChars}
}

// ShouldPromote reports whether html has fewer characters than the threshold.
func (h *Heuristic) ShouldPromote(html string) bool {
	return utf8.RuneCountInString(html) < h.MinChars
}
