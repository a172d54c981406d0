package crawler

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Strategy selects how raw HTML is obtained for a URL.
type Strategy string

// Fetch strategies accepted in source definitions.
const (
	StrategyAuto     Strategy = "auto"
	StrategyDirect   Strategy = "direct"
	StrategyRendered Strategy = "rendered"
)

// ParseStrategy maps a configured fetch method onto a Strategy. Empty means auto.
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyDirect:
		return StrategyDirect, nil
	case StrategyRendered:
		return StrategyRendered, nil
	default:
		return "", fmt.Errorf("unknown fetch method %q", raw)
	}
}

// ArticleRecord is the normalized, deduplicated unit persisted per distinct URL.
type ArticleRecord struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	URL         string     `json:"url"`
	Title       *string    `json:"title"`
	Content     string     `json:"content"`
	PublishedAt *time.Time `json:"published"`
	FetchedAt   time.Time  `json:"fetched_at"`
	ImageURL    *string    `json:"image_url"`
	Analysis    *Analysis  `json:"analysis,omitempty"`
}

// ArticleDraft is what the pipeline hands to the store for a single observation of a URL.
type ArticleDraft struct {
	Source      string
	URL         string
	Title       *string
	Content     string
	PublishedAt *time.Time
	FetchedAt   time.Time
	ImageURL    *string
}

// Analysis is the result returned by the downstream scoring agent for one record.
type Analysis struct {
	Score      float64        `json:"score"`
	Label      string         `json:"label"`
	Rationale  []string       `json:"rationale"`
	Summary    string         `json:"summary"`
	Signals    map[string]any `json:"signals,omitempty"`
	AnalyzedAt time.Time      `json:"analyzed_at"`
}

// Validate rejects analysis payloads outside the agent contract.
func (a Analysis) Validate() error {
	if a.Score < 0 || a.Score > 100 {
		return fmt.Errorf("score %v out of range 0-100", a.Score)
	}
	if strings.TrimSpace(a.Label) == "" {
		return fmt.Errorf("label is required")
	}
	return nil
}

// SaveResult reports what a Save call did.
type SaveResult struct {
	ID      string
	Created bool
	Updated bool
}

// ItemStatus is the per-URL outcome of a pipeline run.
type ItemStatus string

// Item outcomes reported by the worker.
const (
	ItemSaved   ItemStatus = "saved"
	ItemUpdated ItemStatus = "updated"
	ItemSkipped ItemStatus = "skipped"
	ItemFailed  ItemStatus = "failed"
)

// ItemResult is reported for every URL a source run touched.
type ItemResult struct {
	Source string     `json:"source"`
	URL    string     `json:"url"`
	ID     string     `json:"id,omitempty"`
	Path   string     `json:"path,omitempty"`
	Status ItemStatus `json:"status"`
	Reason string     `json:"reason,omitempty"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL           string
	Headers       http.Header
	RespectRobots bool
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Charset      string
	Duration     time.Duration
	UsedHeadless bool
}

// Page is decoded HTML produced by the strategy selector.
type Page struct {
	URL        string
	HTML       string
	StatusCode int
	Rendered   bool
}

// FeedEntry is one RSS/Atom item used as seed input.
type FeedEntry struct {
	Title        string
	URL          string
	PublishedRaw string
	Published    *time.Time
}
