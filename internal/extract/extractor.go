// Package extract pulls a normalized article (title, body text, publish date, lead image) out of
// arbitrary news HTML.
//
// Every field is produced by its own ordered chain of pure functions over the parsed document.
// The first function that yields a value wins, so each chain tries specific signals (OpenGraph,
// itemprop, per-source selectors) before generic ones.
package extract

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/mkonefal2/clickbait-verifier/internal/datenorm"
)

// Article is the extraction output. Nil pointers mean the field had no usable signal.
type Article struct {
	Title        *string
	Content      string
	PublishedAt  *time.Time
	PublishedRaw string
	ImageURL     *string
	SiteName     string
}

// Rule extracts a single string field from a document.
type Rule func(doc *goquery.Document) (string, bool)

// Extractor runs the field cascades.
type Extractor struct {
	dates     *datenorm.Normalizer
	sanitizer *bluemonday.Policy
	fallbacks []string
}

// New creates an Extractor that feeds date candidates through the given normalizer.
func New(dates *datenorm.Normalizer) *Extractor {
	if dates == nil {
		dates = datenorm.New(nil)
	}
	return &Extractor{
		dates:     dates,
		sanitizer: bluemonday.StrictPolicy(),
		fallbacks: append([]string(nil), FallbackContentSelectors...),
	}
}

// Extract parses raw HTML and runs every field cascade. hints are per-source content selectors
// tried ahead of the built-in fallbacks.
func (e *Extractor) Extract(rawHTML string, hints ...string) (Article, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return Article{}, fmt.Errorf("parse html: %w", err)
	}
	return e.ExtractDocument(doc, hints...), nil
}

// ExtractDocument runs the cascades on an already parsed document.
func (e *Extractor) ExtractDocument(doc *goquery.Document, hints ...string) Article {
	var out Article
	if title, ok := FirstOf(doc, e.cleaned(TitleRules)...); ok {
		out.Title = &title
	}
	if img, ok := FirstOf(doc, ImageRules...); ok {
		out.ImageURL = &img
	}
	out.SiteName, _ = FirstOf(doc, SiteNameRules...)
	out.Content = e.content(doc, hints)
	out.PublishedAt, out.PublishedRaw = e.published(doc)
	return out
}

// FirstOf evaluates rules left to right and returns the first non-empty value.
func FirstOf(doc *goquery.Document, rules ...Rule) (string, bool) {
	for _, rule := range rules {
		if v, ok := rule(doc); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// cleaned wraps rules so each value is sanitized before FirstOf judges it empty. A rule whose
// value is nothing but markup therefore falls through to the next one.
func (e *Extractor) cleaned(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	for i, rule := range rules {
		out[i] = func(doc *goquery.Document) (string, bool) {
			v, ok := rule(doc)
			if !ok {
				return "", false
			}
			return e.cleanTitle(v), true
		}
	}
	return out
}

func (e *Extractor) cleanTitle(raw string) string {
	stripped := html.UnescapeString(e.sanitizer.Sanitize(raw))
	return strings.Join(strings.Fields(stripped), " ")
}
