package extract

import (
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DateMetaRules is the meta-tag cascade for publish dates.
var DateMetaRules = []Rule{
	MetaContent(`meta[itemprop="datePublished"]`),
	MetaContent(`meta[itemprop="dateModified"]`),
	MetaContent(`meta[property="article:published_time"]`),
	MetaContent(`meta[property="og:article:published_time"]`),
	MetaContent(`meta[name="article:published_time"]`),
	MetaContent(`meta[name="og:published_time"]`),
	MetaContent(`meta[name="published_time"]`),
	MetaContent(`meta[name="date"]`),
	MetaContent(`meta[name="pubdate"]`),
}

// DateFallbackRules read visible markup when no meta tag carries a date.
var DateFallbackRules = []Rule{
	ElementAttr("time[datetime]", "datetime"),
	VisibleText(".article-date"),
	VisibleText(".date"),
	VisibleText(".czas"),
}

// VisibleText returns the space-joined text of the first element matching selector.
func VisibleText(selector string) Rule {
	return func(doc *goquery.Document) (string, bool) {
		v := NodeText(doc.Find(selector).First(), " ")
		return v, v != ""
	}
}

// published returns the first candidate that normalizes. When a meta tag is present its value is
// authoritative; otherwise each visible fallback is tried in turn. The first raw candidate is
// kept for callers even if nothing parsed.
func (e *Extractor) published(doc *goquery.Document) (*time.Time, string) {
	if raw, ok := FirstOf(doc, DateMetaRules...); ok {
		return e.dates.NormalizeString(raw).Pointer(), raw
	}
	firstRaw := ""
	for _, rule := range DateFallbackRules {
		raw, ok := rule(doc)
		if !ok {
			continue
		}
		if firstRaw == "" {
			firstRaw = raw
		}
		if t := e.dates.NormalizeString(raw).Pointer(); t != nil {
			return t, raw
		}
	}
	return nil, firstRaw
}
