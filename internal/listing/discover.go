// Package listing discovers article links on a source's landing page.
package listing

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DeniedSegments are lowercase URL fragments of sections that never hold articles.
var DeniedSegments = []string{"/tylko-w-rmf24", "/galeria", "/wideo", "/video", "/tag/", "/tag-"}

const (
	paginationMarker = ",npack,"
	// articleIDMarker is accepted when a configured pattern does not match.
	articleIDMarker = ",nid,"
)

// Discover returns the sorted set of same-host article URLs linked from a listing page.
func Discover(listingURL, rawHTML string, pattern *regexp.Regexp) ([]string, error) {
	base, err := url.Parse(strings.TrimSpace(listingURL))
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("listing url %q is not absolute", listingURL)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	self := stripFragment(base.String())
	found := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		link, ok := Candidate(base, href, pattern)
		if !ok || link == self {
			return
		}
		found[link] = struct{}{}
	})

	out := make([]string, 0, len(found))
	for link := range found {
		out = append(out, link)
	}
	sort.Strings(out)
	return out, nil
}

// Candidate absolutizes href against the listing URL and applies the host, denylist and pattern
// filters. It returns the fragment-free link when the href looks like an article.
func Candidate(base *url.URL, href string, pattern *regexp.Regexp) (string, bool) {
	href = strings.TrimSpace(href)
	switch {
	case strings.HasPrefix(href, "//"):
		href = "https:" + href
	case strings.HasPrefix(href, "/"):
		href = base.Scheme + "://" + base.Host + href
	}
	if !strings.HasPrefix(href, "http") {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil || !strings.EqualFold(u.Host, base.Host) {
		return "", false
	}
	low := strings.ToLower(href)
	for _, seg := range DeniedSegments {
		if strings.Contains(low, seg) {
			return "", false
		}
	}
	if strings.Contains(low, paginationMarker) {
		return "", false
	}
	if pattern != nil && !pattern.MatchString(href) && !strings.Contains(low, articleIDMarker) {
		return "", false
	}
	return stripFragment(href), true
}

func stripFragment(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		return raw[:i]
	}
	return raw
}
