package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TitleRules is the headline cascade: OpenGraph, Twitter card, then <title>.
var TitleRules = []Rule{
	MetaContent(`meta[property="og:title"]`),
	MetaContent(`meta[name="twitter:title"]`),
	ElementText("title"),
}

// ImageRules is the lead image cascade. In-body images are deliberately not considered.
var ImageRules = []Rule{
	MetaContent(`meta[property="og:image"]`),
	MetaContent(`meta[name="twitter:image"]`),
	MetaContent(`meta[property="twitter:image"]`),
}

// SiteNameRules finds the publisher name used when a source has to be inferred.
var SiteNameRules = []Rule{
	MetaContent(`meta[property="og:site_name"]`),
	MetaContent(`meta[name="application-name"]`),
}

// MetaContent returns the trimmed content attribute of the first element matching selector.
func MetaContent(selector string) Rule {
	return func(doc *goquery.Document) (string, bool) {
		var value string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, ok := s.Attr("content"); ok && strings.TrimSpace(v) != "" {
				value = strings.TrimSpace(v)
				return false
			}
			return true
		})
		return value, value != ""
	}
}

// ElementText returns the trimmed text of the first element matching selector.
func ElementText(selector string) Rule {
	return func(doc *goquery.Document) (string, bool) {
		v := strings.TrimSpace(doc.Find(selector).First().Text())
		return v, v != ""
	}
}

// ElementAttr returns the trimmed attribute value of the first element matching selector.
func ElementAttr(selector, attr string) Rule {
	return func(doc *goquery.Document) (string, bool) {
		v, _ := doc.Find(selector).First().Attr(attr)
		v = strings.TrimSpace(v)
		return v, v != ""
	}
}

// ResolveURL resolves ref against base. Unresolvable input is returned unchanged.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
