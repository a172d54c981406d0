package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// FallbackContentSelectors are tried after any per-source hints.
var FallbackContentSelectors = []string{
	"article",
	`div[itemprop="articleBody"]`,
	"div.article__body",
	"div.article-body",
	"div#articleBody",
	"div.content",
	"main article",
}

// NoiseSelector matches subtrees removed from a content candidate before reading its text.
const NoiseSelector = "script, style, noscript, .cookie, .consent, .acceptance, .promo, .newsletter, " +
	".newsletter-box, .breadcrumbs, .related, .related-articles, .read-more, .comments, " +
	".advertisement, aside, footer, nav"

// BoilerplatePhrases mark legal and cookie notices that must not be taken as article text.
var BoilerplatePhrases = []string{
	"korzystanie z portalu",
	"polityka cookies",
	"copyright",
	"wszystkie prawa zastrzeżone",
	"skorzystaj z naszego bota",
	"regulamin",
}

const (
	minCandidateChars = 200
	minParagraphChars = 50
)

// LooksLikeBoilerplate reports whether text is empty or contains a blocklisted phrase.
func LooksLikeBoilerplate(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	low := strings.ToLower(text)
	for _, phrase := range BoilerplatePhrases {
		if strings.Contains(low, phrase) {
			return true
		}
	}
	return false
}

func (e *Extractor) content(doc *goquery.Document, hints []string) string {
	candidates := make([]string, 0, len(hints)+len(e.fallbacks))
	for _, h := range hints {
		if h = strings.TrimSpace(h); h != "" {
			candidates = append(candidates, h)
		}
	}
	candidates = append(candidates, e.fallbacks...)

	for _, selector := range candidates {
		if text, ok := CandidateText(doc, selector); ok {
			return text
		}
	}
	return ParagraphText(doc)
}

// CandidateText reads the first element matching selector from a cleaned copy and rejects short
// boilerplate. goquery matches nothing for a selector that does not compile.
func CandidateText(doc *goquery.Document, selector string) (string, bool) {
	el := doc.Find(selector).First()
	if el.Length() == 0 {
		return "", false
	}
	clone := el.Clone()
	clone.Find(NoiseSelector).Remove()
	text := NodeText(clone, "\n")
	if utf8.RuneCountInString(text) < minCandidateChars && LooksLikeBoilerplate(text) {
		return "", false
	}
	return text, true
}

// ParagraphText joins every meaningful <p> with blank lines.
func ParagraphText(doc *goquery.Document) string {
	var parts []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		t := strings.Join(strings.Fields(p.Text()), " ")
		if utf8.RuneCountInString(t) < minParagraphChars || LooksLikeBoilerplate(t) {
			return
		}
		parts = append(parts, t)
	})
	return strings.Join(parts, "\n\n")
}

// NodeText joins the trimmed, non-empty text nodes under sel with sep.
func NodeText(sel *goquery.Selection, sep string) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, sep)
}
