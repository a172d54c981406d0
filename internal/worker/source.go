package worker

import (
	"strings"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
)

// MatchSource finds the configured source whose URL (or feed URL) host matches articleURL's
// host, ignoring a leading "www.".
func MatchSource(sources []crawler.SourceDefinition, articleURL string) (crawler.SourceDefinition, bool) {
	host := crawler.BareHost(articleURL)
	if host == "" {
		return crawler.SourceDefinition{}, false
	}
	for _, src := range sources {
		for _, candidate := range []string{src.URL, src.RSSURL} {
			if candidate != "" && crawler.BareHost(candidate) == host {
				return src, true
			}
		}
	}
	return crawler.SourceDefinition{}, false
}

// InferSourceName names an unconfigured article: the page's site name, else its bare host.
func InferSourceName(siteName, articleURL string) string {
	if name := strings.TrimSpace(siteName); name != "" {
		return name
	}
	if host := crawler.BareHost(articleURL); host != "" {
		return host
	}
	return "unknown"
}
