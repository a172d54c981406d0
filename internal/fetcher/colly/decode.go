package collyfetcher

import (
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
)

// DecodeBody converts a response body to UTF-8 and reports the charset it was read as.
// The encoding is guessed from the bytes first; the Content-Type charset is only a fallback
// because servers frequently mislabel legacy Polish pages as UTF-8.
func DecodeBody(body []byte, contentType string) ([]byte, string) {
	if utf8.Valid(body) {
		return body, "utf-8"
	}
	for _, name := range charsetCandidates(body, contentType) {
		enc, err := htmlindex.Get(name)
		if err != nil {
			continue
		}
		out, err := enc.NewDecoder().Bytes(body)
		if err != nil || !utf8.Valid(out) {
			continue
		}
		canonical, err := htmlindex.Name(enc)
		if err != nil {
			canonical = strings.ToLower(name)
		}
		return out, canonical
	}
	return []byte(strings.ToValidUTF8(string(body), "\uFFFD")), "utf-8"
}

func charsetCandidates(body []byte, contentType string) []string {
	var names []string
	if best, err := chardet.NewHtmlDetector().DetectBest(body); err == nil && best != nil && best.Charset != "" {
		names = append(names, best.Charset)
	}
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil && params["charset"] != "" {
			names = append(names, params["charset"])
		}
	}
	return names
}
