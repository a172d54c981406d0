package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/mkonefal2/clickbait-verifier/internal/datenorm"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestExtractor() *Extractor {
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	return New(datenorm.New(fixedClock{t: now}))
}

func longText(word string, n int) string {
	return strings.TrimSpace(strings.Repeat(word+" ", n))
}

func TestExtractTitlePrefersOpenGraph(t *testing.T) {
	t.Parallel()

	doc := `<html><head>
<title>Page title | Portal</title>
<meta name="twitter:title" content="Twitter title">
<meta property="og:title" content="OG title">
</head><body></body></html>`

	art, err := newTestExtractor().Extract(doc)
	require.NoError(t, err)
	require.NotNil(t, art.Title)
	require.Equal(t, "OG title", *art.Title)
}

func TestExtractTitleFallsBackToTitleElement(t *testing.T) {
	t.Parallel()

	art, err := newTestExtractor().Extract(`<html><head><title>  Plain   title </title></head></html>`)
	require.NoError(t, err)
	require.NotNil(t, art.Title)
	require.Equal(t, "Plain title", *art.Title)
}

func TestExtractTitleStripsMarkup(t *testing.T) {
	t.Parallel()

	doc := `<meta property="og:title" content="&lt;b&gt;Breaking&lt;/b&gt; news &amp; more">`
	art, err := newTestExtractor().Extract(doc)
	require.NoError(t, err)
	require.NotNil(t, art.Title)
	require.Equal(t, "Breaking news & more", *art.Title)
}

func TestExtractTitleSkipsMarkupOnlyCandidates(t *testing.T) {
	t.Parallel()

	doc := `<html><head>
<title>Page title</title>
<meta property="og:title" content="&lt;span&gt;&lt;/span&gt;  ">
<meta name="twitter:title" content="Twitter title">
</head></html>`

	art, err := newTestExtractor().Extract(doc)
	require.NoError(t, err)
	require.NotNil(t, art.Title)
	require.Equal(t, "Twitter title", *art.Title)
}

func TestExtractMissingFieldsAreNil(t *testing.T) {
	t.Parallel()

	art, err := newTestExtractor().Extract(`<html><body><div>short</div></body></html>`)
	require.NoError(t, err)
	require.Nil(t, art.Title)
	require.Nil(t, art.ImageURL)
	require.Nil(t, art.PublishedAt)
	require.Empty(t, art.Content)
}

func TestExtractImageCascade(t *testing.T) {
	t.Parallel()

	doc := `<meta name="twitter:image" content="https://cdn.example.com/tw.jpg">
<meta property="og:image" content="https://cdn.example.com/og.jpg">
<article><img src="/inline.jpg"></article>`
	art, err := newTestExtractor().Extract(doc)
	require.NoError(t, err)
	require.NotNil(t, art.ImageURL)
	require.Equal(t, "https://cdn.example.com/og.jpg", *art.ImageURL)

	art, err = newTestExtractor().Extract(`<article><img src="/inline.jpg"></article>`)
	require.NoError(t, err)
	require.Nil(t, art.ImageURL)
}

func TestExtractContentRejectsBoilerplateCandidate(t *testing.T) {
	t.Parallel()

	body := longText("Treść artykułu o wydarzeniach.", 12)
	doc := `<html><body>
<article>Polityka cookies: korzystamy z plików cookies.</article>
<div class="content"><p>` + body + `</p></div>
</body></html>`

	art, err := newTestExtractor().Extract(doc)
	require.NoError(t, err)
	require.Equal(t, body, art.Content)
}

func TestExtractContentFallsBackToParagraphs(t *testing.T) {
	t.Parallel()

	first := longText("Pierwszy akapit tekstu.", 4)
	second := longText("Drugi akapit tekstu.", 4)
	doc := `<html><body>
<article>Copyright 2025 Portal</article>
<p>` + first + `</p>
<p>Za krótki</p>
<p>Regulamin serwisu oraz zasady korzystania z portalu internetowego.</p>
<p>` + second + `</p>
</body></html>`

	art, err := newTestExtractor().Extract(doc)
	require.NoError(t, err)
	require.Equal(t, first+"\n\n"+second, art.Content)
}

func TestExtractContentStripsNoise(t *testing.T) {
	t.Parallel()

	doc := `<article>
<h1>Nagłówek</h1>
<script>var x = 1;</script>
<div class="cookie">Akceptuję cookies</div>
<p>Pierwszy akapit.</p>
<aside>Zobacz też</aside>
<div class="related">Powiązane</div>
<p>Drugi akapit.</p>
<footer>Stopka</footer>
</article>`

	art, err := newTestExtractor().Extract(doc)
	require.NoError(t, err)
	require.Equal(t, "Nagłówek\nPierwszy akapit.\nDrugi akapit.", art.Content)
}

func TestExtractContentHintsComeFirst(t *testing.T) {
	t.Parallel()

	doc := `<article>Artykuł ogólny, dostatecznie długi aby zostać przyjęty jako treść.</article>
<section class="story-body">Treść z selektora źródła.</section>`

	art, err := newTestExtractor().Extract(doc, "div[", "section.story-body")
	require.NoError(t, err)
	require.Equal(t, "Treść z selektora źródła.", art.Content)
}

func TestExtractContentLeavesDocumentIntact(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<article><p>Tekst.</p><nav>Menu</nav></article>`))
	require.NoError(t, err)

	art := newTestExtractor().ExtractDocument(doc)
	require.Equal(t, "Tekst.", art.Content)
	require.Equal(t, 1, doc.Find("article nav").Length())
}

func TestExtractPublishedCascade(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		html    string
		want    *time.Time
		wantRaw string
	}{
		{
			name:    "itemprop meta",
			html:    `<meta itemprop="datePublished" content="2025-11-02T10:57:00Z"><time datetime="2020-01-01T00:00:00Z"></time>`,
			want:    ptrTime(time.Date(2025, 11, 2, 10, 57, 0, 0, time.UTC)),
			wantRaw: "2025-11-02T10:57:00Z",
		},
		{
			name:    "article published_time",
			html:    `<meta property="article:published_time" content="2025-10-30T08:15:00+01:00">`,
			want:    ptrTime(time.Date(2025, 10, 30, 7, 15, 0, 0, time.UTC)),
			wantRaw: "2025-10-30T08:15:00+01:00",
		},
		{
			name:    "polish meta value",
			html:    `<meta name="date" content="5 minut temu">`,
			want:    ptrTime(time.Date(2025, 11, 2, 11, 55, 0, 0, time.UTC)),
			wantRaw: "5 minut temu",
		},
		{
			name:    "time element",
			html:    `<p><time datetime="2025-11-01T09:00:00Z">wczoraj</time></p>`,
			want:    ptrTime(time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)),
			wantRaw: "2025-11-01T09:00:00Z",
		},
		{
			name:    "date class text",
			html:    `<div class="czas"> 21 października <span>(10:57)</span></div>`,
			want:    ptrTime(time.Date(2025, 10, 21, 10, 57, 0, 0, time.UTC)),
			wantRaw: "21 października (10:57)",
		},
		{
			name:    "unparsed value keeps raw",
			html:    `<div class="date">sometime soon</div>`,
			want:    nil,
			wantRaw: "sometime soon",
		},
		{
			name: "no signal",
			html: `<p>nothing here</p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			art, err := newTestExtractor().Extract(tt.html)
			require.NoError(t, err)
			require.Equal(t, tt.wantRaw, art.PublishedRaw)
			if tt.want == nil {
				require.Nil(t, art.PublishedAt)
				return
			}
			require.NotNil(t, art.PublishedAt)
			require.True(t, tt.want.Equal(*art.PublishedAt), "got %s want %s", art.PublishedAt, tt.want)
		})
	}
}

func TestExtractSiteName(t *testing.T) {
	t.Parallel()

	art, err := newTestExtractor().Extract(`<meta name="application-name" content="App"><meta property="og:site_name" content="RMF24">`)
	require.NoError(t, err)
	require.Equal(t, "RMF24", art.SiteName)
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://cdn.example.com/a.jpg", ResolveURL("https://example.com/x", "//cdn.example.com/a.jpg"))
	require.Equal(t, "https://example.com/img/a.jpg", ResolveURL("https://example.com/news/x", "/img/a.jpg"))
	require.Equal(t, "https://other.com/a.jpg", ResolveURL("https://example.com/", "https://other.com/a.jpg"))
}

func TestHintLoader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rmf24pl.yaml"), []byte("content_css: div.article-body\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tvnwarszawa.yaml"), []byte("content_css:\n  - div.a\n  - div.b\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("content_css: {a: b}\n"), 0o600))

	loader := NewHintLoader(dir)

	hints, err := loader.Load("RMF24.pl")
	require.NoError(t, err)
	require.Equal(t, []string{"div.article-body"}, hints)

	hints, err = loader.Load("TVN Warszawa")
	require.NoError(t, err)
	require.Equal(t, []string{"div.a", "div.b"}, hints)

	hints, err = loader.Load("missing")
	require.NoError(t, err)
	require.Nil(t, hints)

	_, err = loader.Load("broken")
	require.Error(t, err)

	hints, err = NewHintLoader("").Load("RMF24.pl")
	require.NoError(t, err)
	require.Nil(t, hints)
}

func ptrTime(t time.Time) *time.Time { return &t }
