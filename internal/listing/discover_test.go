package listing

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

const listingPage = `<html><body>
<a href="https://www.rmf24.pl/fakty/polska">self</a>
<a href="https://www.rmf24.pl/fakty/polska#top">self with fragment</a>
<a href="/fakty/polska/news-wypadek,nId,7001">root relative</a>
<a href="//www.rmf24.pl/fakty/swiat/news-szczyt,nId,7002#comments">protocol relative</a>
<a href="https://www.rmf24.pl/fakty/polska/news-wypadek,nId,7001">duplicate</a>
<a href="https://www.facebook.com/rmf24">third party</a>
<a href="https://www.rmf24.pl/galeria/zdjecia,nId,7003">gallery</a>
<a href="https://www.rmf24.pl/tag/pogoda">tag</a>
<a href="https://www.rmf24.pl/fakty/polska,nPack,2">pagination</a>
<a href="mailto:redakcja@rmf24.pl">mail</a>
<a href="javascript:void(0)">js</a>
<a href="https://WWW.RMF24.PL/sport/news-mecz">upper host</a>
</body></html>`

func TestDiscoverSameHostFilter(t *testing.T) {
	t.Parallel()

	got, err := Discover("https://www.rmf24.pl/fakty/polska", listingPage, nil)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://WWW.RMF24.PL/sport/news-mecz",
		"https://www.rmf24.pl/fakty/polska/news-wypadek,nId,7001",
		"https://www.rmf24.pl/fakty/swiat/news-szczyt,nId,7002",
	}, got)
}

func TestDiscoverPatternWithEscapeHatch(t *testing.T) {
	t.Parallel()

	page := `<a href="/fakty/news-a-123.html">match</a>
<a href="/fakty/news-b,nId,55">escape hatch</a>
<a href="/fakty/o-nas">no match</a>`

	got, err := Discover("https://example.pl/fakty", page, regexp.MustCompile(`news-[a-z]-\d+\.html$`))
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://example.pl/fakty/news-a-123.html",
		"https://example.pl/fakty/news-b,nId,55",
	}, got)
}

func TestDiscoverRejectsRelativeListingURL(t *testing.T) {
	t.Parallel()

	_, err := Discover("/fakty", listingPage, nil)
	require.Error(t, err)
}

func TestDiscoverEmptyPage(t *testing.T) {
	t.Parallel()

	got, err := Discover("https://example.pl/", "", nil)
	require.NoError(t, err)
	require.Empty(t, got)
}
