package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto_blog_package_publisher/generator"
	"auto_blog_package_publisher/logger"
)

const samplePage = `<!doctype html>
<html><head>
<title>Central bank holds rates | Daily Wire Service</title>
<meta property="og:site_name" content="Daily Wire">
</head>
<body>
<header><nav><a href="/">Home</a></nav></header>
<article>
  <h1>Central bank holds rates</h1>
  <p>The bank kept its key rate at <strong>4.5%</strong> on Tuesday.</p>
  <h2>Why it matters</h2>
  <ul><li>Mortgages stay flat</li><li>Savers keep yields</li></ul>
  <script>track()</script>
</article>
<aside class="sidebar">Most read</aside>
<footer>© 2025</footer>
</body></html>`

func TestParsePicksArticleContent(t *testing.T) {
	art, err := Parse(samplePage, "https://www.dailywire.example/markets/rates")
	require.NoError(t, err)

	assert.Equal(t, "Central bank holds rates", art.Title)
	assert.Equal(t, "Daily Wire", art.SourceName)
	assert.Contains(t, art.Body, "**4.5%**")
	assert.Contains(t, art.Body, "## Why it matters")
	assert.Contains(t, art.Body, "- Mortgages stay flat")
	assert.NotContains(t, art.Body, "Central bank holds rates")
	assert.NotContains(t, art.Body, "Most read")
	assert.NotContains(t, art.Body, "track()")
	assert.NotContains(t, art.Body, "Home")
}

func TestParseFallsBackToTitleTagAndHost(t *testing.T) {
	art, err := Parse(`<html><head><title> Plain page </title></head><body><p>Only a paragraph.</p></body></html>`, "https://www.news.example/a")
	require.NoError(t, err)
	assert.Equal(t, "Plain page", art.Title)
	assert.Equal(t, "news.example", art.SourceName)
	assert.Equal(t, "Only a paragraph.", art.Body)
}

func TestParseRejectsEmptyBody(t *testing.T) {
	_, err := Parse(`<html><head><title>x</title></head><body><script>1</script></body></html>`, "https://a.example/")
	assert.Error(t, err)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), logger.Nop())
	art, err := f.Fetch(context.Background(), srv.URL+"/markets/rates")
	require.NoError(t, err)
	assert.Equal(t, "Central bank holds rates", art.Title)
	assert.Equal(t, srv.URL+"/markets/rates", art.URL)

	req := art.Request(generator.AllToggles())
	require.NoError(t, req.Validate())
	assert.Equal(t, "Daily Wire", req.SourceName)
	assert.True(t, req.Toggles.IncludeStoryTeasers)

	_, err = f.Fetch(context.Background(), srv.URL+"/gone")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)

	_, err = f.Fetch(context.Background(), "ftp://example.com/x")
	assert.Error(t, err)
}
