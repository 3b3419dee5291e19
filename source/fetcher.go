package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"auto_blog_package_publisher/generator"
	"auto_blog_package_publisher/logger"
)

// Article is a fetched source article with its body as Markdown.
type Article struct {
	Title      string
	Body       string
	SourceName string
	URL        string
}

// Request builds a generation request for the article.
func (a Article) Request(toggles generator.Toggles) generator.Request {
	return generator.Request{
		SourceTitle: a.Title,
		SourceBody:  a.Body,
		SourceName:  a.SourceName,
		SourceURL:   a.URL,
		Toggles:     toggles,
	}
}

// HTTPError is a non-200 answer from the source site.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetching %s: status %d", e.URL, e.StatusCode)
}

// Fetcher downloads an article page and converts its main content.
type Fetcher struct {
	client *http.Client
	log    *logger.Logger
}

func NewFetcher(client *http.Client, log *logger.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Fetcher{client: client, log: log}
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Article, error) {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Article{}, fmt.Errorf("invalid source url %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Article{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; blogpkg/1.0)")
	resp, err := f.client.Do(req)
	if err != nil {
		return Article{}, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Article{}, &HTTPError{StatusCode: resp.StatusCode, URL: rawURL}
	}
	html, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return Article{}, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	art, err := Parse(string(html), rawURL)
	if err != nil {
		return Article{}, err
	}
	f.log.Info("source fetched", "url", rawURL, "title", logger.Preview(art.Title, 80), "body_chars", len(art.Body))
	return art, nil
}

var (
	noiseSelector   = "script, style, nav, footer, header, aside, form, iframe, noscript, .sidebar, #sidebar, .ad, .advertisement, .cookie-banner"
	contentSelector = []string{"article", "main", ".entry-content", ".post-content", ".article-body", "[role='main']", "#content", ".content"}
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

// Parse extracts title, site name and Markdown body from an HTML page.
func Parse(html, pageURL string) (Article, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Article{}, fmt.Errorf("parsing html: %w", err)
	}
	art := Article{URL: pageURL, Title: pageTitle(doc), SourceName: siteName(doc, pageURL)}

	doc.Find(noiseSelector).Remove()
	content := doc.Find("body")
	for _, sel := range contentSelector {
		if s := doc.Find(sel).First(); s.Length() > 0 && strings.TrimSpace(s.Text()) != "" {
			content = s
			break
		}
	}
	// h1 已作为标题，不在正文中重复
	content.Find("h1").First().Remove()

	inner, err := content.Html()
	if err != nil {
		return Article{}, fmt.Errorf("rendering content: %w", err)
	}
	body, err := md.NewConverter(hostOf(pageURL), true, nil).ConvertString(inner)
	if err != nil {
		return Article{}, fmt.Errorf("converting to markdown: %w", err)
	}
	art.Body = strings.TrimSpace(blankLines.ReplaceAllString(body, "\n\n"))
	if art.Body == "" {
		return Article{}, errors.New("no article body found")
	}
	if art.Title == "" {
		return Article{}, errors.New("no article title found")
	}
	return art, nil
}

func pageTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	if t, _ := doc.Find("meta[property='og:title']").Attr("content"); strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	return strings.TrimSpace(doc.Find("head title").First().Text())
}

func siteName(doc *goquery.Document, pageURL string) string {
	if s, _ := doc.Find("meta[property='og:site_name']").Attr("content"); strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return strings.TrimPrefix(hostOf(pageURL), "www.")
}

func hostOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return u.Host
}
