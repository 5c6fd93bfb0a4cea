// Package web fetches web articles and converts their main content to Markdown.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
	"github.com/audiovideoron/distillyzer/internal/logger"
	"github.com/audiovideoron/distillyzer/internal/retry"
)

const (
	// MinContentLength is the shortest extracted article accepted, in characters.
	MinContentLength = 100

	// MaxBodySize caps the HTML read from a single page.
	MaxBodySize = 10 << 20

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent looks like a desktop browser; some sites refuse bare clients.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Ensure Fetcher implements the interface.
var _ driven.ArticleFetcher = (*Fetcher)(nil)

// noise is removed before the main content is picked.
var noise = []string{
	"script", "style", "noscript", "iframe", "svg", "form",
	"header", "footer", "nav", "aside",
	".advertisement", ".ad", ".sidebar", ".comments", ".share",
	"[role=navigation]", "[role=banner]", "[role=contentinfo]",
}

// contentSelectors are tried in order; the first with enough text wins.
var contentSelectors = []string{
	"article", "main", "[role=main]",
	".post-content", ".article-content", ".entry-content", "#content",
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// Fetcher downloads articles over HTTP.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// NewFetcher creates an article fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads rawURL and extracts its main content as Markdown.
// Pages with less than MinContentLength characters of content are rejected
// with domain.ErrInvalidInput.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*driven.Article, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: not an http(s) URL: %q", domain.ErrInvalidInput, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := retry.CheckResponse(resp); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}

	title := extractTitle(doc)
	if title == "" {
		title = TitleFromURL(rawURL)
	}
	siteName := metaContent(doc, "og:site_name")
	if siteName == "" {
		siteName = u.Host
	}

	doc.Find(strings.Join(noise, ", ")).Remove()
	html, err := goquery.OuterHtml(mainContent(doc))
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", rawURL, err)
	}

	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", rawURL, err)
	}
	md = strings.TrimSpace(blankLines.ReplaceAllString(md, "\n\n"))

	if n := utf8.RuneCountInString(md); n < MinContentLength {
		return nil, fmt.Errorf("%w: could not extract meaningful content from %s (%d characters)",
			domain.ErrInvalidInput, rawURL, n)
	}
	logger.Debug("web: %s extracted %d characters", rawURL, len(md))

	return &driven.Article{
		URL:      rawURL,
		Title:    title,
		SiteName: siteName,
		SiteURL:  u.Scheme + "://" + u.Host,
		Markdown: md,
	}, nil
}

func extractTitle(doc *goquery.Document) string {
	if t := metaContent(doc, "og:title"); t != "" {
		return t
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func metaContent(doc *goquery.Document, property string) string {
	v, _ := doc.Find(`meta[property="` + property + `"]`).First().Attr("content")
	return strings.TrimSpace(v)
}

func mainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range contentSelectors {
		s := doc.Find(sel).First()
		if s.Length() > 0 && utf8.RuneCountInString(strings.TrimSpace(s.Text())) >= MinContentLength {
			return s
		}
	}
	return doc.Find("body")
}

// TitleFromURL derives a title from the last path segment of rawURL,
// or "Untitled Article" when there is none.
func TitleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "Untitled Article"
	}
	last := path.Base(strings.Trim(u.Path, "/"))
	if last == "." || last == "" {
		return "Untitled Article"
	}
	title := strings.NewReplacer("-", " ", "_", " ").Replace(last)
	if r := []rune(title); len(r) > 100 {
		title = string(r[:100])
	}
	return title
}
