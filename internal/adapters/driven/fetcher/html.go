package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
)

// Ensure HTMLFetcher implements PageFetcher
var _ driven.PageFetcher = (*HTMLFetcher)(nil)

// HTMLFetcher downloads pages itself and extracts title, visible text and
// anchors. It cannot execute scripts, so render mode behaves like fetch.
type HTMLFetcher struct {
	httpClient   *http.Client
	limiter      *limiter
	userAgent    string
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewHTMLFetcher creates a direct HTML fetcher
func NewHTMLFetcher(cfg Config) *HTMLFetcher {
	cfg.applyDefaults()
	return &HTMLFetcher{
		httpClient:   newHTTPClient(cfg.Timeout),
		limiter:      newLimiter(cfg.RateLimit),
		userAgent:    cfg.UserAgent,
		maxBodyBytes: cfg.MaxBodyBytes,
		logger:       cfg.Logger,
	}
}

// New returns the extraction service client when an extractor URL is
// configured and the direct HTML fetcher otherwise.
func New(cfg Config) (driven.PageFetcher, error) {
	if strings.TrimSpace(cfg.ExtractorURL) != "" {
		return NewExtractorFetcher(cfg)
	}
	return NewHTMLFetcher(cfg), nil
}

// Fetch implements PageFetcher
func (f *HTMLFetcher) Fetch(ctx context.Context, pageURL string, strict bool, mode domain.CrawlMode) (*domain.FetchResult, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page URL: %w", err)
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: upstream returned %d", pageURL, resp.StatusCode)
	}
	// Redirects change what relative links resolve against
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	result := extractPage(doc, base, strict)
	f.logger.Debug("page fetched", "url", pageURL, "mode", mode, "links", len(result.Links))
	return result, nil
}

// Elements whose text is never visible
var hiddenElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

// Page chrome dropped in strict mode
var boilerplateElements = map[atom.Atom]bool{
	atom.Nav:    true,
	atom.Header: true,
	atom.Footer: true,
	atom.Aside:  true,
	atom.Form:   true,
}

// Elements that start a new paragraph of text
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Main: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Li: true,
	atom.Ul: true, atom.Ol: true, atom.Table: true, atom.Tr: true,
	atom.Blockquote: true, atom.Pre: true, atom.Br: true, atom.Hr: true,
	atom.Dl: true, atom.Dt: true, atom.Dd: true, atom.Figcaption: true,
	atom.Nav: true, atom.Header: true, atom.Footer: true, atom.Aside: true,
}

type pageExtractor struct {
	base   *url.URL
	strict bool

	title  string
	blocks []string
	cur    strings.Builder
	links  []domain.Link
	seen   map[string]bool
}

func extractPage(doc *html.Node, base *url.URL, strict bool) *domain.FetchResult {
	e := &pageExtractor{base: base, strict: strict, seen: make(map[string]bool)}
	e.walk(doc, true)
	e.flush()

	return &domain.FetchResult{
		Data: domain.PageData{
			Title:       e.title,
			CleanedText: strings.Join(e.blocks, "\n\n"),
		},
		Links: e.links,
		Total: len(e.links),
	}
}

// walk collects text and links below n. Links inside boilerplate are still
// followed in strict mode; only their text is dropped.
func (e *pageExtractor) walk(n *html.Node, visible bool) {
	if n.Type == html.ElementNode {
		switch {
		case n.DataAtom == atom.Title:
			if e.title == "" {
				e.title = collapseSpace(nodeText(n))
			}
			return
		case n.DataAtom == atom.A:
			e.addLink(n)
		case hiddenElements[n.DataAtom]:
			return
		case e.strict && boilerplateElements[n.DataAtom]:
			visible = false
		}
	}

	if n.Type == html.TextNode {
		if !visible {
			return
		}
		if text := collapseSpace(n.Data); text != "" {
			if e.cur.Len() > 0 {
				e.cur.WriteByte(' ')
			}
			e.cur.WriteString(text)
		}
		return
	}

	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		e.flush()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.walk(c, visible)
	}
	if block {
		e.flush()
	}
}

func (e *pageExtractor) flush() {
	if e.cur.Len() == 0 {
		return
	}
	e.blocks = append(e.blocks, e.cur.String())
	e.cur.Reset()
}

func (e *pageExtractor) addLink(n *html.Node) {
	var href string
	for _, attr := range n.Attr {
		if attr.Key == "href" {
			href = strings.TrimSpace(attr.Val)
			break
		}
	}
	if href == "" {
		return
	}

	ref, err := url.Parse(href)
	if err != nil {
		return
	}
	abs := e.base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return
	}
	abs.Fragment = ""

	key := abs.String()
	if e.seen[key] {
		return
	}
	e.seen[key] = true

	e.links = append(e.links, domain.Link{
		URL:      key,
		Text:     collapseSpace(nodeText(n)),
		Hostname: abs.Hostname(),
		Pathname: abs.EscapedPath(),
	})
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
