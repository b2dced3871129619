package domain

import (
	"fmt"
	"strings"
)

// CrawlMode selects how the extraction collaborator loads a page
type CrawlMode string

const (
	// CrawlModeRender executes the page in a browser before extraction
	CrawlModeRender CrawlMode = "render"
	// CrawlModeFetch extracts from the raw HTTP response
	CrawlModeFetch CrawlMode = "fetch"
)

// ParseCrawlMode converts a user supplied mode. Empty means fetch and
// "browser" is accepted as an alias of render.
func ParseCrawlMode(s string) (CrawlMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(CrawlModeFetch):
		return CrawlModeFetch, nil
	case string(CrawlModeRender), "browser":
		return CrawlModeRender, nil
	default:
		return "", fmt.Errorf("%w: unknown crawl mode %q", ErrInvalidInput, s)
	}
}

// IsValid returns true if this is a known mode
func (m CrawlMode) IsValid() bool {
	return m == CrawlModeRender || m == CrawlModeFetch
}

// CrawlOptions configures one crawl run
type CrawlOptions struct {
	BaseURL        string    `json:"base_url"`
	Mode           CrawlMode `json:"mode"`
	Strict         bool      `json:"strict"`
	MaxDepth       int       `json:"max_depth"`
	MaxConcurrency int       `json:"max_concurrency"`
	MaxPages       int       `json:"max_pages"`
}

// Link is an outbound link reported by the extraction collaborator
type Link struct {
	URL      string `json:"url"`
	Text     string `json:"text"`
	Hostname string `json:"hostname"`
	Pathname string `json:"pathname"`
}

// PageData is the extracted content of a page
type PageData struct {
	Title       string `json:"title"`
	CleanedText string `json:"cleanedText"`
}

// FetchResult is the response of one fetch from the extraction collaborator
type FetchResult struct {
	Data  PageData `json:"data"`
	Links []Link   `json:"links"`
	Total int      `json:"total"`
}

// CrawlResult is one successfully fetched page of a crawl
type CrawlResult struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// FrontierEntry is a URL waiting to be fetched and the depth it was found at
type FrontierEntry struct {
	URL   string
	Depth int
}
