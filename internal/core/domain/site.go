package domain

import "time"

// Site represents one ingested website, keyed by its root URL
type Site struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	TotalPages int       `json:"total_pages"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewSite creates a site for the given root URL
func NewSite(url string) *Site {
	now := time.Now()
	return &Site{
		ID:        GenerateID(),
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Page represents one fetched and extracted URL under a site
type Page struct {
	ID        string            `json:"id"`
	SiteID    string            `json:"site_id"`
	Title     string            `json:"title"`
	URL       string            `json:"url"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewPage creates a page owned by siteID
func NewPage(siteID, url, title string) *Page {
	now := time.Now()
	return &Page{
		ID:        GenerateID(),
		SiteID:    siteID,
		Title:     title,
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Chunk is a retrieval-sized segment of a page plus its embedding.
// Index is zero-based and contiguous within a page.
type Chunk struct {
	ID        string    `json:"id"`
	PageID    string    `json:"page_id"`
	Index     int       `json:"chunk_index"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SiteWithPages combines a site with a listing of its pages
type SiteWithPages struct {
	Site  *Site   `json:"site"`
	Pages []*Page `json:"pages"`
}

// PageDetail combines a page with its stored chunks
type PageDetail struct {
	Page   *Page    `json:"page"`
	Chunks []*Chunk `json:"chunks"`
}

// NormalizeReference renders a source URL as an answer reference.
// References always carry a trailing slash.
func NormalizeReference(url string) string {
	if len(url) > 0 && url[len(url)-1] == '/' {
		return url
	}
	return url + "/"
}
