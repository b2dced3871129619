package domain

import (
	"testing"
)

func TestNewSite(t *testing.T) {
	site := NewSite("https://example.com")

	if site.ID == "" {
		t.Error("expected non-empty ID")
	}
	if site.URL != "https://example.com" {
		t.Errorf("expected URL https://example.com, got %s", site.URL)
	}
	if site.TotalPages != 0 {
		t.Errorf("expected zero total pages, got %d", site.TotalPages)
	}
	if site.CreatedAt.IsZero() || site.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestNewPage(t *testing.T) {
	page := NewPage("site-1", "https://example.com/about", "About")

	if page.ID == "" {
		t.Error("expected non-empty ID")
	}
	if page.SiteID != "site-1" {
		t.Errorf("expected site-1, got %s", page.SiteID)
	}
	if page.Title != "About" {
		t.Errorf("expected About, got %s", page.Title)
	}
	if page.URL != "https://example.com/about" {
		t.Errorf("unexpected URL %s", page.URL)
	}
}

func TestNormalizeReference(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com", "https://example.com/"},
		{"https://example.com/", "https://example.com/"},
		{"https://example.com/docs/intro", "https://example.com/docs/intro/"},
		{"", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeReference(tt.in); got != tt.want {
				t.Errorf("NormalizeReference(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
