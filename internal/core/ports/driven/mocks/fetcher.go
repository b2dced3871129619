package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

// MockPageFetcher serves canned pages and tracks calls and concurrency
type MockPageFetcher struct {
	mu       sync.Mutex
	pages    map[string]*domain.FetchResult
	failures map[string]error
	calls    map[string]int
	inFlight int
	peak     int

	// Delay is slept inside every Fetch to make overlap observable
	Delay time.Duration

	// Custom behavior hook (optional)
	FetchFn func(url string, strict bool, mode domain.CrawlMode) (*domain.FetchResult, error)
}

// NewMockPageFetcher creates a new MockPageFetcher
func NewMockPageFetcher() *MockPageFetcher {
	return &MockPageFetcher{
		pages:    make(map[string]*domain.FetchResult),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (m *MockPageFetcher) Fetch(ctx context.Context, url string, strict bool, mode domain.CrawlMode) (*domain.FetchResult, error) {
	m.mu.Lock()
	m.calls[url]++
	m.inFlight++
	if m.inFlight > m.peak {
		m.peak = m.inFlight
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.FetchFn != nil {
		return m.FetchFn(url, strict, mode)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failures[url]; ok {
		return nil, err
	}
	page, ok := m.pages[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: upstream returned 404", url)
	}
	return page, nil
}

// Helper methods for testing

// AddPage registers a page with the given outbound links
func (m *MockPageFetcher) AddPage(url, title, text string, links ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := &domain.FetchResult{
		Data:  domain.PageData{Title: title, CleanedText: text},
		Total: len(links),
	}
	for _, link := range links {
		result.Links = append(result.Links, domain.Link{URL: link})
	}
	m.pages[url] = result
}

// FailURL makes every fetch of url return err
func (m *MockPageFetcher) FailURL(url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[url] = err
}

// Calls returns how many times url was fetched
func (m *MockPageFetcher) Calls(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[url]
}

// TotalCalls returns the number of fetches across all URLs
func (m *MockPageFetcher) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// PeakConcurrency returns the highest number of simultaneous fetches seen
func (m *MockPageFetcher) PeakConcurrency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}
