package fetcher

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Config contains configuration for the page fetchers.
type Config struct {
	// ExtractorURL is the endpoint of the extraction service.
	// Empty selects the direct HTML fetcher.
	ExtractorURL string

	// RateLimit caps outbound requests per second. 0 means unlimited.
	RateLimit float64

	// Timeout bounds a single request.
	Timeout time.Duration

	// UserAgent is sent by the direct HTML fetcher.
	UserAgent string

	// MaxBodyBytes caps how much of a page the direct fetcher reads.
	MaxBodyBytes int64

	Logger *slog.Logger
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		UserAgent:    "sitechat-crawler/1.0",
		MaxBodyBytes: 5 << 20, // 5MB
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.ExtractorURL = strings.TrimSpace(c.ExtractorURL)
}

// limiter throttles outbound requests. A nil bucket never waits.
type limiter struct {
	bucket *rate.Limiter
}

func newLimiter(perSecond float64) *limiter {
	if perSecond <= 0 {
		return &limiter{}
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &limiter{bucket: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a request may be sent
func (l *limiter) Wait(ctx context.Context) error {
	if l.bucket == nil {
		return nil
	}
	return l.bucket.Wait(ctx)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
