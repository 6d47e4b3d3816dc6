package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/subdivisions/pkg/metrics"
	"github.com/Ramsey-B/subdivisions/pkg/tracing"
)

const (
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 2 * time.Minute

	// DefaultMaxResponseSize is the default maximum response body size (128MB)
	DefaultMaxResponseSize = 128 * 1024 * 1024
)

// Client wraps the HTTP client with logging and size limits
type Client struct {
	client          *http.Client
	logger          ectologger.Logger
	maxResponseSize int64
}

// Config holds HTTP client configuration
type Config struct {
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	MaxResponseSize int64
}

// DefaultConfig returns default HTTP client configuration
func DefaultConfig() Config {
	return Config{
		Timeout:         DefaultTimeout,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
		MaxResponseSize: DefaultMaxResponseSize,
	}
}

// NewClient creates a new HTTP client
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = DefaultMaxResponseSize
	}

	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		MaxIdleConns:    cfg.MaxIdleConns,
		IdleConnTimeout: cfg.IdleConnTimeout,
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		logger:          logger,
		maxResponseSize: cfg.MaxResponseSize,
	}
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d", e.URL, e.StatusCode)
}

// Fetch downloads url fully into memory.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "httpclient.Client.Fetch")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.HTTPRequestDuration.WithLabelValues(http.MethodGet).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "error").Inc()
		c.logger.WithContext(ctx).WithError(err).Errorf("HTTP request failed: GET %s", url)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	if resp.ContentLength > c.maxResponseSize {
		return nil, fmt.Errorf("response too large: %d bytes (max %d)", resp.ContentLength, c.maxResponseSize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxResponseSize {
		return nil, fmt.Errorf("response body too large: more than %d bytes", c.maxResponseSize)
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"url":   url,
		"bytes": len(body),
	}).Debugf("HTTP GET %s -> %d (%s)", url, resp.StatusCode, time.Since(start))

	return body, nil
}
