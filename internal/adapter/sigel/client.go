package sigel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/victor-cakess/hometown/internal/config"
	"github.com/victor-cakess/hometown/internal/domain"
	"github.com/victor-cakess/hometown/internal/observability"
)

// maxBodyBytes caps a single response body.
const maxBodyBytes = 64 << 20

// Client queries the SIGEL ArcGIS feature service. It implements
// pipeline.Fetcher.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	maxRetries    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	maxBody       int64
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewClient creates a feature service client. Every request is bounded by
// cfg.Timeout.
func NewClient(cfg config.FetcherConfig, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.URL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxRetries:    max(1, cfg.MaxRetries),
		retryDelay:    cfg.RetryDelay,
		maxRetryDelay: cfg.MaxRetryDelay,
		maxBody:       maxBodyBytes,
		metrics:       metrics,
		logger:        logger,
	}
}

func baseParams() url.Values {
	return url.Values{
		"where":          {"1=1"},
		"outFields":      {"*"},
		"f":              {"json"},
		"returnGeometry": {"true"},
		"spatialRel":     {"esriSpatialRelIntersects"},
	}
}

// Count returns the total number of records in the layer.
func (c *Client) Count(ctx context.Context) (int64, error) {
	params := baseParams()
	params.Set("returnCountOnly", "true")

	body, err := c.fetch(ctx, params, "count")
	if err != nil {
		return 0, err
	}

	var resp struct {
		Count *int64 `json:"count"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%w: count response: %v", domain.ErrValidation, err)
	}
	if resp.Count == nil {
		return 0, fmt.Errorf("%w: count response has no count field", domain.ErrValidation)
	}
	return *resp.Count, nil
}

// Page fetches up to limit records starting at offset.
func (c *Client) Page(ctx context.Context, offset, limit int) (domain.PagePayload, error) {
	params := baseParams()
	params.Set("resultOffset", strconv.Itoa(offset))
	params.Set("resultRecordCount", strconv.Itoa(limit))

	body, err := c.fetch(ctx, params, "page")
	if err != nil {
		return domain.PagePayload{}, err
	}
	if err := domain.ValidatePayload(body); err != nil {
		return domain.PagePayload{}, err
	}

	page, err := domain.DecodePage(body)
	if err != nil {
		return domain.PagePayload{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	c.metrics.PagesFetched.Inc()
	return page, nil
}

// Sample fetches the first n records, used to read the freshness marker.
func (c *Client) Sample(ctx context.Context, n int) (domain.PagePayload, error) {
	return c.Page(ctx, 0, n)
}

// fetch performs the GET with exponential backoff. Only connection failures
// are retried.
func (c *Client) fetch(ctx context.Context, params url.Values, query string) ([]byte, error) {
	fullURL := c.baseURL + "?" + params.Encode()
	delay := c.retryDelay

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		body, err := c.doRequest(ctx, fullURL, query)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, domain.ErrConnection) {
			return nil, err
		}
		lastErr = err

		if attempt == c.maxRetries {
			break
		}
		c.logger.Warn("sigel request failed, retrying",
			"query", query,
			"attempt", attempt,
			"max_retries", c.maxRetries,
			"delay", delay,
			"error", err,
		)
		c.metrics.FetchRetries.Inc()
		if !retry.SleepWithContext(ctx, delay) {
			return nil, ctx.Err()
		}
		delay = retry.NextBackoff(delay, c.maxRetryDelay)
	}

	c.logger.Error("sigel request failed", "query", query, "attempts", c.maxRetries, "error", lastErr)
	return nil, fmt.Errorf("after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) doRequest(ctx context.Context, fullURL, query string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RequestDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %s request: %v", domain.ErrConnection, query, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %v", domain.ErrConnection, query, err)
	}
	// A larger body would arrive truncated on every attempt.
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: %s response exceeds %d bytes", domain.ErrValidation, query, c.maxBody)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: sigel API error: status %d: %s", domain.ErrConnection, resp.StatusCode, truncate(body, 256))
	}

	// ArcGIS reports failures as HTTP 200 with an error object.
	var envelope struct {
		Error *domain.ServiceError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %v", domain.ErrConnection, query, err)
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnection, envelope.Error)
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
