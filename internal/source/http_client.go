package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"time"

	"github.com/masahif/steamharvest/internal/metrics"
)

// maxBodySize caps a decoded response body
const maxBodySize = 32 << 20

// HTTPClient issues rate limited JSON GET requests
type HTTPClient struct {
	client    *http.Client
	userAgent string
	limiter   *RateLimiter
	logger    *slog.Logger
}

// NewHTTPClient creates a new HTTP client. limiter may be nil.
func NewHTTPClient(userAgent string, timeout time.Duration, limiter *RateLimiter, logger *slog.Logger) *HTTPClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPClient{
		client:    client,
		userAgent: userAgent,
		limiter:   limiter,
		logger:    logger,
	}
}

// GetJSON requests rawURL with params and decodes the body into out.
// endpoint labels the request in metrics and logs. A non-2xx response or a
// transport error yields Failed, an undecodable body yields Malformed.
func (h *HTTPClient) GetJSON(ctx context.Context, endpoint, rawURL string, params url.Values, out any) (status Status, err error) {
	startTime := time.Now()
	defer func() {
		metrics.ObserveSourceRequest(endpoint, status.String(), time.Since(startTime))
	}()

	if len(params) > 0 {
		rawURL = rawURL + "?" + params.Encode()
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx, rawURL); err != nil {
			return Failed, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Failed, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	var firstByte time.Time
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			firstByte = time.Now()
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	resp, err := h.client.Do(req)
	if err != nil {
		return Failed, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if !firstByte.IsZero() {
		h.logger.Debug("Source response",
			"endpoint", endpoint,
			"status_code", resp.StatusCode,
			"ttfb_ms", firstByte.Sub(startTime).Milliseconds())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Failed, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return NotFound, nil
		}
		if ctx.Err() != nil {
			return Failed, fmt.Errorf("failed to read response body: %w", err)
		}
		return Malformed, fmt.Errorf("failed to decode response body: %w", err)
	}

	return Found, nil
}

// Close closes idle connections
func (h *HTTPClient) Close() {
	h.client.CloseIdleConnections()
}
