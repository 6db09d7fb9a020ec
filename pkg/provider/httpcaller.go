package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	llmerrors "github.com/scriptloom/llmrelay/pkg/errors"
)

// maxResponseBodyBytes caps upstream response bodies to 10MB.
const maxResponseBodyBytes int64 = 10 * 1024 * 1024

// defaultCooldown is applied when a backend rate-limits us without saying
// for how long.
const defaultCooldown = 60 * time.Second

// ErrorMapper converts a provider-specific error response into a
// standardized *errors.LLMError.
type ErrorMapper func(statusCode int, body []byte) error

// HTTPCaller is the thin per-provider request helper. It owns throttling,
// admission, transport-error classification, and rate-limit bookkeeping so
// individual adapters only describe their wire format.
type HTTPCaller struct {
	client   *http.Client
	baseURL  string
	headers  map[string]string
	provider string
	limiter  RateLimiter
	throttle *rate.Limiter
	gate     chan struct{}
	mapErr   ErrorMapper
}

// NewHTTPCaller builds a caller for one provider instance. headers must
// include the adapter's auth headers; they are never logged.
func NewHTTPCaller(cfg Config, headers map[string]string, limiter RateLimiter, mapErr ErrorMapper) *HTTPCaller {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &HTTPCaller{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		},
		baseURL:  cfg.BaseURL,
		headers:  headers,
		provider: string(cfg.Identity),
		limiter:  limiter,
		mapErr:   mapErr,
	}

	if cfg.RPM > 0 {
		c.throttle = rate.NewLimiter(rate.Limit(float64(cfg.RPM)/60.0), 1)
	}
	if cfg.SingleFlight {
		c.gate = make(chan struct{}, 1)
	}
	return c
}

// Do issues one request and decodes the JSON response into out (skipped when
// out is nil). Failures are always a *errors.LLMError.
func (c *HTTPCaller) Do(ctx context.Context, method, path string, body, out any) error {
	if c.throttle != nil {
		if err := c.throttle.Wait(ctx); err != nil {
			return llmerrors.NewTimeoutError(c.provider, "", err.Error())
		}
	}
	if c.gate != nil {
		select {
		case c.gate <- struct{}{}:
			defer func() { <-c.gate }()
		case <-ctx.Done():
			return llmerrors.NewTimeoutError(c.provider, "", ctx.Err().Error())
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return llmerrors.NewInvalidRequestError(c.provider, "", fmt.Sprintf("marshal request: %v", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return llmerrors.NewInvalidRequestError(c.provider, "", fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return c.classifyTransportError(err)
	}
	defer resp.Body.Close()

	payload, err := readLimitedBody(resp.Body, maxResponseBodyBytes)
	if err != nil {
		return llmerrors.NewConnectionError(c.provider, "", fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode >= 400 {
		mapped := c.mapErr(resp.StatusCode, payload)
		c.recordCooldown(mapped, resp)
		return mapped
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return llmerrors.NewInternalError(c.provider, "", fmt.Sprintf("unmarshal response: %v", err))
	}
	return nil
}

// classifyTransportError distinguishes timeouts from plain connection
// failures. Both are retryable, but they carry different type tags.
func (c *HTTPCaller) classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewTimeoutError(c.provider, "", err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return llmerrors.NewTimeoutError(c.provider, "", err.Error())
	}
	return llmerrors.NewConnectionError(c.provider, "", err.Error())
}

// recordCooldown enriches rate-limit errors with the backend's Retry-After
// and registers the cooldown on the shared limiter.
func (c *HTTPCaller) recordCooldown(mapped error, resp *http.Response) {
	var llmErr *llmerrors.LLMError
	if !errors.As(mapped, &llmErr) || llmErr.Type != llmerrors.TypeRateLimit {
		return
	}
	wait := defaultCooldown
	if raw := resp.Header.Get("Retry-After"); raw != "" {
		if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
			wait = time.Duration(secs * float64(time.Second))
		}
	}
	llmErr.RetryAfter = wait
	if c.limiter != nil {
		c.limiter.SetRateLimit(c.provider, wait)
	}
}

// Close releases idle connections held by the underlying transport.
func (c *HTTPCaller) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// readLimitedBody reads up to maxBytes from reader, failing when exceeded.
func readLimitedBody(reader io.Reader, maxBytes int64) ([]byte, error) {
	limited := io.LimitReader(reader, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxBytes)
	}
	return body, nil
}
