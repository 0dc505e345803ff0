package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"courtscraper/pkg/config"
	"courtscraper/pkg/errors"
	"courtscraper/pkg/logger"
	"courtscraper/pkg/ratelimit"
	"courtscraper/pkg/retry"
)

// Client talks to the court archive API. Every request goes through the
// adaptive rate limiter, and request outcomes feed back into it so the
// client slows down when the server pushes back.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	limiter     *ratelimit.AdaptiveLimiter
	maxAttempts int
	log         logger.Logger
}

// NewClient creates an API client from configuration
func NewClient(cfg *config.Config, limiter *ratelimit.AdaptiveLimiter, log logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.API.Timeout,
		},
		baseURL:     strings.TrimRight(cfg.API.BaseURL, "/"),
		userAgent:   cfg.API.UserAgent,
		limiter:     limiter,
		maxAttempts: cfg.API.MaxAttempts,
		log:         log,
	}
}

// Limiter exposes the client's rate limiter for state inspection
func (c *Client) Limiter() *ratelimit.AdaptiveLimiter {
	return c.limiter
}

// GetJSON fetches a relative API path and returns the raw JSON body.
// Transient failures are retried with limiter-derived backoff; throttling
// responses grow the limiter's delay before the next attempt.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.getJSON(ctx, u, endpointKey(path))
}

// GetAbsoluteJSON fetches a fully qualified URL, used for following href
// links embedded in API responses
func (c *Client) GetAbsoluteJSON(ctx context.Context, rawURL string) (json.RawMessage, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Newf(errors.ErrorTypeResponseFormat, "invalid resource URL %q: %v", rawURL, err)
	}
	return c.getJSON(ctx, rawURL, endpointKey(parsed.Path))
}

func (c *Client) getJSON(ctx context.Context, fullURL, endpoint string) (json.RawMessage, error) {
	return retry.DoWithResult(func() (json.RawMessage, error) {
		resp, err := c.do(ctx, fullURL, endpoint, "application/json")
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			c.limiter.ReportFailure(endpoint, false)
			return nil, errors.Wrap(errors.ErrorTypeNetwork, "reading response body", err)
		}
		if !json.Valid(data) {
			return nil, errors.Newf(errors.ErrorTypeResponseFormat, "response from %s is not valid JSON", fullURL)
		}
		return data, nil
	}, c.retryConfig(ctx))
}

// Download opens a streaming response for a media URL. The caller owns the
// returned body. Retries cover connection and status failures; a failure
// mid-stream surfaces as a read error on the body.
func (c *Client) Download(ctx context.Context, rawURL string) (io.ReadCloser, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", errors.Newf(errors.ErrorTypeResponseFormat, "invalid media URL %q: %v", rawURL, err)
	}
	endpoint := endpointKey(parsed.Path)

	resp, err := retry.DoWithResult(func() (*http.Response, error) {
		return c.do(ctx, rawURL, endpoint, "")
	}, c.retryConfig(ctx))
	if err != nil {
		return nil, "", err
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// Head checks that a URL is reachable without downloading it. Unlike the
// GET paths this is a single attempt; callers treat failure as "skip", not
// as an error worth retrying.
func (c *Client) Head(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.Newf(errors.ErrorTypeResponseFormat, "invalid URL %q: %v", rawURL, err)
	}
	endpoint := endpointKey(parsed.Path)

	if err := c.limiter.Acquire(ctx, endpoint); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeUnknown, "building request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.limiter.ReportFailure(endpoint, false)
		return errors.Wrap(errors.ErrorTypeNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := classifyStatus(resp.StatusCode, rawURL)
		c.limiter.ReportFailure(endpoint, errors.IsRateLimitSignal(apiErr))
		return apiErr
	}

	c.limiter.ReportSuccess(endpoint)
	return nil
}

// do performs one HTTP GET through the rate limiter and classifies the
// outcome. A non-nil response is returned only on 200.
func (c *Client) do(ctx context.Context, fullURL, endpoint, accept string) (*http.Response, error) {
	if err := c.limiter.Acquire(ctx, endpoint); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeUnknown, "building request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.limiter.ReportFailure(endpoint, false)
		return nil, errors.Wrap(errors.ErrorTypeNetwork, "request failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		apiErr := classifyStatus(resp.StatusCode, fullURL)
		c.limiter.ReportFailure(endpoint, errors.IsRateLimitSignal(apiErr))
		return nil, apiErr
	}

	c.limiter.ReportSuccess(endpoint)
	return resp, nil
}

func (c *Client) retryConfig(ctx context.Context) *retry.Config {
	return &retry.Config{
		MaxAttempts: c.maxAttempts,
		Backoff:     &retry.LimiterBackoff{Limiter: c.limiter},
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      c.log,
	}
}

// classifyStatus maps an HTTP status code to a typed error
func classifyStatus(code int, fullURL string) error {
	switch {
	case code == http.StatusTooManyRequests:
		return &errors.Error{
			Type:    errors.ErrorTypeRateLimit,
			Message: fmt.Sprintf("rate limited fetching %s", fullURL),
			Code:    code,
		}
	case code == http.StatusNotFound:
		return &errors.Error{
			Type:    errors.ErrorTypeNotFound,
			Message: fmt.Sprintf("resource not found: %s", fullURL),
			Code:    code,
		}
	case code >= 500:
		return &errors.Error{
			Type:    errors.ErrorTypeServerError,
			Message: fmt.Sprintf("server error fetching %s", fullURL),
			Code:    code,
		}
	default:
		return &errors.Error{
			Type:    errors.ErrorTypeUnknown,
			Message: fmt.Sprintf("unexpected status fetching %s", fullURL),
			Code:    code,
		}
	}
}

// endpointKey reduces a request path to a rate limiting bucket. Paths that
// differ only in resource ID share a bucket, so backoff learned on one case
// applies to the next.
func endpointKey(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "/"
	}
	parts := strings.SplitN(path, "/", 2)
	return parts[0]
}
