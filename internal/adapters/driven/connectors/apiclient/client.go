// Package apiclient is the HTTP client shared by platform connectors.
// It retries transient failures, classifies responses into the provider
// error taxonomy and enforces the URL guard on every call.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/applicant-sync/internal/core/domain"
)

const (
	// DefaultMaxCVBytes caps a single CV download
	DefaultMaxCVBytes = 10 << 20

	maxResponseBytes = 32 << 20
	sampleBytes      = 512
)

// Client performs guarded, retried calls against platform APIs.
type Client struct {
	httpClient *http.Client
	guard      *Guard
	backoff    time.Duration
	maxCVBytes int64
	logger     *slog.Logger
}

// Config holds configuration for the API client.
type Config struct {
	Guard      *Guard            // default: strict guard
	Transport  http.RoundTripper // Optional: replaces the guarded transport
	Backoff    time.Duration     // Step of the linear retry backoff (default: 1s)
	MaxCVBytes int64             // default: 10 MiB
	Logger     *slog.Logger
}

// New creates an API client.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	guard := cfg.Guard
	if guard == nil {
		guard = NewGuard(GuardConfig{})
	}

	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	maxCV := cfg.MaxCVBytes
	if maxCV <= 0 {
		maxCV = DefaultMaxCVBytes
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			DialContext:         guard.DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}

	return &Client{
		httpClient: &http.Client{
			Transport:     transport,
			CheckRedirect: guard.CheckRedirect,
		},
		guard:      guard,
		backoff:    backoff,
		maxCVBytes: maxCV,
		logger:     logger,
	}
}

// Guard returns the client's URL guard.
func (c *Client) Guard() *Guard {
	return c.guard
}

// Request describes one outbound call. Body is kept as bytes so retries can
// resend it.
type Request struct {
	Op     string
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Do performs an API call against the configuration's base URL and returns
// the response body of a 2xx response.
func (c *Client) Do(ctx context.Context, cfg *domain.ProviderConfiguration, req Request) ([]byte, error) {
	if err := c.guard.CheckEndpoint(cfg.Auth.BaseURL, req.URL); err != nil {
		return nil, err
	}
	return c.doWithRetry(ctx, cfg, req, maxResponseBytes)
}

// GetJSON performs a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, cfg *domain.ProviderConfiguration, op, url string, header http.Header, out any) error {
	body, err := c.Do(ctx, cfg, Request{Op: op, Method: http.MethodGet, URL: url, Header: header})
	if err != nil {
		return err
	}
	return DecodeJSON(op, body, out)
}

// Download fetches a file that must live on the base URL's registrable
// domain. Failures other than security violations are CV download failures.
func (c *Client) Download(ctx context.Context, cfg *domain.ProviderConfiguration, url string, header http.Header) ([]byte, error) {
	if err := c.guard.CheckDownload(cfg.Auth.BaseURL, url); err != nil {
		return nil, err
	}
	data, err := c.doWithRetry(ctx, cfg, Request{Op: "download cv", Method: http.MethodGet, URL: url, Header: header}, c.maxCVBytes)
	if err != nil {
		if domain.KindOf(err) == domain.ErrorKindSecurity {
			return nil, err
		}
		return nil, domain.NewProviderError(domain.ErrorKindCVDownload, "download cv", err)
	}
	return data, nil
}

// DecodeJSON decodes a response body, reporting failures as malformed
// responses carrying a truncated sample.
func DecodeJSON(op string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &domain.ProviderError{
			Kind:   domain.ErrorKindMalformed,
			Op:     op,
			Sample: Sample(body),
			Err:    fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

// Sample truncates a body for logging.
func Sample(body []byte) string {
	if len(body) > sampleBytes {
		body = body[:sampleBytes]
	}
	return strings.ToValidUTF8(string(body), "")
}

func (c *Client) doWithRetry(ctx context.Context, cfg *domain.ProviderConfiguration, req Request, limit int64) ([]byte, error) {
	budget := cfg.Auth.RetryBudget()

	var lastErr error
	for attempt := 0; attempt <= budget; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}

		body, err := c.once(ctx, cfg, req, limit)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !domain.IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		c.logger.Debug("retrying provider call",
			"op", req.Op,
			"configuration_id", cfg.ID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, cfg *domain.ProviderConfiguration, req Request, limit int64) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(withBase(ctx, cfg.Auth.BaseURL), cfg.Auth.Timeout())
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(callCtx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrInvalidInput, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, req.Op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, transportError(ctx, req.Op, err)
	}
	if int64(len(data)) > limit {
		return nil, &domain.ProviderError{
			Kind:       domain.ErrorKindMalformed,
			Op:         req.Op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("response exceeds %d bytes", limit),
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, statusError(req.Op, resp.StatusCode, data)
}

// statusError maps a non-2xx status onto the error taxonomy.
func statusError(op string, status int, body []byte) error {
	var kind domain.ErrorKind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = domain.ErrorKindAuthentication
	case status == http.StatusTooManyRequests:
		kind = domain.ErrorKindRateLimited
	case status == http.StatusRequestTimeout || status >= 500:
		kind = domain.ErrorKindTransient
	default:
		kind = domain.ErrorKindMalformed
	}
	return &domain.ProviderError{
		Kind:       kind,
		Op:         op,
		StatusCode: status,
		Sample:     Sample(body),
		Err:        fmt.Errorf("unexpected status %d", status),
	}
}

// transportError classifies a failed round trip. Guard rejections keep their
// kind; cancellation of the caller's context is returned as is.
func transportError(ctx context.Context, op string, err error) error {
	if errors.Is(err, domain.ErrSecurityViolation) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return domain.NewProviderError(domain.ErrorKindTransient, op, err)
}
