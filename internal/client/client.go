package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kjstillabower/user-lookup-service/internal/circuitbreaker"
	"github.com/kjstillabower/user-lookup-service/internal/database"
	"github.com/kjstillabower/user-lookup-service/internal/models"
	"github.com/kjstillabower/user-lookup-service/internal/observability"
)

var (
	ErrUnauthorized    = errors.New("directory rejected credentials")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
	ErrMalformedUser   = errors.New("malformed user record")
)

// maxBodyBytes caps how much of a directory response is read.
const maxBodyBytes = 1 << 20

// DirectoryClient is a database.Database served by a remote user directory
// over HTTP: GET {baseURL}/users/{id} returning {"id":..,"name":..}.
type DirectoryClient struct {
	baseURL        *url.URL
	token          string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

// NewDirectoryClient returns a client with 3 attempts, 100ms base and 2s max backoff.
func NewDirectoryClient(baseURL, token string, timeout time.Duration) (*DirectoryClient, error) {
	return NewDirectoryClientWithRetry(baseURL, token, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

// NewDirectoryClientWithRetry returns a client with explicit retry settings.
// retryAttempts below 1 means a single attempt.
func NewDirectoryClientWithRetry(baseURL, token string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*DirectoryClient, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid directory URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid directory URL %q: scheme must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &DirectoryClient{
		baseURL:        u,
		token:          token,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker guards every attempt with cb. Not-found and credential errors do
// not count as failures: the directory answered.
func (c *DirectoryClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// BreakerIsFailure is the IsFailure func to configure a breaker for this client with.
func BreakerIsFailure(err error) bool {
	return err != nil && !errors.Is(err, database.ErrNotFound) && !errors.Is(err, ErrUnauthorized)
}

// GetUser implements database.Database. Final errors are counted by category.
func (c *DirectoryClient) GetUser(ctx context.Context, id int64) (models.User, error) {
	u, err := c.getWithRetry(ctx, id)
	if err != nil {
		observability.DirectoryErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
	}
	return u, err
}

func (c *DirectoryClient) getWithRetry(ctx context.Context, id int64) (models.User, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.DirectoryRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return models.User{}, ctx.Err()
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		result, err := c.attempt(ctx, id)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return models.User{}, err
		}
	}

	return models.User{}, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *DirectoryClient) attempt(ctx context.Context, id int64) (models.User, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, id)
	}
	var u models.User
	err := c.breaker.Call(ctx, func() error {
		var callErr error
		u, callErr = c.callAPI(ctx, id)
		return callErr
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return models.User{}, fmt.Errorf("%w: %w", database.ErrUnavailable, err)
	}
	return u, err
}

func (c *DirectoryClient) callAPI(ctx context.Context, id int64) (models.User, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, id)
	if err != nil {
		observability.DirectoryCallsTotal.WithLabelValues("error").Inc()
		return models.User{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.DirectoryCallsTotal.WithLabelValues("error").Inc()
		observability.DirectoryDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.User{}, fmt.Errorf("%w: request timeout: %w", database.ErrUnavailable, err)
		}
		return models.User{}, fmt.Errorf("%w: http request failed: %w", database.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.DirectoryCallsTotal.WithLabelValues(status).Inc()
	observability.DirectoryDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp, id); err != nil {
		return models.User{}, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.User{}, fmt.Errorf("%w: read response body: %w", database.ErrUnavailable, err)
	}

	var u models.User
	if err := json.Unmarshal(body, &u); err != nil {
		return models.User{}, fmt.Errorf("parse response: %w", err)
	}
	if u.ID != id {
		return models.User{}, fmt.Errorf("parse response: %w: got id %d for %d", ErrMalformedUser, u.ID, id)
	}
	return u, nil
}

func (c *DirectoryClient) buildRequest(ctx context.Context, id int64) (*http.Request, error) {
	endpoint := c.baseURL.JoinPath("users", strconv.FormatInt(id, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

func handleErrorResponse(resp *http.Response, id int64) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case http.StatusNotFound:
		return fmt.Errorf("%w: id %d", database.ErrNotFound, id)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", database.ErrUnavailable, ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %w: HTTP %d", database.ErrUnavailable, ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "http request failed") ||
		strings.Contains(errStr, "read response body")
}

func (c *DirectoryClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}

var registerOnce sync.Once

// Register adds the "directory" backend to the database registry. Later calls are no-ops.
func Register() {
	registerOnce.Do(registerDirectory)
}

func registerDirectory() {
	database.Register("directory", func(_ context.Context, opts database.Options) (database.Database, error) {
		if opts.URL == "" {
			return nil, fmt.Errorf("directory backend requires a URL")
		}
		c, err := NewDirectoryClientWithRetry(opts.URL, opts.Token, opts.Timeout, opts.RetryAttempts, opts.RetryBaseDelay, opts.RetryMaxDelay)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}
