// Package gradeapi implements the client of the upstream grade API and a
// gradebook source that materializes a whole section from it.
package gradeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
	"github.com/mpi-hub/orientation-hub/pkg/circuitbreaker"
	"github.com/mpi-hub/orientation-hub/pkg/logger"
	"github.com/mpi-hub/orientation-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the grade API client.
type ClientConfig struct {
	// BaseURL is the API root, without a trailing slash.
	BaseURL string

	// Token is sent as a Bearer token on every call.
	Token string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// RateLimit is the steady request rate (per second); RateBurst the bucket size.
	RateLimit float64
	RateBurst int

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// Workers bounds concurrent grade fetches in Source.
	Workers int

	// BreakerThreshold / BreakerTimeout tune the circuit breaker.
	BreakerThreshold int
	BreakerTimeout   time.Duration

	Logger     *logger.Logger
	HTTPClient *http.Client
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL, token string) ClientConfig {
	return ClientConfig{
		BaseURL:          strings.TrimRight(baseURL, "/"),
		Token:            token,
		Timeout:          15 * time.Second,
		RateLimit:        20,
		RateBurst:        30,
		MaxRetries:       2,
		Workers:          30,
		BreakerThreshold: 5,
		BreakerTimeout:   45 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to the upstream grade API. Every call is rate limited,
// retried with backoff on transient failures and guarded by a circuit breaker.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
	log        *logger.Logger
}

// NewClient creates a new grade API client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	log := cfg.Logger.With(logger.Component("gradeapi"))

	retryOpts := []retry.Option{
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("grade api call failed, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err))
		}),
	}
	if cfg.MaxRetries >= 0 {
		retryOpts = append(retryOpts, retry.WithMaxAttempts(cfg.MaxRetries+1))
	}

	var breakerOpts []circuitbreaker.Option
	if cfg.BreakerThreshold > 0 {
		breakerOpts = append(breakerOpts, circuitbreaker.WithFailureThreshold(cfg.BreakerThreshold))
	}
	if cfg.BreakerTimeout > 0 {
		breakerOpts = append(breakerOpts, circuitbreaker.WithTimeout(cfg.BreakerTimeout))
	}
	breaker := circuitbreaker.GradeAPIBreaker(isOutage, func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()))
	}, breakerOpts...)

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		retrier:    retry.GradeAPIRetrier(retryOpts...),
		breaker:    breaker,
		log:        log,
	}
}

// isOutage reports whether err means the upstream is unhealthy.
// Rejections of a single request (4xx, success=false) do not count.
func isOutage(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, shared.ErrServiceUnavailable) ||
		errors.Is(err, shared.ErrTimeout) ||
		errors.Is(err, shared.ErrRateLimited)
}

// Breaker exposes the circuit breaker state for health reporting.
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// Workers returns the configured fetch concurrency.
func (c *Client) Workers() int {
	if c.config.Workers <= 0 {
		return 1
	}
	return c.config.Workers
}

// ══════════════════════════════════════════════════════════════════════════════
// ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

// ListStudents calls GET /api/students?section=S.
func (c *Client) ListStudents(ctx context.Context, section string) ([]StudentDTO, error) {
	var resp StudentsResponse
	q := url.Values{"section": {section}}
	if err := c.get(ctx, "ListStudents", "/api/students", q, &resp, &resp.Envelope); err != nil {
		return nil, err
	}
	return resp.Students, nil
}

// ListSubjects calls GET /api/matieres?section=S.
func (c *Client) ListSubjects(ctx context.Context, section string) ([]SubjectDTO, error) {
	var resp SubjectsResponse
	q := url.Values{"section": {section}}
	if err := c.get(ctx, "ListSubjects", "/api/matieres", q, &resp, &resp.Envelope); err != nil {
		return nil, err
	}
	return resp.Subjects, nil
}

// StudentGrades calls GET /api/grades?student_id=ID.
func (c *Client) StudentGrades(ctx context.Context, studentID string) (GradeBookDTO, error) {
	var resp GradesResponse
	q := url.Values{"student_id": {studentID}}
	if err := c.get(ctx, "StudentGrades", "/api/grades", q, &resp, &resp.Envelope); err != nil {
		return GradeBookDTO{}, err
	}
	return resp.Grades, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// get performs a GET under breaker, retry and rate limiter, decodes the body
// into result and checks the success flag.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, result any, env *Envelope) error {
	start := time.Now()
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Permanent(shared.WrapError("gradeapi", op, shared.ErrTimeout, "rate limiter wait aborted", err))
			}
			return c.doSingleRequest(ctx, op, path, query, result)
		})
	})
	if circuitbreaker.IsRejected(err) {
		return shared.WrapError("gradeapi", op, shared.ErrServiceUnavailable, "circuit open", err)
	}
	if err != nil {
		return err
	}

	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "request rejected"
		}
		return shared.NewDomainError("gradeapi", op, shared.ErrExternalService, msg)
	}

	c.log.Debug("grade api call", logger.Operation(op), logger.Latency(time.Since(start)))
	return nil
}

// doSingleRequest performs one HTTP request. Transient failures are wrapped
// with retry.Retryable, everything else with retry.Permanent.
func (c *Client) doSingleRequest(ctx context.Context, op, path string, query url.Values, result any) error {
	fullURL := c.config.BaseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("gradeapi: create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(shared.WrapError("gradeapi", op, shared.ErrTimeout, "request cancelled", err))
		}
		return retry.Retryable(shared.WrapError("gradeapi", op, shared.ErrServiceUnavailable, "transport error", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return retry.Retryable(shared.WrapError("gradeapi", op, shared.ErrServiceUnavailable, "read response", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return retry.Retryable(shared.WrapError("gradeapi", op, shared.ErrRateLimited, "rate limit exceeded", shared.ErrGradeAPIRateLimited))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return retry.Permanent(shared.ErrGradeAPIUnauthorized)
	case resp.StatusCode >= 500:
		return retry.Retryable(shared.WrapError("gradeapi", op, shared.ErrServiceUnavailable,
			fmt.Sprintf("status %d", resp.StatusCode), shared.ErrGradeAPIUnavailable))
	case resp.StatusCode >= 400:
		var env Envelope
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if json.Unmarshal(body, &env) == nil && env.Message != "" {
			msg = env.Message
		}
		if resp.StatusCode == http.StatusNotFound {
			return retry.Permanent(shared.NewDomainError("gradeapi", op, shared.ErrNotFound, msg))
		}
		return retry.Permanent(shared.NewDomainError("gradeapi", op, shared.ErrExternalService, msg))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return retry.Permanent(shared.WrapError("gradeapi", op, shared.ErrInvalidFormat, "decode response", err))
	}
	return nil
}
