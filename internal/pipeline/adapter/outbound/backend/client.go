// Package backend calls the external statement analysis service.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/config"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
	"github.com/anthanhphan/statement-pipeline/pkg/resilience"
	"github.com/goccy/go-json"
)

const (
	statusSuccess = "success"
	// maxErrorBody bounds how much of a failed response is kept for logs.
	maxErrorBody = 512
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type parseRequest struct {
	SessionID  string `json:"sessionId"`
	ArchiveURL string `json:"archiveUrl"`
	UserID     string `json:"userId"`
}

type parseResponse struct {
	Status string `json:"status"`
	URL    string `json:"url"`
}

// Client is a port.AnalysisBackend speaking JSON over HTTP. Each attempt has its
// own timeout; transport errors and gateway statuses are retried behind a circuit breaker.
type Client struct {
	endpoint string
	http     Doer
	breaker  *resilience.CircuitBreaker
	policy   resilience.RetryPolicy
}

// Ensure Client implements port.AnalysisBackend.
var _ port.AnalysisBackend = (*Client)(nil)

// Option customizes the client.
type Option func(*Client)

// WithDoer replaces the default HTTP client.
func WithDoer(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// NewClient builds a client from the backend configuration section.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		endpoint: cfg.Backend.Endpoint,
		http:     &http.Client{},
		policy: resilience.RetryPolicy{
			MaxAttempts:    cfg.Backend.MaxAttempts,
			AttemptTimeout: cfg.BackendTimeout(),
			BaseDelay:      cfg.BackendRetryDelay(),
			Retryable:      retryable,
		},
	}
	c.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "analysis-backend",
		FailureThreshold: cfg.Backend.FailureThreshold,
		OpenTimeout:      cfg.BackendOpenTimeout(),
		IsFailure:        countsAgainstCircuit,
		OnStateChange: func(name string, from, to resilience.CircuitState) {
			logger.Warnw("Circuit breaker state changed", "name", name, "from", from, "to", to)
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Parse posts the archive URL and returns the result archive URL.
func (c *Client) Parse(ctx context.Context, req port.ParseRequest) (string, error) {
	body, err := json.Marshal(parseRequest{
		SessionID:  req.SessionID,
		ArchiveURL: req.ArchiveURL,
		UserID:     req.UserID,
	})
	if err != nil {
		return "", &port.BackendError{Err: fmt.Errorf("encode request: %w", err)}
	}

	var (
		resultURL string
		attempt   int
	)
	started := time.Now()
	err = resilience.Retry(ctx, c.policy, func(attemptCtx context.Context) error {
		attempt++
		return c.breaker.Execute(attemptCtx, func(callCtx context.Context) error {
			url, callErr := c.call(callCtx, body)
			if callErr != nil {
				logger.Warnw("Backend parse attempt failed",
					"session_id", req.SessionID, "attempt", attempt, "error", callErr.Error())
				return callErr
			}
			resultURL = url
			return nil
		})
	})
	if err != nil {
		var be *port.BackendError
		if !errors.As(err, &be) {
			err = &port.BackendError{Err: err}
		}
		return "", err
	}

	logger.Infow("Backend parse completed",
		"session_id", req.SessionID, "attempts", attempt, "duration_ms", time.Since(started).Milliseconds())
	return resultURL, nil
}

func (c *Client) call(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &port.BackendError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", &port.BackendError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logger.Debugw("Backend returned error status", "status_code", resp.StatusCode, "body", string(snippet))
		return "", &port.BackendError{StatusCode: resp.StatusCode}
	}

	var out parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &port.BackendError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Status != statusSuccess || out.URL == "" {
		return "", &port.BackendError{StatusCode: resp.StatusCode, Status: out.Status}
	}
	return out.URL, nil
}

// retryable allows another attempt for transport errors, gateway statuses and an open circuit.
func retryable(err error) bool {
	if _, open := resilience.RetryAfterOf(err); open {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var be *port.BackendError
	return errors.As(err, &be) && be.Temporary()
}

// countsAgainstCircuit ignores answers the backend gave deliberately.
func countsAgainstCircuit(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var be *port.BackendError
	if errors.As(err, &be) {
		return be.Temporary()
	}
	return true
}
