// Package outbound performs HTTP calls to external services with a per-call
// timeout and opt-in retries of transient failures.
package outbound

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 0
	maxBodyBytes      = 4 << 20
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, truncate(string(e.Body), 256))
}

// Transient reports whether a server-side status may succeed on retry.
func (e *StatusError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type policyKey struct{}

// WithPolicy attaches the call policy of an execution to ctx.
func WithPolicy(ctx context.Context, policy *models.CallPolicy) context.Context {
	if policy == nil {
		return ctx
	}

	return context.WithValue(ctx, policyKey{}, policy)
}

// PolicyFrom returns the call policy attached to ctx, if any.
func PolicyFrom(ctx context.Context) *models.CallPolicy {
	policy, _ := ctx.Value(policyKey{}).(*models.CallPolicy)

	return policy
}

// Request describes one outbound call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Client executes outbound requests.
type Client struct {
	http       *http.Client
	maxRetries int
	baseDelay  time.Duration
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) { client.http = c }
}

func WithMaxRetries(n int) Option {
	return func(client *Client) { client.maxRetries = n }
}

func WithBaseDelay(d time.Duration) Option {
	return func(client *Client) { client.baseDelay = d }
}

func NewClient(opts ...Option) *Client {
	client := &Client{
		http:       &http.Client{},
		maxRetries: DefaultMaxRetries,
		baseDelay:  200 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Do sends req. Nothing is retried unless the client or the call policy in ctx
// allows retries. Idempotent methods then retry transport failures and 5xx/429
// responses; other methods only retry failures to connect, since the server
// may already have acted on a request that timed out or failed.
// Non-2xx responses are returned as *StatusError together with the response.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	timeout := req.Timeout
	maxRetries := c.maxRetries

	if policy := PolicyFrom(ctx); policy != nil {
		if policy.Timeout() > 0 {
			timeout = policy.Timeout()
		}

		maxRetries = policy.MaxRetries
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var last *Response

	operation := func() error {
		resp, err := c.once(ctx, req, timeout)
		if err != nil {
			if retryable(req.Method, err) {
				return err
			}

			return backoff.Permanent(err)
		}

		last = resp

		if resp.StatusCode >= 300 {
			statusErr := &StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
			if idempotent(req.Method) && statusErr.Transient() {
				return statusErr
			}

			return backoff.Permanent(statusErr)
		}

		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.baseDelay
	policy.MaxElapsedTime = 0

	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(maxRetries, 0))), ctx)

	err := backoff.Retry(operation, retry)
	if err != nil {
		return last, err
	}

	return last, nil
}

func (c *Client) once(ctx context.Context, req Request, timeout time.Duration) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}

// IsTransient classifies transport failures worth retrying. Cancellation by
// the caller is never retried.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr)
}

func idempotent(method string) bool {
	switch strings.ToUpper(method) {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

func retryable(method string, err error) bool {
	if !IsTransient(err) {
		return false
	}

	if idempotent(method) {
		return true
	}

	var opErr *net.OpError

	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
