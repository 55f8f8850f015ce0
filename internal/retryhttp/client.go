// Package retryhttp performs outbound HTTP calls with exponential backoff and
// full jitter. Every external call of the service goes through Client.Send.
package retryhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/metrics"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 3

	maxResponseSize     = 10 * 1024 * 1024
	unknownServerError  = "Unknown server error"
	maxLoggedBodyPrefix = 200
)

// Request describes a single logical call. Body is resent verbatim on every attempt.
type Request struct {
	Method string
	Header http.Header
	Body   []byte
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// RequestError is the terminal failure of a logical call. StatusCode is zero
// when the last attempt failed at the transport level.
type RequestError struct {
	Message    string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
	newTimer   func() backoff.Timer
	newPolicy  func() backoff.BackOff
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTimer replaces the timer used to wait between attempts.
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(c *Client) {
		c.newTimer = newTimer
	}
}

// WithBackOff replaces the wait policy. The attempt budget is still enforced by Send.
func WithBackOff(newPolicy func() backoff.BackOff) Option {
	return func(c *Client) {
		c.newPolicy = newPolicy
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     zap.NewNop(),
		newPolicy: func() backoff.BackOff {
			return NewFullJitter()
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send performs the request, retrying any failure until maxAttempts tries
// have been made. It returns either a fully read successful response or a
// single *RequestError carrying the last observed message.
func (c *Client) Send(ctx context.Context, url string, req Request, maxAttempts int) (*Response, error) {
	if maxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be at least 1, got %d", maxAttempts)
	}

	var (
		resp     *Response
		attempts int
	)
	operation := func() error {
		attempts++
		r, err := c.attempt(ctx, url, req)
		if err != nil {
			c.metrics.RequestAttempt(false)
			return err
		}
		c.metrics.RequestAttempt(true)
		resp = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Request failed, retrying",
			zap.String("url", url),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newPolicy(), uint64(maxAttempts-1)), ctx)

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}

	if err := backoff.RetryNotifyWithTimer(operation, policy, notify, timer); err != nil {
		c.metrics.RequestFailed()

		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			reqErr.Attempts = attempts
			c.logger.Error("Request failed after max attempts",
				zap.String("url", url),
				zap.Int("attempts", attempts),
				zap.Int("status", reqErr.StatusCode),
				zap.String("message", reqErr.Message))
			return nil, reqErr
		}
		return nil, err
	}

	resp.Attempts = attempts
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, url string, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, backoff.Permanent(&RequestError{
			Message: fmt.Sprintf("build request: %v", err),
			Err:     err,
		})
	}
	if req.Header != nil {
		httpReq.Header = req.Header.Clone()
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &RequestError{Message: err.Error(), Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, &RequestError{
			Message:    fmt.Sprintf("read response body: %v", err),
			StatusCode: httpResp.StatusCode,
			Err:        err,
		}
	}

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Debug("Request returned error status",
			zap.String("url", url),
			zap.Int("status", httpResp.StatusCode),
			zap.String("body", truncate(string(respBody), maxLoggedBodyPrefix)))
		return nil, &RequestError{
			Message:    ExtractErrorMessage(httpResp.StatusCode, httpResp.Status, respBody),
			StatusCode: httpResp.StatusCode,
		}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
	}, nil
}

// ExtractErrorMessage returns a human readable message for a failed response:
// the body's error.message (or a plain string error), then the reason phrase
// of the status line, then the standard status text, then a generic message.
func ExtractErrorMessage(statusCode int, status string, body []byte) string {
	if len(bytes.TrimSpace(body)) > 0 {
		var payload struct {
			Error json.RawMessage `json:"error"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && len(payload.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(payload.Error, &nested); err == nil && strings.TrimSpace(nested.Message) != "" {
				return nested.Message
			}
			var plain string
			if err := json.Unmarshal(payload.Error, &plain); err == nil && strings.TrimSpace(plain) != "" {
				return plain
			}
		}
	}

	if text := reasonPhrase(statusCode, status); text != "" {
		return text
	}
	if text := http.StatusText(statusCode); text != "" {
		return text
	}
	return unknownServerError
}

// reasonPhrase strips the code from a status line such as "520 Origin Error".
// net/http servers write "status code N" for codes they do not know; that
// placeholder is not a reason phrase.
func reasonPhrase(statusCode int, status string) string {
	code := strconv.Itoa(statusCode)
	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(status), code))
	if text == "status code "+code {
		return ""
	}
	return text
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
