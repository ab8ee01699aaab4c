package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"vaultclip/internal/apperrors"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultAttempts = 3

	// DefaultMaxBodyBytes is one byte over the 10 MB image ceiling so callers
	// can tell "exactly at the limit" from "over the limit".
	DefaultMaxBodyBytes = 10*1024*1024 + 1
)

// Request describes a single HTTP call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Options bound a call. Zero values select DefaultTimeout and DefaultAttempts.
type Options struct {
	Timeout time.Duration
	// Attempts is the total number of tries, including the first one.
	Attempts int
}

// Response is a fully read HTTP response. Any status code is a successful
// transport; interpreting non-2xx codes is up to the caller.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Truncated  bool
}

func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// ContentType returns the media type without parameters, lower-cased.
func (r *Response) ContentType() string {
	raw := r.Header.Get("Content-Type")
	if raw == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return ""
	}
	return mt
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Client wraps an *http.Client with per-attempt timeouts and exponential
// backoff retries.
type Client struct {
	http    *http.Client
	log     logrus.FieldLogger
	sleep   SleepFunc
	maxBody int64
}

type Option func(*Client)

func WithSleep(fn SleepFunc) Option { return func(c *Client) { c.sleep = fn } }

func WithMaxBodyBytes(n int64) Option { return func(c *Client) { c.maxBody = n } }

// NewClient creates a fetch client. A nil httpClient uses a fresh client
// without a global timeout; timeouts are applied per call.
func NewClient(httpClient *http.Client, logger logrus.FieldLogger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := &Client{
		http:    httpClient,
		log:     logger.WithField("component", "fetch"),
		sleep:   contextSleep,
		maxBody: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do performs req, retrying transport failures with a 2^attempt second delay
// (1s, 2s, 4s, ...). Timeouts and caller cancellation are never retried.
func (c *Client) Do(ctx context.Context, req Request, opts Options) (*Response, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	log := c.log.WithFields(logrus.Fields{"method": req.Method, "url": req.URL})

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := c.once(ctx, req, timeout)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if apperrors.Is(err, apperrors.KindTransportTimeout) || ctx.Err() != nil {
			return nil, err
		}
		if attempt == attempts-1 {
			break
		}

		delay := time.Duration(1<<attempt) * time.Second
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"delay":   delay,
		}).Debug("Request failed, retrying")
		if err := c.sleep(ctx, delay); err != nil {
			return nil, classify(ctx, err, timeout)
		}
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, req Request, timeout time.Duration) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
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
		return nil, apperrors.Wrap(apperrors.KindInvalidInput, fmt.Sprintf("invalid request: %v", err), err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classify(callCtx, err, timeout)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxBody))
	if err != nil {
		return nil, classify(callCtx, err, timeout)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		Truncated:  int64(len(data)) >= c.maxBody,
	}, nil
}

// classify maps a transport error onto the timeout/unreachable taxonomy.
func classify(ctx context.Context, err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.KindTransportTimeout, fmt.Sprintf("request timed out after %s", timeout), err)
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.Wrap(apperrors.KindTransportTimeout, "request cancelled", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.Wrap(apperrors.KindTransportTimeout, fmt.Sprintf("request timed out after %s", timeout), err)
	}
	return apperrors.Wrap(apperrors.KindTransportUnreachable, fmt.Sprintf("network error: %v", err), err)
}
