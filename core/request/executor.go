// Package request wraps every outbound catalog call with rate limiting,
// retry, backoff and error classification. Retry policy lives here and
// nowhere else, adapters never roll their own.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"TrackHound/core/ratelimit"
	"TrackHound/core/source"
	"TrackHound/logger"
	"TrackHound/model"
)

// Request describes one upstream call.
type Request struct {
	Method  string
	URL     string
	Params  url.Values
	Headers map[string]string
	Body    []byte
}

// Response carries the upstream reply with the body already drained.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the response body.
func (r *Response) JSON(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Config builds an Executor for one source.
type Config struct {
	Source            model.TrackSource
	Timeout           time.Duration
	MaxAttempts       int
	RetryAfterDefault time.Duration
	RateLimit         int
	RateWindow        time.Duration

	// WithBreaker adds a circuit breaker; used on resolution paths so a
	// broken resolver fails fast instead of burning the retry budget.
	WithBreaker bool
}

// Executor is the retrying HTTP layer for one source.
type Executor struct {
	src               model.TrackSource
	client            *http.Client
	limiter           *ratelimit.Limiter
	breaker           *gobreaker.CircuitBreaker
	maxAttempts       int
	retryAfterDefault time.Duration
}

// New creates an executor. Zero-value config fields get safe defaults.
func New(cfg Config) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryAfterDefault <= 0 {
		cfg.RetryAfterDefault = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	e := &Executor{
		src:               cfg.Source,
		client:            &http.Client{Timeout: cfg.Timeout},
		limiter:           ratelimit.New(cfg.RateLimit, cfg.RateWindow),
		maxAttempts:       cfg.MaxAttempts,
		retryAfterDefault: cfg.RetryAfterDefault,
	}

	if cfg.WithBreaker {
		e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: string(cfg.Source),
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			Timeout: 30 * time.Second,
		})
	}

	return e
}

// Get issues a GET through the retry pipeline.
func (e *Executor) Get(ctx context.Context, rawURL string, params url.Values, headers map[string]string) (*Response, error) {
	return e.Do(ctx, &Request{Method: http.MethodGet, URL: rawURL, Params: params, Headers: headers})
}

// PostForm issues an application/x-www-form-urlencoded POST.
func (e *Executor) PostForm(ctx context.Context, rawURL string, form url.Values, headers map[string]string) (*Response, error) {
	h := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	for k, v := range headers {
		h[k] = v
	}
	return e.Do(ctx, &Request{Method: http.MethodPost, URL: rawURL, Headers: h, Body: []byte(form.Encode())})
}

// Do runs the request with the full policy: limiter wait, bounded retries
// with exponential backoff on 5xx/timeouts, Retry-After sleeps on 429 that
// do not consume the attempt budget, typed error on exhaustion.
func (e *Executor) Do(ctx context.Context, req *Request) (*Response, error) {
	if e.breaker != nil {
		out, err := e.breaker.Execute(func() (interface{}, error) {
			return e.do(ctx, req)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, source.E(e.src, opOf(req), source.KindTransient, err)
			}
			return nil, err
		}
		return out.(*Response), nil
	}
	return e.do(ctx, req)
}

func (e *Executor) do(ctx context.Context, req *Request) (*Response, error) {
	op := opOf(req)

	e.limiter.Wait(ctx)
	if err := ctx.Err(); err != nil {
		return nil, source.E(e.src, op, source.KindTransient, err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0 // bounded by attempts and ctx, not wall time

	var lastErr error
	attempt := 0

	for attempt < e.maxAttempts {
		resp, err := e.attempt(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, source.E(e.src, op, source.KindTransient, ctx.Err())
			}
			if !retryableTransport(err) {
				return nil, source.E(e.src, op, source.KindUnknown, err)
			}
			lastErr = err
			attempt++
			if attempt >= e.maxAttempts {
				break
			}
			logger.Warn("upstream request failed, retrying",
				logger.String("source", string(e.src)),
				logger.String("url", req.URL),
				logger.Int("attempt", attempt),
				logger.ErrorField(err))
			if !e.sleep(ctx, bo.NextBackOff()) {
				return nil, source.E(e.src, op, source.KindTransient, ctx.Err())
			}
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			// Upstream throttling is not a failed attempt: sleep the
			// server-requested interval and go again. The caller's ctx
			// deadline bounds how long this can go on.
			wait := e.retryAfter(resp.Header)
			logger.Warn("upstream rate limited",
				logger.String("source", string(e.src)),
				logger.Duration("retryAfter", wait))
			if !e.sleep(ctx, wait) {
				return nil, source.E(e.src, op, source.KindRateLimited, ctx.Err())
			}
			continue

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, e.statusErr(op, source.KindAuthFailed, resp.StatusCode)

		case resp.StatusCode == http.StatusNotFound:
			return nil, e.statusErr(op, source.KindNotFound, resp.StatusCode)

		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("upstream returned %d", resp.StatusCode)
			attempt++
			if attempt >= e.maxAttempts {
				break
			}
			if !e.sleep(ctx, bo.NextBackOff()) {
				return nil, source.E(e.src, op, source.KindTransient, ctx.Err())
			}
			continue

		default:
			return nil, e.statusErr(op, source.KindUnknown, resp.StatusCode)
		}
	}

	return nil, source.E(e.src, op, source.KindTransient,
		fmt.Errorf("retries exhausted after %d attempts: %w", e.maxAttempts, lastErr))
}

// attempt runs exactly one HTTP round trip.
func (e *Executor) attempt(ctx context.Context, req *Request) (*Response, error) {
	target := req.URL
	if len(req.Params) > 0 {
		sep := "?"
		if u, err := url.Parse(req.URL); err == nil && u.RawQuery != "" {
			sep = "&"
		}
		target = req.URL + sep + req.Params.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

// statusErr builds a typed error carrying the upstream status code.
func (e *Executor) statusErr(op string, kind source.ErrorKind, status int) *source.Error {
	err := source.E(e.src, op, kind, fmt.Errorf("upstream returned %d", status))
	err.Status = status
	return err
}

// retryAfter parses the Retry-After header (seconds or HTTP date),
// falling back to the configured default.
func (e *Executor) retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return e.retryAfterDefault
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return e.retryAfterDefault
}

// sleep waits d or until ctx is done; reports false on cancellation.
func (e *Executor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// retryableTransport reports whether a transport error is worth another
// attempt (timeouts, temporary resolver/conn failures).
func retryableTransport(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	// url.Error wraps both; keep retrying generic url errors since the
	// client already rejected malformed requests at build time.
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func opOf(req *Request) string {
	return req.Method + " " + req.URL
}
