package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// HTTPClient sends requests through a circuit breaker with bounded retries.
//
// Every 5xx response and transport error is reported to the breaker as a
// failure. Only outcomes accepted by Retryable are retried; when retries run
// out the last response is returned with its body intact so callers can
// decode the provider's error payload.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	// Timeout bounds each attempt, body read included.
	Timeout time.Duration
	// Retryable defaults to RetryableOutcome.
	Retryable func(*http.Response, error) bool
}

// RetryableOutcome retries transport errors, 429 and the gateway-style 5xx
// statuses. A plain 500 is not retried.
func RetryableOutcome(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Do sends req, replaying its body on each attempt. ErrOpenCircuit is returned
// when the breaker refuses the call.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	attempts := max(cl.MaxAttempts, 1)
	retryable := cl.Retryable
	if retryable == nil {
		retryable = RetryableOutcome
	}
	body, err := drainBody(req)
	if err != nil {
		return nil, fmt.Errorf("resilience: read request body: %w", err)
	}

	var (
		resp    *http.Response
		lastErr error
	)
	for attempt := 1; ; attempt++ {
		if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
			if resp != nil {
				return resp, nil
			}
			return nil, ErrOpenCircuit
		}
		resp, lastErr = cl.send(ctx, req, body)
		failed := lastErr != nil || resp.StatusCode >= http.StatusInternalServerError
		if cl.Breaker != nil {
			cl.Breaker.Report(ctx, !failed)
		}
		if attempt >= attempts || !retryable(resp, lastErr) {
			break
		}

		wait := Backoff(cl.BaseBackoff, attempt, cl.Jitter)
		if hinted, ok := retryAfter(resp); ok {
			wait = hinted
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return resp, nil
}

// send performs one attempt and returns a response whose body is already
// buffered, so the attempt timeout cannot cut a later read short.
func (cl HTTPClient) send(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	out := req.Clone(attemptCtx)
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
		out.ContentLength = int64(len(body))
	}
	resp, err := cl.Client.Do(out)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(payload))
	return resp, nil
}

func drainBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	src := req.Body
	if req.GetBody != nil {
		fresh, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		src = fresh
	}
	defer func() { _ = src.Close() }()
	return io.ReadAll(src)
}

// retryAfter honours a delta-seconds Retry-After header, capped like Backoff.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0, false
	}
	return min(time.Duration(secs)*time.Second, maxBackoff), true
}
