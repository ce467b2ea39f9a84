// Package transport builds the retrying HTTP client shared by the node, vault
// and slack clients.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"
)

// Policy bounds retries. Every non-2xx response and every transport error is
// retried after a fixed Wait, up to MaxAttempts attempts in total.
type Policy struct {
	MaxAttempts int
	Wait        time.Duration
	Timeout     time.Duration
}

// DefaultPolicy matches the deployer's historical behaviour: 5 attempts, 30s apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, Wait: 30 * time.Second, Timeout: 60 * time.Second}
}

// StatusError is returned when the final attempt still got a non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Attempts   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d after %d attempt(s): %s",
		e.Method, e.URL, e.StatusCode, e.Attempts, e.Body)
}

// IsStatus reports whether err carries a final response with the given status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// NewClient returns a retrying client that logs through logger.
func NewClient(p Policy, logger *slog.Logger) *retryablehttp.Client {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := retryablehttp.NewClient()
	c.RetryMax = p.MaxAttempts - 1
	c.RetryWaitMin = p.Wait
	c.RetryWaitMax = p.Wait
	c.Backoff = fixedBackoff
	c.CheckRetry = RetryNon2xx
	c.ErrorHandler = giveUp
	c.Logger = logger
	if p.Timeout > 0 {
		c.HTTPClient.Timeout = p.Timeout
	}
	return c
}

func fixedBackoff(wait, _ time.Duration, _ int, _ *http.Response) time.Duration {
	return wait
}

// RetryNon2xx retries transport errors and every non-2xx response.
func RetryNon2xx(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	return resp.StatusCode < 200 || resp.StatusCode > 299, nil
}

// giveUp turns the last failed attempt into an error, keeping the response
// body for the message.
func giveUp(resp *http.Response, err error, numTries int) (*http.Response, error) {
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, errors.Wrapf(err, "giving up after %d attempt(s)", numTries)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return nil, &StatusError{
		Method:     resp.Request.Method,
		URL:        resp.Request.URL.Redacted(),
		StatusCode: resp.StatusCode,
		Body:       string(bytes.TrimSpace(body)),
		Attempts:   numTries,
	}
}

// Request describes one JSON call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	// Body is marshaled as JSON unless it is a []byte or io.Reader.
	Body any
}

// Do sends req and decodes a JSON response into out when out is non-nil.
// A *string out receives the raw body. Numbers in generic values decode as
// json.Number.
func Do(ctx context.Context, c *retryablehttp.Client, req Request, out any) error {
	var body any
	switch b := req.Body.(type) {
	case nil:
	case []byte, io.Reader:
		body = b
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return errors.Wrap(err, "encode request body")
		}
		body = data
	}

	r, err := retryablehttp.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	if req.Body != nil && r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", "application/json")
	}
	r.Header.Set("Accept", "application/json")

	resp, err := c.Do(r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// A client whose CheckRetry accepts some non-2xx statuses hands them back as-is.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{
			Method:     req.Method,
			URL:        r.URL.Redacted(),
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(body)),
			Attempts:   1,
		}
	}

	switch o := out.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case *string:
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "read response")
		}
		*o = string(b)
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s response", req.Method, r.URL.Redacted())
	}
	return nil
}
