package snowapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Request is a single HTTP call made by a Service.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read HTTP response. Body is exactly what came off the
// wire; gzip content is not inflated.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport sends requests to the SQL API. Implementations own any retry
// behavior.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport is the default Transport: net/http plus a RetryPolicy
// consulted after every response.
type HTTPTransport struct {
	client *http.Client
	policy RetryPolicy
}

// Ensure HTTPTransport always satisfies the Transport interface at compile time.
var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport wraps client. A nil policy disables retries.
func NewHTTPTransport(client *http.Client, policy RetryPolicy) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if policy == nil {
		policy = noRetry{}
	}
	return &HTTPTransport{client: client, policy: policy}
}

// Do sends req, retrying while the policy asks for it. The wait between
// attempts ends early if ctx is done.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	target := req.URL
	for attempt := 0; ; attempt++ {
		resp, err := t.send(ctx, req.Method, target, req.Header, req.Body)
		if err != nil {
			return nil, err
		}

		retry, delay := t.policy.Retry(resp.StatusCode, attempt)
		if !retry {
			return resp, nil
		}
		logger.WithFields(logrus.Fields{
			"method":  req.Method,
			"status":  resp.StatusCode,
			"attempt": attempt + 1,
			"delay":   delay,
		}).Warn("transient response status, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
		target = markRetry(target)
	}
}

func (t *HTTPTransport) send(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}
