package snowapi

import (
	"math"
	"net/http"
	"net/url"
	"time"
)

// RetryPolicy decides whether a response status warrants another attempt
// and how long to wait first. attempt counts retries already made, starting
// at 0.
type RetryPolicy interface {
	Retry(statusCode, attempt int) (bool, time.Duration)
}

// BackoffPolicy retries a fixed set of transient statuses with exponential
// delay: BaseDelay * Multiplier^attempt.
type BackoffPolicy struct {
	StatusCodes []int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxRetries  int // 0 means no limit
}

// DefaultRetryPolicy retries 429 and 504 up to three times, waiting 1s, 2s
// and 4s.
func DefaultRetryPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		StatusCodes: []int{http.StatusTooManyRequests, http.StatusGatewayTimeout},
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxRetries:  3,
	}
}

// Retry implements RetryPolicy.
func (p *BackoffPolicy) Retry(statusCode, attempt int) (bool, time.Duration) {
	if p.MaxRetries > 0 && attempt >= p.MaxRetries {
		return false, 0
	}
	for _, code := range p.StatusCodes {
		if code == statusCode {
			return true, time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt)))
		}
	}
	return false, 0
}

// noRetry never retries.
type noRetry struct{}

func (noRetry) Retry(int, int) (bool, time.Duration) { return false, 0 }

// markRetry flags a re-sent submission so the server can match it to the
// original requestId instead of running the statement twice.
func markRetry(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	vs := u.Query()
	if vs.Get(requestIDParam) == "" {
		return rawURL
	}
	vs.Set(retryParam, "true")
	u.RawQuery = vs.Encode()
	return u.String()
}
