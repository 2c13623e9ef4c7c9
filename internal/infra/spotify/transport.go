package spotify

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"

	"github.com/osa030/19mix/internal/domain/catalog"
)

// rateLimitTransport records the Retry-After header of 429 responses in the
// request's rateLimit, if any. Responses are passed through unchanged.
type rateLimitTransport struct {
	base http.RoundTripper
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusTooManyRequests {
		return resp, err
	}
	if rl, ok := req.Context().Value(rateLimitKey{}).(*rateLimit); ok {
		rl.set(parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	}
	return resp, nil
}

type rateLimitKey struct{}

// rateLimit holds the last Retry-After seen by one API call.
type rateLimit struct {
	mu         sync.Mutex
	retryAfter time.Duration
}

func (r *rateLimit) set(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryAfter = d
}

func (r *rateLimit) get() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retryAfter
}

func withRateLimit(ctx context.Context) (context.Context, *rateLimit) {
	rl := &rateLimit{}
	return context.WithValue(ctx, rateLimitKey{}, rl), rl
}

// asThrottled maps a 429 API error to *catalog.ThrottledError carrying the
// recorded Retry-After. Other errors are returned unchanged.
func asThrottled(err error, rl *rateLimit) error {
	var apiErr spotify.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests {
		return err
	}
	return &catalog.ThrottledError{RetryAfter: rl.get(), Cause: err}
}

// parseRetryAfter parses a Retry-After header given in seconds or as an
// HTTP date. It returns 0 when the header is missing or malformed.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
