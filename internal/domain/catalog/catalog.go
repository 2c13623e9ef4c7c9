// Package catalog provides the types shared with the remote catalog service.
package catalog

import (
	"fmt"
	"time"
)

// PlaylistSummary identifies a playlist owned or followed by the user.
type PlaylistSummary struct {
	ID   string // Spotify Playlist ID
	Name string // Display name
}

// ThrottledError is returned when the catalog service rejects a request
// because of rate limiting. RetryAfter is the suggested wait.
type ThrottledError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottledError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("throttled (retry after %v): %v", e.RetryAfter, e.Cause)
	}
	return fmt.Sprintf("throttled (retry after %v)", e.RetryAfter)
}

// Unwrap returns the underlying error.
func (e *ThrottledError) Unwrap() error {
	return e.Cause
}
