// Package filter provides the filter chain for candidate track validation.
package filter

import (
	"context"
	"sort"
)

// Candidate represents a track drawn from a source playlist.
type Candidate struct {
	SourceID string
	TrackID  string
}

// Queue is a read-only view of the remote play queue, fetched once per tick.
type Queue struct {
	ids map[string]struct{}
}

// NewQueue creates a queue view from the given track IDs.
func NewQueue(trackIDs []string) Queue {
	ids := make(map[string]struct{}, len(trackIDs))
	for _, id := range trackIDs {
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	return Queue{ids: ids}
}

// Contains reports whether the track is pending in the queue.
func (q Queue) Contains(trackID string) bool {
	_, ok := q.ids[trackID]
	return ok
}

// Len returns the number of distinct pending tracks.
func (q Queue) Len() int {
	return len(q.ids)
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "duplicate_in_queue", "recently_submitted"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for candidate filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// Check performs the filter check.
	Check(ctx context.Context, c Candidate, q Queue) Result
}

// Recorder is implemented by filters that track submitted candidates.
type Recorder interface {
	Record(c Candidate)
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}

// RegisteredNames returns the registered filter names in sorted order.
func RegisteredNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
