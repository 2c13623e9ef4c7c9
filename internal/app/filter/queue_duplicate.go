package filter

import (
	"context"
)

// QueueDuplicateName is the config name of QueueDuplicateFilter.
const QueueDuplicateName = "queue_duplicate_filter"

// QueueDuplicateFilter rejects tracks already pending in the live queue.
// The currently playing track counts as pending.
type QueueDuplicateFilter struct{}

// NewQueueDuplicateFilter creates a new queue duplicate filter.
func NewQueueDuplicateFilter() *QueueDuplicateFilter {
	return &QueueDuplicateFilter{}
}

// Name returns the filter name.
func (f *QueueDuplicateFilter) Name() string {
	return QueueDuplicateName
}

// Description returns the filter description.
func (f *QueueDuplicateFilter) Description() string {
	return "Rejects tracks that are already playing or waiting in the queue (always enabled)"
}

// ReturnCodes returns possible return codes.
func (f *QueueDuplicateFilter) ReturnCodes() []string {
	return []string{"duplicate_in_queue"}
}

// ValidateConfig validates the filter configuration.
func (f *QueueDuplicateFilter) ValidateConfig(settings map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the track is already queued.
func (f *QueueDuplicateFilter) Check(ctx context.Context, c Candidate, q Queue) Result {
	if q.Contains(c.TrackID) {
		return Reject("duplicate_in_queue")
	}
	return Accept()
}

func init() {
	Register(QueueDuplicateName, func() Filter { return NewQueueDuplicateFilter() })
}
