package filter

import (
	"context"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain(filters ...Filter) *Chain {
	c := &Chain{
		filters: make([]Filter, 0, len(filters)),
	}
	for _, f := range filters {
		c.Add(f)
	}
	return c
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the candidate.
// A nil chain accepts everything.
func (c *Chain) Execute(ctx context.Context, cand Candidate, q Queue) Result {
	if c == nil {
		return Accept()
	}
	for _, f := range c.filters {
		result := f.Check(ctx, cand, q)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Record notifies every recording filter that the candidate was submitted.
func (c *Chain) Record(cand Candidate) {
	if c == nil {
		return
	}
	for _, f := range c.filters {
		if r, ok := f.(Recorder); ok {
			r.Record(cand)
		}
	}
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	if c == nil {
		return nil
	}
	return c.filters
}
