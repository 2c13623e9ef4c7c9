package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDuplicateFilter_Check(t *testing.T) {
	q := NewQueue([]string{"playing", "next", "", "next"})
	f := NewQueueDuplicateFilter()

	tests := []struct {
		name         string
		trackID      string
		wantAccepted bool
		wantCode     string
	}{
		{name: "currently playing", trackID: "playing", wantAccepted: false, wantCode: "duplicate_in_queue"},
		{name: "queued", trackID: "next", wantAccepted: false, wantCode: "duplicate_in_queue"},
		{name: "not queued", trackID: "other", wantAccepted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(context.Background(), Candidate{SourceID: "src", TrackID: tt.trackID}, q)
			assert.Equal(t, tt.wantAccepted, result.Accepted)
			assert.Equal(t, tt.wantCode, result.Code)
		})
	}

	assert.Equal(t, 2, q.Len())
}

func TestRecentSubmissionFilter(t *testing.T) {
	t.Run("unconfigured accepts everything", func(t *testing.T) {
		f := NewRecentSubmissionFilter()
		f.Record(Candidate{TrackID: "a"})
		assert.True(t, f.Check(context.Background(), Candidate{TrackID: "a"}, NewQueue(nil)).Accepted)
	})

	t.Run("rejects recorded tracks", func(t *testing.T) {
		f := NewRecentSubmissionFilter()
		require.NoError(t, f.ValidateConfig(map[string]any{"size": 2, "ttl_sec": 600}))

		f.Record(Candidate{SourceID: "src", TrackID: "a"})
		result := f.Check(context.Background(), Candidate{TrackID: "a"}, NewQueue(nil))
		assert.False(t, result.Accepted)
		assert.Equal(t, "recently_submitted", result.Code)
		assert.True(t, f.Check(context.Background(), Candidate{TrackID: "b"}, NewQueue(nil)).Accepted)
	})

	t.Run("evicts oldest beyond size", func(t *testing.T) {
		f := NewRecentSubmissionFilter()
		require.NoError(t, f.ValidateConfig(map[string]any{"size": 2, "ttl_sec": 600}))

		f.Record(Candidate{TrackID: "a"})
		f.Record(Candidate{TrackID: "b"})
		f.Record(Candidate{TrackID: "c"})
		assert.True(t, f.Check(context.Background(), Candidate{TrackID: "a"}, NewQueue(nil)).Accepted)
		assert.False(t, f.Check(context.Background(), Candidate{TrackID: "c"}, NewQueue(nil)).Accepted)
	})
}

func TestRecentSubmissionFilter_ValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		wantErr  bool
		wantSize int
		wantTTL  int
	}{
		{name: "defaults", settings: nil, wantSize: 100, wantTTL: 60},
		{name: "custom", settings: map[string]any{"size": 10, "ttl_sec": 30}, wantSize: 10, wantTTL: 30},
		{name: "string values", settings: map[string]any{"size": "5"}, wantSize: 5, wantTTL: 60},
		{name: "size too large", settings: map[string]any{"size": 20000}, wantErr: true},
		{name: "negative ttl", settings: map[string]any{"ttl_sec": -1}, wantErr: true},
		{name: "wrong type", settings: map[string]any{"size": map[string]any{"x": 1}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewRecentSubmissionFilter()
			err := f.ValidateConfig(tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSize, f.config.Size)
			assert.Equal(t, tt.wantTTL, f.config.TTLSec)
		})
	}
}

type stubFilter struct {
	name     string
	result   Result
	checked  int
	recorded []Candidate
}

func (s *stubFilter) Name() string                        { return s.name }
func (s *stubFilter) Description() string                 { return "" }
func (s *stubFilter) ReturnCodes() []string               { return nil }
func (s *stubFilter) ValidateConfig(map[string]any) error { return nil }
func (s *stubFilter) Record(c Candidate)                  { s.recorded = append(s.recorded, c) }
func (s *stubFilter) Check(context.Context, Candidate, Queue) Result {
	s.checked++
	return s.result
}

func TestChain_Execute(t *testing.T) {
	first := &stubFilter{name: "first", result: Reject("first_code")}
	second := &stubFilter{name: "second", result: Accept()}
	chain := NewChain(first, second)

	result := chain.Execute(context.Background(), Candidate{TrackID: "a"}, NewQueue(nil))
	assert.False(t, result.Accepted)
	assert.Equal(t, "first_code", result.Code)
	assert.Equal(t, 1, first.checked)
	assert.Zero(t, second.checked, "chain must stop at the first rejection")

	first.result = Accept()
	assert.True(t, chain.Execute(context.Background(), Candidate{TrackID: "a"}, NewQueue(nil)).Accepted)
	assert.Equal(t, 1, second.checked)

	chain.Record(Candidate{SourceID: "s", TrackID: "a"})
	assert.Len(t, first.recorded, 1)
	assert.Len(t, second.recorded, 1)
	assert.Len(t, chain.Filters(), 2)
}

func TestChain_Nil(t *testing.T) {
	var chain *Chain
	assert.True(t, chain.Execute(context.Background(), Candidate{}, NewQueue(nil)).Accepted)
	chain.Record(Candidate{})
	assert.Nil(t, chain.Filters())
}

func TestRegistry(t *testing.T) {
	names := RegisteredNames()
	assert.Contains(t, names, QueueDuplicateName)
	assert.Contains(t, names, RecentSubmissionName)

	for _, name := range names {
		f := GetRegistered()[name]()
		assert.Equal(t, name, f.Name())
		assert.NotEmpty(t, f.ReturnCodes())
	}
}
