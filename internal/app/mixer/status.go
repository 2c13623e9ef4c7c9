package mixer

import (
	"fmt"
	"strings"
	"time"

	"github.com/osa030/19mix/internal/domain/mix"
)

// SourceStatus is a snapshot of one source.
type SourceStatus struct {
	ID          string
	Name        string
	Weight      float64
	PlayCount   int
	Score       float64
	TargetShare float64 // weight / sum of weights
	ActualShare float64 // playCount / totalPlayed
}

// Status is a snapshot of the scheduler.
type Status struct {
	SessionID   string
	StartedAt   time.Time
	Enabled     bool
	Ticking     bool
	TotalPlayed int
	Interval    time.Duration
	LastOutcome Outcome
	LastTickAt  time.Time
	Sources     []SourceStatus
}

// Status returns a consistent snapshot of the installed configuration and
// its counters.
func (m *Mixer) Status() Status {
	m.mu.Lock()
	sess := m.sess
	sources := sess.config.Sources()
	counts := append([]int(nil), sess.playCounts...)
	st := Status{
		SessionID:   sess.id,
		StartedAt:   sess.startedAt,
		Enabled:     len(sources) > 0,
		TotalPlayed: sess.totalPlayed,
		Interval:    m.config.Interval,
		LastOutcome: m.lastOutcome,
		LastTickAt:  m.lastTickAt,
	}
	m.mu.Unlock()

	st.Ticking = m.ticking.Load()
	totalWeight := sess.config.TotalWeight()

	st.Sources = make([]SourceStatus, 0, len(sources))
	for i, s := range sources {
		s.PlayCount = counts[i]
		ss := SourceStatus{
			ID:        s.ID,
			Weight:    s.Weight,
			PlayCount: s.PlayCount,
			Score:     s.Score(st.TotalPlayed),
		}
		if p, ok := m.library.Get(s.ID); ok {
			ss.Name = p.Name
		}
		if totalWeight > 0 {
			ss.TargetShare = s.Weight / totalWeight
		}
		if st.TotalPlayed > 0 {
			ss.ActualShare = float64(s.PlayCount) / float64(st.TotalPlayed)
		}
		st.Sources = append(st.Sources, ss)
	}
	return st
}

func describeSources(sources []mix.Source) string {
	if len(sources) == 0 {
		return "disabled"
	}
	parts := make([]string, 0, len(sources))
	for _, s := range sources {
		parts = append(parts, fmt.Sprintf("%s=%.2f", s.ID, s.Weight))
	}
	return strings.Join(parts, ",")
}
