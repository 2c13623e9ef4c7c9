package mixer

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19mix/internal/app/filter"
	"github.com/osa030/19mix/internal/app/notification"
	"github.com/osa030/19mix/internal/domain/mix"
)

// Outcome describes how a tick ended.
type Outcome string

const (
	// OutcomeDisabled means no source is configured; nothing was called.
	OutcomeDisabled Outcome = "disabled"
	// OutcomeSubmitted means a track was queued and counted.
	OutcomeSubmitted Outcome = "submitted"
	// OutcomeEvicted means the selected source had no tracks and was removed.
	OutcomeEvicted Outcome = "evicted"
	// OutcomeExhausted means every candidate track was rejected.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeFailed means the queue read or the submission failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeBusy means another tick was still running.
	OutcomeBusy Outcome = "busy"
	// OutcomeAborted means the track was queued but the mix was replaced
	// meanwhile, so nothing was counted.
	OutcomeAborted Outcome = "aborted"
)

// Result describes a finished tick.
type Result struct {
	Outcome   Outcome
	SessionID string
	SourceID  string // Selected (or evicted) source
	TrackID   string // Submitted track
	Attempts  int    // Candidates checked against the filters
	Throttles int    // Throttled submissions waited out
}

// Tick runs one selection and submission cycle.
// A tick requested while another one runs returns OutcomeBusy immediately.
func (m *Mixer) Tick(ctx context.Context) (Result, error) {
	if !m.ticking.CompareAndSwap(false, true) {
		m.observer.TickCompleted(OutcomeBusy, 0)
		return Result{Outcome: OutcomeBusy}, nil
	}
	defer m.ticking.Store(false)

	start := time.Now()
	result, err := m.tick(ctx)

	m.mu.Lock()
	m.lastOutcome = result.Outcome
	m.lastTickAt = m.now()
	m.mu.Unlock()

	m.observer.TickCompleted(result.Outcome, time.Since(start))
	return result, err
}

func (m *Mixer) tick(ctx context.Context) (Result, error) {
	m.mu.Lock()
	sess := m.sess
	sources := sess.config.Sources()
	counts := append([]int(nil), sess.playCounts...)
	total := sess.totalPlayed
	m.mu.Unlock()

	result := Result{SessionID: sess.id}
	if len(sources) == 0 {
		result.Outcome = OutcomeDisabled
		return result, nil
	}

	pending, err := m.queue.GetQueue(ctx)
	if err != nil {
		result.Outcome = OutcomeFailed
		err = errors.Wrap(err, "failed to read queue")
		m.fail(sess, result, err)
		return result, err
	}
	queue := filter.NewQueue(pending)

	budget := 0
	for _, s := range sources {
		if p, ok := m.library.Get(s.ID); ok {
			budget += p.TrackCount()
		}
	}

	rejected := make(map[string]struct{})
	excluded := make([]bool, len(sources))
	var cand filter.Candidate
	index := -1

	for index < 0 {
		idx := selectSource(sources, counts, total, excluded)
		if idx < 0 {
			return m.exhausted(sess, result)
		}
		src := sources[idx]
		result.SourceID = src.ID

		// Eviction comes before the budget check: the budget only counts
		// sources with tracks.
		entry, ok := m.library.Get(src.ID)
		if !ok || entry.IsEmpty() {
			return m.evicted(sess, result)
		}
		if result.Attempts >= budget {
			return m.exhausted(sess, result)
		}

		remaining := remainingTracks(entry.TrackIDs, rejected)
		if len(remaining) == 0 {
			excluded[idx] = true
			continue
		}

		result.Attempts++
		c := filter.Candidate{SourceID: src.ID, TrackID: remaining[m.intn(len(remaining))]}
		verdict := m.filters.Execute(ctx, c, queue)
		if !verdict.Accepted {
			zlog.Debug().Msgf("mixer: candidate rejected: source_id=%s track_id=%s code=%s",
				c.SourceID, c.TrackID, verdict.Code)
			rejected[c.TrackID] = struct{}{}
			if len(remaining) == 1 {
				excluded[idx] = true
			}
			continue
		}
		cand, index = c, idx
	}

	result.TrackID = cand.TrackID
	throttles, err := m.submit(ctx, sess, cand)
	result.Throttles = throttles
	if err != nil {
		result.Outcome = OutcomeFailed
		m.fail(sess, result, err)
		return result, err
	}

	m.filters.Record(cand)
	m.observer.TrackSubmitted(cand.SourceID)

	if !m.commit(sess, index) {
		result.Outcome = OutcomeAborted
		zlog.Info().Msgf("mixer: mix replaced during tick, not counted: track_id=%s source_id=%s",
			cand.TrackID, cand.SourceID)
		return result, nil
	}

	result.Outcome = OutcomeSubmitted
	zlog.Info().Msgf("mixer: track submitted: source_id=%s track_id=%s play_count=%d total_played=%d attempts=%d throttles=%d",
		cand.SourceID, cand.TrackID, counts[index]+1, total+1, result.Attempts, throttles)
	m.publisher.Publish(notification.Event{
		Type:      notification.EventTrackSubmitted,
		SessionID: sess.id,
		SourceID:  cand.SourceID,
		TrackID:   cand.TrackID,
	})
	return result, nil
}

func (m *Mixer) evicted(sess *session, result Result) (Result, error) {
	result.Outcome = OutcomeEvicted
	next, ok := m.evict(sess, result.SourceID)
	if !ok {
		zlog.Info().Msgf("mixer: source without tracks, mix already replaced: source_id=%s", result.SourceID)
		return result, nil
	}
	zlog.Info().Msgf("mixer: source without tracks evicted: source_id=%s remaining=%d session_id=%s",
		result.SourceID, next.config.Len(), next.id)
	m.publisher.Publish(notification.Event{
		Type:      notification.EventSourceEvicted,
		SessionID: next.id,
		SourceID:  result.SourceID,
		Message:   "no tracks in library",
	})
	return result, nil
}

func (m *Mixer) exhausted(sess *session, result Result) (Result, error) {
	result.Outcome = OutcomeExhausted
	result.SourceID = ""
	zlog.Warn().Msgf("mixer: no distinct track available: attempts=%d session_id=%s", result.Attempts, sess.id)
	m.publisher.Publish(notification.Event{
		Type:      notification.EventNoDistinctTrack,
		SessionID: sess.id,
	})
	return result, errors.Wrapf(ErrNoDistinctTrack, "after %d attempts", result.Attempts)
}

func (m *Mixer) fail(sess *session, result Result, err error) {
	zlog.Warn().Msgf("mixer: tick failed: source_id=%s track_id=%s error=%v", result.SourceID, result.TrackID, err)
	m.publisher.Publish(notification.Event{
		Type:      notification.EventTickFailed,
		SessionID: sess.id,
		SourceID:  result.SourceID,
		TrackID:   result.TrackID,
		Message:   err.Error(),
	})
}

// selectSource returns the index of the source with the maximum deficit
// score, the first one on ties, or -1 if every source is excluded.
func selectSource(sources []mix.Source, counts []int, total int, excluded []bool) int {
	best := -1
	var bestScore float64
	for i, s := range sources {
		if excluded[i] {
			continue
		}
		s.PlayCount = counts[i]
		score := s.Score(total)
		if best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func remainingTracks(trackIDs []string, rejected map[string]struct{}) []string {
	if len(rejected) == 0 {
		return trackIDs
	}
	remaining := make([]string, 0, len(trackIDs))
	for _, id := range trackIDs {
		if _, ok := rejected[id]; !ok {
			remaining = append(remaining, id)
		}
	}
	return remaining
}
