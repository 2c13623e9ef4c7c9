// Package mixer provides the proportional scheduler that feeds the play queue.
//
// Every tick selects the source with the largest deficit score
// (weight*totalPlayed - playCount), draws a random track from it, skips
// tracks already pending in the queue and submits the track. Over a session
// each source contributes tracks in proportion to its weight.
package mixer

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19mix/internal/app/filter"
	"github.com/osa030/19mix/internal/app/notification"
	"github.com/osa030/19mix/internal/domain/catalog"
	"github.com/osa030/19mix/internal/domain/mix"
	"github.com/osa030/19mix/internal/domain/playlist"
)

var (
	// ErrNoDistinctTrack is returned when every candidate track was rejected.
	ErrNoDistinctTrack = errors.New("no distinct track available")
	// ErrSubmit wraps queue failures other than throttling.
	ErrSubmit = errors.New("queue submission failed")
)

// QueueClient defines the play queue operations needed by the mixer.
type QueueClient interface {
	// GetQueue returns the pending track IDs, including the one playing.
	GetQueue(ctx context.Context) ([]string, error)
	// Enqueue adds a track to the queue. Rate limiting is reported as
	// *catalog.ThrottledError.
	Enqueue(ctx context.Context, trackID string) error
}

// Library provides the track membership of source playlists.
type Library interface {
	Get(id string) (playlist.Playlist, bool)
}

// Publisher receives mixer events.
type Publisher interface {
	Publish(event notification.Event)
}

// Observer receives tick measurements.
type Observer interface {
	TickCompleted(outcome Outcome, elapsed time.Duration)
	TrackSubmitted(sourceID string)
	Throttled()
}

// Config holds scheduler configuration.
type Config struct {
	Interval          time.Duration // Time between ticks
	DefaultRetryAfter time.Duration // Wait used when a throttled response has no Retry-After
	TickOnStart       bool          // Run one tick as soon as Run starts
}

// session is the installed mix configuration with its counters.
// A new session replaces the old one on every SetActiveSources.
type session struct {
	id          string
	startedAt   time.Time
	config      *mix.Config
	playCounts  []int // parallel to config.Sources()
	totalPlayed int
}

// Mixer is the proportional scheduler.
type Mixer struct {
	queue   QueueClient
	library Library
	config  Config

	filters   *filter.Chain
	publisher Publisher
	observer  Observer
	intn      func(n int) int
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	ticking atomic.Bool

	mu          sync.Mutex
	sess        *session
	lastOutcome Outcome
	lastTickAt  time.Time
}

// Option configures a Mixer.
type Option func(*Mixer)

// WithFilterChain sets the candidate filters.
// Without it only the live queue duplicate check is applied.
func WithFilterChain(c *filter.Chain) Option {
	return func(m *Mixer) { m.filters = c }
}

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(m *Mixer) { m.publisher = p }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(m *Mixer) { m.observer = o }
}

// WithRand sets the random index source used for track picks.
func WithRand(intn func(n int) int) Option {
	return func(m *Mixer) { m.intn = intn }
}

// WithSleep sets the function used to wait out throttling.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Mixer) { m.sleep = sleep }
}

// New creates a mixer with an empty configuration. It stays disabled until
// SetActiveSources installs at least one source.
func New(queue QueueClient, library Library, cfg Config, opts ...Option) *Mixer {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = time.Second
	}
	m := &Mixer{
		queue:     queue,
		library:   library,
		config:    cfg,
		filters:   filter.NewChain(filter.NewQueueDuplicateFilter()),
		publisher: nopPublisher{},
		observer:  nopObserver{},
		intn:      rand.Intn,
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.sess = m.newSession(nil)
	return m
}

// SetActiveSources replaces the mix configuration wholesale.
// All play counts and the session total are reset. An empty list disables
// the scheduler. A tick in flight keeps running against the configuration it
// started with and its result is discarded.
func (m *Mixer) SetActiveSources(sources []mix.Source) error {
	cfg, err := mix.NewConfig(sources)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.sess = m.newSession(cfg)
	sess := m.sess
	m.mu.Unlock()

	zlog.Info().Msgf("mixer: mix replaced: session_id=%s sources=%d total_weight=%.2f",
		sess.id, cfg.Len(), cfg.TotalWeight())
	m.publisher.Publish(notification.Event{
		Type:      notification.EventMixChanged,
		SessionID: sess.id,
		Message:   describeSources(cfg.Sources()),
	})
	return nil
}

// Enabled reports whether the installed configuration has any source.
func (m *Mixer) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.sess.config.Empty()
}

// Run ticks every interval until ctx is done. Ticks run inline: a tick that
// is still waiting out throttling delays the next one and ticker fires
// during that time are dropped.
func (m *Mixer) Run(ctx context.Context) error {
	zlog.Info().Msgf("mixer: started: interval=%v tick_on_start=%v", m.config.Interval, m.config.TickOnStart)

	if m.config.TickOnStart {
		m.tickAndLog(ctx)
	}

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zlog.Info().Msg("mixer: stopped")
			return nil
		case <-ticker.C:
			m.tickAndLog(ctx)
		}
	}
}

func (m *Mixer) tickAndLog(ctx context.Context) {
	result, err := m.Tick(ctx)
	if err != nil && ctx.Err() == nil {
		zlog.Debug().Msgf("mixer: tick ended with error: outcome=%s error=%v", result.Outcome, err)
	}
}

func (m *Mixer) newSession(cfg *mix.Config) *session {
	return &session{
		id:         uuid.New().String(),
		startedAt:  m.now(),
		config:     cfg,
		playCounts: make([]int, cfg.Len()),
	}
}

// evict replaces the configuration with one that excludes the source, but
// only if sess is still installed.
func (m *Mixer) evict(sess *session, sourceID string) (*session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != sess {
		return nil, false
	}
	cfg, err := mix.NewConfig(sess.config.Without(sourceID))
	if err != nil {
		// Sources were validated on install.
		zlog.Error().Msgf("mixer: failed to rebuild mix on eviction: error=%v", err)
		return nil, false
	}
	m.sess = m.newSession(cfg)
	return m.sess, true
}

// commit records a successful submission if sess is still installed.
func (m *Mixer) commit(sess *session, index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != sess {
		return false
	}
	sess.playCounts[index]++
	sess.totalPlayed++
	return true
}

// submit enqueues the track, waiting out throttling and retrying the same
// track until it is accepted or fails otherwise.
func (m *Mixer) submit(ctx context.Context, sess *session, c filter.Candidate) (throttles int, err error) {
	for {
		err := m.queue.Enqueue(ctx, c.TrackID)
		if err == nil {
			return throttles, nil
		}

		var throttled *catalog.ThrottledError
		if !errors.As(err, &throttled) {
			return throttles, errors.Mark(errors.Wrapf(err, "failed to enqueue track %s", c.TrackID), ErrSubmit)
		}

		wait := throttled.RetryAfter
		if wait <= 0 {
			wait = m.config.DefaultRetryAfter
		}
		throttles++
		m.observer.Throttled()
		zlog.Warn().Msgf("mixer: throttled, retrying same track: track_id=%s retry_after=%v attempt=%d",
			c.TrackID, wait, throttles)
		m.publisher.Publish(notification.Event{
			Type:      notification.EventThrottled,
			SessionID: sess.id,
			SourceID:  c.SourceID,
			TrackID:   c.TrackID,
			Message:   wait.String(),
		})

		if err := m.sleep(ctx, wait); err != nil {
			return throttles, errors.Wrap(err, "throttle wait cancelled")
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(notification.Event) {}

type nopObserver struct{}

func (nopObserver) TickCompleted(Outcome, time.Duration) {}
func (nopObserver) TrackSubmitted(string)                {}
func (nopObserver) Throttled()                           {}
