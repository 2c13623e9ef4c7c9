// Package library provides the local cache of playlist track membership.
package library

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/19mix/internal/domain/catalog"
	"github.com/osa030/19mix/internal/domain/mix"
	"github.com/osa030/19mix/internal/domain/playlist"
)

// ErrFetch is wrapped around every failure of a refresh.
var ErrFetch = errors.New("library fetch failed")

// Catalog defines the catalog operations needed to build the library.
type Catalog interface {
	ListPlaylists(ctx context.Context) ([]catalog.PlaylistSummary, error)
	ListTracks(ctx context.Context, playlistID string) ([]string, error)
}

// Config holds cache configuration.
type Config struct {
	Concurrency int // Maximum number of playlists fetched in parallel
}

// Cache maps playlist IDs to their track membership.
// Refreshes are additive: existing entries are never overwritten.
type Cache struct {
	catalog     Catalog
	concurrency int

	refreshMu sync.Mutex // serializes Refresh

	mu      sync.RWMutex
	entries map[string]playlist.Playlist
}

// New creates an empty cache.
func New(c Catalog, cfg Config) *Cache {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Cache{
		catalog:     c,
		concurrency: concurrency,
		entries:     make(map[string]playlist.Playlist),
	}
}

// Refresh fetches the user's playlists and merges the ones not yet cached.
// Each playlist is merged only once its full track list has been fetched, so a
// failed or cancelled refresh keeps everything merged before the failure.
// Playlists without any track are skipped.
func (c *Cache) Refresh(ctx context.Context) (map[string]playlist.Playlist, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	summaries, err := c.catalog.ListPlaylists(ctx)
	if err != nil {
		return c.Snapshot(), errors.Mark(errors.Wrap(err, "failed to list playlists"), ErrFetch)
	}
	zlog.Debug().Msgf("library: listed playlists: count=%d", len(summaries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	var added, skipped int
	var countMu sync.Mutex

	for _, s := range summaries {
		if c.has(s.ID) {
			continue
		}
		s := s
		g.Go(func() error {
			trackIDs, err := c.catalog.ListTracks(gctx, s.ID)
			if err != nil {
				return errors.Wrapf(err, "failed to list tracks of playlist %s", s.ID)
			}

			p := playlist.New(s.ID, s.Name, trackIDs)
			countMu.Lock()
			defer countMu.Unlock()
			if p.IsEmpty() {
				skipped++
				zlog.Debug().Msgf("library: skipping playlist without tracks: playlist_id=%s name=%s", s.ID, s.Name)
				return nil
			}
			if c.merge(p) {
				added++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		zlog.Warn().Msgf("library: refresh aborted: added=%d error=%v", added, err)
		return c.Snapshot(), errors.Mark(err, ErrFetch)
	}

	zlog.Info().Msgf("library: refreshed: playlists=%d added=%d skipped=%d cached=%d",
		len(summaries), added, skipped, c.Len())
	return c.Snapshot(), nil
}

// Get returns the cached playlist.
func (c *Cache) Get(id string) (playlist.Playlist, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[id]
	return p, ok
}

// Len returns the number of cached playlists.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of the cache contents.
func (c *Cache) Snapshot() map[string]playlist.Playlist {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]playlist.Playlist, len(c.entries))
	for id, p := range c.entries {
		result[id] = p
	}
	return result
}

// Entries returns the cached playlists sorted by name, then ID.
func (c *Cache) Entries() []playlist.Playlist {
	c.mu.RLock()
	result := make([]playlist.Playlist, 0, len(c.entries))
	for _, p := range c.entries {
		result = append(result, p)
	}
	c.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// DefaultMix returns every cached playlist as a source with weight 0.0.
// Playlists whose ID is not a valid source ID are left out.
func (c *Cache) DefaultMix() []mix.Source {
	entries := c.Entries()
	sources := make([]mix.Source, 0, len(entries))
	for _, p := range entries {
		s, err := mix.NewSource(p.ID, 0.0)
		if err != nil {
			zlog.Debug().Msgf("library: playlist not usable as source: playlist_id=%s error=%v", p.ID, err)
			continue
		}
		sources = append(sources, s)
	}
	return sources
}

func (c *Cache) has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[id]
	return ok
}

// merge adds p unless an entry with the same ID exists.
func (c *Cache) merge(p playlist.Playlist) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[p.ID]; exists {
		return false
	}
	c.entries[p.ID] = p
	return true
}
