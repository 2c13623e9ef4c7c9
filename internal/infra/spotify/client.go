// Package spotify provides a client for the Spotify API.
package spotify

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"

	"github.com/osa030/19mix/internal/domain/catalog"
)

// ErrNoDevice is returned when no playback device is available.
var ErrNoDevice = errors.New("no playback device available")

const (
	playlistPageLimit = 50
	itemPageLimit     = 100
)

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration

	deviceName string
	mu         sync.RWMutex
	deviceID   string
}

// Config represents Spotify client configuration.
type Config struct {
	Market     string
	DeviceID   string // Queue onto this device; resolved at start when empty
	DeviceName string // Preferred device name when DeviceID is empty
	BaseURL    string // API base URL, for tests
}

// New creates a new Spotify client on top of an authenticated HTTP client.
func New(httpClient *http.Client, cfg Config) *Client {
	wrapped := &http.Client{
		Transport: &rateLimitTransport{base: httpClient.Transport},
		Timeout:   httpClient.Timeout,
	}

	var opts []spotify.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, spotify.WithBaseURL(cfg.BaseURL))
	}

	market := cfg.Market
	if market == "" {
		market = "JP"
	}

	return &Client{
		client:     spotify.New(wrapped, opts...),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
		deviceName: cfg.DeviceName,
		deviceID:   cfg.DeviceID,
	}
}

// ListPlaylists returns every playlist owned or followed by the user.
func (c *Client) ListPlaylists(ctx context.Context) ([]catalog.PlaylistSummary, error) {
	var playlists []catalog.PlaylistSummary
	offset := 0

	for {
		var page *spotify.SimplePlaylistPage
		err := c.retry(ctx, func(ctx context.Context) error {
			p, err := c.client.CurrentUsersPlaylists(ctx,
				spotify.Limit(playlistPageLimit),
				spotify.Offset(offset),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlists")
		}

		for _, p := range page.Playlists {
			if p.ID == "" {
				continue
			}
			playlists = append(playlists, catalog.PlaylistSummary{
				ID:   string(p.ID),
				Name: p.Name,
			})
		}

		if len(page.Playlists) < playlistPageLimit || page.Next == "" {
			break
		}
		offset += playlistPageLimit
	}

	zlog.Debug().Msgf("spotify: listed playlists: count=%d", len(playlists))
	return playlists, nil
}

// ListTracks returns the track IDs of a playlist in order.
// Episodes, local files and items without an ID are left out.
func (c *Client) ListTracks(ctx context.Context, playlistID string) ([]string, error) {
	id := ExtractPlaylistID(playlistID)
	if id == "" {
		return nil, errors.New("invalid playlist ID")
	}

	var trackIDs []string
	offset := 0

	for {
		var page *spotify.PlaylistItemPage
		err := c.retry(ctx, func(ctx context.Context) error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(id),
				spotify.Limit(itemPageLimit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get items of playlist %s", id)
		}

		for _, item := range page.Items {
			// Only process tracks (exclude episodes and local files)
			if item.IsLocal || item.Track.Track == nil || item.Track.Track.ID == "" {
				continue
			}
			trackIDs = append(trackIDs, string(item.Track.Track.ID))
		}

		if len(page.Items) < itemPageLimit {
			break
		}
		offset += itemPageLimit
	}

	return trackIDs, nil
}

// GetQueue returns the currently playing track followed by the pending queue.
func (c *Client) GetQueue(ctx context.Context) ([]string, error) {
	var queue *spotify.Queue
	err := c.retry(ctx, func(ctx context.Context) error {
		q, err := c.client.GetQueue(ctx)
		if err != nil {
			return err
		}
		queue = q
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get queue")
	}

	trackIDs := make([]string, 0, len(queue.Items)+1)
	if queue.CurrentlyPlaying.ID != "" {
		trackIDs = append(trackIDs, string(queue.CurrentlyPlaying.ID))
	}
	for i := range queue.Items {
		if queue.Items[i].ID != "" {
			trackIDs = append(trackIDs, string(queue.Items[i].ID))
		}
	}
	return trackIDs, nil
}

// Enqueue adds a track to the play queue of the target device.
// It makes a single attempt: rate limiting is returned as
// *catalog.ThrottledError for the caller to handle.
func (c *Client) Enqueue(ctx context.Context, trackID string) error {
	id := spotify.ID(ExtractTrackID(trackID))

	var opt *spotify.PlayOptions
	if deviceID := c.DeviceID(); deviceID != "" {
		d := spotify.ID(deviceID)
		opt = &spotify.PlayOptions{DeviceID: &d}
	}

	qctx, rl := withRateLimit(ctx)
	if err := asThrottled(c.client.QueueSongOpt(qctx, id, opt), rl); err != nil {
		var throttled *catalog.ThrottledError
		if errors.As(err, &throttled) {
			return throttled
		}
		return errors.Wrapf(err, "failed to queue track %s", id)
	}
	return nil
}

// ResolveDevice picks the playback device to queue onto: the configured
// device ID, else the device named DeviceName, else the active device, else
// the first available one.
func (c *Client) ResolveDevice(ctx context.Context) (string, error) {
	if id := c.DeviceID(); id != "" {
		return id, nil
	}

	var devices []spotify.PlayerDevice
	err := c.retry(ctx, func(ctx context.Context) error {
		d, err := c.client.PlayerDevices(ctx)
		if err != nil {
			return err
		}
		devices = d
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to get player devices")
	}

	device, ok := pickDevice(devices, c.deviceName)
	if !ok {
		return "", ErrNoDevice
	}

	c.mu.Lock()
	c.deviceID = string(device.ID)
	c.mu.Unlock()

	zlog.Info().Msgf("spotify: playback device selected: name=%s type=%s active=%v", device.Name, device.Type, device.Active)
	return string(device.ID), nil
}

// DeviceID returns the device tracks are queued onto, if any.
func (c *Client) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceID
}

func pickDevice(devices []spotify.PlayerDevice, name string) (spotify.PlayerDevice, bool) {
	if name != "" {
		for _, d := range devices {
			if strings.EqualFold(d.Name, name) && !d.Restricted {
				return d, true
			}
		}
	}
	for _, d := range devices {
		if d.Active && !d.Restricted {
			return d, true
		}
	}
	for _, d := range devices {
		if !d.Restricted {
			return d, true
		}
	}
	return spotify.PlayerDevice{}, false
}

// retry retries a read with linear backoff. A throttled response waits for
// its Retry-After instead when it is longer.
func (c *Client) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		callCtx, rl := withRateLimit(ctx)
		err := asThrottled(fn(callCtx), rl)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			wait := c.retryDelay * time.Duration(i+1)
			var throttled *catalog.ThrottledError
			if errors.As(err, &throttled) && throttled.RetryAfter > wait {
				wait = throttled.RetryAfter
			}
			zlog.Debug().Msgf("spotify: retrying: attempt=%d wait=%v error=%v", i+1, wait, err)

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Wrap(ctx.Err(), "retry cancelled")
			case <-timer.C:
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var throttled *catalog.ThrottledError
	if errors.As(err, &throttled) {
		return true
	}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// ExtractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func ExtractPlaylistID(input string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:playlist:PLAYLIST_ID
	if strings.HasPrefix(input, "spotify:playlist:") {
		return strings.TrimPrefix(input, "spotify:playlist:")
	}

	// Handle URL format: https://open.spotify.com/playlist/PLAYLIST_ID or https://open.spotify.com/intl-XX/playlist/PLAYLIST_ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/playlist/") {
		parts := strings.Split(input, "/playlist/")
		if len(parts) >= 2 {
			// Remove query parameters and trailing slashes
			id := strings.Split(parts[len(parts)-1], "?")[0]
			id = strings.TrimRight(id, "/")
			return id
		}
	}

	// Assume it's already a playlist ID
	return input
}

// ExtractTrackID extracts the track ID from a Spotify track URL or URI.
func ExtractTrackID(input string) string {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "spotify:track:") {
		return strings.TrimPrefix(input, "spotify:track:")
	}

	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/") {
		parts := strings.Split(input, "/track/")
		if len(parts) >= 2 {
			id := strings.Split(parts[len(parts)-1], "?")[0]
			id = strings.TrimRight(id, "/")
			return id
		}
	}

	return input
}
