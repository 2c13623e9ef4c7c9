package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"

	"github.com/osa030/19mix/internal/domain/catalog"
)

func TestExtractPlaylistID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Spotify URI format",
			input:    "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Spotify URL format",
			input:    "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Spotify URL with query params",
			input:    "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M?si=abc123",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Localized URL",
			input:    "https://open.spotify.com/intl-ja/playlist/37i9dQZF1DXcBWIGoYBM5M",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Plain playlist ID",
			input:    " 37i9dQZF1DXcBWIGoYBM5M ",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractPlaylistID(tt.input))
		})
	}
}

func TestExtractTrackID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "URI", input: "spotify:track:4uLU6hMCjMI75M1A2tKUQC", expected: "4uLU6hMCjMI75M1A2tKUQC"},
		{name: "URL", input: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=x", expected: "4uLU6hMCjMI75M1A2tKUQC"},
		{name: "ID", input: "4uLU6hMCjMI75M1A2tKUQC", expected: "4uLU6hMCjMI75M1A2tKUQC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractTrackID(tt.input))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "throttled", err: errors.Wrap(&catalog.ThrottledError{RetryAfter: time.Second}, "get"), expected: true},
		{name: "api error 503", err: spotify.Error{Status: 503, Message: "unavailable"}, expected: true},
		{name: "api error 404", err: spotify.Error{Status: 404, Message: "Not found"}, expected: false},
		{name: "rate limit text", err: errors.New("rate limit exceeded"), expected: true},
		{name: "server error 502", err: errors.New("502 Bad Gateway"), expected: true},
		{name: "client error 400", err: errors.New("400 Bad Request"), expected: false},
		{name: "generic error", err: errors.New("something went wrong"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryable(tt.err))
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "seconds", value: "7", want: 7 * time.Second},
		{name: "missing", value: "", want: 0},
		{name: "negative", value: "-3", want: 0},
		{name: "http date", value: now.Add(90 * time.Second).Format(http.TimeFormat), want: 90 * time.Second},
		{name: "date in the past", value: now.Add(-time.Minute).Format(http.TimeFormat), want: 0},
		{name: "garbage", value: "soon", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.value, now))
		})
	}
}

// fakeAPI serves the subset of the Web API used by Client.
type fakeAPI struct {
	mu           sync.Mutex
	queueStatus  []int // status codes returned by POST me/player/queue, in order
	retryAfter   string
	queued       []string
	deviceParams []string
	failItems    int // number of 503 responses before serving playlist items
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && path == "me/playlists":
		offset := r.URL.Query().Get("offset")
		if offset == "" || offset == "0" {
			items := make([]string, 0, 50)
			for i := 0; i < 50; i++ {
				items = append(items, fmt.Sprintf(`{"id":"pl%02d","name":"Playlist %d"}`, i, i))
			}
			fmt.Fprintf(w, `{"items":[%s],"total":51,"limit":50,"offset":0,"next":"more"}`, strings.Join(items, ","))
			return
		}
		fmt.Fprint(w, `{"items":[{"id":"pl50","name":"Last"},{"id":"","name":"Broken"}],"total":51,"limit":50,"offset":50,"next":""}`)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "playlists/"):
		if f.failItems > 0 {
			f.failItems--
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"status":503,"message":"Service unavailable"}}`)
			return
		}
		fmt.Fprint(w, `{"items":[
			{"is_local":false,"track":{"id":"t1","type":"track","name":"One"}},
			{"is_local":true,"track":{"id":"","type":"track","name":"Local"}},
			{"is_local":false,"track":{"id":"ep1","type":"episode","name":"Episode"}},
			{"is_local":false,"track":{"id":"t2","type":"track","name":"Two"}}
		],"total":4,"limit":100,"offset":0}`)

	case r.Method == http.MethodGet && path == "me/player/queue":
		fmt.Fprint(w, `{"currently_playing":{"id":"now","type":"track"},"queue":[{"id":"q1","type":"track"},{"id":"q2","type":"track"}]}`)

	case r.Method == http.MethodPost && path == "me/player/queue":
		f.deviceParams = append(f.deviceParams, r.URL.Query().Get("device_id"))
		status := http.StatusNoContent
		if len(f.queueStatus) > 0 {
			status = f.queueStatus[0]
			f.queueStatus = f.queueStatus[1:]
		}
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", f.retryAfter)
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":{"status":429,"message":"API rate limit exceeded"}}`)
			return
		}
		if status >= 400 {
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"error":{"status":%d,"message":"failed"}}`, status)
			return
		}
		f.queued = append(f.queued, r.URL.Query().Get("uri"))
		w.WriteHeader(status)

	case r.Method == http.MethodGet && path == "me/player/devices":
		fmt.Fprint(w, `{"devices":[
			{"id":"d1","is_active":false,"is_restricted":false,"name":"Phone","type":"Smartphone"},
			{"id":"d2","is_active":true,"is_restricted":false,"name":"Kitchen","type":"Speaker"}
		]}`)

	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"status":404,"message":"not found"}}`)
	}
}

func newTestClient(t *testing.T, api *fakeAPI, cfg Config) *Client {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	cfg.BaseURL = server.URL + "/"
	c := New(server.Client(), cfg)
	c.retryDelay = time.Millisecond
	return c
}

func TestClient_ListPlaylists(t *testing.T) {
	c := newTestClient(t, &fakeAPI{}, Config{})

	playlists, err := c.ListPlaylists(context.Background())
	require.NoError(t, err)
	require.Len(t, playlists, 51)
	assert.Equal(t, catalog.PlaylistSummary{ID: "pl00", Name: "Playlist 0"}, playlists[0])
	assert.Equal(t, "pl50", playlists[50].ID)
}

func TestClient_ListTracks(t *testing.T) {
	api := &fakeAPI{failItems: 1}
	c := newTestClient(t, api, Config{})

	trackIDs, err := c.ListTracks(context.Background(), "spotify:playlist:5faTa2QyuNYFBMUD5IqGjL")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, trackIDs)
}

func TestClient_GetQueue(t *testing.T) {
	c := newTestClient(t, &fakeAPI{}, Config{})

	trackIDs, err := c.GetQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"now", "q1", "q2"}, trackIDs)
}

func TestClient_Enqueue(t *testing.T) {
	t.Run("success with device", func(t *testing.T) {
		api := &fakeAPI{}
		c := newTestClient(t, api, Config{DeviceID: "d9"})

		require.NoError(t, c.Enqueue(context.Background(), "4uLU6hMCjMI75M1A2tKUQC"))
		assert.Equal(t, []string{"spotify:track:4uLU6hMCjMI75M1A2tKUQC"}, api.queued)
		assert.Equal(t, []string{"d9"}, api.deviceParams)
	})

	t.Run("throttled is not retried", func(t *testing.T) {
		api := &fakeAPI{queueStatus: []int{http.StatusTooManyRequests}, retryAfter: "3"}
		c := newTestClient(t, api, Config{})

		err := c.Enqueue(context.Background(), "4uLU6hMCjMI75M1A2tKUQC")
		require.Error(t, err)

		var throttled *catalog.ThrottledError
		require.True(t, errors.As(err, &throttled))
		assert.Equal(t, 3*time.Second, throttled.RetryAfter)
		assert.Len(t, api.deviceParams, 1, "a single attempt")
		assert.Empty(t, api.queued)
	})

	t.Run("other failure", func(t *testing.T) {
		api := &fakeAPI{queueStatus: []int{http.StatusNotFound}}
		c := newTestClient(t, api, Config{})

		err := c.Enqueue(context.Background(), "4uLU6hMCjMI75M1A2tKUQC")
		require.Error(t, err)
		var throttled *catalog.ThrottledError
		assert.False(t, errors.As(err, &throttled))
	})
}

func TestClient_ResolveDevice(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		wantDevice string
	}{
		{name: "configured id wins", cfg: Config{DeviceID: "fixed"}, wantDevice: "fixed"},
		{name: "by name", cfg: Config{DeviceName: "phone"}, wantDevice: "d1"},
		{name: "active device", cfg: Config{}, wantDevice: "d2"},
		{name: "unknown name falls back to active", cfg: Config{DeviceName: "Car"}, wantDevice: "d2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &fakeAPI{}, tt.cfg)
			id, err := c.ResolveDevice(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantDevice, id)
			assert.Equal(t, tt.wantDevice, c.DeviceID())
		})
	}
}

func TestPickDevice(t *testing.T) {
	_, ok := pickDevice([]spotify.PlayerDevice{{ID: "r", Restricted: true}}, "")
	assert.False(t, ok)

	d, ok := pickDevice([]spotify.PlayerDevice{{ID: "a"}, {ID: "b"}}, "")
	require.True(t, ok)
	assert.Equal(t, spotify.ID("a"), d.ID)
}
