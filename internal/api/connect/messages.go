package connect

import (
	"time"

	"github.com/osa030/19mix/internal/app/mixer"
)

// SourceInfo describes one source of the installed mix.
type SourceInfo struct {
	PlaylistID  string  `json:"playlist_id"`
	Name        string  `json:"name,omitempty"`
	Weight      float64 `json:"weight"`
	PlayCount   int     `json:"play_count"`
	Score       float64 `json:"score"`
	TargetShare float64 `json:"target_share"`
	ActualShare float64 `json:"actual_share"`
}

// GetStatusResponse is the scheduler snapshot.
type GetStatusResponse struct {
	SessionID   string       `json:"session_id"`
	StartedAt   time.Time    `json:"started_at"`
	Enabled     bool         `json:"enabled"`
	Ticking     bool         `json:"ticking"`
	TotalPlayed int          `json:"total_played"`
	IntervalSec float64      `json:"interval_sec"`
	LastOutcome string       `json:"last_outcome,omitempty"`
	LastTickAt  *time.Time   `json:"last_tick_at,omitempty"`
	LibrarySize int          `json:"library_size"`
	Sources     []SourceInfo `json:"sources"`
}

// PlaylistInfo describes a cached playlist.
type PlaylistInfo struct {
	PlaylistID string `json:"playlist_id"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	TrackCount int    `json:"track_count"`
	Active     bool   `json:"active"`
}

// ListLibraryResponse lists the library cache.
type ListLibraryResponse struct {
	Playlists []PlaylistInfo `json:"playlists"`
}

// RefreshLibraryResponse reports a library refresh.
type RefreshLibraryResponse struct {
	Added   int    `json:"added"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"` // set when the refresh stopped early
}

// SourceWeight is one entry of a requested mix.
type SourceWeight struct {
	PlaylistID string  `json:"playlist_id"`
	Weight     float64 `json:"weight"`
}

// SetMixRequest replaces the mix. An empty list disables the scheduler.
type SetMixRequest struct {
	Sources []SourceWeight `json:"sources"`
}

// SetMixResponse identifies the session started by a mix change.
type SetMixResponse struct {
	SessionID string `json:"session_id"`
	Sources   int    `json:"sources"`
}

// TickNowResponse reports a tick run on request.
type TickNowResponse struct {
	Outcome   string `json:"outcome"`
	SessionID string `json:"session_id,omitempty"`
	SourceID  string `json:"source_id,omitempty"`
	TrackID   string `json:"track_id,omitempty"`
	Attempts  int    `json:"attempts"`
	Throttles int    `json:"throttles"`
	Error     string `json:"error,omitempty"`
}

func toTickNowResponse(r mixer.Result, err error) *TickNowResponse {
	resp := &TickNowResponse{
		Outcome:   string(r.Outcome),
		SessionID: r.SessionID,
		SourceID:  r.SourceID,
		TrackID:   r.TrackID,
		Attempts:  r.Attempts,
		Throttles: r.Throttles,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}
