package main

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	apiconnect "github.com/osa030/19mix/internal/api/connect"
	"github.com/osa030/19mix/internal/app/notification"
	"github.com/osa030/19mix/internal/infra/spotify"
)

const sliderCells = 10

// slider renders a share between 0 and 1 as a bar of sliderCells cells.
// A partly covered cell is drawn filled.
func slider(share float64) string {
	filled := int(math.Ceil(share * sliderCells))
	filled = max(0, min(sliderCells, filled))
	return strings.Repeat("█", filled) + strings.Repeat("-", sliderCells-filled)
}

// parseSources parses <playlist>=<weight> arguments.
func parseSources(args []string) ([]apiconnect.SourceWeight, error) {
	sources := make([]apiconnect.SourceWeight, 0, len(args))
	for _, arg := range args {
		i := strings.LastIndex(arg, "=")
		if i <= 0 || i == len(arg)-1 {
			return nil, errors.Newf("invalid source %q: expected <playlist>=<weight>", arg)
		}
		weight, err := strconv.ParseFloat(arg[i+1:], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid weight in %q", arg)
		}
		sources = append(sources, apiconnect.SourceWeight{
			PlaylistID: spotify.ExtractPlaylistID(arg[:i]),
			Weight:     weight,
		})
	}
	return sources, nil
}

// printPreview shows the share each source is expected to get.
// Weights are sent as given; the preview is skipped when they sum to zero.
func printPreview(w io.Writer, sources []apiconnect.SourceWeight) {
	var sum float64
	for _, s := range sources {
		sum += s.Weight
	}
	if sum <= 0 {
		return
	}
	fmt.Fprintln(w, "Expected shares:")
	for _, s := range sources {
		share := s.Weight / sum
		fmt.Fprintf(w, "  %s  %s %5.1f%%\n", s.PlaylistID, slider(share), share*100)
	}
}

func printStatus(w io.Writer, s *apiconnect.GetStatusResponse) {
	fmt.Fprintln(w, "\n=== MIX STATUS ===")
	fmt.Fprintf(w, "Session: %s (started %s)\n", s.SessionID, s.StartedAt.Local().Format(time.DateTime))
	state := "disabled"
	if s.Enabled {
		state = "enabled"
	}
	if s.Ticking {
		state += ", ticking"
	}
	fmt.Fprintf(w, "State: %s  Interval: %gs  Played: %d  Library: %d playlists\n",
		state, s.IntervalSec, s.TotalPlayed, s.LibrarySize)
	if s.LastTickAt != nil {
		fmt.Fprintf(w, "Last tick: %s at %s\n", s.LastOutcome, s.LastTickAt.Local().Format(time.TimeOnly))
	}

	if len(s.Sources) == 0 {
		fmt.Fprintln(w, "\nNo sources configured")
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintln(w, "\nSources:      weight       target            actual")
	for _, src := range s.Sources {
		name := src.Name
		if name == "" {
			name = src.PlaylistID
		}
		fmt.Fprintf(w, "  %s  %.2f  %s %5.1f%%  %s %5.1f%%  plays=%d\n    %s\n",
			src.PlaylistID, src.Weight,
			slider(src.TargetShare), src.TargetShare*100,
			slider(src.ActualShare), src.ActualShare*100,
			src.PlayCount, name)
	}
	fmt.Fprintln(w)
}

func printLibrary(w io.Writer, resp *apiconnect.ListLibraryResponse) {
	fmt.Fprintf(w, "\n=== LIBRARY (%d playlists) ===\n", len(resp.Playlists))
	for _, p := range resp.Playlists {
		mark := " "
		if p.Active {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s  %4d tracks  %s\n", mark, p.PlaylistID, p.TrackCount, p.Name)
	}
	fmt.Fprintln(w)
}

func formatEvent(e *notification.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] #%d %s", e.Time.Local().Format(time.TimeOnly), e.SequenceNo, e.Type)
	if e.SourceID != "" {
		fmt.Fprintf(&b, " source=%s", e.SourceID)
	}
	if e.TrackID != "" {
		fmt.Fprintf(&b, " track=%s", e.TrackID)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, " %s", e.Message)
	}
	return b.String()
}
