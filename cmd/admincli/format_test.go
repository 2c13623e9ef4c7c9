package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiconnect "github.com/osa030/19mix/internal/api/connect"
	"github.com/osa030/19mix/internal/app/notification"
)

func TestSlider(t *testing.T) {
	tests := []struct {
		share float64
		want  string
	}{
		{0, "----------"},
		{0.5, "█████-----"},
		{0.26, "███-------"},
		{0.21, "███-------"},
		{0.3 / 0.4, "████████--"},
		{0.75, "████████--"},
		{1, "██████████"},
		{1.4, "██████████"},
		{-0.2, "----------"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slider(tt.share), "share %v", tt.share)
	}
}

func TestParseSources(t *testing.T) {
	sources, err := parseSources([]string{
		"5faTa2QyuNYFBMUD5IqGjL=0.6",
		"https://open.spotify.com/playlist/3mJgvnYuHwzbCaBue4a47r?si=abc=0.4",
		"spotify:playlist:00DG0aSn5EXOvpLhQxGxzc=0",
	})
	require.NoError(t, err)
	assert.Equal(t, []apiconnect.SourceWeight{
		{PlaylistID: "5faTa2QyuNYFBMUD5IqGjL", Weight: 0.6},
		{PlaylistID: "3mJgvnYuHwzbCaBue4a47r", Weight: 0.4},
		{PlaylistID: "00DG0aSn5EXOvpLhQxGxzc", Weight: 0},
	}, sources)

	for _, bad := range []string{"noweight", "=0.5", "id=", "id=heavy"} {
		_, err := parseSources([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestPrintPreview(t *testing.T) {
	var buf bytes.Buffer
	printPreview(&buf, []apiconnect.SourceWeight{{PlaylistID: "a", Weight: 0}, {PlaylistID: "b", Weight: 0}})
	assert.Empty(t, buf.String())

	printPreview(&buf, []apiconnect.SourceWeight{{PlaylistID: "a", Weight: 0.3}, {PlaylistID: "b", Weight: 0.1}})
	out := buf.String()
	assert.Contains(t, out, "a  ████████-- ")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "25.0%")
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, &apiconnect.GetStatusResponse{
		SessionID:   "sess",
		Enabled:     true,
		TotalPlayed: 4,
		IntervalSec: 30,
		Sources: []apiconnect.SourceInfo{
			{PlaylistID: "5faTa2QyuNYFBMUD5IqGjL", Name: "DnB", Weight: 0.5, PlayCount: 2, TargetShare: 0.5, ActualShare: 0.5},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "State: enabled")
	assert.Contains(t, out, "█████-----  50.0%")
	assert.Contains(t, out, "plays=2")
	assert.Contains(t, out, "DnB")

	buf.Reset()
	printStatus(&buf, &apiconnect.GetStatusResponse{SessionID: "sess"})
	assert.Contains(t, buf.String(), "No sources configured")
}

func TestFormatEvent(t *testing.T) {
	line := formatEvent(&notification.Event{
		SequenceNo: 7,
		Type:       notification.EventTrackSubmitted,
		SourceID:   "src",
		TrackID:    "trk",
		Time:       time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
	})
	assert.Contains(t, line, "#7 track_submitted source=src track=trk")
}
