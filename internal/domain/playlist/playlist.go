// Package playlist provides the Playlist domain entity.
package playlist

// Playlist represents a cached Spotify playlist and its track membership.
type Playlist struct {
	ID       string   // Spotify Playlist ID
	Name     string   // Playlist name (display only)
	TrackIDs []string // Track IDs in playlist order, without duplicates
}

// New creates a playlist, dropping empty and repeated track IDs.
// The first occurrence of a track keeps its position.
func New(id, name string, trackIDs []string) Playlist {
	seen := make(map[string]struct{}, len(trackIDs))
	unique := make([]string, 0, len(trackIDs))
	for _, t := range trackIDs {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		unique = append(unique, t)
	}
	return Playlist{ID: id, Name: name, TrackIDs: unique}
}

// TrackCount returns the number of distinct tracks.
func (p *Playlist) TrackCount() int {
	return len(p.TrackIDs)
}

// IsEmpty reports whether the playlist has no usable tracks.
func (p *Playlist) IsEmpty() bool {
	return len(p.TrackIDs) == 0
}

// Contains checks if the track is a member of the playlist.
func (p *Playlist) Contains(trackID string) bool {
	for _, id := range p.TrackIDs {
		if id == trackID {
			return true
		}
	}
	return false
}

// URL returns the Spotify URL of the playlist.
func (p *Playlist) URL() string {
	return "https://open.spotify.com/playlist/" + p.ID
}
