// Package mix provides the weighted source and mix configuration entities.
package mix

import (
	"github.com/cockroachdb/errors"
)

// IDLength is the fixed length of a Spotify base-62 ID.
const IDLength = 22

// Configuration errors.
var (
	ErrInvalidID       = errors.New("invalid source id")
	ErrInvalidWeight   = errors.New("weight must be between 0.0 and 1.0")
	ErrDuplicateSource = errors.New("duplicate source id")
)

// Source is a playlist weighted for scheduling.
type Source struct {
	ID        string  // Spotify Playlist ID
	Weight    float64 // Relative share of future selections (0.0 - 1.0)
	PlayCount int     // Tracks drawn from this source in the current session
}

// NewSource creates a source with a zero play count.
func NewSource(id string, weight float64) (Source, error) {
	if err := ValidateID(id); err != nil {
		return Source{}, err
	}
	// NaN fails both comparisons below, so check it explicitly.
	if weight != weight || weight < 0.0 || weight > 1.0 {
		return Source{}, errors.Wrapf(ErrInvalidWeight, "source %s: weight=%v", id, weight)
	}
	return Source{ID: id, Weight: weight}, nil
}

// Score returns the deficit score of the source for the given session volume.
// The higher the score, the further the source is behind its share.
func (s Source) Score(totalPlayed int) float64 {
	return s.Weight*float64(totalPlayed) - float64(s.PlayCount)
}

// ValidateID checks that id has the shape of a Spotify ID.
func ValidateID(id string) error {
	if len(id) != IDLength {
		return errors.Wrapf(ErrInvalidID, "id %q: expected %d characters, got %d", id, IDLength, len(id))
	}
	for _, r := range id {
		if !isBase62(r) {
			return errors.Wrapf(ErrInvalidID, "id %q: unexpected character %q", id, r)
		}
	}
	return nil
}

func isBase62(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
