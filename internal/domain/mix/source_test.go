package mix

import (
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dnbID        = "5faTa2QyuNYFBMUD5IqGjL"
	electronicID = "3mJgvnYuHwzbCaBue4a47r"
	houseID      = "00DG0aSn5EXOvpLhQxGxzc"
)

func TestNewSource(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		weight  float64
		wantErr error
	}{
		{name: "valid", id: dnbID, weight: 0.6},
		{name: "zero weight", id: dnbID, weight: 0.0},
		{name: "full weight", id: dnbID, weight: 1.0},
		{name: "weight above range", id: dnbID, weight: 1.5, wantErr: ErrInvalidWeight},
		{name: "negative weight", id: dnbID, weight: -0.1, wantErr: ErrInvalidWeight},
		{name: "NaN weight", id: dnbID, weight: math.NaN(), wantErr: ErrInvalidWeight},
		{name: "empty id", id: "", weight: 0.5, wantErr: ErrInvalidID},
		{name: "short id", id: "abc", weight: 0.5, wantErr: ErrInvalidID},
		{name: "non base62 id", id: "5faTa2QyuNYFBMUD5IqG-L", weight: 0.5, wantErr: ErrInvalidID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSource(tt.id, tt.weight)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, s.ID)
			assert.Equal(t, tt.weight, s.Weight)
			assert.Zero(t, s.PlayCount)
		})
	}
}

func TestSource_Score(t *testing.T) {
	a := Source{ID: dnbID, Weight: 0.6, PlayCount: 3}
	b := Source{ID: electronicID, Weight: 0.3, PlayCount: 1}

	assert.InDelta(t, -0.6, a.Score(4), 1e-9)
	assert.InDelta(t, 0.2, b.Score(4), 1e-9)
	assert.Greater(t, b.Score(4), a.Score(4))
}

func TestNewConfig(t *testing.T) {
	t.Run("keeps order and resets play counts", func(t *testing.T) {
		cfg, err := NewConfig([]Source{
			{ID: dnbID, Weight: 0.6, PlayCount: 7},
			{ID: electronicID, Weight: 0.3},
			{ID: houseID, Weight: 0.1},
		})
		require.NoError(t, err)

		sources := cfg.Sources()
		require.Len(t, sources, 3)
		assert.Equal(t, []string{dnbID, electronicID, houseID}, []string{sources[0].ID, sources[1].ID, sources[2].ID})
		for _, s := range sources {
			assert.Zero(t, s.PlayCount)
		}
		assert.InDelta(t, 1.0, cfg.TotalWeight(), 1e-9)
		assert.True(t, cfg.Has(houseID))
		assert.False(t, cfg.Empty())
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		_, err := NewConfig([]Source{
			{ID: dnbID, Weight: 0.6},
			{ID: dnbID, Weight: 0.3},
		})
		assert.True(t, errors.Is(err, ErrDuplicateSource))
	})

	t.Run("rejects invalid sources", func(t *testing.T) {
		_, err := NewConfig([]Source{{ID: dnbID, Weight: 2}})
		assert.True(t, errors.Is(err, ErrInvalidWeight))
	})

	t.Run("empty", func(t *testing.T) {
		cfg, err := NewConfig(nil)
		require.NoError(t, err)
		assert.True(t, cfg.Empty())

		var nilCfg *Config
		assert.True(t, nilCfg.Empty())
		assert.Zero(t, nilCfg.Len())
	})

	t.Run("without", func(t *testing.T) {
		cfg, err := NewConfig([]Source{
			{ID: dnbID, Weight: 0.6},
			{ID: electronicID, Weight: 0.3},
		})
		require.NoError(t, err)

		rest := cfg.Without(dnbID)
		require.Len(t, rest, 1)
		assert.Equal(t, electronicID, rest[0].ID)
	})
}
