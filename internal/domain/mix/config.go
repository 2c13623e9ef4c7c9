package mix

import (
	"github.com/cockroachdb/errors"
)

// Config is an immutable, ordered set of sources.
// Iteration order is insertion order.
type Config struct {
	sources []Source
	index   map[string]int
}

// NewConfig builds a mix configuration from the given sources.
// Play counts are reset to zero.
func NewConfig(sources []Source) (*Config, error) {
	c := &Config{
		sources: make([]Source, 0, len(sources)),
		index:   make(map[string]int, len(sources)),
	}
	for _, s := range sources {
		// Re-validate: Source is a plain struct and may be built without NewSource.
		checked, err := NewSource(s.ID, s.Weight)
		if err != nil {
			return nil, err
		}
		if _, exists := c.index[s.ID]; exists {
			return nil, errors.Wrapf(ErrDuplicateSource, "source %s", s.ID)
		}
		c.index[s.ID] = len(c.sources)
		c.sources = append(c.sources, checked)
	}
	return c, nil
}

// Empty reports whether the configuration has no sources.
// A nil configuration is empty.
func (c *Config) Empty() bool {
	return c == nil || len(c.sources) == 0
}

// Len returns the number of sources.
func (c *Config) Len() int {
	if c == nil {
		return 0
	}
	return len(c.sources)
}

// Sources returns a copy of the sources in order.
func (c *Config) Sources() []Source {
	if c == nil {
		return nil
	}
	result := make([]Source, len(c.sources))
	copy(result, c.sources)
	return result
}

// Has reports whether the configuration contains the source.
func (c *Config) Has(id string) bool {
	if c == nil {
		return false
	}
	_, ok := c.index[id]
	return ok
}

// Without returns the sources except the one with the given id.
func (c *Config) Without(id string) []Source {
	result := make([]Source, 0, c.Len())
	for _, s := range c.Sources() {
		if s.ID != id {
			result = append(result, s)
		}
	}
	return result
}

// TotalWeight returns the sum of all weights.
func (c *Config) TotalWeight() float64 {
	var total float64
	for _, s := range c.Sources() {
		total += s.Weight
	}
	return total
}
