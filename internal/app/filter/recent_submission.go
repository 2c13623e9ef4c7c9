package filter

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
)

// RecentSubmissionName is the config name of RecentSubmissionFilter.
const RecentSubmissionName = "recent_submission_filter"

// RecentSubmissionConfig represents the configuration for RecentSubmissionFilter.
type RecentSubmissionConfig struct {
	Size   int `yaml:"size" mapstructure:"size" default:"100" validate:"gte=1,lte=10000"`
	TTLSec int `yaml:"ttl_sec" mapstructure:"ttl_sec" default:"60" validate:"gte=1"`
}

// RecentSubmissionFilter rejects tracks submitted within the last TTLSec seconds.
// The remote queue is eventually consistent: a track submitted a moment ago
// may not yet be visible in the next queue read.
type RecentSubmissionFilter struct {
	config *RecentSubmissionConfig
	recent *expirable.LRU[string, string]
}

// NewRecentSubmissionFilter creates a new recent submission filter.
// It accepts everything until ValidateConfig has been called.
func NewRecentSubmissionFilter() *RecentSubmissionFilter {
	return &RecentSubmissionFilter{}
}

func (f *RecentSubmissionFilter) Name() string {
	return RecentSubmissionName
}

func (f *RecentSubmissionFilter) Description() string {
	return "Rejects tracks submitted recently that the queue may not show yet"
}

func (f *RecentSubmissionFilter) ReturnCodes() []string {
	return []string{"recently_submitted"}
}

func (f *RecentSubmissionFilter) ValidateConfig(settings map[string]any) error {
	var config RecentSubmissionConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &config,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}

	f.config = &config
	f.recent = expirable.NewLRU[string, string](config.Size, nil, time.Duration(config.TTLSec)*time.Second)
	zlog.Info().Msgf("recent submission filter config: %+v", config)
	return nil
}

func (f *RecentSubmissionFilter) Check(ctx context.Context, c Candidate, q Queue) Result {
	if f.recent == nil {
		return Accept()
	}
	if f.recent.Contains(c.TrackID) {
		return Reject("recently_submitted")
	}
	return Accept()
}

// Record remembers a submitted track.
func (f *RecentSubmissionFilter) Record(c Candidate) {
	if f.recent == nil {
		return
	}
	f.recent.Add(c.TrackID, c.SourceID)
}

func init() {
	Register(RecentSubmissionName, func() Filter { return NewRecentSubmissionFilter() })
}
