package generate

import (
	"github.com/go-playground/validator/v10"

	"fable/pkg/assemble"
	"fable/pkg/summary"
)

// Config is the tunable surface of the context-management core. Thresholds
// that were once magic constants are exposed here with the same defaults.
type Config struct {
	SuperSummaryInterval int     `validate:"gte=1,lte=50"`
	SlidingWindowSize    int     `validate:"gte=1,lte=20"`
	MaxContextChars      int     `validate:"gte=1000"`
	EmptyRatioLimit      float64 `validate:"gt=0,lte=1"`
	MinContextLength     int     `validate:"gte=1"`
	MaxDnaChars          int     `validate:"gte=1000"`
}

func DefaultConfig() Config {
	return Config{
		SuperSummaryInterval: summary.DefaultSuperSummaryInterval,
		SlidingWindowSize:    summary.DefaultSlidingWindowSize,
		MaxContextChars:      summary.DefaultMaxContextChars,
		EmptyRatioLimit:      0.6,
		MinContextLength:     200,
		MaxDnaChars:          8000,
	}
}

var validate = validator.New()

func (c Config) Validate() error {
	return validate.Struct(c)
}

func (c Config) assemblerConfig() assemble.Config {
	return assemble.Config{
		EmptyRatioLimit:  c.EmptyRatioLimit,
		MinContextLength: c.MinContextLength,
		MaxDnaChars:      c.MaxDnaChars,
	}
}
