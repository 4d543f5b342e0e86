package snapshot

import (
	"fmt"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

const (
	defaultWindowHours   = 24
	defaultTrendDays     = 7
	defaultMetadataLimit = 250

	maxWindowHours = 24 * 30
	maxTrendDays   = 90
)

// Options are the build parameters of one snapshot.
type Options struct {
	Sport         domain.Sport
	WindowHours   int
	TrendDays     int
	MaxTokens     int
	MetadataLimit int
}

// normalize fills unset fields from defaults, then from the built-in
// defaults, and clamps them to supported ranges. A negative MetadataLimit
// disables network metadata fetches. normalize is idempotent.
func (o Options) normalize(defaults Options) Options {
	if o.WindowHours <= 0 {
		o.WindowHours = defaults.WindowHours
	}
	if o.WindowHours <= 0 {
		o.WindowHours = defaultWindowHours
	}
	o.WindowHours = min(o.WindowHours, maxWindowHours)

	if o.TrendDays <= 0 {
		o.TrendDays = defaults.TrendDays
	}
	if o.TrendDays <= 0 {
		o.TrendDays = defaultTrendDays
	}
	o.TrendDays = min(o.TrendDays, maxTrendDays)

	if o.MaxTokens <= 0 {
		o.MaxTokens = max(defaults.MaxTokens, 0)
	}

	if o.MetadataLimit == 0 {
		o.MetadataLimit = defaults.MetadataLimit
	}
	if o.MetadataLimit == 0 {
		o.MetadataLimit = defaultMetadataLimit
	}
	return o
}

func (o Options) cacheKey() string {
	return fmt.Sprintf("snapshot:%s:w%d:t%d:m%d:l%d", o.Sport, o.WindowHours, o.TrendDays, o.MaxTokens, o.MetadataLimit)
}
