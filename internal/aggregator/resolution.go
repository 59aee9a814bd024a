package aggregator

import (
	"fmt"
	"time"
)

// Resolution is a candle interval. Only intervals that divide a day
// evenly are supported so bucket boundaries land on the same wall-clock
// marks every day.
type Resolution time.Duration

const (
	Minute   = Resolution(time.Minute)
	Minute5  = Resolution(5 * time.Minute)
	Minute15 = Resolution(15 * time.Minute)
	Minute30 = Resolution(30 * time.Minute)
	Hour     = Resolution(time.Hour)
	Hour4    = Resolution(4 * time.Hour)
	Day      = Resolution(24 * time.Hour)
)

// resolutionNames maps Capital.com API resolution names to intervals.
var resolutionNames = map[string]Resolution{
	"MINUTE":    Minute,
	"MINUTE_5":  Minute5,
	"MINUTE_15": Minute15,
	"MINUTE_30": Minute30,
	"HOUR":      Hour,
	"HOUR_4":    Hour4,
	"DAY":       Day,
}

// ParseResolution parses a Capital.com resolution name such as "MINUTE_15".
func ParseResolution(name string) (Resolution, error) {
	r, ok := resolutionNames[name]
	if !ok {
		return 0, fmt.Errorf("unsupported resolution %q", name)
	}
	return r, nil
}

// Duration returns the interval as a time.Duration.
func (r Resolution) Duration() time.Duration {
	return time.Duration(r)
}

// Name returns the Capital.com API name for the resolution.
func (r Resolution) Name() string {
	for name, res := range resolutionNames {
		if res == r {
			return name
		}
	}
	return fmt.Sprintf("UNKNOWN(%s)", time.Duration(r))
}

// String returns a short form like "m15" or "h4", used in file names and
// log output.
func (r Resolution) String() string {
	switch r {
	case Minute:
		return "m1"
	case Minute5:
		return "m5"
	case Minute15:
		return "m15"
	case Minute30:
		return "m30"
	case Hour:
		return "h1"
	case Hour4:
		return "h4"
	case Day:
		return "d1"
	}
	return time.Duration(r).String()
}

// Truncate floors t to the start of its bucket, in UTC.
func (r Resolution) Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Duration(r))
}
