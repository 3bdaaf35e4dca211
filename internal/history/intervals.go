package history

import (
	"errors"
	"fmt"
)

// DefaultInterval applies when callers omit the interval parameter.
const DefaultInterval = "1d"

// ErrInvalidInterval rejects interval values outside the export's ladder.
// The API maps it to 400.
var ErrInvalidInterval = errors.New("unknown history interval")

// intervalCodes maps caller intervals to the export's INTERVALL parameter.
// Daily (16) is confirmed against the live endpoint; the other codes follow
// the same power-of-two ladder.
var intervalCodes = map[string]string{
	"5m":  "1",
	"15m": "2",
	"30m": "4",
	"1h":  "8",
	"1d":  "16",
	"1w":  "32",
	"1M":  "64",
}

var intradayIntervals = map[string]bool{
	"5m":  true,
	"15m": true,
	"30m": true,
	"1h":  true,
}

// IntervalCode resolves a caller interval to its INTERVALL code.
func IntervalCode(interval string) (string, error) {
	code, ok := intervalCodes[interval]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidInterval, interval)
	}
	return code, nil
}

// IsIntraday reports whether the interval is finer than a day. Intraday
// exports only reach back a couple of weeks, so range handling treats them
// specially.
func IsIntraday(interval string) bool {
	return intradayIntervals[interval]
}
