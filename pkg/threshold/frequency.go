package threshold

import (
	"math"
	"strconv"
	"time"
)

// Frequency caps how many heap dumps may be created within Window.
type Frequency struct {
	MaxCount int
	Window   time.Duration

	raw string
}

func (f Frequency) String() string {
	if f.raw != "" {
		return f.raw
	}
	return strconv.Itoa(f.MaxCount) + "/" + strconv.FormatInt(f.Window.Milliseconds(), 10) + "ms"
}

// NewFrequency builds a Frequency without going through the grammar.
func NewFrequency(maxCount int, window time.Duration) Frequency {
	return Frequency{MaxCount: maxCount, Window: window}
}

// ParseFrequency parses values like "1/10m" or "3/h".
func ParseFrequency(value string) (Frequency, error) {
	groups := frequencyPattern.match(value)
	if groups == nil {
		return Frequency{}, patternMismatch(frequencyPattern)
	}

	count, err := strconv.Atoi(groups[1])
	if err != nil || count < 1 || count > math.MaxInt32 {
		return Frequency{}, invalidWithCause(err,
			"the value '%s' is not valid for the max amount of heap dumps in a time-frame: must be a positive integer (0 < n <= 2147483647)",
			groups[1])
	}

	timeframe := 1
	if groups[2] != "" {
		timeframe, err = strconv.Atoi(groups[2])
		if err != nil || timeframe < 1 || timeframe > math.MaxInt32 {
			return Frequency{}, invalidWithCause(err,
				"the value '%s' is not valid for the time-frame of heap dumps: must be a positive integer (0 < n <= 2147483647)",
				groups[2])
		}
	}

	unit, err := ParseTimeUnit(groups[3])
	if err != nil {
		return Frequency{}, invalidWithCause(err,
			"the value '%s' is not valid for the time unit of the time-frame of heap dumps: valid values are %s",
			groups[3], timeUnitLiterals())
	}

	return Frequency{
		MaxCount: count,
		Window:   unit.Duration(float64(timeframe)),
		raw:      value,
	}, nil
}

// ParseInterval parses a check interval like "5s" or "500ms".
func ParseInterval(value string) (time.Duration, error) {
	groups := intervalPattern.match(value)
	if groups == nil {
		return 0, patternMismatch(intervalPattern)
	}

	v, err := strconv.ParseFloat(groups[1], 64)
	if err != nil || v < 1 {
		return 0, invalidWithCause(err, "it must be a positive number greater or equal to 1")
	}

	unit, err := ParseTimeUnit(groups[2])
	if err != nil {
		return 0, invalidWithCause(err, "%s", err)
	}

	return unit.Duration(v), nil
}
