package threshold

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Comparison is the operator of an absolute threshold.
type Comparison int

const (
	SmallerThan Comparison = iota
	SmallerThanOrEqualTo
	EqualTo
	LargerThan
	LargerThanOrEqualTo
)

var comparisons = []struct {
	literal string
	human   string
	apply   func(actual, target float64) bool
}{
	SmallerThan:          {"<", "smaller than", func(a, t float64) bool { return a < t }},
	SmallerThanOrEqualTo: {"<=", "smaller than or equal to", func(a, t float64) bool { return a <= t }},
	EqualTo:              {"==", "equal to", func(a, t float64) bool { return a == t }},
	LargerThan:           {">", "larger than", func(a, t float64) bool { return a > t }},
	LargerThanOrEqualTo:  {">=", "larger than or equal to", func(a, t float64) bool { return a >= t }},
}

// ParseComparison maps an operator literal onto its Comparison.
func ParseComparison(literal string) (Comparison, error) {
	trimmed := strings.TrimSpace(literal)
	for i, c := range comparisons {
		if c.literal == trimmed {
			return Comparison(i), nil
		}
	}

	valid := make([]string, len(comparisons))
	for i, c := range comparisons {
		valid[i] = c.literal
	}
	return 0, fmt.Errorf("comparison operator '%s' is not recognized; valid values are: %s",
		literal, strings.Join(valid, ", "))
}

// Apply reports whether actual stands in this relation to target.
func (c Comparison) Apply(actual, target float64) bool {
	return comparisons[c].apply(actual, target)
}

// Human returns the operator in words, e.g. "larger than".
func (c Comparison) Human() string {
	return comparisons[c].human
}

func (c Comparison) String() string {
	return comparisons[c].literal
}

// SizeUnit is the memory size unit of an absolute threshold.
type SizeUnit int

const (
	Byte SizeUnit = iota
	Kilobyte
	Megabyte
	Gigabyte
)

var sizeUnits = []struct {
	literal    string
	multiplier float64
}{
	Byte:     {"B", 1},
	Kilobyte: {"KB", 1024},
	Megabyte: {"MB", 1024 * 1024},
	Gigabyte: {"GB", 1024 * 1024 * 1024},
}

// ParseSizeUnit maps B, KB, MB or GB onto its SizeUnit.
func ParseSizeUnit(literal string) (SizeUnit, error) {
	trimmed := strings.TrimSpace(literal)
	for i, u := range sizeUnits {
		if u.literal == trimmed {
			return SizeUnit(i), nil
		}
	}
	return 0, fmt.Errorf("memory size unit '%s' is not recognized; valid values are: B, KB, MB, GB", literal)
}

// ToBytes converts a value expressed in this unit to bytes.
func (u SizeUnit) ToBytes(v float64) float64 {
	return v * sizeUnits[u].multiplier
}

// FromBytes converts bytes to a value expressed in this unit.
func (u SizeUnit) FromBytes(b float64) float64 {
	return b / sizeUnits[u].multiplier
}

func (u SizeUnit) String() string {
	return sizeUnits[u].literal
}

// TimeUnit is the unit of time-frames and intervals.
type TimeUnit int

const (
	Millisecond TimeUnit = iota
	Second
	Minute
	Hour
)

var timeUnits = []struct {
	literal string
	millis  int64
}{
	Millisecond: {"ms", 1},
	Second:      {"s", 1000},
	Minute:      {"m", 60 * 1000},
	Hour:        {"h", 60 * 60 * 1000},
}

// ParseTimeUnit maps ms, s, m or h onto its TimeUnit.
func ParseTimeUnit(literal string) (TimeUnit, error) {
	for i, u := range timeUnits {
		if u.literal == literal {
			return TimeUnit(i), nil
		}
	}
	return 0, fmt.Errorf("the interval time unit '%s' is unknown; valid values are: %s",
		literal, timeUnitLiterals())
}

func timeUnitLiterals() string {
	valid := make([]string, len(timeUnits))
	for i, u := range timeUnits {
		valid[i] = u.literal
	}
	return strings.Join(valid, ", ")
}

// ToMillis converts v units to whole milliseconds, rounding down.
func (u TimeUnit) ToMillis(v float64) int64 {
	return int64(math.Floor(v * float64(timeUnits[u].millis)))
}

// FromMillis converts milliseconds to this unit, rounded to two decimals.
func (u TimeUnit) FromMillis(ms int64) float64 {
	return math.Round(float64(ms)*100/float64(timeUnits[u].millis)) / 100
}

// Duration converts v units to a time.Duration with millisecond precision.
func (u TimeUnit) Duration(v float64) time.Duration {
	return time.Duration(u.ToMillis(v)) * time.Millisecond
}

func (u TimeUnit) String() string {
	return timeUnits[u].literal
}
