// Package threshold parses the human-written memory usage thresholds and
// execution frequencies of the memory assistant configuration.
//
// Thresholds come in three kinds, selected by the first character of the
// configured value:
//
//	80%           percentage of the pool maximum (digit)
//	>400MB        absolute usage compared with an operator (<, =, >)
//	+20%/5m       usage increase over a time-frame (+)
//
// An empty value disables the pool.
package threshold

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind tells the threshold variants apart.
type Kind int

const (
	KindDisabled Kind = iota
	KindAbsolute
	KindPercentage
	KindIncreaseOverTimeframe
)

var kindNames = []string{
	KindDisabled:              "disabled",
	KindAbsolute:              "absolute",
	KindPercentage:            "percentage",
	KindIncreaseOverTimeframe: "increase-over-timeframe",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Spec is a parsed threshold. It is one of Disabled, Absolute, Percentage or
// IncreaseOverTimeframe.
type Spec interface {
	Kind() Kind
	String() string

	isSpec()
}

// Disabled is the threshold of a pool that is not monitored.
type Disabled struct{}

func (Disabled) Kind() Kind     { return KindDisabled }
func (Disabled) String() string { return "disabled" }
func (Disabled) isSpec()        {}

// Absolute is violated when the used bytes of a pool compare to TargetBytes
// with Comparison.
type Absolute struct {
	Comparison  Comparison
	TargetBytes float64
	Unit        SizeUnit
}

func (Absolute) Kind() Kind { return KindAbsolute }
func (Absolute) isSpec()    {}

func (a Absolute) String() string {
	return a.Comparison.String() + FormatDecimal(a.Unit.FromBytes(a.TargetBytes)) + a.Unit.String()
}

// Percentage is violated when the usage ratio of a pool is above Percent.
type Percentage struct {
	Percent float64
}

func (Percentage) Kind() Kind { return KindPercentage }
func (Percentage) isSpec()    {}

func (p Percentage) String() string {
	return FormatDecimal(p.Percent) + "%"
}

// IncreaseOverTimeframe is violated when the usage ratio of a pool grows by
// at least DeltaPercent within Timeframe units.
type IncreaseOverTimeframe struct {
	DeltaPercent float64
	Timeframe    float64
	Unit         TimeUnit
}

func (IncreaseOverTimeframe) Kind() Kind { return KindIncreaseOverTimeframe }
func (IncreaseOverTimeframe) isSpec()    {}

// TimeframeMillis is the time-frame in whole milliseconds.
func (i IncreaseOverTimeframe) TimeframeMillis() int64 {
	return i.Unit.ToMillis(i.Timeframe)
}

// TimeframeDuration is the time-frame as a time.Duration.
func (i IncreaseOverTimeframe) TimeframeDuration() time.Duration {
	return time.Duration(i.TimeframeMillis()) * time.Millisecond
}

func (i IncreaseOverTimeframe) String() string {
	return "+" + FormatDecimal(i.DeltaPercent) + "%/" + FormatDecimal(i.Timeframe) + i.Unit.String()
}

// Parse turns a raw threshold value into its Spec. Errors are
// *InvalidPropertyValueError values.
func Parse(value string) (Spec, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Disabled{}, nil
	}

	var (
		kind Kind
		spec Spec
		err  error
	)
	switch c := trimmed[0]; {
	case c >= '0' && c <= '9':
		kind = KindPercentage
		spec, err = ParsePercentage(trimmed)
	case c == '<' || c == '=' || c == '>':
		kind = KindAbsolute
		spec, err = ParseAbsolute(trimmed)
	default:
		kind = KindIncreaseOverTimeframe
		spec, err = ParseIncreaseOverTimeframe(trimmed)
	}
	if err != nil {
		var ipv *InvalidPropertyValueError
		if errors.As(err, &ipv) {
			return nil, invalidWithCause(ipv.Err, "cannot parse the value '%s' as %s threshold: %s", value, kind, ipv.Reason)
		}
		return nil, err
	}
	return spec, nil
}

// ParsePercentage parses values like "80%" or "42.42%".
func ParsePercentage(value string) (Percentage, error) {
	groups := percentagePattern.match(value)
	if groups == nil {
		return Percentage{}, patternMismatch(percentagePattern)
	}

	digits := groups[1]
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return Percentage{}, invalidWithCause(err, "cannot be parsed")
	}
	if v < 0 || v > 100 {
		return Percentage{}, invalid("usage threshold must be between 0 and 100")
	}
	if decimals(digits) > 2 {
		return Percentage{}, invalid("usage thresholds can be specified only to the second decimal precision (e.g., 42.42)")
	}

	return Percentage{Percent: v}, nil
}

// ParseAbsolute parses values like ">400MB" or "<=1.5GB".
func ParseAbsolute(value string) (Absolute, error) {
	groups := absolutePattern.match(value)
	if groups == nil {
		return Absolute{}, patternMismatch(absolutePattern)
	}

	comparison, err := ParseComparison(groups[1])
	if err != nil {
		return Absolute{}, invalidWithCause(err, "cannot be parsed: %s", err)
	}

	v, err := strconv.ParseFloat(groups[2], 64)
	if err != nil {
		return Absolute{}, invalidWithCause(err, "cannot be parsed: %s", err)
	}

	unit, err := ParseSizeUnit(groups[3])
	if err != nil {
		return Absolute{}, invalidWithCause(err, "cannot be parsed: %s", err)
	}

	return Absolute{Comparison: comparison, TargetBytes: unit.ToBytes(v), Unit: unit}, nil
}

// ParseIncreaseOverTimeframe parses values like "+20%/5m" or "+5%/h".
func ParseIncreaseOverTimeframe(value string) (IncreaseOverTimeframe, error) {
	groups := increasePattern.match(value)
	if groups == nil {
		return IncreaseOverTimeframe{}, patternMismatch(increasePattern)
	}

	delta, err := strconv.ParseFloat(groups[1], 64)
	if err != nil || delta <= 0 {
		return IncreaseOverTimeframe{}, invalidWithCause(err,
			"the value '%s' is not valid for the increase on memory usage in the time-frame: must be a positive number",
			groups[1])
	}

	timeframe := 1.0
	if groups[2] != "" {
		timeframe, err = strconv.ParseFloat(groups[2], 64)
		if err != nil || timeframe < 1 {
			return IncreaseOverTimeframe{}, invalidWithCause(err,
				"the value '%s' is not valid for the time-frame of memory usage increase threshold: must be a number greater or equal to 1",
				groups[2])
		}
	}

	unit, err := ParseTimeUnit(groups[3])
	if err != nil {
		return IncreaseOverTimeframe{}, invalidWithCause(err,
			"the value '%s' is not valid for the time unit of the time-frame of memory usage increase threshold: valid values are %s",
			groups[3], timeUnitLiterals())
	}

	return IncreaseOverTimeframe{DeltaPercent: delta, Timeframe: timeframe, Unit: unit}, nil
}

func decimals(digits string) int {
	i := strings.IndexByte(digits, '.')
	if i < 0 {
		return 0
	}
	return len(digits) - i - 1
}

// FormatDecimal renders v with at most two decimals and no trailing zeros.
func FormatDecimal(v float64) string {
	return strconv.FormatFloat(roundTwo(v), 'f', -1, 64)
}

// FormatElapsed renders v with at most two decimals but at least one, so
// three seconds read "3.0".
func FormatElapsed(v float64) string {
	s := FormatDecimal(v)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func roundTwo(v float64) float64 {
	return math.Round(v*100) / 100
}
