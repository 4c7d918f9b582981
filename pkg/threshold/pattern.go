package threshold

import "github.com/coregx/coregex"

// pattern is a compiled grammar rule that has to match the whole input.
type pattern struct {
	source string
	re     *coregex.Regex
}

func mustPattern(source string) *pattern {
	re, err := coregex.Compile("^(?:" + source + ")$")
	if err != nil {
		panic(err)
	}
	return &pattern{source: source, re: re}
}

// match returns the capture groups of value, or nil if value does not match.
func (p *pattern) match(value string) []string {
	return p.re.FindStringSubmatch(value)
}

var (
	percentagePattern = mustPattern(`(\d*\.?\d*\d)%`)
	absolutePattern   = mustPattern(`([<=>]+)(\d*\.?\d*\d)([KMG]?B)`)
	increasePattern   = mustPattern(`\+(\d*\.?\d*\d)%/(\d*\.?\d*\d)?(ms|s|m|h)`)
	frequencyPattern  = mustPattern(`(\d+)/(\d*)(ms|s|m|h)`)
	intervalPattern   = mustPattern(`(\d*\.?\d*\d)(ms|s|m|h)`)
)
