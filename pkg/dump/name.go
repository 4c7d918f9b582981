package dump

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultNamePattern names heap dumps after the host and the local time.
const DefaultNamePattern = "heapdump_%host_name%_%ts:yyyyMMddHHmmss%.hprof"

type configMode int

const (
	configForbidden configMode = iota
	configOptional
	configRequired
)

var tokenModes = map[string]configMode{
	"host_name": configForbidden,
	"uuid":      configForbidden,
	"ts":        configOptional,
	"env":       configRequired,
}

// part renders one piece of a heap dump name.
type part func(f *NameFormatter, at time.Time) string

// NameFormatter renders heap dump file names from a pattern with tokens:
//
//	%host_name%     the host name
//	%ts%            the epoch milliseconds of the dump
//	%ts:<layout>%   the local time of the dump, e.g. %ts:yyyyMMddHHmmss%
//	%uuid%          a random UUID
//	%env:<NAME>%    the value of an environment variable, empty if unset
//
// "%%" is a literal '%'.
type NameFormatter struct {
	parts    []part
	hostName string

	// UUID generates the value of %uuid%.
	UUID func() string
}

// NewNameFormatter validates pattern. An empty host name is looked up.
func NewNameFormatter(pattern, hostName string) (*NameFormatter, error) {
	parts, err := compileName(pattern)
	if err != nil {
		return nil, err
	}
	if hostName == "" {
		if hostName, err = os.Hostname(); err != nil {
			return nil, fmt.Errorf("cannot look up the host name: %w", err)
		}
	}
	return &NameFormatter{parts: parts, hostName: hostName, UUID: uuid.NewString}, nil
}

// ValidateNamePattern reports the first problem of pattern.
func ValidateNamePattern(pattern string) error {
	_, err := compileName(pattern)
	return err
}

// Format renders the name of a dump taken at at.
func (f *NameFormatter) Format(at time.Time) string {
	var b strings.Builder
	for _, p := range f.parts {
		b.WriteString(p(f, at))
	}
	return b.String()
}

func compileName(pattern string) ([]part, error) {
	if pattern == "" {
		return nil, errors.New("the pattern cannot be empty")
	}
	if strings.TrimSpace(pattern) == "" {
		return nil, errors.New("the pattern cannot be blank")
	}

	var parts []part
	index := 0
	for _, raw := range splitName(pattern) {
		unescaped := strings.ReplaceAll(raw, "%%", "%")

		if raw[0] != '%' || strings.HasPrefix(raw, "%%") {
			parts = append(parts, func(*NameFormatter, time.Time) string { return unescaped })
			index += len(raw)
			continue
		}

		last := len(raw) - 1
		if last == 0 || raw[last] != '%' || !closedToken(raw) {
			return nil, fmt.Errorf("the token starter character '%%' at position %d does not have a matching token closer '%%' character", index)
		}

		p, err := compileToken(unescaped)
		if err != nil {
			var missing errMissingName
			switch {
			case errors.As(err, &missing):
				return nil, fmt.Errorf("the name is missing from the token '%s' (position %d to %d)", raw, index, index+last)
			case errors.Is(err, errUnknownToken):
				return nil, fmt.Errorf("the token '%s' (position %d to %d) is unknown", raw, index, index+last)
			default:
				return nil, fmt.Errorf("the token '%s' (position %d to %d) has invalid configuration: %s", raw, index, index+last, err)
			}
		}
		parts = append(parts, p)
		index += len(raw)
	}
	return parts, nil
}

// closedToken reports whether raw is '%', escaped or plain characters, '%'.
func closedToken(raw string) bool {
	inner := raw[1 : len(raw)-1]
	for i := 0; i < len(inner); i++ {
		if inner[i] == '%' {
			if i+1 >= len(inner) || inner[i+1] != '%' {
				return false
			}
			i++
		}
	}
	return true
}

// splitName breaks pattern into literal runs and tokens. A literal run is made
// of plain characters and "%%" pairs; a token starts with a single '%' and
// ends at the next '%' that is not part of a "%%" pair, or at the end of the
// pattern when it is not closed.
func splitName(pattern string) []string {
	var parts []string
	n := len(pattern)
	for i := 0; i < n; {
		j := i
		if pattern[i] != '%' || (i+1 < n && pattern[i+1] == '%') {
			for j < n {
				if pattern[j] != '%' {
					j++
				} else if j+1 < n && pattern[j+1] == '%' {
					j += 2
				} else {
					break
				}
			}
		} else {
			j = i + 1
			for j < n {
				if pattern[j] != '%' {
					j++
					continue
				}
				if j+1 < n && pattern[j+1] == '%' {
					j += 2
					continue
				}
				j++ // closer
				break
			}
		}
		parts = append(parts, pattern[i:j])
		i = j
	}
	return parts
}

type errMissingName struct{}

func (errMissingName) Error() string { return "missing token name" }

var errUnknownToken = errors.New("unknown token")

func compileToken(token string) (part, error) {
	// token is "%name%" or "%name:config%"; the config may contain ':'
	name, config, _ := strings.Cut(token[1:len(token)-1], ":")
	if name == "" {
		return nil, errMissingName{}
	}

	mode, ok := tokenModes[name]
	if !ok {
		return nil, errUnknownToken
	}
	switch {
	case mode == configRequired && config == "":
		return nil, errors.New("it requires configuration, but none is provided")
	case mode == configForbidden && config != "":
		return nil, fmt.Errorf("it does not support configuration values provided after the ':' character, but '%s' is provided", config)
	}

	switch name {
	case "host_name":
		return func(f *NameFormatter, _ time.Time) string { return f.hostName }, nil
	case "uuid":
		return func(f *NameFormatter, _ time.Time) string { return f.UUID() }, nil
	case "env":
		value := os.Getenv(config)
		return func(*NameFormatter, time.Time) string { return value }, nil
	default: // ts
		if strings.TrimSpace(config) == "" {
			return func(_ *NameFormatter, at time.Time) string {
				return strconv.FormatInt(at.UnixMilli(), 10)
			}, nil
		}
		layout, err := parseDateLayout(config)
		if err != nil {
			return nil, fmt.Errorf("the date formatting pattern '%s' is invalid: %w", config, err)
		}
		return func(_ *NameFormatter, at time.Time) string { return layout.format(at.Local()) }, nil
	}
}
