package config

import (
	"fmt"
	"strings"
)

// ValidationError lists every problem found while loading a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return e.Problems[0]
	}
	return "There are invalid configuration values:\n* " + strings.Join(e.Problems, "\n* ")
}

func invalidValue(name, value string, err error) string {
	return fmt.Sprintf("The value '%s' is invalid for the '%s' property: %s", value, Prefix+name, err)
}

func unknownOption(key string) string {
	return fmt.Sprintf("The option '%s' is unknown", key)
}
