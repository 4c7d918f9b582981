package threshold

import "fmt"

// InvalidPropertyValueError reports a configuration value that does not
// follow its grammar or is out of range.
type InvalidPropertyValueError struct {
	Reason string
	Err    error
}

func (e *InvalidPropertyValueError) Error() string {
	return e.Reason
}

func (e *InvalidPropertyValueError) Unwrap() error {
	return e.Err
}

func invalid(format string, args ...any) *InvalidPropertyValueError {
	return &InvalidPropertyValueError{Reason: fmt.Sprintf(format, args...)}
}

func invalidWithCause(err error, format string, args ...any) *InvalidPropertyValueError {
	return &InvalidPropertyValueError{Reason: fmt.Sprintf(format, args...), Err: err}
}

func patternMismatch(p *pattern) *InvalidPropertyValueError {
	return invalid("it must follow the pattern '%s'", p.source)
}
