package dump

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dateLayout renders times with the letter patterns users know from
// SimpleDateFormat-style tools, e.g. "yyyyMMddHHmmss" or "yyyy-MM-dd'T'HH".
// Supported letters: y M d H h k K m s S a E z Z. Other letters are errors;
// text in single quotes is literal and '' is a quote.
type dateLayout []func(b *strings.Builder, t time.Time)

func parseDateLayout(pattern string) (dateLayout, error) {
	var layout dateLayout
	literal := func(s string) {
		layout = append(layout, func(b *strings.Builder, _ time.Time) { b.WriteString(s) })
	}

	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch {
		case c == '\'':
			if i+1 < len(pattern) && pattern[i+1] == '\'' {
				literal("'")
				i += 2
				continue
			}
			end := strings.IndexByte(pattern[i+1:], '\'')
			if end < 0 {
				return nil, fmt.Errorf("unterminated quote at position %d", i)
			}
			// '' inside quoted text is a quote too
			text := pattern[i+1 : i+1+end]
			i += end + 2
			for i < len(pattern) && pattern[i] == '\'' {
				next := strings.IndexByte(pattern[i+1:], '\'')
				if next < 0 {
					return nil, fmt.Errorf("unterminated quote at position %d", i)
				}
				text += "'" + pattern[i+1:i+1+next]
				i += next + 2
			}
			literal(text)
		case isLetter(c):
			n := 1
			for i+n < len(pattern) && pattern[i+n] == c {
				n++
			}
			field, err := dateField(c, n)
			if err != nil {
				return nil, err
			}
			layout = append(layout, field)
			i += n
		default:
			literal(string(c))
			i++
		}
	}
	return layout, nil
}

func (l dateLayout) format(t time.Time) string {
	var b strings.Builder
	for _, f := range l {
		f(&b, t)
	}
	return b.String()
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func pad(v, width int) string {
	s := strconv.Itoa(v)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

func number(n int, value func(time.Time) int) func(*strings.Builder, time.Time) {
	return func(b *strings.Builder, t time.Time) { b.WriteString(pad(value(t), n)) }
}

func dateField(c byte, n int) (func(*strings.Builder, time.Time), error) {
	switch c {
	case 'y':
		if n == 2 {
			return number(2, func(t time.Time) int { return t.Year() % 100 }), nil
		}
		return number(n, time.Time.Year), nil
	case 'M':
		switch {
		case n >= 4:
			return func(b *strings.Builder, t time.Time) { b.WriteString(t.Month().String()) }, nil
		case n == 3:
			return func(b *strings.Builder, t time.Time) { b.WriteString(t.Month().String()[:3]) }, nil
		default:
			return number(n, func(t time.Time) int { return int(t.Month()) }), nil
		}
	case 'd':
		return number(n, time.Time.Day), nil
	case 'H':
		return number(n, time.Time.Hour), nil
	case 'k':
		return number(n, func(t time.Time) int {
			if t.Hour() == 0 {
				return 24
			}
			return t.Hour()
		}), nil
	case 'K':
		return number(n, func(t time.Time) int { return t.Hour() % 12 }), nil
	case 'h':
		return number(n, func(t time.Time) int {
			if h := t.Hour() % 12; h != 0 {
				return h
			}
			return 12
		}), nil
	case 'm':
		return number(n, time.Time.Minute), nil
	case 's':
		return number(n, time.Time.Second), nil
	case 'S':
		return number(n, func(t time.Time) int { return t.Nanosecond() / int(time.Millisecond) }), nil
	case 'a':
		return func(b *strings.Builder, t time.Time) {
			if t.Hour() < 12 {
				b.WriteString("AM")
			} else {
				b.WriteString("PM")
			}
		}, nil
	case 'E':
		if n >= 4 {
			return func(b *strings.Builder, t time.Time) { b.WriteString(t.Weekday().String()) }, nil
		}
		return func(b *strings.Builder, t time.Time) { b.WriteString(t.Weekday().String()[:3]) }, nil
	case 'z':
		return func(b *strings.Builder, t time.Time) {
			name, _ := t.Zone()
			b.WriteString(name)
		}, nil
	case 'Z':
		return func(b *strings.Builder, t time.Time) { b.WriteString(t.Format("-0700")) }, nil
	}
	return nil, fmt.Errorf("illegal pattern character '%c'", c)
}
