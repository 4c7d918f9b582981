package dump

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatName(t *testing.T) {
	t.Setenv("MEMASSIST_TEST_SERVICE", "checkout")
	at := time.Date(2024, 3, 7, 15, 4, 5, 123*int(time.Millisecond), time.Local)

	tests := []struct {
		pattern  string
		expected string
	}{
		{DefaultNamePattern, "heapdump_box_20240307150405.hprof"},
		{"%ts%.pprof", strconv.FormatInt(at.UnixMilli(), 10) + ".pprof"},
		{"dump-%uuid%", "dump-0000-1111"},
		{"%env:MEMASSIST_TEST_SERVICE%_%host_name%", "checkout_box"},
		{"%env:MEMASSIST_TEST_UNSET%x", "x"},
		{"100%%_%host_name%", "100%_box"},
		{"%ts:yyyy-MM-dd'T'HH.mm.ss.SSS%", "2024-03-07T15.04.05.123"},
		{"%ts:yy MMM d h a E%", "24 Mar 7 3 PM Thu"},
		{"%ts:'o''clock' h%", "o'clock 3"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			f, err := NewNameFormatter(tt.pattern, "box")
			require.NoError(t, err)
			f.UUID = func() string { return "0000-1111" }
			assert.Equal(t, tt.expected, f.Format(at))
		})
	}
}

func TestValidateNamePattern(t *testing.T) {
	tests := []struct {
		pattern string
		err     string
	}{
		{"", "the pattern cannot be empty"},
		{"   ", "the pattern cannot be blank"},
		{"abc%ts", "the token starter character '%' at position 3 does not have a matching token closer '%' character"},
		{"a%", "the token starter character '%' at position 1 does not have a matching token closer '%' character"},
		{"ab%foo%", "the token '%foo%' (position 2 to 6) is unknown"},
		{"%:x%", "the name is missing from the token '%:x%' (position 0 to 3)"},
		{"%env%", "the token '%env%' (position 0 to 4) has invalid configuration: it requires configuration, but none is provided"},
		{"%uuid:x%", "the token '%uuid:x%' (position 0 to 7) has invalid configuration: it does not support configuration values provided after the ':' character, but 'x' is provided"},
		{"%ts:yyyyQ%", "the token '%ts:yyyyQ%' (position 0 to 9) has invalid configuration: the date formatting pattern 'yyyyQ' is invalid: illegal pattern character 'Q'"},
		{"%ts:'abc%", "has invalid configuration: the date formatting pattern ''abc' is invalid: unterminated quote at position 0"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			err := ValidateNamePattern(tt.pattern)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestSplitName(t *testing.T) {
	assert.Equal(t, []string{"heapdump_", "%host_name%", "_", "%ts:yyyy%", ".hprof"},
		splitName("heapdump_%host_name%_%ts:yyyy%.hprof"))
	assert.Equal(t, []string{"%%", "%aa%%%", "b", "%"}, splitName("%%%aa%%%b%"))
	assert.Equal(t, []string{"%aa%%b"}, splitName("%aa%%b"))
}

func TestNameTokenConfig(t *testing.T) {
	require.NoError(t, ValidateNamePattern(DefaultNamePattern))

	at := time.Date(2024, 3, 7, 15, 4, 5, 0, time.Local)
	f, err := NewNameFormatter("%ts:HH:mm%_%host_name%", "box")
	require.NoError(t, err)
	assert.Equal(t, "15:04_box", f.Format(at))

	_, err = NewNameFormatter("%host_name:%", "box")
	require.NoError(t, err, "an empty configuration is no configuration")
}
