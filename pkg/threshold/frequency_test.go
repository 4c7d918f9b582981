package threshold

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		value  string
		count  int
		window time.Duration
	}{
		{"1/150ms", 1, 150 * time.Millisecond},
		{"3/h", 3, time.Hour},
		{"2/10m", 2, 10 * time.Minute},
		{"5/30s", 5, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			f, err := ParseFrequency(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.count, f.MaxCount)
			assert.Equal(t, tt.window, f.Window)
			assert.Equal(t, tt.value, f.String())
		})
	}
}

func TestParseFrequencyRejects(t *testing.T) {
	tests := []struct {
		value  string
		reason string
	}{
		{"0/5m", "must be a positive integer"},
		{"3/0m", "must be a positive integer"},
		{"99999999999/5m", "must be a positive integer"},
		{"1.5/5m", "must follow the pattern"},
		{"1/5d", "must follow the pattern"},
		{"5m", "must follow the pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			_, err := ParseFrequency(tt.value)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestNewFrequencyString(t *testing.T) {
	assert.Equal(t, "2/60000ms", NewFrequency(2, time.Minute).String())
}

func TestParseInterval(t *testing.T) {
	d, err := ParseInterval("5s")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	d, err = ParseInterval("1.5m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = ParseInterval("0.5s")
	assert.ErrorContains(t, err, "greater or equal to 1")

	_, err = ParseInterval("5")
	assert.ErrorContains(t, err, "must follow the pattern")
}
