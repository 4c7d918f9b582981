package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoMemoryAssistant/pkg/observability"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{"85%", "percentage: usage above 85%"},
		{">=1.5KB", "absolute: used larger than or equal to 1.5KB (1536 bytes)"},
		{"+5%/2m", "increase-over-timeframe: +5% within 2m0s"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			desc, err := describe(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, desc)
		})
	}

	_, err := describe("  ")
	assert.Error(t, err)
	_, err = describe("=>1MB")
	assert.Error(t, err)
}

func TestMetricsMux(t *testing.T) {
	srv := httptest.NewServer(newMux(observability.NewRecorder()))
	defer srv.Close()

	for _, path := range []string{"/metrics", "/debug/pprof/heap"} {
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
