package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRange(t *testing.T) {
	cases := []struct {
		name   string
		header string
		size   int64
		start  int64
		end    int64
		ok     bool
	}{
		{"explicit", "bytes=100-199", 1000, 100, 199, true},
		{"open ended", "bytes=100-", 1000, 100, 999, true},
		{"end clamped", "bytes=900-5000", 1000, 900, 999, true},
		{"whole body", "bytes=0-999", 1000, 0, 999, true},
		{"empty header", "", 1000, 0, 0, false},
		{"wrong unit", "items=0-10", 1000, 0, 0, false},
		{"no dash", "bytes=100", 1000, 0, 0, false},
		{"suffix form unsupported", "bytes=-200", 1000, 0, 0, false},
		{"inverted", "bytes=200-100", 1000, 0, 0, false},
		{"start past end of body", "bytes=1000-1010", 1000, 0, 0, false},
		{"garbage", "bytes=abc-def", 1000, 0, 0, false},
		{"zero size", "bytes=0-10", 0, 0, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, ok := parseRange(tc.header, tc.size)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.start, start)
				assert.Equal(t, tc.end, end)
			}
		})
	}
}
