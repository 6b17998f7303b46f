package mcp

import (
	"testing"
	"time"
)

func TestMaskValue(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected string
	}{
		{name: "empty value", value: "", expected: ""},
		{name: "1 character", value: "a", expected: "*"},
		{name: "4 characters", value: "abcd", expected: "****"},
		{name: "5 characters", value: "abcde", expected: "***de"},
		{name: "8 characters", value: "abcdefgh", expected: "******gh"},
		{name: "9 characters", value: "abcdefghi", expected: "*****fghi"},
		{name: "26 characters", value: "abcdefghijklmnopqrstuvwxyz", expected: "**********************wxyz"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := maskValue(tc.value); got != tc.expected {
				t.Errorf("maskValue(%q) = %q, want %q", tc.value, got, tc.expected)
			}
		})
	}
}

func TestFormatTime(t *testing.T) {
	if got := formatTime(time.Time{}); got != "" {
		t.Errorf("expected empty string for zero time, got %q", got)
	}
	ts := time.UnixMilli(1700000000000)
	if got := formatTime(ts); got != "2023-11-14T22:13:20Z" {
		t.Errorf("unexpected format %q", got)
	}
}
