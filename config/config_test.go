package config

import (
	"testing"
	"time"
)

func TestParseRateLimit(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantCount  int
		wantWindow time.Duration
		wantErr    bool
	}{
		{"per minute", "100/minute", 100, time.Minute, false},
		{"per second", "5/second", 5, time.Second, false},
		{"per hour", "1000/hour", 1000, time.Hour, false},
		{"whitespace tolerated", " 10 / minute ", 10, time.Minute, false},
		{"missing separator", "100", 0, 0, true},
		{"zero count", "0/minute", 0, 0, true},
		{"negative count", "-5/minute", 0, 0, true},
		{"unknown window", "100/day", 0, 0, true},
		{"not a number", "many/minute", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, window, err := ParseRateLimit(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRateLimit(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRateLimit(%q): %v", tt.input, err)
			}
			if count != tt.wantCount || window != tt.wantWindow {
				t.Errorf("ParseRateLimit(%q) = (%d, %v), want (%d, %v)",
					tt.input, count, window, tt.wantCount, tt.wantWindow)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	if got := clampInt(5, 10, 100); got != 10 {
		t.Errorf("clampInt below = %d, want 10", got)
	}
	if got := clampInt(500, 10, 100); got != 100 {
		t.Errorf("clampInt above = %d, want 100", got)
	}
	if got := clampInt(50, 10, 100); got != 50 {
		t.Errorf("clampInt inside = %d, want 50", got)
	}
	if got := clampDuration(time.Second, time.Minute, time.Hour); got != time.Minute {
		t.Errorf("clampDuration below = %v, want 1m", got)
	}
}
