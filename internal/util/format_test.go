package util

import (
	"testing"
	"time"
)

func TestFormatElapsed(t *testing.T) {
	start := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		end := start.Add(d)
		return &end
	}

	tests := []struct {
		name string
		end  *time.Time
		want string
	}{
		{name: "still running", end: nil, want: "-"},
		{name: "clock skew", end: at(-time.Second), want: "-"},
		{name: "sub millisecond", end: at(250 * time.Microsecond), want: "250µs"},
		{name: "truncated", end: at(92*time.Second + 1234567*time.Nanosecond), want: "1m32.001s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatElapsed(start, tt.end); got != tt.want {
				t.Fatalf("FormatElapsed() = %q, want %q", got, tt.want)
			}
		})
	}
}
