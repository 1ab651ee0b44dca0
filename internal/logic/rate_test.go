package logic

import (
	"math"
	"testing"
	"time"
)

func TestRate(t *testing.T) {
	tests := []struct {
		name       string
		count      uint64
		elapsed    time.Duration
		multiplier float64
		want       float64
		wantOK     bool
	}{
		{"flow meter 4.5 pulses per l/min", 45, 10 * time.Second, 1.0 / 4.5, 1.0, true},
		{"plain hertz", 50, time.Second, 1, 50, true},
		{"half second window", 10, 500 * time.Millisecond, 1, 20, true},
		{"zero count", 0, time.Second, 1, 0, true},
		{"zero elapsed", 10, 0, 1, 0, false},
		{"negative elapsed", 10, -time.Second, 1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Rate(tt.count, tt.elapsed, tt.multiplier)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("rate: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseEdge(t *testing.T) {
	for in, want := range map[string]Edge{
		"rising": EdgeRising, "falling": EdgeFalling, "both": EdgeBoth, "change": EdgeBoth, "": EdgeNone,
	} {
		got, err := ParseEdge(in)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", in, err)
		}
		if got != want {
			t.Errorf("%q: got %v, want %v", in, got, want)
		}
	}

	if _, err := ParseEdge("sideways"); err == nil {
		t.Error("expected error for unknown edge")
	}
}
