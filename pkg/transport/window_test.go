package transport

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestLocalWindows(t *testing.T) {
	tests := []struct {
		name     string
		from, to float64
		end      float64
		loop     Loop
		expected []Window
	}{
		{"no loop inside", 1, 2, 8, Loop{}, []Window{{1, 2, false}}},
		{"no loop clipped at end", 6, 10, 8, Loop{}, []Window{{6, 8, true}}},
		{"no loop past end", 9, 10, 8, Loop{}, nil},
		{"empty window", 2, 2, 8, Loop{}, nil},
		{"zero length track", 0, 1, 0, Loop{}, nil},
		{"loop wraps", 3, 5, 8, Loop{Length: 4}, []Window{{3, 4, true}, {0, 1, false}}},
		{"loop several cycles", 0, 9, 8, Loop{Length: 4}, []Window{{0, 4, true}, {0, 4, true}, {0, 1, false}}},
		{"loop count limits", 6, 20, 8, Loop{Length: 4, Count: 2}, []Window{{2, 4, true}}},
		{"loop count exhausted", 8, 20, 8, Loop{Length: 4, Count: 2}, nil},
		{"loop longer than track", 4, 12, 2, Loop{Length: 8}, []Window{{0, 2, true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LocalWindows(tt.from, tt.to, tt.end, tt.loop)
			if len(got) != len(tt.expected) {
				t.Fatalf("LocalWindows() = %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("window %d = %v, want %v", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestWindowContains(t *testing.T) {
	w := Window{From: 1, To: 2}
	if !w.Contains(1) {
		t.Error("window should contain its start")
	}
	if w.Contains(2) {
		t.Error("open window should not contain its end")
	}

	w.Closed = true
	if !w.Contains(2) {
		t.Error("closed window should contain its end")
	}
	if w.Contains(2.5) {
		t.Error("closed window should not extend past its end")
	}
}

// TestLocalWindowsProperty checks that looped windows stay inside the loop
// region and cover exactly the global window when the track is long enough.
func TestLocalWindowsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("looped windows cover the global window", prop.ForAll(
		func(fromQ, spanQ, loopQ int) bool {
			from := float64(fromQ) / 4
			to := from + float64(spanQ)/4
			loop := Loop{Length: float64(loopQ) / 4}

			windows := LocalWindows(from, to, math.Inf(1), loop)

			var covered float64
			for _, w := range windows {
				if w.From < 0 || w.To > loop.Length || w.From >= w.To {
					return false
				}
				covered += w.To - w.From
			}
			return math.Abs(covered-(to-from)) < 1e-9
		},
		gen.IntRange(0, 400),
		gen.IntRange(1, 100),
		gen.IntRange(1, 32),
	))

	properties.Property("unlooped windows never reach the track end", prop.ForAll(
		func(fromQ, spanQ, endQ int) bool {
			from := float64(fromQ) / 4
			to := from + float64(spanQ)/4
			end := float64(endQ) / 4

			for _, w := range LocalWindows(from, to, end, Loop{}) {
				if w.To > end || w.From < from {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 400),
		gen.IntRange(1, 100),
		gen.IntRange(1, 400),
	))

	properties.TestingRun(t)
}
