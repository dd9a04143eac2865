package moiss

import (
	"math"
	"testing"
)

func TestClassifyTiming(t *testing.T) {
	tests := []struct {
		name        string
		onset       float64
		tCrit       float64
		uncertainty float64
		want        TimingClass
	}{
		{"already crossed", 30, 0, 0, TooLate},
		{"negative time", 30, -5, 0, TooLate},
		{"ample margin", 30, 61, 0, Prophylactic},
		{"fast onset huge margin", 1, 30, 0, Prophylactic},
		{"double onset boundary stays on time", 30, 60, 0, OnTime},
		{"comfortably on time", 30, 45, 0, OnTime},
		{"exact onset boundary", 30, 30, 0, OnTime},
		{"small shortfall", 30, 25, 0, Partial},
		{"partial boundary", 30, 22.5, 0, Partial},
		{"moderate shortfall", 30, 20, 0, Marginal},
		{"marginal boundary", 30, 15, 0, Marginal},
		{"hopeless", 30, 5, 0, Futile},
		{"uncertainty widens marginal", 30, 10, 25, Marginal},
		{"certain estimate keeps futile", 30, 10, 0, Futile},
		{"infinite time", 30, math.Inf(1), 0, Prophylactic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyTiming(tt.onset, tt.tCrit, tt.uncertainty)
			if got != tt.want {
				t.Errorf("ClassifyTiming(%g, %g, %g) = %s, want %s",
					tt.onset, tt.tCrit, tt.uncertainty, got, tt.want)
			}
		})
	}
}

func TestClassifyTimingIsTotal(t *testing.T) {
	// Every (onset, tCrit) pair lands in exactly one class; sweep a grid
	// and make sure nothing falls through.
	for onset := 1.0; onset <= 60; onset += 7.3 {
		for tCrit := -10.0; tCrit <= 150; tCrit += 1.7 {
			got := ClassifyTiming(onset, tCrit, 0)
			switch got {
			case Prophylactic, OnTime, Partial, Marginal, Futile, TooLate:
			default:
				t.Fatalf("ClassifyTiming(%g, %g, 0) = %q", onset, tCrit, got)
			}
		}
	}
}

func TestTimeToThreshold(t *testing.T) {
	tests := []struct {
		name      string
		pos, vel  float64
		threshold float64
		falling   bool
		want      float64
	}{
		{"falling toward threshold", 90, -2, 80, true, 5},
		{"already below falling threshold", 75, -2, 80, true, 0},
		{"falling but rising trend", 90, 1, 80, true, math.Inf(1)},
		{"falling flat trend", 90, 0, 80, true, math.Inf(1)},
		{"rising toward threshold", 2, 0.5, 4, false, 4},
		{"already above rising threshold", 5, 0.5, 4, false, 0},
		{"rising but falling trend", 2, -0.5, 4, false, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TimeToThreshold(tt.pos, tt.vel, tt.threshold, tt.falling)
			if math.IsInf(tt.want, 1) {
				if !math.IsInf(got, 1) {
					t.Errorf("got %g, want +Inf", got)
				}
				return
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %g, want %g", got, tt.want)
			}
		})
	}
}
