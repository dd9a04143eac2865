package moiss

import "math"

// TimingClass grades whether an intervention started now would act
// before a tracked vital crosses its critical threshold.
type TimingClass string

const (
	Prophylactic TimingClass = "PROPHYLACTIC"
	OnTime       TimingClass = "ON_TIME"
	Partial      TimingClass = "PARTIAL"
	Marginal     TimingClass = "MARGINAL"
	Futile       TimingClass = "FUTILE"
	TooLate      TimingClass = "TOO_LATE"
)

// ClassifyTiming compares the minutes until the critical threshold is
// crossed (tCrit) against a drug's onset time. Uncertainty is the
// standard deviation of the trend estimate; it widens the MARGINAL
// band when the estimate is noisy. The checks are ordered and the
// first match wins.
func ClassifyTiming(onsetMin, tCritMin, uncertainty float64) TimingClass {
	switch {
	case tCritMin <= 0:
		return TooLate
	case tCritMin > 2*onsetMin:
		return Prophylactic
	case tCritMin >= onsetMin:
		return OnTime
	}

	shortfall := onsetMin - tCritMin
	switch {
	case shortfall <= 0.25*onsetMin:
		return Partial
	case shortfall <= math.Max(0.5*onsetMin, uncertainty):
		return Marginal
	}
	return Futile
}

// TimeToThreshold projects the current (position, velocity) estimate
// forward and returns the minutes until it crosses threshold. Falling
// thresholds are crossed from above, rising ones from below. Returns
// +Inf when the trend never reaches the threshold, and a value <= 0
// when it has already been crossed.
func TimeToThreshold(pos, vel, threshold float64, falling bool) float64 {
	if falling {
		if pos <= threshold {
			return 0
		}
		if vel >= 0 {
			return math.Inf(1)
		}
		return (threshold - pos) / vel
	}
	if pos >= threshold {
		return 0
	}
	if vel <= 0 {
		return math.Inf(1)
	}
	return (threshold - pos) / vel
}
