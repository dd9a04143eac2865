package moiss

import "math"

// KAE filter tuning. R0 is the base measurement noise, Q0 the process
// noise added each step, and kaeDT the assumed minutes between
// samples.
const (
	kaeR0 = 25.0
	kaeQ0 = 0.1
	kaeDT = 5.0

	kaeMinReliability = 0.0001
)

// KAEEstimator is a two-state recursive filter tracking the level and
// trend of a vital sign. The state is (position, velocity) with
// velocity in units per minute; p11 and p22 are the respective error
// variances.
type KAEEstimator struct {
	pos float64
	vel float64
	p11 float64
	p22 float64

	primed bool
}

// NewKAEEstimator returns a filter awaiting its first sample.
func NewKAEEstimator() *KAEEstimator {
	return &KAEEstimator{p11: 1.0, p22: 100.0}
}

// Update folds one measurement into the estimate and returns the
// updated position and velocity. Reliability scales the measurement
// noise: 1.0 trusts the sample fully, values near zero all but ignore
// it. Reliability is clamped to a small positive floor.
func (k *KAEEstimator) Update(measurement, reliability float64) (pos, vel float64) {
	if reliability < kaeMinReliability {
		reliability = kaeMinReliability
	}
	r := kaeR0 / reliability

	if !k.primed {
		// Seed the state at the first sample so the trend does not
		// spike from the zero origin.
		k.pos = measurement
		k.vel = 0
		k.primed = true
	}

	predPos := k.pos + k.vel*kaeDT
	predVel := k.vel

	p11Pred := k.p11 + kaeDT*kaeDT*k.p22 + kaeQ0
	p22Pred := k.p22 + kaeQ0

	s := p11Pred + r
	k1 := p11Pred / s
	k2 := (k.p22 * kaeDT) / s

	innovation := measurement - predPos

	k.pos = predPos + k1*innovation
	k.vel = predVel + k2*innovation

	k.p11 = (1 - k1) * p11Pred
	k.p22 = (1 - k2*kaeDT) * p22Pred

	return k.pos, k.vel
}

// Position returns the current level estimate.
func (k *KAEEstimator) Position() float64 { return k.pos }

// Velocity returns the current trend estimate in units per minute.
func (k *KAEEstimator) Velocity() float64 { return k.vel }

// Uncertainty returns the standard deviation of the position
// estimate.
func (k *KAEEstimator) Uncertainty() float64 { return math.Sqrt(k.p11) }
