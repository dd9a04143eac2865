// Package medlib ships the default clinical library modules the engine
// exposes as med.* capabilities: validated scoring calculators and a
// pharmacokinetic drug formulary.
package medlib

import "math"

// Vitals is a flat view of a patient's numeric fields in canonical units.
type Vitals map[string]float64

func (v Vitals) get(keys ...string) (float64, bool) {
	for _, k := range keys {
		if val, ok := v[k]; ok {
			return val, true
		}
	}
	return 0, false
}

// QSOFA computes the quick SOFA sepsis screen (0-3): one point each for
// respiratory rate >= 22, systolic blood pressure <= 100, and Glasgow
// Coma Scale < 15.
func QSOFA(v Vitals) int {
	score := 0
	if rr, ok := v.get("rr"); ok && rr >= 22 {
		score++
	}
	if sbp, ok := v.get("bp", "sbp"); ok && sbp <= 100 {
		score++
	}
	if gcs, ok := v.get("gcs"); ok && gcs < 15 {
		score++
	}
	return score
}

// SOFA computes the Sequential Organ Failure Assessment score (0-24)
// from whichever organ-system fields are present.
func SOFA(v Vitals) int {
	score := 0

	if ratio, ok := v.get("pao2_fio2"); ok {
		switch {
		case ratio < 100:
			score += 4
		case ratio < 200:
			score += 3
		case ratio < 300:
			score += 2
		case ratio < 400:
			score += 1
		}
	}

	if plt, ok := v.get("platelets"); ok {
		switch {
		case plt < 20:
			score += 4
		case plt < 50:
			score += 3
		case plt < 100:
			score += 2
		case plt < 150:
			score += 1
		}
	}

	if bili, ok := v.get("bilirubin"); ok {
		switch {
		case bili > 12:
			score += 4
		case bili > 6:
			score += 3
		case bili > 2:
			score += 2
		case bili > 1.2:
			score += 1
		}
	}

	if m, ok := v.get("map"); ok && m < 70 {
		score++
	}
	if vaso, ok := v.get("on_vasopressors"); ok && vaso != 0 {
		score += 2
	}

	if gcs, ok := v.get("gcs"); ok {
		switch {
		case gcs < 6:
			score += 4
		case gcs < 10:
			score += 3
		case gcs < 13:
			score += 2
		case gcs < 15:
			score += 1
		}
	}

	if cr, ok := v.get("creatinine"); ok {
		switch {
		case cr > 5.0:
			score += 4
		case cr > 3.5:
			score += 3
		case cr > 2.0:
			score += 2
		case cr > 1.2:
			score += 1
		}
	}

	return score
}

// MeanArterialPressure derives MAP from systolic and diastolic pressure.
func MeanArterialPressure(v Vitals) float64 {
	sbp, _ := v.get("bp", "sbp")
	dbp, _ := v.get("diastolic_bp")
	return dbp + (sbp-dbp)/3
}

// BMI derives body mass index from weight (kg) and height (cm), rounded
// to one decimal. Zero when height is missing or non-positive.
func BMI(v Vitals) float64 {
	weight, _ := v.get("weight")
	height, ok := v.get("height")
	if !ok || height <= 0 {
		return 0
	}
	hm := height / 100
	return math.Round(weight/(hm*hm)*10) / 10
}
