// Package units implements the dimensional unit model for MOISS quantities.
//
// Units are atomic tags matched against a fixed table. Compound rate units
// such as "mcg/kg/min" are registered as their own tags rather than derived
// by dimensional algebra; only pre-registered tags are valid.
package units

import "fmt"

// Dimension is the physical category a unit belongs to. Compound units each
// carry their own dimension tag, so "mg/hr" and "mcg/min" are not
// interconvertible even though both are mass rates.
type Dimension string

const (
	Mass     Dimension = "mass"
	Volume   Dimension = "volume"
	Pressure Dimension = "pressure"
	Amount   Dimension = "amount"
	Activity Dimension = "activity"
	Time     Dimension = "time"
	Rate     Dimension = "rate" // heart rate (bpm)

	// Dimensionless marks a bare number.
	Dimensionless Dimension = ""
)

type unitDef struct {
	dim Dimension
	// factor converts a value in this unit to the dimension's canonical
	// unit (mg, mL, min, mmol). Units that are their own canonical form
	// use 1.
	factor float64
}

var table = map[string]unitDef{
	// mass (canonical mg)
	"mcg": {Mass, 0.001},
	"mg":  {Mass, 1},
	"g":   {Mass, 1000},
	"kg":  {Mass, 1e6},

	// volume (canonical mL)
	"mL": {Volume, 1},
	"L":  {Volume, 1000},

	// pressure
	"mmHg": {Pressure, 1},

	// amount of substance (canonical mmol)
	"mmol": {Amount, 1},
	"mol":  {Amount, 1000},

	// biological activity
	"IU": {Activity, 1},

	// time (canonical min)
	"min": {Time, 1},
	"hr":  {Time, 60},

	// rate
	"bpm": {Rate, 1},

	// compound tags, each its own dimension
	"mcg/kg/min": {Dimension("mcg/kg/min"), 1},
	"mcg/kg/hr":  {Dimension("mcg/kg/hr"), 1},
	"mcg/min":    {Dimension("mcg/min"), 1},
	"mg/min":     {Dimension("mg/min"), 1},
	"mg/hr":      {Dimension("mg/hr"), 1},
	"mg/kg":      {Dimension("mg/kg"), 1},
	"mL/hr":      {Dimension("mL/hr"), 1},
	"mL/kg":      {Dimension("mL/kg"), 1},
	"mmol/L":     {Dimension("mmol/L"), 1},
	"mg/mL":      {Dimension("mg/mL"), 1},
	"IU/hr":      {Dimension("IU/hr"), 1},
}

// IsTag reports whether s is a registered unit tag (atomic or compound).
func IsTag(s string) bool {
	_, ok := table[s]
	return ok
}

// Of returns the dimension of a unit tag. The empty tag is Dimensionless.
// Unknown tags report ok=false.
func Of(unit string) (Dimension, bool) {
	if unit == "" {
		return Dimensionless, true
	}
	def, ok := table[unit]
	if !ok {
		return Dimensionless, false
	}
	return def.dim, true
}

// Compatible reports whether two unit tags share a dimension. Two empty
// tags are compatible (both dimensionless); a tagged quantity is never
// compatible with a bare number.
func Compatible(u1, u2 string) bool {
	if u1 == u2 {
		return true
	}
	d1, ok1 := Of(u1)
	d2, ok2 := Of(u2)
	if !ok1 || !ok2 {
		return false
	}
	return d1 == d2
}

// Convert converts value from one unit to another within the same
// dimension using the fixed table factors.
func Convert(value float64, from, to string) (float64, error) {
	if from == to {
		return value, nil
	}
	fdef, ok := table[from]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", from)
	}
	tdef, ok := table[to]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", to)
	}
	if fdef.dim != tdef.dim {
		return 0, fmt.Errorf("cannot convert %s (%s) to %s (%s)", from, fdef.dim, to, tdef.dim)
	}
	return value * fdef.factor / tdef.factor, nil
}
