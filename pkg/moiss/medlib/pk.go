package medlib

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ThresholdDirection says which way a vital moves toward danger.
type ThresholdDirection int

const (
	// Falling vitals cross the danger threshold from above (blood
	// pressure dropping toward shock).
	Falling ThresholdDirection = iota
	// Rising vitals cross from below (lactate climbing).
	Rising
)

// DrugProfile is a drug's pharmacokinetic and dosing profile, consumed
// by the administer statement and the intervention-timing classifier.
type DrugProfile struct {
	Name     string
	Category string

	OnsetMin    float64 // minutes to initial effect
	PeakMin     float64 // minutes to peak effect
	HalfLifeMin float64 // elimination half-life in minutes
	DurationMin float64 // total duration of action in minutes

	StandardDose float64
	DoseUnit     string
	MaxDose      float64
	MinDose      float64

	// Trajectory the drug is meant to rescue: which vital it acts on,
	// the clinical danger threshold for that vital, and the direction
	// the vital moves toward danger.
	TargetVital       string
	CriticalThreshold float64
	Direction         ThresholdDirection

	Route string
}

// DoseError reports a dose outside a drug's safe range.
type DoseError struct {
	Drug    string
	Dose    float64
	Unit    string
	Profile *DrugProfile
	TooLow  bool
}

func (e *DoseError) Error() string {
	p := e.Profile
	if e.TooLow {
		return fmt.Sprintf("%s dose of %g%s below minimum effective dose of %g%s (standard: %g%s)",
			e.Drug, e.Dose, e.Unit, p.MinDose, p.DoseUnit, p.StandardDose, p.DoseUnit)
	}
	return fmt.Sprintf("%s dose of %g%s exceeds maximum safe dose of %g%s (standard: %g%s)",
		e.Drug, e.Dose, e.Unit, p.MaxDose, p.DoseUnit, p.StandardDose, p.DoseUnit)
}

// NotFoundError reports an unknown drug, with near-miss suggestions.
type NotFoundError struct {
	Drug        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("drug %q not found in the formulary", e.Drug)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

// Formulary is the registry of known drug profiles.
type Formulary struct {
	drugs map[string]*DrugProfile
}

// NewFormulary returns a formulary seeded with the built-in profiles.
func NewFormulary() *Formulary {
	f := &Formulary{drugs: make(map[string]*DrugProfile)}
	for i := range builtinProfiles {
		p := builtinProfiles[i]
		f.drugs[p.Name] = &p
	}
	return f
}

// Register adds or replaces a drug profile.
func (f *Formulary) Register(p *DrugProfile) {
	f.drugs[p.Name] = p
}

// Profile looks up a drug by name, case-insensitively.
func (f *Formulary) Profile(name string) (*DrugProfile, bool) {
	if p, ok := f.drugs[name]; ok {
		return p, true
	}
	for k, p := range f.drugs {
		if strings.EqualFold(k, name) {
			return p, true
		}
	}
	return nil, false
}

// Lookup is Profile with a NotFoundError carrying near-miss
// suggestions instead of a bare miss.
func (f *Formulary) Lookup(name string) (*DrugProfile, error) {
	if p, ok := f.Profile(name); ok {
		return p, nil
	}
	return nil, &NotFoundError{Drug: name, Suggestions: f.suggest(name)}
}

// List returns all drug names in sorted order.
func (f *Formulary) List() []string {
	names := make([]string, 0, len(f.drugs))
	for name := range f.drugs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDose checks a dose (already converted to the profile's dose
// unit) against the drug's safe range.
func (f *Formulary) ValidateDose(name string, dose float64) error {
	p, ok := f.Profile(name)
	if !ok {
		return &NotFoundError{Drug: name, Suggestions: f.suggest(name)}
	}
	if p.MinDose > 0 && dose < p.MinDose {
		return &DoseError{Drug: p.Name, Dose: dose, Unit: p.DoseUnit, Profile: p, TooLow: true}
	}
	if p.MaxDose > 0 && dose > p.MaxDose {
		return &DoseError{Drug: p.Name, Dose: dose, Unit: p.DoseUnit, Profile: p}
	}
	return nil
}

// WeightDose returns the absolute amount for a weight-based dose unit
// (mg/kg and friends), or the standard dose unchanged otherwise.
func (f *Formulary) WeightDose(name string, weightKg float64) (float64, error) {
	p, ok := f.Profile(name)
	if !ok {
		return 0, &NotFoundError{Drug: name, Suggestions: f.suggest(name)}
	}
	if strings.Contains(p.DoseUnit, "/kg") && weightKg > 0 {
		return p.StandardDose * weightKg, nil
	}
	return p.StandardDose, nil
}

// HalfLivesElapsed reports how many elimination half-lives fit in the
// given minutes, for remaining-fraction estimates.
func (f *Formulary) HalfLivesElapsed(name string, minutes float64) (float64, error) {
	p, ok := f.Profile(name)
	if !ok {
		return 0, &NotFoundError{Drug: name, Suggestions: f.suggest(name)}
	}
	if p.HalfLifeMin <= 0 {
		return 0, nil
	}
	return minutes / p.HalfLifeMin, nil
}

// RemainingFraction estimates the fraction of a dose still active after
// the given minutes, assuming first-order elimination.
func (f *Formulary) RemainingFraction(name string, minutes float64) (float64, error) {
	halves, err := f.HalfLivesElapsed(name, minutes)
	if err != nil {
		return 0, err
	}
	return math.Pow(0.5, halves), nil
}

func (f *Formulary) suggest(name string) []string {
	lower := strings.ToLower(name)
	var out []string
	for _, candidate := range f.List() {
		cl := strings.ToLower(candidate)
		if strings.Contains(cl, lower) || strings.Contains(lower, cl) {
			out = append(out, candidate)
		} else if len(lower) >= 3 && len(cl) >= 3 && lower[:3] == cl[:3] {
			out = append(out, candidate)
		}
		if len(out) == 3 {
			break
		}
	}
	return out
}

var builtinProfiles = []DrugProfile{
	{
		Name:              "Norepinephrine",
		Category:          "vasopressor",
		OnsetMin:          1.0,
		PeakMin:           2.0,
		HalfLifeMin:       2.5,
		DurationMin:       5.0,
		StandardDose:      0.1,
		DoseUnit:          "mcg/kg/min",
		MaxDose:           3.3,
		MinDose:           0.01,
		TargetVital:       "bp",
		CriticalThreshold: 90,
		Direction:         Falling,
		Route:             "IV",
	},
	{
		Name:              "Epinephrine",
		Category:          "vasopressor",
		OnsetMin:          1.0,
		PeakMin:           3.0,
		HalfLifeMin:       3.5,
		DurationMin:       10.0,
		StandardDose:      0.05,
		DoseUnit:          "mcg/kg/min",
		MaxDose:           2.0,
		MinDose:           0.01,
		TargetVital:       "bp",
		CriticalThreshold: 90,
		Direction:         Falling,
		Route:             "IV",
	},
	{
		Name:              "Vasopressin",
		Category:          "vasopressor",
		OnsetMin:          1.0,
		PeakMin:           5.0,
		HalfLifeMin:       15.0,
		DurationMin:       30.0,
		StandardDose:      0.04,
		DoseUnit:          "IU/hr",
		MaxDose:           2.4,
		MinDose:           0.01,
		TargetVital:       "bp",
		CriticalThreshold: 90,
		Direction:         Falling,
		Route:             "IV",
	},
	{
		Name:              "Vancomycin",
		Category:          "antibiotic",
		OnsetMin:          30.0,
		PeakMin:           60.0,
		HalfLifeMin:       360.0,
		DurationMin:       720.0,
		StandardDose:      15.0,
		DoseUnit:          "mg/kg",
		MaxDose:           20.0,
		MinDose:           10.0,
		TargetVital:       "lactate",
		CriticalThreshold: 4.0,
		Direction:         Rising,
		Route:             "IV",
	},
	{
		Name:              "Furosemide",
		Category:          "diuretic",
		OnsetMin:          5.0,
		PeakMin:           30.0,
		HalfLifeMin:       120.0,
		DurationMin:       360.0,
		StandardDose:      40.0,
		DoseUnit:          "mg",
		MaxDose:           200.0,
		MinDose:           20.0,
		TargetVital:       "spo2",
		CriticalThreshold: 88,
		Direction:         Falling,
		Route:             "IV",
	},
	{
		Name:              "Propofol",
		Category:          "sedative",
		OnsetMin:          0.5,
		PeakMin:           1.0,
		HalfLifeMin:       40.0,
		DurationMin:       10.0,
		StandardDose:      50.0,
		DoseUnit:          "mcg/kg/min",
		MaxDose:           200.0,
		MinDose:           5.0,
		TargetVital:       "hr",
		CriticalThreshold: 150,
		Direction:         Rising,
		Route:             "IV",
	},
	{
		Name:              "Thiamine",
		Category:          "vitamin",
		OnsetMin:          15.0,
		PeakMin:           60.0,
		HalfLifeMin:       360.0,
		DurationMin:       1440.0,
		StandardDose:      100.0,
		DoseUnit:          "mg",
		MaxDose:           500.0,
		MinDose:           100.0,
		TargetVital:       "lactate",
		CriticalThreshold: 4.0,
		Direction:         Rising,
		Route:             "IV",
	},
	{
		Name:              "Heparin",
		Category:          "anticoagulant",
		OnsetMin:          5.0,
		PeakMin:           10.0,
		HalfLifeMin:       90.0,
		DurationMin:       240.0,
		StandardDose:      18.0,
		DoseUnit:          "IU/hr",
		MaxDose:           25000.0,
		MinDose:           10.0,
		TargetVital:       "hr",
		CriticalThreshold: 150,
		Direction:         Rising,
		Route:             "IV",
	},
}
