package moiss

import (
	"fmt"
	"sort"
	"strings"

	"github.com/moisslang/moiss/pkg/moiss/medlib"
)

// LibFunc is a callable installed under a dotted path in the default
// library.
type LibFunc func(args []Value) (Value, error)

// Library maps dotted call paths such as "med.scores.qsofa" to native
// functions. Protocols reach it through member expressions rooted at
// the "med" namespace.
type Library struct {
	funcs     map[string]LibFunc
	formulary *medlib.Formulary
}

func NewLibrary() *Library {
	return &Library{funcs: make(map[string]LibFunc)}
}

// Register installs a function under a dotted path, replacing any
// previous binding.
func (l *Library) Register(path string, fn LibFunc) {
	l.funcs[path] = fn
}

// Has reports whether a dotted path names a registered function.
func (l *Library) Has(path string) bool {
	_, ok := l.funcs[path]
	return ok
}

// HasPrefix reports whether any registered path starts with the given
// dotted prefix, so partial member chains like "med.scores" resolve
// as namespaces rather than unknown names.
func (l *Library) HasPrefix(prefix string) bool {
	dotted := prefix + "."
	for path := range l.funcs {
		if path == prefix || strings.HasPrefix(path, dotted) {
			return true
		}
	}
	return false
}

// Invoke calls the function registered at path.
func (l *Library) Invoke(path string, args []Value) (Value, error) {
	fn, ok := l.funcs[path]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", path)
	}
	return fn(args)
}

// Formulary exposes the drug profiles backing the pk functions.
func (l *Library) Formulary() *medlib.Formulary {
	return l.formulary
}

// DefaultLibrary returns the med.* namespace: clinical scores and the
// pharmacokinetics formulary.
func DefaultLibrary() *Library {
	lib := NewLibrary()
	lib.formulary = medlib.NewFormulary()

	lib.Register("med.scores.qsofa", func(args []Value) (Value, error) {
		vitals, err := vitalsArg(args, "med.scores.qsofa")
		if err != nil {
			return nil, err
		}
		return &Number{Value: float64(medlib.QSOFA(vitals))}, nil
	})

	lib.Register("med.scores.sofa", func(args []Value) (Value, error) {
		vitals, err := vitalsArg(args, "med.scores.sofa")
		if err != nil {
			return nil, err
		}
		return &Number{Value: float64(medlib.SOFA(vitals))}, nil
	})

	lib.Register("med.scores.map", func(args []Value) (Value, error) {
		vitals, err := vitalsArg(args, "med.scores.map")
		if err != nil {
			return nil, err
		}
		return &Number{Value: medlib.MeanArterialPressure(vitals), Unit: "mmHg"}, nil
	})

	lib.Register("med.scores.bmi", func(args []Value) (Value, error) {
		vitals, err := vitalsArg(args, "med.scores.bmi")
		if err != nil {
			return nil, err
		}
		return &Number{Value: medlib.BMI(vitals)}, nil
	})

	lib.Register("med.pk.get_profile", func(args []Value) (Value, error) {
		name, err := stringArg(args, "med.pk.get_profile")
		if err != nil {
			return nil, err
		}
		profile, perr := lib.formulary.Lookup(name)
		if perr != nil {
			return nil, perr
		}
		return profileRecord(profile), nil
	})

	lib.Register("med.pk.list_drugs", func(args []Value) (Value, error) {
		if len(args) != 0 {
			return nil, fmt.Errorf("med.pk.list_drugs takes no arguments, got %d", len(args))
		}
		names := lib.formulary.List()
		elems := make([]Value, len(names))
		for i, name := range names {
			elems[i] = &String{Value: name}
		}
		return &List{Elements: elems}, nil
	})

	lib.Register("med.pk.validate_dose", func(args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("med.pk.validate_dose expects (drug, dose), got %d arguments", len(args))
		}
		drug, ok := args[0].(*String)
		if !ok {
			return nil, fmt.Errorf("med.pk.validate_dose: drug must be a string, got %s", args[0].Type())
		}
		dose, ok := args[1].(*Number)
		if !ok {
			return nil, fmt.Errorf("med.pk.validate_dose: dose must be a number, got %s", args[1].Type())
		}
		if err := lib.formulary.ValidateDose(drug.Value, dose.Value); err != nil {
			return &String{Value: err.Error()}, nil
		}
		return TRUE, nil
	})

	lib.Register("med.pk.weight_dose", func(args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("med.pk.weight_dose expects (drug, weight_kg), got %d arguments", len(args))
		}
		drug, ok := args[0].(*String)
		if !ok {
			return nil, fmt.Errorf("med.pk.weight_dose: drug must be a string, got %s", args[0].Type())
		}
		weight, ok := args[1].(*Number)
		if !ok {
			return nil, fmt.Errorf("med.pk.weight_dose: weight must be a number, got %s", args[1].Type())
		}
		dose, err := lib.formulary.WeightDose(drug.Value, weight.Value)
		if err != nil {
			return nil, err
		}
		profile, _ := lib.formulary.Profile(drug.Value)
		return &Number{Value: dose, Unit: profile.DoseUnit}, nil
	})

	lib.Register("med.moiss.classify", func(args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("med.moiss.classify expects (drug, t_crit_minutes), got %d arguments", len(args))
		}
		drug, ok := args[0].(*String)
		if !ok {
			return nil, fmt.Errorf("med.moiss.classify: drug must be a string, got %s", args[0].Type())
		}
		tCrit, ok := args[1].(*Number)
		if !ok {
			return nil, fmt.Errorf("med.moiss.classify: t_crit must be a number, got %s", args[1].Type())
		}
		onset := 30.0
		if profile, ok := lib.formulary.Profile(drug.Value); ok {
			onset = profile.OnsetMin
		}
		return &String{Value: string(ClassifyTiming(onset, tCrit.Value, 0))}, nil
	})

	return lib
}

// recordVitals flattens a record's numeric fields into the vitals map
// the scoring functions consume. Non-numeric fields are skipped.
func recordVitals(rec *Record) medlib.Vitals {
	vitals := make(medlib.Vitals, len(rec.Fields))
	for name, val := range rec.Fields {
		switch v := val.(type) {
		case *Number:
			vitals[name] = v.Value
		case *Boolean:
			if v.Value {
				vitals[name] = 1
			} else {
				vitals[name] = 0
			}
		}
	}
	return vitals
}

func profileRecord(p *medlib.DrugProfile) *Record {
	direction := "falling"
	if p.Direction == medlib.Rising {
		direction = "rising"
	}
	return &Record{
		TypeName: "DrugProfile",
		Fields: map[string]Value{
			"name":               &String{Value: p.Name},
			"category":           &String{Value: p.Category},
			"onset_min":          &Number{Value: p.OnsetMin, Unit: "min"},
			"peak_min":           &Number{Value: p.PeakMin, Unit: "min"},
			"half_life_min":      &Number{Value: p.HalfLifeMin, Unit: "min"},
			"duration_min":       &Number{Value: p.DurationMin, Unit: "min"},
			"standard_dose":      &Number{Value: p.StandardDose, Unit: p.DoseUnit},
			"max_dose":           &Number{Value: p.MaxDose, Unit: p.DoseUnit},
			"min_dose":           &Number{Value: p.MinDose, Unit: p.DoseUnit},
			"target_vital":       &String{Value: p.TargetVital},
			"critical_threshold": &Number{Value: p.CriticalThreshold},
			"direction":          &String{Value: direction},
			"route":              &String{Value: p.Route},
		},
	}
}

func vitalsArg(args []Value, fn string) (medlib.Vitals, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s expects one record argument, got %d", fn, len(args))
	}
	rec, ok := args[0].(*Record)
	if !ok {
		return nil, fmt.Errorf("%s expects a record, got %s", fn, args[0].Type())
	}
	return recordVitals(rec), nil
}

func stringArg(args []Value, fn string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s expects one string argument, got %d", fn, len(args))
	}
	s, ok := args[0].(*String)
	if !ok {
		return "", fmt.Errorf("%s expects a string, got %s", fn, args[0].Type())
	}
	return s.Value, nil
}

// Paths returns every registered dotted path in sorted order.
func (l *Library) Paths() []string {
	paths := make([]string, 0, len(l.funcs))
	for path := range l.funcs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
