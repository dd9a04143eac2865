package moiss

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryHasPrefix(t *testing.T) {
	lib := DefaultLibrary()
	assert.True(t, lib.HasPrefix("med"))
	assert.True(t, lib.HasPrefix("med.scores"))
	assert.False(t, lib.HasPrefix("medicine"))
	assert.False(t, lib.HasPrefix("fhir"))
}

func TestLibraryInvokeQSOFA(t *testing.T) {
	lib := DefaultLibrary()
	rec := (&Patient{RR: 24, SBP: 90, GCS: 13}).Record()
	result, err := lib.Invoke("med.scores.qsofa", []Value{rec})
	require.NoError(t, err)
	assert.Equal(t, 3.0, result.(*Number).Value)
}

func TestLibraryInvokeUnknownPath(t *testing.T) {
	lib := DefaultLibrary()
	_, err := lib.Invoke("med.scores.apgar", nil)
	require.Error(t, err)
}

func TestLibraryArgValidation(t *testing.T) {
	lib := DefaultLibrary()
	_, err := lib.Invoke("med.scores.qsofa", []Value{&String{Value: "not a record"}})
	require.Error(t, err)
	_, err = lib.Invoke("med.scores.qsofa", nil)
	require.Error(t, err)
	_, err = lib.Invoke("med.pk.get_profile", []Value{&Number{Value: 7}})
	require.Error(t, err)
}

func TestLibraryGetProfile(t *testing.T) {
	lib := DefaultLibrary()
	result, err := lib.Invoke("med.pk.get_profile", []Value{&String{Value: "Vancomycin"}})
	require.NoError(t, err)
	rec := result.(*Record)
	assert.Equal(t, "DrugProfile", rec.TypeName)
	assert.Equal(t, "lactate", rec.Fields["target_vital"].(*String).Value)
	assert.Equal(t, "mg/kg", rec.Fields["standard_dose"].(*Number).Unit)
}

func TestLibraryValidateDose(t *testing.T) {
	lib := DefaultLibrary()

	ok, err := lib.Invoke("med.pk.validate_dose", []Value{&String{Value: "Vancomycin"}, &Number{Value: 15}})
	require.NoError(t, err)
	assert.Equal(t, TRUE, ok)

	// Out-of-range doses come back as a message, not an execution
	// error, so protocols can branch on them.
	bad, err := lib.Invoke("med.pk.validate_dose", []Value{&String{Value: "Vancomycin"}, &Number{Value: 50}})
	require.NoError(t, err)
	assert.IsType(t, &String{}, bad)
}

func TestLibraryWeightDose(t *testing.T) {
	lib := DefaultLibrary()
	result, err := lib.Invoke("med.pk.weight_dose", []Value{&String{Value: "Vancomycin"}, &Number{Value: 80}})
	require.NoError(t, err)
	n := result.(*Number)
	assert.Equal(t, 1200.0, n.Value)
	assert.Equal(t, "mg/kg", n.Unit)
}

func TestLibraryClassify(t *testing.T) {
	lib := DefaultLibrary()
	result, err := lib.Invoke("med.moiss.classify", []Value{&String{Value: "Vancomycin"}, &Number{Value: 31}})
	require.NoError(t, err)
	assert.Equal(t, string(OnTime), result.(*String).Value)
}

func TestRecordVitalsFlattening(t *testing.T) {
	rec := &Record{Fields: map[string]Value{
		"hr":         &Number{Value: 110},
		"ventilated": TRUE,
		"name":       &String{Value: "skip me"},
	}}
	vitals := recordVitals(rec)
	assert.Equal(t, 110.0, vitals["hr"])
	assert.Equal(t, 1.0, vitals["ventilated"])
	_, present := vitals["name"]
	assert.False(t, present)
}

func TestCustomLibraryFunction(t *testing.T) {
	engine := NewEngine()
	engine.Library().Register("med.scores.shock_index", func(args []Value) (Value, error) {
		vitals, err := vitalsArg(args, "med.scores.shock_index")
		if err != nil {
			return nil, err
		}
		return &Number{Value: vitals["hr"] / vitals["sbp"]}, nil
	})

	result, err := engine.ExecuteSource(context.Background(), `
protocol T {
    input: Patient p;
    let si = med.scores.shock_index(p);
    if si > 1.0 {
        alert "shock index elevated" severity: high;
    }
}`, &Patient{HR: 120, SBP: 80})
	require.NoError(t, err)
	require.Len(t, eventsOfKind(result, EventAlert), 1)
}

func TestUserBindingShadowsLibraryNamespace(t *testing.T) {
	// A scope binding named med takes precedence over the library
	// namespace for member access.
	source := `
type Chart { scores: number = 7; }
protocol T {
    let med = Chart { scores: 7 };
    let x = med.scores;
}`
	result, err := executeSource(t, source, nil)
	require.NoError(t, err)
	lets := eventsOfKind(result, EventLet)
	assert.Equal(t, "7", lets[1].Value)
}
