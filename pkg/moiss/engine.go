package moiss

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moisslang/moiss/pkg/moiss/parser"
)

// Limits bounds a single protocol execution.
type Limits struct {
	// MaxLoopIterations is the per-loop-entry iteration ceiling. Each
	// entry into a while or for loop starts a fresh count.
	MaxLoopIterations int

	// MaxExecutionTime caps wall-clock run time. Zero means the
	// caller's context is the only deadline.
	MaxExecutionTime time.Duration
}

// DefaultLimits mirrors the runtime's historical safety ceiling.
func DefaultLimits() Limits {
	return Limits{
		MaxLoopIterations: 1000,
		MaxExecutionTime:  30 * time.Second,
	}
}

// Patient is the fixed-shape vitals record a protocol receives as its
// input binding. Field values are dimensionless numbers; protocols
// attach units only to their own literals.
type Patient struct {
	Name    string  `yaml:"name"`
	Age     float64 `yaml:"age"`
	Sex     string  `yaml:"sex"`
	Weight  float64 `yaml:"weight"`
	Height  float64 `yaml:"height"`
	BP      float64 `yaml:"bp"`
	SBP     float64 `yaml:"sbp"`
	HR      float64 `yaml:"hr"`
	RR      float64 `yaml:"rr"`
	Temp    float64 `yaml:"temp"`
	SpO2    float64 `yaml:"spo2"`
	GCS     float64 `yaml:"gcs"`
	Lactate float64 `yaml:"lactate"`

	// Extra carries vitals outside the fixed shape, such as
	// platelets or creatinine for SOFA scoring.
	Extra map[string]float64 `yaml:"extra"`
}

// DefaultPatient is a septic-presentation demo patient used by the
// CLI when no patient file is given.
func DefaultPatient() *Patient {
	return &Patient{
		Name:    "Demo Patient",
		Age:     55,
		Sex:     "M",
		Weight:  70,
		BP:      85,
		HR:      110,
		RR:      24,
		Temp:    38.5,
		SpO2:    94,
		GCS:     14,
		Lactate: 3.2,
	}
}

// Record converts the patient into the runtime binding the executor
// consumes. SBP falls back to BP when unset.
func (p *Patient) Record() *Record {
	sbp := p.SBP
	if sbp == 0 {
		sbp = p.BP
	}
	fields := map[string]Value{
		"name":    &String{Value: p.Name},
		"age":     &Number{Value: p.Age},
		"sex":     &String{Value: p.Sex},
		"weight":  &Number{Value: p.Weight},
		"height":  &Number{Value: p.Height},
		"bp":      &Number{Value: p.BP},
		"sbp":     &Number{Value: sbp},
		"hr":      &Number{Value: p.HR},
		"rr":      &Number{Value: p.RR},
		"temp":    &Number{Value: p.Temp},
		"spo2":    &Number{Value: p.SpO2},
		"gcs":     &Number{Value: p.GCS},
		"lactate": &Number{Value: p.Lactate},
	}
	for name, value := range p.Extra {
		fields[name] = &Number{Value: value}
	}
	return &Record{TypeName: "Patient", Fields: fields}
}

// Result is the ordered event stream of one protocol run. On failure
// Events still holds everything emitted before the failing statement.
type Result struct {
	RunID  string
	Events []Event
}

// Engine parses and executes protocol programs. It is safe for
// concurrent use: each Execute call owns its own scope stack and KAE
// state.
type Engine struct {
	lib      *Library
	registry *EventRegistry

	mu     sync.RWMutex
	limits Limits
}

// NewEngine returns an engine with the default med.* library and
// limits.
func NewEngine() *Engine {
	return &Engine{
		lib:      DefaultLibrary(),
		registry: NewEventRegistry(),
		limits:   DefaultLimits(),
	}
}

// SetLimits replaces the engine's execution limits.
func (e *Engine) SetLimits(limits Limits) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if limits.MaxLoopIterations <= 0 {
		limits.MaxLoopIterations = DefaultLimits().MaxLoopIterations
	}
	e.limits = limits
}

// Limits returns the engine's current execution limits.
func (e *Engine) Limits() Limits {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.limits
}

// Library returns the engine's function library so hosts can register
// additional modules before execution.
func (e *Engine) Library() *Library { return e.lib }

// Events returns the engine's handler registry. Handlers subscribed
// here observe every event of every run as it is emitted.
func (e *Engine) Events() *EventRegistry { return e.registry }

// Compile parses source into a program, surfacing lex and syntax
// errors without executing anything.
func (e *Engine) Compile(source string) (*parser.Program, error) {
	return parser.Parse(source)
}

// Execute runs a compiled program against a patient binding. Events
// are streamed to subscribed handlers and collected into the result;
// a non-nil error still comes with every event emitted before the
// failure.
func (e *Engine) Execute(ctx context.Context, prog *parser.Program, patient *Patient, extras map[string]Value) (*Result, error) {
	limits := e.Limits()
	if limits.MaxExecutionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limits.MaxExecutionTime)
		defer cancel()
	}

	result := &Result{RunID: uuid.NewString()}
	emit := func(ev Event) {
		ev.RunID = result.RunID
		ev.Timestamp = time.Now()
		result.Events = append(result.Events, ev)
		e.registry.Dispatch(ev)
	}

	if patient == nil {
		patient = DefaultPatient()
	}
	x := newExecutor(ctx, e.lib, limits.MaxLoopIterations, emit)
	if err := x.run(prog, patient.Record(), extras); err != nil {
		return result, err
	}
	return result, nil
}

// ExecuteSource compiles and runs source in one step.
func (e *Engine) ExecuteSource(ctx context.Context, source string, patient *Patient) (*Result, error) {
	prog, err := e.Compile(source)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, prog, patient, nil)
}
