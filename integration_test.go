package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/moisslang/moiss/pkg/moiss"
)

func TestIntegrationSuite(t *testing.T) {
	t.Run("ProtocolFiles", testProtocolFiles)
	t.Run("SepsisScreenEndToEnd", testSepsisScreenEndToEnd)
	t.Run("ConcurrentExecutions", testConcurrentExecutions)
	t.Run("ErrorRecovery", testErrorRecovery)
}

func loadExamplePatient(t *testing.T) *moiss.Patient {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("examples", "patient.yaml"))
	if err != nil {
		t.Fatalf("read patient file: %v", err)
	}
	var patient moiss.Patient
	if err := yaml.Unmarshal(data, &patient); err != nil {
		t.Fatalf("parse patient file: %v", err)
	}
	return &patient
}

// testProtocolFiles compiles and runs every shipped example protocol
// against the shipped example patient.
func testProtocolFiles(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("examples", "*.moiss"))
	if err != nil || len(files) == 0 {
		t.Fatalf("no example protocols found: %v", err)
	}
	patient := loadExamplePatient(t)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			source, err := os.ReadFile(file)
			if err != nil {
				t.Fatalf("read %s: %v", file, err)
			}
			engine := moiss.NewEngine()
			prog, err := engine.Compile(string(source))
			if err != nil {
				t.Fatalf("compile %s: %v", file, err)
			}
			result, err := engine.Execute(context.Background(), prog, patient, nil)
			if err != nil {
				t.Fatalf("execute %s: %v", file, err)
			}
			if len(result.Events) == 0 {
				t.Errorf("%s produced no events", file)
			}
		})
	}
}

// testSepsisScreenEndToEnd pins the behavior of the sepsis example for
// the shipped patient, who screens positive on every qSOFA criterion.
func testSepsisScreenEndToEnd(t *testing.T) {
	source, err := os.ReadFile(filepath.Join("examples", "sepsis.moiss"))
	if err != nil {
		t.Fatal(err)
	}
	engine := moiss.NewEngine()
	result, err := engine.ExecuteSource(context.Background(), string(source), loadExamplePatient(t))
	if err != nil {
		t.Fatal(err)
	}

	var alerts, administers []moiss.Event
	for _, e := range result.Events {
		switch e.Kind {
		case moiss.EventAlert:
			alerts = append(alerts, e)
		case moiss.EventAdminister:
			administers = append(administers, e)
		}
	}

	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(alerts))
	}
	if alerts[1].Severity != "critical" {
		t.Errorf("escalation severity = %q", alerts[1].Severity)
	}
	if len(administers) != 1 || administers[0].Drug != "Norepinephrine" {
		t.Fatalf("administer events: %+v", administers)
	}
	// The patient's pressure is already below the pressor threshold, so
	// the intervention grades as too late.
	if administers[0].Timing != string(moiss.TooLate) {
		t.Errorf("timing = %q, want %q", administers[0].Timing, moiss.TooLate)
	}
}

// testConcurrentExecutions runs the same compiled program from many
// goroutines against one engine.
func testConcurrentExecutions(t *testing.T) {
	engine := moiss.NewEngine()
	prog, err := engine.Compile(`
protocol T {
    input: Patient p;
    let s = med.scores.qsofa(p);
    track p.lactate using KAE;
}`)
	if err != nil {
		t.Fatal(err)
	}

	const workers = 16
	var wg sync.WaitGroup
	results := make([]*moiss.Result, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.Execute(context.Background(), prog, nil, nil)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if seen[results[i].RunID] {
			t.Fatalf("duplicate run ID %s", results[i].RunID)
		}
		seen[results[i].RunID] = true
		if len(results[i].Events) != len(results[0].Events) {
			t.Errorf("worker %d event count diverged", i)
		}
	}
}

// testErrorRecovery checks that a failed run leaves the engine usable.
func testErrorRecovery(t *testing.T) {
	engine := moiss.NewEngine()

	bad := []string{
		`protocol T { let x = ; }`,
		`protocol T { administer Vancomycin; }`,
		`let x = 1;`,
	}
	for i, source := range bad {
		if _, err := engine.Compile(source); err == nil {
			t.Errorf("malformed source %d compiled", i)
		}
	}

	if _, err := engine.ExecuteSource(context.Background(), `protocol T { let x = ghost; }`, nil); err == nil {
		t.Error("expected a runtime failure")
	}

	result, err := engine.ExecuteSource(context.Background(), `protocol T { let x = 1; }`, nil)
	if err != nil {
		t.Fatalf("engine unusable after failures: %v", err)
	}
	if len(result.Events) == 0 {
		t.Error("no events from recovery run")
	}
}
