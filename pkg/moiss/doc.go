// Package moiss executes clinical protocol programs written in the
// MOISS language: a small DSL for encoding intervention protocols
// with unit-aware quantities, vital-sign trend tracking, and
// intervention-timing classification.
//
// # Quick Start
//
// Create an engine and run a protocol against a patient binding:
//
//	engine := moiss.NewEngine()
//	result, err := engine.ExecuteSource(ctx, `
//		protocol SepsisCheck {
//			input: Patient p;
//			track p.lactate using KAE;
//			if p.lactate > 2.0 {
//				alert "elevated lactate" severity: warning;
//			}
//		}
//	`, patient)
//
// The result is an ordered event stream: every let binding, tracked
// sample, administration, assessment, and alert the run produced. A
// failed run returns its error together with every event emitted
// before the failure.
//
// # Tracking and Timing
//
// `track ... using KAE` feeds samples into a per-target recursive
// trend estimator. `administer` consults the drug formulary
// (pkg/moiss/medlib) and the tracked trend of the drug's target vital
// to grade intervention timing from PROPHYLACTIC through TOO_LATE.
//
// # Extending the Library
//
// Hosts may register additional med.* functions on the engine's
// Library before execution. Shipped modules are med.scores (clinical
// severity scores) and med.pk (pharmacokinetic drug registry).
package moiss
