package moiss

import "time"

// EventKind names the statement class that produced an event.
type EventKind string

const (
	EventLog            EventKind = "log"
	EventLet            EventKind = "let"
	EventTrack          EventKind = "track"
	EventAdminister     EventKind = "administer"
	EventAlert          EventKind = "alert"
	EventAssess         EventKind = "assess"
	EventForEachSummary EventKind = "foreach_summary"
)

// Event records one observable step of a protocol run. Only the
// fields relevant to the Kind are populated. Events are append-only
// and ordered by emission; the sequence is the sole product of an
// execution.
type Event struct {
	Kind      EventKind `json:"kind"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Line      int       `json:"line,omitempty"`

	// log / alert
	Message  string `json:"message,omitempty"`
	Severity string `json:"severity,omitempty"`

	// let / foreach_summary
	Name       string `json:"name,omitempty"`
	Value      string `json:"value,omitempty"`
	Iterations int    `json:"iterations,omitempty"`

	// track
	Target   string  `json:"target,omitempty"`
	Sample   float64 `json:"sample,omitempty"`
	Position float64 `json:"position,omitempty"`
	Velocity float64 `json:"velocity,omitempty"`
	UsingKAE bool    `json:"using_kae,omitempty"`

	// administer
	Drug   string  `json:"drug,omitempty"`
	Dose   float64 `json:"dose,omitempty"`
	Unit   string  `json:"unit,omitempty"`
	Timing string  `json:"timing,omitempty"`

	// assess
	Condition string  `json:"condition,omitempty"`
	Score     float64 `json:"score,omitempty"`
	Risk      string  `json:"risk,omitempty"`
}
