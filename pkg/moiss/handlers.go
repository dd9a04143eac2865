package moiss

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// EventHandler receives protocol events as they are emitted. Handler
// errors do not abort the run; they are logged and execution
// continues.
type EventHandler interface {
	Handle(event Event) error
}

// ConsoleHandler prints events in a compact human-readable form.
type ConsoleHandler struct{}

func (h *ConsoleHandler) Handle(event Event) error {
	timestamp := event.Timestamp.Format("15:04:05")
	switch event.Kind {
	case EventAlert:
		fmt.Printf("[%s] ALERT [%s]: %s\n", timestamp, event.Severity, event.Message)
	case EventAdminister:
		fmt.Printf("[%s] ADMINISTER %s dose %g %s\n", timestamp, event.Drug, event.Dose, event.Unit)
	case EventAssess:
		fmt.Printf("[%s] ASSESS %s for %s: score %g, risk %s\n", timestamp, event.Target, event.Condition, event.Score, event.Risk)
	case EventTrack:
		fmt.Printf("[%s] TRACK %s sample %g (pos %.2f, vel %.3f)\n", timestamp, event.Target, event.Sample, event.Position, event.Velocity)
	case EventLet:
		fmt.Printf("[%s] LET %s = %s\n", timestamp, event.Name, event.Value)
	case EventForEachSummary:
		fmt.Printf("[%s] FOR %s: %d iterations\n", timestamp, event.Name, event.Iterations)
	default:
		fmt.Printf("[%s] %s %s\n", timestamp, strings.ToUpper(string(event.Kind)), event.Message)
	}
	return nil
}

// LogHandler writes every event to a standard logger.
type LogHandler struct {
	logger *log.Logger
}

func NewLogHandler(logger *log.Logger) *LogHandler {
	return &LogHandler{logger: logger}
}

func (h *LogHandler) Handle(event Event) error {
	line := fmt.Sprintf("%s run=%s", event.Kind, event.RunID)
	switch event.Kind {
	case EventAlert:
		line += fmt.Sprintf(" severity=%s message=%q", event.Severity, event.Message)
	case EventAdminister:
		line += fmt.Sprintf(" drug=%s dose=%g unit=%s timing=%s", event.Drug, event.Dose, event.Unit, event.Timing)
	case EventAssess:
		line += fmt.Sprintf(" target=%s condition=%s score=%g risk=%s", event.Target, event.Condition, event.Score, event.Risk)
	case EventTrack:
		line += fmt.Sprintf(" target=%s sample=%g pos=%g vel=%g kae=%t", event.Target, event.Sample, event.Position, event.Velocity, event.UsingKAE)
	case EventLog:
		line += fmt.Sprintf(" message=%q", event.Message)
	default:
		line += fmt.Sprintf(" name=%s value=%s", event.Name, event.Value)
	}
	if h.logger == nil {
		log.Print(line)
	} else {
		h.logger.Print(line)
	}
	return nil
}

// EventRegistry fans events out to handlers subscribed per kind or to
// all kinds.
type EventRegistry struct {
	mu       sync.RWMutex
	handlers map[EventKind][]EventHandler
	all      []EventHandler
}

func NewEventRegistry() *EventRegistry {
	return &EventRegistry{
		handlers: make(map[EventKind][]EventHandler),
	}
}

// Subscribe registers a handler for one event kind.
func (r *EventRegistry) Subscribe(kind EventKind, handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = append(r.handlers[kind], handler)
}

// SubscribeAll registers a handler for every event kind.
func (r *EventRegistry) SubscribeAll(handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, handler)
}

// Dispatch delivers an event to every matching handler.
func (r *EventRegistry) Dispatch(event Event) {
	r.mu.RLock()
	handlers := make([]EventHandler, 0, len(r.handlers[event.Kind])+len(r.all))
	handlers = append(handlers, r.handlers[event.Kind]...)
	handlers = append(handlers, r.all...)
	r.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler.Handle(event); err != nil {
			log.Printf("event handler error for %s: %v", event.Kind, err)
		}
	}
}
