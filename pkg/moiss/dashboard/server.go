// Package dashboard serves a live view of protocol executions: recent
// runs and their event streams over HTTP, plus a websocket feed for
// events as they happen.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/moisslang/moiss/pkg/moiss"
)

// RunSummary is the per-run aggregate exposed at /api/runs.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	EventCount int       `json:"event_count"`
	Alerts     int       `json:"alerts"`
	MaxSeverity string   `json:"max_severity,omitempty"`
}

// Server streams protocol events to browsers. Subscribe it to an
// engine's event registry and every run shows up live.
type Server struct {
	port     int
	server   *http.Server
	upgrader websocket.Upgrader

	clients      map[*websocket.Conn]bool
	clientsMutex sync.RWMutex
	maxClients   int

	events chan moiss.Event
	stop   chan struct{}

	mutex       sync.RWMutex
	eventBuffer []moiss.Event
	eventIndex  int
	eventCount  int
	runs        map[string]*RunSummary
	runOrder    []string
	maxRuns     int
}

func NewServer(port int) *Server {
	return &Server{
		port: port,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return origin == fmt.Sprintf("http://localhost:%d", port) ||
					origin == fmt.Sprintf("http://127.0.0.1:%d", port)
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients:     make(map[*websocket.Conn]bool),
		maxClients:  100,
		events:      make(chan moiss.Event, 256),
		stop:        make(chan struct{}),
		eventBuffer: make([]moiss.Event, 200),
		runs:        make(map[string]*RunSummary),
		maxRuns:     50,
	}
}

// Handle implements moiss.EventHandler so the server can be
// subscribed directly to an engine's event registry.
func (s *Server) Handle(event moiss.Event) error {
	select {
	case s.events <- event:
	default:
		// Drop rather than stall the executor.
	}
	return nil
}

func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	go s.broadcast()

	log.Printf("Starting MOISS dashboard on :%d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	close(s.stop)
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) broadcast() {
	for {
		select {
		case event := <-s.events:
			s.mutex.Lock()
			s.eventBuffer[s.eventIndex] = event
			s.eventIndex = (s.eventIndex + 1) % len(s.eventBuffer)
			if s.eventCount < len(s.eventBuffer) {
				s.eventCount++
			}
			s.recordRun(event)
			s.mutex.Unlock()

			s.broadcastMessage(map[string]interface{}{
				"type": "event",
				"data": event,
			})
		case <-s.stop:
			return
		}
	}
}

// recordRun updates the per-run summary. Caller holds s.mutex.
func (s *Server) recordRun(event moiss.Event) {
	summary, ok := s.runs[event.RunID]
	if !ok {
		summary = &RunSummary{RunID: event.RunID, StartedAt: event.Timestamp}
		s.runs[event.RunID] = summary
		s.runOrder = append(s.runOrder, event.RunID)
		if len(s.runOrder) > s.maxRuns {
			delete(s.runs, s.runOrder[0])
			s.runOrder = s.runOrder[1:]
		}
	}
	summary.EventCount++
	if event.Kind == moiss.EventAlert {
		summary.Alerts++
		if severityRank(event.Severity) > severityRank(summary.MaxSeverity) {
			summary.MaxSeverity = event.Severity
		}
	}
}

func severityRank(severity string) int {
	switch severity {
	case "critical":
		return 4
	case "high":
		return 3
	case "warning":
		return 2
	case "info":
		return 1
	}
	return 0
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.mutex.RLock()
	events := make([]moiss.Event, 0, s.eventCount)
	// Oldest first out of the circular buffer.
	start := s.eventIndex - s.eventCount
	if start < 0 {
		start += len(s.eventBuffer)
	}
	for i := 0; i < s.eventCount; i++ {
		events = append(events, s.eventBuffer[(start+i)%len(s.eventBuffer)])
	}
	s.mutex.RUnlock()

	runID := r.URL.Query().Get("run")
	if runID != "" {
		filtered := events[:0]
		for _, e := range events {
			if e.RunID == runID {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	s.mutex.RLock()
	runs := make([]RunSummary, 0, len(s.runOrder))
	for i := len(s.runOrder) - 1; i >= 0; i-- {
		runs = append(runs, *s.runs[s.runOrder[i]])
	}
	s.mutex.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.clientsMutex.RLock()
	clientCount := len(s.clients)
	s.clientsMutex.RUnlock()

	if clientCount >= s.maxClients {
		http.Error(w, "Maximum clients reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	s.clientsMutex.Lock()
	s.clients[conn] = true
	s.clientsMutex.Unlock()

	defer func() {
		s.clientsMutex.Lock()
		delete(s.clients, conn)
		s.clientsMutex.Unlock()
	}()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("WebSocket read error: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		case <-s.stop:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *Server) broadcastMessage(message interface{}) {
	s.clientsMutex.RLock()
	if len(s.clients) == 0 {
		s.clientsMutex.RUnlock()
		return
	}
	clientsCopy := make([]*websocket.Conn, 0, len(s.clients))
	for client := range s.clients {
		clientsCopy = append(clientsCopy, client)
	}
	s.clientsMutex.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	var failedClients []*websocket.Conn
	for _, client := range clientsCopy {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			client.Close()
			failedClients = append(failedClients, client)
		}
	}

	if len(failedClients) > 0 {
		s.clientsMutex.Lock()
		for _, client := range failedClients {
			delete(s.clients, client)
		}
		s.clientsMutex.Unlock()
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	html := `<!DOCTYPE html>
<html>
<head>
    <title>MOISS Protocol Monitor</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; background: #f5f5f5; }
        .header { background: #2c3e50; color: white; padding: 20px; border-radius: 5px; margin-bottom: 20px; }
        .card { background: white; padding: 20px; border-radius: 5px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); margin-bottom: 20px; }
        .event { padding: 6px 10px; border-left: 4px solid #3498db; margin: 4px 0; font-family: monospace; font-size: 13px; }
        .event.alert { border-color: #e74c3c; background: #fdf0ef; }
        .event.administer { border-color: #27ae60; }
        .event.track { border-color: #f39c12; }
        .status { float: right; font-size: 14px; }
        .connected { color: #2ecc71; }
        .disconnected { color: #e74c3c; }
    </style>
</head>
<body>
    <div class="header">
        <h1>MOISS Protocol Monitor</h1>
        <span id="status" class="status disconnected">disconnected</span>
    </div>
    <div class="card">
        <h3>Live Events</h3>
        <div id="events"></div>
    </div>
    <script>
        const eventsDiv = document.getElementById('events');
        const status = document.getElementById('status');
        function describe(e) {
            switch (e.kind) {
                case 'alert': return 'ALERT [' + e.severity + '] ' + e.message;
                case 'administer': return 'ADMINISTER ' + e.drug + ' ' + e.dose + ' ' + (e.unit || '') + ' [' + e.timing + ']';
                case 'track': return 'TRACK ' + e.target + ' = ' + e.sample + (e.using_kae ? ' (pos ' + e.position.toFixed(2) + ', vel ' + e.velocity.toFixed(3) + ')' : '');
                case 'assess': return 'ASSESS ' + e.target + ' for ' + e.condition + ': ' + e.risk;
                case 'let': return 'LET ' + e.name + ' = ' + e.value;
                default: return e.kind.toUpperCase() + ' ' + (e.message || e.name || '');
            }
        }
        function connect() {
            const ws = new WebSocket('ws://' + location.host + '/ws');
            ws.onopen = () => { status.textContent = 'connected'; status.className = 'status connected'; };
            ws.onclose = () => { status.textContent = 'disconnected'; status.className = 'status disconnected'; setTimeout(connect, 2000); };
            ws.onmessage = (msg) => {
                const payload = JSON.parse(msg.data);
                if (payload.type !== 'event') return;
                const e = payload.data;
                const div = document.createElement('div');
                div.className = 'event ' + e.kind;
                div.textContent = new Date(e.timestamp).toLocaleTimeString() + '  ' + describe(e);
                eventsDiv.prepend(div);
                while (eventsDiv.children.length > 200) eventsDiv.removeChild(eventsDiv.lastChild);
            };
        }
        connect();
    </script>
</body>
</html>`
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, html)
}
