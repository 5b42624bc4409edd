// Package api serves the HTTP surface of the daemon: JSON endpoints over
// the hub and store, a websocket stream of live readings and alerts, and
// chart pages rendered from the rollup table.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vigil-care/vigil/internal/alerts"
	"github.com/vigil-care/vigil/internal/anomaly"
	"github.com/vigil-care/vigil/internal/hub"
	"github.com/vigil-care/vigil/internal/sensors"
	"github.com/vigil-care/vigil/internal/store"
	"github.com/vigil-care/vigil/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the hub and store over HTTP. detector may be nil when
// anomaly detection is disabled; the status response then omits baselines.
type Server struct {
	hub      *hub.Hub
	db       *store.DB
	eval     *alerts.Evaluator
	detector *anomaly.Detector
	ws       *wsHub
	started  time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

func NewServer(h *hub.Hub, db *store.DB, eval *alerts.Evaluator, detector *anomaly.Detector) *Server {
	stop := make(chan struct{})
	return &Server{
		hub:      h,
		db:       db,
		eval:     eval,
		detector: detector,
		ws:       newWSHub(stop),
		started:  time.Now(),
		stop:     stop,
	}
}

// Start runs the websocket fan-out and the feed that forwards router
// traffic to connected clients. Stop shuts both down.
func (s *Server) Start() {
	go s.ws.run()
	go s.feedClients()
}

func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// feedClients bridges the router's subscription channels onto the
// websocket hub until the server stops.
func (s *Server) feedClients() {
	readingID, readings := s.hub.Router().Subscribe()
	alertID, alertEvents := s.hub.Router().SubscribeAlerts()
	defer func() {
		s.hub.Router().Unsubscribe(readingID)
		s.hub.Router().UnsubscribeAlerts(alertID)
	}()

	for {
		select {
		case r, ok := <-readings:
			if !ok {
				return
			}
			s.ws.broadcast("reading", r)
		case ev, ok := <-alertEvents:
			if !ok {
				return
			}
			s.ws.broadcast("alert", ev)
		case <-s.stop:
			return
		}
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.showHealth)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/readings/latest", s.listLatestReadings)
	mux.HandleFunc("/api/readings/recent", s.listRecentReadings)
	mux.HandleFunc("/api/alerts/recent", s.listRecentAlerts)
	mux.HandleFunc("/api/alerts/test", s.injectTestAlert)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/charts/vitals", s.showVitalsCharts)
	mux.HandleFunc("/charts/environment", s.showEnvironmentCharts)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) showHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write health")
		return
	}
}

type statusResponse struct {
	Version   string                   `json:"version"`
	Uptime    string                   `json:"uptime"`
	Hub       hub.Status               `json:"hub"`
	Rules     []alerts.RuleStatus      `json:"rules"`
	Baselines []anomaly.BaselineStatus `json:"baselines,omitempty"`
	Store     store.Stats              `json:"store"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	storeStats, err := s.db.Stats()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve store stats: %v", err))
		return
	}

	resp := statusResponse{
		Version: version.String(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Hub:     s.hub.Snapshot(),
		Rules:   s.eval.RuleStates(),
		Store:   storeStats,
	}
	if s.detector != nil {
		resp.Baselines = s.detector.Baselines()
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
		return
	}
}

func (s *Server) listLatestReadings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	readings, err := s.db.LatestReadings()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve readings: %v", err))
		return
	}
	if readings == nil {
		readings = []sensors.Reading{}
	}

	if err := json.NewEncoder(w).Encode(readings); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write readings")
		return
	}
}

func (s *Server) listRecentReadings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	minutes := 60 // default value
	if m := r.URL.Query().Get("minutes"); m != "" {
		parsedMinutes, err := strconv.Atoi(m)
		if err != nil || parsedMinutes < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'minutes' parameter")
			return
		}
		minutes = parsedMinutes
	}

	since := time.Now().Add(-time.Duration(minutes) * time.Minute)
	readings, err := s.db.RecentReadings(since)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve readings: %v", err))
		return
	}
	if readings == nil {
		readings = []sensors.Reading{}
	}

	if err := json.NewEncoder(w).Encode(readings); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write readings")
		return
	}
}

func (s *Server) listRecentAlerts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 50 // default value
	if l := r.URL.Query().Get("limit"); l != "" {
		parsedLimit, err := strconv.Atoi(l)
		if err != nil || parsedLimit < 1 || parsedLimit > 500 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsedLimit
	}

	events, err := s.db.RecentAlerts(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve alerts: %v", err))
		return
	}
	if events == nil {
		events = []alerts.Event{}
	}

	if err := json.NewEncoder(w).Encode(events); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write alerts")
		return
	}
}

// injectTestAlert pushes a synthetic event through the router so the whole
// delivery chain can be exercised from the outside. The event reaches every
// registered sink, including the store and notifiers.
func (s *Server) injectTestAlert(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	severity := r.FormValue("severity")
	if severity == "" {
		severity = alerts.SeverityInfo
	}
	switch severity {
	case alerts.SeverityInfo, alerts.SeverityWarning, alerts.SeverityCritical:
	default:
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'severity' parameter")
		return
	}

	message := r.FormValue("message")
	if message == "" {
		message = "Test alert"
	}

	ev := alerts.Event{
		ID:       uuid.NewString(),
		Rule:     "test_alert",
		Severity: severity,
		Message:  message,
		Time:     time.Now().UTC(),
	}
	s.hub.Router().EmitAlert(ev)

	if err := json.NewEncoder(w).Encode(ev); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write alert")
		return
	}
}
