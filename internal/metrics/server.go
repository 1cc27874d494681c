// Package metrics provides a simple Prometheus-compatible metrics endpoint.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/joss/hawtch/internal/domain"
)

// Metrics holds runtime counters for the monitor.
type Metrics struct {
	// Tailing
	EventsObserved  atomic.Int64
	EventsMalformed atomic.Int64

	// Oracle checks
	ChecksRun    atomic.Int64
	OracleErrors atomic.Int64

	// Interventions
	Interventions      atomic.Int64
	InterventionErrors atomic.Int64

	// Questions
	QuestionsDetected      atomic.Int64
	QuestionsAutoAnswered  atomic.Int64
	QuestionsHumanAnswered atomic.Int64
	QuestionsTimedOut      atomic.Int64

	// Timing (last oracle round trip in ms)
	LastCheckDurationMs atomic.Int64

	startTime time.Time
}

// New creates a metrics instance. Each monitor run owns its own.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordEvent records one parsed history event.
func (m *Metrics) RecordEvent() {
	m.EventsObserved.Add(1)
}

// RecordMalformed records a skipped malformed history line.
func (m *Metrics) RecordMalformed() {
	m.EventsMalformed.Add(1)
}

// RecordCheck records one adherence check round trip.
func (m *Metrics) RecordCheck(failedOpen bool, durationMs int64) {
	m.ChecksRun.Add(1)
	if failedOpen {
		m.OracleErrors.Add(1)
	}
	m.LastCheckDurationMs.Store(durationMs)
}

// RecordIntervention records an intervention delivery attempt.
func (m *Metrics) RecordIntervention(success bool) {
	m.Interventions.Add(1)
	if !success {
		m.InterventionErrors.Add(1)
	}
}

// RecordQuestion records a resolved question by its resolution source.
func (m *Metrics) RecordQuestion(source domain.ResolutionSource) {
	m.QuestionsDetected.Add(1)
	switch source {
	case domain.ResolvedAutomatic:
		m.QuestionsAutoAnswered.Add(1)
	case domain.ResolvedHuman:
		m.QuestionsHumanAnswered.Add(1)
	case domain.ResolvedTimeoutFallback:
		m.QuestionsTimedOut.Add(1)
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		uptime := time.Since(m.startTime).Seconds()

		fmt.Fprintf(w, "# HELP hawtch_uptime_seconds Time since the monitor started\n")
		fmt.Fprintf(w, "# TYPE hawtch_uptime_seconds gauge\n")
		fmt.Fprintf(w, "hawtch_uptime_seconds %.2f\n\n", uptime)

		fmt.Fprintf(w, "# HELP hawtch_events_observed_total Total history events parsed\n")
		fmt.Fprintf(w, "# TYPE hawtch_events_observed_total counter\n")
		fmt.Fprintf(w, "hawtch_events_observed_total %d\n\n", m.EventsObserved.Load())

		fmt.Fprintf(w, "# HELP hawtch_events_malformed_total Total malformed history lines skipped\n")
		fmt.Fprintf(w, "# TYPE hawtch_events_malformed_total counter\n")
		fmt.Fprintf(w, "hawtch_events_malformed_total %d\n\n", m.EventsMalformed.Load())

		fmt.Fprintf(w, "# HELP hawtch_checks_total Total adherence checks run\n")
		fmt.Fprintf(w, "# TYPE hawtch_checks_total counter\n")
		fmt.Fprintf(w, "hawtch_checks_total %d\n\n", m.ChecksRun.Load())

		fmt.Fprintf(w, "# HELP hawtch_oracle_errors_total Total checks that failed open\n")
		fmt.Fprintf(w, "# TYPE hawtch_oracle_errors_total counter\n")
		fmt.Fprintf(w, "hawtch_oracle_errors_total %d\n\n", m.OracleErrors.Load())

		fmt.Fprintf(w, "# HELP hawtch_interventions_total Total intervention deliveries attempted\n")
		fmt.Fprintf(w, "# TYPE hawtch_interventions_total counter\n")
		fmt.Fprintf(w, "hawtch_interventions_total %d\n\n", m.Interventions.Load())

		fmt.Fprintf(w, "# HELP hawtch_intervention_errors_total Total intervention delivery failures\n")
		fmt.Fprintf(w, "# TYPE hawtch_intervention_errors_total counter\n")
		fmt.Fprintf(w, "hawtch_intervention_errors_total %d\n\n", m.InterventionErrors.Load())

		fmt.Fprintf(w, "# HELP hawtch_questions_detected_total Total questions detected\n")
		fmt.Fprintf(w, "# TYPE hawtch_questions_detected_total counter\n")
		fmt.Fprintf(w, "hawtch_questions_detected_total %d\n\n", m.QuestionsDetected.Load())

		fmt.Fprintf(w, "# HELP hawtch_questions_auto_answered_total Questions resolved without a human\n")
		fmt.Fprintf(w, "# TYPE hawtch_questions_auto_answered_total counter\n")
		fmt.Fprintf(w, "hawtch_questions_auto_answered_total %d\n\n", m.QuestionsAutoAnswered.Load())

		fmt.Fprintf(w, "# HELP hawtch_questions_human_answered_total Questions answered by the human relay\n")
		fmt.Fprintf(w, "# TYPE hawtch_questions_human_answered_total counter\n")
		fmt.Fprintf(w, "hawtch_questions_human_answered_total %d\n\n", m.QuestionsHumanAnswered.Load())

		fmt.Fprintf(w, "# HELP hawtch_questions_timed_out_total Questions resolved by the timeout fallback\n")
		fmt.Fprintf(w, "# TYPE hawtch_questions_timed_out_total counter\n")
		fmt.Fprintf(w, "hawtch_questions_timed_out_total %d\n\n", m.QuestionsTimedOut.Load())

		fmt.Fprintf(w, "# HELP hawtch_last_check_duration_ms Last oracle round trip duration\n")
		fmt.Fprintf(w, "# TYPE hawtch_last_check_duration_ms gauge\n")
		fmt.Fprintf(w, "hawtch_last_check_duration_ms %d\n", m.LastCheckDurationMs.Load())
	}
}

// Server wraps the metrics HTTP server.
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics server on the given address.
func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start starts the metrics server in background.
func (s *Server) Start() error {
	go s.srv.ListenAndServe()
	return nil
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
