// Package monitor wires the watcher pipeline: history tailing, the sliding
// task context, trigger policy, oracle checks, interventions, and the
// question escalation path.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joss/hawtch/internal/config"
	"github.com/joss/hawtch/internal/domain"
	"github.com/joss/hawtch/internal/intervene"
	"github.com/joss/hawtch/internal/logging"
	"github.com/joss/hawtch/internal/memory"
	"github.com/joss/hawtch/internal/metrics"
	"github.com/joss/hawtch/internal/oracle"
	"github.com/joss/hawtch/internal/question"
	"github.com/joss/hawtch/internal/relay"
	"github.com/joss/hawtch/internal/render"
	"github.com/joss/hawtch/internal/runtime"
	"github.com/joss/hawtch/internal/store"
	"github.com/joss/hawtch/internal/trigger"
	"github.com/joss/hawtch/internal/watch"
)

// adherenceOracle is the classification boundary the monitor depends on.
type adherenceOracle interface {
	AnalyzeAdherence(ctx context.Context, tc domain.TaskContext, activity string) domain.Judgment
	Probe(ctx context.Context) error
}

// questionHandler runs the answer path for one detected question.
type questionHandler interface {
	Handle(ctx context.Context, question string, tc domain.TaskContext, extra string) (domain.Exchange, bool)
}

// Monitor is one watcher run over one agent history file.
type Monitor struct {
	cfg     *config.Settings
	session string

	console *render.Console
	log     *logging.Logger
	met     *metrics.Metrics

	buffer      *memory.ContextBuffer
	policy      *trigger.Policy
	detector    *question.Detector
	oracle      adherenceOracle
	coordinator *intervene.Coordinator
	questions   questionHandler
	source      *watch.Source
	relay       *relay.Bot
	history     *store.History
	metricsSrv  *metrics.Server
	shutdown    *runtime.ShutdownManager
}

// New builds a monitor from validated settings. task, when non-empty, is the
// explicit instruction to judge adherence against; otherwise the first
// observed event is adopted. usePoll forces interval polling over
// file-system notification.
func New(cfg *config.Settings, task string, usePoll bool, console *render.Console) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	session := uuid.NewString()
	log := logging.New("monitor").WithSession(session)
	log.SetLevel(logging.ParseLevel(cfg.LogLevel))

	paths, err := config.EnsureHome()
	if err != nil {
		return nil, err
	}

	rules, err := trigger.LoadRules(paths.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	detector, err := question.NewDetector(rules.QuestionPatterns, rules.RhetoricalPatterns)
	if err != nil {
		return nil, fmt.Errorf("compile question patterns: %w", err)
	}

	source, err := watch.NewSource(cfg.HistoryPath, cfg.PollInterval, usePoll, log)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		cfg:      cfg,
		session:  session,
		console:  console,
		log:      log,
		met:      metrics.New(),
		buffer:   memory.NewContextBuffer(cfg.WindowSize),
		policy:   trigger.NewPolicy(cfg.CheckFrequency, rules.SuspiciousPhrases),
		detector: detector,
		source:   source,
		shutdown: runtime.NewShutdownManager(runtime.DefaultShutdownTimeout, log),
	}

	source.OnMalformed(m.met.RecordMalformed)

	if task != "" {
		m.buffer.SetInstruction(task)
	}

	// History persistence is best effort; a broken database must not stop
	// the watch.
	history, err := store.Open(paths.HistoryDB, session)
	if err != nil {
		console.Warn(fmt.Sprintf("history disabled: %v", err))
		log.Warn("history_open_failed", nil, err)
	} else {
		m.history = history
	}

	oracleClient := oracle.New(cfg.OracleBaseURL, cfg.OracleAPIKey, cfg.OracleModel, cfg.OracleTimeout, log)
	m.oracle = oracleClient

	var recorder intervene.Recorder
	if m.history != nil {
		recorder = m.history
	}
	m.coordinator = intervene.NewCoordinator(
		cfg.InterventionThreshold, cfg.InterventionPath, paths.AuditLog,
		console, log, recorder,
	)

	var humanRelay question.Relay
	if cfg.RelayEnabled() {
		bot := relay.NewBot(cfg.TelegramToken, cfg.TelegramChatID, log)
		bot.OnChatID = func(chatID string) {
			console.Success("telegram connected, chat id " + chatID)
		}
		m.relay = bot
		humanRelay = bot
	}

	var exchanges question.ExchangeRecorder
	if m.history != nil {
		exchanges = m.history
	}
	m.questions = question.NewEscalator(
		oracleClient, humanRelay, m.coordinator, exchanges,
		console, log, cfg.AnswerThreshold, cfg.RelayTimeout,
	)

	if cfg.MetricsAddr != "" {
		m.metricsSrv = metrics.NewServer(cfg.MetricsAddr, m.met)
	}

	return m, nil
}

// Session returns this run's session id.
func (m *Monitor) Session() string {
	return m.session
}

// Metrics exposes the run counters.
func (m *Monitor) Metrics() *metrics.Metrics {
	return m.met
}

// Run starts the pipeline and blocks until ctx is cancelled or a signal
// arrives. Cleanup is handled through the shutdown manager.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.startup(ctx); err != nil {
		m.shutdown.Shutdown()
		m.shutdown.WaitForShutdown()
		return err
	}

	m.shutdown.ListenForSignals()
	go func() {
		select {
		case <-ctx.Done():
			m.shutdown.Shutdown()
		case <-m.shutdown.Done():
		}
	}()

	err := m.source.Run(m.shutdown.Context(), m.handleEvent)

	m.shutdown.Shutdown()
	m.shutdown.WaitForShutdown()

	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// startup probes the oracle, starts the relay and metrics server, and
// registers their cleanup. An unreachable oracle aborts startup; once the
// loop is running, oracle failures fail open instead.
func (m *Monitor) startup(ctx context.Context) error {
	m.console.Status(fmt.Sprintf("watching %s (session %s)", m.cfg.HistoryPath, m.session[:8]))

	if m.history != nil {
		m.shutdown.Register("history store", func(context.Context) error {
			return m.history.Close()
		})
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := m.oracle.Probe(probeCtx)
	cancel()
	if err != nil {
		m.log.Error("oracle_probe_failed", nil, err)
		return fmt.Errorf("oracle unreachable at %s (is the model server running?): %w",
			m.cfg.OracleBaseURL, err)
	}
	m.console.Success("oracle reachable at " + m.cfg.OracleBaseURL)

	if m.relay != nil {
		m.relay.Start(ctx)
		m.shutdown.RegisterSimple("telegram relay", m.relay.Stop)
		m.console.Status("telegram relay enabled")
	}

	if m.metricsSrv != nil {
		m.metricsSrv.Start()
		m.shutdown.Register("metrics server", m.metricsSrv.Stop)
		m.console.Status("metrics on " + m.cfg.MetricsAddr)
	}
	return nil
}

// handleEvent processes one observed agent event: question path first, then
// the trigger policy and, when it fires, an adherence check.
func (m *Monitor) handleEvent(ev domain.HistoryEvent) {
	m.met.RecordEvent()
	m.console.Event(ev)

	// Filtered events are shown but never buffered or analyzed.
	if !m.cfg.MatchesProject(ev.Project) {
		m.log.Debug("event_filtered", map[string]interface{}{"project": ev.Project})
		return
	}

	m.buffer.Append(ev)

	if m.detector.IsQuestion(ev.Display) {
		m.policy.Observe()
		q, extra := m.detector.Context(ev.Display)
		m.log.Info("question_detected", map[string]interface{}{"question": q})

		// The answer path can block on a human for minutes; the tail loop
		// must keep observing. A second question while one is open is
		// rejected by the escalator.
		go func() {
			ex, ok := m.questions.Handle(m.shutdown.Context(), q, m.buffer.Snapshot(), extra)
			if ok {
				m.met.RecordQuestion(ex.Source)
			}
		}()
		return
	}

	res := m.policy.Evaluate(ev.Display, m.buffer.Instruction() != "")
	if !res.Fire {
		return
	}
	m.runCheck(ev, res.Forced)
}

func (m *Monitor) runCheck(ev domain.HistoryEvent, forced bool) {
	start := time.Now()
	tc := m.buffer.Snapshot()

	j := m.oracle.AnalyzeAdherence(m.shutdown.Context(), tc, ev.Display)
	m.met.RecordCheck(j.FailedOpen, time.Since(start).Milliseconds())

	d, ok := m.coordinator.Evaluate(j, forced)
	if !ok {
		m.log.Debug("check_clear", map[string]interface{}{
			"on_task":    j.OnTask,
			"confidence": j.Confidence,
		})
		return
	}

	err := m.coordinator.Deliver(d)
	m.met.RecordIntervention(err == nil)
}
