package monitor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/hawtch/internal/config"
	"github.com/joss/hawtch/internal/domain"
	"github.com/joss/hawtch/internal/intervene"
	"github.com/joss/hawtch/internal/logging"
	"github.com/joss/hawtch/internal/memory"
	"github.com/joss/hawtch/internal/metrics"
	"github.com/joss/hawtch/internal/question"
	"github.com/joss/hawtch/internal/render"
	"github.com/joss/hawtch/internal/runtime"
	"github.com/joss/hawtch/internal/trigger"
)

type scriptedOracle struct {
	mu        sync.Mutex
	judgments []domain.Judgment
	calls     int
}

func (s *scriptedOracle) AnalyzeAdherence(ctx context.Context, tc domain.TaskContext, activity string) domain.Judgment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.judgments) == 0 {
		return domain.Judgment{OnTask: true, Confidence: 0.9, Reasoning: "fine"}
	}
	j := s.judgments[0]
	s.judgments = s.judgments[1:]
	return j
}

func (s *scriptedOracle) Probe(ctx context.Context) error { return nil }

func (s *scriptedOracle) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type capturedQuestion struct {
	question string
	extra    string
}

type fakeQuestions struct {
	handled chan capturedQuestion
}

func (f *fakeQuestions) Handle(ctx context.Context, q string, tc domain.TaskContext, extra string) (domain.Exchange, bool) {
	f.handled <- capturedQuestion{question: q, extra: extra}
	ex := domain.Exchange{ID: 1, Question: q}
	ex.Resolve("ok", domain.ResolvedAutomatic)
	return ex, true
}

func testMonitor(t *testing.T, oracle adherenceOracle) (*Monitor, *fakeQuestions, string) {
	t.Helper()
	dir := t.TempDir()
	side := filepath.Join(dir, "intervention.txt")

	cfg := &config.Settings{
		HistoryPath:           filepath.Join(dir, "history.jsonl"),
		InterventionPath:      side,
		WindowSize:            10,
		CheckFrequency:        3,
		InterventionThreshold: 0.7,
		AnswerThreshold:       0.95,
	}

	log := logging.NewWithWriter("test", io.Discard)
	console := render.NewWithWriter(io.Discard, false)
	rules := trigger.DefaultRules()
	detector, err := question.NewDetector(rules.QuestionPatterns, rules.RhetoricalPatterns)
	require.NoError(t, err)

	questions := &fakeQuestions{handled: make(chan capturedQuestion, 4)}

	m := &Monitor{
		cfg:         cfg,
		session:     "test-session",
		console:     console,
		log:         log,
		met:         metrics.New(),
		buffer:      memory.NewContextBuffer(cfg.WindowSize),
		policy:      trigger.NewPolicy(cfg.CheckFrequency, rules.SuspiciousPhrases),
		detector:    detector,
		oracle:      oracle,
		coordinator: intervene.NewCoordinator(cfg.InterventionThreshold, side, "", console, log, nil),
		questions:   questions,
		shutdown:    runtime.NewShutdownManager(time.Second, log),
	}
	m.buffer.SetInstruction("fix the failing login test")
	return m, questions, side
}

func event(display string) domain.HistoryEvent {
	return domain.HistoryEvent{Display: display, Timestamp: time.Now(), Project: "demo"}
}

func TestCadenceTriggersCheckOnEveryThirdEvent(t *testing.T) {
	oracle := &scriptedOracle{}
	m, _, _ := testMonitor(t, oracle)

	for i := 0; i < 6; i++ {
		m.handleEvent(event("running tests"))
	}

	assert.Equal(t, 2, oracle.callCount())
	assert.Equal(t, int64(6), m.met.EventsObserved.Load())
	assert.Equal(t, int64(2), m.met.ChecksRun.Load())
}

func TestOffTaskJudgmentDeliversIntervention(t *testing.T) {
	oracle := &scriptedOracle{judgments: []domain.Judgment{
		{OnTask: false, Confidence: 0.85, Reasoning: "refactoring unrelated code"},
	}}
	m, _, side := testMonitor(t, oracle)

	m.handleEvent(event("a"))
	m.handleEvent(event("b"))
	m.handleEvent(event("c"))

	content, err := os.ReadFile(side)
	require.NoError(t, err)
	assert.Contains(t, string(content), "STOP - Hawtch Intervention Required")
	assert.Contains(t, string(content), "refactoring unrelated code")
	assert.Equal(t, int64(1), m.met.Interventions.Load())
}

func TestSuspiciousPhraseForcesImmediateCheck(t *testing.T) {
	oracle := &scriptedOracle{judgments: []domain.Judgment{
		{OnTask: true, Confidence: 0.3, Reasoning: "looks like scope creep"},
	}}
	m, _, side := testMonitor(t, oracle)

	// First event, off cadence; fires only because the phrasing is suspicious.
	m.handleEvent(event("Done for now, I'll monitor the logs and fix anything that comes up"))

	assert.Equal(t, 1, oracle.callCount())

	// Forced triggers bypass the confidence gate.
	_, err := os.Stat(side)
	assert.NoError(t, err)
}

func TestQuestionRoutesToEscalatorNotOracle(t *testing.T) {
	oracle := &scriptedOracle{}
	m, questions, _ := testMonitor(t, oracle)

	m.handleEvent(event("before the question"))
	m.handleEvent(event("before the question"))
	m.handleEvent(event("Should I use PostgreSQL or MySQL for this?"))

	select {
	case q := <-questions.handled:
		assert.Contains(t, q.question, "PostgreSQL")
	case <-time.After(2 * time.Second):
		t.Fatal("question was not escalated")
	}

	// The question event itself never reaches the adherence oracle, even
	// though it is the third event.
	assert.Zero(t, oracle.callCount())
	assert.Eventually(t, func() bool {
		return m.met.QuestionsDetected.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestProjectFilterSkipsForeignEvents(t *testing.T) {
	oracle := &scriptedOracle{}
	m, _, _ := testMonitor(t, oracle)
	m.cfg.ProjectFilter = "backend/**"

	ev := event("working")
	ev.Project = "frontend/app"
	for i := 0; i < 6; i++ {
		m.handleEvent(ev)
	}

	assert.Zero(t, oracle.callCount())
	assert.Zero(t, m.buffer.Len())
	assert.Equal(t, int64(6), m.met.EventsObserved.Load())
}

func TestFailOpenCheckCountsOracleError(t *testing.T) {
	oracle := &scriptedOracle{judgments: []domain.Judgment{
		domain.FailOpenJudgment("connection refused"),
	}}
	m, _, side := testMonitor(t, oracle)

	m.handleEvent(event("a"))
	m.handleEvent(event("b"))
	m.handleEvent(event("c"))

	assert.Equal(t, int64(1), m.met.OracleErrors.Load())
	_, err := os.Stat(side)
	assert.True(t, os.IsNotExist(err), "fail-open judgment must not intervene")
}

func TestQuestionEventAdvancesCadence(t *testing.T) {
	oracle := &scriptedOracle{}
	m, questions, _ := testMonitor(t, oracle)

	m.handleEvent(event("Do you want me to add integration tests too?"))
	select {
	case <-questions.handled:
	case <-time.After(2 * time.Second):
		t.Fatal("question was not escalated")
	}

	// The question was the first event, so the third event overall fires
	// the cadence.
	m.handleEvent(event("running tests"))
	assert.Zero(t, oracle.callCount())
	m.handleEvent(event("still running tests"))
	assert.Equal(t, 1, oracle.callCount())
}

func TestGenuineZeroConfidenceIsNotAnOracleError(t *testing.T) {
	oracle := &scriptedOracle{judgments: []domain.Judgment{
		{OnTask: true, Confidence: 0, Reasoning: "too little activity to judge"},
	}}
	m, _, _ := testMonitor(t, oracle)

	m.handleEvent(event("a"))
	m.handleEvent(event("b"))
	m.handleEvent(event("c"))

	assert.Equal(t, int64(1), m.met.ChecksRun.Load())
	assert.Zero(t, m.met.OracleErrors.Load())
}

func TestNoCheckWithoutInstruction(t *testing.T) {
	oracle := &scriptedOracle{}
	m, _, _ := testMonitor(t, oracle)
	m.buffer = memory.NewContextBuffer(10)

	// No instruction set and the buffer adopts the first display as the
	// instruction, so the very first events count but the empty-instruction
	// guard never blocks after that.
	m.handleEvent(event("first thing the agent did"))
	assert.Equal(t, "first thing the agent did", m.buffer.Instruction())
}
