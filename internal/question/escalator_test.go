package question

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/hawtch/internal/domain"
	"github.com/joss/hawtch/internal/logging"
	"github.com/joss/hawtch/internal/render"
)

type fakeOracle struct {
	attempt domain.AnswerAttempt
	block   chan struct{} // when set, TryAnswer blocks until closed
}

func (f *fakeOracle) TryAnswer(ctx context.Context, question string, tc domain.TaskContext, extra string, threshold float64) domain.AnswerAttempt {
	if f.block != nil {
		<-f.block
	}
	a := f.attempt
	a.ShouldAskHuman = a.Confidence < threshold
	return a
}

type fakeRelay struct {
	mu        sync.Mutex
	sendErr   error
	answer    string
	hasAnswer bool
	sent      int
	drained   int
}

func (f *fakeRelay) SendQuestion(ctx context.Context, question, task, suggestion string, confidence float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	return f.sendErr
}

func (f *fakeRelay) AwaitAnswer(ctx context.Context, timeout time.Duration) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hasAnswer {
		return f.answer, true
	}
	return "", false
}

func (f *fakeRelay) DrainStale() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drained++
}

type fakeDeliverer struct {
	mu      sync.Mutex
	answers []string
}

func (f *fakeDeliverer) DeliverAnswer(answer string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answer)
}

func (f *fakeDeliverer) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.answers) == 0 {
		return ""
	}
	return f.answers[len(f.answers)-1]
}

type fakeExchangeRecorder struct {
	mu        sync.Mutex
	exchanges []domain.Exchange
}

func (f *fakeExchangeRecorder) RecordExchange(ex domain.Exchange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, ex)
	return nil
}

func newEscalator(oracle *fakeOracle, relay Relay, deliver *fakeDeliverer, rec ExchangeRecorder) *Escalator {
	return NewEscalator(
		oracle, relay, deliver, rec,
		render.NewWithWriter(io.Discard, false),
		logging.NewWithWriter("test", io.Discard),
		0.95, 50*time.Millisecond,
	)
}

func TestHighConfidenceResolvesAutomatically(t *testing.T) {
	oracle := &fakeOracle{attempt: domain.AnswerAttempt{Answer: "Use PostgreSQL", Confidence: 0.97}}
	relay := &fakeRelay{}
	deliver := &fakeDeliverer{}

	e := newEscalator(oracle, relay, deliver, nil)
	ex, ok := e.Handle(context.Background(), "Postgres or MySQL?", domain.TaskContext{Instruction: "t"}, "")

	require.True(t, ok)
	assert.True(t, ex.Resolved)
	assert.Equal(t, domain.ResolvedAutomatic, ex.Source)
	assert.Equal(t, "Use PostgreSQL", ex.Answer)
	assert.Equal(t, "Use PostgreSQL", deliver.last())
	assert.Zero(t, relay.sent, "relay must not be contacted on auto-resolve")
}

func TestLowConfidenceUsesHumanAnswer(t *testing.T) {
	oracle := &fakeOracle{attempt: domain.AnswerAttempt{Answer: "Maybe yes", Confidence: 0.4}}
	relay := &fakeRelay{answer: "No, keep the old schema", hasAnswer: true}
	deliver := &fakeDeliverer{}

	e := newEscalator(oracle, relay, deliver, nil)
	ex, ok := e.Handle(context.Background(), "Drop the table?", domain.TaskContext{Instruction: "t"}, "")

	require.True(t, ok)
	assert.Equal(t, domain.ResolvedHuman, ex.Source)
	assert.Equal(t, "No, keep the old schema", ex.Answer)
	assert.Equal(t, 1, relay.sent)
	assert.Equal(t, 1, relay.drained, "stale answers drained before escalation")
}

func TestTimeoutFallsBackToSuggestion(t *testing.T) {
	oracle := &fakeOracle{attempt: domain.AnswerAttempt{Answer: "Probably yes", Confidence: 0.4}}
	relay := &fakeRelay{} // never answers
	deliver := &fakeDeliverer{}

	e := newEscalator(oracle, relay, deliver, nil)
	ex, ok := e.Handle(context.Background(), "Proceed?", domain.TaskContext{}, "")

	require.True(t, ok)
	assert.Equal(t, domain.ResolvedTimeoutFallback, ex.Source)
	assert.Equal(t, "Probably yes", ex.Answer)
}

func TestTimeoutWithoutSuggestionUsesGenericFallback(t *testing.T) {
	oracle := &fakeOracle{attempt: domain.AnswerAttempt{Confidence: 0}}
	relay := &fakeRelay{}
	deliver := &fakeDeliverer{}

	e := newEscalator(oracle, relay, deliver, nil)
	ex, _ := e.Handle(context.Background(), "???", domain.TaskContext{}, "")

	assert.Equal(t, domain.ResolvedTimeoutFallback, ex.Source)
	assert.Equal(t, FallbackAnswer, ex.Answer)
}

func TestRelaySendFailureFallsBackImmediately(t *testing.T) {
	oracle := &fakeOracle{attempt: domain.AnswerAttempt{Answer: "Guess", Confidence: 0.3}}
	relay := &fakeRelay{sendErr: fmt.Errorf("telegram unreachable")}
	deliver := &fakeDeliverer{}

	start := time.Now()
	e := newEscalator(oracle, relay, deliver, nil)
	ex, _ := e.Handle(context.Background(), "q?", domain.TaskContext{}, "")

	assert.Equal(t, domain.ResolvedTimeoutFallback, ex.Source)
	assert.Equal(t, "Guess", ex.Answer)
	assert.Less(t, time.Since(start), 40*time.Millisecond, "send failure must not wait out the timeout")
}

func TestNoRelayFallsBack(t *testing.T) {
	oracle := &fakeOracle{attempt: domain.AnswerAttempt{Answer: "Best effort", Confidence: 0.5}}
	deliver := &fakeDeliverer{}

	e := newEscalator(oracle, nil, deliver, nil)
	ex, ok := e.Handle(context.Background(), "q?", domain.TaskContext{}, "")

	require.True(t, ok)
	assert.Equal(t, domain.ResolvedTimeoutFallback, ex.Source)
	assert.Equal(t, "Best effort", ex.Answer)
}

func TestSingleFlightRejectsConcurrentQuestion(t *testing.T) {
	block := make(chan struct{})
	oracle := &fakeOracle{attempt: domain.AnswerAttempt{Answer: "a", Confidence: 0.99}, block: block}
	deliver := &fakeDeliverer{}

	e := newEscalator(oracle, nil, deliver, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := e.Handle(context.Background(), "first?", domain.TaskContext{}, "")
		assert.True(t, ok)
	}()

	// Wait until the first question is inside the oracle call.
	require.Eventually(t, func() bool { return e.inFlight.Load() }, time.Second, time.Millisecond)

	_, ok := e.Handle(context.Background(), "second?", domain.TaskContext{}, "")
	assert.False(t, ok, "second question while one is open must be rejected")

	close(block)
	<-done
}

func TestExchangeIDsIncrease(t *testing.T) {
	oracle := &fakeOracle{attempt: domain.AnswerAttempt{Answer: "a", Confidence: 0.99}}
	deliver := &fakeDeliverer{}
	rec := &fakeExchangeRecorder{}

	e := newEscalator(oracle, nil, deliver, rec)
	ex1, _ := e.Handle(context.Background(), "one?", domain.TaskContext{}, "")
	ex2, _ := e.Handle(context.Background(), "two?", domain.TaskContext{}, "")

	assert.Equal(t, uint64(1), ex1.ID)
	assert.Equal(t, uint64(2), ex2.ID)
	require.Len(t, rec.exchanges, 2)
	assert.True(t, rec.exchanges[0].Resolved)
}
