package question

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/joss/hawtch/internal/domain"
	"github.com/joss/hawtch/internal/logging"
	"github.com/joss/hawtch/internal/render"
)

// FallbackAnswer is sent when the wait for a human times out and the oracle
// produced no usable suggestion.
const FallbackAnswer = "Please clarify your question and continue with the original task."

// AnswerOracle attempts an automatic answer to a detected question.
type AnswerOracle interface {
	TryAnswer(ctx context.Context, question string, tc domain.TaskContext, extra string, answerThreshold float64) domain.AnswerAttempt
}

// Relay is the human notification boundary. SendQuestion is fire-and-forget;
// AwaitAnswer blocks up to timeout; DrainStale discards answers left over
// from a previous, already-resolved exchange.
type Relay interface {
	SendQuestion(ctx context.Context, question, task, suggestion string, confidence float64) error
	AwaitAnswer(ctx context.Context, timeout time.Duration) (string, bool)
	DrainStale()
}

// Deliverer publishes the final answer to the agent's side channel.
type Deliverer interface {
	DeliverAnswer(answer string)
}

// ExchangeRecorder persists resolved exchanges; nil disables persistence.
type ExchangeRecorder interface {
	RecordExchange(ex domain.Exchange) error
}

// Escalator runs the answer path for one question at a time: automatic
// attempt, confidence gate, optional human relay with a bounded wait, and
// final delivery. Single-flight: a question arriving while another exchange
// is open is rejected.
type Escalator struct {
	oracle    AnswerOracle
	relay     Relay // nil when no relay is configured
	deliver   Deliverer
	recorder  ExchangeRecorder
	console   *render.Console
	log       *logging.Logger
	threshold float64
	timeout   time.Duration

	nextID   atomic.Uint64
	inFlight atomic.Bool
}

// NewEscalator wires the answer path. relay and recorder may be nil.
func NewEscalator(oracle AnswerOracle, relay Relay, deliver Deliverer, recorder ExchangeRecorder, console *render.Console, log *logging.Logger, threshold float64, timeout time.Duration) *Escalator {
	return &Escalator{
		oracle:    oracle,
		relay:     relay,
		deliver:   deliver,
		recorder:  recorder,
		console:   console,
		log:       log,
		threshold: threshold,
		timeout:   timeout,
	}
}

// Handle runs one question through the state machine and delivers the final
// answer. It returns the resolved exchange, or false when the question was
// rejected because another exchange is still open.
func (e *Escalator) Handle(ctx context.Context, question string, tc domain.TaskContext, extra string) (domain.Exchange, bool) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.log.Warn("question_rejected_in_flight", map[string]interface{}{
			"question": question,
		}, nil)
		return domain.Exchange{}, false
	}
	defer e.inFlight.Store(false)

	ex := domain.Exchange{
		ID:       e.nextID.Add(1),
		Question: question,
		Task:     tc.Instruction,
		OpenedAt: time.Now(),
	}

	attempt := e.oracle.TryAnswer(ctx, question, tc, extra, e.threshold)
	ex.Suggestion = attempt.Answer
	ex.Confidence = attempt.Confidence

	switch {
	case !attempt.ShouldAskHuman:
		ex.Resolve(attempt.Answer, domain.ResolvedAutomatic)

	case e.relay != nil:
		e.awaitHuman(ctx, &ex, attempt)

	default:
		// No relay configured; the oracle's best effort is all we have.
		ex.Resolve(fallback(attempt), domain.ResolvedTimeoutFallback)
	}

	e.deliver.DeliverAnswer(ex.Answer)
	e.console.Question(ex)
	e.log.Info("question_resolved", map[string]interface{}{
		"exchange": ex.ID,
		"source":   string(ex.Source),
	})

	if e.recorder != nil {
		if err := e.recorder.RecordExchange(ex); err != nil {
			e.log.Error("exchange_record_failed", map[string]interface{}{"exchange": ex.ID}, err)
		}
	}
	return ex, true
}

// awaitHuman forwards the question to the relay and blocks for an answer up
// to the configured timeout. Relay failures mean "no human available" and
// fall through to the fallback answer without blocking.
func (e *Escalator) awaitHuman(ctx context.Context, ex *domain.Exchange, attempt domain.AnswerAttempt) {
	e.relay.DrainStale()

	if err := e.relay.SendQuestion(ctx, ex.Question, ex.Task, attempt.Answer, attempt.Confidence); err != nil {
		e.log.Warn("relay_send_failed", map[string]interface{}{"exchange": ex.ID}, err)
		ex.Resolve(fallback(attempt), domain.ResolvedTimeoutFallback)
		return
	}

	if answer, ok := e.relay.AwaitAnswer(ctx, e.timeout); ok {
		ex.Resolve(answer, domain.ResolvedHuman)
		return
	}

	e.log.Warn("relay_answer_timeout", map[string]interface{}{
		"exchange": ex.ID,
		"timeout":  e.timeout.String(),
	}, nil)
	ex.Resolve(fallback(attempt), domain.ResolvedTimeoutFallback)
}

func fallback(attempt domain.AnswerAttempt) string {
	if attempt.Answer != "" {
		return attempt.Answer
	}
	return FallbackAnswer
}
