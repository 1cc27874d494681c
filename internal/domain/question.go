package domain

import "time"

// AnswerAttempt is the answer oracle's best effort at a detected question.
// Immutable, one per question.
type AnswerAttempt struct {
	Answer         string  `json:"answer"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
	ShouldAskHuman bool    `json:"-"`
}

// FailedAttempt is the zero-confidence attempt produced when the answer
// oracle is unreachable or unparsable. It always escalates to a human.
func FailedAttempt(reason string) AnswerAttempt {
	return AnswerAttempt{
		Confidence:     0,
		Reasoning:      reason,
		ShouldAskHuman: true,
	}
}

// ResolutionSource records how a question exchange was resolved.
type ResolutionSource string

const (
	ResolvedAutomatic       ResolutionSource = "automatic"
	ResolvedHuman           ResolutionSource = "human"
	ResolvedTimeoutFallback ResolutionSource = "timeout-fallback"
)

// Exchange tracks one outstanding question from the agent. At most one
// exchange is open at a time.
type Exchange struct {
	ID         uint64
	Question   string
	Task       string
	Suggestion string
	Confidence float64
	Answer     string
	Resolved   bool
	Source     ResolutionSource
	OpenedAt   time.Time
	ResolvedAt time.Time
}

// Resolve marks the exchange closed with its final answer.
func (e *Exchange) Resolve(answer string, source ResolutionSource) {
	e.Answer = answer
	e.Source = source
	e.Resolved = true
	e.ResolvedAt = time.Now()
}
