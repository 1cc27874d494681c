package domain

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Judgment is the classifier's verdict on the agent's recent activity.
type Judgment struct {
	OnTask            bool     `json:"is_on_task"`
	Confidence        float64  `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
	DetectedIssues    []string `json:"detected_issues"`
	RecommendedAction string   `json:"recommended_action,omitempty"`

	// FailedOpen marks a judgment fabricated because the oracle was
	// unreachable or unparsable, as opposed to a genuine verdict.
	FailedOpen bool `json:"-"`
}

// FailOpenJudgment is the safe default used when the oracle is unreachable or
// its response cannot be decoded: on-task, zero confidence, so no intervention
// can fire from it.
func FailOpenJudgment(reason string) Judgment {
	return Judgment{
		OnTask:     true,
		Confidence: 0,
		Reasoning:  reason,
		FailedOpen: true,
	}
}

// Clamp forces confidence into [0,1] regardless of what the oracle returned.
func (j Judgment) Clamp() Judgment {
	if j.Confidence < 0 {
		j.Confidence = 0
	}
	if j.Confidence > 1 {
		j.Confidence = 1
	}
	return j
}

// Severity grades an intervention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityFor maps confidence to a severity band. Boundary values resolve to
// the higher band.
func SeverityFor(confidence float64) Severity {
	switch {
	case confidence >= 0.9:
		return SeverityCritical
	case confidence >= 0.8:
		return SeverityHigh
	case confidence >= 0.7:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Decision is one intervention decision. Created at most once per triggered
// analysis, consumed exactly once by delivery and logging.
type Decision struct {
	ID              string
	ShouldIntervene bool
	Severity        Severity
	Message         string
	Judgment        Judgment
	Timestamp       time.Time
}

// NewDecision builds an intervention decision for a judgment.
func NewDecision(severity Severity, message string, j Judgment) Decision {
	return Decision{
		ID:              ulid.Make().String(),
		ShouldIntervene: true,
		Severity:        severity,
		Message:         message,
		Judgment:        j,
		Timestamp:       time.Now(),
	}
}
