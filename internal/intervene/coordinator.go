// Package intervene turns off-task judgments into delivered interventions.
// Delivery is an atomic replace of the side-channel file the monitored agent
// reads its injected input from.
package intervene

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joss/hawtch/internal/domain"
	"github.com/joss/hawtch/internal/logging"
	"github.com/joss/hawtch/internal/render"
)

// Recorder persists delivered decisions. Implemented by the history store;
// nil disables persistence.
type Recorder interface {
	RecordIntervention(seq int, d domain.Decision) error
}

// Coordinator evaluates judgments against the intervention threshold and
// delivers the resulting directives.
type Coordinator struct {
	threshold float64
	sidePath  string
	auditPath string
	console   *render.Console
	log       *logging.Logger
	recorder  Recorder

	mu    sync.Mutex
	count int
}

// NewCoordinator creates a coordinator. auditPath may be empty to disable the
// audit log; recorder may be nil.
func NewCoordinator(threshold float64, sidePath, auditPath string, console *render.Console, log *logging.Logger, recorder Recorder) *Coordinator {
	return &Coordinator{
		threshold: threshold,
		sidePath:  sidePath,
		auditPath: auditPath,
		console:   console,
		log:       log,
		recorder:  recorder,
	}
}

// Count returns the number of interventions delivered so far.
func (c *Coordinator) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Evaluate decides whether a judgment warrants intervention. A decision is
// produced iff the judgment is off-task at or above the threshold, or the
// trigger was forced (suspicious phrasing bypasses the confidence gate).
func (c *Coordinator) Evaluate(j domain.Judgment, forced bool) (domain.Decision, bool) {
	if !forced && (j.OnTask || j.Confidence < c.threshold) {
		return domain.Decision{}, false
	}
	severity := domain.SeverityFor(j.Confidence)
	return domain.NewDecision(severity, buildDirective(j), j), true
}

// Deliver publishes a decision: atomic side-channel write, audit log entry,
// history record, console panel. I/O failures are reported to the operator
// and logged; they never corrupt the counter. The returned error reflects
// only the side-channel write, so callers can count delivery failures.
func (c *Coordinator) Deliver(d domain.Decision) error {
	c.mu.Lock()
	c.count++
	seq := c.count
	c.mu.Unlock()

	sideErr := writeAtomic(c.sidePath, d.Message)
	if sideErr != nil {
		c.console.Errorf("failed to write intervention file: %v", sideErr)
		c.log.Error("side_channel_write_failed", map[string]interface{}{"seq": seq}, sideErr)
	} else {
		c.console.Success(fmt.Sprintf("intervention sent via %s", c.sidePath))
	}

	if err := c.appendAudit(seq, d); err != nil {
		c.console.Errorf("failed to write audit log: %v", err)
		c.log.Error("audit_append_failed", map[string]interface{}{"seq": seq}, err)
	}

	if c.recorder != nil {
		if err := c.recorder.RecordIntervention(seq, d); err != nil {
			c.log.Error("history_record_failed", map[string]interface{}{"seq": seq}, err)
		}
	}

	c.console.Intervention(seq, d)
	c.log.Info("intervention_delivered", map[string]interface{}{
		"seq":        seq,
		"severity":   string(d.Severity),
		"confidence": d.Judgment.Confidence,
	})
	return sideErr
}

// DeliverAnswer publishes an answer to an agent question through the same
// side channel, wrapped as a low-severity on-task decision. Answers do not
// count as interventions.
func (c *Coordinator) DeliverAnswer(answer string) {
	message := "Answer to your question:\n" + answer

	if err := writeAtomic(c.sidePath, message); err != nil {
		c.console.Errorf("failed to deliver answer: %v", err)
		c.log.Error("side_channel_write_failed", nil, err)
		return
	}
	c.console.Success("answer sent via " + c.sidePath)
}

// buildDirective formats the corrective message the agent will read.
func buildDirective(j domain.Judgment) string {
	var sb strings.Builder
	sb.WriteString("STOP - Hawtch Intervention Required\n\n")
	fmt.Fprintf(&sb, "Issue detected: %s\n\n", j.Reasoning)

	if len(j.DetectedIssues) > 0 {
		sb.WriteString("Problems:\n")
		for _, issue := range j.DetectedIssues {
			fmt.Fprintf(&sb, "- %s\n", issue)
		}
		sb.WriteString("\n")
	}

	if j.RecommendedAction != "" {
		fmt.Fprintf(&sb, "Action required: %s", j.RecommendedAction)
	} else {
		sb.WriteString("Action required: Return to the original task immediately.")
	}
	return sb.String()
}

// writeAtomic replaces the contents of path in one rename, so a concurrent
// reader sees either the old message or the new one, never a partial write.
func writeAtomic(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}

// appendAudit writes one human-readable block per delivered intervention.
func (c *Coordinator) appendAudit(seq int, d domain.Decision) error {
	if c.auditPath == "" {
		return nil
	}

	f, err := os.OpenFile(c.auditPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	sb.WriteString("\n" + strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&sb, "INTERVENTION #%d\n", seq)
	fmt.Fprintf(&sb, "Timestamp: %s\n", d.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Severity: %s\n", d.Severity)
	fmt.Fprintf(&sb, "Confidence: %.1f%%\n", d.Judgment.Confidence*100)
	fmt.Fprintf(&sb, "\n%s\n", d.Message)
	sb.WriteString(strings.Repeat("=", 80) + "\n")

	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}
