// Package domain defines the core data model shared by the watcher pipeline.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// HistoryEvent is one observed unit of agent activity, parsed from a single
// line of the agent's history.jsonl. Immutable once constructed.
type HistoryEvent struct {
	Display   string         `json:"display"`
	Timestamp time.Time      `json:"-"`
	Project   string         `json:"project"`
	SessionID string         `json:"sessionId"`
	Pasted    map[string]any `json:"pastedContents,omitempty"`
}

// historyLine is the raw wire form; timestamps arrive as epoch milliseconds.
type historyLine struct {
	Display   string         `json:"display"`
	Timestamp int64          `json:"timestamp"`
	Project   string         `json:"project"`
	SessionID string         `json:"sessionId"`
	Pasted    map[string]any `json:"pastedContents"`
}

// ParseHistoryLine decodes one JSONL record into a HistoryEvent.
// A record missing display text or a timestamp fails structural validation.
func ParseHistoryLine(line []byte) (HistoryEvent, error) {
	var raw historyLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return HistoryEvent{}, fmt.Errorf("decode history line: %w", err)
	}
	if strings.TrimSpace(raw.Display) == "" {
		return HistoryEvent{}, fmt.Errorf("history line missing display text")
	}
	if raw.Timestamp <= 0 {
		return HistoryEvent{}, fmt.Errorf("history line missing timestamp")
	}

	return HistoryEvent{
		Display:   raw.Display,
		Timestamp: time.UnixMilli(raw.Timestamp),
		Project:   raw.Project,
		SessionID: raw.SessionID,
		Pasted:    raw.Pasted,
	}, nil
}

// TaskContext is a point-in-time snapshot of what the agent is supposed to be
// doing and what it has recently done. Always a fresh copy; never mutated
// after construction.
type TaskContext struct {
	Instruction    string
	RecentEvents   []HistoryEvent
	CurrentTodos   []string
	CompletedTodos []string
}
