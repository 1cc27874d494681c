// Package logging provides structured JSON logging for hawtch components.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return Level(s)
	default:
		return LevelInfo
	}
}

// Entry represents a structured log event
type Entry struct {
	Timestamp string                 `json:"ts"`
	Level     Level                  `json:"level"`
	Component string                 `json:"component"`
	Event     string                 `json:"event"`
	Project   string                 `json:"project,omitempty"`
	Session   string                 `json:"session,omitempty"`
	Duration  int64                  `json:"duration_ms,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// Logger provides structured logging for one component.
type Logger struct {
	component string
	project   string
	session   string
	min       Level

	mu  *sync.Mutex
	out io.Writer
}

// New creates a new logger for a component, writing to stderr.
func New(component string) *Logger {
	return &Logger{
		component: component,
		min:       ParseLevel(os.Getenv("HAWTCH_LOG_LEVEL")),
		mu:        &sync.Mutex{},
		out:       os.Stderr,
	}
}

// NewWithWriter creates a logger writing to w (used in tests).
func NewWithWriter(component string, w io.Writer) *Logger {
	l := New(component)
	l.out = w
	return l
}

// WithProject returns a copy of the logger with project context set.
func (l *Logger) WithProject(project string) *Logger {
	c := *l
	c.project = project
	return &c
}

// WithSession returns a copy of the logger with session context set.
func (l *Logger) WithSession(session string) *Logger {
	c := *l
	c.session = session
	return &c
}

// SetLevel sets the minimum emitted level.
func (l *Logger) SetLevel(min Level) {
	l.min = min
}

func (l *Logger) log(level Level, event string, extra map[string]interface{}, err error) {
	if levelRank[level] < levelRank[l.min] {
		return
	}

	e := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Component: l.component,
		Event:     event,
		Project:   l.project,
		Session:   l.session,
		Extra:     extra,
	}
	if err != nil {
		e.Error = err.Error()
	}

	data, _ := json.Marshal(e)

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))
}

// Debug logs a debug event
func (l *Logger) Debug(event string, extra map[string]interface{}) {
	l.log(LevelDebug, event, extra, nil)
}

// Info logs an info event
func (l *Logger) Info(event string, extra map[string]interface{}) {
	l.log(LevelInfo, event, extra, nil)
}

// Warn logs a warning event
func (l *Logger) Warn(event string, extra map[string]interface{}, err error) {
	l.log(LevelWarn, event, extra, err)
}

// Error logs an error event
func (l *Logger) Error(event string, extra map[string]interface{}, err error) {
	l.log(LevelError, event, extra, err)
}

// TimedEvent logs an info event with the elapsed duration since start.
func (l *Logger) TimedEvent(event string, start time.Time, extra map[string]interface{}) {
	if levelRank[LevelInfo] < levelRank[l.min] {
		return
	}

	e := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     LevelInfo,
		Component: l.component,
		Event:     event,
		Project:   l.project,
		Session:   l.session,
		Duration:  time.Since(start).Milliseconds(),
		Extra:     extra,
	}

	data, _ := json.Marshal(e)

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))
}
