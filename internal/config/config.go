// Package config provides centralized configuration management.
// All knobs come from HAWTCH_* environment variables, are validated once at
// startup, and are immutable for the process lifetime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Settings holds the full hawtch configuration.
type Settings struct {
	// OracleBaseURL is the OpenAI-compatible endpoint (HAWTCH_ORACLE_URL)
	OracleBaseURL string

	// OracleModel is the classifier model identifier (HAWTCH_ORACLE_MODEL)
	OracleModel string

	// OracleAPIKey is the API key, optional for local endpoints (HAWTCH_ORACLE_KEY)
	OracleAPIKey string

	// OracleTimeout bounds each classifier request (HAWTCH_ORACLE_TIMEOUT_SECONDS)
	OracleTimeout time.Duration

	// HistoryPath is the agent activity log to tail (HAWTCH_HISTORY_PATH)
	HistoryPath string

	// InterventionPath is the side-channel delivery file (HAWTCH_INTERVENTION_PATH)
	InterventionPath string

	// PollInterval is the tail poll cadence (HAWTCH_POLL_SECONDS)
	PollInterval time.Duration

	// WindowSize is the context buffer capacity in events (HAWTCH_WINDOW_SIZE)
	WindowSize int

	// CheckFrequency triggers analysis every Nth event (HAWTCH_CHECK_FREQUENCY)
	CheckFrequency int

	// InterventionThreshold is the minimum off-task confidence to act on (HAWTCH_INTERVENTION_THRESHOLD)
	InterventionThreshold float64

	// AnswerThreshold is the minimum confidence to auto-answer a question (HAWTCH_ANSWER_THRESHOLD)
	AnswerThreshold float64

	// TelegramToken enables the human relay when set (HAWTCH_TELEGRAM_TOKEN)
	TelegramToken string

	// TelegramChatID is the known recipient, discovered on first contact if empty (HAWTCH_TELEGRAM_CHAT_ID)
	TelegramChatID string

	// RelayTimeout bounds the wait for a human answer (HAWTCH_RELAY_TIMEOUT_SECONDS)
	RelayTimeout time.Duration

	// ProjectFilter restricts analysis to matching project ids, doublestar glob (HAWTCH_PROJECT_FILTER)
	ProjectFilter string

	// MetricsAddr serves Prometheus-style metrics when set (HAWTCH_METRICS_ADDR)
	MetricsAddr string

	// LogLevel is the minimum structured log level (HAWTCH_LOG_LEVEL)
	LogLevel string
}

// Load reads settings from the environment and applies defaults.
// The result is not validated; call Validate before use.
func Load() *Settings {
	return &Settings{
		OracleBaseURL:         getEnvDefault("HAWTCH_ORACLE_URL", "http://localhost:1234/v1"),
		OracleModel:           getEnvDefault("HAWTCH_ORACLE_MODEL", "devstral-latest"),
		OracleAPIKey:          os.Getenv("HAWTCH_ORACLE_KEY"),
		OracleTimeout:         time.Duration(getEnvInt("HAWTCH_ORACLE_TIMEOUT_SECONDS", 30)) * time.Second,
		HistoryPath:           getEnvDefault("HAWTCH_HISTORY_PATH", filepath.Join(homeDir(), ".claude", "history.jsonl")),
		InterventionPath:      getEnvDefault("HAWTCH_INTERVENTION_PATH", "/tmp/hawtch-intervention.txt"),
		PollInterval:          time.Duration(getEnvInt("HAWTCH_POLL_SECONDS", 5)) * time.Second,
		WindowSize:            getEnvInt("HAWTCH_WINDOW_SIZE", 10),
		CheckFrequency:        getEnvInt("HAWTCH_CHECK_FREQUENCY", 3),
		InterventionThreshold: getEnvFloat("HAWTCH_INTERVENTION_THRESHOLD", 0.7),
		AnswerThreshold:       getEnvFloat("HAWTCH_ANSWER_THRESHOLD", 0.95),
		TelegramToken:         os.Getenv("HAWTCH_TELEGRAM_TOKEN"),
		TelegramChatID:        os.Getenv("HAWTCH_TELEGRAM_CHAT_ID"),
		RelayTimeout:          time.Duration(getEnvInt("HAWTCH_RELAY_TIMEOUT_SECONDS", 300)) * time.Second,
		ProjectFilter:         os.Getenv("HAWTCH_PROJECT_FILTER"),
		MetricsAddr:           os.Getenv("HAWTCH_METRICS_ADDR"),
		LogLevel:              getEnvDefault("HAWTCH_LOG_LEVEL", "info"),
	}
}

// Validate checks invariants that would make the monitor misbehave.
// A validation error is the only fatal error class in hawtch.
func (s *Settings) Validate() error {
	if s.OracleBaseURL == "" {
		return fmt.Errorf("oracle URL must not be empty")
	}
	if s.OracleModel == "" {
		return fmt.Errorf("oracle model must not be empty")
	}
	if s.HistoryPath == "" {
		return fmt.Errorf("history path must not be empty")
	}
	if s.InterventionPath == "" {
		return fmt.Errorf("intervention path must not be empty")
	}
	if s.WindowSize < 1 {
		return fmt.Errorf("window size must be >= 1, got %d", s.WindowSize)
	}
	if s.CheckFrequency < 1 {
		return fmt.Errorf("check frequency must be >= 1, got %d", s.CheckFrequency)
	}
	if s.PollInterval < time.Second {
		return fmt.Errorf("poll interval must be >= 1s, got %s", s.PollInterval)
	}
	if s.InterventionThreshold < 0 || s.InterventionThreshold > 1 {
		return fmt.Errorf("intervention threshold must be in [0,1], got %g", s.InterventionThreshold)
	}
	if s.AnswerThreshold < 0 || s.AnswerThreshold > 1 {
		return fmt.Errorf("answer threshold must be in [0,1], got %g", s.AnswerThreshold)
	}
	if s.RelayTimeout <= 0 {
		return fmt.Errorf("relay timeout must be positive, got %s", s.RelayTimeout)
	}
	if s.ProjectFilter != "" {
		if !doublestar.ValidatePattern(s.ProjectFilter) {
			return fmt.Errorf("invalid project filter pattern: %q", s.ProjectFilter)
		}
	}
	return nil
}

// RelayEnabled reports whether the Telegram relay is configured.
func (s *Settings) RelayEnabled() bool {
	return s.TelegramToken != ""
}

// MatchesProject reports whether an event's project id passes the filter.
// An empty filter matches everything.
func (s *Settings) MatchesProject(project string) bool {
	if s.ProjectFilter == "" {
		return true
	}
	ok, err := doublestar.Match(s.ProjectFilter, project)
	if err != nil {
		return true
	}
	return ok
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}

// Paths holds standard hawtch directory paths.
type Paths struct {
	// Home is the hawtch home directory (~/.hawtch)
	Home string

	// RulesFile is the optional trigger rules override (~/.hawtch/rules.yaml)
	RulesFile string

	// HistoryDB is the intervention history database (~/.hawtch/hawtch.db)
	HistoryDB string

	// AuditLog is the append-only intervention audit log (~/.hawtch/interventions.log)
	AuditLog string
}

// GetPaths returns the standard paths, honoring HAWTCH_HOME.
func GetPaths() Paths {
	home := os.Getenv("HAWTCH_HOME")
	if home == "" {
		home = filepath.Join(homeDir(), ".hawtch")
	}
	return Paths{
		Home:      home,
		RulesFile: filepath.Join(home, "rules.yaml"),
		HistoryDB: filepath.Join(home, "hawtch.db"),
		AuditLog:  filepath.Join(home, "interventions.log"),
	}
}

// EnsureHome creates the hawtch home directory if missing.
func EnsureHome() (Paths, error) {
	p := GetPaths()
	if err := os.MkdirAll(p.Home, 0755); err != nil {
		return p, fmt.Errorf("create hawtch home: %w", err)
	}
	return p, nil
}
