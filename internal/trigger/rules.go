// Package trigger decides when the classifier should be invoked.
package trigger

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules holds the hand-tuned phrase and pattern sets used by the trigger
// policy and the question detector. They are data, not code: a rules.yaml in
// the hawtch home overrides any of the three lists.
type Rules struct {
	// SuspiciousPhrases are case-insensitive substrings that indicate the
	// agent is deferring work it cannot actually do later.
	SuspiciousPhrases []string `yaml:"suspicious_phrases"`

	// QuestionPatterns are regexps indicating text addressed to the human.
	QuestionPatterns []string `yaml:"question_patterns"`

	// RhetoricalPatterns are regexps for self-directed analysis phrasing;
	// they are checked first and veto question classification.
	RhetoricalPatterns []string `yaml:"rhetorical_patterns"`
}

// DefaultRules returns the compiled-in rule sets.
func DefaultRules() Rules {
	return Rules{
		SuspiciousPhrases: []string{
			"i'll monitor",
			"i will monitor",
			"i'll check",
			"i will check",
			"later on",
			"in the future",
			"i'll watch",
			"i will watch",
			"i'll track",
			"i will track",
			"continuously",
			"ongoing",
		},
		QuestionPatterns: []string{
			`\?$`,
			`^Should I\b`,
			`^Which\b`,
			`^Do you want`,
			`^Would you like`,
			`^Can I\b`,
			`^May I\b`,
			`^Could you\b`,
			`^Would you\b`,
			`^Please (?:confirm|choose|select|specify|clarify)`,
			`\bconfirm\?`,
			`\bchoose\b.*\?`,
			`\bprefer\b.*\?`,
			`\bor\b.*\?`,
		},
		RhetoricalPatterns: []string{
			`^What (?:is|are|was|were|does|did)`,
			`^How (?:does|did|can|should) (?:this|that|it)`,
			`^Why (?:is|are|does|did)`,
			`^Let me (?:check|see|verify|analyze)`,
		},
	}
}

// LoadRules reads rules from path, filling any empty list from the defaults.
// A missing file yields the defaults without error.
func LoadRules(path string) (Rules, error) {
	defaults := DefaultRules()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return defaults, fmt.Errorf("read rules file: %w", err)
	}

	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return defaults, fmt.Errorf("parse rules file: %w", err)
	}

	if len(r.SuspiciousPhrases) == 0 {
		r.SuspiciousPhrases = defaults.SuspiciousPhrases
	}
	if len(r.QuestionPatterns) == 0 {
		r.QuestionPatterns = defaults.QuestionPatterns
	}
	if len(r.RhetoricalPatterns) == 0 {
		r.RhetoricalPatterns = defaults.RhetoricalPatterns
	}
	return r, nil
}
