// Package question detects when the monitored agent is addressing its human
// operator and orchestrates getting that question answered.
package question

import (
	"fmt"
	"regexp"
	"strings"
)

// Detector classifies text as "a question for the human" or not, using two
// ordered rule sets. Rhetorical exclusions are checked first and veto
// question classification; self-directed analysis phrasing reads like a
// question but is not one.
type Detector struct {
	question   []*regexp.Regexp
	rhetorical []*regexp.Regexp
}

// NewDetector compiles a detector from raw patterns (see trigger.Rules).
func NewDetector(questionPatterns, rhetoricalPatterns []string) (*Detector, error) {
	compile := func(patterns []string) ([]*regexp.Regexp, error) {
		out := make([]*regexp.Regexp, 0, len(patterns))
		for _, p := range patterns {
			re, err := regexp.Compile("(?im)" + p)
			if err != nil {
				return nil, fmt.Errorf("compile pattern %q: %w", p, err)
			}
			out = append(out, re)
		}
		return out, nil
	}

	q, err := compile(questionPatterns)
	if err != nil {
		return nil, err
	}
	r, err := compile(rhetoricalPatterns)
	if err != nil {
		return nil, err
	}
	return &Detector{question: q, rhetorical: r}, nil
}

// IsQuestion reports whether text contains a question addressed to the human.
func (d *Detector) IsQuestion(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	for _, re := range d.rhetorical {
		if re.MatchString(text) {
			return false
		}
	}
	for _, re := range d.question {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Extract returns the first line independently classified as a question. If
// no single line qualifies, the whole text is returned when it contains a
// question mark.
func (d *Detector) Extract(text string) (string, bool) {
	if !d.IsQuestion(text) {
		return "", false
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && d.IsQuestion(line) {
			return line, true
		}
	}

	if strings.Contains(text, "?") {
		return strings.TrimSpace(text), true
	}
	return "", false
}

// Context splits text into the extracted question and the remaining lines.
func (d *Detector) Context(text string) (question, remainder string) {
	q, ok := d.Extract(text)
	if !ok {
		return "", text
	}

	var rest []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != q {
			rest = append(rest, line)
		}
	}
	return q, strings.TrimSpace(strings.Join(rest, "\n"))
}
