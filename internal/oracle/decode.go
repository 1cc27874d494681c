package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joss/hawtch/internal/domain"
)

// stripFences removes a surrounding markdown code fence, with or without a
// language tag. Local models wrap JSON this way often enough that the strict
// decoder tolerates it.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```")
	if idx := strings.Index(content, "\n"); idx >= 0 {
		// Drop the language tag line (e.g. "json").
		first := strings.TrimSpace(content[:idx])
		if first == "" || !strings.ContainsAny(first, "{}") {
			content = content[idx+1:]
		}
	}
	if idx := strings.LastIndex(content, "```"); idx >= 0 {
		content = content[:idx]
	}
	return strings.TrimSpace(content)
}

// ParseJudgment strictly decodes a classifier response. Decoding is isolated
// from decision logic: callers map a parse failure to the fail-open default.
func ParseJudgment(content string) (domain.Judgment, error) {
	var j domain.Judgment
	if err := json.Unmarshal([]byte(stripFences(content)), &j); err != nil {
		return domain.Judgment{}, fmt.Errorf("decode judgment: %w", err)
	}
	if strings.TrimSpace(j.Reasoning) == "" {
		return domain.Judgment{}, fmt.Errorf("judgment missing reasoning")
	}
	return j.Clamp(), nil
}

// ParseAttempt strictly decodes an answer-oracle response.
func ParseAttempt(content string) (domain.AnswerAttempt, error) {
	var a domain.AnswerAttempt
	if err := json.Unmarshal([]byte(stripFences(content)), &a); err != nil {
		return domain.AnswerAttempt{}, fmt.Errorf("decode answer: %w", err)
	}
	if a.Confidence < 0 {
		a.Confidence = 0
	}
	if a.Confidence > 1 {
		a.Confidence = 1
	}
	return a, nil
}
