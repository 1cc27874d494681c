package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJudgment(t *testing.T) {
	content := `{"is_on_task": false, "confidence": 0.85, "reasoning": "drifted into refactoring", "detected_issues": ["unrelated edits"], "recommended_action": "return to the bug fix"}`

	j, err := ParseJudgment(content)
	require.NoError(t, err)
	assert.False(t, j.OnTask)
	assert.Equal(t, 0.85, j.Confidence)
	assert.Equal(t, []string{"unrelated edits"}, j.DetectedIssues)
	assert.Equal(t, "return to the bug fix", j.RecommendedAction)
}

func TestParseJudgmentFencedJSON(t *testing.T) {
	content := "```json\n{\"is_on_task\": true, \"confidence\": 0.6, \"reasoning\": \"fine\"}\n```"

	j, err := ParseJudgment(content)
	require.NoError(t, err)
	assert.True(t, j.OnTask)
	assert.Equal(t, 0.6, j.Confidence)
}

func TestParseJudgmentBareFence(t *testing.T) {
	content := "```\n{\"is_on_task\": true, \"confidence\": 0.5, \"reasoning\": \"ok\"}\n```"

	_, err := ParseJudgment(content)
	assert.NoError(t, err)
}

func TestParseJudgmentClampsConfidence(t *testing.T) {
	j, err := ParseJudgment(`{"is_on_task": false, "confidence": 7.5, "reasoning": "overconfident model"}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, j.Confidence)
}

func TestParseJudgmentFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"prose", "The assistant seems fine to me."},
		{"empty", ""},
		{"missing reasoning", `{"is_on_task": false, "confidence": 0.9}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJudgment(tt.content)
			assert.Error(t, err)
		})
	}
}

func TestParseAttempt(t *testing.T) {
	a, err := ParseAttempt(`{"answer": "Use PostgreSQL", "confidence": 0.97, "reasoning": "the repo already depends on pgx"}`)
	require.NoError(t, err)
	assert.Equal(t, "Use PostgreSQL", a.Answer)
	assert.Equal(t, 0.97, a.Confidence)
}

func TestParseAttemptClamps(t *testing.T) {
	a, err := ParseAttempt(`{"answer": "yes", "confidence": -2, "reasoning": "r"}`)
	require.NoError(t, err)
	assert.Zero(t, a.Confidence)
}

func TestParseAttemptGarbage(t *testing.T) {
	_, err := ParseAttempt("maybe?")
	assert.Error(t, err)
}
