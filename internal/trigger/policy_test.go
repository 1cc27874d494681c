package trigger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCadenceFiresEveryNth(t *testing.T) {
	p := NewPolicy(3, DefaultRules().SuspiciousPhrases)

	var fired []int
	for i := 1; i <= 10; i++ {
		r := p.Evaluate("working on the task", true)
		if r.Fire {
			assert.False(t, r.Forced)
			fired = append(fired, i)
		}
	}
	assert.Equal(t, []int{3, 6, 9}, fired)
}

func TestSuspiciousPhraseFiresImmediately(t *testing.T) {
	p := NewPolicy(3, DefaultRules().SuspiciousPhrases)

	r := p.Evaluate("I'll monitor the logs for errors", true)
	assert.True(t, r.Fire)
	assert.True(t, r.Forced)
}

func TestSuspiciousMatchIsCaseInsensitive(t *testing.T) {
	p := NewPolicy(5, DefaultRules().SuspiciousPhrases)

	r := p.Evaluate("I WILL CHECK this again LATER ON", true)
	assert.True(t, r.Forced)
}

func TestNoTriggerWithoutInstruction(t *testing.T) {
	p := NewPolicy(1, DefaultRules().SuspiciousPhrases)

	r := p.Evaluate("I'll monitor everything", false)
	assert.False(t, r.Fire)
	assert.False(t, r.Forced)
}

func TestSuspiciousEventStillAdvancesCounter(t *testing.T) {
	p := NewPolicy(3, DefaultRules().SuspiciousPhrases)

	p.Evaluate("normal", true)                // 1
	r := p.Evaluate("I'll watch for it", true) // 2, forced
	assert.True(t, r.Forced)
	r = p.Evaluate("normal again", true) // 3, cadence
	assert.True(t, r.Fire)
	assert.False(t, r.Forced)
}

func TestObserveAdvancesCadence(t *testing.T) {
	p := NewPolicy(3, DefaultRules().SuspiciousPhrases)

	p.Observe() // handled elsewhere, still counts
	r := p.Evaluate("normal", true)
	assert.False(t, r.Fire)
	r = p.Evaluate("normal again", true)
	assert.True(t, r.Fire, "third event fires the cadence")
}

func TestLoadRulesMissingFile(t *testing.T) {
	r, err := LoadRules(filepath.Join(t.TempDir(), "rules.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRules(), r)
}

func TestLoadRulesOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "suspicious_phrases:\n  - \"i'll get to it\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	r, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"i'll get to it"}, r.SuspiciousPhrases)
	// Unset lists fall back to defaults.
	assert.Equal(t, DefaultRules().QuestionPatterns, r.QuestionPatterns)
}

func TestLoadRulesBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\t nope ["), 0644))

	_, err := LoadRules(path)
	assert.Error(t, err)
}
