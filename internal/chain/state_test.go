package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kyco/internal/config"
)

func TestDetectStatesPlainText(t *testing.T) {
	states := []config.StateDef{
		{ID: "issues_found", Patterns: []string{"issues found"}},
		{ID: "clean", Patterns: []string{"no issues"}},
	}

	detected := detectStates(states, "Review complete: issues found in 3 files.")
	require.Equal(t, []string{"issues_found"}, detected)
}

func TestDetectStatesCaseInsensitive(t *testing.T) {
	states := []config.StateDef{
		{ID: "clean", Patterns: []string{"NO ISSUES"}, CaseInsensitive: true},
	}
	detected := detectStates(states, "no issues found, all good")
	require.Equal(t, []string{"clean"}, detected)
}

func TestDetectStatesRegex(t *testing.T) {
	states := []config.StateDef{
		{ID: "score", Patterns: []string{`score: \d+`}, IsRegex: true},
	}
	detected := detectStates(states, "final score: 42")
	require.Equal(t, []string{"score"}, detected)
}

func TestDetectStatesInvalidRegexFallsBackToSubstring(t *testing.T) {
	states := []config.StateDef{
		{ID: "broken", Patterns: []string{"(unterminated"}, IsRegex: true},
	}
	detected := detectStates(states, "this is (unterminated text")
	require.Equal(t, []string{"broken"}, detected)
}

func TestDetectStatesNoOutput(t *testing.T) {
	states := []config.StateDef{{ID: "x", Patterns: []string{"x"}}}
	assert.Nil(t, detectStates(states, ""))
}

func TestDetectStatesFromMode(t *testing.T) {
	skill := config.SkillConfig{OutputStates: []string{"issues_found", "clean"}}

	detected := detectStatesFromMode(skill, `Setting state to issues_found after review.`)
	require.Equal(t, []string{"issues_found"}, detected)

	detected = detectStatesFromMode(skill, `state: clean`)
	require.Equal(t, []string{"clean"}, detected)
}

func TestShouldStepRunSkipTakesPrecedence(t *testing.T) {
	step := config.ChainStep{
		TriggerOn: []string{"issues_found"},
		SkipOn:    []string{"clean"},
	}
	assert.False(t, shouldStepRun(step, []string{"clean", "issues_found"}))
}

func TestShouldStepRunTriggerRequiresMatch(t *testing.T) {
	step := config.ChainStep{TriggerOn: []string{"issues_found"}}
	assert.False(t, shouldStepRun(step, nil))
	assert.False(t, shouldStepRun(step, []string{"clean"}))
	assert.True(t, shouldStepRun(step, []string{"issues_found"}))
}

func TestShouldStepRunNoConditionAlwaysRuns(t *testing.T) {
	assert.True(t, shouldStepRun(config.ChainStep{}, nil))
}
