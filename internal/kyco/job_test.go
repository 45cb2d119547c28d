package kyco

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusDone, StatusFailed, StatusRejected, StatusMerged}
	for _, s := range terminal {
		require.Truef(t, s.Terminal(), "%s should be terminal", s)
	}

	nonTerminal := []Status{StatusPending, StatusQueued, StatusBlocked, StatusRunning}
	for _, s := range nonTerminal {
		require.Falsef(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestJobCloneIsIndependent(t *testing.T) {
	job := &Job{
		ID:               1,
		ChangedFiles:     []string{"a.go", "b.go"},
		ChainStepHistory: []ChainStepRecord{{StepIndex: 0, Skill: "review"}},
		Result:           &Result{Title: "ok"},
	}

	clone := job.Clone()
	clone.ChangedFiles[0] = "mutated.go"
	clone.ChainStepHistory[0].Skill = "mutated"
	clone.Result.Title = "mutated"

	require.Equal(t, "a.go", job.ChangedFiles[0])
	require.Equal(t, "review", job.ChainStepHistory[0].Skill)
	require.Equal(t, "ok", job.Result.Title)
}

func TestJobCloneNilSlicesAndResult(t *testing.T) {
	job := &Job{ID: 2}
	clone := job.Clone()
	require.Nil(t, clone.Result)
	require.Empty(t, clone.ChangedFiles)
	require.Empty(t, clone.ChainStepHistory)
}
