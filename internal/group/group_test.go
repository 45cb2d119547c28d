package group

import (
	"testing"

	"github.com/stretchr/testify/require"

	"kyco/internal/kerrors"
	"kyco/internal/kyco"
	"kyco/internal/store"
)

func TestFanCreatesOneJobPerAgent(t *testing.T) {
	st := store.New(t.TempDir())
	c := NewCoordinator(st, nil)

	groupID, ids := c.Fan(kyco.Job{Skill: "review"}, []string{"claude", "codex"})
	require.Len(t, ids, 2)

	g, err := st.GetGroup(groupID)
	require.NoError(t, err)
	require.Equal(t, kyco.GroupRunning, g.Status)
	require.ElementsMatch(t, ids, g.JobIDs)
}

func TestPollAdvancesToComparingWhenAllTerminal(t *testing.T) {
	st := store.New(t.TempDir())
	c := NewCoordinator(st, nil)

	groupID, ids := c.Fan(kyco.Job{}, []string{"claude", "codex"})

	g, err := c.Poll(groupID)
	require.NoError(t, err)
	require.Equal(t, kyco.GroupRunning, g.Status)

	for _, id := range ids {
		require.NoError(t, st.SetStatus(id, kyco.StatusRunning))
		require.NoError(t, st.SetStatus(id, kyco.StatusDone))
	}

	g, err = c.Poll(groupID)
	require.NoError(t, err)
	require.Equal(t, kyco.GroupComparing, g.Status)
}

func TestSelectMergesOneAndRejectsSiblings(t *testing.T) {
	st := store.New(t.TempDir())
	c := NewCoordinator(st, nil)

	groupID, ids := c.Fan(kyco.Job{}, []string{"claude", "codex"})
	for _, id := range ids {
		require.NoError(t, st.SetStatus(id, kyco.StatusRunning))
		require.NoError(t, st.SetStatus(id, kyco.StatusDone))
	}
	_, err := c.Poll(groupID)
	require.NoError(t, err)

	stored, err := st.GetGroup(groupID)
	require.NoError(t, err)
	require.Equal(t, kyco.GroupComparing, stored.Status)

	require.NoError(t, c.Select(groupID, ids[0]))

	winner, err := st.Get(ids[0])
	require.NoError(t, err)
	require.Equal(t, kyco.StatusMerged, winner.Status)

	loser, err := st.Get(ids[1])
	require.NoError(t, err)
	require.Equal(t, kyco.StatusRejected, loser.Status)

	final, err := st.GetGroup(groupID)
	require.NoError(t, err)
	require.Equal(t, kyco.GroupMerged, final.Status)
	require.NotNil(t, final.SelectedJobID)
	require.Equal(t, ids[0], *final.SelectedJobID)
}

func TestSelectRejectsUnknownJob(t *testing.T) {
	st := store.New(t.TempDir())
	c := NewCoordinator(st, nil)

	groupID, ids := c.Fan(kyco.Job{}, []string{"claude"})
	for _, id := range ids {
		require.NoError(t, st.SetStatus(id, kyco.StatusRunning))
		require.NoError(t, st.SetStatus(id, kyco.StatusDone))
	}
	_, err := c.Poll(groupID)
	require.NoError(t, err)

	err = c.Select(groupID, kyco.JobID(9999))
	require.ErrorIs(t, err, kerrors.ErrInvalidRequest)
}

func TestDiscardRejectsAllSiblings(t *testing.T) {
	st := store.New(t.TempDir())
	c := NewCoordinator(st, nil)

	_, ids := c.Fan(kyco.Job{}, []string{"claude", "codex"})
	groupID, discarded := c.Fan(kyco.Job{}, []string{"claude"})

	require.NoError(t, c.Discard(groupID))

	for _, id := range discarded {
		job, err := st.Get(id)
		require.NoError(t, err)
		require.Equal(t, kyco.StatusRejected, job.Status)
	}
	g, err := st.GetGroup(groupID)
	require.NoError(t, err)
	require.Equal(t, kyco.GroupDiscarded, g.Status)

	for _, id := range ids {
		job, err := st.Get(id)
		require.NoError(t, err)
		require.Equal(t, kyco.StatusPending, job.Status) // siblings of the other group are untouched
	}
}
