package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"kyco/internal/kerrors"
	"kyco/internal/kyco"
)

func TestCreateAndGetJob(t *testing.T) {
	s := New(t.TempDir())

	job := &kyco.Job{AgentID: "claude", Skill: "review"}
	id := s.CreateJob(job)
	require.NotZero(t, id)

	got, err := s.Get(id)
	require.NoError(t, err)
	require.Equal(t, "claude", got.AgentID)
	require.Equal(t, kyco.StatusPending, got.Status)
}

func TestGetMissingJobReturnsNotFound(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Get(kyco.JobID(999))
	require.ErrorIs(t, err, kerrors.ErrNotFound)
}

func TestSetStatusRejectsTransitionFromTerminal(t *testing.T) {
	s := New(t.TempDir())
	id := s.CreateJob(&kyco.Job{})

	require.NoError(t, s.SetStatus(id, kyco.StatusRunning))
	require.NoError(t, s.SetStatus(id, kyco.StatusDone))

	err := s.SetStatus(id, kyco.StatusFailed)
	require.ErrorIs(t, err, kerrors.ErrIllegalTransition)
}

func TestFileLockMutualExclusion(t *testing.T) {
	s := New(t.TempDir())
	a := s.CreateJob(&kyco.Job{SourceFile: "main.go"})
	b := s.CreateJob(&kyco.Job{SourceFile: "main.go"})

	holder, ok := s.AcquireFileLock("main.go", a, 1)
	require.True(t, ok)
	require.Equal(t, a, holder)

	holder, ok = s.AcquireFileLock("main.go", b, 1)
	require.False(t, ok)
	require.Equal(t, a, holder)

	s.ReleaseJobLocks(a)

	holder, ok = s.AcquireFileLock("main.go", b, 1)
	require.True(t, ok)
	require.Equal(t, b, holder)
}

func TestFileLockHonorsMaxJobsPerFile(t *testing.T) {
	s := New(t.TempDir())
	a := s.CreateJob(&kyco.Job{SourceFile: "main.go"})
	b := s.CreateJob(&kyco.Job{SourceFile: "main.go"})
	c := s.CreateJob(&kyco.Job{SourceFile: "main.go"})

	_, ok := s.AcquireFileLock("main.go", a, 2)
	require.True(t, ok)
	_, ok = s.AcquireFileLock("main.go", b, 2)
	require.True(t, ok)

	holder, ok := s.AcquireFileLock("main.go", c, 2)
	require.False(t, ok)
	require.Equal(t, a, holder)

	s.ReleaseJobLocks(a)
	_, ok = s.AcquireFileLock("main.go", c, 2)
	require.True(t, ok)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	id := s.CreateJob(&kyco.Job{AgentID: "codex", Skill: "fix"})
	require.NoError(t, s.Save())

	restored, err := Load(dir)
	require.NoError(t, err)

	got, err := restored.Get(id)
	require.NoError(t, err)
	require.Equal(t, "codex", got.AgentID)
}

func TestListByGroup(t *testing.T) {
	s := New(t.TempDir())
	groupID := s.CreateGroup(&kyco.AgentGroup{})

	a := &kyco.Job{GroupID: groupID}
	b := &kyco.Job{GroupID: groupID}
	c := &kyco.Job{}
	s.CreateJob(a)
	s.CreateJob(b)
	s.CreateJob(c)

	jobs := s.ListByGroup(groupID)
	require.Len(t, jobs, 2)
}
