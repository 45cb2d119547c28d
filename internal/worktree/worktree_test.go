package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"kyco/internal/kyco"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@kyco.dev")
	run("config", "user.name", "kyco-test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi\n"), 0o644))
	run("add", "-A")
	run("commit", "-m", "initial")
	return dir
}

func TestBranchName(t *testing.T) {
	require.Equal(t, "kyco/job-42", BranchName(kyco.JobID(42)))
}

func TestCreateAndRemoveWorktree(t *testing.T) {
	repo := initRepo(t)
	mgr := NewManager(repo)
	ctx := context.Background()

	path, branch, err := mgr.Create(ctx, kyco.JobID(1), "main")
	require.NoError(t, err)
	require.Equal(t, "kyco/job-1", branch)
	require.DirExists(t, path)

	require.NoError(t, mgr.Remove(ctx, path, true))
	require.NoDirExists(t, path)
	require.NoError(t, mgr.DeleteBranch(ctx, branch))
}

func TestCommitAndChangedFiles(t *testing.T) {
	repo := initRepo(t)
	mgr := NewManager(repo)
	ctx := context.Background()

	path, _, err := mgr.Create(ctx, kyco.JobID(2), "main")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(path, "new.txt"), []byte("content\n"), 0o644))

	dirty, err := mgr.HasUncommittedChanges(ctx, path)
	require.NoError(t, err)
	require.True(t, dirty)

	sha, err := mgr.Commit(ctx, path, "add new.txt")
	require.NoError(t, err)
	require.NotEmpty(t, sha)

	dirty, err = mgr.HasUncommittedChanges(ctx, path)
	require.NoError(t, err)
	require.False(t, dirty)

	files, err := mgr.ChangedFiles(ctx, path, "main")
	require.NoError(t, err)
	require.Equal(t, []string{"new.txt"}, files)
}

func TestCommitNoChangesReturnsEmptySHA(t *testing.T) {
	repo := initRepo(t)
	mgr := NewManager(repo)
	ctx := context.Background()

	path, _, err := mgr.Create(ctx, kyco.JobID(3), "main")
	require.NoError(t, err)

	sha, err := mgr.Commit(ctx, path, "nothing to commit")
	require.NoError(t, err)
	require.Empty(t, sha)
}

func TestCurrentBranch(t *testing.T) {
	repo := initRepo(t)
	mgr := NewManager(repo)

	branch, err := mgr.CurrentBranch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "main", branch)
}

func TestMergeFastForwardsBranchOntoBase(t *testing.T) {
	repo := initRepo(t)
	mgr := NewManager(repo)
	ctx := context.Background()

	path, branch, err := mgr.Create(ctx, kyco.JobID(4), "main")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(path, "feature.txt"), []byte("content\n"), 0o644))
	_, err = mgr.Commit(ctx, path, "add feature.txt")
	require.NoError(t, err)

	require.NoError(t, mgr.Merge(ctx, branch, "main"))
	require.FileExists(t, filepath.Join(repo, "feature.txt"))
}

func TestSlugify(t *testing.T) {
	require.Equal(t, "fix-the-login-bug", Slugify("Fix the_Login   Bug!!"))
	require.Equal(t, "", Slugify("###"))
}
