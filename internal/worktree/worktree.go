// Package worktree implements the git worktree manager (C8): it isolates
// a job's mutations in its own `git worktree add` checkout so a rejected
// or failed job's changes never touch the user's working tree.
//
// Grounded on the teacher's pkg/harness/git/manager.go (Manager,
// slugify, Commit/GetDiff/HasUncommittedChanges), extended from
// branch-only operations to worktree add/remove per spec.md §4.8, and
// serialized through a gofrs/flock-backed mutex per workspace the same
// way the pack's gastown crew manager locks around mutating operations.
package worktree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gofrs/flock"

	"kyco/internal/kerrors"
	"kyco/internal/kyco"
)

// Manager creates and tears down per-job worktrees rooted under
// <repoRoot>/.kyco/worktrees.
type Manager struct {
	repoRoot string
	lock     *flock.Flock
}

// NewManager constructs a Manager for the git repository at repoRoot.
func NewManager(repoRoot string) *Manager {
	lockPath := filepath.Join(repoRoot, ".kyco", "worktree.lock")
	return &Manager{repoRoot: repoRoot, lock: flock.New(lockPath)}
}

// BranchName returns the branch a job's worktree is created on
// (spec.md §4.8: "kyco/job-<id>").
func BranchName(id kyco.JobID) string {
	return fmt.Sprintf("kyco/job-%d", id)
}

// Create adds a new worktree and branch for job, based on baseBranch (the
// branch checked out in repoRoot at call time if baseBranch is empty).
// Operations are serialized via an advisory file lock since `git worktree
// add` mutates shared repository metadata under .git/worktrees.
func (m *Manager) Create(ctx context.Context, id kyco.JobID, baseBranch string) (worktreePath, branch string, err error) {
	if err := m.lock.Lock(); err != nil {
		return "", "", fmt.Errorf("%w: lock worktree dir: %v", kerrors.ErrGitError, err)
	}
	defer m.lock.Unlock()

	branch = BranchName(id)
	worktreePath = filepath.Join(m.repoRoot, ".kyco", "worktrees", fmt.Sprintf("job-%d", id))

	if err := os.MkdirAll(filepath.Dir(worktreePath), 0o755); err != nil {
		return "", "", fmt.Errorf("%w: mkdir worktree parent: %v", kerrors.ErrGitError, err)
	}

	args := []string{"worktree", "add", "-b", branch, worktreePath}
	if baseBranch != "" {
		args = append(args, baseBranch)
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.repoRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", "", fmt.Errorf("%w: worktree add: %s: %v", kerrors.ErrGitError, strings.TrimSpace(string(out)), err)
	}

	return worktreePath, branch, nil
}

// Remove deletes a job's worktree. force passes --force to `git worktree
// remove`, so a worktree with uncommitted changes is removed too. The
// branch is never deleted here; see DeleteBranch.
func (m *Manager) Remove(ctx context.Context, worktreePath string, force bool) error {
	if err := m.lock.Lock(); err != nil {
		return fmt.Errorf("%w: lock worktree dir: %v", kerrors.ErrGitError, err)
	}
	defer m.lock.Unlock()

	args := []string{"worktree", "remove", worktreePath}
	if force {
		args = append(args, "--force")
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.repoRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: worktree remove: %s: %v", kerrors.ErrGitError, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// CurrentBranch returns the branch checked out in the main working copy,
// used as the default base for a job that doesn't name one explicitly.
func (m *Manager) CurrentBranch(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = m.repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: rev-parse --abbrev-ref HEAD: %s: %v", kerrors.ErrGitError, strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Merge fast-forwards (or three-way merges) branch onto baseBranch from
// the main working copy (spec.md §4.8 Merge). On conflict the merge is
// aborted and the worktree is left intact for manual resolution.
func (m *Manager) Merge(ctx context.Context, branch, baseBranch string) error {
	if err := m.lock.Lock(); err != nil {
		return fmt.Errorf("%w: lock worktree dir: %v", kerrors.ErrGitError, err)
	}
	defer m.lock.Unlock()

	checkout := exec.CommandContext(ctx, "git", "checkout", baseBranch)
	checkout.Dir = m.repoRoot
	if out, err := checkout.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: checkout %s: %s: %v", kerrors.ErrGitError, baseBranch, strings.TrimSpace(string(out)), err)
	}

	merge := exec.CommandContext(ctx, "git", "merge", "--no-edit", branch)
	merge.Dir = m.repoRoot
	if out, err := merge.CombinedOutput(); err != nil {
		abort := exec.CommandContext(ctx, "git", "merge", "--abort")
		abort.Dir = m.repoRoot
		_ = abort.Run()
		return fmt.Errorf("%w: merge %s onto %s: %s: %v", kerrors.ErrGitError, branch, baseBranch, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// DeleteBranch removes branch after its worktree is gone.
func (m *Manager) DeleteBranch(ctx context.Context, branch string) error {
	cmd := exec.CommandContext(ctx, "git", "branch", "-D", branch)
	cmd.Dir = m.repoRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: branch delete: %s: %v", kerrors.ErrGitError, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Commit stages and commits all changes in worktreePath, mirroring the
// teacher's add-all/status/commit/rev-parse sequence. It returns "" with
// no error if there were no changes to commit.
func (m *Manager) Commit(ctx context.Context, worktreePath, message string) (sha string, err error) {
	addCmd := exec.CommandContext(ctx, "git", "add", "-A")
	addCmd.Dir = worktreePath
	if out, err := addCmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("%w: stage changes: %s: %v", kerrors.ErrGitError, strings.TrimSpace(string(out)), err)
	}

	statusCmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	statusCmd.Dir = worktreePath
	statusOut, err := statusCmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: check status: %v", kerrors.ErrGitError, err)
	}
	if strings.TrimSpace(string(statusOut)) == "" {
		return "", nil
	}

	commitCmd := exec.CommandContext(ctx, "git", "commit", "-m", message)
	commitCmd.Dir = worktreePath
	if out, err := commitCmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("%w: commit: %s: %v", kerrors.ErrGitError, strings.TrimSpace(string(out)), err)
	}

	shaCmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	shaCmd.Dir = worktreePath
	shaOut, err := shaCmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: rev-parse: %v", kerrors.ErrGitError, err)
	}
	return strings.TrimSpace(string(shaOut)), nil
}

// ChangedFiles lists the files a worktree's commits diverge from
// baseBranch by (spec.md §4.8: surfaced to the GUI as a job's changed
// file set).
func (m *Manager) ChangedFiles(ctx context.Context, worktreePath, baseBranch string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", baseBranch+"...HEAD")
	cmd.Dir = worktreePath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: diff --name-only: %s: %v", kerrors.ErrGitError, strings.TrimSpace(string(out)), err)
	}
	return splitNonEmptyLines(string(out)), nil
}

// HasUncommittedChanges reports whether worktreePath has a dirty tree.
func (m *Manager) HasUncommittedChanges(ctx context.Context, worktreePath string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "status", "--short")
	cmd.Dir = worktreePath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return false, fmt.Errorf("%w: status: %v", kerrors.ErrGitError, err)
	}
	return strings.TrimSpace(string(out)) != "", nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(strings.TrimSpace(s), "\n") {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

var slugInvalidChars = regexp.MustCompile(`[^a-z0-9\s_-]`)
var slugWhitespace = regexp.MustCompile(`[\s_]+`)
var slugDashes = regexp.MustCompile(`-+`)

// slugify matches the teacher's three-pass slug normalization, used when
// naming a worktree from a job's description for the GUI's display label.
func slugify(s string) string {
	s = strings.ToLower(s)
	s = slugInvalidChars.ReplaceAllString(s, "")
	s = slugWhitespace.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Slugify exposes slugify for callers building a worktree's display label.
func Slugify(s string) string { return slugify(s) }
