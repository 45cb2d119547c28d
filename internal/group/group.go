// Package group implements the multi-agent group coordinator (C7): it
// fans a single request out to several agents as sibling jobs, then walks
// the group through Running -> Comparing -> Merged/Discarded once every
// sibling reaches a terminal status (spec.md §4.7).
package group

import (
	"context"
	"fmt"
	"log/slog"

	"kyco/internal/kerrors"
	"kyco/internal/kyco"
	"kyco/internal/store"
	"kyco/internal/worktree"
)

// Coordinator advances one AgentGroup's state machine.
type Coordinator struct {
	store *store.Store
	wt    *worktree.Manager
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(st *store.Store, wt *worktree.Manager) *Coordinator {
	return &Coordinator{store: st, wt: wt}
}

// Fan creates one sibling job per agentID from template, groups them
// under a fresh AgentGroup, and returns the group id plus the created job
// ids in agentID order.
func (c *Coordinator) Fan(template kyco.Job, agentIDs []string) (kyco.GroupID, []kyco.JobID) {
	group := &kyco.AgentGroup{Status: kyco.GroupRunning}
	groupID := c.store.CreateGroup(group)

	ids := make([]kyco.JobID, 0, len(agentIDs))
	for _, agentID := range agentIDs {
		job := template.Clone()
		job.AgentID = agentID
		job.GroupID = groupID
		id := c.store.CreateJob(&job)
		ids = append(ids, id)
	}

	group.JobIDs = ids
	return groupID, ids
}

// Poll checks whether every sibling in groupID has reached a terminal
// status and, if so, advances the group from Running to Comparing so the
// GUI can present the side-by-side diff view. The transition is persisted
// to the live group record, not just returned to the caller.
func (c *Coordinator) Poll(groupID kyco.GroupID) (kyco.AgentGroup, error) {
	g, err := c.store.GetGroup(groupID)
	if err != nil {
		return kyco.AgentGroup{}, err
	}
	if g.Status != kyco.GroupRunning {
		return g, nil
	}

	allTerminal := true
	for _, id := range g.JobIDs {
		job, err := c.store.Get(id)
		if err != nil {
			return g, err
		}
		if !job.Status.Terminal() {
			allTerminal = false
			break
		}
	}
	if !allTerminal {
		return g, nil
	}

	return c.store.MutateGroup(groupID, func(g *kyco.AgentGroup) error {
		if g.Status == kyco.GroupRunning {
			g.Status = kyco.GroupComparing
		}
		return nil
	})
}

// Select marks jobID as the chosen result of groupID, merges its worktree
// (if any) back onto its base branch, and discards every sibling's
// worktree. This is the only path by which a grouped job's mutations
// reach the user's working tree (spec.md §4.7 "accept" action).
func (c *Coordinator) Select(groupID kyco.GroupID, jobID kyco.JobID) error {
	g, err := c.store.GetGroup(groupID)
	if err != nil {
		return err
	}
	if g.Status != kyco.GroupComparing {
		return fmt.Errorf("group %d not ready to select (status=%s): %w", groupID, g.Status, kerrors.ErrIllegalTransition)
	}

	found := false
	for _, id := range g.JobIDs {
		if id == jobID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("job %d is not a member of group %d: %w", jobID, groupID, kerrors.ErrInvalidRequest)
	}

	winner, err := c.store.Get(jobID)
	if err != nil {
		return err
	}
	if c.wt != nil && winner.GitWorktreePath != "" {
		if err := c.wt.Merge(context.Background(), winner.BranchName, winner.BaseBranch); err != nil {
			return fmt.Errorf("group: merge winning job %d onto %s: %w", jobID, winner.BaseBranch, err)
		}
	}

	for _, id := range g.JobIDs {
		job, err := c.store.Get(id)
		if err != nil {
			return err
		}
		status := kyco.StatusRejected
		if id == jobID {
			status = kyco.StatusMerged
		}
		if err := c.store.SetStatus(id, status); err != nil {
			return err
		}
		c.disposeWorktree(job, status == kyco.StatusMerged)
	}

	_, err = c.store.MutateGroup(groupID, func(g *kyco.AgentGroup) error {
		g.SelectedJobID = &jobID
		g.Status = kyco.GroupMerged
		return nil
	})
	return err
}

// Discard rejects every sibling in groupID without selecting a winner
// (spec.md §4.7 "reject all" action).
func (c *Coordinator) Discard(groupID kyco.GroupID) error {
	g, err := c.store.GetGroup(groupID)
	if err != nil {
		return err
	}
	for _, id := range g.JobIDs {
		job, err := c.store.Get(id)
		if err != nil {
			return err
		}
		if err := c.store.SetStatus(id, kyco.StatusRejected); err != nil {
			return err
		}
		c.disposeWorktree(job, false)
	}

	_, err = c.store.MutateGroup(groupID, func(g *kyco.AgentGroup) error {
		g.Status = kyco.GroupDiscarded
		return nil
	})
	return err
}

// disposeWorktree removes a sibling job's isolated worktree once the
// group has decided its fate. A merged job's worktree is removed without
// --force and its branch is kept so its commits remain reachable; every
// other sibling's worktree is force-removed and its branch deleted.
func (c *Coordinator) disposeWorktree(job kyco.Job, merged bool) {
	if c.wt == nil || job.GitWorktreePath == "" {
		return
	}
	ctx := context.Background()
	if err := c.wt.Remove(ctx, job.GitWorktreePath, !merged); err != nil {
		slog.Default().Warn("group: worktree remove failed", "job_id", job.ID, "err", err)
		return
	}
	if !merged && job.BranchName != "" {
		if err := c.wt.DeleteBranch(ctx, job.BranchName); err != nil {
			slog.Default().Warn("group: branch delete failed", "job_id", job.ID, "err", err)
		}
	}
}
