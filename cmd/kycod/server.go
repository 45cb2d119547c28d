package main

import (
	"net/http"

	"kyco/internal/config"
	"kyco/internal/control"
	"kyco/internal/events"
	"kyco/internal/executor"
	"kyco/internal/group"
	"kyco/internal/store"
	"kyco/internal/worktree"
)

func newControlHandler(cfg *config.Snapshot, st *store.Store, exec *executor.Executor, groups *group.Coordinator, wt *worktree.Manager, bus *events.Bus) http.Handler {
	srv := control.NewServer(cfg, st, exec, groups, wt, bus)
	return srv.Handler()
}
