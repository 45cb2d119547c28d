// Package executor implements the job scheduler (C5): an admission
// supervisor goroutine plus one runner goroutine per admitted job,
// bounded by Settings.MaxConcurrentJobs and Settings.MaxJobsPerFile
// (spec.md §4.2, §5).
//
// The StepResult/ExecutorRegistry shape is grounded on the teacher's
// internal/workflows/runtime/executor.go (StepStatus enum, StepExecutor
// interface, StepResult{Status, Output, Error}), adapted here from
// "workflow steps" to "job runs": Executor plays the role of that file's
// ExecutorRegistry, dispatching by agent SDK instead of by step type.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kyco/internal/agent"
	"kyco/internal/bridge"
	"kyco/internal/chain"
	"kyco/internal/config"
	"kyco/internal/events"
	"kyco/internal/kerrors"
	"kyco/internal/kyco"
	"kyco/internal/store"
	"kyco/internal/trailer"
	"kyco/internal/worktree"
)

// RunStatus is the terminal outcome of one runner goroutine, analogous to
// the teacher's StepStatus enum (Completed/Failed/...).
type RunStatus string

const (
	RunDone    RunStatus = "done"
	RunFailed  RunStatus = "failed"
	RunAborted RunStatus = "aborted"
)

// RunResult is what a runner goroutine reports back to the supervisor,
// shaped after the teacher's StepResult{Status, Output, Error}.
type RunResult struct {
	Status       RunStatus
	FullResponse string
	ChangedFiles []string
	Usage        bridge.Usage
	DurationMS   int64
	Err          error
}

// BridgeQuerier is the subset of *bridge.Client the executor depends on,
// narrowed to an interface so tests can supply a fake (spec.md §8: seed
// scenarios run against hand-written fakes, no real sidecar).
type BridgeQuerier interface {
	Query(ctx context.Context, req bridge.QueryRequest) (<-chan bridge.Event, error)
	Abort(ctx context.Context, sessionID string) error
}

// Executor is the job scheduler. One Executor serves one workspace.
type Executor struct {
	store    *store.Store
	cfg      *config.Snapshot
	registry *agent.Registry
	bridge   BridgeQuerier
	wt       *worktree.Manager
	bus      *events.Bus
	logger   *slog.Logger

	mu          sync.Mutex
	running     map[kyco.JobID]context.CancelFunc
	activeSlots int
	pending     chan kyco.JobID
}

// New constructs an Executor. The admission queue is a buffered channel of
// fixed capacity 100, the same figure used for event-bus subscriber
// channels.
func New(st *store.Store, cfg *config.Snapshot, reg *agent.Registry, br BridgeQuerier, wt *worktree.Manager, bus *events.Bus, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:    st,
		cfg:      cfg,
		registry: reg,
		bridge:   br,
		wt:       wt,
		bus:      bus,
		logger:   logger,
		running:  make(map[kyco.JobID]context.CancelFunc),
		pending:  make(chan kyco.JobID, 100),
	}
}

// Submit enqueues id for admission. It is safe to call from any goroutine
// (the control surface's POST /jobs handler, the chain runner, etc).
func (e *Executor) Submit(id kyco.JobID) {
	select {
	case e.pending <- id:
	default:
		// queue saturated: mark blocked so the GUI reflects backpressure
		// instead of silently dropping the submission
		_ = e.store.SetStatus(id, kyco.StatusBlocked)
	}
}

// Run is the supervisor loop: drains pending, admits jobs up to
// MaxConcurrentJobs, and starts one runner goroutine per admission. It
// blocks until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			e.waitAll()
			return nil

		case id := <-e.pending:
			e.tryAdmit(ctx, id)
		}
	}
}

func (e *Executor) tryAdmit(ctx context.Context, id kyco.JobID) {
	job, err := e.store.Get(id)
	if err != nil {
		e.logger.Warn("executor: admit: job vanished", "job_id", id, "err", err)
		return
	}

	cfg := e.cfg.Get()
	_, isChain := cfg.Chain(job.Skill)

	// A chain job only orchestrates sibling jobs through this same
	// executor; it never itself calls an agent adapter, so it does not
	// consume a concurrency slot (spec.md §4.6).
	e.mu.Lock()
	if !isChain && e.activeSlots >= cfg.Settings.MaxConcurrentJobs {
		e.mu.Unlock()
		// requeue: the job stays Pending/Queued until a slot frees up
		go func() {
			time.Sleep(50 * time.Millisecond)
			e.Submit(id)
		}()
		return
	}
	e.mu.Unlock()

	if !isChain {
		useWorktree := job.ForceWorktree || cfg.Settings.UseWorktree
		if useWorktree {
			if err := e.acquireWorktree(ctx, id); err != nil {
				e.failPreflight(id, err)
				return
			}
		} else if !e.admitFileLocks(job) {
			_ = e.store.SetStatus(id, kyco.StatusBlocked)
			e.bus.Publish(events.New(events.TypeJobBlocked, job))
			return
		}
		job, err = e.store.Get(id)
		if err != nil {
			e.logger.Warn("executor: admit: job vanished mid-preflight", "job_id", id, "err", err)
			return
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.running[id] = cancel
	if !isChain {
		e.activeSlots++
	}
	e.mu.Unlock()

	_ = e.store.SetStatus(id, kyco.StatusRunning)
	e.bus.Publish(events.New(events.TypeJobStarted, job))

	go e.runOne(runCtx, id, cancel, isChain)
}

// acquireWorktree creates an isolated git worktree for a job that requires
// one (spec.md §4.2 preflight step 3, §4.8 Acquire) and records its path,
// branch, and resolved base branch on the job.
func (e *Executor) acquireWorktree(ctx context.Context, id kyco.JobID) error {
	if e.wt == nil {
		return fmt.Errorf("%w: worktree manager not configured", kerrors.ErrGitError)
	}

	job, err := e.store.Get(id)
	if err != nil {
		return err
	}

	base := job.BaseBranch
	if base == "" {
		base, err = e.wt.CurrentBranch(ctx)
		if err != nil {
			return err
		}
	}

	path, branch, err := e.wt.Create(ctx, id, base)
	if err != nil {
		return err
	}

	return e.store.Mutate(id, func(j *kyco.Job) error {
		j.GitWorktreePath = path
		j.BranchName = branch
		j.BaseBranch = base
		return nil
	})
}

// failPreflight marks a job Failed before it ever reached Running, used
// when worktree acquisition fails during admission.
func (e *Executor) failPreflight(id kyco.JobID, err error) {
	_ = e.store.Mutate(id, func(j *kyco.Job) error {
		j.ErrorMessage = err.Error()
		return nil
	})
	_ = e.store.SetStatus(id, kyco.StatusFailed)
	job, _ := e.store.Get(id)
	e.bus.Publish(events.New(events.TypeJobFailed, job))
}

// admitFileLocks acquires every file lock a job's scope implies. It is a
// stand-in for the full scope-to-path resolution spec.md §4.2 describes;
// single-file and directory scopes both resolve to job.SourceFile here,
// since multi-path scope expansion is owned by the caller that created
// the job (the IDE extension / CLI already knows the concrete file set).
// Worktree-isolated jobs skip this step entirely (spec.md §4.2 preflight
// step 2): isolation comes from the worktree, not from serializing on the
// shared file.
func (e *Executor) admitFileLocks(job kyco.Job) bool {
	if job.SourceFile == "" {
		return true
	}
	maxPerFile := e.cfg.Get().Settings.MaxJobsPerFile
	holder, ok := e.store.AcquireFileLock(job.SourceFile, job.ID, maxPerFile)
	if ok {
		return true
	}
	_ = e.store.Mutate(job.ID, func(j *kyco.Job) error {
		j.BlockedBy = holder
		return nil
	})
	return false
}

// RunSyncToCompletion submits id for admission and blocks until it
// reaches a terminal status, satisfying chain.StepRunner so the chain
// runner can dispatch each of its steps as an ordinary job through this
// same executor.
func (e *Executor) RunSyncToCompletion(ctx context.Context, id kyco.JobID) (kyco.Job, error) {
	e.Submit(id)
	for {
		select {
		case <-ctx.Done():
			return kyco.Job{}, ctx.Err()
		case <-time.After(50 * time.Millisecond):
			job, err := e.store.Get(id)
			if err != nil {
				return kyco.Job{}, err
			}
			if job.Status.Terminal() {
				return job, nil
			}
		}
	}
}

func (e *Executor) runOne(ctx context.Context, id kyco.JobID, cancel context.CancelFunc, isChain bool) {
	defer func() {
		e.mu.Lock()
		delete(e.running, id)
		if !isChain {
			e.activeSlots--
		}
		e.mu.Unlock()
		cancel()
		e.store.ReleaseJobLocks(id)
		e.promoteBlocked()
	}()

	job, err := e.store.Get(id)
	if err != nil {
		return
	}

	if isChain {
		chainCfg, _ := e.cfg.Get().Chain(job.Skill)
		e.runChain(ctx, id, job, chainCfg)
		return
	}

	result := e.execute(ctx, job)

	final := kyco.StatusDone
	if result.Status == RunFailed {
		final = kyco.StatusFailed
	} else if result.Status == RunAborted {
		final = kyco.StatusRejected
	}

	parsedResult, _ := trailer.Parse(result.FullResponse)

	_ = e.store.Mutate(id, func(j *kyco.Job) error {
		j.FullResponse = result.FullResponse
		j.ChangedFiles = result.ChangedFiles
		j.InputTokens = result.Usage.InputTokens
		j.OutputTokens = result.Usage.OutputTokens
		j.CacheReadTokens = result.Usage.CacheReadTokens
		j.CacheWriteTokens = result.Usage.CacheWriteTokens
		j.CostUSD = result.Usage.CostUSD
		j.DurationMS = result.DurationMS
		j.Result = parsedResult
		if result.Err != nil {
			j.ErrorMessage = result.Err.Error()
		}
		return nil
	})
	if err := e.store.SetStatus(id, final); err != nil {
		e.logger.Error("executor: set terminal status failed", "job_id", id, "err", err)
	}

	updated, _ := e.store.Get(id)
	topic := events.TypeJobDone
	if final == kyco.StatusFailed {
		topic = events.TypeJobFailed
	} else if final == kyco.StatusRejected {
		topic = events.TypeJobRejected
	}
	e.bus.Publish(events.New(topic, updated))
}

// runChain drives a chain-skill job to completion by sequencing its
// steps through this same executor (spec.md §4.6): each step is
// dispatched as an ordinary sibling job and awaited synchronously via
// RunSyncToCompletion, rather than calling an agent adapter directly.
func (e *Executor) runChain(ctx context.Context, id kyco.JobID, job kyco.Job, chainCfg config.ChainConfig) {
	cfg := e.cfg.Get()
	runner := chain.NewRunner(e.store, e, chainCfg, cfg.Skills, e.bus)

	finished, err := runner.Run(ctx, job)
	if err != nil {
		_ = e.store.Mutate(id, func(j *kyco.Job) error {
			j.ErrorMessage = err.Error()
			j.ChainStepHistory = finished.ChainStepHistory
			return nil
		})
		_ = e.store.SetStatus(id, kyco.StatusFailed)
		updated, _ := e.store.Get(id)
		e.bus.Publish(events.New(events.TypeJobFailed, updated))
		return
	}

	_ = e.store.Mutate(id, func(j *kyco.Job) error {
		j.FullResponse = finished.FullResponse
		j.ChainStepHistory = finished.ChainStepHistory
		j.ChainCurrentStep = finished.ChainCurrentStep
		return nil
	})
	_ = e.store.SetStatus(id, kyco.StatusDone)
	updated, _ := e.store.Get(id)
	e.bus.Publish(events.New(events.TypeJobDone, updated))
}

// execute runs the agent adapter for job and streams events into the
// event bus as job.progress notifications until the bridge closes the
// stream or ctx is cancelled.
func (e *Executor) execute(ctx context.Context, job kyco.Job) RunResult {
	cfg := e.cfg.Get()
	agentCfg, ok := cfg.Agent(job.AgentID)
	if !ok {
		return RunResult{Status: RunFailed, Err: fmt.Errorf("agent %q not configured: %w", job.AgentID, kerrors.ErrInvalidRequest)}
	}
	skill, ok := cfg.Skill(job.Skill)
	if !ok {
		return RunResult{Status: RunFailed, Err: fmt.Errorf("skill %q not configured: %w", job.Skill, kerrors.ErrInvalidRequest)}
	}

	adapter, err := e.registry.GetForConfig(agentCfg)
	if err != nil {
		return RunResult{Status: RunFailed, Err: err}
	}

	prompt := config.BuildPrompt(skill.PromptTemplate, config.PromptVars{
		File:        job.SourceFile,
		Target:      string(job.Target),
		Description: job.Description,
		ScopeType:   string(job.Scope.Kind),
		IDEContext:  job.IDEContext,
	})

	workspace := job.WorkspacePath
	if job.GitWorktreePath != "" {
		workspace = job.GitWorktreePath
	}

	req := adapter.BuildRequest(job, agentCfg, skill, prompt, workspace)

	start := time.Now()
	stream, err := e.bridge.Query(ctx, req)
	if err != nil {
		return RunResult{Status: RunFailed, Err: err}
	}

	var result RunResult
	var textBuf []byte
	sessionID := job.BridgeSessionID

	for {
		select {
		case <-ctx.Done():
			_ = e.bridge.Abort(context.Background(), sessionID)
			return RunResult{Status: RunAborted, Err: kerrors.ErrCancelledByUser, FullResponse: string(textBuf)}

		case ev, ok := <-stream:
			if !ok {
				result.FullResponse = string(textBuf)
				result.DurationMS = time.Since(start).Milliseconds()
				if result.Status == "" {
					result.Status = RunDone
				}
				return result
			}

			switch ev.Type {
			case bridge.EventSessionStart:
				sessionID = ev.SessionID
				_ = e.store.Mutate(job.ID, func(j *kyco.Job) error {
					j.BridgeSessionID = ev.SessionID
					return nil
				})
			case bridge.EventText:
				textBuf = append(textBuf, ev.Content...)
				e.bus.Publish(events.New(events.TypeJobProgress, ev))
			case bridge.EventToolUse, bridge.EventToolResult, bridge.EventHookPreToolUse:
				e.bus.Publish(events.New(events.TypeJobProgress, ev))
			case bridge.EventError:
				result.Status = RunFailed
				result.Err = fmt.Errorf("%w: %s", kerrors.ErrAdapterError, ev.Message)
			case bridge.EventSessionComplete:
				result.Status = RunDone
				result.Usage = ev.Usage
				result.DurationMS = ev.DurationMS
				if !ev.Success {
					result.Status = RunFailed
					result.Err = fmt.Errorf("%w: session reported failure", kerrors.ErrAdapterError)
				}
				result.ChangedFiles = ev.FilesChanged
			}
		}
	}
}

// Abort cancels a running job's context and requests the bridge cancel
// its underlying session (spec.md §4.2 cancellation protocol).
func (e *Executor) Abort(id kyco.JobID) error {
	e.mu.Lock()
	cancel, ok := e.running[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %d not running: %w", id, kerrors.ErrInvalidRequest)
	}
	_ = e.store.Mutate(id, func(j *kyco.Job) error {
		j.CancelRequested = true
		return nil
	})
	cancel()
	return nil
}

func (e *Executor) waitAll() {
	for {
		e.mu.Lock()
		n := len(e.running)
		e.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
}

// promoteBlocked re-submits every Blocked job so it re-attempts lock
// admission now that a job has released its locks (spec.md §3.2: Blocked
// <-> Queued is the only bidirectional edge in the state machine).
func (e *Executor) promoteBlocked() {
	for _, j := range e.store.List() {
		if j.Status == kyco.StatusBlocked {
			_ = e.store.SetStatus(j.ID, kyco.StatusQueued)
			e.Submit(j.ID)
		}
	}
}
