// Package kyco defines the core entities of the job orchestration engine:
// jobs, agent groups, file locks, and the values that flow between the
// executor, the chain runner, and the control surface.
package kyco

import "time"

// JobID is a process-local, monotonically increasing job identifier.
type JobID uint64

// GroupID is a process-local, monotonically increasing agent-group identifier.
type GroupID uint64

// Status is a job's position in the lifecycle state machine (spec.md §3.2).
type Status string

const (
	StatusPending  Status = "pending"
	StatusQueued   Status = "queued"
	StatusBlocked  Status = "blocked"
	StatusRunning  Status = "running"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
	StatusRejected Status = "rejected"
	StatusMerged   Status = "merged"
)

// Terminal reports whether status is one a job cannot leave.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusRejected, StatusMerged:
		return true
	default:
		return false
	}
}

// ScopeKind is the shape of the origin location a job was created from.
type ScopeKind string

const (
	ScopeFile     ScopeKind = "file"
	ScopeDir      ScopeKind = "dir"
	ScopeFunction ScopeKind = "function"
	ScopeProject  ScopeKind = "project"
)

// Scope records what part of the workspace a job's prompt is templated against.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	Path string    `json:"path,omitempty"`
}

// Target is the rendering target used by prompt templating (spec.md §3.1).
type Target string

const (
	TargetBlock     Target = "block"
	TargetFile      Target = "file"
	TargetSelection Target = "selection"
)

// Result is the parsed structured trailer block (spec.md §6.4).
type Result struct {
	Title   string `json:"title,omitempty"`
	Summary string `json:"summary,omitempty"`
	State   string `json:"state,omitempty"`
	Details string `json:"details,omitempty"`
	Status  string `json:"status,omitempty"`
}

// ChainStepRecord is one executed step of a chain job's progress history.
type ChainStepRecord struct {
	StepIndex int    `json:"step_index"`
	Skill     string `json:"skill"`
	State     string `json:"state,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Success   bool   `json:"success"`
}

// Job is the unit of work dispatched to exactly one agent adapter.
//
// A Job is owned exclusively by the job store (internal/store). The executor
// holds a mutable reference only while advancing a single state transition;
// adapters receive a by-value clone for the duration of a run.
type Job struct {
	ID      JobID  `json:"id"`
	GroupID GroupID `json:"group_id,omitempty"`

	AgentID string `json:"agent_id"`
	Skill   string `json:"skill"`

	SourceFile  string `json:"source_file,omitempty"`
	SourceLine  int    `json:"source_line,omitempty"`
	LineStart   int    `json:"line_start,omitempty"`
	LineEnd     int    `json:"line_end,omitempty"`
	Scope       Scope  `json:"scope"`
	Target      Target `json:"target"`
	Description string `json:"description,omitempty"`
	IDEContext  string `json:"ide_context,omitempty"`

	ForceWorktree bool   `json:"force_worktree"`
	WorkspacePath string `json:"workspace_path"`

	BridgeSessionID string `json:"bridge_session_id,omitempty"`

	GitWorktreePath string `json:"git_worktree_path,omitempty"`
	BranchName      string `json:"branch_name,omitempty"`
	BaseBranch      string `json:"base_branch,omitempty"`

	Status Status `json:"status"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	CancelRequested bool `json:"cancel_requested"`
	CancelSent      bool `json:"cancel_sent"`

	InputTokens     int64   `json:"input_tokens,omitempty"`
	OutputTokens    int64   `json:"output_tokens,omitempty"`
	CacheReadTokens int64   `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int64  `json:"cache_write_tokens,omitempty"`
	CostUSD         float64 `json:"cost_usd,omitempty"`
	DurationMS      int64   `json:"duration_ms,omitempty"`

	ChangedFiles []string `json:"changed_files,omitempty"`
	FullResponse string   `json:"full_response,omitempty"`
	Result       *Result  `json:"result,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`

	ChainCurrentStep  int               `json:"chain_current_step,omitempty"`
	ChainStepHistory  []ChainStepRecord `json:"chain_step_history,omitempty"`

	RawTagLine string `json:"raw_tag_line,omitempty"`

	// BlockedBy is the job that held the file lock when this job was last
	// set to StatusBlocked. It is not cleared when the job moves on from
	// StatusBlocked.
	BlockedBy JobID `json:"blocked_by,omitempty"`
}

// Clone returns a deep-enough copy for handing to an adapter by value.
func (j *Job) Clone() Job {
	c := *j
	c.ChangedFiles = append([]string(nil), j.ChangedFiles...)
	c.ChainStepHistory = append([]ChainStepRecord(nil), j.ChainStepHistory...)
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	return c
}

// GroupStatus is an AgentGroup's position in its own, smaller state machine.
type GroupStatus string

const (
	GroupRunning   GroupStatus = "running"
	GroupComparing GroupStatus = "comparing"
	GroupMerged    GroupStatus = "merged"
	GroupDiscarded GroupStatus = "discarded"
)

// AgentGroup is a set of sibling jobs fanned out from one user request, one
// job per agent, meant for side-by-side comparison (spec.md §4.7).
type AgentGroup struct {
	ID             GroupID     `json:"id"`
	JobIDs         []JobID     `json:"job_ids"`
	SelectedJobID  *JobID      `json:"selected_job_id,omitempty"`
	Status         GroupStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
}
