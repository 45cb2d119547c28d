// Package control implements the local HTTP control surface (C9): the
// bearer-token-gated API an IDE extension or the CLI talks to (spec.md
// §4.9, §6.1).
//
// Request/response shapes are ported from
// original_source/src/gui/http_server/types.rs, which is the original
// implementation's own wire contract for this surface; the distilled spec
// only summarizes the operations, so the original's field names and
// optional-vs-required shape are authoritative here.
package control

import "kyco/internal/kyco"

// Dependency describes one import/require edge surfaced by the IDE so a
// job's prompt can be built with accurate cross-file context.
type Dependency struct {
	Path   string `json:"path"`
	Symbol string `json:"symbol,omitempty"`
}

// Diagnostic is one compiler/linter diagnostic attached to a selection.
type Diagnostic struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
}

// SelectionRequest describes the IDE selection a job is created from
// (spec.md §4.9 POST /jobs).
type SelectionRequest struct {
	File         string       `json:"file"`
	LineStart    int          `json:"line_start"`
	LineEnd      int          `json:"line_end"`
	Text         string       `json:"text,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
	Diagnostics  []Diagnostic `json:"diagnostics,omitempty"`
}

// FormatIDEContext renders the selection into the free-text block a
// prompt template's {ide_context} placeholder is substituted with.
func (s SelectionRequest) FormatIDEContext() string {
	out := s.Text
	for _, d := range s.Dependencies {
		out += "\n// depends on: " + d.Path
		if d.Symbol != "" {
			out += "::" + d.Symbol
		}
	}
	for _, d := range s.Diagnostics {
		out += "\n// " + d.Severity + ": " + d.Message
	}
	return out
}

// BatchFile is one file entry of a BatchRequest.
type BatchFile struct {
	Path  string `json:"path"`
	Scope string `json:"scope,omitempty"`
}

// BatchRequest asks for one job per file (spec.md §4.2 batch admission).
type BatchRequest struct {
	Files       []BatchFile `json:"files"`
	AgentID     string      `json:"agent_id"`
	Skill       string      `json:"skill"`
	Description string      `json:"description,omitempty"`
}

// JobCreateRequest is the POST /jobs body. A single-agent request sets
// AgentID; a multi-agent fan-out request (spec.md §4.7, §6.1) sets Agents
// instead, and the response carries one job id per agent plus the new
// AgentGroup's id rather than a single Job.
type JobCreateRequest struct {
	AgentID       string           `json:"agent_id,omitempty"`
	Agents        []string         `json:"agents,omitempty"`
	Skill         string           `json:"skill"`
	Selection     SelectionRequest `json:"selection"`
	Target        kyco.Target      `json:"target"`
	Description   string           `json:"description,omitempty"`
	ForceWorktree bool             `json:"force_worktree"`
	Run           bool             `json:"run"`
}

// JobCreateResponse is the POST /jobs response for a single-agent request.
type JobCreateResponse struct {
	Job kyco.Job `json:"job"`
}

// JobGroupCreateResponse is the POST /jobs response for a multi-agent
// fan-out request: one job id per requested agent, plus the group they
// were fanned out under (spec.md §4.7 "agents": [...] -> group creation).
type JobGroupCreateResponse struct {
	JobIDs  []kyco.JobID `json:"job_ids"`
	GroupID kyco.GroupID `json:"group_id"`
}

// LogRequest is the body of POST /jobs/:id/log. The handler checks that
// the job exists; the message and level are not stored.
type LogRequest struct {
	Message string `json:"message"`
	Level   string `json:"level,omitempty"`
}

// JobContinueRequest resumes a job's bridge session with a follow-up
// instruction (spec.md §4.9 POST /jobs/:id/continue).
type JobContinueRequest struct {
	Instruction string `json:"instruction"`
}

// JobContinueResponse reports the resumed job's fresh state.
type JobContinueResponse struct {
	Job kyco.Job `json:"job"`
}

// JobDeleteRequest optionally keeps a job's worktree around after delete.
// A nil KeepWorktree defaults to true, matching original_source's
// default_true() helper on this same field: deleting a job record is not
// assumed to mean "discard my work".
type JobDeleteRequest struct {
	KeepWorktree *bool `json:"keep_worktree,omitempty"`
}

// ResolvedKeepWorktree applies the nil-defaults-to-true rule.
func (r JobDeleteRequest) ResolvedKeepWorktree() bool {
	if r.KeepWorktree == nil {
		return true
	}
	return *r.KeepWorktree
}

// JobDeleteResponse reports what delete actually did.
type JobDeleteResponse struct {
	Deleted      bool `json:"deleted"`
	WorktreeKept bool `json:"worktree_kept"`
}

// ErrorResponse is the uniform error body for every failing request.
type ErrorResponse struct {
	Error string `json:"error"`
}
