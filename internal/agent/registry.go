// Package agent implements the agent adapters (C3): the translation layer
// between a Job/SkillConfig pair and a bridge.QueryRequest. Bridge events
// are parsed back into job progress by the executor, not here.
//
// The registry shape — two parallel maps keyed by CLI/SDK kind, one for
// print-mode (one-shot) adapters and one for REPL-mode adapters selected
// when an agent's mode is "terminal" or "repl" — is ported from
// original_source/src/agent/registry.rs's dual-map with_defaults()/
// get_for_config()/list_available() design.
package agent

import (
	"fmt"

	"kyco/internal/bridge"
	"kyco/internal/config"
	"kyco/internal/kerrors"
	"kyco/internal/kyco"
)

// TerminalSuffix is the conventional suffix naming an SDK's REPL-mode
// variant, matching original_source's DEFAULT_TERMINAL_SUFFIX. The
// Registry does not look adapters up by it; GetForConfig picks the
// REPL-mode map from AgentConfig.Mode.
const TerminalSuffix = "-terminal"

// Adapter translates one configured agent into bridge requests
// (spec.md §4.3); the executor consumes the resulting event stream.
type Adapter interface {
	// SDK reports which bridge backend this adapter drives.
	SDK() config.SDK

	// BuildRequest renders a bridge.QueryRequest for running skill against
	// job in workspacePath, honoring agentCfg's tool/model/permission
	// settings.
	BuildRequest(job kyco.Job, agentCfg config.AgentConfig, skill config.SkillConfig, prompt, workspacePath string) bridge.QueryRequest
}

// Registry holds the configured adapters, split into print-mode and
// REPL-mode (terminal) maps as in original_source's AgentRegistry.
type Registry struct {
	printMode map[config.SDK]Adapter
	terminal  map[config.SDK]Adapter
}

// NewRegistry builds a Registry pre-populated with the built-in adapters
// (claude, codex, gemini — gemini is a feature present in original_source
// but dropped from the distilled spec; it is restored here) and their
// "-terminal" REPL counterparts.
func NewRegistry() *Registry {
	r := &Registry{
		printMode: make(map[config.SDK]Adapter),
		terminal:  make(map[config.SDK]Adapter),
	}
	r.withDefaults()
	return r
}

func (r *Registry) withDefaults() {
	r.printMode[config.SDKClaude] = &ClaudeAdapter{}
	r.printMode[config.SDKCodex] = &CodexAdapter{}
	r.printMode[config.SDKGemini] = &GeminiAdapter{}

	r.terminal[config.SDKClaude] = &TerminalAdapter{Wrapped: &ClaudeAdapter{}}
	r.terminal[config.SDKCodex] = &TerminalAdapter{Wrapped: &CodexAdapter{}}
	r.terminal[config.SDKGemini] = &TerminalAdapter{Wrapped: &GeminiAdapter{}}
}

// GetForConfig resolves the adapter for agentCfg, choosing the REPL-mode
// map when agentCfg.Mode == "terminal" or "repl" (ported from
// original_source's get_for_config lookup strategy: configured session
// mode picks which of the two maps is consulted, not a separate field).
func (r *Registry) GetForConfig(agentCfg config.AgentConfig) (Adapter, error) {
	if isTerminalMode(agentCfg.Mode) {
		a, ok := r.terminal[agentCfg.SDK]
		if !ok {
			return nil, fmt.Errorf("agent: no terminal adapter for sdk %q: %w", agentCfg.SDK, kerrors.ErrAdapterError)
		}
		return a, nil
	}
	a, ok := r.printMode[agentCfg.SDK]
	if !ok {
		return nil, fmt.Errorf("agent: no adapter for sdk %q: %w", agentCfg.SDK, kerrors.ErrAdapterError)
	}
	return a, nil
}

func isTerminalMode(mode string) bool {
	return mode == "terminal" || mode == "repl"
}

// IsAvailable reports whether sdk has a registered print-mode adapter.
func (r *Registry) IsAvailable(sdk config.SDK) bool {
	_, ok := r.printMode[sdk]
	return ok
}

// ListAvailable returns every SDK with a registered print-mode adapter.
func (r *Registry) ListAvailable() []config.SDK {
	out := make([]config.SDK, 0, len(r.printMode))
	for sdk := range r.printMode {
		out = append(out, sdk)
	}
	return out
}

// ListAll returns every SDK with either a print-mode or terminal adapter.
func (r *Registry) ListAll() []config.SDK {
	seen := make(map[config.SDK]struct{})
	for sdk := range r.printMode {
		seen[sdk] = struct{}{}
	}
	for sdk := range r.terminal {
		seen[sdk] = struct{}{}
	}
	out := make([]config.SDK, 0, len(seen))
	for sdk := range seen {
		out = append(out, sdk)
	}
	return out
}
