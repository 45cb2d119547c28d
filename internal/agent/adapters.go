package agent

import (
	"kyco/internal/bridge"
	"kyco/internal/config"
	"kyco/internal/kyco"
)

// ClaudeAdapter drives the Claude backend via the bridge sidecar. The CLI
// flag conventions this mirrors (--model, --max-turns, --allowed-tools,
// --resume, --permission-mode) come from the teacher's direct-CLI backend
// at internal/coding/claudecode_backend.go; here they become fields on
// bridge.QueryRequest instead of argv, since the sidecar owns the actual
// process spawn.
type ClaudeAdapter struct{}

func (a *ClaudeAdapter) SDK() config.SDK { return config.SDKClaude }

func (a *ClaudeAdapter) BuildRequest(job kyco.Job, agentCfg config.AgentConfig, skill config.SkillConfig, prompt, workspacePath string) bridge.QueryRequest {
	return bridge.QueryRequest{
		AgentID:         job.AgentID,
		Instruction:     prompt,
		SystemPrompt:    skill.SystemPrompt,
		Model:           firstNonEmpty(skill.Model, agentCfg.Model),
		MaxTurns:        skill.MaxTurns,
		ResumeSessionID: resumeID(job, skill),
		WorkspacePath:   workspacePath,
		AllowedTools:    agentCfg.AllowedTools,
		DisallowedTools: agentCfg.DisallowedTools,
		PermissionMode:  agentCfg.PermissionMode,
		Env:             agentCfg.Env,
	}
}

// CodexAdapter drives the Codex backend via the bridge sidecar.
type CodexAdapter struct{}

func (a *CodexAdapter) SDK() config.SDK { return config.SDKCodex }

func (a *CodexAdapter) BuildRequest(job kyco.Job, agentCfg config.AgentConfig, skill config.SkillConfig, prompt, workspacePath string) bridge.QueryRequest {
	return bridge.QueryRequest{
		AgentID:         job.AgentID,
		Instruction:     prompt,
		SystemPrompt:    skill.SystemPrompt,
		Model:           firstNonEmpty(skill.Model, agentCfg.Model),
		MaxTurns:        skill.MaxTurns,
		ResumeSessionID: resumeID(job, skill),
		WorkspacePath:   workspacePath,
		AllowedTools:    agentCfg.AllowedTools,
		DisallowedTools: agentCfg.DisallowedTools,
		PermissionMode:  agentCfg.ApprovalPolicy,
		Env:             agentCfg.Env,
	}
}

// GeminiAdapter drives the Gemini backend. This is a feature present in
// original_source (agent/registry.rs registers a gemini adapter alongside
// claude/codex) that the distilled spec drops; it is restored here since
// the registry's shape assumes three built-in SDKs.
type GeminiAdapter struct{}

func (a *GeminiAdapter) SDK() config.SDK { return config.SDKGemini }

func (a *GeminiAdapter) BuildRequest(job kyco.Job, agentCfg config.AgentConfig, skill config.SkillConfig, prompt, workspacePath string) bridge.QueryRequest {
	return bridge.QueryRequest{
		AgentID:         job.AgentID,
		Instruction:     prompt,
		SystemPrompt:    skill.SystemPrompt,
		Model:           firstNonEmpty(skill.Model, agentCfg.Model),
		MaxTurns:        skill.MaxTurns,
		ResumeSessionID: resumeID(job, skill),
		WorkspacePath:   workspacePath,
		AllowedTools:    agentCfg.AllowedTools,
		DisallowedTools: agentCfg.DisallowedTools,
		Env:             agentCfg.Env,
	}
}

func resumeID(job kyco.Job, skill config.SkillConfig) string {
	if skill.SessionMode == config.SessionSession {
		return job.BridgeSessionID
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
