package agent

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kyco/internal/config"
	"kyco/internal/kyco"
)

func TestRegistryGetForConfigPrintMode(t *testing.T) {
	r := NewRegistry()

	a, err := r.GetForConfig(config.AgentConfig{SDK: config.SDKClaude})
	require.NoError(t, err)
	require.Equal(t, config.SDKClaude, a.SDK())
	require.IsType(t, &ClaudeAdapter{}, a)
}

func TestRegistryGetForConfigTerminalMode(t *testing.T) {
	r := NewRegistry()

	a, err := r.GetForConfig(config.AgentConfig{SDK: config.SDKCodex, Mode: "terminal"})
	require.NoError(t, err)
	require.IsType(t, &TerminalAdapter{}, a)
	require.Equal(t, config.SDKCodex, a.SDK())
}

func TestRegistryGetForConfigUnknownSDK(t *testing.T) {
	r := NewRegistry()
	_, err := r.GetForConfig(config.AgentConfig{SDK: config.SDK("unknown")})
	require.Error(t, err)
}

func TestRegistryListAvailableAndAll(t *testing.T) {
	r := NewRegistry()
	require.ElementsMatch(t, []config.SDK{config.SDKClaude, config.SDKCodex, config.SDKGemini}, r.ListAvailable())
	require.ElementsMatch(t, []config.SDK{config.SDKClaude, config.SDKCodex, config.SDKGemini}, r.ListAll())
	require.True(t, r.IsAvailable(config.SDKClaude))
	require.False(t, r.IsAvailable(config.SDK("nope")))
}

func TestClaudeAdapterBuildRequestOneshot(t *testing.T) {
	a := &ClaudeAdapter{}
	job := kyco.Job{AgentID: "claude", BridgeSessionID: "prior-session"}
	cfg := config.AgentConfig{Model: "claude-default", AllowedTools: []string{"Read"}}
	skill := config.SkillConfig{SystemPrompt: "be terse", Model: "claude-override", SessionMode: config.SessionOneshot}

	req := a.BuildRequest(job, cfg, skill, "do the thing", "/tmp/ws")
	require.Equal(t, "claude-override", req.Model)
	require.Equal(t, "be terse", req.SystemPrompt)
	require.Empty(t, req.ResumeSessionID, "oneshot skills must not resume a session")
	require.Equal(t, "/tmp/ws", req.WorkspacePath)
}

func TestClaudeAdapterBuildRequestResumesSession(t *testing.T) {
	a := &ClaudeAdapter{}
	job := kyco.Job{BridgeSessionID: "prior-session"}
	skill := config.SkillConfig{SessionMode: config.SessionSession}

	req := a.BuildRequest(job, config.AgentConfig{}, skill, "continue", "/tmp/ws")
	require.Equal(t, "prior-session", req.ResumeSessionID)
}

func TestCodexAdapterUsesApprovalPolicyAsPermissionMode(t *testing.T) {
	a := &CodexAdapter{}
	cfg := config.AgentConfig{ApprovalPolicy: "on-failure"}
	req := a.BuildRequest(kyco.Job{}, cfg, config.SkillConfig{}, "p", "/ws")
	require.Equal(t, "on-failure", req.PermissionMode)
}

func TestGeminiAdapterSDK(t *testing.T) {
	a := &GeminiAdapter{}
	require.Equal(t, config.SDKGemini, a.SDK())
}

func TestFirstNonEmpty(t *testing.T) {
	require.Equal(t, "b", firstNonEmpty("", "b", "c"))
	require.Equal(t, "", firstNonEmpty("", ""))
}

func TestTerminalAdapterRunInteractiveCapturesOutput(t *testing.T) {
	wrapped := &ClaudeAdapter{}
	ta := &TerminalAdapter{Wrapped: wrapped}
	require.Equal(t, config.SDKClaude, ta.SDK())

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := ta.RunInteractive(ctx, "sh", []string{"-c", "head -n1"}, t.TempDir(), "hello from kyco", &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "hello from kyco")
}
