// Package config loads and hot-reloads the KYCo configuration file, using
// viper the way the teacher's internal/config/config.go does, and exposes
// an immutable snapshot to the rest of the daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// SDK identifies which agent backend an agent config targets.
type SDK string

const (
	SDKClaude SDK = "claude"
	SDKCodex  SDK = "codex"
	SDKGemini SDK = "gemini"
)

// SessionMode controls whether a skill runs as a fresh one-shot call or
// resumes a prior bridge session.
type SessionMode string

const (
	SessionOneshot SessionMode = "oneshot"
	SessionSession SessionMode = "session"
)

// Settings holds the global orchestration knobs (spec.md §3.1/§6.6).
type Settings struct {
	MaxConcurrentJobs int    `mapstructure:"max_concurrent_jobs"`
	AutoRun           bool   `mapstructure:"auto_run"`
	UseWorktree       bool   `mapstructure:"use_worktree"`
	MaxJobsPerFile    int    `mapstructure:"max_jobs_per_file"`
	HTTPPort          int    `mapstructure:"http_port"`
	HTTPToken         string `mapstructure:"http_token"`
	DebounceMS        int    `mapstructure:"debounce_ms"`
	MarkerPrefix      string `mapstructure:"marker_prefix"`
	ScanExclude       []string `mapstructure:"scan_exclude"`
}

// DefaultSettings matches the defaults original_source/src/config/settings.rs
// falls back to when a field is absent from the TOML file.
func DefaultSettings() Settings {
	return Settings{
		MaxConcurrentJobs: 3,
		AutoRun:           false,
		UseWorktree:       true,
		MaxJobsPerFile:    1,
		HTTPPort:          8745,
		DebounceMS:        500,
		MarkerPrefix:      "@kyco",
	}
}

// AgentConfig is one configured agent instance (spec.md §3.1, §4.3).
type AgentConfig struct {
	SDK                  SDK               `mapstructure:"sdk"`
	Model                string            `mapstructure:"model"`
	PermissionMode       string            `mapstructure:"permission_mode"`
	Sandbox              string            `mapstructure:"sandbox"`
	ApprovalPolicy       string            `mapstructure:"approval_policy"`
	AllowedTools         []string          `mapstructure:"allowed_tools"`
	DisallowedTools      []string          `mapstructure:"disallowed_tools"`
	Env                  map[string]string `mapstructure:"env"`
	MCPServers           []string          `mapstructure:"mcp_servers"`
	AllowDangerousBypass bool              `mapstructure:"allow_dangerous_bypass"`
	Mode                 string            `mapstructure:"mode"`
}

// StateDef is one named output-state pattern matcher used by chain step
// gating (ported from original_source/src/agent/chain/state.rs).
type StateDef struct {
	ID              string   `mapstructure:"id"`
	Patterns        []string `mapstructure:"patterns"`
	IsRegex         bool     `mapstructure:"is_regex"`
	CaseInsensitive bool     `mapstructure:"case_insensitive"`
}

// SkillConfig is a single reusable prompt template (spec.md §3.1, §4.3).
type SkillConfig struct {
	PromptTemplate string      `mapstructure:"prompt_template"`
	SystemPrompt   string      `mapstructure:"system_prompt"`
	StatePrompt    string      `mapstructure:"state_prompt"`
	OutputStates   []string    `mapstructure:"output_states"`
	Model          string      `mapstructure:"model"`
	MaxTurns       int         `mapstructure:"max_turns"`
	SessionMode    SessionMode `mapstructure:"session_mode"`
	OutputSchema   string      `mapstructure:"output_schema"`
}

// ChainStep is one step of a ChainConfig (spec.md §4.6).
type ChainStep struct {
	Skill         string   `mapstructure:"skill"`
	TriggerOn     []string `mapstructure:"trigger_on"`
	SkipOn        []string `mapstructure:"skip_on"`
	Agent         string   `mapstructure:"agent"`
	InjectContext bool     `mapstructure:"inject_context"`
	LoopTo        int      `mapstructure:"loop_to"`
}

// ChainConfig is a named sequence of skill steps (spec.md §3.1, §4.6).
type ChainConfig struct {
	Description      string      `mapstructure:"description"`
	States            []StateDef  `mapstructure:"states"`
	Steps             []ChainStep `mapstructure:"steps"`
	StopOnFailure     bool        `mapstructure:"stop_on_failure"`
	PassFullResponse  bool        `mapstructure:"pass_full_response"`
	MaxLoops          int         `mapstructure:"max_loops"`
	UseWorktree       bool        `mapstructure:"use_worktree"`
}

// Config is the full parsed configuration file (spec.md §3.1).
type Config struct {
	Settings Settings               `mapstructure:"settings"`
	Agents   map[string]AgentConfig `mapstructure:"agents"`
	Skills   map[string]SkillConfig `mapstructure:"skills"`
	Chains   map[string]ChainConfig `mapstructure:"chains"`
}

// ResolvePath returns the config file path, honoring KYCO_CONFIG and
// falling back to <home>/.kyco/config.toml (spec.md §6.6).
func ResolvePath() string {
	if p := os.Getenv("KYCO_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".kyco", "config.toml")
}

// Load reads and parses path (or ResolvePath() if empty). A missing file is
// not an error: Load returns defaults, matching the teacher's tolerant
// first-run behavior.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ResolvePath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("kyco")
	v.AutomaticEnv()

	cfg := &Config{Settings: DefaultSettings()}

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}

	if tok := os.Getenv("KYCO_HTTP_TOKEN"); tok != "" {
		cfg.Settings.HTTPToken = tok
	}
	if cfg.Settings.MaxConcurrentJobs <= 0 {
		cfg.Settings.MaxConcurrentJobs = DefaultSettings().MaxConcurrentJobs
	}
	if cfg.Settings.HTTPPort <= 0 {
		cfg.Settings.HTTPPort = DefaultSettings().HTTPPort
	}
	if cfg.Settings.DebounceMS <= 0 {
		cfg.Settings.DebounceMS = DefaultSettings().DebounceMS
	}

	return cfg, nil
}

// Agent looks up an agent config by id.
func (c *Config) Agent(id string) (AgentConfig, bool) {
	a, ok := c.Agents[id]
	return a, ok
}

// Skill looks up a skill config by id.
func (c *Config) Skill(id string) (SkillConfig, bool) {
	s, ok := c.Skills[id]
	return s, ok
}

// Chain looks up a chain config by id.
func (c *Config) Chain(id string) (ChainConfig, bool) {
	ch, ok := c.Chains[id]
	return ch, ok
}

// PromptVars is the substitution set available to BuildPrompt (spec.md §4.3).
type PromptVars struct {
	File        string
	Line        string
	Target      string
	Mode        string
	Description string
	ScopeType   string
	IDEContext  string
}

// BuildPrompt renders a skill's prompt_template against vars, replacing each
// {name} placeholder. Unknown placeholders are left untouched rather than
// erroring.
func BuildPrompt(template string, vars PromptVars) string {
	replacer := strings.NewReplacer(
		"{file}", vars.File,
		"{line}", vars.Line,
		"{target}", vars.Target,
		"{mode}", vars.Mode,
		"{description}", vars.Description,
		"{scope_type}", vars.ScopeType,
		"{ide_context}", vars.IDEContext,
	)
	return replacer.Replace(template)
}
