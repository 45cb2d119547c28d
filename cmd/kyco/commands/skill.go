package commands

import (
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"kyco/cmd/kyco/cmdutil"
	"kyco/internal/config"
)

// skillFile is the on-disk document shape skill create/install/delete
// mutate directly (spec.md §6.3: these are local file operations against
// config.toml, not daemon RPCs, since they take effect only after the
// next config reload).
type skillFile struct {
	Settings config.Settings               `toml:"settings"`
	Agents   map[string]config.AgentConfig `toml:"agents"`
	Skills   map[string]config.SkillConfig `toml:"skills"`
	Chains   map[string]config.ChainConfig `toml:"chains"`
}

func loadSkillFile(path string) (*skillFile, error) {
	if path == "" {
		path = config.ResolvePath()
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &skillFile{Skills: map[string]config.SkillConfig{}}, nil
	}
	if err != nil {
		return nil, cmdutil.Failure(err)
	}
	var f skillFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, cmdutil.Failure(err)
	}
	if f.Skills == nil {
		f.Skills = map[string]config.SkillConfig{}
	}
	return &f, nil
}

func saveSkillFile(path string, f *skillFile) error {
	if path == "" {
		path = config.ResolvePath()
	}
	data, err := toml.Marshal(f)
	if err != nil {
		return cmdutil.Failure(err)
	}
	if err := os.MkdirAll(dirOf(path), 0o755); err != nil {
		return cmdutil.Failure(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return cmdutil.Failure(err)
	}
	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

func newSkillCmd(client *cmdutil.Client) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{Use: "skill", Short: "Manage reusable prompt skills"}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config.toml path (default: KYCO_CONFIG or ~/.kyco/config.toml)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured skill ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := fetchConfig(client)
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(cfg.Skills))
			for id := range cfg.Skills {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				cmd.Println(id)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show one skill's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := fetchConfig(client)
			if err != nil {
				return err
			}
			s, ok := cfg.Skill(args[0])
			if !ok {
				return cmdutil.Usage("no such skill %q", args[0])
			}
			return printJSON(cmd, s)
		},
	})

	cmd.AddCommand(newSkillCreateCmd(&configPath))
	cmd.AddCommand(newSkillInstallCmd(&configPath))
	cmd.AddCommand(newSkillDeleteCmd(&configPath))
	cmd.AddCommand(newSkillPathCmd(&configPath))

	return cmd
}

func newSkillCreateCmd(configPath *string) *cobra.Command {
	var promptTemplate, systemPrompt string
	c := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a new skill in config.toml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadSkillFile(*configPath)
			if err != nil {
				return err
			}
			if _, exists := f.Skills[args[0]]; exists {
				return cmdutil.Usage("skill %q already exists", args[0])
			}
			f.Skills[args[0]] = config.SkillConfig{
				PromptTemplate: promptTemplate,
				SystemPrompt:   systemPrompt,
				SessionMode:    config.SessionOneshot,
			}
			return saveSkillFile(*configPath, f)
		},
	}
	c.Flags().StringVar(&promptTemplate, "prompt", "", "prompt template body")
	c.Flags().StringVar(&systemPrompt, "system-prompt", "", "system prompt body")
	return c
}

func newSkillInstallCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "install <id> <source-path>",
		Short: "Install a skill definition file as <id>",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return cmdutil.Failure(err)
			}
			var sc config.SkillConfig
			if err := toml.Unmarshal(data, &sc); err != nil {
				return cmdutil.Usage("invalid skill definition: %v", err)
			}

			f, err := loadSkillFile(*configPath)
			if err != nil {
				return err
			}
			f.Skills[args[0]] = sc
			return saveSkillFile(*configPath, f)
		},
	}
}

func newSkillDeleteCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a skill from config.toml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadSkillFile(*configPath)
			if err != nil {
				return err
			}
			if _, ok := f.Skills[args[0]]; !ok {
				return cmdutil.Usage("no such skill %q", args[0])
			}
			delete(f.Skills, args[0])
			return saveSkillFile(*configPath, f)
		},
	}
}

func newSkillPathCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the resolved config.toml path",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := *configPath
			if p == "" {
				p = config.ResolvePath()
			}
			cmd.Println(p)
			return nil
		},
	}
}
