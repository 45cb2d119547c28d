// Package commands builds the kyco CLI's cobra command tree (spec.md
// §6.3): agent, mode, chain, skill, job, status, and finding subcommands.
package commands

import (
	"github.com/spf13/cobra"

	"kyco/cmd/kyco/cmdutil"
)

// NewRootCmd builds the top-level kyco command, wired to client for every
// subcommand that talks to the daemon.
func NewRootCmd(client *cmdutil.Client) *cobra.Command {
	root := &cobra.Command{
		Use:           "kyco",
		Short:         "Local orchestrator for AI coding agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newAgentCmd(client),
		newModeCmd(client),
		newChainCmd(client),
		newSkillCmd(client),
		newJobCmd(client),
		newStatusCmd(client),
		newFindingCmd(client),
	)

	return root
}
