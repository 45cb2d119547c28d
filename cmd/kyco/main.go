// Command kyco is the KYCo CLI: a thin client over kycod's local control
// API (spec.md §6.3), built with spf13/cobra the way the teacher and the
// rest of the pack (quorum-ai, agentops) build their command trees.
package main

import (
	"fmt"
	"os"

	"kyco/cmd/kyco/cmdutil"
	"kyco/cmd/kyco/commands"
)

func main() {
	root := commands.NewRootCmd(cmdutil.NewClientFromEnv())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to the exit codes spec.md §6.3 prescribes:
// 0 success, 1 generic failure, 2 invalid usage, 3 server unreachable.
func exitCodeFor(err error) int {
	type coder interface{ ExitCode() int }
	if c, ok := err.(coder); ok {
		return c.ExitCode()
	}
	return 1
}
