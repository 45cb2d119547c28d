package commands

import (
	"github.com/spf13/cobra"

	"kyco/cmd/kyco/cmdutil"
)

func newStatusCmd(client *cmdutil.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status: job counts and active settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]any
			if err := client.Do("GET", "/status", nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
}
