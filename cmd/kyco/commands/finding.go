package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"kyco/cmd/kyco/cmdutil"
	"kyco/internal/kyco"
)

// newFindingCmd surfaces jobs' parsed structured-output trailers (spec.md
// §6.4 "---kyco ... ---" fenced YAML block, decoded into kyco.Result) as
// findings a human can triage without reading full agent transcripts.
func newFindingCmd(client *cmdutil.Client) *cobra.Command {
	cmd := &cobra.Command{Use: "finding", Short: "Inspect structured results reported by jobs"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List jobs that reported a structured result",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Jobs []kyco.Job `json:"jobs"`
			}
			if err := client.Do("GET", "/jobs", nil, &resp); err != nil {
				return err
			}
			for _, j := range resp.Jobs {
				if j.Result == nil {
					continue
				}
				cmd.Printf("#%d\t%s\t%s\n", j.ID, j.Result.State, j.Result.Title)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one job's structured result in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			var job kyco.Job
			if err := client.Do("GET", fmt.Sprintf("/jobs/%d", id), nil, &job); err != nil {
				return err
			}
			if job.Result == nil {
				return cmdutil.Failure(fmt.Errorf("job %d reported no structured result", id))
			}
			return printJSON(cmd, job.Result)
		},
	})

	return cmd
}
