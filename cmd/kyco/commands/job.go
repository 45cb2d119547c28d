package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"kyco/cmd/kyco/cmdutil"
	"kyco/internal/control"
	"kyco/internal/kyco"
)

func newJobCmd(client *cmdutil.Client) *cobra.Command {
	cmd := &cobra.Command{Use: "job", Short: "Inspect and control orchestrated jobs"}

	cmd.AddCommand(
		newJobListCmd(client),
		newJobGetCmd(client),
		newJobStartCmd(client),
		newJobQueueCmd(client),
		newJobAbortCmd(client),
		newJobContinueCmd(client),
		newJobWaitCmd(client),
		newJobOutputCmd(client),
		newJobDeleteCmd(client),
	)
	return cmd
}

func newJobListCmd(client *cmdutil.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Jobs []kyco.Job `json:"jobs"`
			}
			if err := client.Do("GET", "/jobs", nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd, resp.Jobs)
		},
	}
}

func parseJobID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, cmdutil.Usage("invalid job id %q", arg)
	}
	return id, nil
}

func newJobGetCmd(client *cmdutil.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a single job",
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
			return printJSON(cmd, job)
		},
	}
}

func newJobStartCmd(client *cmdutil.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Admit a pending job for execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			var job kyco.Job
			if err := client.Do("POST", fmt.Sprintf("/jobs/%d/start", id), nil, &job); err != nil {
				return err
			}
			return printJSON(cmd, job)
		},
	}
}

func newJobQueueCmd(client *cmdutil.Client) *cobra.Command {
	var agentID, agents, skill, file string
	c := &cobra.Command{
		Use:   "queue",
		Short: "Create and queue a job (or, with --agents, fan it out to a group)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if skill == "" {
				return cmdutil.Usage("--skill is required")
			}
			if agentID == "" && agents == "" {
				return cmdutil.Usage("one of --agent or --agents is required")
			}

			req := control.JobCreateRequest{
				AgentID: agentID,
				Skill:   skill,
				Selection: control.SelectionRequest{
					File: file,
				},
				Run: true,
			}
			if agents != "" {
				req.Agents = splitCommaList(agents)
				req.AgentID = ""
			}

			if len(req.Agents) > 0 {
				var resp control.JobGroupCreateResponse
				if err := client.Do("POST", "/jobs", req, &resp); err != nil {
					return err
				}
				return printJSON(cmd, resp)
			}

			var resp control.JobCreateResponse
			if err := client.Do("POST", "/jobs", req, &resp); err != nil {
				return err
			}
			return printJSON(cmd, resp.Job)
		},
	}
	c.Flags().StringVar(&agentID, "agent", "", "agent id to run")
	c.Flags().StringVar(&agents, "agents", "", "comma-separated agent ids to fan out as a group")
	c.Flags().StringVar(&skill, "skill", "", "skill id to run")
	c.Flags().StringVar(&file, "file", "", "source file scope")
	return c
}

func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newJobAbortCmd(client *cmdutil.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "abort <id>",
		Short: "Cancel a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return client.Do("POST", fmt.Sprintf("/jobs/%d/abort", id), nil, nil)
		},
	}
}

func newJobContinueCmd(client *cmdutil.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "continue <id> <instruction>",
		Short: "Resume a finished job's session with a follow-up instruction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			req := control.JobContinueRequest{Instruction: args[1]}
			var resp control.JobContinueResponse
			if err := client.Do("POST", fmt.Sprintf("/jobs/%d/continue", id), req, &resp); err != nil {
				return err
			}
			return printJSON(cmd, resp.Job)
		},
	}
}

func newJobWaitCmd(client *cmdutil.Client) *cobra.Command {
	var timeout time.Duration
	c := &cobra.Command{
		Use:   "wait <id>",
		Short: "Block until a job reaches a terminal status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			deadline := time.Now().Add(timeout)
			for {
				var job kyco.Job
				if err := client.Do("GET", fmt.Sprintf("/jobs/%d", id), nil, &job); err != nil {
					return err
				}
				if job.Status.Terminal() {
					return printJSON(cmd, job)
				}
				if timeout > 0 && time.Now().After(deadline) {
					return cmdutil.Failure(fmt.Errorf("timed out waiting for job %d", id))
				}
				time.Sleep(500 * time.Millisecond)
			}
		},
	}
	c.Flags().DurationVar(&timeout, "timeout", 0, "max time to wait (0 = no limit)")
	return c
}

func newJobOutputCmd(client *cmdutil.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "output <id>",
		Short: "Print a job's full response text",
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
			cmd.Println(job.FullResponse)
			return nil
		},
	}
}

func newJobDeleteCmd(client *cmdutil.Client) *cobra.Command {
	var keepWorktree bool
	c := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			req := control.JobDeleteRequest{KeepWorktree: &keepWorktree}
			var resp control.JobDeleteResponse
			if err := client.Do("DELETE", fmt.Sprintf("/jobs/%d", id), req, &resp); err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	c.Flags().BoolVar(&keepWorktree, "keep-worktree", true, "keep the job's git worktree after deleting its record")
	return c
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return cmdutil.Failure(err)
	}
	cmd.Println(string(data))
	return nil
}
