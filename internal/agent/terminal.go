package agent

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/creack/pty"

	"kyco/internal/bridge"
	"kyco/internal/config"
	"kyco/internal/kerrors"
	"kyco/internal/kyco"
)

// TerminalAdapter wraps another Adapter's request-building logic but runs
// the underlying CLI directly in a pseudo-terminal instead of through the
// bridge sidecar, for the optional interactive REPL path spec.md §4.3
// describes as "not on the critical orchestration flow". Its build-request
// step is delegated to Wrapped so model/tool/permission settings stay
// consistent between the print-mode and REPL-mode variants of the same
// SDK.
type TerminalAdapter struct {
	Wrapped Adapter
}

func (a *TerminalAdapter) SDK() config.SDK { return a.Wrapped.SDK() }

func (a *TerminalAdapter) BuildRequest(job kyco.Job, agentCfg config.AgentConfig, skill config.SkillConfig, prompt, workspacePath string) bridge.QueryRequest {
	return a.Wrapped.BuildRequest(job, agentCfg, skill, prompt, workspacePath)
}

// RunInteractive launches the SDK's CLI binary attached to a pty, writing
// prompt to its stdin and copying its combined output to out until the
// process exits or ctx is cancelled. Neither the executor's automated
// runner nor any CLI command calls it.
func (a *TerminalAdapter) RunInteractive(ctx context.Context, binary string, args []string, workspacePath, prompt string, out io.Writer) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = workspacePath

	f, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("%w: pty start: %v", kerrors.ErrAdapterError, err)
	}
	defer f.Close()

	if prompt != "" {
		if _, err := f.Write([]byte(prompt + "\n")); err != nil {
			return fmt.Errorf("%w: pty write: %v", kerrors.ErrAdapterError, err)
		}
	}

	copyDone := make(chan error, 1)
	go func() {
		_, err := io.Copy(out, f)
		copyDone <- err
	}()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return ctx.Err()
	case err := <-copyDone:
		waitErr := cmd.Wait()
		if err != nil && err != io.EOF {
			return fmt.Errorf("%w: pty read: %v", kerrors.ErrAdapterError, err)
		}
		if waitErr != nil {
			return fmt.Errorf("%w: process exit: %v", kerrors.ErrAdapterError, waitErr)
		}
		return nil
	}
}
