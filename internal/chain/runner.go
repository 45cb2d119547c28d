package chain

import (
	"context"
	"fmt"
	"time"

	"kyco/internal/config"
	"kyco/internal/events"
	"kyco/internal/kerrors"
	"kyco/internal/kyco"
	"kyco/internal/store"
)

// StepRunner is the narrow slice of the executor a chain needs: run one
// job synchronously to completion and report its terminal status plus
// output. It is intentionally not the full executor.Executor so the
// chain runner can be tested against a fake without standing up the
// admission/concurrency machinery.
type StepRunner interface {
	// RunSyncToCompletion submits id and blocks until it reaches a
	// terminal status or ctx is cancelled.
	RunSyncToCompletion(ctx context.Context, id kyco.JobID) (kyco.Job, error)
}

// Runner sequences a ChainConfig's steps for one parent job, ported from
// original_source's chain execution loop: detect states from the previous
// step's output, gate the next step with shouldStepRun, and support a
// single bounded loop-back edge per step.
type Runner struct {
	store  *store.Store
	runner StepRunner
	chain  config.ChainConfig
	skills map[string]config.SkillConfig
	bus    *events.Bus
}

// NewRunner constructs a Runner for chain, using st to create each step's
// job and runner to drive it to completion. skills resolves a step's
// OutputStates when the chain defines no explicit StateDefs of its own
// (original_source's mode-based auto-detection fallback). bus may be nil
// (as in unit tests); when set, every step transition is published for
// the control surface's SSE stream to pick up.
func NewRunner(st *store.Store, runner StepRunner, chain config.ChainConfig, skills map[string]config.SkillConfig, bus *events.Bus) *Runner {
	return &Runner{store: st, runner: runner, chain: chain, skills: skills, bus: bus}
}

func (r *Runner) publish(typ events.Type, data any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.New(typ, data))
}

// Run executes base as the template for every step, recording each step's
// outcome into base's ChainStepHistory, and returns the final job state.
// MaxLoops bounds total loop-backs so a misconfigured chain cannot spin
// forever (spec.md §4.6 edge case).
func (r *Runner) Run(ctx context.Context, base kyco.Job) (kyco.Job, error) {
	maxLoops := r.chain.MaxLoops
	if maxLoops <= 0 {
		maxLoops = 1
	}

	loops := 0
	stepIdx := 0
	var lastOutput string
	var detected []string

	for stepIdx < len(r.chain.Steps) {
		step := r.chain.Steps[stepIdx]

		if stepIdx > 0 && !shouldStepRun(step, detected) {
			stepIdx++
			continue
		}

		job := base.Clone()
		job.Skill = step.Skill
		if step.Agent != "" {
			job.AgentID = step.Agent
		}
		job.ChainCurrentStep = stepIdx
		if step.InjectContext && r.chain.PassFullResponse {
			job.IDEContext = lastOutput
		}

		id := r.store.CreateJob(&job)
		finished, err := r.runner.RunSyncToCompletion(ctx, id)
		if err != nil {
			return finished, fmt.Errorf("chain: step %d (%s): %w", stepIdx, step.Skill, err)
		}

		lastOutput = finished.FullResponse
		if len(r.chain.States) > 0 {
			detected = detectStates(r.chain.States, lastOutput)
		} else if skill, ok := r.skills[step.Skill]; ok {
			detected = detectStatesFromMode(skill, lastOutput)
		} else {
			detected = nil
		}

		record := kyco.ChainStepRecord{
			StepIndex: stepIdx,
			Skill:     step.Skill,
			Success:   finished.Status == kyco.StatusDone,
		}
		if len(detected) > 0 {
			record.State = detected[0]
		}
		base.ChainStepHistory = append(base.ChainStepHistory, record)
		r.publish(events.TypeChainStep, record)

		if finished.Status != kyco.StatusDone && r.chain.StopOnFailure {
			return finished, fmt.Errorf("chain: step %d (%s) failed: %w", stepIdx, step.Skill, kerrors.ErrAdapterError)
		}

		// Loop back only if this step's own trigger_on matched the states
		// detected from its output (spec.md §4.6 step 6); a step with
		// loop_to set but whose trigger never fired simply advances.
		if step.LoopTo > 0 && step.LoopTo <= stepIdx && triggerMatched(step, detected) {
			loops++
			if loops > maxLoops {
				return finished, fmt.Errorf("chain: exceeded max_loops=%d: %w", maxLoops, kerrors.ErrInvalidRequest)
			}
			stepIdx = step.LoopTo - 1
		}

		stepIdx++
	}

	base.Status = kyco.StatusDone
	now := time.Now()
	base.FinishedAt = &now
	base.FullResponse = lastOutput
	r.publish(events.TypeChainComplete, base)
	return base, nil
}

// triggerMatched reports whether any of detected (the states read from
// step's own output) appear in step's trigger_on list. A step with no
// trigger_on never loops, regardless of loop_to.
func triggerMatched(step config.ChainStep, detected []string) bool {
	if len(step.TriggerOn) == 0 {
		return false
	}
	for _, d := range detected {
		if contains(step.TriggerOn, d) {
			return true
		}
	}
	return false
}
