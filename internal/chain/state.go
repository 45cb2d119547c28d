// Package chain implements the chain runner (C6): it sequences a
// ChainConfig's steps, using regex/plain-text state-token detection in
// agent output to gate trigger_on/skip_on conditions and bounded
// loop-backs, per spec.md §4.6.
//
// detectStates/detectStatesFromMode/shouldStepRun are ported line-for-line
// in behavior from original_source/src/agent/chain/state.rs, which is the
// authoritative reference for state-detection semantics the distilled
// spec only summarizes.
package chain

import (
	"regexp"
	"strings"

	"kyco/internal/config"
)

// detectStates returns every configured state whose pattern matches
// output, honoring each StateDef's IsRegex/CaseInsensitive flags. An
// invalid regex pattern falls back to a plain substring search rather
// than erroring, matching original_source's tolerant behavior.
func detectStates(states []config.StateDef, output string) []string {
	if output == "" {
		return nil
	}

	var detected []string
	for _, state := range states {
		matched := false
		for _, pattern := range state.Patterns {
			if matchesPattern(pattern, output, state.IsRegex, state.CaseInsensitive) {
				matched = true
				break
			}
		}
		if matched {
			detected = append(detected, state.ID)
		}
	}
	return detected
}

func matchesPattern(pattern, output string, isRegex, caseInsensitive bool) bool {
	if isRegex {
		p := pattern
		if caseInsensitive {
			p = "(?i)" + p
		}
		re, err := regexp.Compile(p)
		if err == nil {
			return re.MatchString(output)
		}
		// invalid regex: fall back to a plain text search
	}
	if caseInsensitive {
		return strings.Contains(strings.ToLower(output), strings.ToLower(pattern))
	}
	return strings.Contains(output, pattern)
}

// detectStatesFromMode auto-detects states from a skill's OutputStates
// list when a chain has no explicit state definitions, looking for
// phrasing like `state to "x"`, `state: x`, `set state to x`, or the bare
// state name, matching original_source's auto-detection heuristics.
func detectStatesFromMode(skill config.SkillConfig, output string) []string {
	if output == "" || len(skill.OutputStates) == 0 {
		return nil
	}

	outputLower := strings.ToLower(output)
	var detected []string

	for _, stateID := range skill.OutputStates {
		stateLower := strings.ToLower(stateID)
		patterns := []string{
			`state to "` + stateLower + `"`,
			"state: " + stateLower,
			"set state to " + stateLower,
			"setting state to " + stateLower,
			stateLower,
		}
		for _, p := range patterns {
			if strings.Contains(outputLower, p) {
				detected = append(detected, stateID)
				break
			}
		}
	}
	return detected
}

// shouldStepRun evaluates a step's trigger_on/skip_on gate against the
// states detected from the previous step's output. skip_on is checked
// first: any detected state present in skip_on vetoes the step outright,
// even if trigger_on would otherwise fire it.
func shouldStepRun(step config.ChainStep, detectedStates []string) bool {
	if len(step.SkipOn) > 0 {
		for _, d := range detectedStates {
			if contains(step.SkipOn, d) {
				return false
			}
		}
	}

	if len(step.TriggerOn) > 0 {
		if len(detectedStates) == 0 {
			return false
		}
		for _, d := range detectedStates {
			if contains(step.TriggerOn, d) {
				return true
			}
		}
		return false
	}

	return true
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
