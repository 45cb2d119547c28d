// Package trailer parses the structured-output trailer (spec.md §6.4): a
// YAML block delimited by "---kyco" / "---" fences that an agent appends
// to its final response so the GUI can surface a title/summary/state
// without the user reading the full transcript.
//
// gopkg.in/yaml.v3 is used for the decode, the same YAML library the
// teacher and the rest of the pack depend on throughout.
package trailer

import (
	"strings"

	"gopkg.in/yaml.v3"

	"kyco/internal/kyco"
)

const (
	openFence  = "---kyco"
	closeFence = "---"
)

// Parse extracts the last "---kyco"/"---"-fenced block in text and
// decodes it into a kyco.Result. It returns (nil, false) if no
// well-formed trailer is present; a malformed trailer is treated the same
// as a missing one rather than surfacing a parse error, since the
// trailer is an optional enhancement and must never fail the job.
func Parse(text string) (*kyco.Result, bool) {
	lines := strings.Split(text, "\n")

	start := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == openFence {
			start = i
			break
		}
	}
	if start == -1 {
		return nil, false
	}

	end := -1
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == closeFence {
			end = i
			break
		}
	}
	if end == -1 {
		return nil, false
	}

	block := strings.Join(lines[start+1:end], "\n")

	var result kyco.Result
	if err := yaml.Unmarshal([]byte(block), &result); err != nil {
		return nil, false
	}
	return &result, true
}

// StripTrailer removes the last trailer block from text, for callers that
// want the human-facing summary without the machine-readable fence.
func StripTrailer(text string) string {
	lines := strings.Split(text, "\n")

	start := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == openFence {
			start = i
			break
		}
	}
	if start == -1 {
		return text
	}
	return strings.TrimRight(strings.Join(lines[:start], "\n"), "\n")
}
