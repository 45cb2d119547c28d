// Package bridge implements the client (C4) that talks to the external
// agent SDK sidecar process over HTTP + Server-Sent Events (spec.md §1,
// §6.2 — the sidecar itself, wrapping the real Claude/Codex/Gemini SDKs,
// is explicitly out of scope and treated as opaque).
//
// The event-tag shapes (tool_use, token usage, session id) are grounded on
// the teacher's internal/coding CLI backends, which parse an analogous
// newline-delimited JSON event stream from a spawned subprocess; the
// bridge client here uses the same event-kind taxonomy but reads it off an
// SSE stream from a long-lived HTTP connection instead of a subprocess's
// stdout, per spec.md's sidecar architecture.
package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kyco/internal/kerrors"
)

// EventType tags the discriminated union of bridge events (spec.md §6.2).
type EventType string

const (
	EventSessionStart       EventType = "session_start"
	EventText               EventType = "text"
	EventToolUse            EventType = "tool_use"
	EventToolResult         EventType = "tool_result"
	EventError              EventType = "error"
	EventSessionComplete    EventType = "session_complete"
	EventToolApprovalNeeded EventType = "tool_approval_needed"
	EventHookPreToolUse     EventType = "hook_pre_tool_use"
	EventHeartbeat          EventType = "heartbeat"
)

// Usage is the token/cost accounting reported on SessionComplete, shaped
// after the teacher's coding.TokenUsage.
type Usage struct {
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	CacheReadTokens  int64   `json:"cache_read_tokens"`
	CacheWriteTokens int64   `json:"cache_write_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// Event is one line of the bridge's SSE stream, decoded into the field
// relevant to its Type; unused fields are left zero.
type Event struct {
	Type EventType `json:"type"`

	SessionID string   `json:"session_id,omitempty"`
	Model     string   `json:"model,omitempty"`
	Tools     []string `json:"tools,omitempty"`

	Content string `json:"content,omitempty"`
	Partial bool   `json:"partial,omitempty"`

	ToolName   string          `json:"tool_name,omitempty"`
	ToolInput  json.RawMessage `json:"tool_input,omitempty"`
	ToolUseID  string          `json:"tool_use_id,omitempty"`

	Success      bool     `json:"success,omitempty"`
	Output       string   `json:"output,omitempty"`
	FilesChanged []string `json:"files_changed,omitempty"`

	Message string `json:"message,omitempty"`

	DurationMS int64  `json:"duration_ms,omitempty"`
	Usage      Usage  `json:"usage,omitempty"`
	Result     string `json:"result,omitempty"`

	RequestID string `json:"request_id,omitempty"`
}

// QueryRequest is the body POSTed to the sidecar to start or resume a run
// (spec.md §6.2).
type QueryRequest struct {
	AgentID         string            `json:"agent_id"`
	Instruction     string            `json:"instruction"`
	SystemPrompt    string            `json:"system_prompt,omitempty"`
	Model           string            `json:"model,omitempty"`
	MaxTurns        int               `json:"max_turns,omitempty"`
	ResumeSessionID string            `json:"resume_session_id,omitempty"`
	WorkspacePath   string            `json:"workspace_path"`
	AllowedTools    []string          `json:"allowed_tools,omitempty"`
	DisallowedTools []string          `json:"disallowed_tools,omitempty"`
	PermissionMode  string            `json:"permission_mode,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
}

// Client talks to one bridge sidecar instance over HTTP/SSE.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client for the sidecar listening at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 0}, // streaming: no overall deadline, ctx governs cancellation
	}
}

// Query opens a streaming query against the sidecar and returns a channel
// of decoded Events. The channel is closed when the stream ends or ctx is
// cancelled. Scanning errors surface as a final EventError.
func (c *Client) Query(ctx context.Context, req QueryRequest) (<-chan Event, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("bridge: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("bridge: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrBridgeUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", kerrors.ErrBridgeUnavailable, resp.StatusCode)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

		var dataLines []string
		flush := func() {
			if len(dataLines) == 0 {
				return
			}
			payload := strings.Join(dataLines, "\n")
			dataLines = dataLines[:0]

			var ev Event
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				select {
				case out <- Event{Type: EventError, Message: fmt.Sprintf("bridge: decode event: %v", err)}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}

		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				flush()
			case strings.HasPrefix(line, "data:"):
				dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			default:
				// comment or other SSE field (event:, id:, retry:) — ignored,
				// the bridge encodes everything needed inside the data payload
			}

			select {
			case <-ctx.Done():
				return
			default:
			}
		}
		flush()

		if err := scanner.Err(); err != nil {
			select {
			case out <- Event{Type: EventError, Message: fmt.Sprintf("bridge: stream read: %v", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

// Abort requests cancellation of a running session. It is a best-effort
// signal: a 404 (unknown session) counts as success, and the executor
// does not wait for a terminal event after calling it.
func (c *Client) Abort(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions/"+sessionID+"/abort", nil)
	if err != nil {
		return fmt.Errorf("bridge: build abort request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", kerrors.ErrBridgeUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: abort status %d", kerrors.ErrBridgeUnavailable, resp.StatusCode)
	}
	return nil
}

// ApproveTool answers a ToolApprovalNeeded event.
func (c *Client) ApproveTool(ctx context.Context, requestID string, approve bool) error {
	body, _ := json.Marshal(map[string]any{"request_id": requestID, "approve": approve})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/approvals/"+requestID, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("bridge: build approval request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", kerrors.ErrBridgeUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: approval status %d", kerrors.ErrBridgeUnavailable, resp.StatusCode)
	}
	return nil
}

// pingTimeout bounds the health check the daemon runs once at startup; a
// failed check is logged and does not hold back job admission.
const pingTimeout = 3 * time.Second

// Ping checks sidecar liveness.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("bridge: build ping request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", kerrors.ErrBridgeUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ping status %d", kerrors.ErrBridgeUnavailable, resp.StatusCode)
	}
	return nil
}
