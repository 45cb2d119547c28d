package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"kyco/internal/agent"
	"kyco/internal/bridge"
	"kyco/internal/config"
	"kyco/internal/events"
	"kyco/internal/executor"
	"kyco/internal/group"
	"kyco/internal/kyco"
	"kyco/internal/store"
)

type fakeBridge struct{}

func (fakeBridge) Query(ctx context.Context, req bridge.QueryRequest) (<-chan bridge.Event, error) {
	ch := make(chan bridge.Event)
	close(ch)
	return ch, nil
}

func (fakeBridge) Abort(ctx context.Context, sessionID string) error { return nil }

func newTestServer(t *testing.T, token string) (*Server, *store.Store) {
	t.Helper()
	st := store.New(t.TempDir())
	cfg := &config.Config{Settings: config.DefaultSettings()}
	cfg.Settings.HTTPToken = token
	snap := config.NewSnapshot(cfg)
	reg := agent.NewRegistry()
	bus := events.NewBus()
	exec := executor.New(st, snap, reg, fakeBridge{}, nil, bus, nil)
	groups := group.NewCoordinator(st, nil)
	return NewServer(snap, st, exec, groups, nil, bus), st
}

func doJSON(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(tokenHeader, token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCreateJobAndGet(t *testing.T) {
	s, _ := newTestServer(t, "")

	rec := doJSON(t, s, http.MethodPost, "/jobs", "", JobCreateRequest{
		AgentID: "claude",
		Skill:   "review",
		Selection: SelectionRequest{
			File: "main.go",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created JobCreateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "claude", created.Job.AgentID)
	require.Equal(t, kyco.StatusPending, created.Job.Status)

	rec = doJSON(t, s, http.MethodGet, "/jobs", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareRejectsBadToken(t *testing.T) {
	s, _ := newTestServer(t, "secret")

	rec := doJSON(t, s, http.MethodGet, "/jobs", "wrong", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/jobs", "secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthzIsUnauthenticated(t *testing.T) {
	s, _ := newTestServer(t, "secret")
	rec := doJSON(t, s, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetMissingJobReturns404(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := doJSON(t, s, http.MethodGet, "/jobs/999", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAbortNonRunningJobFails(t *testing.T) {
	s, st := newTestServer(t, "")
	id := st.CreateJob(&kyco.Job{AgentID: "claude"})

	rec := doJSON(t, s, http.MethodPost, "/jobs/"+itoa(id)+"/abort", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteJobRemovesIt(t *testing.T) {
	s, st := newTestServer(t, "")
	id := st.CreateJob(&kyco.Job{AgentID: "claude"})

	rec := doJSON(t, s, http.MethodDelete, "/jobs/"+itoa(id), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := st.Get(id)
	require.Error(t, err)
}

func TestStatusReportsJobCounts(t *testing.T) {
	s, st := newTestServer(t, "")
	st.CreateJob(&kyco.Job{AgentID: "claude"})

	rec := doJSON(t, s, http.MethodGet, "/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.EqualValues(t, 1, body["jobs_total"])
}

func TestCreateJobWithAgentsFansOutGroup(t *testing.T) {
	s, st := newTestServer(t, "")

	rec := doJSON(t, s, http.MethodPost, "/jobs", "", JobCreateRequest{
		Agents: []string{"claude", "codex"},
		Skill:  "review",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created JobGroupCreateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Len(t, created.JobIDs, 2)
	require.NotZero(t, created.GroupID)

	g, err := st.GetGroup(created.GroupID)
	require.NoError(t, err)
	require.ElementsMatch(t, created.JobIDs, g.JobIDs)
}

func TestContinueJobClonesRatherThanMutatesOriginal(t *testing.T) {
	s, st := newTestServer(t, "")

	id := st.CreateJob(&kyco.Job{AgentID: "claude", Skill: "review", BridgeSessionID: "sess-1"})
	require.NoError(t, st.SetStatus(id, kyco.StatusRunning))
	require.NoError(t, st.SetStatus(id, kyco.StatusDone))

	rec := doJSON(t, s, http.MethodPost, "/jobs/"+itoa(id)+"/continue", "", JobContinueRequest{Instruction: "also handle nils"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JobContinueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEqual(t, id, resp.Job.ID)
	require.Equal(t, kyco.StatusQueued, resp.Job.Status)
	require.Equal(t, "sess-1", resp.Job.BridgeSessionID)
	require.Equal(t, "also handle nils", resp.Job.Description)

	original, err := st.Get(id)
	require.NoError(t, err)
	require.Equal(t, kyco.StatusDone, original.Status)
	require.Empty(t, original.Description)
}

func itoa(id kyco.JobID) string {
	b, _ := json.Marshal(id)
	return string(b)
}
