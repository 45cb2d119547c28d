package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"kyco/cmd/kyco/cmdutil"
)

func newTestClient(baseURL string) *cmdutil.Client {
	return cmdutil.NewClient(baseURL, "")
}

func TestParseJobIDRejectsNonNumeric(t *testing.T) {
	_, err := parseJobID("abc")
	require.Error(t, err)
}

func TestParseJobIDAcceptsNumeric(t *testing.T) {
	id, err := parseJobID("42")
	require.NoError(t, err)
	require.EqualValues(t, 42, id)
}

func TestJobGetCmdPrintsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/jobs/7", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"id": 7, "agent_id": "claude", "status": "done"})
	}))
	defer srv.Close()

	t.Setenv("KYCO_HTTP_ADDR", srv.URL)
	t.Setenv("KYCO_HTTP_TOKEN", "")

	root := NewRootCmd(newTestClient(srv.URL))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"job", "get", "7"})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), `"agent_id": "claude"`)
}

func TestJobGetCmdRejectsBadID(t *testing.T) {
	root := NewRootCmd(newTestClient("http://127.0.0.1:1"))
	root.SetArgs([]string{"job", "get", "not-a-number"})
	root.SetOut(&bytes.Buffer{})
	err := root.Execute()
	require.Error(t, err)
}

func TestStatusCmdPrintsSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/status", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"jobs_total": 3, "jobs_running": 1})
	}))
	defer srv.Close()

	root := NewRootCmd(newTestClient(srv.URL))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"status"})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "jobs_total")
}
