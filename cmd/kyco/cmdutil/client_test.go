package cmdutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func newClient(baseURL, token string) *Client {
	return &Client{baseURL: baseURL, token: token, http: http.DefaultClient}
}

func TestDoDecodesSuccessResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/jobs", r.URL.Path)
		require.Equal(t, "tok", r.Header.Get("X-KYCO-Token"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL, "tok")
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.Do(http.MethodGet, "/jobs", nil, &out))
	require.True(t, out.OK)
}

func TestDoReturnsFailureOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad skill"}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL, "")
	err := c.Do(http.MethodPost, "/jobs", map[string]string{"skill": "nope"}, nil)
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 1, exitErr.Code)
	require.Contains(t, exitErr.Error(), "bad skill")
}

func TestDoReturnsUnreachableOnConnRefused(t *testing.T) {
	c := newClient("http://127.0.0.1:1", "")
	err := c.Do(http.MethodGet, "/status", nil, nil)
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 3, exitErr.Code)
}

func TestNewClientFromEnvDefaultsAndOverrides(t *testing.T) {
	os.Unsetenv("KYCO_HTTP_ADDR")
	os.Unsetenv("KYCO_HTTP_TOKEN")
	c := NewClientFromEnv()
	require.Equal(t, "http://127.0.0.1:8745", c.baseURL)

	t.Setenv("KYCO_HTTP_ADDR", "http://example.local:9999")
	t.Setenv("KYCO_HTTP_TOKEN", "secret")
	c2 := NewClientFromEnv()
	require.Equal(t, "http://example.local:9999", c2.baseURL)
	require.Equal(t, "secret", c2.token)
}

func TestUsageFailureUnreachableExitCodes(t *testing.T) {
	require.Equal(t, 2, Usage("bad arg %d", 1).(*ExitError).Code)
	require.Equal(t, 1, Failure(require.AnError).(*ExitError).Code)
	require.Equal(t, 3, Unreachable(require.AnError).(*ExitError).Code)
}
