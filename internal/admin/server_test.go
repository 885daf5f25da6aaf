package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mgpu-project/mgpu/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshotter struct {
	resp wire.QueueResponse
}

func (f fakeSnapshotter) Snapshot() wire.QueueResponse {
	return f.resp
}

func TestHealthzReportsOK(t *testing.T) {
	s := New(fakeSnapshotter{}, 0)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpointIsServed(t *testing.T) {
	s := New(fakeSnapshotter{}, 0)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandlerAppliesCORSHeaders(t *testing.T) {
	s := New(fakeSnapshotter{}, 0)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dashboard.example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
