package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CYBAI/substrate-telemetry/internal/registry"
	"github.com/CYBAI/substrate-telemetry/internal/telemetry"
)

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(zerolog.Nop(), telemetry.FixedClock(1000), nil)
	noop := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return NewServer(zerolog.Nop(), reg, noop, noop), reg
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "ok", rec.Body.String(), path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNodesListing(t *testing.T) {
	srv, reg := newTestServer(t)

	id, err := reg.AddNode(telemetry.NodeDetails{
		Chain:          "Polkadot",
		Name:           "node-1",
		Implementation: "parity-polkadot",
		Version:        "0.9.1",
	})
	require.NoError(t, err)
	_, _, err = reg.UpdateStats(id, telemetry.NodeStats{Peers: 2, TxCount: 5})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nodes", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var views []struct {
		ID      uint64                `json:"id"`
		Details telemetry.NodeDetails `json:"details"`
		Stats   []json.Number         `json:"stats"`
		Block   []any                 `json:"block"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)

	assert.Equal(t, id, views[0].ID)
	assert.Equal(t, "Polkadot", views[0].Details.Chain)
	assert.Equal(t, []json.Number{"2", "5"}, views[0].Stats)
	// Zero chain position until a block is imported.
	require.Len(t, views[0].Block, 5)
	assert.Equal(t, float64(0), views[0].Block[0])
}

func TestNodesListingEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nodes", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
