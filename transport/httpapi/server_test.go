package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"orly.dev/dispatcher"
	"orly.dev/ratelimit"
	"orly.dev/registry"
	"orly.dev/session"
	"orly.dev/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir, err := os.MkdirTemp("", "httpapi-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	sto, err := store.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sto.Close() })
	reg := registry.New()
	deps := session.Deps{
		Store:      sto,
		Registry:   reg,
		Dispatcher: dispatcher.New(reg),
		Limiter:    ratelimit.New(ratelimit.DefaultThresholds),
		RelayURL:   "ws://relay.test",
	}
	return NewServer(
		Info{Name: "test relay", Description: "a relay", Software: "orly.dev", Version: "0.0.0"},
		deps,
	)
}

func TestRelayInfoDocument(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "application/nostr+json")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var info RelayInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	require.Equal(t, "test relay", info.Name)
	require.Equal(t, DefaultLimits.MaxMessageLength, info.Limitation.MaxMessageLength)
	require.Contains(t, info.SupportedNIPs, 1)
	require.Contains(t, info.SupportedNIPs, 42)
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Sessions      int `json:"sessions"`
		Subscriptions int `json:"subscriptions"`
		Events        int `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, 0, out.Sessions)
}
