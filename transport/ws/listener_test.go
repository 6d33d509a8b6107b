package ws

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/require"

	"orly.dev/dispatcher"
	"orly.dev/ratelimit"
	"orly.dev/registry"
	"orly.dev/session"
	"orly.dev/store"
	"orly.dev/utils/context"
)

func TestServeRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "ws-test-*")
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

	var sessID int
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		Serve(context.Bg(), w, r, func(addr string, conn *Listener) *session.Session {
			sessID++
			s := session.New("sess", addr, conn, deps)
			s.Start(context.Bg())
			return s
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(
		websocket.TextMessage, []byte(`["REQ","sub1",{"kinds":[1]}]`),
	))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(msg), `"EOSE"`)
}
