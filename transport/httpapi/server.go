package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"lukechampine.com/frand"

	"orly.dev/encoders/filter"
	"orly.dev/helpers"
	"orly.dev/observability"
	"orly.dev/session"
	"orly.dev/transport/ws"
	"orly.dev/utils/chk"
	"orly.dev/utils/context"
	"orly.dev/utils/log"
)

// Info carries the static fields of the NIP-11 document that don't come
// from the running relay's limits (spec.md §6).
type Info struct {
	Name        string
	Description string
	Pubkey      string
	Contact     string
	Software    string
	Version     string
	Icon        string
}

// Server is the relay's HTTP entrypoint: it upgrades websocket connections
// into sessions at the root path, serves the NIP-11 document at the same
// path, and exposes an admin/stats surface under /admin. Grounded on the
// teacher's pkg/app/relay.Server (ServeHTTP/Start/Shutdown), generalized
// away from its relay.I/config.C abstractions toward this module's
// session.Deps wiring.
type Server struct {
	info       Info
	deps       session.Deps
	metrics    *observability.Counters
	router     chi.Router
	httpServer *http.Server
}

// NewServer builds a Server that upgrades connections into sessions built
// from deps, and reports info in its NIP-11 document. If deps.Hooks is a
// *observability.Counters, its snapshot is also exposed at /metrics in
// Prometheus text format; any other Hooks implementation (or nil) skips
// that route.
func NewServer(info Info, deps session.Deps) *Server {
	s := &Server{info: info, deps: deps}
	s.metrics, _ = deps.Hooks.(*observability.Counters)
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	api := humachi.New(r, &humachi.HumaConfig{OpenAPI: humachi.DefaultOpenAPIConfig()})
	huma.Register(
		api, huma.Operation{
			OperationID: "stats",
			Summary:     "Relay stats",
			Path:        "/admin/stats",
			Method:      http.MethodGet,
			Tags:        []string{"admin"},
			Description: helpers.GenerateDescription(
				"Report live session, subscription, and event counts", nil,
			),
		}, s.statsOperation,
	)
	if s.metrics != nil {
		r.Get("/metrics", s.handleMetrics)
	}
	return r
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	_, _ = w.Write([]byte(s.metrics.Snapshot().Prometheus()))
}

// StatsInput is the (empty) input for the admin/stats operation.
type StatsInput struct{}

// StatsOutput is the response body for the admin/stats operation.
type StatsOutput struct {
	Body struct {
		Sessions      int `json:"sessions"`
		Subscriptions int `json:"subscriptions"`
		Events        int `json:"events"`
	}
}

func (s *Server) statsOperation(ctx context.T, _ *StatsInput) (*StatsOutput, error) {
	out := &StatsOutput{}
	sessions, subs := s.deps.Registry.Stats()
	out.Body.Sessions = sessions
	out.Body.Subscriptions = subs
	if n, err := s.deps.Store.CountEvents(ctx, filter.New()); err == nil {
		out.Body.Events = int(n)
	}
	return out, nil
}

// ServeHTTP branches the root path between the websocket upgrade and the
// NIP-11 information document (spec.md §6); every other path goes to the
// chi router's registered operations.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		if r.Header.Get("Upgrade") == "websocket" {
			s.handleWebsocket(w, r)
			return
		}
		if r.Header.Get("Accept") == "application/nostr+json" {
			s.handleRelayInfo(w, r)
			return
		}
	}
	log.T.F("http request: %s from %s", r.URL.String(), helpers.GetRemoteFromReq(r))
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleRelayInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	limits := DefaultLimits
	limits.AuthRequired = s.deps.AuthRequired
	info := &RelayInfo{
		Name:          s.info.Name,
		Description:   s.info.Description,
		Pubkey:        s.info.Pubkey,
		Contact:       s.info.Contact,
		SupportedNIPs: SupportedNIPs,
		Software:      s.info.Software,
		Version:       s.info.Version,
		Limitation:    limits,
		Icon:          s.info.Icon,
	}
	chk.E(json.NewEncoder(w).Encode(info))
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Limiter.AdmitConnection(ws.RemoteAddr(r)) {
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}
	ws.Serve(
		context.Bg(), w, r,
		func(addr string, conn *ws.Listener) *session.Session {
			id := s.nextSessionID()
			sess := session.New(id, addr, conn, s.deps)
			sess.Start(context.Bg())
			return sess
		},
	)
}

// nextSessionID returns a random per-connection identifier; using a random
// suffix rather than a sequential counter means restarts never collide
// with a client's cached subscription bookkeeping.
func (s *Server) nextSessionID() string {
	buf := frand.Bytes(8)
	const digits = "0123456789abcdef"
	out := make([]byte, 16)
	for i, b := range buf {
		out[i*2] = digits[b>>4]
		out[i*2+1] = digits[b&0x0f]
	}
	return string(out)
}

// Start binds a TCP listener at host:port and serves HTTP requests behind
// CORS until the context is cancelled (spec.md §6). Grounded on the
// teacher's Server.Start.
func (s *Server) Start(ctx context.T, host string, port int) (err error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	log.I.F("starting relay listener at %s", addr)
	var ln net.Listener
	if ln, err = net.Listen("tcp", addr); err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Handler:           cors.Default().Handler(s),
		Addr:              addr,
		ReadHeaderTimeout: 7 * time.Second,
		IdleTimeout:       28 * time.Second,
	}
	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()
	if err = s.httpServer.Serve(ln); err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server and the relay's rate limiter
// sweep loop.
func (s *Server) Shutdown() {
	log.I.Ln("shutting down relay")
	if s.httpServer != nil {
		chk.E(s.httpServer.Shutdown(context.Bg()))
	}
	s.deps.Limiter.Close()
}
