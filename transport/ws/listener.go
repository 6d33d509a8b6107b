// Package ws is the websocket transport binding for a session (spec.md
// §4.6/§6): it upgrades an HTTP request, reads inbound text frames into
// session.Session.HandleMessage, and implements session.Transport so the
// session package never depends on a websocket library directly.
// Grounded on the teacher's pkg/protocol/ws (Listener) and
// pkg/protocol/socketapi (A.Serve/Pinger/Upgrader).
package ws

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"

	"orly.dev/helpers"
	"orly.dev/session"
	"orly.dev/utils/chk"
	"orly.dev/utils/context"
	"orly.dev/utils/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait / 2
)

// Upgrader is the shared websocket upgrader: permissive on origin since
// this relay's access control happens at the protocol layer (NIP-42 AUTH),
// not at the HTTP handshake.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Listener wraps one upgraded websocket connection. It implements
// session.Transport (WriteFrame/Close).
type Listener struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewListener wraps an already-upgraded connection.
func NewListener(conn *websocket.Conn) *Listener { return &Listener{conn: conn} }

// WriteFrame implements session.Transport.
func (l *Listener) WriteFrame(deadline time.Time, b []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return l.conn.WriteMessage(websocket.TextMessage, b)
}

// Close implements session.Transport.
func (l *Listener) Close() error { return l.conn.Close() }

func (l *Listener) writeControl(messageType int, deadline time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteControl(messageType, nil, deadline)
}

// RemoteAddr determines the originating address for a request, preferring
// a reverse proxy's forwarding headers over the raw socket address.
func RemoteAddr(r *http.Request) string {
	if rr := helpers.GetRemoteFromReq(r); rr != "" {
		return rr
	}
	return r.RemoteAddr
}

// Serve upgrades r into a websocket, wires it to a new session.Session
// built from newSession, and runs the read loop until the connection
// closes, the session terminates, or ctx is done. It also runs the
// ping/pong liveness check from spec.md §4.6's idle-timeout rule.
//
// newSession receives the Listener (already satisfying session.Transport)
// and the remote address, and must return a started *session.Session.
func Serve(
	ctx context.T, w http.ResponseWriter, r *http.Request,
	newSession func(remoteAddr string, conn *Listener) *session.Session,
) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if chk.E(err) {
		log.E.F("websocket upgrade failed: %v", err)
		return
	}
	l := NewListener(conn)
	defer func() { _ = l.Close() }()

	addr := RemoteAddr(r)
	sess := newSession(addr, l)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	sessCtx, cancel := context.Cancel(ctx)
	defer cancel()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-sessCtx.Done():
				return
			case <-ticker.C:
				if sess.IdleFor() > session.IdleTimeout {
					log.D.F("%s idle timeout, closing", addr)
					sess.Close()
					return
				}
				if err := l.writeControl(websocket.PingMessage, time.Now().Add(writeWait)); chk.E(err) {
					sess.Close()
					return
				}
			}
		}
	}()

	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			if !strings.Contains(err.Error(), "use of closed network connection") {
				if websocket.IsUnexpectedCloseError(
					err, websocket.CloseNormalClosure, websocket.CloseGoingAway,
					websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure,
				) {
					log.W.F("unexpected close from %s: %v", addr, err)
				}
			}
			break
		}
		if typ != websocket.TextMessage {
			continue
		}
		sess.HandleMessage(sessCtx, msg)
	}
	sess.Close()
}
