// Package dispatcher fans out an accepted event to every subscription in
// the registry that matches it (spec.md §4.7). Split out of the
// teacher's combined publisher.S.Deliver (protocol/socketapi/publisher.go)
// — matching and indexing stay in orly.dev/registry, this package only
// does the per-session enqueue, drop accounting, and persistent-drop
// termination signal.
package dispatcher

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"

	"orly.dev/encoders/event"
	"orly.dev/registry"
	"orly.dev/utils/log"
)

// DropWindow and MaxDropsPerWindow implement spec.md §4.7's "persistent
// drops (> 1000 in 60 s) trigger session termination" rule.
const (
	DropWindow       = 60 * time.Second
	MaxDropsPerWindow = 1000
)

// Target is what the dispatcher needs from a session to deliver an
// event: the registry.Sink identity plus the enqueue operation itself.
// A session implements this by wrapping its bounded outbound queue.
type Target interface {
	registry.Sink
	// EnqueueEvent attempts to hand the session an EVENT(subID, ev)
	// frame for its outbound writer. It returns false if the session's
	// outbound queue was full and the frame was dropped.
	EnqueueEvent(subID string, ev *event.E) bool
	// Terminate is invoked when this session has exceeded the
	// persistent-drop threshold; the session sends NOTICE("slow-consumer")
	// and transitions to Closing.
	Terminate(reason string)
}

// dropCounter tracks one session's drops in the current rolling window.
type dropCounter struct {
	count     atomic.Int64
	windowEnd atomic.Int64 // unix nanoseconds
}

// Dispatcher walks the registry for each accepted event and enqueues
// matching frames, tracking per-session drop counts so a persistently
// slow consumer gets disconnected instead of silently falling behind
// forever (spec.md §4.7, §5). Dispatch runs inline on whichever
// session's task accepted the triggering event, so multiple sessions
// call into one Dispatcher concurrently — drops is an xsync.MapOf for
// exactly that reason.
type Dispatcher struct {
	reg   *registry.Registry
	drops *xsync.MapOf[string, *dropCounter]
}

// New builds a Dispatcher over reg.
func New(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{reg: reg, drops: xsync.NewMapOf[string, *dropCounter]()}
}

// Dispatch delivers ev to every live subscription that matches it. Per
// spec.md §4.7, the Dispatcher does not de-duplicate across
// subscriptions owned by the same session: an overlapping double REQ
// gets the event twice.
func (d *Dispatcher) Dispatch(ev *event.E) {
	d.reg.ForEachMatch(ev, func(sink registry.Sink, subID string) {
		target, ok := sink.(Target)
		if !ok {
			return
		}
		if target.EnqueueEvent(subID, ev) {
			return
		}
		d.recordDrop(target)
	})
}

func (d *Dispatcher) recordDrop(target Target) {
	sid := target.SessionID()
	dc, _ := d.drops.LoadOrCompute(sid, func() *dropCounter { return &dropCounter{} })
	now := time.Now().UnixNano()
	if dc.windowEnd.Load() < now {
		dc.windowEnd.Store(now + int64(DropWindow))
		dc.count.Store(0)
	}
	n := dc.count.Add(1)
	log.W.F("dropped EVENT frame for session %s (outbound queue full)", sid)
	if n > MaxDropsPerWindow {
		target.Terminate("slow-consumer")
	}
}

// ForgetSession drops a session's drop-tracking state on teardown, so the
// map doesn't grow unbounded across the relay's lifetime.
func (d *Dispatcher) ForgetSession(sessionID string) {
	d.drops.Delete(sessionID)
}
