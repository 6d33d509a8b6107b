// Package ratelimit implements the per-remote-address sliding-window
// admission control from spec.md §4.4: three independent windows per
// address (events, queries, live connections), sharded so unrelated
// peers never contend (spec.md §5). Grounded on the teacher's
// xsync.MapOf-backed concurrent map idiom (pkg/protocol/ws/pool.go's
// `Relays *xsync.MapOf[string, *Client]`) and go.uber.org/atomic counters
// used throughout the teacher's connection-tracking code.
package ratelimit

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
)

// Window is the sliding-window width for event/query admission.
const Window = 60 * time.Second

// SweepInterval is how often stale, zero-activity addresses are evicted.
const SweepInterval = 5 * time.Minute

// Thresholds are the per-address admission limits (spec.md §4.4, all
// configurable).
type Thresholds struct {
	EventsPerWindow int
	QueriesPerWindow int
	MaxConnections  int
}

// DefaultThresholds matches the numbers named in spec.md §4.4.
var DefaultThresholds = Thresholds{
	EventsPerWindow:  60,
	QueriesPerWindow: 120,
	MaxConnections:   10,
}

// bucket holds one address's admission state. The sliding-window
// timestamp slices are guarded by a plain mutex per address — contention
// is confined to a single remote address's own traffic, which sharding
// by address (one bucket per key in the map) already isolates from every
// other peer.
type bucket struct {
	mu          sync.Mutex
	eventTimes  []time.Time
	queryTimes  []time.Time
	connections atomic.Int32
	lastActive  atomic.Int64 // unix seconds
}

func newBucket() *bucket {
	b := &bucket{}
	b.lastActive.Store(time.Now().Unix())
	return b
}

// Limiter is the process-wide rate limiter, sharded by remote address via
// an xsync.MapOf so unrelated addresses never block each other.
type Limiter struct {
	thresholds Thresholds
	buckets    *xsync.MapOf[string, *bucket]
	stop       chan struct{}
}

// New constructs a Limiter using t as its thresholds and starts the
// periodic sweep goroutine.
func New(t Thresholds) *Limiter {
	l := &Limiter{
		thresholds: t,
		buckets:    xsync.NewMapOf[string, *bucket](),
		stop:       make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Close stops the sweep goroutine.
func (l *Limiter) Close() { close(l.stop) }

func (l *Limiter) bucketFor(addr string) *bucket {
	b, _ := l.buckets.LoadOrCompute(addr, func() *bucket { return newBucket() })
	return b
}

func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append(times[:0], times[i:]...)
}

// AdmitConnection reports whether addr may open another concurrent
// connection, incrementing its live count on success. Paired with
// ReleaseConnection.
func (l *Limiter) AdmitConnection(addr string) bool {
	b := l.bucketFor(addr)
	b.touch()
	for {
		cur := b.connections.Load()
		if int(cur) >= l.thresholds.MaxConnections {
			return false
		}
		if b.connections.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// ReleaseConnection decrements addr's live connection count, saturating
// at zero (idempotent on underflow, per spec.md §4.4).
func (l *Limiter) ReleaseConnection(addr string) {
	b, ok := l.buckets.Load(addr)
	if !ok {
		return
	}
	for {
		cur := b.connections.Load()
		if cur <= 0 {
			return
		}
		if b.connections.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// AdmitEvent reports whether addr may submit another EVENT this window,
// recording the attempt's timestamp on success.
func (l *Limiter) AdmitEvent(addr string) bool {
	b := l.bucketFor(addr)
	b.touch()
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	b.eventTimes = prune(b.eventTimes, now.Add(-Window))
	if len(b.eventTimes) >= l.thresholds.EventsPerWindow {
		return false
	}
	b.eventTimes = append(b.eventTimes, now)
	return true
}

// AdmitQuery reports whether addr may submit another REQ/COUNT this
// window, recording the attempt's timestamp on success.
func (l *Limiter) AdmitQuery(addr string) bool {
	b := l.bucketFor(addr)
	b.touch()
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	b.queryTimes = prune(b.queryTimes, now.Add(-Window))
	if len(b.queryTimes) >= l.thresholds.QueriesPerWindow {
		return false
	}
	b.queryTimes = append(b.queryTimes, now)
	return true
}

func (b *bucket) touch() { b.lastActive.Store(time.Now().Unix()) }

func (b *bucket) idle(now time.Time) bool {
	if b.connections.Load() > 0 {
		return false
	}
	return now.Unix()-b.lastActive.Load() > int64(Window/time.Second)
}

func (l *Limiter) sweepLoop() {
	t := time.NewTicker(SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	now := time.Now()
	var stale []string
	l.buckets.Range(func(addr string, b *bucket) bool {
		b.mu.Lock()
		b.eventTimes = prune(b.eventTimes, now.Add(-Window))
		b.queryTimes = prune(b.queryTimes, now.Add(-Window))
		empty := len(b.eventTimes) == 0 && len(b.queryTimes) == 0
		b.mu.Unlock()
		if empty && b.idle(now) {
			stale = append(stale, addr)
		}
		return true
	})
	for _, addr := range stale {
		l.buckets.Delete(addr)
	}
}
