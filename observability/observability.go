// Package observability is the relay's metrics surface (spec.md §2/§7):
// a Hooks interface for the counters and latency buckets a session and
// store observe, and an atomic-counter default implementation. Rendering
// and exposition (scraping, dashboards) stay out of scope per spec.md's
// Non-goals — this package only defines what gets counted and a way to
// read the counts back out. Grounded on the teacher's
// pkg/app/relay.MetricsCollector (atomic counters behind a mutex,
// snapshot-to-map, Prometheus text exposition), generalized from its
// subscription-billing counters to the relay counters spec.md §7 names
// (events accepted/rejected by reason, active sessions/subscriptions,
// store latency).
package observability

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/atomic"
)

// Hooks is what the session calls into on every accepted/rejected event,
// session open/close, subscription open/close, and store operation it
// times; the store and dispatcher do not call it. A relay that doesn't care about metrics can pass
// NoOp{}; the default Counters implementation is what cmd/relayd wires by
// default.
type Hooks interface {
	EventAccepted()
	EventRejected(reason string)
	SessionOpened()
	SessionClosed()
	SubscriptionOpened()
	SubscriptionClosed()
	StoreLatency(op string, d time.Duration)
}

// NoOp implements Hooks with no-op methods, for callers that never wire a
// Counters (e.g. unit tests that don't care about metrics).
type NoOp struct{}

func (NoOp) EventAccepted()             {}
func (NoOp) EventRejected(string)       {}
func (NoOp) SessionOpened()             {}
func (NoOp) SessionClosed()             {}
func (NoOp) SubscriptionOpened()        {}
func (NoOp) SubscriptionClosed()        {}
func (NoOp) StoreLatency(string, time.Duration) {}

// latencyBuckets are the histogram boundaries for StoreLatency samples,
// matching the store's own timeout budget (spec.md §5's 5s store-call
// bound) with enough resolution below 100ms to notice regressions before
// they approach that ceiling.
var latencyBuckets = []time.Duration{
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

type histogram struct {
	counts [len(latencyBuckets) + 1]atomic.Int64 // last bucket is +Inf
	sum    atomic.Int64                          // nanoseconds
	total  atomic.Int64
}

func (h *histogram) observe(d time.Duration) {
	h.sum.Add(int64(d))
	h.total.Add(1)
	for i, b := range latencyBuckets {
		if d <= b {
			h.counts[i].Add(1)
			return
		}
	}
	h.counts[len(latencyBuckets)].Add(1)
}

// HistogramSnapshot is a read-only view of one histogram's bucket counts.
type HistogramSnapshot struct {
	Buckets []time.Duration
	Counts  []int64 // Counts[i] is the count for d <= Buckets[i]; Counts[len(Buckets)] is +Inf
	Count   int64
	SumNs   int64
}

func (h *histogram) snapshot() HistogramSnapshot {
	snap := HistogramSnapshot{Buckets: latencyBuckets, Counts: make([]int64, len(latencyBuckets)+1)}
	for i := range h.counts {
		snap.Counts[i] = h.counts[i].Load()
	}
	snap.Count = h.total.Load()
	snap.SumNs = h.sum.Load()
	return snap
}

// Counters is the default Hooks implementation: plain atomic counters, one
// per event-rejection reason plus the fixed session/subscription gauges
// and a per-store-operation latency histogram. Safe for concurrent use by
// every session and the store alike.
type Counters struct {
	eventsAccepted atomic.Int64
	eventsRejected atomic.Int64
	rejectReasons  rejectReasonMap

	activeSessions      atomic.Int64
	activeSubscriptions atomic.Int64

	storeLatency storeLatencyMap
}

// NewCounters returns an empty Counters.
func NewCounters() *Counters {
	return &Counters{
		rejectReasons: newRejectReasonMap(),
		storeLatency:  newStoreLatencyMap(),
	}
}

func (c *Counters) EventAccepted() { c.eventsAccepted.Add(1) }

func (c *Counters) EventRejected(reason string) {
	c.eventsRejected.Add(1)
	c.rejectReasons.counter(reason).Add(1)
}

func (c *Counters) SessionOpened()      { c.activeSessions.Add(1) }
func (c *Counters) SessionClosed()      { c.activeSessions.Add(-1) }
func (c *Counters) SubscriptionOpened() { c.activeSubscriptions.Add(1) }
func (c *Counters) SubscriptionClosed() { c.activeSubscriptions.Add(-1) }

func (c *Counters) StoreLatency(op string, d time.Duration) {
	c.storeLatency.histogramFor(op).observe(d)
}

// Snapshot is a point-in-time read of every counter, safe to serialize.
type Snapshot struct {
	EventsAccepted      int64
	EventsRejected      int64
	RejectReasons       map[string]int64
	ActiveSessions      int64
	ActiveSubscriptions int64
	StoreLatency        map[string]HistogramSnapshot
}

// Snapshot reads every counter's current value.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		EventsAccepted:      c.eventsAccepted.Load(),
		EventsRejected:      c.eventsRejected.Load(),
		RejectReasons:       c.rejectReasons.snapshot(),
		ActiveSessions:      c.activeSessions.Load(),
		ActiveSubscriptions: c.activeSubscriptions.Load(),
		StoreLatency:        c.storeLatency.snapshot(),
	}
}

// Prometheus renders the snapshot in Prometheus text exposition format.
// This is the one rendering the package provides; scraping/push is left
// to whatever operator tooling consumes it (out of scope per spec.md).
func (s Snapshot) Prometheus() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# TYPE orly_events_accepted_total counter\norly_events_accepted_total %d\n", s.EventsAccepted)
	fmt.Fprintf(&b, "# TYPE orly_events_rejected_total counter\norly_events_rejected_total %d\n", s.EventsRejected)
	reasons := make([]string, 0, len(s.RejectReasons))
	for r := range s.RejectReasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(
			&b, "orly_events_rejected_total{reason=%q} %d\n", r, s.RejectReasons[r],
		)
	}
	fmt.Fprintf(&b, "# TYPE orly_active_sessions gauge\norly_active_sessions %d\n", s.ActiveSessions)
	fmt.Fprintf(
		&b, "# TYPE orly_active_subscriptions gauge\norly_active_subscriptions %d\n",
		s.ActiveSubscriptions,
	)
	ops := make([]string, 0, len(s.StoreLatency))
	for op := range s.StoreLatency {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		h := s.StoreLatency[op]
		fmt.Fprintf(&b, "# TYPE orly_store_latency_seconds histogram\n")
		cumulative := int64(0)
		for i, bucket := range h.Buckets {
			cumulative += h.Counts[i]
			fmt.Fprintf(
				&b, "orly_store_latency_seconds_bucket{op=%q,le=%q} %d\n",
				op, bucket.String(), cumulative,
			)
		}
		cumulative += h.Counts[len(h.Buckets)]
		fmt.Fprintf(&b, "orly_store_latency_seconds_bucket{op=%q,le=\"+Inf\"} %d\n", op, cumulative)
		fmt.Fprintf(
			&b, "orly_store_latency_seconds_sum{op=%q} %f\n", op,
			time.Duration(h.SumNs).Seconds(),
		)
		fmt.Fprintf(&b, "orly_store_latency_seconds_count{op=%q} %d\n", op, h.Count)
	}
	return b.String()
}
