package observability

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCountersEventAcceptedRejected(t *testing.T) {
	c := NewCounters()
	c.EventAccepted()
	c.EventAccepted()
	c.EventRejected("invalid")
	c.EventRejected("invalid")
	c.EventRejected("rate-limited")

	snap := c.Snapshot()
	require.Equal(t, int64(2), snap.EventsAccepted)
	require.Equal(t, int64(3), snap.EventsRejected)
	require.Equal(t, int64(2), snap.RejectReasons["invalid"])
	require.Equal(t, int64(1), snap.RejectReasons["rate-limited"])
}

func TestCountersSessionAndSubscriptionGauges(t *testing.T) {
	c := NewCounters()
	c.SessionOpened()
	c.SessionOpened()
	c.SessionClosed()
	c.SubscriptionOpened()

	snap := c.Snapshot()
	require.Equal(t, int64(1), snap.ActiveSessions)
	require.Equal(t, int64(1), snap.ActiveSubscriptions)
}

func TestCountersStoreLatencyBuckets(t *testing.T) {
	c := NewCounters()
	c.StoreLatency("insert", 2*time.Millisecond)
	c.StoreLatency("insert", 200*time.Millisecond)

	snap := c.Snapshot()
	h, ok := snap.StoreLatency["insert"]
	require.True(t, ok)
	require.Equal(t, int64(2), h.Count)
	require.Equal(t, int64(1), h.Counts[1]) // <= 5ms bucket catches the 2ms sample
	require.Equal(t, int64(1), h.Counts[5]) // <= 500ms bucket catches the 200ms sample
}

func TestSnapshotPrometheusExposition(t *testing.T) {
	c := NewCounters()
	c.EventAccepted()
	c.EventRejected("invalid")
	c.SessionOpened()
	c.StoreLatency("query", time.Millisecond)

	out := c.Snapshot().Prometheus()
	require.True(t, strings.Contains(out, "orly_events_accepted_total 1"))
	require.True(t, strings.Contains(out, `orly_events_rejected_total{reason="invalid"} 1`))
	require.True(t, strings.Contains(out, "orly_active_sessions 1"))
	require.True(t, strings.Contains(out, `orly_store_latency_seconds_count{op="query"} 1`))
}

func TestNoOpIsSafeToCall(t *testing.T) {
	var h Hooks = NoOp{}
	h.EventAccepted()
	h.EventRejected("x")
	h.SessionOpened()
	h.SessionClosed()
	h.SubscriptionOpened()
	h.SubscriptionClosed()
	h.StoreLatency("x", time.Millisecond)
}
