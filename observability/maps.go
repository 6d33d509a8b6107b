package observability

import (
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
)

// rejectReasonMap and storeLatencyMap are concurrent string-keyed maps,
// matching the dispatcher package's use of xsync.MapOf for the same
// reason: many sessions call into a shared Counters concurrently.

type rejectReasonMap struct {
	m *xsync.MapOf[string, *atomic.Int64]
}

func newRejectReasonMap() rejectReasonMap {
	return rejectReasonMap{m: xsync.NewMapOf[string, *atomic.Int64]()}
}

func (r rejectReasonMap) counter(reason string) *atomic.Int64 {
	c, _ := r.m.LoadOrCompute(reason, func() *atomic.Int64 { return &atomic.Int64{} })
	return c
}

func (r rejectReasonMap) snapshot() map[string]int64 {
	out := make(map[string]int64)
	r.m.Range(
		func(k string, v *atomic.Int64) bool {
			out[k] = v.Load()
			return true
		},
	)
	return out
}

type storeLatencyMap struct {
	m *xsync.MapOf[string, *histogram]
}

func newStoreLatencyMap() storeLatencyMap {
	return storeLatencyMap{m: xsync.NewMapOf[string, *histogram]()}
}

func (s storeLatencyMap) histogramFor(op string) *histogram {
	h, _ := s.m.LoadOrCompute(op, func() *histogram { return &histogram{} })
	return h
}

func (s storeLatencyMap) snapshot() map[string]HistogramSnapshot {
	out := make(map[string]HistogramSnapshot)
	s.m.Range(
		func(k string, v *histogram) bool {
			out[k] = v.snapshot()
			return true
		},
	)
	return out
}
