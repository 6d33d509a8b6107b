package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"orly.dev/encoders/event"
	"orly.dev/encoders/filter"
	"orly.dev/encoders/filters"
	"orly.dev/encoders/kind"
	"orly.dev/encoders/tags"
	"orly.dev/encoders/timestamp"
	"orly.dev/registry"
)

type fakeTarget struct {
	id          string
	full        bool
	enqueued    []string
	terminated  string
}

func (f *fakeTarget) SessionID() string { return f.id }

func (f *fakeTarget) EnqueueEvent(subID string, ev *event.E) bool {
	if f.full {
		return false
	}
	f.enqueued = append(f.enqueued, subID)
	return true
}

func (f *fakeTarget) Terminate(reason string) { f.terminated = reason }

func mkEvent(pub []byte) *event.E {
	return &event.E{
		Id: make([]byte, 32), Pubkey: pub, Kind: kind.TextNote,
		CreatedAt: timestamp.Now(), Tags: tags.New(), Content: []byte("hi"),
	}
}

func TestDispatchDeliversToMatchingSubscription(t *testing.T) {
	reg := registry.New()
	target := &fakeTarget{id: "s1"}
	reg.Add(target, "sub1", filters.New(filter.New()))

	d := New(reg)
	d.Dispatch(mkEvent(make([]byte, 32)))

	require.Equal(t, []string{"sub1"}, target.enqueued)
}

func TestDispatchSkipsNonTargetSinks(t *testing.T) {
	reg := registry.New()
	reg.Add(plainSink{"s1"}, "sub1", filters.New(filter.New()))

	d := New(reg)
	require.NotPanics(t, func() { d.Dispatch(mkEvent(make([]byte, 32))) })
}

type plainSink struct{ id string }

func (p plainSink) SessionID() string { return p.id }

func TestPersistentDropsTerminateSession(t *testing.T) {
	reg := registry.New()
	target := &fakeTarget{id: "s1", full: true}
	reg.Add(target, "sub1", filters.New(filter.New()))

	d := New(reg)
	for i := 0; i < MaxDropsPerWindow+1; i++ {
		d.Dispatch(mkEvent(make([]byte, 32)))
	}
	require.Equal(t, "slow-consumer", target.terminated)
}

func TestDropsBelowThresholdDoNotTerminate(t *testing.T) {
	reg := registry.New()
	target := &fakeTarget{id: "s1", full: true}
	reg.Add(target, "sub1", filters.New(filter.New()))

	d := New(reg)
	for i := 0; i < 10; i++ {
		d.Dispatch(mkEvent(make([]byte, 32)))
	}
	require.Empty(t, target.terminated)
}

func TestForgetSessionClearsDropState(t *testing.T) {
	reg := registry.New()
	target := &fakeTarget{id: "s1", full: true}
	reg.Add(target, "sub1", filters.New(filter.New()))

	d := New(reg)
	d.Dispatch(mkEvent(make([]byte, 32)))
	d.ForgetSession("s1")
	_, ok := d.drops.Load("s1")
	require.False(t, ok)
}
