package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"orly.dev/encoders/event"
	"orly.dev/encoders/filter"
	"orly.dev/encoders/filters"
	"orly.dev/encoders/kind"
	"orly.dev/encoders/tags"
	"orly.dev/encoders/timestamp"
)

type testSink struct{ id string }

func (s *testSink) SessionID() string { return s.id }

func mkEvent(pub []byte, k *kind.T, ts int64) *event.E {
	return &event.E{
		Id:        make([]byte, 32),
		Pubkey:    pub,
		Kind:      k,
		CreatedAt: timestamp.FromUnix(ts),
		Tags:      tags.New(),
		Content:   []byte("x"),
	}
}

func TestAddAndForEachMatch(t *testing.T) {
	r := New()
	sink := &testSink{id: "s1"}
	pub := make([]byte, 32)
	pub[0] = 9

	f := filter.New()
	f.Authors = f.Authors.Append(pub)
	r.Add(sink, "sub1", filters.New(f))

	ev := mkEvent(pub, kind.TextNote, 1000)
	var matched []string
	r.ForEachMatch(ev, func(s Sink, subID string) {
		matched = append(matched, s.SessionID()+":"+subID)
	})
	require.Equal(t, []string{"s1:sub1"}, matched)
}

func TestForEachMatchRejectsNonMatchingAuthor(t *testing.T) {
	r := New()
	sink := &testSink{id: "s1"}
	pub := make([]byte, 32)
	pub[0] = 9
	other := make([]byte, 32)
	other[0] = 1

	f := filter.New()
	f.Authors = f.Authors.Append(pub)
	r.Add(sink, "sub1", filters.New(f))

	ev := mkEvent(other, kind.TextNote, 1000)
	var matched []string
	r.ForEachMatch(ev, func(s Sink, subID string) {
		matched = append(matched, subID)
	})
	require.Empty(t, matched)
}

func TestSecondReqWithSameIdReplaces(t *testing.T) {
	r := New()
	sink := &testSink{id: "s1"}
	pub := make([]byte, 32)

	r.Add(sink, "sub1", filters.New(filter.New()))
	require.Equal(t, 1, r.Count("s1"))

	f2 := filter.New()
	f2.Kinds.K = append(f2.Kinds.K, kind.New(7))
	r.Add(sink, "sub1", filters.New(f2))
	require.Equal(t, 1, r.Count("s1"))

	ev := mkEvent(pub, kind.New(7), 1000)
	var matched int
	r.ForEachMatch(ev, func(s Sink, subID string) { matched++ })
	require.Equal(t, 1, matched)
}

func TestRemove(t *testing.T) {
	r := New()
	sink := &testSink{id: "s1"}
	r.Add(sink, "sub1", filters.New(filter.New()))
	r.Add(sink, "sub2", filters.New(filter.New()))
	require.Equal(t, 2, r.Count("s1"))

	r.Remove("s1", "sub1")
	require.Equal(t, 1, r.Count("s1"))

	ev := mkEvent(make([]byte, 32), kind.TextNote, 1000)
	var ids []string
	r.ForEachMatch(ev, func(s Sink, subID string) { ids = append(ids, subID) })
	require.Equal(t, []string{"sub2"}, ids)
}

func TestRemoveAll(t *testing.T) {
	r := New()
	sink1 := &testSink{id: "s1"}
	sink2 := &testSink{id: "s2"}
	r.Add(sink1, "sub1", filters.New(filter.New()))
	r.Add(sink2, "sub1", filters.New(filter.New()))

	r.RemoveAll("s1")
	require.Equal(t, 0, r.Count("s1"))
	require.Equal(t, 1, r.Count("s2"))

	ev := mkEvent(make([]byte, 32), kind.TextNote, 1000)
	var sessions []string
	r.ForEachMatch(ev, func(s Sink, subID string) { sessions = append(sessions, s.SessionID()) })
	require.Equal(t, []string{"s2"}, sessions)
}

func TestEmptyFilterMatchesEverything(t *testing.T) {
	r := New()
	sink := &testSink{id: "s1"}
	r.Add(sink, "sub1", filters.New(filter.New()))

	ev := mkEvent(make([]byte, 32), kind.New(30023), 99999)
	var matched int
	r.ForEachMatch(ev, func(s Sink, subID string) { matched++ })
	require.Equal(t, 1, matched)
}

// TestKindsOnlyFilterCheapRejectsOnKind checks that a filter with no
// author/tag/time clause still cheap-rejects on its kind clause at the
// cheapReject layer itself, rather than every missing dimension
// disabling cheap-rejection entirely and falling through to a full
// filters.T.Match on every event.
func TestKindsOnlyFilterCheapRejectsOnKind(t *testing.T) {
	f := filter.New()
	f.Kinds.K = append(f.Kinds.K, kind.TextNote)
	cr := buildCheapReject(filters.New(f))

	wrongKind := mkEvent(make([]byte, 32), kind.New(30023), 1000)
	require.False(t, cr.couldMatch(wrongKind))

	rightKind := mkEvent(make([]byte, 32), kind.TextNote, 1000)
	require.True(t, cr.couldMatch(rightKind))

	r := New()
	sink := &testSink{id: "s1"}
	r.Add(sink, "sub1", filters.New(f))
	var matched []string
	r.ForEachMatch(rightKind, func(s Sink, subID string) { matched = append(matched, subID) })
	require.Equal(t, []string{"sub1"}, matched)
}
