package session

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"lukechampine.com/frand"

	"orly.dev/crypto"
	"orly.dev/dispatcher"
	"orly.dev/encoders/event"
	"orly.dev/encoders/filter"
	"orly.dev/encoders/kind"
	"orly.dev/encoders/subscription"
	"orly.dev/encoders/tag"
	"orly.dev/encoders/tags"
	"orly.dev/encoders/timestamp"
	"orly.dev/ratelimit"
	"orly.dev/registry"
	"orly.dev/store"
	"orly.dev/utils/context"
)

func tagFrom(key, value string) *tag.T { return tag.New([]byte(key), []byte(value)) }

// fakeConn is an in-memory Transport that records written frames.
type fakeConn struct {
	frames [][]byte
	closed bool
}

func (c *fakeConn) WriteFrame(_ time.Time, b []byte) error {
	c.frames = append(c.frames, append([]byte(nil), b...))
	return nil
}
func (c *fakeConn) Close() error { c.closed = true; return nil }

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	dir, err := os.MkdirTemp("", "session-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	sto, err := store.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sto.Close() })
	reg := registry.New()
	return Deps{
		Store:      sto,
		Registry:   reg,
		Dispatcher: dispatcher.New(reg),
		Limiter:    ratelimit.New(ratelimit.DefaultThresholds),
		RelayURL:   "wss://relay.example.test",
	}
}

func newTestSession(t *testing.T, deps Deps) (*Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	s := New("s1", "127.0.0.1:1", conn, deps)
	s.Start(context.Bg())
	return s, conn
}

func signedNote(t *testing.T, sec, pub []byte, content string, ts int64) *event.E {
	t.Helper()
	ev := &event.E{
		Pubkey:    pub,
		Kind:      kind.TextNote,
		CreatedAt: timestamp.FromUnix(ts),
		Content:   []byte(content),
		Tags:      tags.New(),
	}
	require.NoError(t, ev.Sign(sec))
	return ev
}

func waitFrames(t *testing.T, conn *fakeConn, n int) {
	t.Helper()
	for i := 0; i < 100; i++ {
		if len(conn.frames) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, got %d", n, len(conn.frames))
}

func TestHandleEventAcceptsValidEvent(t *testing.T) {
	deps := newTestDeps(t)
	s, conn := newTestSession(t, deps)
	defer s.Close()

	sec := make([]byte, 32)
	frand.Read(sec)
	pub := crypto.PubkeyFromSecret(sec)
	ev := signedNote(t, sec, pub, "hello", time.Now().Unix())

	env := []byte(`["EVENT",` + string(ev.Marshal(nil)) + `]`)
	s.HandleMessage(context.Bg(), env)

	waitFrames(t, conn, 1)
	require.Contains(t, string(conn.frames[0]), `"OK"`)
	require.Contains(t, string(conn.frames[0]), "true")

	exists, err := deps.Store.Exists(context.Bg(), ev.Id)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestHandleEventRejectsBadSignature(t *testing.T) {
	deps := newTestDeps(t)
	s, conn := newTestSession(t, deps)
	defer s.Close()

	sec := make([]byte, 32)
	frand.Read(sec)
	pub := crypto.PubkeyFromSecret(sec)
	ev := signedNote(t, sec, pub, "hello", time.Now().Unix())
	ev.Sig[0] ^= 0xff

	env := []byte(`["EVENT",` + string(ev.Marshal(nil)) + `]`)
	s.HandleMessage(context.Bg(), env)

	waitFrames(t, conn, 1)
	require.Contains(t, string(conn.frames[0]), "false")

	exists, err := deps.Store.Exists(context.Bg(), ev.Id)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestHandleReqIdsOnlyClosesSubscription(t *testing.T) {
	deps := newTestDeps(t)
	s, conn := newTestSession(t, deps)
	defer s.Close()

	sec := make([]byte, 32)
	frand.Read(sec)
	pub := crypto.PubkeyFromSecret(sec)
	ev := signedNote(t, sec, pub, "hi", 1000)
	_, err := deps.Store.Insert(context.Bg(), ev)
	require.NoError(t, err)

	req := []byte(`["REQ","sub1",{"ids":["` + ev.IdString() + `"]}]`)
	s.HandleMessage(context.Bg(), req)

	waitFrames(t, conn, 3)
	require.Contains(t, string(conn.frames[0]), `"EVENT"`)
	require.Contains(t, string(conn.frames[1]), `"EOSE"`)
	require.Contains(t, string(conn.frames[2]), `"CLOSED"`)
	require.Equal(t, 0, deps.Registry.Count("s1"))
}

func TestHandleReqLiveSubscriptionStaysRegistered(t *testing.T) {
	deps := newTestDeps(t)
	s, conn := newTestSession(t, deps)
	defer s.Close()

	req := []byte(`["REQ","sub1",{"kinds":[1]}]`)
	s.HandleMessage(context.Bg(), req)

	waitFrames(t, conn, 1)
	require.Contains(t, string(conn.frames[0]), `"EOSE"`)
	require.Equal(t, 1, deps.Registry.Count("s1"))
}

func TestHandleCloseRemovesSubscription(t *testing.T) {
	deps := newTestDeps(t)
	s, conn := newTestSession(t, deps)
	defer s.Close()

	s.HandleMessage(context.Bg(), []byte(`["REQ","sub1",{"kinds":[1]}]`))
	waitFrames(t, conn, 1)
	require.Equal(t, 1, deps.Registry.Count("s1"))

	s.HandleMessage(context.Bg(), []byte(`["CLOSE","sub1"]`))
	require.Equal(t, 0, deps.Registry.Count("s1"))
}

func TestHandleAuthSetsAuthedPubkey(t *testing.T) {
	deps := newTestDeps(t)
	deps.AuthRequired = true
	s, conn := newTestSession(t, deps)
	defer s.Close()

	waitFrames(t, conn, 1)
	require.Contains(t, string(conn.frames[0]), `"AUTH"`)

	sec := make([]byte, 32)
	frand.Read(sec)
	pub := crypto.PubkeyFromSecret(sec)
	authEv := &event.E{
		Pubkey:    pub,
		Kind:      kind.ClientAuth,
		CreatedAt: timestamp.Now(),
		Content:   []byte(""),
		Tags:      tags.New(),
	}
	authEv.Tags.AppendTags(
		tagFrom("relay", deps.RelayURL),
		tagFrom("challenge", s.Challenge()),
	)
	require.NoError(t, authEv.Sign(sec))

	msg := []byte(`["AUTH",` + string(authEv.Marshal(nil)) + `]`)
	s.HandleMessage(context.Bg(), msg)

	require.Eventually(t, func() bool {
		return s.AuthedPubkey() != nil
	}, time.Second, 5*time.Millisecond)
}

func TestLiveFanoutDeliversToMatchingSubscriber(t *testing.T) {
	deps := newTestDeps(t)
	subscriber, subConn := newTestSession(t, deps)
	defer subscriber.Close()
	subscriber.HandleMessage(context.Bg(), []byte(`["REQ","live",{"kinds":[1]}]`))
	waitFrames(t, subConn, 1)

	publisher, _ := newTestSession(t, deps)
	defer publisher.Close()
	sec := make([]byte, 32)
	frand.Read(sec)
	pub := crypto.PubkeyFromSecret(sec)
	ev := signedNote(t, sec, pub, "live note", time.Now().Unix())
	publisher.HandleMessage(
		context.Bg(), []byte(`["EVENT",`+string(ev.Marshal(nil))+`]`),
	)

	waitFrames(t, subConn, 2)
	require.Contains(t, string(subConn.frames[1]), `"EVENT"`)
	require.Contains(t, string(subConn.frames[1]), `"live"`)
}

func TestHandleReqRejectsTooManyFilters(t *testing.T) {
	deps := newTestDeps(t)
	s, conn := newTestSession(t, deps)
	defer s.Close()

	req := `["REQ","sub1"`
	for i := 0; i <= filter.DefaultPolicy.MaxFiltersPerReq; i++ {
		req += `,{"kinds":[1]}`
	}
	req += `]`
	s.HandleMessage(context.Bg(), []byte(req))

	waitFrames(t, conn, 1)
	require.Contains(t, string(conn.frames[0]), `"CLOSED"`)
	require.Contains(t, string(conn.frames[0]), "too many filters")
	require.Equal(t, 0, deps.Registry.Count("s1"))
}

func TestHandleReqRejectsOversizedSubscriptionId(t *testing.T) {
	deps := newTestDeps(t)
	s, conn := newTestSession(t, deps)
	defer s.Close()

	oversized := make([]byte, subscription.MaxLen+1)
	for i := range oversized {
		oversized[i] = 'a'
	}
	req := `["REQ","` + string(oversized) + `",{"kinds":[1]}]`
	s.HandleMessage(context.Bg(), []byte(req))

	waitFrames(t, conn, 1)
	require.Contains(t, string(conn.frames[0]), `"CLOSED"`)
	require.Equal(t, 0, deps.Registry.Count("s1"))
}

func TestHandleReqRejectsTooManySubscriptions(t *testing.T) {
	deps := newTestDeps(t)
	s, conn := newTestSession(t, deps)
	defer s.Close()

	for i := 0; i < MaxSubscriptions; i++ {
		req := `["REQ","sub` + strconv.Itoa(i) + `",{"kinds":[1]}]`
		s.HandleMessage(context.Bg(), []byte(req))
	}
	waitFrames(t, conn, MaxSubscriptions)
	require.Equal(t, MaxSubscriptions, deps.Registry.Count("s1"))

	s.HandleMessage(context.Bg(), []byte(`["REQ","one-too-many",{"kinds":[1]}]`))
	waitFrames(t, conn, MaxSubscriptions+1)
	require.Contains(t, string(conn.frames[MaxSubscriptions]), `"CLOSED"`)
	require.Contains(t, string(conn.frames[MaxSubscriptions]), "too many subscriptions")
	require.Equal(t, MaxSubscriptions, deps.Registry.Count("s1"))
}

func TestHandleCountRejectsTooManyFilters(t *testing.T) {
	deps := newTestDeps(t)
	s, conn := newTestSession(t, deps)
	defer s.Close()

	req := `["COUNT","sub1"`
	for i := 0; i <= filter.DefaultPolicy.MaxFiltersPerReq; i++ {
		req += `,{"kinds":[1]}`
	}
	req += `]`
	s.HandleMessage(context.Bg(), []byte(req))

	waitFrames(t, conn, 1)
	require.Contains(t, string(conn.frames[0]), `"CLOSED"`)
	require.Contains(t, string(conn.frames[0]), "too many filters")
}
