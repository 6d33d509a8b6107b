// Package session is the per-connection state machine (spec.md §4.6):
// Open -> Closing -> Closed, with an Authenticated sub-state that gates
// kind-4 events when AUTH is required. It owns one inbound dispatch path and
// one outbound writer goroutine, wires the store/ratelimit/registry/
// dispatcher packages together per accepted frame, and enforces the
// violation budget and idle timeout. Grounded on the teacher's
// protocol/socketapi package (A.Serve/HandleMessage/HandleEvent/HandleReq/
// HandleClose/HandleAuth/Pinger), generalized so the transport (currently
// a websocket, per orly.dev/transport/ws) is an interface instead of a
// concrete *ws.Listener.
package session

import (
	"bytes"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"
	"lukechampine.com/frand"

	"orly.dev/dispatcher"
	"orly.dev/encoders/envelopes"
	"orly.dev/encoders/envelopes/authenvelope"
	"orly.dev/encoders/envelopes/closedenvelope"
	"orly.dev/encoders/envelopes/closeenvelope"
	"orly.dev/encoders/envelopes/countenvelope"
	"orly.dev/encoders/envelopes/eoseenvelope"
	"orly.dev/encoders/envelopes/eventenvelope"
	"orly.dev/encoders/envelopes/noticeenvelope"
	"orly.dev/encoders/envelopes/okenvelope"
	"orly.dev/encoders/envelopes/reqenvelope"
	"orly.dev/encoders/event"
	"orly.dev/encoders/filter"
	"orly.dev/encoders/kind"
	"orly.dev/encoders/tag"
	"orly.dev/observability"
	"orly.dev/registry"
	"orly.dev/ratelimit"
	"orly.dev/store"
	"orly.dev/utils/chk"
	"orly.dev/utils/context"
	"orly.dev/utils/log"
	"orly.dev/utils/normalize"
)

// State is the session's position in the Open -> Closing -> Closed
// lifecycle (spec.md §4.6).
type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

const (
	// OutboundQueueCap is the bounded outbound queue size (spec.md §5).
	OutboundQueueCap = 1000
	// MaxFrameSize is the maximum accepted inbound frame size (spec.md §6).
	MaxFrameSize = 64 * 1024
	// ViolationWindow and MaxViolations implement the persistent-protocol-
	// violation rule (spec.md §4.6): >= 5 in a rolling minute closes the
	// session.
	ViolationWindow = 60 * time.Second
	MaxViolations   = 5
	// IdleTimeout closes a session that has sent nothing for this long
	// and then fails a ping/pong liveness check (spec.md §4.6).
	IdleTimeout = 5 * time.Minute
	// MaxSubscriptions is the per-session registry entry cap (spec.md §3,
	// advertised as max_subscriptions in the NIP-11 document).
	MaxSubscriptions = 20
	// StoreQueryTimeout bounds every store call a session makes (spec.md §5).
	StoreQueryTimeout = 5 * time.Second
	// WriteTimeout bounds a single outbound frame write (spec.md §5).
	WriteTimeout = 5 * time.Second
	challengeBytes = 16
)

// Transport is what a session needs from its underlying connection. A
// websocket listener implements this directly; session never depends on
// a concrete network type, matching the re-architecture note in spec.md
// §9 about decoupling the Dispatcher (and here, the session) from
// transport specifics.
type Transport interface {
	// WriteFrame sends one complete text frame with the given deadline.
	WriteFrame(deadline time.Time, b []byte) error
	Close() error
}

// Deps bundles the shared relay components a session is wired against.
type Deps struct {
	Store      *store.Store
	Registry   *registry.Registry
	Dispatcher *dispatcher.Dispatcher
	Limiter    *ratelimit.Limiter
	RelayURL   string
	// AuthRequired makes the session send a NIP-42 AUTH challenge when it
	// starts and reject kind-4 events with "auth-required" until the
	// session has authenticated. Other operations are not gated by it.
	AuthRequired bool
	// Hooks receives the counters named in spec.md §7. Nil defaults to
	// observability.NoOp{}, so Deps built without metrics in mind (e.g.
	// tests) keep working unchanged.
	Hooks observability.Hooks
}

func hooksOf(deps Deps) observability.Hooks {
	if deps.Hooks == nil {
		return observability.NoOp{}
	}
	return deps.Hooks
}

// Session is one client connection's state machine.
type Session struct {
	id         string
	remoteAddr string
	conn       Transport
	deps       Deps
	hooks      observability.Hooks

	state atomic.Int32

	authedMu sync.RWMutex
	authed   []byte // nil until AUTH succeeds

	challenge string

	outbound  chan []byte
	closeOnce sync.Once
	wg        sync.WaitGroup

	violationCount atomic.Int64
	violationEnd   atomic.Int64

	lastActivity atomic.Int64
}

// New builds a Session bound to conn, identified by id (typically a
// random or connection-derived string unique within the process), whose
// remote address addr feeds the rate limiter.
func New(id, remoteAddr string, conn Transport, deps Deps) *Session {
	s := &Session{
		id:         id,
		remoteAddr: remoteAddr,
		conn:       conn,
		deps:       deps,
		hooks:      hooksOf(deps),
		outbound:   make(chan []byte, OutboundQueueCap),
		challenge:  newChallenge(),
	}
	s.lastActivity.Store(time.Now().Unix())
	s.hooks.SessionOpened()
	return s
}

func newChallenge() string {
	b := frand.Bytes(challengeBytes)
	return hexEncode(b)
}

func hexEncode(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = digits[c>>4]
		out[i*2+1] = digits[c&0xf]
	}
	return string(out)
}

// SessionID implements registry.Sink and dispatcher.Target.
func (s *Session) SessionID() string { return s.id }

// Challenge returns the nonce this session issued for NIP-42 AUTH.
func (s *Session) Challenge() string { return s.challenge }

// AuthedPubkey returns the pubkey this session authenticated as, or nil.
func (s *Session) AuthedPubkey() []byte {
	s.authedMu.RLock()
	defer s.authedMu.RUnlock()
	return s.authed
}

func (s *Session) setAuthedPubkey(pk []byte) {
	s.authedMu.Lock()
	s.authed = pk
	s.authedMu.Unlock()
}

func (s *Session) isAuthenticated() bool { return s.AuthedPubkey() != nil }

func (s *Session) currentState() State { return State(s.state.Load()) }

// Start launches the outbound writer task and, if the relay requires
// AUTH, sends the initial AUTH challenge. Callers should run Start once
// the transport is upgraded, then feed inbound frames to HandleMessage
// (typically from a second, transport-owned goroutine, per spec.md §5's
// "each session owns one inbound-reading task and one outbound-writing
// task").
func (s *Session) Start(ctx context.T) {
	s.wg.Add(1)
	go s.outboundLoop(ctx)
	if s.deps.AuthRequired {
		s.enqueueReply(authenvelope.NewChallengeWith(s.challenge).Marshal(nil))
	}
}

// outboundLoop drains the outbound queue to the transport. Every write
// carries WriteTimeout; a failed write terminates the session (spec.md
// §5 "outbound writes have a 5s timeout after which the send fails and
// the session closes").
func (s *Session) outboundLoop(ctx context.T) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-s.outbound:
			if !ok {
				return
			}
			if err := s.conn.WriteFrame(time.Now().Add(WriteTimeout), b); chk.E(err) {
				s.terminate("write failed")
				return
			}
		}
	}
}

// EnqueueEvent is the non-blocking push used for EVENT fanout frames,
// which are allowed to drop on a full queue (spec.md §4.7/§5). It
// implements dispatcher.Target.
func (s *Session) EnqueueEvent(subID string, ev *event.E) bool {
	res, err := eventenvelope.NewResultWith(subID, ev)
	if chk.E(err) {
		return false
	}
	select {
	case s.outbound <- res.Marshal(nil):
		return true
	default:
		return false
	}
}

// enqueueReply pushes a reply frame (OK/NOTICE/EOSE/CLOSED/COUNT/AUTH
// challenge) that must never be silently dropped (spec.md §5). A full
// queue here means the session can't keep up even with its own direct
// replies, so the session is terminated instead.
func (s *Session) enqueueReply(b []byte) bool {
	select {
	case s.outbound <- b:
		return true
	default:
		s.terminate("queue-overflow")
		return false
	}
}

// Terminate implements dispatcher.Target: the Dispatcher calls this when
// this session has exceeded the persistent-drop threshold.
func (s *Session) Terminate(reason string) {
	s.enqueueReply(noticeenvelope.NewFrom([]byte(reason)).Marshal(nil))
	s.terminate(reason)
}

func (s *Session) terminate(reason string) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosing))
		log.D.F("session %s closing: %s", s.id, reason)
		remaining := s.deps.Registry.Count(s.id)
		s.deps.Registry.RemoveAll(s.id)
		for i := 0; i < remaining; i++ {
			s.hooks.SubscriptionClosed()
		}
		s.deps.Dispatcher.ForgetSession(s.id)
		s.deps.Limiter.ReleaseConnection(s.remoteAddr)
		close(s.outbound)
		_ = s.conn.Close()
		s.state.Store(int32(StateClosed))
		s.hooks.SessionClosed()
	})
}

// Close tears the session down from the transport's own EOF/error path
// (no NOTICE to send, the client is already gone).
func (s *Session) Close() {
	s.terminate("connection closed")
	s.wg.Wait()
}

// touch records inbound activity for the idle timeout check.
func (s *Session) touch() { s.lastActivity.Store(time.Now().Unix()) }

// IdleFor reports how long it has been since the last inbound frame.
func (s *Session) IdleFor() time.Duration {
	last := time.Unix(s.lastActivity.Load(), 0)
	return time.Since(last)
}

// recordViolation tracks protocol errors toward the rolling-minute
// budget (spec.md §4.6/§7 ProtocolError). Returns true once the budget
// is exceeded, at which point the caller should close the session.
func (s *Session) recordViolation() bool {
	now := time.Now().UnixNano()
	if s.violationEnd.Load() < now {
		s.violationEnd.Store(now + int64(ViolationWindow))
		s.violationCount.Store(0)
	}
	return s.violationCount.Add(1) >= MaxViolations
}

// HandleMessage is the single entry point for one inbound frame, mirroring
// the teacher's A.HandleMessage envelope-label switch. It is safe to call
// from the transport's own read loop; session does not spawn a goroutine
// per message itself (that choice belongs to the caller, matching the
// teacher's `go a.HandleMessage(message)` at the call site).
func (s *Session) HandleMessage(ctx context.T, msg []byte) {
	if s.currentState() != StateOpen {
		return
	}
	s.touch()
	if len(msg) > MaxFrameSize {
		s.protocolError("frame exceeds maximum size")
		return
	}
	label, rem, err := envelopes.Identify(msg)
	if chk.E(err) {
		s.protocolError(err.Error())
		return
	}
	switch label {
	case eventenvelope.L:
		s.handleEvent(ctx, rem)
	case reqenvelope.L:
		s.handleReq(ctx, rem)
	case closeenvelope.L:
		s.handleClose(rem)
	case authenvelope.L:
		s.handleAuth(rem)
	case countenvelope.L:
		s.handleCount(ctx, rem)
	default:
		s.protocolError("unknown envelope type " + label)
	}
}

// protocolError replies with a NOTICE and counts the frame toward the
// violation budget (spec.md §7 ProtocolError).
func (s *Session) protocolError(msg string) {
	s.enqueueReply(noticeenvelope.NewFrom([]byte(msg)).Marshal(nil))
	if s.recordViolation() {
		s.terminate("persistent protocol violations")
	}
}

// handleEvent implements spec.md §4.6's EVENT transition: admission,
// structural validation, signature verification, kind-specific access
// checks, NIP-09 deletion side effects, then store insertion and OK reply
// plus dispatch. Grounded on the teacher's HandleEvent.
func (s *Session) handleEvent(ctx context.T, rem []byte) {
	env := eventenvelope.NewSubmission()
	if _, err := env.Unmarshal(rem); chk.E(err) {
		s.protocolError("malformed EVENT: " + err.Error())
		return
	}
	ev := env.E

	if !s.deps.Limiter.AdmitEvent(s.remoteAddr) {
		s.hooks.EventRejected("rate-limited")
		s.okReply(ev.Id, false, normalize.RateLimited.F("rate-limited"))
		return
	}
	if !bytes.Equal(ev.DeriveId(), ev.Id) {
		s.hooks.EventRejected("invalid")
		s.okReply(ev.Id, false, normalize.Invalid.F("event id is computed incorrectly"))
		return
	}
	if err := ev.StructuralValidate(time.Now().Unix()); err != nil {
		s.hooks.EventRejected("invalid")
		s.okReply(ev.Id, false, normalize.Invalid.F(err.Error()))
		return
	}
	ok, err := ev.Verify()
	if chk.E(err) || !ok {
		s.hooks.EventRejected("invalid")
		s.okReply(ev.Id, false, normalize.Invalid.F("bad signature"))
		return
	}

	if !s.accessCheck(ev) {
		s.hooks.EventRejected("auth-required")
		return
	}

	if ev.Kind.Equal(kind.Deletion) {
		s.processDeletion(ctx, ev)
	}

	start := time.Now()
	cctx, cancel := context.Timeout(ctx, StoreQueryTimeout)
	result, err := s.deps.Store.Insert(cctx, ev)
	cancel()
	s.hooks.StoreLatency("insert", time.Since(start))
	if chk.E(err) {
		s.hooks.EventRejected("error")
		s.okReply(ev.Id, false, normalize.Error.F(err.Error()))
		return
	}
	switch result {
	case store.DuplicateId:
		s.hooks.EventAccepted()
		s.okReply(ev.Id, true, normalize.Duplicate.F("event already exists"))
		return
	case store.Tombstoned:
		s.hooks.EventRejected("blocked")
		s.okReply(ev.Id, false, normalize.Blocked.F("event was deleted, not storing it again"))
		return
	case store.Superseded:
		s.hooks.EventAccepted()
		s.okReply(ev.Id, true, nil)
		return
	}
	s.hooks.EventAccepted()
	s.okReply(ev.Id, true, nil)
	s.deps.Dispatcher.Dispatch(ev)
}

// accessCheck enforces the AUTH gate: when Deps.AuthRequired is set, kind 4
// (encrypted DMs) requires s.isAuthenticated(). Kind-5 deletions are not
// gated on authentication; processDeletion removes only the targets whose
// pubkey equals the deletion's own pubkey and skips the others.
func (s *Session) accessCheck(ev *event.E) bool {
	if !s.deps.AuthRequired {
		return true
	}
	if ev.Kind.Equal(kind.EncryptedDirectMsg) && !s.isAuthenticated() {
		s.okReply(ev.Id, false, normalize.AuthRequired.F("encrypted messages require authentication"))
		return false
	}
	return true
}

// processDeletion implements NIP-09: for each e/a tag on a kind-5 event,
// look up the referenced event(s) and delete those authored by the same
// pubkey, tombstoning direct e-tag deletions and skipping tombstones for
// a-tag (parameterized-replaceable) deletions. Grounded on the teacher's
// HandleEvent kind.Deletion branch.
func (s *Session) processDeletion(ctx context.T, del *event.E) {
	for _, t := range del.Tags.ToSliceOfTags() {
		if t.Len() < 2 {
			continue
		}
		switch string(t.Key()) {
		case "e":
			s.deleteByID(ctx, del, t.Value())
		case "a":
			s.deleteByATag(ctx, del, t.Value())
		}
	}
}

func (s *Session) deleteByID(ctx context.T, del *event.E, id []byte) {
	f := filter.New()
	f.Ids = f.Ids.Append(id)
	evs, err := s.deps.Store.QueryEvents(ctx, f)
	if chk.E(err) || len(evs) == 0 {
		return
	}
	target := evs[0]
	if !bytes.Equal(target.Pubkey, del.Pubkey) {
		return
	}
	if target.CreatedAt.I64() > del.CreatedAt.I64() {
		return
	}
	chk.E(s.deps.Store.DeleteEvent(ctx, id, false))
}

func (s *Session) deleteByATag(ctx context.T, del *event.E, value []byte) {
	parts := bytes.SplitN(value, []byte{':'}, 3)
	if len(parts) != 3 {
		return
	}
	kNum, err := strconv.ParseUint(string(parts[0]), 10, 16)
	if chk.E(err) {
		return
	}
	kk := kind.New(uint16(kNum))
	if !kk.IsParameterizedReplaceable() {
		return
	}
	if string(parts[1]) != del.PubkeyString() {
		// pubkey in the a-tag must match the deletion event's own author
		return
	}
	f := filter.New()
	f.Kinds.K = append(f.Kinds.K, kk)
	f.Authors = f.Authors.Append(del.Pubkey)
	f.Tags.AppendTags(tag.New([]byte{'#', 'd'}, parts[2]))
	evs, err := s.deps.Store.QueryEvents(ctx, f)
	if chk.E(err) {
		return
	}
	for _, target := range evs {
		if target.CreatedAt.I64() > del.CreatedAt.I64() {
			continue
		}
		chk.E(s.deps.Store.DeleteEvent(ctx, target.Id, true))
	}
}

func (s *Session) okReply(id []byte, ok bool, reason []byte) {
	if reason != nil {
		s.enqueueReply(okenvelope.NewFrom(id, ok, reason).Marshal(nil))
		return
	}
	s.enqueueReply(okenvelope.NewFrom(id, ok).Marshal(nil))
}

// handleReq implements spec.md §4.6's REQ transition: admission, filter
// reasonability, subscription replace-if-duplicate, backfill query, EOSE,
// and (unless every filter was an exhausted ids-only lookup) leaving the
// subscription registered for live push. Grounded on the teacher's
// HandleReq.
func (s *Session) handleReq(ctx context.T, rem []byte) {
	env := reqenvelope.New()
	if _, err := env.Unmarshal(rem); chk.E(err) {
		s.protocolError("malformed REQ: " + err.Error())
		return
	}
	subID := env.Subscription
	if err := subID.Validate(); chk.E(err) {
		s.enqueueReply(closedenvelope.NewFrom(subID, normalize.Invalid.F(err.Error())).Marshal(nil))
		return
	}

	if !s.deps.Limiter.AdmitQuery(s.remoteAddr) {
		s.enqueueReply(noticeenvelope.NewFrom(normalize.RateLimited.F("rate-limited")).Marshal(nil))
		return
	}
	if env.Filters.Len() < 1 || env.Filters.Len() > filter.DefaultPolicy.MaxFiltersPerReq {
		s.enqueueReply(closedenvelope.NewFrom(subID, normalize.Invalid.F("too many filters")).Marshal(nil))
		return
	}
	for _, f := range env.Filters.F {
		if reason := f.IsReasonable(filter.DefaultPolicy); reason != "" {
			s.enqueueReply(closedenvelope.NewFrom(subID, normalize.Invalid.F(reason)).Marshal(nil))
			return
		}
	}

	before := s.deps.Registry.Count(s.id)
	s.deps.Registry.Remove(s.id, subID.String())
	if s.deps.Registry.Count(s.id) < before {
		s.hooks.SubscriptionClosed()
	}
	if s.deps.Registry.Count(s.id) >= MaxSubscriptions {
		s.enqueueReply(closedenvelope.NewFrom(subID, normalize.Blocked.F("too many subscriptions")).Marshal(nil))
		return
	}

	// idsOnlyExhausted tracks the teacher's "a filter set made only of
	// id lookups can never match a future event" shortcut: an id is
	// immutable, so once the backfill for an ids-only REQ is served
	// there is nothing left to subscribe for.
	idsOnlyExhausted := true
	for _, f := range env.Filters.F {
		if f.Ids.Len() == 0 {
			idsOnlyExhausted = false
		}
		if f.Limit != nil && *f.Limit == 0 {
			continue
		}
		start := time.Now()
		cctx, cancel := context.Timeout(ctx, StoreQueryTimeout)
		evs, err := s.deps.Store.QueryEvents(cctx, f)
		cancel()
		s.hooks.StoreLatency("query", time.Since(start))
		if chk.E(err) {
			s.enqueueReply(noticeenvelope.NewFrom(normalize.Error.F("timeout")).Marshal(nil))
			continue
		}
		for _, ev := range evs {
			res, err := eventenvelope.NewResultWith(subID.String(), ev)
			if chk.E(err) {
				continue
			}
			s.enqueueReply(res.Marshal(nil))
		}
	}
	s.enqueueReply(eoseenvelope.NewFrom(subID).Marshal(nil))

	if idsOnlyExhausted {
		s.enqueueReply(closedenvelope.NewFrom(subID, nil).Marshal(nil))
		return
	}
	s.deps.Registry.Add(s, subID.String(), env.Filters)
	s.hooks.SubscriptionOpened()
}

// handleClose implements spec.md §4.6's CLOSE transition: registry
// removal, no reply.
func (s *Session) handleClose(rem []byte) {
	env := closeenvelope.New()
	if _, err := env.Unmarshal(rem); chk.E(err) {
		s.protocolError("malformed CLOSE: " + err.Error())
		return
	}
	if env.ID.String() == "" {
		s.protocolError("CLOSE has no <id>")
		return
	}
	before := s.deps.Registry.Count(s.id)
	s.deps.Registry.Remove(s.id, env.ID.String())
	if s.deps.Registry.Count(s.id) < before {
		s.hooks.SubscriptionClosed()
	}
}

// handleAuth implements spec.md §4.6's AUTH transition (NIP-42): the
// event must be kind 22242 with a relay tag matching this relay's URL
// and a challenge tag matching the nonce this session issued.
func (s *Session) handleAuth(rem []byte) {
	env := authenvelope.NewResponse()
	if _, err := env.Unmarshal(rem); chk.E(err) {
		s.protocolError("malformed AUTH: " + err.Error())
		return
	}
	ev := env.Event
	if !ev.Kind.Equal(kind.ClientAuth) || !ev.VerifyId() {
		s.enqueueReply(okenvelope.NewFrom(ev.Id, false, normalize.Invalid.F("auth-failed")).Marshal(nil))
		return
	}
	ok, err := ev.Verify()
	if chk.E(err) || !ok {
		s.enqueueReply(okenvelope.NewFrom(ev.Id, false, normalize.Invalid.F("auth-failed")).Marshal(nil))
		return
	}
	relayTag := ev.Tags.GetFirst("relay")
	challengeTag := ev.Tags.GetFirst("challenge")
	if relayTag == nil || challengeTag == nil {
		s.enqueueReply(okenvelope.NewFrom(ev.Id, false, normalize.Invalid.F("auth-failed")).Marshal(nil))
		return
	}
	if string(relayTag.Value()) != s.deps.RelayURL {
		s.enqueueReply(okenvelope.NewFrom(ev.Id, false, normalize.Invalid.F("auth-failed")).Marshal(nil))
		return
	}
	if string(challengeTag.Value()) != s.challenge {
		s.enqueueReply(okenvelope.NewFrom(ev.Id, false, normalize.Invalid.F("auth-failed")).Marshal(nil))
		return
	}
	s.setAuthedPubkey(ev.Pubkey)
	log.D.F("%s authed to pubkey %s", s.remoteAddr, ev.PubkeyString())
}

// handleCount implements spec.md §4.6's optional COUNT transition
// (NIP-45): reply with the sum of the store's per-filter counts (an event
// matching several filters is counted once per filter).
func (s *Session) handleCount(ctx context.T, rem []byte) {
	env := countenvelope.NewRequest()
	if _, err := env.Unmarshal(rem); chk.E(err) {
		s.protocolError("malformed COUNT: " + err.Error())
		return
	}
	if err := env.Subscription.Validate(); chk.E(err) {
		s.enqueueReply(closedenvelope.NewFrom(env.Subscription, normalize.Invalid.F(err.Error())).Marshal(nil))
		return
	}
	if !s.deps.Limiter.AdmitQuery(s.remoteAddr) {
		s.enqueueReply(noticeenvelope.NewFrom(normalize.RateLimited.F("rate-limited")).Marshal(nil))
		return
	}
	if env.Filters.Len() < 1 || env.Filters.Len() > filter.DefaultPolicy.MaxFiltersPerReq {
		s.enqueueReply(closedenvelope.NewFrom(env.Subscription, normalize.Invalid.F("too many filters")).Marshal(nil))
		return
	}
	var total int64
	for _, f := range env.Filters.F {
		if reason := f.IsReasonable(filter.DefaultPolicy); reason != "" {
			s.enqueueReply(closedenvelope.NewFrom(env.Subscription, normalize.Invalid.F(reason)).Marshal(nil))
			return
		}
		start := time.Now()
		cctx, cancel := context.Timeout(ctx, StoreQueryTimeout)
		n, err := s.deps.Store.CountEvents(cctx, f)
		cancel()
		s.hooks.StoreLatency("count", time.Since(start))
		if chk.E(err) {
			continue
		}
		total += n
	}
	s.enqueueReply(countenvelope.NewResponseWith(env.Subscription, total).Marshal(nil))
}
