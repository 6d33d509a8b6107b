// Package registry is the process-wide subscription registry (spec.md
// §4.5): a primary (session_id, subscription_id) -> Subscription index
// plus a secondary cheap-reject index that the dispatcher's hot path
// consults before falling back to the full filter match. Split out of
// the teacher's combined publisher.S (protocol/socketapi/publisher.go),
// which keeps subscriber bookkeeping and event fanout in one type; here
// the bookkeeping half is this package and the fanout half is
// orly.dev/dispatcher.
package registry

import (
	"sync"

	"orly.dev/encoders/event"
	"orly.dev/encoders/filters"
)

// Sink is what the registry needs from a session to deliver to it: an
// identity for indexing and a way for the dispatcher to hand it a
// matched event. A session implements this; the registry never touches
// a session's outbound queue directly, matching the teacher's pattern
// of storing the raw *ws.Listener in its Map and letting the publisher
// call into it.
type Sink interface {
	SessionID() string
}

// Subscription is one (session, subscription_id) registration.
type Subscription struct {
	Sink    Sink
	ID      string
	Filters *filters.T
}

// cheapReject holds the subset of filter clauses the secondary index can
// reject on without the full event.Matches call (spec.md §4.5): kinds,
// authors, #e/#p tag values, and the time window. Filters are OR'd
// together (spec.md §4.2), so a dimension can only be used to reject an
// event when EVERY filter in the subscription constrains that dimension
// — tracked per-dimension below rather than as one all-or-nothing flag,
// so e.g. a kinds-only filter still cheap-rejects on kind even though it
// carries no author/tag/time clause.
type cheapReject struct {
	kinds      map[uint16]struct{}
	authors    map[string]struct{}
	eTagValues map[string]struct{}
	pTagValues map[string]struct{}
	since      int64
	until      int64

	kindsUsable   bool
	authorsUsable bool
	eTagUsable    bool
	pTagUsable    bool
	sinceUsable   bool
	untilUsable   bool
}

type entry struct {
	sub    *Subscription
	reject cheapReject
}

func buildCheapReject(fs *filters.T) cheapReject {
	cr := cheapReject{
		kinds:      map[uint16]struct{}{},
		authors:    map[string]struct{}{},
		eTagValues: map[string]struct{}{},
		pTagValues: map[string]struct{}{},
	}
	if fs == nil || len(fs.F) == 0 {
		return cr
	}
	cr.kindsUsable = true
	cr.authorsUsable = true
	cr.eTagUsable = true
	cr.pTagUsable = true
	cr.sinceUsable = true
	cr.untilUsable = true
	sinceSeen, untilSeen := false, false
	for _, f := range fs.F {
		if f.Kinds.Len() == 0 {
			cr.kindsUsable = false
		} else {
			for _, k := range f.Kinds.K {
				cr.kinds[k.K] = struct{}{}
			}
		}
		if f.Authors.Len() == 0 {
			cr.authorsUsable = false
		} else {
			for _, a := range f.Authors.ToSliceOfBytes() {
				cr.authors[string(a)] = struct{}{}
			}
		}
		fHasE, fHasP := false, false
		for _, tg := range f.Tags.ToSliceOfTags() {
			k := tg.Key()
			if len(k) != 2 || k[0] != '#' {
				continue
			}
			values := tg.ToSliceOfBytes()[1:]
			switch k[1] {
			case 'e':
				fHasE = true
				for _, v := range values {
					cr.eTagValues[string(v)] = struct{}{}
				}
			case 'p':
				fHasP = true
				for _, v := range values {
					cr.pTagValues[string(v)] = struct{}{}
				}
			}
		}
		if !fHasE {
			cr.eTagUsable = false
		}
		if !fHasP {
			cr.pTagUsable = false
		}
		if f.Since != nil && f.Since.I64() != 0 {
			if !sinceSeen || f.Since.I64() < cr.since {
				cr.since = f.Since.I64()
			}
			sinceSeen = true
		} else {
			cr.sinceUsable = false
		}
		if f.Until != nil && f.Until.I64() != 0 {
			if !untilSeen || f.Until.I64() > cr.until {
				cr.until = f.Until.I64()
			}
			untilSeen = true
		} else {
			cr.untilUsable = false
		}
	}
	return cr
}

// couldMatch is the cheap pre-check: false means the event definitely
// cannot match any filter in the subscription; true means the full
// filters.T.Match must still be consulted.
func (cr cheapReject) couldMatch(ev *event.E) bool {
	if cr.kindsUsable {
		if _, ok := cr.kinds[ev.Kind.K]; !ok {
			return false
		}
	}
	if cr.authorsUsable {
		if _, ok := cr.authors[string(ev.Pubkey)]; !ok {
			return false
		}
	}
	if cr.eTagUsable && !tagValueMatches(ev, "e", cr.eTagValues) {
		return false
	}
	if cr.pTagUsable && !tagValueMatches(ev, "p", cr.pTagValues) {
		return false
	}
	if cr.sinceUsable && ev.CreatedAt.I64() < cr.since {
		return false
	}
	if cr.untilUsable && ev.CreatedAt.I64() > cr.until {
		return false
	}
	return true
}

// tagValueMatches reports whether ev carries a name-tag whose value is in
// values.
func tagValueMatches(ev *event.E, name string, values map[string]struct{}) bool {
	for _, tg := range ev.Tags.GetAll(name) {
		vs := tg.ToSliceOfBytes()
		if len(vs) < 2 {
			continue
		}
		if _, ok := values[string(vs[1])]; ok {
			return true
		}
	}
	return false
}

// Registry is the process-wide subscription store. Read-dominant: a scan
// happens once per accepted event, a write happens once per REQ/CLOSE
// (spec.md §4.5/§5). Writers briefly exclude readers via a plain RWMutex;
// this relay does not see write contention heavy enough to justify a
// sharded or lock-free structure for the primary index.
type Registry struct {
	mu        sync.RWMutex
	primary   map[string]map[string]*entry // sessionID -> subID -> entry
	secondary []*entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{primary: make(map[string]map[string]*entry)}
}

// Add registers (or replaces) a subscription for a session. A second call
// with the same session and subscription id replaces the first, matching
// the Session.Subscription uniqueness rule in spec.md §3.
func (r *Registry) Add(sink Sink, id string, fs *filters.T) {
	sub := &Subscription{Sink: sink, ID: id, Filters: fs}
	e := &entry{sub: sub, reject: buildCheapReject(fs)}
	sid := sink.SessionID()

	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.primary[sid]
	if !ok {
		subs = make(map[string]*entry)
		r.primary[sid] = subs
	}
	if old, existed := subs[id]; existed {
		r.removeFromSecondary(old)
	}
	subs[id] = e
	r.secondary = append(r.secondary, e)
}

// Remove deletes one subscription from a session.
func (r *Registry) Remove(sessionID, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.primary[sessionID]
	if !ok {
		return
	}
	e, ok := subs[id]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(r.primary, sessionID)
	}
	r.removeFromSecondary(e)
}

// RemoveAll deletes every subscription owned by a session (session
// teardown, spec.md §3 "Destruction removes all its subscriptions").
func (r *Registry) RemoveAll(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.primary[sessionID]
	if !ok {
		return
	}
	delete(r.primary, sessionID)
	for _, e := range subs {
		r.removeFromSecondary(e)
	}
}

// removeFromSecondary finds e by a linear search (O(n) in the number of
// entries) and then does a swap-with-last delete; the secondary index's order is not otherwise meaningful. Caller must
// hold r.mu for writing.
func (r *Registry) removeFromSecondary(e *entry) {
	for i, se := range r.secondary {
		if se == e {
			last := len(r.secondary) - 1
			r.secondary[i] = r.secondary[last]
			r.secondary[last] = nil
			r.secondary = r.secondary[:last]
			return
		}
	}
}

// Count returns the number of subscriptions a session currently owns.
func (r *Registry) Count(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.primary[sessionID])
}

// Stats reports the registry's current size: the number of distinct
// sessions holding at least one subscription, and the total subscription
// count across all of them. Used by the admin/stats HTTP endpoint
// (spec.md §6).
func (r *Registry) Stats() (sessions, subscriptions int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.primary), len(r.secondary)
}

// ForEachMatch invokes visit for every live subscription whose filters
// match ev, using the secondary index's cheap-reject fields to skip the
// full match check where possible (spec.md §4.5/§4.7).
func (r *Registry) ForEachMatch(ev *event.E, visit func(sink Sink, subID string)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.secondary {
		if !e.reject.couldMatch(ev) {
			continue
		}
		if !e.sub.Filters.Match(ev) {
			continue
		}
		visit(e.sub.Sink, e.sub.ID)
	}
}
