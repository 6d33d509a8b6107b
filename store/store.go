// Package store is the badger/v4-backed event store (spec.md §4.3): insert
// with per-kind-class replace policy, query by filter, existence checks,
// and NIP-09-driven deletion with tombstones. Grounded on
// database/database.go and database/save-event.go's sequence-numbered,
// transactional write pattern, adapted from the teacher's
// generated-index-type scheme to store/indexes' flatter key builders.
package store

import (
	"bytes"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"orly.dev/encoders/event"
	"orly.dev/encoders/filter"
	"orly.dev/store/indexes"
	"orly.dev/utils/apputil"
	"orly.dev/utils/chk"
	"orly.dev/utils/context"
)

// retrySchedule is the bounded backoff for a transaction conflict retry
// (spec.md Supplemented features: a concrete 25/50/100ms capped schedule
// rather than an unbounded retry loop).
var retrySchedule = []time.Duration{25 * time.Millisecond, 50 * time.Millisecond, 100 * time.Millisecond}

// Store is the event store.
type Store struct {
	db      *badger.DB
	seq     *badger.Sequence
	dataDir string
}

// Open opens (creating if necessary) a badger store rooted at dataDir.
func Open(dataDir string) (s *Store, err error) {
	dummy := filepath.Join(dataDir, "dummy.sst")
	if err = apputil.EnsureDir(dummy); chk.E(err) {
		return
	}
	opts := badger.DefaultOptions(dataDir)
	opts.Logger = nil
	var db *badger.DB
	if db, err = badger.Open(opts); chk.E(err) {
		return
	}
	var seq *badger.Sequence
	if seq, err = db.GetSequence([]byte("EVENTS"), 1000); chk.E(err) {
		_ = db.Close()
		return
	}
	s = &Store{db: db, seq: seq, dataDir: dataDir}
	return
}

// Close releases the store's resources.
func (s *Store) Close() (err error) {
	if s.seq != nil {
		if err = s.seq.Release(); chk.E(err) {
			return
		}
	}
	return s.db.Close()
}

// withRetry runs fn inside a badger update transaction, retrying on
// badger.ErrConflict per retrySchedule before giving up.
func (s *Store) withRetry(fn func(txn *badger.Txn) error) (err error) {
	for i := 0; ; i++ {
		err = s.db.Update(fn)
		if err == nil || err != badger.ErrConflict {
			return
		}
		if i >= len(retrySchedule) {
			return
		}
		time.Sleep(retrySchedule[i])
	}
}

// InsertResult classifies the outcome of Insert (spec.md §4.3).
type InsertResult int

const (
	// Stored means the event was written (and, if replaceable, any prior
	// version was superseded).
	Stored InsertResult = iota
	// DuplicateId means an event with this exact id already exists.
	DuplicateId
	// Superseded means a newer replaceable/parameterized-replaceable event
	// for the same key already exists, so this one was not written.
	Superseded
	// Ephemeral means the kind is never persisted (20000-29999): the
	// caller should still dispatch it, just not store it.
	Ephemeral
	// Tombstoned means this id was previously deleted and must not be
	// re-accepted.
	Tombstoned
)

func indexesFor(ev *event.E, serial uint64) [][]byte {
	var keys [][]byte
	keys = append(keys, indexes.IdKey(ev.Id))
	keys = append(keys, indexes.CreatedAtKey(ev.CreatedAt.I64(), serial))
	keys = append(keys, indexes.PubkeyKey(ev.Pubkey, ev.CreatedAt.I64(), serial))
	keys = append(keys, indexes.KindKey(ev.Kind.K, ev.CreatedAt.I64(), serial))
	for _, t := range ev.Tags.ToSliceOfTags() {
		k := t.Key()
		if len(k) != 1 {
			continue
		}
		v := t.Value()
		if v == nil {
			continue
		}
		keys = append(keys, indexes.TagKey(k[0], v, ev.CreatedAt.I64(), serial))
	}
	return keys
}

// Insert applies the store policy from spec.md §4.3 and writes ev if it
// should be persisted.
func (s *Store) Insert(ctx context.T, ev *event.E) (result InsertResult, err error) {
	if ev.Kind.IsEphemeral() {
		return Ephemeral, nil
	}
	// tombstone check
	if err = s.db.View(func(txn *badger.Txn) error {
		_, e := txn.Get(indexes.TombstoneKey(ev.Id))
		if e == nil {
			result = Tombstoned
		}
		if e == badger.ErrKeyNotFound {
			return nil
		}
		return e
	}); chk.E(err) {
		return
	}
	if result == Tombstoned {
		return
	}
	// duplicate id check
	if err = s.db.View(func(txn *badger.Txn) error {
		_, e := txn.Get(indexes.IdKey(ev.Id))
		if e == nil {
			result = DuplicateId
		}
		if e == badger.ErrKeyNotFound {
			return nil
		}
		return e
	}); chk.E(err) {
		return
	}
	if result == DuplicateId {
		return
	}

	pubkey, kind, d, isKeyed := ev.ReplaceableKey()
	var replaceKey []byte
	if isKeyed {
		if ev.Kind.IsParameterizedReplaceable() {
			replaceKey = indexes.ParamReplaceableKey(pubkey, kind, d)
		} else {
			replaceKey = indexes.ReplaceableKey(pubkey, kind)
		}
	}

	err = s.withRetry(func(txn *badger.Txn) (err error) {
		if isKeyed {
			item, e := txn.Get(replaceKey)
			if e != nil && e != badger.ErrKeyNotFound {
				return e
			}
			if e == nil {
				var prevSerial uint64
				if prevSerial, err = decodeSerial(item); err != nil {
					return err
				}
				var prevEv *event.E
				if prevEv, err = fetchSerial(txn, prevSerial); err != nil {
					return err
				}
				if prevEv != nil && !newerWins(ev, prevEv) {
					result = Superseded
					return nil
				}
				if prevEv != nil {
					for _, k := range indexesFor(prevEv, prevSerial) {
						_ = txn.Delete(k)
					}
					_ = txn.Delete(indexes.EventKey(prevSerial))
				}
			}
		}
		var serial uint64
		if serial, err = s.seq.Next(); err != nil {
			return err
		}
		for _, k := range indexesFor(ev, serial) {
			if err = txn.Set(k, nil); err != nil {
				return err
			}
		}
		if isKeyed {
			if err = txn.Set(replaceKey, encodeSerial(serial)); err != nil {
				return err
			}
		}
		var buf bytes.Buffer
		ev.MarshalBinary(&buf)
		if err = txn.Set(indexes.EventKey(serial), buf.Bytes()); err != nil {
			return err
		}
		result = Stored
		return nil
	})
	return
}

// newerWins reports whether candidate should replace incumbent under the
// replaceable-event tie-break rule: newest created_at wins; on a tie, the
// smallest id wins (spec.md §4.3).
func newerWins(candidate, incumbent *event.E) bool {
	if candidate.CreatedAt.I64() != incumbent.CreatedAt.I64() {
		return candidate.CreatedAt.I64() > incumbent.CreatedAt.I64()
	}
	return bytes.Compare(candidate.Id, incumbent.Id) < 0
}

func encodeSerial(serial uint64) []byte {
	b, _ := msgpack.Marshal(serial)
	return b
}

func decodeSerial(item *badger.Item) (serial uint64, err error) {
	err = item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &serial)
	})
	return
}

func fetchSerial(txn *badger.Txn, serial uint64) (ev *event.E, err error) {
	item, e := txn.Get(indexes.EventKey(serial))
	if e == badger.ErrKeyNotFound {
		return nil, nil
	}
	if e != nil {
		return nil, e
	}
	err = item.Value(func(val []byte) error {
		ev = event.New()
		return ev.UnmarshalBinary(bytes.NewReader(val))
	})
	return
}

// Exists reports whether an event with this id is stored.
func (s *Store) Exists(ctx context.T, id []byte) (ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		_, e := txn.Get(indexes.IdKey(id))
		if e == badger.ErrKeyNotFound {
			return nil
		}
		if e != nil {
			return e
		}
		ok = true
		return nil
	})
	return
}

// Tombstoned reports whether id was previously deleted.
func (s *Store) Tombstoned(ctx context.T, id []byte) (ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		_, e := txn.Get(indexes.TombstoneKey(id))
		if e == badger.ErrKeyNotFound {
			return nil
		}
		if e != nil {
			return e
		}
		ok = true
		return nil
	})
	return
}

// DeleteEvent removes an event by id, per spec.md's NIP-09 supplement. If
// noTombstone is true, no tombstone is written (the session passes true for
// a-tag deletions of parameterized-replaceable events and false for e-tag
// deletions).
func (s *Store) DeleteEvent(ctx context.T, id []byte, noTombstone bool) (err error) {
	return s.withRetry(func(txn *badger.Txn) (err error) {
		item, e := txn.Get(indexes.IdKey(id))
		if e == badger.ErrKeyNotFound {
			return nil
		}
		if e != nil {
			return e
		}
		var serial uint64
		if serial, err = decodeSerial(item); err != nil {
			return err
		}
		ev, err := fetchSerial(txn, serial)
		if err != nil {
			return err
		}
		if ev == nil {
			return nil
		}
		for _, k := range indexesFor(ev, serial) {
			if err = txn.Delete(k); err != nil {
				return err
			}
		}
		if err = txn.Delete(indexes.EventKey(serial)); err != nil {
			return err
		}
		if pubkey, kind, d, isKeyed := ev.ReplaceableKey(); isKeyed {
			var rk []byte
			if ev.Kind.IsParameterizedReplaceable() {
				rk = indexes.ParamReplaceableKey(pubkey, kind, d)
			} else {
				rk = indexes.ReplaceableKey(pubkey, kind)
			}
			_ = txn.Delete(rk)
		}
		if !noTombstone {
			if err = txn.Set(indexes.TombstoneKey(id), encodeSerial(uint64(time.Now().Unix()))); err != nil {
				return err
			}
		}
		return nil
	})
}

// QueryEvents returns every stored event matching f, newest first,
// truncated to the smaller of f.Limit (when set) and
// filter.DefaultPolicy.MaxLimit. Grounded on database/query-events.go's
// pick-the-cheapest-index approach: ids first, then authors/kinds/tags,
// falling back to a full time-ordered scan.
func (s *Store) QueryEvents(ctx context.T, f *filter.F) (out event.S, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		switch {
		case f.Ids.Len() > 0:
			for _, id := range f.Ids.ToSliceOfBytes() {
				item, e := txn.Get(indexes.IdKey(id))
				if e == badger.ErrKeyNotFound {
					continue
				}
				if e != nil {
					return e
				}
				serial, e := decodeSerial(item)
				if e != nil {
					return e
				}
				ev, e := fetchSerial(txn, serial)
				if e != nil {
					return e
				}
				if ev != nil && f.Matches(ev) {
					out = append(out, ev)
				}
			}
		case f.Authors.Len() > 0:
			for _, author := range f.Authors.ToSliceOfBytes() {
				if err := scanPrefix(txn, indexes.PubkeyPrefix(author), f, &out); err != nil {
					return err
				}
			}
		case f.Kinds.Len() > 0:
			for _, k := range f.Kinds.K {
				if err := scanPrefix(txn, indexes.KindPrefix(k.K), f, &out); err != nil {
					return err
				}
			}
		case f.Tags.Len() > 0:
			for _, tg := range f.Tags.ToSliceOfTags() {
				key := tg.Key()
				if len(key) != 2 || key[0] != '#' {
					continue
				}
				for _, v := range tg.ToSliceOfBytes()[1:] {
					if err := scanPrefix(txn, indexes.TagPrefix(key[1], v), f, &out); err != nil {
						return err
					}
				}
			}
		default:
			if err := scanPrefix(txn, indexes.CreatedAtPrefix(), f, &out); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return
	}
	out = dedupe(out)
	sortNewestFirst(out)
	maxOut := filter.DefaultPolicy.MaxLimit
	if f.Limit != nil && *f.Limit < maxOut {
		maxOut = *f.Limit
	}
	if uint(len(out)) > maxOut {
		out = out[:maxOut]
	}
	return
}

// CountEvents returns the number of events QueryEvents returns for f, for
// NIP-45 COUNT; the count is therefore capped at f.Limit (when set) and
// filter.DefaultPolicy.MaxLimit. It does not materialize the full result set's content beyond what
// QueryEvents already fetches (a dedicated count-only index is future
// work; this relay's scale doesn't yet justify the complexity).
func (s *Store) CountEvents(ctx context.T, f *filter.F) (n int64, err error) {
	var events event.S
	if events, err = s.QueryEvents(ctx, f); chk.E(err) {
		return
	}
	n = int64(len(events))
	return
}

// scanIndexLimit bounds how many index entries a single-dimension scan
// will walk before giving up on widening a query further; the final
// f.Matches check still applies on every candidate.
const scanIndexLimit = 100_000

func scanPrefix(txn *badger.Txn, prefix []byte, f *filter.F, out *event.S) (err error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	seen := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		seen++
		if seen > scanIndexLimit {
			break
		}
		key := it.Item().KeyCopy(nil)
		serial, ok := lastU64(key)
		if !ok {
			continue
		}
		ev, e := fetchSerial(txn, serial)
		if e != nil {
			return e
		}
		if ev != nil && f.Matches(ev) {
			*out = append(*out, ev)
		}
	}
	return nil
}

func lastU64(key []byte) (v uint64, ok bool) {
	if len(key) < 8 {
		return 0, false
	}
	tail := key[len(key)-8:]
	for i, b := range tail {
		v |= uint64(b) << uint((7-i)*8)
	}
	return v, true
}

func dedupe(in event.S) event.S {
	seen := make(map[string]struct{}, len(in))
	out := make(event.S, 0, len(in))
	for _, ev := range in {
		k := string(ev.Id)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, ev)
	}
	return out
}

// sortNewestFirst orders a result set per spec.md §4.3's query ordering:
// newest created_at first, ties broken by smallest id. It runs on the
// full candidate set before truncation to the limit, so its input is
// bounded only by scanIndexLimit per scanned prefix.
func sortNewestFirst(s event.S) {
	for i := 1; i < len(s); i++ {
		j := i
		for j > 0 && s.Less(j, j-1) {
			s.Swap(j, j-1)
			j--
		}
	}
}
