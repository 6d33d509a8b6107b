// Package filter is the codec and matching engine for nostr REQ filters
// (spec.md §3 Filter Model, §4.2 Filter & Match Engine). A filter is a
// conjunction of clauses: every non-empty clause must accept the event,
// the values inside one ids/kinds/authors clause are OR'd, tag clauses
// are AND'd against each other, and since/until bound the time window. Filters within a single REQ are implicitly OR'd by the caller
// (the session layer evaluates each filter against an event in turn).
package filter

import (
	"encoding/binary"
	"sort"

	"lukechampine.com/frand"

	"orly.dev/crypto"
	"orly.dev/encoders/event"
	"orly.dev/encoders/kind"
	"orly.dev/encoders/kinds"
	"orly.dev/encoders/tag"
	"orly.dev/encoders/tags"
	"orly.dev/encoders/text"
	"orly.dev/encoders/timestamp"
	"orly.dev/utils/errorf"
)

// F is a single REQ filter clause.
type F struct {
	Ids     *tag.T
	Kinds   *kinds.T
	Authors *tag.T
	Tags    *tags.T
	Since   *timestamp.T
	Until   *timestamp.T
	Limit   *uint
}

// New returns an empty, ready-to-use filter.
func New() *F {
	return &F{
		Ids:     tag.NewWithCap(8),
		Kinds:   kinds.NewWithCap(8),
		Authors: tag.NewWithCap(8),
		Tags:    tags.New(),
	}
}

// Clone returns a deep copy of f with Limit set to 1 (the original
// Limit is not copied).
func (f *F) Clone() *F {
	lim := new(uint)
	*lim = 1
	return &F{
		Ids:     f.Ids.Clone(),
		Kinds:   &kinds.T{K: append([]*kind.T{}, f.Kinds.K...)},
		Authors: f.Authors.Clone(),
		Tags:    f.Tags.Clone(),
		Since:   f.Since,
		Until:   f.Until,
		Limit:   lim,
	}
}

var (
	idsKey     = []byte("ids")
	kindsKey   = []byte("kinds")
	authorsKey = []byte("authors")
	sinceKey   = []byte("since")
	untilKey   = []byte("until")
	limitKey   = []byte("limit")
)

// Sort canonicalizes field ordering so that two filters built from the
// same content marshal byte-identically, which Fingerprint relies on.
func (f *F) Sort() {
	if f.Ids != nil {
		sort.Sort(f.Ids)
	}
	if f.Kinds != nil {
		sort.Sort(f.Kinds)
	}
	if f.Authors != nil {
		sort.Sort(f.Authors)
	}
	if f.Tags != nil {
		sort.Sort(f.Tags)
	}
}

// Marshal appends the minified wire JSON object for f to dst.
func (f *F) Marshal(dst []byte) []byte {
	f.Sort()
	dst = append(dst, '{')
	first := false
	if f.Ids.Len() > 0 {
		first = true
		dst = text.JSONKey(dst, idsKey)
		dst = text.MarshalHexArray(dst, f.Ids.ToSliceOfBytes())
	}
	if f.Kinds.Len() > 0 {
		if first {
			dst = append(dst, ',')
		}
		first = true
		dst = text.JSONKey(dst, kindsKey)
		dst = f.Kinds.Marshal(dst)
	}
	if f.Authors.Len() > 0 {
		if first {
			dst = append(dst, ',')
		}
		first = true
		dst = text.JSONKey(dst, authorsKey)
		dst = text.MarshalHexArray(dst, f.Authors.ToSliceOfBytes())
	}
	for _, tg := range f.Tags.ToSliceOfTags() {
		if tg.Len() < 1 || len(tg.Key()) != 2 || tg.Key()[0] != '#' {
			continue
		}
		values := tg.ToSliceOfBytes()[1:]
		if len(values) == 0 {
			continue
		}
		if first {
			dst = append(dst, ',')
		}
		first = true
		dst = append(dst, '"', tg.Key()[0], tg.Key()[1], '"', ':')
		letter := tg.Key()[1]
		if letter == 'e' || letter == 'p' {
			dst = text.MarshalHexArray(dst, values)
		} else {
			dst = append(dst, '[')
			for i, v := range values {
				if i > 0 {
					dst = append(dst, ',')
				}
				dst = text.AppendQuote(dst, v, text.NostrEscape)
			}
			dst = append(dst, ']')
		}
	}
	if f.Since != nil && f.Since.U64() > 0 {
		if first {
			dst = append(dst, ',')
		}
		first = true
		dst = text.JSONKey(dst, sinceKey)
		dst = f.Since.Marshal(dst)
	}
	if f.Until != nil && f.Until.U64() > 0 {
		if first {
			dst = append(dst, ',')
		}
		first = true
		dst = text.JSONKey(dst, untilKey)
		dst = f.Until.Marshal(dst)
	}
	if f.Limit != nil {
		if first {
			dst = append(dst, ',')
		}
		dst = text.JSONKey(dst, limitKey)
		dst = appendUint(dst, uint64(*f.Limit))
	}
	dst = append(dst, '}')
	return dst
}

// Serialize renders f as minified JSON.
func (f *F) Serialize() []byte { return f.Marshal(nil) }

func appendUint(dst []byte, v uint64) []byte {
	t := timestamp.FromUnix(int64(v))
	return t.Marshal(dst)
}

func parseUint(r []byte) (v uint64, rem []byte, err error) {
	t := &timestamp.T{}
	if rem, err = t.Unmarshal(r); err != nil {
		return
	}
	if t.V < 0 {
		err = errorf.E("filter: negative integer not allowed")
		return
	}
	v = uint64(t.V)
	return
}

// Unmarshal reads a wire JSON filter object off the front of b into f.
func (f *F) Unmarshal(b []byte) (rem []byte, err error) {
	r := b
	for len(r) > 0 && r[0] != '{' {
		r = r[1:]
	}
	if len(r) == 0 {
		err = errorf.E("filter: no opening brace")
		return
	}
	r = r[1:]
next:
	for len(r) > 0 && (r[0] == ' ' || r[0] == ',' || r[0] == '\n' || r[0] == '\t' || r[0] == '\r') {
		r = r[1:]
	}
	if len(r) == 0 {
		err = errorf.E("filter: unexpected eof")
		return
	}
	if r[0] == '}' {
		rem = r[1:]
		return
	}
	var key []byte
	if key, r, err = text.UnmarshalQuoted(r); err != nil {
		return
	}
	for len(r) > 0 && (r[0] == ' ' || r[0] == ':') {
		r = r[1:]
	}
	switch {
	case len(key) == 2 && key[0] == '#':
		var vals [][]byte
		letter := key[1]
		if letter == 'e' || letter == 'p' {
			if vals, r, err = text.UnmarshalHexArray(r, 32); err != nil {
				return
			}
		} else {
			if vals, r, err = text.UnmarshalStringArray(r); err != nil {
				return
			}
		}
		k := make([]byte, 2)
		copy(k, key)
		fields := append([][]byte{k}, vals...)
		f.Tags = f.Tags.AppendTags(tag.FromBytesSlice(fields...))
	case string(key) == "ids":
		var vals [][]byte
		if vals, r, err = text.UnmarshalHexArray(r, 32); err != nil {
			return
		}
		f.Ids = tag.FromBytesSlice(vals...)
	case string(key) == "kinds":
		f.Kinds = kinds.NewWithCap(0)
		if r, err = f.Kinds.Unmarshal(r); err != nil {
			return
		}
	case string(key) == "authors":
		var vals [][]byte
		if vals, r, err = text.UnmarshalHexArray(r, 32); err != nil {
			return
		}
		f.Authors = tag.FromBytesSlice(vals...)
	case string(key) == "since":
		var v uint64
		if v, r, err = parseUint(r); err != nil {
			return
		}
		f.Since = timestamp.FromUnix(int64(v))
	case string(key) == "until":
		var v uint64
		if v, r, err = parseUint(r); err != nil {
			return
		}
		f.Until = timestamp.FromUnix(int64(v))
	case string(key) == "limit":
		var v uint64
		if v, r, err = parseUint(r); err != nil {
			return
		}
		u := uint(v)
		f.Limit = &u
	default:
		err = errorf.E("filter: unrecognized key %q", key)
		return
	}
	goto next
}

// Matches reports whether ev satisfies f (spec.md §4.2): every non-empty
// clause must accept the event, and clauses are absent (always-pass) when
// empty.
func (f *F) Matches(ev *event.E) bool {
	if ev == nil {
		return false
	}
	if f.Ids.Len() > 0 && !f.Ids.Contains(ev.Id) {
		return false
	}
	if f.Kinds.Len() > 0 && !f.Kinds.Contains(ev.Kind) {
		return false
	}
	if f.Authors.Len() > 0 && !f.Authors.Contains(ev.Pubkey) {
		return false
	}
	if f.Tags.Len() > 0 && !ev.Tags.Intersects(f.Tags) {
		return false
	}
	if f.Since != nil && f.Since.I64() != 0 && ev.CreatedAt.I64() < f.Since.I64() {
		return false
	}
	if f.Until != nil && f.Until.I64() != 0 && ev.CreatedAt.I64() > f.Until.I64() {
		return false
	}
	return true
}

// Policy bounds the REQ filter limits from spec.md §4.2 "filter_is_reasonable".
type Policy struct {
	MaxFiltersPerReq   int
	MaxIdsOrAuthors    int
	MaxKinds           int
	MaxValuesPerTag    int
	MaxLimit           uint
	MaxOpenWindowSecs  int64
}

// DefaultPolicy matches the thresholds named in spec.md §4.2.
var DefaultPolicy = Policy{
	MaxFiltersPerReq:  10,
	MaxIdsOrAuthors:   1000,
	MaxKinds:          20,
	MaxValuesPerTag:   20,
	MaxLimit:          5000,
	MaxOpenWindowSecs: 30 * 24 * 3600,
}

// IsReasonable validates f against p, returning a description of the first
// violation found, or "" if f is acceptable.
func (f *F) IsReasonable(p Policy) string {
	if f.Ids.Len() > p.MaxIdsOrAuthors {
		return "too many ids"
	}
	if f.Authors.Len() > p.MaxIdsOrAuthors {
		return "too many authors"
	}
	if f.Kinds.Len() > p.MaxKinds {
		return "too many kinds"
	}
	for _, tg := range f.Tags.ToSliceOfTags() {
		if tg.Len()-1 > p.MaxValuesPerTag {
			return "too many values in tag clause"
		}
	}
	if f.Limit != nil && *f.Limit > p.MaxLimit {
		return "limit too large"
	}
	if f.Since != nil && f.Until != nil && f.Since.I64() > 0 && f.Until.I64() > 0 && f.Since.I64() >= f.Until.I64() {
		return "since must be before until"
	}
	if f.Ids.Len() == 0 && f.Authors.Len() == 0 && f.Kinds.Len() == 0 {
		since, until := int64(0), timestamp.Now().I64()
		if f.Since != nil {
			since = f.Since.I64()
		}
		if f.Until != nil {
			until = f.Until.I64()
		}
		if until-since > p.MaxOpenWindowSecs {
			return "unconstrained filter window too wide"
		}
	}
	return ""
}

// Fingerprint returns the first 8 bytes of SHA-256 over the canonical
// (Limit-stripped) marshal of f.
func (f *F) Fingerprint() (fp uint64, err error) {
	lim := f.Limit
	f.Limit = nil
	b := f.Marshal(nil)
	f.Limit = lim
	h := crypto.Sha256(b)
	fp = binary.LittleEndian.Uint64(h[:8])
	return
}

func ptrEq(a, b *timestamp.T) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.I64() == b.I64()
}

// Equal reports whether f and o are the same filter, field for field,
// except Limit, which is not compared.
func (f *F) Equal(o *F) bool {
	f.Sort()
	o.Sort()
	return f.Kinds.Equals(o.Kinds) &&
		f.Ids.Equal(o.Ids) &&
		f.Authors.Equal(o.Authors) &&
		f.Tags.Equal(o.Tags) &&
		ptrEq(f.Since, o.Since) &&
		ptrEq(f.Until, o.Until)
}

// GenFilter builds a random filter for tests.
func GenFilter() (f *F, err error) {
	f = New()
	n := frand.Intn(8)
	for range n {
		id := make([]byte, 32)
		frand.Read(id)
		f.Ids = f.Ids.Append(id)
	}
	n = frand.Intn(8)
	for range n {
		f.Kinds.K = append(f.Kinds.K, kind.New(frand.Intn(40000)))
	}
	n = frand.Intn(8)
	for range n {
		sec := make([]byte, 32)
		frand.Read(sec)
		f.Authors = f.Authors.Append(crypto.PubkeyFromSecret(sec))
	}
	tn := timestamp.Now().I64()
	since := tn - int64(frand.Intn(10000))
	f.Since = timestamp.FromUnix(since)
	f.Until = timestamp.Now()
	lim := uint(frand.Intn(500))
	f.Limit = &lim
	return
}
