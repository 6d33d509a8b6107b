// Package tags is the codec for a nostr event's tag list, and the home of
// the tag-filter-clause matching semantics used by encoders/filter (spec.md
// §3 "for each ... key X, the filter may carry #X -> set of values").
package tags

import (
	"bytes"

	"orly.dev/encoders/tag"
	"orly.dev/utils/errorf"
)

// T is an ordered collection of tags.
type T struct{ Field []*tag.T }

// New creates an empty collection.
func New() *T { return &T{} }

// NewWithCap creates a collection with a starting capacity hint.
func NewWithCap(n int) *T { return &T{Field: make([]*tag.T, 0, n)} }

// AppendTags appends the given tags and returns the receiver (allocating if
// nil), matching the teacher's nil-receiver-safe builder idiom.
func (t *T) AppendTags(tgs ...*tag.T) *T {
	if t == nil {
		t = &T{}
	}
	t.Field = append(t.Field, tgs...)
	return t
}

// Len returns the number of tags.
func (t *T) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Field)
}

func (t *T) Less(i, j int) bool { return bytes.Compare(t.Field[i].Key(), t.Field[j].Key()) < 0 }
func (t *T) Swap(i, j int)      { t.Field[i], t.Field[j] = t.Field[j], t.Field[i] }

// ToSliceOfTags returns the underlying tag slice.
func (t *T) ToSliceOfTags() []*tag.T {
	if t == nil {
		return nil
	}
	return t.Field
}

// ToStringsSlice renders the tag list as [][]string, for the wire-compatible
// J form.
func (t *T) ToStringsSlice() [][]string {
	out := make([][]string, t.Len())
	for i, tg := range t.ToSliceOfTags() {
		out[i] = tg.ToStrings()
	}
	return out
}

// GetFirst returns the first tag whose name equals key, or nil.
func (t *T) GetFirst(key string) *tag.T {
	for _, tg := range t.ToSliceOfTags() {
		if string(tg.Key()) == key {
			return tg
		}
	}
	return nil
}

// GetAll returns every tag whose name equals key.
func (t *T) GetAll(key string) (out []*tag.T) {
	for _, tg := range t.ToSliceOfTags() {
		if string(tg.Key()) == key {
			out = append(out, tg)
		}
	}
	return
}

// Count returns the number of tags whose name equals key.
func (t *T) Count(key string) (n int) {
	for _, tg := range t.ToSliceOfTags() {
		if string(tg.Key()) == key {
			n++
		}
	}
	return
}

// Clone returns a deep copy.
func (t *T) Clone() *T {
	out := make([]*tag.T, t.Len())
	for i, tg := range t.ToSliceOfTags() {
		out[i] = tg.Clone()
	}
	return &T{Field: out}
}

// Equal reports whether two tag lists are identical in order.
func (t *T) Equal(o *T) bool {
	if t.Len() != o.Len() {
		return false
	}
	for i, tg := range t.ToSliceOfTags() {
		if !tg.Equal(o.Field[i]) {
			return false
		}
	}
	return true
}

// Intersects implements the filter tag-clause predicate: clauses is a
// collection where each entry's Key() is "#X" (a single letter prefixed
// with '#') and whose remaining fields are the clause's accepted values.
// The event (the receiver) matches iff EVERY clause in clauses is
// satisfied: the event carries at least one tag named X whose second
// field is among the clause's values. An empty clauses collection always
// matches (no tag constraint present).
func (t *T) Intersects(clauses *T) bool {
	if clauses.Len() == 0 {
		return true
	}
	for _, clause := range clauses.ToSliceOfTags() {
		k := clause.Key()
		if len(k) != 2 || k[0] != '#' {
			continue
		}
		name := string(k[1])
		values := clause.ToSliceOfBytes()[1:]
		if len(values) == 0 {
			continue
		}
		satisfied := false
		for _, evTag := range t.GetAll(name) {
			v := evTag.Value()
			if v == nil {
				continue
			}
			for _, want := range values {
				if bytes.Equal(v, want) {
					satisfied = true
					break
				}
			}
			if satisfied {
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}

// Marshal appends a minified JSON array-of-arrays-of-strings to dst.
func (t *T) Marshal(dst []byte) []byte {
	dst = append(dst, '[')
	for i, tg := range t.ToSliceOfTags() {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, '[')
		for j, f := range tg.ToSliceOfBytes() {
			if j > 0 {
				dst = append(dst, ',')
			}
			dst = appendJSONString(dst, f)
		}
		dst = append(dst, ']')
	}
	dst = append(dst, ']')
	return dst
}

// MarshalWithWhitespace is the human-readable variant used by the event
// pretty-printer.
func (t *T) MarshalWithWhitespace(dst []byte) []byte {
	dst = append(dst, '[')
	for i, tg := range t.ToSliceOfTags() {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, '\n', '\t', '\t')
		dst = append(dst, '[')
		for j, f := range tg.ToSliceOfBytes() {
			if j > 0 {
				dst = append(dst, ',', ' ')
			}
			dst = appendJSONString(dst, f)
		}
		dst = append(dst, ']')
	}
	if t.Len() > 0 {
		dst = append(dst, '\n', '\t')
	}
	dst = append(dst, ']')
	return dst
}

func appendJSONString(dst, s []byte) []byte {
	dst = append(dst, '"')
	for _, b := range s {
		switch b {
		case '"', '\\':
			dst = append(dst, '\\', b)
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		default:
			if b < 0x20 {
				dst = append(dst, '\\', 'u', '0', '0')
				const hexd = "0123456789abcdef"
				dst = append(dst, hexd[b>>4], hexd[b&0xf])
			} else {
				dst = append(dst, b)
			}
		}
	}
	return append(dst, '"')
}

// Unmarshal reads a JSON array of arrays of strings off the front of b.
func (t *T) Unmarshal(b []byte) (rem []byte, err error) {
	r := b
	for len(r) > 0 && r[0] != '[' {
		r = r[1:]
	}
	if len(r) == 0 {
		err = errorf.E("tags: no opening bracket")
		return
	}
	r = r[1:]
	for {
		for len(r) > 0 && (r[0] == ' ' || r[0] == ',' || r[0] == '\n' || r[0] == '\t' || r[0] == '\r') {
			r = r[1:]
		}
		if len(r) == 0 {
			err = errorf.E("tags: unexpected eof")
			return
		}
		if r[0] == ']' {
			r = r[1:]
			break
		}
		if r[0] != '[' {
			err = errorf.E("tags: expected '[' got %q", r[0])
			return
		}
		r = r[1:]
		var fields [][]byte
		for {
			for len(r) > 0 && (r[0] == ' ' || r[0] == ',' || r[0] == '\n' || r[0] == '\t' || r[0] == '\r') {
				r = r[1:]
			}
			if len(r) == 0 {
				err = errorf.E("tags: unexpected eof in tag")
				return
			}
			if r[0] == ']' {
				r = r[1:]
				break
			}
			var s []byte
			if s, r, err = unmarshalQuotedString(r); err != nil {
				return
			}
			fields = append(fields, s)
		}
		t.Field = append(t.Field, tag.New(fields...))
	}
	rem = r
	return
}

func unmarshalQuotedString(r []byte) (s, rem []byte, err error) {
	if len(r) == 0 || r[0] != '"' {
		err = errorf.E("tags: expected '\"'")
		return
	}
	r = r[1:]
	for len(r) > 0 {
		switch r[0] {
		case '"':
			return s, r[1:], nil
		case '\\':
			if len(r) < 2 {
				err = errorf.E("tags: truncated escape")
				return
			}
			switch r[1] {
			case 'n':
				s = append(s, '\n')
			case 't':
				s = append(s, '\t')
			case 'r':
				s = append(s, '\r')
			case '"', '\\', '/':
				s = append(s, r[1])
			case 'u':
				if len(r) < 6 {
					err = errorf.E("tags: truncated unicode escape")
					return
				}
				var v int
				for i := 2; i < 6; i++ {
					v <<= 4
					c := r[i]
					switch {
					case c >= '0' && c <= '9':
						v |= int(c - '0')
					case c >= 'a' && c <= 'f':
						v |= int(c-'a') + 10
					case c >= 'A' && c <= 'F':
						v |= int(c-'A') + 10
					}
				}
				s = append(s, []byte(string(rune(v)))...)
				r = r[4:]
			default:
				s = append(s, r[1])
			}
			r = r[2:]
		default:
			s = append(s, r[0])
			r = r[1:]
		}
	}
	err = errorf.E("tags: unterminated string")
	return
}
