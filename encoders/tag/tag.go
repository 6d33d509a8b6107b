// Package tag is the codec for a single nostr tag — an ordered, non-empty
// sequence of byte strings whose first element is the tag name (spec.md
// §3). The same type doubles as a flat set of 32-byte values for the
// filter's `ids` and `authors` clauses, which is why it carries
// Append/Contains in addition to Key/Value.
package tag

import "bytes"

// T is an ordered sequence of byte-string fields.
type T struct{ Field [][]byte }

// New builds a T from the given fields.
func New(fields ...[]byte) *T { return &T{Field: fields} }

// NewWithCap builds an empty T with the given starting capacity.
func NewWithCap(n uint64) *T { return &T{Field: make([][]byte, 0, n)} }

// FromBytesSlice is an alias of New used at filter-parsing call sites.
func FromBytesSlice(fields ...[]byte) *T { return New(fields...) }

// Append returns a T with field appended. When t is nil a new T is
// allocated, matching the teacher's `f.Ids = f.Ids.Append(x)` idiom that
// works against a nil receiver.
func (t *T) Append(field []byte) *T {
	if t == nil {
		t = &T{}
	}
	t.Field = append(t.Field, field)
	return t
}

// Len returns the number of fields.
func (t *T) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Field)
}

// Key returns the first field (the tag name), or nil if empty.
func (t *T) Key() []byte {
	if t.Len() == 0 {
		return nil
	}
	return t.Field[0]
}

// Value returns the second field, or nil if there is none.
func (t *T) Value() []byte {
	if t.Len() < 2 {
		return nil
	}
	return t.Field[1]
}

// B returns the i'th field.
func (t *T) B(i int) []byte {
	if t == nil || i < 0 || i >= len(t.Field) {
		return nil
	}
	return t.Field[i]
}

// ToSliceOfBytes returns the underlying field slice.
func (t *T) ToSliceOfBytes() [][]byte {
	if t == nil {
		return nil
	}
	return t.Field
}

// ToStrings renders the fields as strings, for the J wire-compatible form.
func (t *T) ToStrings() []string {
	out := make([]string, t.Len())
	for i, f := range t.ToSliceOfBytes() {
		out[i] = string(f)
	}
	return out
}

// Contains reports whether v is present among the fields (used for the
// flat id/author set usage of T).
func (t *T) Contains(v []byte) bool {
	for _, f := range t.ToSliceOfBytes() {
		if bytes.Equal(f, v) {
			return true
		}
	}
	return false
}

// Equal reports whether two tags have identical fields in the same order.
func (t *T) Equal(o *T) bool {
	if t.Len() != o.Len() {
		return false
	}
	for i := range t.ToSliceOfBytes() {
		if !bytes.Equal(t.B(i), o.B(i)) {
			return false
		}
	}
	return true
}

// Len/Less/Swap implement sort.Interface, ordering all fields byte-wise
// against each other (used to canonicalize the `ids`/`authors` sets before
// fingerprinting a filter).
func (t *T) Less(i, j int) bool { return bytes.Compare(t.Field[i], t.Field[j]) < 0 }
func (t *T) Swap(i, j int)      { t.Field[i], t.Field[j] = t.Field[j], t.Field[i] }

// Clone returns a deep copy.
func (t *T) Clone() *T {
	if t == nil {
		return nil
	}
	out := make([][]byte, len(t.Field))
	for i, f := range t.Field {
		b := make([]byte, len(f))
		copy(b, f)
		out[i] = b
	}
	return &T{Field: out}
}
