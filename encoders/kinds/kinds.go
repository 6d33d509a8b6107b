// Package kinds is a collection of kind.T, used as the filter's `kinds`
// clause (spec.md §3).
package kinds

import (
	"orly.dev/encoders/kind"
	"orly.dev/utils/errorf"
)

// T is an ordered collection of kinds.
type T struct{ K []*kind.T }

// New creates an empty collection.
func New() *T { return &T{} }

// NewWithCap creates a collection with the given starting capacity.
func NewWithCap(n int) *T { return &T{K: make([]*kind.T, 0, n)} }

// Len implements sort.Interface.
func (t *T) Len() int {
	if t == nil {
		return 0
	}
	return len(t.K)
}

// Less implements sort.Interface.
func (t *T) Less(i, j int) bool { return t.K[i].K < t.K[j].K }

// Swap implements sort.Interface.
func (t *T) Swap(i, j int) { t.K[i], t.K[j] = t.K[j], t.K[i] }

// Contains reports whether k is present in the collection.
func (t *T) Contains(k *kind.T) bool {
	if t == nil || k == nil {
		return false
	}
	for _, kk := range t.K {
		if kk.Equal(k) {
			return true
		}
	}
	return false
}

// Equals reports whether two kind collections have the same length and
// every kind of t is contained in o (order independent). Duplicates are
// counted by the length check, so [1,2] and [1,2,2] differ, while [1,1]
// and [1,2] compare equal.
func (t *T) Equals(o *T) bool {
	if t.Len() != o.Len() {
		return false
	}
	for _, k := range t.K {
		if !o.Contains(k) {
			return false
		}
	}
	return true
}

// Marshal appends a minified JSON array of the kind numbers to dst.
func (t *T) Marshal(dst []byte) []byte {
	dst = append(dst, '[')
	for i, k := range t.K {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = k.Marshal(dst)
	}
	dst = append(dst, ']')
	return dst
}

// Unmarshal reads a JSON array of integers off the front of b.
func (t *T) Unmarshal(b []byte) (rem []byte, err error) {
	r := b
	for len(r) > 0 && r[0] != '[' {
		r = r[1:]
	}
	if len(r) == 0 {
		err = errorf.E("kinds: no opening bracket in %q", b)
		return
	}
	r = r[1:]
	for {
		for len(r) > 0 && (r[0] == ' ' || r[0] == ',') {
			r = r[1:]
		}
		if len(r) == 0 {
			err = errorf.E("kinds: unexpected eof")
			return
		}
		if r[0] == ']' {
			r = r[1:]
			break
		}
		k := kind.New(0)
		if r, err = k.Unmarshal(r); err != nil {
			return
		}
		t.K = append(t.K, k)
	}
	rem = r
	return
}
