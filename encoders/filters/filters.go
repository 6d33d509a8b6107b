// Package filters is a collection of filter.F, the complete set carried by
// a single REQ (spec.md §4.2): an event matches the collection if it
// matches ANY filter in it.
package filters

import (
	"orly.dev/encoders/event"
	"orly.dev/encoders/filter"
	"orly.dev/utils/errorf"
)

// T is an ordered collection of filters.
type T struct{ F []*filter.F }

// New builds a collection from the given filters.
func New(f ...*filter.F) *T { return &T{F: f} }

// Match reports whether ev satisfies any filter in the collection.
func (t *T) Match(ev *event.E) bool {
	if t == nil {
		return false
	}
	for _, f := range t.F {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}

// Len returns the number of filters.
func (t *T) Len() int {
	if t == nil {
		return 0
	}
	return len(t.F)
}

// Marshal appends a minified JSON array of filter objects to dst.
func (t *T) Marshal(dst []byte) []byte {
	dst = append(dst, '[')
	for i, f := range t.F {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = f.Marshal(dst)
	}
	dst = append(dst, ']')
	return dst
}

// Unmarshal reads a JSON array of filter objects off the front of b.
func (t *T) Unmarshal(b []byte) (rem []byte, err error) {
	r := b
	for len(r) > 0 && r[0] != '[' {
		r = r[1:]
	}
	if len(r) == 0 {
		err = errorf.E("filters: no opening bracket")
		return
	}
	r = r[1:]
	for {
		for len(r) > 0 && (r[0] == ' ' || r[0] == ',' || r[0] == '\n' || r[0] == '\t' || r[0] == '\r') {
			r = r[1:]
		}
		if len(r) == 0 {
			err = errorf.E("filters: unexpected eof")
			return
		}
		if r[0] == ']' {
			r = r[1:]
			break
		}
		f := filter.New()
		if r, err = f.Unmarshal(r); err != nil {
			return
		}
		t.F = append(t.F, f)
	}
	rem = r
	return
}
