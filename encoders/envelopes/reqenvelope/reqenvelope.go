// Package reqenvelope implements the client's REQ envelope (spec.md §4.6):
// `["REQ", <subscription id>, <filter>, <filter>, ...]`.
package reqenvelope

import (
	"io"

	"orly.dev/encoders/envelopes"
	"orly.dev/encoders/filter"
	"orly.dev/encoders/filters"
	"orly.dev/encoders/subscription"
	"orly.dev/utils/chk"
)

// bodyFuncs lazily builds one Marshal body function per filter so the
// shared envelopes.Marshal framing can append them comma-separated without
// an extra wrapping array — a REQ envelope is `["REQ",id,filter,filter,...]`,
// not `["REQ",id,[filter,filter,...]]`.
func bodyFuncs(fs []*filter.F) []func([]byte) []byte {
	out := make([]func([]byte) []byte, len(fs))
	for i, f := range fs {
		f := f
		out[i] = f.Marshal
	}
	return out
}

// L is the envelope label.
const L = "REQ"

// T is a parsed REQ envelope.
type T struct {
	Subscription *subscription.Id
	Filters      *filters.T
}

// New returns an empty T ready for Unmarshal.
func New() *T {
	return &T{Subscription: subscription.New(""), Filters: filters.New()}
}

// NewFrom builds a T from an id and filter collection.
func NewFrom(id *subscription.Id, ff *filters.T) *T {
	return &T{Subscription: id, Filters: ff}
}

// Label returns the envelope label.
func (en *T) Label() string { return L }

// Marshal appends the minified wire form to dst.
func (en *T) Marshal(dst []byte) []byte {
	bodies := append([]func([]byte) []byte{en.Subscription.Marshal}, bodyFuncs(en.Filters.F)...)
	return envelopes.Marshal(dst, L, bodies...)
}

// Write marshals and writes the envelope to w.
func (en *T) Write(w io.Writer) (err error) {
	_, err = w.Write(en.Marshal(nil))
	return
}

// Unmarshal reads a REQ envelope body off the front of b.
func (en *T) Unmarshal(b []byte) (rem []byte, err error) {
	if en.Subscription == nil {
		en.Subscription = subscription.New("")
	}
	if rem, err = en.Subscription.Unmarshal(b); chk.E(err) {
		return
	}
	for len(rem) > 0 && (rem[0] == ' ' || rem[0] == ',') {
		rem = rem[1:]
	}
	en.Filters = filters.New()
	for {
		for len(rem) > 0 && (rem[0] == ' ' || rem[0] == '\n' || rem[0] == '\t' || rem[0] == '\r') {
			rem = rem[1:]
		}
		if len(rem) == 0 {
			break
		}
		if rem[0] == ']' {
			rem = rem[1:]
			break
		}
		f := filter.New()
		if rem, err = f.Unmarshal(rem); chk.E(err) {
			return
		}
		en.Filters.F = append(en.Filters.F, f)
		for len(rem) > 0 && (rem[0] == ' ' || rem[0] == ',') {
			rem = rem[1:]
		}
	}
	return
}
