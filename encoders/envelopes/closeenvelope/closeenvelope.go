// Package closeenvelope implements the client's CLOSE envelope (spec.md
// §4.6): `["CLOSE", <subscription id>]`.
package closeenvelope

import (
	"io"

	"orly.dev/encoders/envelopes"
	"orly.dev/encoders/subscription"
	"orly.dev/utils/chk"
)

// L is the envelope label.
const L = "CLOSE"

// T is a parsed CLOSE envelope.
type T struct{ ID *subscription.Id }

// New returns an empty T ready for Unmarshal.
func New() *T { return &T{ID: subscription.New("")} }

// NewFrom builds a T for the given subscription id.
func NewFrom(id *subscription.Id) *T { return &T{ID: id} }

// Label returns the envelope label.
func (en *T) Label() string { return L }

// Marshal appends the minified wire form to dst.
func (en *T) Marshal(dst []byte) []byte {
	return envelopes.Marshal(dst, L, en.ID.Marshal)
}

// Write marshals and writes the envelope to w.
func (en *T) Write(w io.Writer) (err error) {
	_, err = w.Write(en.Marshal(nil))
	return
}

// Unmarshal reads a CLOSE envelope body off the front of b.
func (en *T) Unmarshal(b []byte) (rem []byte, err error) {
	if en.ID == nil {
		en.ID = subscription.New("")
	}
	if rem, err = en.ID.Unmarshal(b); chk.E(err) {
		return
	}
	if rem, err = envelopes.SkipToTheEnd(rem); chk.E(err) {
		return
	}
	return
}
