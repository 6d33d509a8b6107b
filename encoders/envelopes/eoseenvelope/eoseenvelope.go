// Package eoseenvelope implements the relay's EOSE envelope (spec.md
// §4.6): `["EOSE", <subscription id>]`, sent once a REQ's stored-event
// backlog has been fully replayed.
package eoseenvelope

import (
	"io"

	"orly.dev/encoders/envelopes"
	"orly.dev/encoders/subscription"
	"orly.dev/utils/chk"
)

// L is the envelope label.
const L = "EOSE"

// T is a parsed EOSE envelope.
type T struct{ Subscription *subscription.Id }

// New returns an empty T ready for Unmarshal.
func New() *T { return &T{Subscription: subscription.New("")} }

// NewFrom builds a T for the given subscription id.
func NewFrom(id *subscription.Id) *T { return &T{Subscription: id} }

// Label returns the envelope label.
func (en *T) Label() string { return L }

// Marshal appends the minified wire form to dst.
func (en *T) Marshal(dst []byte) []byte {
	return envelopes.Marshal(dst, L, en.Subscription.Marshal)
}

// Write marshals and writes the envelope to w.
func (en *T) Write(w io.Writer) (err error) {
	_, err = w.Write(en.Marshal(nil))
	return
}

// Unmarshal reads an EOSE envelope body off the front of b.
func (en *T) Unmarshal(b []byte) (rem []byte, err error) {
	if en.Subscription == nil {
		en.Subscription = subscription.New("")
	}
	if rem, err = en.Subscription.Unmarshal(b); chk.E(err) {
		return
	}
	if rem, err = envelopes.SkipToTheEnd(rem); chk.E(err) {
		return
	}
	return
}
