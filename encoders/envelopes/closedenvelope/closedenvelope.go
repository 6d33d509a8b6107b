// Package closedenvelope implements the relay's CLOSED envelope (spec.md
// §4.6): `["CLOSED", <subscription id>, <message>]`, sent when the relay
// unilaterally ends a subscription (rejected filter, auth-required, etc).
package closedenvelope

import (
	"io"

	"orly.dev/encoders/envelopes"
	"orly.dev/encoders/subscription"
	"orly.dev/encoders/text"
	"orly.dev/utils/chk"
)

// L is the envelope label.
const L = "CLOSED"

// T is a parsed CLOSED envelope.
type T struct {
	Subscription *subscription.Id
	Reason       []byte
}

// New returns an empty T ready for Unmarshal.
func New() *T { return &T{Subscription: subscription.New("")} }

// NewFrom builds a T. reason may be nil for a bare close.
func NewFrom(id *subscription.Id, reason []byte) *T {
	return &T{Subscription: id, Reason: reason}
}

// Label returns the envelope label.
func (en *T) Label() string { return L }

// Marshal appends the minified wire form to dst.
func (en *T) Marshal(dst []byte) []byte {
	return envelopes.Marshal(
		dst, L, en.Subscription.Marshal,
		func(b []byte) []byte { return text.AppendQuote(b, en.Reason, text.NostrEscape) },
	)
}

// Write marshals and writes the envelope to w.
func (en *T) Write(w io.Writer) (err error) {
	_, err = w.Write(en.Marshal(nil))
	return
}

// Unmarshal reads a CLOSED envelope body off the front of b.
func (en *T) Unmarshal(b []byte) (rem []byte, err error) {
	if en.Subscription == nil {
		en.Subscription = subscription.New("")
	}
	r := b
	if r, err = en.Subscription.Unmarshal(r); chk.E(err) {
		return
	}
	for len(r) > 0 && (r[0] == ' ' || r[0] == ',') {
		r = r[1:]
	}
	if len(r) > 0 && r[0] == '"' {
		if en.Reason, r, err = text.UnmarshalQuoted(r); chk.E(err) {
			return
		}
	}
	if rem, err = envelopes.SkipToTheEnd(r); chk.E(err) {
		return
	}
	return
}
