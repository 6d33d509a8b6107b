// Package noticeenvelope implements the relay's NOTICE envelope (spec.md
// §4.6): `["NOTICE", <message>]`, a free-form human-readable message with
// no protocol-level meaning.
package noticeenvelope

import (
	"io"

	"orly.dev/encoders/envelopes"
	"orly.dev/encoders/text"
	"orly.dev/utils/chk"
)

// L is the envelope label.
const L = "NOTICE"

// T is a parsed NOTICE envelope.
type T struct{ Message []byte }

// New returns an empty T ready for Unmarshal.
func New() *T { return &T{} }

// NewFrom builds a T carrying msg.
func NewFrom(msg []byte) *T { return &T{Message: msg} }

// Label returns the envelope label.
func (en *T) Label() string { return L }

// Marshal appends the minified wire form to dst.
func (en *T) Marshal(dst []byte) []byte {
	return envelopes.Marshal(dst, L, func(b []byte) []byte {
		return text.AppendQuote(b, en.Message, text.NostrEscape)
	})
}

// Write marshals and writes the envelope to w.
func (en *T) Write(w io.Writer) (err error) {
	_, err = w.Write(en.Marshal(nil))
	return
}

// Unmarshal reads a NOTICE envelope body off the front of b.
func (en *T) Unmarshal(b []byte) (rem []byte, err error) {
	if en.Message, rem, err = text.UnmarshalQuoted(b); chk.E(err) {
		return
	}
	if rem, err = envelopes.SkipToTheEnd(rem); chk.E(err) {
		return
	}
	return
}
