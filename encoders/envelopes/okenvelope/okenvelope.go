// Package okenvelope implements the relay's OK envelope (spec.md §4.6):
// `["OK", <event id>, <true|false>, <message>]`, the message carrying a
// normalize.Reason prefix (spec.md §7) when ok is false.
package okenvelope

import (
	"io"

	"orly.dev/encoders/envelopes"
	"orly.dev/encoders/hex"
	"orly.dev/encoders/text"
	"orly.dev/utils/chk"
	"orly.dev/utils/errorf"
)

// L is the envelope label.
const L = "OK"

// T is a parsed OK envelope.
type T struct {
	EventId []byte
	Ok      bool
	Reason  []byte
}

// New returns an empty T ready for Unmarshal.
func New() *T { return &T{} }

// NewFrom builds a T. reason is optional; pass none for a bare accept.
func NewFrom(eventId []byte, ok bool, reason ...[]byte) *T {
	t := &T{EventId: eventId, Ok: ok}
	if len(reason) > 0 {
		t.Reason = reason[0]
	}
	return t
}

// Label returns the envelope label.
func (en *T) Label() string { return L }

// Marshal appends the minified wire form to dst.
func (en *T) Marshal(dst []byte) []byte {
	return envelopes.Marshal(
		dst, L,
		func(b []byte) []byte { return text.AppendQuote(b, en.EventId, hex.EncAppend) },
		func(b []byte) []byte {
			if en.Ok {
				return append(b, 't', 'r', 'u', 'e')
			}
			return append(b, 'f', 'a', 'l', 's', 'e')
		},
		func(b []byte) []byte { return text.AppendQuote(b, en.Reason, text.NostrEscape) },
	)
}

// Write marshals and writes the envelope to w.
func (en *T) Write(w io.Writer) (err error) {
	_, err = w.Write(en.Marshal(nil))
	return
}

// Unmarshal reads an OK envelope body off the front of b.
func (en *T) Unmarshal(b []byte) (rem []byte, err error) {
	r := b
	if en.EventId, r, err = text.UnmarshalHex(r); chk.E(err) {
		return
	}
	for len(r) > 0 && (r[0] == ' ' || r[0] == ',') {
		r = r[1:]
	}
	switch {
	case len(r) >= 4 && string(r[:4]) == "true":
		en.Ok = true
		r = r[4:]
	case len(r) >= 5 && string(r[:5]) == "false":
		en.Ok = false
		r = r[5:]
	default:
		err = errorf.E("okenvelope: expected true/false")
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
