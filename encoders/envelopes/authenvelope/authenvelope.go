// Package authenvelope implements the NIP-42 AUTH envelope pair (spec.md
// §4.6): Challenge is relay-to-client (a random string), Response is
// client-to-relay (a signed kind-22242 event).
package authenvelope

import (
	"io"

	"orly.dev/encoders/envelopes"
	"orly.dev/encoders/event"
	"orly.dev/encoders/text"
	"orly.dev/utils/chk"
	"orly.dev/utils/errorf"
)

// L is the envelope label.
const L = "AUTH"

// Challenge is the relay's `["AUTH", <challenge string>]` message.
type Challenge struct{ Challenge []byte }

// NewChallenge returns an empty Challenge ready for Unmarshal.
func NewChallenge() *Challenge { return &Challenge{} }

// NewChallengeWith builds a Challenge carrying the given string.
func NewChallengeWith[V string | []byte](challenge V) *Challenge {
	return &Challenge{Challenge: []byte(challenge)}
}

// Label returns the envelope label.
func (en *Challenge) Label() string { return L }

// Marshal appends the minified wire form to dst.
func (en *Challenge) Marshal(dst []byte) []byte {
	return envelopes.Marshal(dst, L, func(b []byte) []byte {
		return text.AppendQuote(b, en.Challenge, text.NostrEscape)
	})
}

// Write marshals and writes the envelope to w.
func (en *Challenge) Write(w io.Writer) (err error) {
	_, err = w.Write(en.Marshal(nil))
	return
}

// Unmarshal reads a Challenge envelope body off the front of b.
func (en *Challenge) Unmarshal(b []byte) (rem []byte, err error) {
	if en.Challenge, rem, err = text.UnmarshalQuoted(b); chk.E(err) {
		return
	}
	if rem, err = envelopes.SkipToTheEnd(rem); chk.E(err) {
		return
	}
	return
}

// Response is the client's `["AUTH", <event>]` message: a kind-22242 event
// whose tags carry the relay URL and the challenge string.
type Response struct{ Event *event.E }

// NewResponse returns an empty Response ready for Unmarshal.
func NewResponse() *Response { return &Response{Event: event.New()} }

// NewResponseWith wraps an already-built event.
func NewResponseWith(ev *event.E) *Response { return &Response{Event: ev} }

// Label returns the envelope label.
func (en *Response) Label() string { return L }

// Marshal appends the minified wire form to dst.
func (en *Response) Marshal(dst []byte) (b []byte) {
	if en.Event == nil {
		return append(dst, []byte(`["AUTH",null]`)...)
	}
	return envelopes.Marshal(dst, L, en.Event.Marshal)
}

// Write marshals and writes the envelope to w.
func (en *Response) Write(w io.Writer) (err error) {
	if en.Event == nil {
		err = errorf.E("authenvelope: nil event in response")
		return
	}
	_, err = w.Write(en.Marshal(nil))
	return
}

// Unmarshal reads a Response envelope body off the front of b.
func (en *Response) Unmarshal(b []byte) (rem []byte, err error) {
	en.Event = event.New()
	if rem, err = en.Event.Unmarshal(b); chk.E(err) {
		return
	}
	if rem, err = envelopes.SkipToTheEnd(rem); chk.E(err) {
		return
	}
	return
}
