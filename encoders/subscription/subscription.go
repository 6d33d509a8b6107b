// Package subscription is the codec for REQ/CLOSE/EVENT/EOSE/CLOSED
// subscription identifiers (spec.md §4.6): an opaque client-chosen string,
// at most MaxLen bytes.
package subscription

import (
	"orly.dev/encoders/text"
	"orly.dev/utils/errorf"
)

// MaxLen is the maximum subscription id length (an Open Question decision:
// 64 bytes, generous enough for UUIDs and short human labels without
// letting a client exhaust registry memory with huge ids).
const MaxLen = 64

// Id is a subscription identifier.
type Id struct{ T string }

// New wraps s as a subscription Id without validation (used when the value
// is already known-good, e.g. generated internally).
func New(s string) *Id { return &Id{T: s} }

// NewFromBytes wraps raw bytes as a subscription Id.
func NewFromBytes(b []byte) *Id { return &Id{T: string(b)} }

// String returns the subscription id text.
func (id *Id) String() string {
	if id == nil {
		return ""
	}
	return id.T
}

// Validate reports an error if id is empty or exceeds MaxLen.
func (id *Id) Validate() error {
	if id == nil || id.T == "" {
		return errorf.E("subscription: empty id")
	}
	if len(id.T) > MaxLen {
		return errorf.E("subscription: id exceeds %d bytes", MaxLen)
	}
	return nil
}

// Marshal appends the quoted subscription id to dst.
func (id *Id) Marshal(dst []byte) []byte {
	return text.AppendQuote(dst, []byte(id.String()), text.NostrEscape)
}

// Unmarshal reads a quoted subscription id off the front of b.
func (id *Id) Unmarshal(b []byte) (rem []byte, err error) {
	var s []byte
	if s, rem, err = text.UnmarshalQuoted(b); err != nil {
		return
	}
	id.T = string(s)
	return
}
