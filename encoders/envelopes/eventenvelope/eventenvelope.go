// Package eventenvelope implements the two EVENT envelope variants (spec.md
// §4.6): Submission is client-to-relay (the raw event only), Result is
// relay-to-client (subscription id plus event).
package eventenvelope

import (
	"io"

	"orly.dev/encoders/envelopes"
	"orly.dev/encoders/event"
	"orly.dev/encoders/subscription"
	"orly.dev/utils/chk"
	"orly.dev/utils/errorf"
)

// L is the envelope label.
const L = "EVENT"

// Submission is the client's `["EVENT", <event>]` message.
type Submission struct {
	*event.E
}

// NewSubmission returns an empty Submission ready for Unmarshal.
func NewSubmission() *Submission {
	return &Submission{E: event.New()}
}

// NewSubmissionWith wraps an already-built event.
func NewSubmissionWith(ev *event.E) *Submission { return &Submission{E: ev} }

// Label returns the envelope label.
func (en *Submission) Label() string { return L }

// Marshal appends the minified wire form to dst.
func (en *Submission) Marshal(dst []byte) []byte {
	return envelopes.Marshal(dst, L, en.E.Marshal)
}

// Write marshals and writes the envelope to w.
func (en *Submission) Write(w io.Writer) (err error) {
	_, err = w.Write(en.Marshal(nil))
	return
}

// Unmarshal reads a Submission envelope body (the part after `["EVENT",`)
// off the front of b.
func (en *Submission) Unmarshal(b []byte) (rem []byte, err error) {
	if en.E == nil {
		en.E = event.New()
	}
	if rem, err = en.E.Unmarshal(b); chk.E(err) {
		return
	}
	if rem, err = envelopes.SkipToTheEnd(rem); chk.E(err) {
		return
	}
	return
}

// GetIDBytes returns the event id as recomputed from the event's own
// canonical fields, for the session's id-consistency check.
func (en *Submission) GetIDBytes() []byte { return en.E.DeriveId() }

// Result is the relay's `["EVENT", <subscription id>, <event>]` message.
type Result struct {
	Subscription *subscription.Id
	Event        *event.E
}

// NewResult returns an empty Result ready for Unmarshal.
func NewResult() *Result { return &Result{Subscription: subscription.New("")} }

// NewResultWith builds a Result for subID carrying ev.
func NewResultWith(subID string, ev *event.E) (*Result, error) {
	if ev == nil {
		return nil, errorf.E("eventenvelope: nil event")
	}
	return &Result{Subscription: subscription.New(subID), Event: ev}, nil
}

// Label returns the envelope label.
func (en *Result) Label() string { return L }

// Marshal appends the minified wire form to dst.
func (en *Result) Marshal(dst []byte) []byte {
	return envelopes.Marshal(dst, L, en.Subscription.Marshal, en.Event.Marshal)
}

// Write marshals and writes the envelope to w.
func (en *Result) Write(w io.Writer) (err error) {
	_, err = w.Write(en.Marshal(nil))
	return
}

// Unmarshal reads a Result envelope body off the front of b.
func (en *Result) Unmarshal(b []byte) (rem []byte, err error) {
	if en.Subscription == nil {
		en.Subscription = subscription.New("")
	}
	if rem, err = en.Subscription.Unmarshal(b); chk.E(err) {
		return
	}
	for len(rem) > 0 && (rem[0] == ' ' || rem[0] == ',') {
		rem = rem[1:]
	}
	en.Event = event.New()
	if rem, err = en.Event.Unmarshal(rem); chk.E(err) {
		return
	}
	if rem, err = envelopes.SkipToTheEnd(rem); chk.E(err) {
		return
	}
	return
}
