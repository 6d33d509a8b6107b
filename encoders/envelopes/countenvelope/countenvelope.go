// Package countenvelope implements the NIP-45 COUNT envelope pair (spec.md
// §4.6 Supplemented features): Request is client-to-relay (a subscription
// id plus filters, same shape as REQ), Response is relay-to-client (a
// subscription id plus a count).
package countenvelope

import (
	"io"
	"strconv"

	"orly.dev/encoders/envelopes"
	"orly.dev/encoders/filter"
	"orly.dev/encoders/filters"
	"orly.dev/encoders/subscription"
	"orly.dev/utils/chk"
	"orly.dev/utils/errorf"
)

// L is the envelope label.
const L = "COUNT"

// Request is the client's `["COUNT", <subscription id>, <filter>, ...]`
// message.
type Request struct {
	Subscription *subscription.Id
	Filters      *filters.T
}

// NewRequest returns an empty Request ready for Unmarshal.
func NewRequest() *Request {
	return &Request{Subscription: subscription.New(""), Filters: filters.New()}
}

// Label returns the envelope label.
func (en *Request) Label() string { return L }

func bodyFuncs(fs []*filter.F) []func([]byte) []byte {
	out := make([]func([]byte) []byte, len(fs))
	for i, f := range fs {
		f := f
		out[i] = f.Marshal
	}
	return out
}

// Marshal appends the minified wire form to dst.
func (en *Request) Marshal(dst []byte) []byte {
	bodies := append([]func([]byte) []byte{en.Subscription.Marshal}, bodyFuncs(en.Filters.F)...)
	return envelopes.Marshal(dst, L, bodies...)
}

// Write marshals and writes the envelope to w.
func (en *Request) Write(w io.Writer) (err error) {
	_, err = w.Write(en.Marshal(nil))
	return
}

// Unmarshal reads a Request envelope body off the front of b.
func (en *Request) Unmarshal(b []byte) (rem []byte, err error) {
	if en.Subscription == nil {
		en.Subscription = subscription.New("")
	}
	rem = b
	if rem, err = en.Subscription.Unmarshal(rem); chk.E(err) {
		return
	}
	en.Filters = filters.New()
	for {
		for len(rem) > 0 && (rem[0] == ' ' || rem[0] == ',' || rem[0] == '\n' || rem[0] == '\t' || rem[0] == '\r') {
			rem = rem[1:]
		}
		if len(rem) == 0 || rem[0] == ']' {
			if len(rem) > 0 {
				rem = rem[1:]
			}
			break
		}
		f := filter.New()
		if rem, err = f.Unmarshal(rem); chk.E(err) {
			return
		}
		en.Filters.F = append(en.Filters.F, f)
	}
	return
}

// Response is the relay's `["COUNT", <subscription id>, {"count": N}]`
// message.
type Response struct {
	Subscription *subscription.Id
	Count        int64
}

// NewResponse returns an empty Response ready for Unmarshal.
func NewResponse() *Response { return &Response{Subscription: subscription.New("")} }

// NewResponseWith builds a Response.
func NewResponseWith(id *subscription.Id, count int64) *Response {
	return &Response{Subscription: id, Count: count}
}

// Label returns the envelope label.
func (en *Response) Label() string { return L }

// Marshal appends the minified wire form to dst.
func (en *Response) Marshal(dst []byte) []byte {
	return envelopes.Marshal(
		dst, L, en.Subscription.Marshal,
		func(b []byte) []byte {
			b = append(b, '{', '"', 'c', 'o', 'u', 'n', 't', '"', ':')
			b = strconv.AppendInt(b, en.Count, 10)
			return append(b, '}')
		},
	)
}

// Write marshals and writes the envelope to w.
func (en *Response) Write(w io.Writer) (err error) {
	_, err = w.Write(en.Marshal(nil))
	return
}

// Unmarshal reads a Response envelope body off the front of b.
func (en *Response) Unmarshal(b []byte) (rem []byte, err error) {
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
	for len(r) > 0 && r[0] != '{' {
		r = r[1:]
	}
	if len(r) == 0 {
		err = errorf.E("countenvelope: no count object")
		return
	}
	r = r[1:]
	for len(r) > 0 && r[0] != ':' {
		r = r[1:]
	}
	if len(r) == 0 {
		err = errorf.E("countenvelope: malformed count object")
		return
	}
	r = r[1:]
	i := 0
	for i < len(r) && (r[i] == '-' || (r[i] >= '0' && r[i] <= '9')) {
		i++
	}
	if i == 0 {
		err = errorf.E("countenvelope: no digits in count")
		return
	}
	if en.Count, err = strconv.ParseInt(string(r[:i]), 10, 64); chk.E(err) {
		return
	}
	r = r[i:]
	for len(r) > 0 && r[0] != '}' {
		r = r[1:]
	}
	if len(r) > 0 {
		r = r[1:]
	}
	if rem, err = envelopes.SkipToTheEnd(r); chk.E(err) {
		return
	}
	return
}
