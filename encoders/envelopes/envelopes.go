// Package envelopes provides the shared `["LABEL", ...]` framing for every
// nostr wire message (spec.md §4.5/§4.6): EVENT, REQ, CLOSE, AUTH, OK,
// EOSE, CLOSED, NOTICE and COUNT. Each concrete envelope type lives in its
// own subpackage and calls back into Marshal/Identify/SkipToTheEnd here so
// every envelope's outer framing stays byte-identical.
package envelopes

import (
	"orly.dev/encoders/text"
	"orly.dev/utils/errorf"
)

// Marshal appends `["label",body0,body1,...]` to dst. Each body function
// receives the buffer so far and appends exactly one array element.
func Marshal(dst []byte, label string, bodies ...func([]byte) []byte) []byte {
	dst = append(dst, '[')
	dst = text.AppendQuote(dst, []byte(label), text.NostrEscape)
	for _, body := range bodies {
		dst = append(dst, ',')
		dst = body(dst)
	}
	dst = append(dst, ']')
	return dst
}

// Identify reads the opening `["LABEL",` of an envelope off the front of b
// and returns the label and the remainder of the array (positioned at the
// start of the next element).
func Identify(b []byte) (label string, rem []byte, err error) {
	r := b
	for len(r) > 0 && r[0] != '[' {
		r = r[1:]
	}
	if len(r) == 0 {
		err = errorf.E("envelopes: no opening bracket")
		return
	}
	r = r[1:]
	var lbl []byte
	if lbl, r, err = text.UnmarshalQuoted(r); err != nil {
		return
	}
	label = string(lbl)
	for len(r) > 0 && (r[0] == ' ' || r[0] == ',') {
		r = r[1:]
	}
	rem = r
	return
}

// SkipToTheEnd advances past the remainder of the current envelope array
// (as opened by Identify, one bracket deep already) and returns what
// follows its closing bracket. Used after an envelope has parsed every
// field it recognizes, discarding any trailing fields it doesn't.
func SkipToTheEnd(b []byte) (rem []byte, err error) {
	depth := 1
	inStr := false
	for i := 0; i < len(b); i++ {
		switch {
		case inStr:
			if b[i] == '\\' {
				i++
			} else if b[i] == '"' {
				inStr = false
			}
		case b[i] == '"':
			inStr = true
		case b[i] == '[' || b[i] == '{':
			depth++
		case b[i] == ']' || b[i] == '}':
			depth--
			if depth == 0 {
				rem = b[i+1:]
				return
			}
		}
	}
	err = errorf.E("envelopes: unterminated envelope")
	return
}
