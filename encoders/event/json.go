package event

import (
	"orly.dev/encoders/hex"
	"orly.dev/encoders/kind"
	"orly.dev/encoders/tags"
	"orly.dev/encoders/text"
	"orly.dev/encoders/timestamp"
	"orly.dev/utils/errorf"
)

var (
	idField        = []byte("id")
	pubkeyField    = []byte("pubkey")
	createdAtField = []byte("created_at")
	kindField      = []byte("kind")
	tagsField      = []byte("tags")
	contentField   = []byte("content")
	sigField       = []byte("sig")
)

// Marshal appends the minified wire JSON object for ev to dst. Field order
// matches the teacher's event/json.go: id, pubkey, created_at, kind, tags,
// content, sig.
func (ev *E) Marshal(dst []byte) []byte {
	dst = append(dst, '{')
	dst = text.JSONKey(dst, idField)
	dst = text.AppendQuote(dst, ev.Id, hex.EncAppend)
	dst = append(dst, ',')
	dst = text.JSONKey(dst, pubkeyField)
	dst = text.AppendQuote(dst, ev.Pubkey, hex.EncAppend)
	dst = append(dst, ',')
	dst = text.JSONKey(dst, createdAtField)
	dst = ev.CreatedAt.Marshal(dst)
	dst = append(dst, ',')
	dst = text.JSONKey(dst, kindField)
	dst = ev.Kind.Marshal(dst)
	dst = append(dst, ',')
	dst = text.JSONKey(dst, tagsField)
	dst = ev.Tags.Marshal(dst)
	dst = append(dst, ',')
	dst = text.JSONKey(dst, contentField)
	dst = text.AppendQuote(dst, ev.Content, text.NostrEscape)
	dst = append(dst, ',')
	dst = text.JSONKey(dst, sigField)
	dst = text.AppendQuote(dst, ev.Sig, hex.EncAppend)
	dst = append(dst, '}')
	return dst
}

// Unmarshal reads a wire JSON event object off the front of b into ev,
// using a goto-driven field dispatch (the teacher's event/json.go style)
// rather than a generic key/value map walk: the wire format is fixed-shape,
// so fields are matched directly by name as they're scanned.
// Fields may appear in any order; unrecognized fields are skipped.
func (ev *E) Unmarshal(b []byte) (rem []byte, err error) {
	r := b
	for len(r) > 0 && r[0] != '{' {
		r = r[1:]
	}
	if len(r) == 0 {
		err = errorf.E("event: no opening brace")
		return
	}
	r = r[1:]
	ev.CreatedAt = &timestamp.T{}
	ev.Kind = &kind.T{}
	ev.Tags = tags.New()
next:
	for len(r) > 0 && (r[0] == ' ' || r[0] == ',' || r[0] == '\n' || r[0] == '\t' || r[0] == '\r') {
		r = r[1:]
	}
	if len(r) == 0 {
		err = errorf.E("event: unexpected eof")
		return
	}
	if r[0] == '}' {
		rem = r[1:]
		return
	}
	var key []byte
	if key, r, err = text.UnmarshalQuoted(r); err != nil {
		return
	}
	for len(r) > 0 && (r[0] == ' ' || r[0] == ':') {
		r = r[1:]
	}
	switch string(key) {
	case "id":
		if ev.Id, r, err = text.UnmarshalHex(r); err != nil {
			return
		}
	case "pubkey":
		if ev.Pubkey, r, err = text.UnmarshalHex(r); err != nil {
			return
		}
	case "created_at":
		if r, err = ev.CreatedAt.Unmarshal(r); err != nil {
			return
		}
	case "kind":
		if r, err = ev.Kind.Unmarshal(r); err != nil {
			return
		}
	case "tags":
		if r, err = ev.Tags.Unmarshal(r); err != nil {
			return
		}
	case "content":
		if ev.Content, r, err = text.UnmarshalQuoted(r); err != nil {
			return
		}
	case "sig":
		if ev.Sig, r, err = text.UnmarshalHex(r); err != nil {
			return
		}
	default:
		if r, err = skipValue(r); err != nil {
			return
		}
	}
	goto next
}

// skipValue advances past one JSON value of unknown shape, used to ignore
// fields the wire codec does not recognize.
func skipValue(r []byte) (rem []byte, err error) {
	for len(r) > 0 && (r[0] == ' ' || r[0] == '\n' || r[0] == '\t' || r[0] == '\r') {
		r = r[1:]
	}
	if len(r) == 0 {
		err = errorf.E("event: unexpected eof skipping value")
		return
	}
	switch r[0] {
	case '"':
		_, rem, err = text.UnmarshalQuoted(r)
		return
	case '{':
		depth := 0
		inStr := false
		for i := 0; i < len(r); i++ {
			switch {
			case inStr:
				if r[i] == '\\' {
					i++
				} else if r[i] == '"' {
					inStr = false
				}
			case r[i] == '"':
				inStr = true
			case r[i] == '{':
				depth++
			case r[i] == '}':
				depth--
				if depth == 0 {
					rem = r[i+1:]
					return
				}
			}
		}
		err = errorf.E("event: unterminated object")
		return
	case '[':
		depth := 0
		inStr := false
		for i := 0; i < len(r); i++ {
			switch {
			case inStr:
				if r[i] == '\\' {
					i++
				} else if r[i] == '"' {
					inStr = false
				}
			case r[i] == '"':
				inStr = true
			case r[i] == '[':
				depth++
			case r[i] == ']':
				depth--
				if depth == 0 {
					rem = r[i+1:]
					return
				}
			}
		}
		err = errorf.E("event: unterminated array")
		return
	default:
		i := 0
		for i < len(r) && r[i] != ',' && r[i] != '}' && r[i] != ']' {
			i++
		}
		rem = r[i:]
		return
	}
}
