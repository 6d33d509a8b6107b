// Package text provides the canonical string-escaping and small JSON
// fragment helpers shared by encoders/event and encoders/filter, so both
// marshal through the exact same quoting rules — required for the
// canonical serialization's byte-for-byte determinism (spec.md §3).
package text

import (
	"orly.dev/encoders/hex"
	"orly.dev/utils/errorf"
)

const hexDigits = "0123456789abcdef"

// NostrEscape appends the canonical nostr JSON string escaping of src to
// dst: backslash and quote are backslash-escaped, newline, carriage return
// and tab become \n, \r and \t, and the other control characters (and only
// those) are \u00XX escaped. No other character is
// ever escaped, so two implementations that both follow this rule produce
// byte-identical output for the same input.
func NostrEscape(dst, src []byte) []byte {
	for _, b := range src {
		switch {
		case b == '"' || b == '\\':
			dst = append(dst, '\\', b)
		case b == '\n':
			dst = append(dst, '\\', 'n')
		case b == '\r':
			dst = append(dst, '\\', 'r')
		case b == '\t':
			dst = append(dst, '\\', 't')
		case b < 0x20:
			dst = append(dst, '\\', 'u', '0', '0', hexDigits[b>>4], hexDigits[b&0xf])
		default:
			dst = append(dst, b)
		}
	}
	return dst
}

// AppendQuote wraps val in double quotes, running it through enc first
// (hex.EncAppend for binary fields, NostrEscape for free text).
func AppendQuote(dst, val []byte, enc func(dst, src []byte) []byte) []byte {
	dst = append(dst, '"')
	dst = enc(dst, val)
	return append(dst, '"')
}

// JSONKey appends `"key":` to dst.
func JSONKey(dst, key []byte) []byte {
	dst = append(dst, '"')
	dst = append(dst, key...)
	dst = append(dst, '"', ':')
	return dst
}

// MarshalHexArray appends a minified JSON array of hex-quoted byte slices.
func MarshalHexArray(dst []byte, vals [][]byte) []byte {
	dst = append(dst, '[')
	for i, v := range vals {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = AppendQuote(dst, v, hex.EncAppend)
	}
	return append(dst, ']')
}

// UnmarshalQuoted reads a double-quoted, escaped string off the front of r,
// unescaping it as it goes.
func UnmarshalQuoted(r []byte) (val, rem []byte, err error) {
	for len(r) > 0 && r[0] != '"' {
		r = r[1:]
	}
	if len(r) == 0 {
		err = errorf.E("text: no opening quote")
		return
	}
	r = r[1:]
	for len(r) > 0 {
		switch r[0] {
		case '"':
			rem = r[1:]
			return
		case '\\':
			if len(r) < 2 {
				err = errorf.E("text: truncated escape")
				return
			}
			switch r[1] {
			case 'n':
				val = append(val, '\n')
			case 't':
				val = append(val, '\t')
			case 'r':
				val = append(val, '\r')
			case '"', '\\', '/':
				val = append(val, r[1])
			case 'u':
				if len(r) < 6 {
					err = errorf.E("text: truncated unicode escape")
					return
				}
				var v int
				for i := 2; i < 6; i++ {
					v <<= 4
					c := r[i]
					switch {
					case c >= '0' && c <= '9':
						v |= int(c - '0')
					case c >= 'a' && c <= 'f':
						v |= int(c-'a') + 10
					case c >= 'A' && c <= 'F':
						v |= int(c-'A') + 10
					}
				}
				val = append(val, []byte(string(rune(v)))...)
				r = r[4:]
			default:
				val = append(val, r[1])
			}
			r = r[2:]
		default:
			val = append(val, r[0])
			r = r[1:]
		}
	}
	err = errorf.E("text: unterminated string")
	return
}

// UnmarshalHex reads a double-quoted hex string and decodes it.
func UnmarshalHex(r []byte) (val, rem []byte, err error) {
	var s []byte
	if s, rem, err = UnmarshalQuoted(r); err != nil {
		return
	}
	val, err = hex.Dec(string(s))
	return
}

// UnmarshalHexArray reads a JSON array of double-quoted hex strings, each
// expected to decode to exactly expectLen bytes.
func UnmarshalHexArray(r []byte, expectLen int) (vals [][]byte, rem []byte, err error) {
	for len(r) > 0 && r[0] != '[' {
		r = r[1:]
	}
	if len(r) == 0 {
		err = errorf.E("text: no opening bracket")
		return
	}
	r = r[1:]
	for {
		for len(r) > 0 && (r[0] == ' ' || r[0] == ',' || r[0] == '\n' || r[0] == '\t' || r[0] == '\r') {
			r = r[1:]
		}
		if len(r) == 0 {
			err = errorf.E("text: unexpected eof in hex array")
			return
		}
		if r[0] == ']' {
			r = r[1:]
			break
		}
		var v []byte
		if v, r, err = UnmarshalHex(r); err != nil {
			return
		}
		if expectLen > 0 && len(v) != expectLen {
			err = errorf.E("text: hex value wrong length, got %d want %d", len(v), expectLen)
			return
		}
		vals = append(vals, v)
	}
	rem = r
	return
}

// UnmarshalStringArray reads a JSON array of double-quoted (non-hex)
// strings.
func UnmarshalStringArray(r []byte) (vals [][]byte, rem []byte, err error) {
	for len(r) > 0 && r[0] != '[' {
		r = r[1:]
	}
	if len(r) == 0 {
		err = errorf.E("text: no opening bracket")
		return
	}
	r = r[1:]
	for {
		for len(r) > 0 && (r[0] == ' ' || r[0] == ',' || r[0] == '\n' || r[0] == '\t' || r[0] == '\r') {
			r = r[1:]
		}
		if len(r) == 0 {
			err = errorf.E("text: unexpected eof in string array")
			return
		}
		if r[0] == ']' {
			r = r[1:]
			break
		}
		var v []byte
		if v, r, err = UnmarshalQuoted(r); err != nil {
			return
		}
		vals = append(vals, v)
	}
	rem = r
	return
}
