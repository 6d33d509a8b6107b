// Package hex wraps github.com/templexxx/xhex for the lower-case hex
// encoding used for ids, pubkeys and signatures on the wire, matching the
// teacher's hex package surface (Enc/Dec/EncAppend/DecAppend) but backed by
// xhex's SIMD-accelerated implementation instead of encoding/hex.
package hex

import (
	"github.com/templexxx/xhex"
)

// Enc returns the lower-case hex encoding of b.
func Enc(b []byte) string {
	dst := make([]byte, xhex.EncodedLen(len(b)))
	xhex.Encode(dst, b)
	return string(dst)
}

// EncAppend appends the hex encoding of src to dst and returns the result.
func EncAppend(dst, src []byte) []byte {
	n := len(dst)
	out := make([]byte, n+xhex.EncodedLen(len(src)))
	copy(out, dst)
	xhex.Encode(out[n:], src)
	return out
}

// Dec decodes a hex string into bytes.
func Dec(s string) ([]byte, error) {
	dst := make([]byte, xhex.DecodedLen(len(s)))
	if err := xhex.Decode(dst, []byte(s)); err != nil {
		return nil, err
	}
	return dst, nil
}

// DecAppend decodes src (hex) and appends the result to dst.
func DecAppend(dst, src []byte) ([]byte, error) {
	n := len(dst)
	out := make([]byte, n+xhex.DecodedLen(len(src)))
	copy(out, dst)
	if err := xhex.Decode(out[n:], src); err != nil {
		return nil, err
	}
	return out, nil
}
