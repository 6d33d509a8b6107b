// Package varint provides the variable-length integer encoding used by the
// event store's binary record format (see encoders/event's MarshalBinary),
// matching the teacher's io.Writer/io.Reader based binary codec rather than
// a length-prefixed fixed-width encoding.
package varint

import (
	"encoding/binary"
	"io"
)

// Encode writes v to w as a standard LEB128/uvarint.
func Encode(w io.Writer, v uint64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, _ = w.Write(buf[:n])
}

// Decode reads a uvarint from r one byte at a time (r need not support
// io.ByteReader on its own; we wrap it).
func Decode(r io.Reader) (v uint64, err error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = &byteReader{r: r}
	}
	return binary.ReadUvarint(br)
}

type byteReader struct{ r io.Reader }

func (b *byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(b.r, buf[:])
	return buf[0], err
}
