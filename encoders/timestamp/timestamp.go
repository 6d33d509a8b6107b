// Package timestamp is the codec for the nostr `created_at` field: seconds
// since the Unix epoch, carried as a plain JSON integer on the wire and as
// a uvarint in the binary store record.
package timestamp

import (
	"strconv"
	"time"

	"orly.dev/utils/errorf"
)

// T wraps a unix-seconds timestamp.
type T struct {
	V int64
}

// New constructs a T from any integer type.
func New[N int | int32 | int64 | uint | uint32 | uint64](v N) *T {
	return &T{V: int64(v)}
}

// FromUnix is an alias of New for int64 unix seconds, matching call sites
// that read more naturally with the explicit name.
func FromUnix(v int64) *T { return &T{V: v} }

// Now returns the current time as a T.
func Now() *T { return &T{V: time.Now().Unix()} }

// I64 returns the timestamp as int64 seconds.
func (t *T) I64() int64 {
	if t == nil {
		return 0
	}
	return t.V
}

// U64 returns the timestamp as uint64 seconds (negative values clamp to 0).
func (t *T) U64() uint64 {
	if t == nil || t.V < 0 {
		return 0
	}
	return uint64(t.V)
}

// Int is an alias of I64 used where the teacher's call sites read more
// naturally as "Int()".
func (t *T) Int() int64 { return t.I64() }

// Time returns the standard library time.Time for this timestamp.
func (t *T) Time() time.Time { return time.Unix(t.I64(), 0).UTC() }

// Marshal appends the decimal rendering of the timestamp to dst.
func (t *T) Marshal(dst []byte) []byte {
	if t == nil {
		return append(dst, '0')
	}
	return strconv.AppendInt(dst, t.V, 10)
}

// Unmarshal reads a decimal integer off the front of b into t.
func (t *T) Unmarshal(b []byte) (rem []byte, err error) {
	i := 0
	for i < len(b) && (b[i] == '-' || (b[i] >= '0' && b[i] <= '9')) {
		i++
	}
	if i == 0 {
		err = errorf.E("timestamp: no digits in %q", b)
		return
	}
	var v int64
	if v, err = strconv.ParseInt(string(b[:i]), 10, 64); err != nil {
		return
	}
	t.V = v
	rem = b[i:]
	return
}
