// Package kind is the codec and classification table for the nostr event
// `kind` field (spec.md §3 "Kind classes").
package kind

import "strconv"

// T wraps a kind number.
type T struct{ K uint16 }

// New constructs a T from any integer type.
func New[N int | int32 | int64 | uint | uint16 | uint32 | uint64](k N) *T {
	return &T{K: uint16(k)}
}

// well-known kinds used by the session's kind-specific rules (§4.1, §4.6).
var (
	Metadata           = New(0)
	TextNote           = New(1)
	ContactList        = New(3)
	EncryptedDirectMsg = New(4)
	Deletion           = New(5)
	Reaction           = New(7)
	ClientAuth         = New(22242)
)

// Equal reports whether two kinds are the same number.
func (k *T) Equal(o *T) bool {
	if k == nil || o == nil {
		return k == o
	}
	return k.K == o.K
}

// IsReplaceable reports whether this kind follows the replaceable-event
// store policy: kinds 0, 3, and 10000-19999.
func (k *T) IsReplaceable() bool {
	if k == nil {
		return false
	}
	return k.K == 0 || k.K == 3 || (k.K >= 10000 && k.K <= 19999)
}

// IsEphemeral reports whether this kind is never persisted: 20000-29999.
func (k *T) IsEphemeral() bool {
	if k == nil {
		return false
	}
	return k.K >= 20000 && k.K <= 29999
}

// IsParameterizedReplaceable reports whether this kind is keyed by
// (pubkey, kind, d-tag): 30000-39999.
func (k *T) IsParameterizedReplaceable() bool {
	if k == nil {
		return false
	}
	return k.K >= 30000 && k.K <= 39999
}

// IsRegular reports whether this kind uses the default (retain-every-event)
// store policy.
func (k *T) IsRegular() bool {
	if k == nil {
		return false
	}
	return !k.IsReplaceable() && !k.IsEphemeral() && !k.IsParameterizedReplaceable()
}

// Marshal appends the decimal kind number to dst.
func (k *T) Marshal(dst []byte) []byte {
	if k == nil {
		return append(dst, '0')
	}
	return strconv.AppendUint(dst, uint64(k.K), 10)
}

// Unmarshal reads a decimal integer off the front of b into k.
func (k *T) Unmarshal(b []byte) (rem []byte, err error) {
	i := 0
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}
	if i == 0 {
		return b, &strconvError{b}
	}
	v, err := strconv.ParseUint(string(b[:i]), 10, 16)
	if err != nil {
		return b, err
	}
	k.K = uint16(v)
	return b[i:], nil
}

type strconvError struct{ b []byte }

func (e *strconvError) Error() string { return "kind: no digits in " + string(e.b) }
