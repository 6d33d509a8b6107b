// Package event is the codec for nostr events: the wire form (with id and
// signature), the canonical form used to derive the id, a binary form for
// the store's raw_frame cache, and the structural/cryptographic validation
// primitives named in spec.md §4.1.
package event

import (
	"bytes"
	"encoding/json"
	"io"

	"lukechampine.com/frand"

	"orly.dev/crypto"
	"orly.dev/encoders/hex"
	"orly.dev/encoders/kind"
	"orly.dev/encoders/tag"
	"orly.dev/encoders/tags"
	"orly.dev/encoders/text"
	"orly.dev/encoders/timestamp"
	"orly.dev/encoders/varint"
	"orly.dev/utils/chk"
	"orly.dev/utils/errorf"
)

// Size limits from spec.md §3.
const (
	MaxSize       = 64 * 1024
	MaxTags       = 2000
	MaxTagElement = 1024
	MaxContent    = 64 * 1024
	// FutureSlack is how far into the future created_at may be.
	FutureSlack = 600
	// Year2000 bounds created_at from below.
	Year2000 = 946684800
)

// E is the primary nostr event datatype. All variable-length fields are
// kept as raw bytes (not hex strings) to avoid hex round-tripping on every
// access, matching the teacher's binary-field convention.
type E struct {
	Id        []byte
	Pubkey    []byte
	CreatedAt *timestamp.T
	Kind      *kind.T
	Tags      *tags.T
	Content   []byte
	Sig       []byte
}

// New returns an empty event.
func New() *E { return &E{} }

// S is a slice of events that sorts newest-first, ties broken by smallest
// id (spec.md §4.3 query ordering).
type S []*E

func (s S) Len() int { return len(s) }
func (s S) Less(i, j int) bool {
	if s[i].CreatedAt.I64() != s[j].CreatedAt.I64() {
		return s[i].CreatedAt.I64() > s[j].CreatedAt.I64()
	}
	return bytes.Compare(s[i].Id, s[j].Id) < 0
}
func (s S) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

// C is a channel of events.
type C chan *E

// IdString, PubkeyString, SigString render the binary fields as lower-case
// hex, for logging and any JSON escape hatch that wants plain strings.
func (ev *E) IdString() string     { return hex.Enc(ev.Id) }
func (ev *E) PubkeyString() string { return hex.Enc(ev.Pubkey) }
func (ev *E) SigString() string    { return hex.Enc(ev.Sig) }

// Canonical renders the `[0, pubkey, created_at, kind, tags, content]`
// array used to derive the event id (spec.md §3). Both parties must agree
// byte-for-byte, so this shares NostrEscape/AppendQuote with the wire
// Marshal path rather than maintaining a second escaping routine.
func (ev *E) Canonical(dst []byte) []byte {
	dst = append(dst, '[', '0', ',')
	dst = text.AppendQuote(dst, ev.Pubkey, hex.EncAppend)
	dst = append(dst, ',')
	dst = ev.CreatedAt.Marshal(dst)
	dst = append(dst, ',')
	dst = ev.Kind.Marshal(dst)
	dst = append(dst, ',')
	dst = ev.Tags.Marshal(dst)
	dst = append(dst, ',')
	dst = text.AppendQuote(dst, ev.Content, text.NostrEscape)
	dst = append(dst, ']')
	return dst
}

// DeriveId computes the canonical id: SHA-256 of the canonical form.
func (ev *E) DeriveId() []byte {
	return crypto.Sha256(ev.Canonical(nil))
}

// VerifyId reports whether ev.Id matches its canonical derivation.
func (ev *E) VerifyId() bool { return bytes.Equal(ev.Id, ev.DeriveId()) }

// Verify checks the schnorr signature over the event id using the event's
// pubkey. Per spec.md §4.1, id derivation and signature verification are
// both mandatory and this is called only after VerifyId has already
// passed, so the cheap check short-circuits first.
func (ev *E) Verify() (ok bool, err error) {
	return crypto.VerifySchnorr(ev.Sig, ev.Id, ev.Pubkey)
}

// Sign derives the id and signs it with sec (32-byte secret key), setting
// both Id and Sig. Used by tests and the relay's own AUTH challenge
// issuance path never needs this (the client signs, not the relay).
func (ev *E) Sign(sec []byte) (err error) {
	ev.Id = ev.DeriveId()
	if ev.Sig, err = crypto.SignSchnorr(sec, ev.Id); chk.E(err) {
		return
	}
	return
}

// Serialize renders the wire JSON form, minified.
func (ev *E) Serialize() []byte { return ev.Marshal(nil) }

// ValidationErrorKind distinguishes the structural_validate failure
// categories named in spec.md §4.1 / §7.
type ValidationErrorKind int

const (
	ErrNone ValidationErrorKind = iota
	ErrTooLarge
	ErrTooManyTags
	ErrTagTooLong
	ErrContentTooLong
	ErrBadTimestamp
	ErrKindRule
)

// ValidationError reports which structural rule an event violated.
type ValidationError struct {
	Kind ValidationErrorKind
	Msg  string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(k ValidationErrorKind, format string, args ...any) error {
	return &ValidationError{Kind: k, Msg: errorf.E(format, args...).Error()}
}

// StructuralValidate checks the size/count/length/time-window limits and
// kind-specific rules from spec.md §3–§4.1. It does not touch cryptography
// or the store.
func (ev *E) StructuralValidate(now int64) error {
	if len(ev.Serialize()) > MaxSize {
		return invalid(ErrTooLarge, "event exceeds max size %d", MaxSize)
	}
	if ev.Tags.Len() > MaxTags {
		return invalid(ErrTooManyTags, "event has more than %d tags", MaxTags)
	}
	for _, t := range ev.Tags.ToSliceOfTags() {
		for _, f := range t.ToSliceOfBytes() {
			if len(f) > MaxTagElement {
				return invalid(ErrTagTooLong, "tag element exceeds %d bytes", MaxTagElement)
			}
		}
	}
	if len(ev.Content) > MaxContent {
		return invalid(ErrContentTooLong, "content exceeds %d bytes", MaxContent)
	}
	ca := ev.CreatedAt.I64()
	if ca < Year2000 || ca > now+FutureSlack {
		return invalid(ErrBadTimestamp, "created_at %d out of allowed window", ca)
	}
	switch {
	case ev.Kind.Equal(kind.Metadata):
		var js map[string]any
		if err := json.Unmarshal(ev.Content, &js); err != nil {
			return invalid(ErrKindRule, "kind 0 content must be a JSON object")
		}
	case ev.Kind.Equal(kind.EncryptedDirectMsg):
		if ev.Tags.Count("p") != 1 {
			return invalid(ErrKindRule, "kind 4 requires exactly one p tag")
		}
	case ev.Kind.Equal(kind.Deletion):
		if ev.Tags.Count("e") < 1 {
			return invalid(ErrKindRule, "kind 5 requires at least one e tag")
		}
	case ev.Kind.Equal(kind.Reaction):
		if ev.Tags.Count("e") < 1 {
			return invalid(ErrKindRule, "kind 7 requires at least one e tag")
		}
	case ev.Kind.IsParameterizedReplaceable():
		if ev.Tags.Count("d") < 1 {
			return invalid(ErrKindRule, "parameterized replaceable kinds require a d tag")
		}
	}
	return nil
}

// ReplaceableKey returns the (pubkey, kind) uniqueness key for a
// replaceable event, or (pubkey, kind, d) for a parameterized replaceable
// event. ok is false for regular/ephemeral kinds.
func (ev *E) ReplaceableKey() (pubkey []byte, k uint16, d string, ok bool) {
	switch {
	case ev.Kind.IsReplaceable():
		return ev.Pubkey, ev.Kind.K, "", true
	case ev.Kind.IsParameterizedReplaceable():
		dt := ev.Tags.GetFirst("d")
		if dt == nil {
			return nil, 0, "", false
		}
		return ev.Pubkey, ev.Kind.K, string(dt.Value()), true
	default:
		return nil, 0, "", false
	}
}

// MarshalBinary writes the store's raw binary record:
//
//	[ 32 bytes Id ][ 32 bytes Pubkey ][ varint CreatedAt ][ 2 bytes Kind ]
//	[ varint tag count ] { [ varint field count ] { [ varint len ][ bytes ] } }
//	[ varint content len ][ content ][ 64 bytes Sig ]
func (ev *E) MarshalBinary(w io.Writer) {
	_, _ = w.Write(ev.Id)
	_, _ = w.Write(ev.Pubkey)
	varint.Encode(w, ev.CreatedAt.U64())
	var kb [2]byte
	kb[0] = byte(ev.Kind.K >> 8)
	kb[1] = byte(ev.Kind.K)
	_, _ = w.Write(kb[:])
	varint.Encode(w, uint64(ev.Tags.Len()))
	for _, t := range ev.Tags.ToSliceOfTags() {
		varint.Encode(w, uint64(t.Len()))
		for _, f := range t.ToSliceOfBytes() {
			varint.Encode(w, uint64(len(f)))
			_, _ = w.Write(f)
		}
	}
	varint.Encode(w, uint64(len(ev.Content)))
	_, _ = w.Write(ev.Content)
	_, _ = w.Write(ev.Sig)
}

// UnmarshalBinary reads a record written by MarshalBinary.
func (ev *E) UnmarshalBinary(r io.Reader) (err error) {
	ev.Id = make([]byte, 32)
	if _, err = io.ReadFull(r, ev.Id); chk.E(err) {
		return
	}
	ev.Pubkey = make([]byte, 32)
	if _, err = io.ReadFull(r, ev.Pubkey); chk.E(err) {
		return
	}
	var ca uint64
	if ca, err = varint.Decode(r); chk.E(err) {
		return
	}
	ev.CreatedAt = timestamp.New(ca)
	var kb [2]byte
	if _, err = io.ReadFull(r, kb[:]); chk.E(err) {
		return
	}
	ev.Kind = kind.New(uint16(kb[0])<<8 | uint16(kb[1]))
	var nTags uint64
	if nTags, err = varint.Decode(r); chk.E(err) {
		return
	}
	ev.Tags = tags.NewWithCap(int(nTags))
	for i := uint64(0); i < nTags; i++ {
		var nField uint64
		if nField, err = varint.Decode(r); chk.E(err) {
			return
		}
		t := tag.NewWithCap(nField)
		for j := uint64(0); j < nField; j++ {
			var flen uint64
			if flen, err = varint.Decode(r); chk.E(err) {
				return
			}
			field := make([]byte, flen)
			if _, err = io.ReadFull(r, field); chk.E(err) {
				return
			}
			t = t.Append(field)
		}
		ev.Tags.AppendTags(t)
	}
	var clen uint64
	if clen, err = varint.Decode(r); chk.E(err) {
		return
	}
	ev.Content = make([]byte, clen)
	if _, err = io.ReadFull(r, ev.Content); chk.E(err) {
		return
	}
	ev.Sig = make([]byte, 64)
	if _, err = io.ReadFull(r, ev.Sig); chk.E(err) {
		return
	}
	return
}

// GenerateRandomTextNoteEvent builds and signs a random kind-1 event for
// tests and benchmarks.
func GenerateRandomTextNoteEvent(sec, pub []byte, maxContentLen int) (ev *E, err error) {
	l := frand.Intn(maxContentLen)
	content := make([]byte, 0, l)
	content = text.NostrEscape(content, frand.Bytes(l))
	ev = &E{
		Pubkey:    pub,
		Kind:      kind.TextNote,
		CreatedAt: timestamp.Now(),
		Content:   content,
		Tags:      tags.New(),
	}
	if err = ev.Sign(sec); chk.E(err) {
		return
	}
	return
}
