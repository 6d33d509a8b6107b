// Package indexes builds the badger key schemes the store uses to avoid a
// full scan for every query shape named in spec.md §4.3: by id, by author
// and time, by kind and time, by tag and time, plus the latest-serial
// pointers that back the replaceable/parameterized-replaceable policies.
//
// Grounded on the teacher's database/indexes composite-key approach
// (created_at-descending + serial composite keys per dimension), adapted
// to a flatter, single-package key scheme rather than the teacher's
// generated-type-per-field system, since this relay has one store
// implementation rather than a pluggable indexing framework.
package indexes

import (
	"encoding/binary"
	"math"

	"orly.dev/crypto"
)

// Key prefixes. Single bytes keep every key maximally short; badger pays
// per-byte on every comparison during iteration.
const (
	PrefixEvent       = byte('E') // serial -> raw event binary
	PrefixById        = byte('i') // id -> serial
	PrefixByCreatedAt = byte('c') // revCreatedAt, serial -> (time-ordered scan)
	PrefixByPubkey    = byte('p') // pubkey, revCreatedAt, serial
	PrefixByKind      = byte('k') // kind, revCreatedAt, serial
	PrefixByTag       = byte('t') // tagName, valueHash, revCreatedAt, serial
	PrefixReplaceable = byte('r') // pubkey, kind -> serial (latest)
	PrefixParamRepl   = byte('d') // pubkey, kind, dHash -> serial (latest)
	PrefixTombstone   = byte('x') // id -> deletedAt
)

// revCreatedAt inverts a unix timestamp so lexicographic byte order over
// the resulting 8 bytes sorts newest-first, matching event.S's ordering.
func revCreatedAt(createdAt int64) uint64 {
	if createdAt < 0 {
		createdAt = 0
	}
	return math.MaxUint64 - uint64(createdAt)
}

func putU64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func putU16(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

// EventKey is the primary record key: serial number, big-endian.
func EventKey(serial uint64) []byte {
	return putU64([]byte{PrefixEvent}, serial)
}

// IdKey maps an event id to its serial number.
func IdKey(id []byte) []byte {
	return append([]byte{PrefixById}, id...)
}

// CreatedAtKey is the time-ordered scan index: no author/kind/tag
// constraint, so every event participates.
func CreatedAtKey(createdAt int64, serial uint64) []byte {
	b := []byte{PrefixByCreatedAt}
	b = putU64(b, revCreatedAt(createdAt))
	return putU64(b, serial)
}

// CreatedAtPrefix is CreatedAtKey truncated to just the prefix byte, the
// starting point for an unconstrained time-ordered scan.
func CreatedAtPrefix() []byte { return []byte{PrefixByCreatedAt} }

// PubkeyKey indexes an event by author and time.
func PubkeyKey(pubkey []byte, createdAt int64, serial uint64) []byte {
	b := append([]byte{PrefixByPubkey}, pubkey...)
	b = putU64(b, revCreatedAt(createdAt))
	return putU64(b, serial)
}

// PubkeyPrefix is the scan prefix for one author.
func PubkeyPrefix(pubkey []byte) []byte {
	return append([]byte{PrefixByPubkey}, pubkey...)
}

// KindKey indexes an event by kind and time.
func KindKey(kind uint16, createdAt int64, serial uint64) []byte {
	b := []byte{PrefixByKind}
	b = putU16(b, kind)
	b = putU64(b, revCreatedAt(createdAt))
	return putU64(b, serial)
}

// KindPrefix is the scan prefix for one kind.
func KindPrefix(kind uint16) []byte {
	return putU16([]byte{PrefixByKind}, kind)
}

// tagValueHash truncates a sha256 digest of the tag value to 8 bytes —
// collisions only cost a wasted candidate fetch, never a missed match,
// since every candidate is re-checked against the full filter.
func tagValueHash(value []byte) uint64 {
	h := crypto.Sha256(value)
	return binary.BigEndian.Uint64(h[:8])
}

// TagKey indexes an event by one (name, value) tag pair and time.
func TagKey(name byte, value []byte, createdAt int64, serial uint64) []byte {
	b := []byte{PrefixByTag, name}
	b = putU64(b, tagValueHash(value))
	b = putU64(b, revCreatedAt(createdAt))
	return putU64(b, serial)
}

// TagPrefix is the scan prefix for one (name, value) tag pair.
func TagPrefix(name byte, value []byte) []byte {
	b := []byte{PrefixByTag, name}
	return putU64(b, tagValueHash(value))
}

// ReplaceableKey locates the latest serial for a (pubkey, kind) pair.
func ReplaceableKey(pubkey []byte, kind uint16) []byte {
	b := append([]byte{PrefixReplaceable}, pubkey...)
	return putU16(b, kind)
}

// ParamReplaceableKey locates the latest serial for a (pubkey, kind, d)
// triple.
func ParamReplaceableKey(pubkey []byte, kind uint16, d string) []byte {
	b := append([]byte{PrefixParamRepl}, pubkey...)
	b = putU16(b, kind)
	return putU64(b, tagValueHash([]byte(d)))
}

// TombstoneKey records that an id was deleted, so a re-submission of the
// same event (spec.md's NIP-09 tombstone supplement) can be rejected
// without a second author-match query.
func TombstoneKey(id []byte) []byte {
	return append([]byte{PrefixTombstone}, id...)
}
