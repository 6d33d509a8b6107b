// Package crypto wraps github.com/btcsuite/btcd/btcec/v2 and its schnorr
// subpackage for the relay's signature primitives (spec.md §4.1). The
// teacher (orly.dev/crypto/ec) vendors its own assembly-optimized
// secp256k1/schnorr implementation; the retrieval pack does not include
// that vendored code in full, so verification here is grounded directly on
// the upstream library the teacher's own wrapper sits on top of.
package crypto

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/minio/sha256-simd"

	"orly.dev/utils/errorf"
)

const (
	// PubKeyLen is the length of an x-only secp256k1 public key.
	PubKeyLen = 32
	// SignatureLen is the length of a BIP-340 schnorr signature.
	SignatureLen = 64
)

// Sha256 returns the SHA-256 digest of in.
func Sha256(in []byte) []byte {
	h := sha256.Sum256(in)
	return h[:]
}

// VerifySchnorr verifies a BIP-340 schnorr signature sig over digest msg
// using the x-only public key pubkey. All three must be the canonical
// byte lengths (32, 32, 64).
func VerifySchnorr(sig, msg, pubkey []byte) (ok bool, err error) {
	if len(pubkey) != PubKeyLen {
		err = errorf.E("crypto: pubkey must be %d bytes, got %d", PubKeyLen, len(pubkey))
		return
	}
	if len(sig) != SignatureLen {
		err = errorf.E("crypto: signature must be %d bytes, got %d", SignatureLen, len(sig))
		return
	}
	if len(msg) != 32 {
		err = errorf.E("crypto: message digest must be 32 bytes, got %d", len(msg))
		return
	}
	var pk *btcec.PublicKey
	if pk, err = schnorr.ParsePubKey(pubkey); err != nil {
		return
	}
	var s *schnorr.Signature
	if s, err = schnorr.ParseSignature(sig); err != nil {
		return
	}
	ok = s.Verify(msg, pk)
	return
}

// SignSchnorr signs digest msg with the given 32-byte secret key. Used only
// by test helpers and the event generator, never on the verification hot
// path.
func SignSchnorr(sec, msg []byte) (sig []byte, err error) {
	priv, _ := btcec.PrivKeyFromBytes(sec)
	var s *schnorr.Signature
	if s, err = schnorr.Sign(priv, msg); err != nil {
		return
	}
	sig = s.Serialize()
	return
}

// PubkeyFromSecret derives the x-only public key bytes for a secret key.
func PubkeyFromSecret(sec []byte) []byte {
	_, pub := btcec.PrivKeyFromBytes(sec)
	return schnorr.SerializePubKey(pub)
}
