package event

import (
	"bytes"
	"testing"

	"lukechampine.com/frand"

	"orly.dev/crypto"
	"orly.dev/encoders/codecbuf"
	"orly.dev/encoders/kind"
	"orly.dev/encoders/tag"
	"orly.dev/encoders/tags"
	"orly.dev/encoders/timestamp"
	"orly.dev/utils/chk"
)

func randEvent(t *testing.T) *E {
	t.Helper()
	sec := frand.Bytes(32)
	ev := &E{
		Pubkey:    crypto.PubkeyFromSecret(sec),
		Kind:      kind.TextNote,
		CreatedAt: timestamp.Now(),
		Content:   frand.Bytes(64),
		Tags:      tags.New().AppendTags(tag.New([]byte("t"), []byte("binary-roundtrip"))),
	}
	if err := ev.Sign(sec); err != nil {
		t.Fatal(err)
	}
	return ev
}

// TestMarshalBinary_UnmarshalBinary round-trips a batch of freshly signed
// events through JSON marshal/unmarshal followed by the binary codec used
// for the store's raw_frame cache, checking the binary form reproduces the
// original event's id, signature and content.
func TestMarshalBinary_UnmarshalBinary(t *testing.T) {
	const count = 200
	for i := 0; i < count; i++ {
		ea := randEvent(t)

		encoded := ea.Marshal(nil)
		eb := New()
		rem, err := eb.Unmarshal(encoded)
		if chk.E(err) {
			t.Fatal(err)
		}
		if len(rem) != 0 {
			t.Fatalf("some of input remaining after unmarshal: %q", rem)
		}

		buf := codecbuf.Get()
		eb.MarshalBinary(buf)
		ec := New()
		if err = ec.UnmarshalBinary(bytes.NewBuffer(buf.Bytes())); chk.E(err) {
			t.Fatal(err)
		}

		if !bytes.Equal(ea.Id, ec.Id) {
			t.Fatalf("id mismatch after binary round trip at event %d", i)
		}
		if !bytes.Equal(ea.Sig, ec.Sig) {
			t.Fatalf("sig mismatch after binary round trip at event %d", i)
		}
		if !bytes.Equal(ea.Content, ec.Content) {
			t.Fatalf("content mismatch after binary round trip at event %d", i)
		}
	}
}
