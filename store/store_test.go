package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"lukechampine.com/frand"

	"orly.dev/crypto"
	"orly.dev/encoders/event"
	"orly.dev/encoders/filter"
	"orly.dev/encoders/kind"
	"orly.dev/encoders/tag"
	"orly.dev/encoders/tags"
	"orly.dev/encoders/timestamp"
	"orly.dev/utils/context"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "store-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	s, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func signedNote(t *testing.T, sec, pub []byte, content string, ts int64) *event.E {
	t.Helper()
	ev := &event.E{
		Pubkey:    pub,
		Kind:      kind.TextNote,
		CreatedAt: timestamp.FromUnix(ts),
		Content:   []byte(content),
		Tags:      tags.New(),
	}
	require.NoError(t, ev.Sign(sec))
	return ev
}

func TestInsertAndQueryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()

	sec := make([]byte, 32)
	frand.Read(sec)
	pub := crypto.PubkeyFromSecret(sec)

	ev := signedNote(t, sec, pub, "hello", 1000)
	result, err := s.Insert(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, Stored, result)

	exists, err := s.Exists(ctx, ev.Id)
	require.NoError(t, err)
	require.True(t, exists)

	f := filter.New()
	f.Authors = f.Authors.Append(pub)
	got, err := s.QueryEvents(ctx, f)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, ev.Id, got[0].Id)
}

func TestInsertDuplicateId(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()

	sec := make([]byte, 32)
	frand.Read(sec)
	pub := crypto.PubkeyFromSecret(sec)
	ev := signedNote(t, sec, pub, "hi", 1000)

	_, err := s.Insert(ctx, ev)
	require.NoError(t, err)

	result, err := s.Insert(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, DuplicateId, result)
}

func TestReplaceableSupersedesOlder(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()

	sec := make([]byte, 32)
	frand.Read(sec)
	pub := crypto.PubkeyFromSecret(sec)

	older := &event.E{
		Pubkey: pub, Kind: kind.Metadata, CreatedAt: timestamp.FromUnix(100),
		Content: []byte(`{"name":"old"}`), Tags: tags.New(),
	}
	require.NoError(t, older.Sign(sec))
	newer := &event.E{
		Pubkey: pub, Kind: kind.Metadata, CreatedAt: timestamp.FromUnix(200),
		Content: []byte(`{"name":"new"}`), Tags: tags.New(),
	}
	require.NoError(t, newer.Sign(sec))

	_, err := s.Insert(ctx, older)
	require.NoError(t, err)
	result, err := s.Insert(ctx, newer)
	require.NoError(t, err)
	require.Equal(t, Stored, result)

	f := filter.New()
	f.Authors = f.Authors.Append(pub)
	f.Kinds.K = append(f.Kinds.K, kind.Metadata)
	got, err := s.QueryEvents(ctx, f)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, newer.Id, got[0].Id)

	exists, err := s.Exists(ctx, older.Id)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestReplaceableRejectsOlderAfterNewer(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()

	sec := make([]byte, 32)
	frand.Read(sec)
	pub := crypto.PubkeyFromSecret(sec)

	newer := &event.E{
		Pubkey: pub, Kind: kind.Metadata, CreatedAt: timestamp.FromUnix(200),
		Content: []byte(`{"name":"new"}`), Tags: tags.New(),
	}
	require.NoError(t, newer.Sign(sec))
	older := &event.E{
		Pubkey: pub, Kind: kind.Metadata, CreatedAt: timestamp.FromUnix(100),
		Content: []byte(`{"name":"old"}`), Tags: tags.New(),
	}
	require.NoError(t, older.Sign(sec))

	_, err := s.Insert(ctx, newer)
	require.NoError(t, err)
	result, err := s.Insert(ctx, older)
	require.NoError(t, err)
	require.Equal(t, Superseded, result)
}

func TestParameterizedReplaceableKeyedByDTag(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()

	sec := make([]byte, 32)
	frand.Read(sec)
	pub := crypto.PubkeyFromSecret(sec)

	mkEv := func(d string, ts int64, content string) *event.E {
		ev := &event.E{
			Pubkey: pub, Kind: kind.New(30023), CreatedAt: timestamp.FromUnix(ts),
			Content: []byte(content),
			Tags:    tags.New().AppendTags(tag.New([]byte("d"), []byte(d))),
		}
		require.NoError(t, ev.Sign(sec))
		return ev
	}

	a1 := mkEv("article-1", 100, "draft")
	a2 := mkEv("article-1", 200, "final")
	b1 := mkEv("article-2", 100, "other")

	_, err := s.Insert(ctx, a1)
	require.NoError(t, err)
	_, err = s.Insert(ctx, a2)
	require.NoError(t, err)
	_, err = s.Insert(ctx, b1)
	require.NoError(t, err)

	f := filter.New()
	f.Authors = f.Authors.Append(pub)
	f.Kinds.K = append(f.Kinds.K, kind.New(30023))
	got, err := s.QueryEvents(ctx, f)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestEphemeralNotStored(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()

	sec := make([]byte, 32)
	frand.Read(sec)
	pub := crypto.PubkeyFromSecret(sec)

	ev := &event.E{
		Pubkey: pub, Kind: kind.New(20001), CreatedAt: timestamp.Now(),
		Content: []byte("ping"), Tags: tags.New(),
	}
	require.NoError(t, ev.Sign(sec))

	result, err := s.Insert(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, Ephemeral, result)

	exists, err := s.Exists(ctx, ev.Id)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestDeleteEventTombstonesAndRejectsReinsert(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()

	sec := make([]byte, 32)
	frand.Read(sec)
	pub := crypto.PubkeyFromSecret(sec)
	ev := signedNote(t, sec, pub, "delete me", 1000)

	_, err := s.Insert(ctx, ev)
	require.NoError(t, err)

	require.NoError(t, s.DeleteEvent(ctx, ev.Id, false))

	exists, err := s.Exists(ctx, ev.Id)
	require.NoError(t, err)
	require.False(t, exists)

	tombstoned, err := s.Tombstoned(ctx, ev.Id)
	require.NoError(t, err)
	require.True(t, tombstoned)

	result, err := s.Insert(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, Tombstoned, result)
}

func TestQueryByTagClause(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()

	sec := make([]byte, 32)
	frand.Read(sec)
	pub := crypto.PubkeyFromSecret(sec)

	targetId := make([]byte, 32)
	frand.Read(targetId)

	ev := &event.E{
		Pubkey: pub, Kind: kind.TextNote, CreatedAt: timestamp.FromUnix(500),
		Content: []byte("reply"),
		Tags:    tags.New().AppendTags(tag.New([]byte("e"), targetId)),
	}
	require.NoError(t, ev.Sign(sec))
	_, err := s.Insert(ctx, ev)
	require.NoError(t, err)

	f := filter.New()
	f.Tags = f.Tags.AppendTags(tag.New([]byte("#e"), targetId))
	got, err := s.QueryEvents(ctx, f)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, ev.Id, got[0].Id)
}

func TestQueryRespectsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()

	sec := make([]byte, 32)
	frand.Read(sec)
	pub := crypto.PubkeyFromSecret(sec)

	for i := int64(0); i < 5; i++ {
		ev := signedNote(t, sec, pub, "n", 1000+i)
		_, err := s.Insert(ctx, ev)
		require.NoError(t, err)
	}

	f := filter.New()
	f.Authors = f.Authors.Append(pub)
	lim := uint(2)
	f.Limit = &lim
	got, err := s.QueryEvents(ctx, f)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].CreatedAt.I64() > got[1].CreatedAt.I64())
}

func TestCountEvents(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()

	sec := make([]byte, 32)
	frand.Read(sec)
	pub := crypto.PubkeyFromSecret(sec)

	for i := int64(0); i < 3; i++ {
		ev := signedNote(t, sec, pub, "n", 2000+i)
		_, err := s.Insert(ctx, ev)
		require.NoError(t, err)
	}

	f := filter.New()
	f.Authors = f.Authors.Append(pub)
	n, err := s.CountEvents(ctx, f)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}
