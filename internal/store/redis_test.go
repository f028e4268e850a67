package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreFromClient(client)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	doc := []byte(`{"encounterId":"goblin_ambush_001","combat_round":1}`)
	require.NoError(t, s.Save(ctx, EncounterKey("goblin_ambush_001"), doc))

	got, err := s.Load(ctx, EncounterKey("goblin_ambush_001"))
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestRedisStoreLoadMissing(t *testing.T) {
	s := newTestRedisStore(t)
	_, err := s.Load(context.Background(), EncounterKey("nope"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreOverwrite(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	key := CharacterKey("eirik")

	require.NoError(t, s.Save(ctx, key, []byte(`{"hitPoints":10}`)))
	require.NoError(t, s.Save(ctx, key, []byte(`{"hitPoints":7}`)))

	got, err := s.Load(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hitPoints":7}`, string(got))
}

func TestRedisStoreDelete(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	key := TranscriptKey("goblin_ambush_001")

	require.NoError(t, s.Save(ctx, key, []byte(`[]`)))
	require.NoError(t, s.Delete(ctx, key))

	_, err := s.Load(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is fine.
	assert.NoError(t, s.Delete(ctx, key))
}

func TestRedisStoreHealth(t *testing.T) {
	s := newTestRedisStore(t)
	assert.NoError(t, s.Health(context.Background()))
}
