package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	data := Data{
		ID:         "lobby-1",
		GameType:   "pong",
		MaxPlayers: 2,
		CreatedBy:  "u1",
		Status:     StatusWaiting,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveLobby(ctx, data, time.Hour))
	require.NoError(t, store.SavePlayer(ctx, data.ID, Player{UserID: "u1", Username: "alice", IsHost: true}, time.Hour))
	require.NoError(t, store.SavePlayer(ctx, data.ID, Player{UserID: "u2", Username: "bob"}, time.Hour))

	got, found, err := store.GetLobby(ctx, data.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, data, got)

	players, err := store.GetPlayers(ctx, data.ID)
	require.NoError(t, err)
	require.Len(t, players, 2)

	require.NoError(t, store.RemovePlayer(ctx, data.ID, "u2"))
	players, err = store.GetPlayers(ctx, data.ID)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "u1", players[0].UserID)

	count, err := store.CountLobbies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.DeleteLobby(ctx, data.ID))
	_, found, err = store.GetLobby(ctx, data.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSavePlayerRefreshesBothKeys(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	data := Data{ID: "lobby-ttl", GameType: "racer", MaxPlayers: 4, CreatedBy: "u1", Status: StatusWaiting}
	require.NoError(t, store.SaveLobby(ctx, data, time.Hour))

	// Deep into the lobby's lifetime a member acts; the write must push out
	// the data key's deadline too, not just the hash's.
	mr.FastForward(45 * time.Minute)
	require.NoError(t, store.SavePlayer(ctx, data.ID, Player{UserID: "u1", Username: "alice", IsHost: true}, time.Hour))

	// Past the original one hour deadline but within the refreshed one.
	mr.FastForward(30 * time.Minute)
	_, found, err := store.GetLobby(ctx, data.ID)
	require.NoError(t, err)
	assert.True(t, found, "lobby data expired despite a recent player write")

	players, err := store.GetPlayers(ctx, data.ID)
	require.NoError(t, err)
	assert.Len(t, players, 1)

	// With no further activity both keys lapse together.
	mr.FastForward(time.Hour)
	_, found, err = store.GetLobby(ctx, data.ID)
	require.NoError(t, err)
	assert.False(t, found)
	players, err = store.GetPlayers(ctx, data.ID)
	require.NoError(t, err)
	assert.Empty(t, players)
}
