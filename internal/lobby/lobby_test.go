package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// busyStore reports every id as taken.
type busyStore struct{ *MemStore }

func (busyStore) Exists(context.Context, string) (bool, error) { return true, nil }

func newLobby(t *testing.T, m *Manager, hostID string, maxPlayers int) string {
	t.Helper()
	ctx := context.Background()
	id, err := m.GenerateUniqueID(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Create(ctx, id, hostID, hostID+"-name", "pong", maxPlayers))
	return id
}

func TestGenerateUniqueID(t *testing.T) {
	m := NewManager(NewMemStore())
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id, err := m.GenerateUniqueID(ctx)
		require.NoError(t, err)
		require.Len(t, id, 8)
		for _, c := range id {
			require.True(t, c >= '0' && c <= '9', "non-digit in id %q", id)
		}
		seen[id] = true
	}
	assert.Greater(t, len(seen), 1, "ids should vary")
}

func TestGenerateUniqueID_Exhausted(t *testing.T) {
	m := NewManager(busyStore{NewMemStore()})
	_, err := m.GenerateUniqueID(context.Background())
	assert.ErrorIs(t, err, ErrIDExhausted)
}

func TestCreateAndJoin(t *testing.T) {
	m := NewManager(NewMemStore())
	ctx := context.Background()
	id := newLobby(t, m, "host", 2)

	players, err := m.Players(ctx, id)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.True(t, players[0].IsHost)
	assert.Equal(t, "host", players[0].UserID)

	res, err := m.Join(ctx, id, "u2", "bob")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Reason)

	// Rejoining is idempotent and never double-seats.
	res, err = m.Join(ctx, id, "u2", "bob")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, ReasonAlreadyJoined, res.Reason)
	players, _ = m.Players(ctx, id)
	assert.Len(t, players, 2)

	res, err = m.Join(ctx, id, "u3", "carol")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonRoomFull, res.Reason)
}

func TestJoinUnknownLobby(t *testing.T) {
	m := NewManager(NewMemStore())
	res, err := m.Join(context.Background(), "00000000", "u1", "alice")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonRoomNotFound, res.Reason)
}

func TestKick(t *testing.T) {
	m := NewManager(NewMemStore())
	ctx := context.Background()
	id := newLobby(t, m, "host", 4)
	mustJoin(t, m, id, "u2")
	mustJoin(t, m, id, "u3")

	cases := []struct {
		name           string
		kicker, target string
		wantReason     string
		wantSuccess    bool
	}{
		{name: "self kick refused", kicker: "host", target: "host", wantReason: ReasonCannotKickSelf},
		{name: "non-host refused", kicker: "u2", target: "u3", wantReason: ReasonNotHost},
		{name: "absent target", kicker: "host", target: "ghost", wantReason: ReasonPlayerNotFound},
		{name: "host kicks member", kicker: "host", target: "u3", wantSuccess: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := m.Kick(ctx, id, tc.kicker, tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSuccess, res.Success)
			assert.Equal(t, tc.wantReason, res.Reason)
		})
	}

	players, _ := m.Players(ctx, id)
	assert.Len(t, players, 2)

	res, err := m.Kick(ctx, "00000000", "host", "u2")
	require.NoError(t, err)
	assert.Equal(t, ReasonRoomNotFound, res.Reason)
}

func TestSetReady(t *testing.T) {
	m := NewManager(NewMemStore())
	ctx := context.Background()
	id := newLobby(t, m, "host", 4)
	mustJoin(t, m, id, "u2")

	res, err := m.SetReady(ctx, id, "u2", true)
	require.NoError(t, err)
	assert.True(t, res.Success)

	players, _ := m.Players(ctx, id)
	for _, p := range players {
		if p.UserID == "u2" {
			assert.True(t, p.IsReady)
		}
	}

	res, err = m.SetReady(ctx, id, "ghost", true)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotMember, res.Reason)
}

func TestLeave_DeletesEmptyLobby(t *testing.T) {
	m := NewManager(NewMemStore())
	ctx := context.Background()
	id := newLobby(t, m, "host", 4)
	mustJoin(t, m, id, "u2")

	require.NoError(t, m.Leave(ctx, id, "u2"))
	_, found, err := m.Data(ctx, id)
	require.NoError(t, err)
	assert.True(t, found, "lobby deleted while occupied")

	require.NoError(t, m.Leave(ctx, id, "host"))
	_, found, err = m.Data(ctx, id)
	require.NoError(t, err)
	assert.False(t, found, "empty lobby must be deleted")
}

func TestSetStatus(t *testing.T) {
	m := NewManager(NewMemStore())
	ctx := context.Background()

	assert.ErrorIs(t, m.SetStatus(ctx, "00000000", StatusStarting), ErrNotFound)

	id := newLobby(t, m, "host", 2)
	require.NoError(t, m.SetStatus(ctx, id, StatusStarting))
	data, found, err := m.Data(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatusStarting, data.Status)
}

func TestTTLExpiry(t *testing.T) {
	store := NewMemStore()
	clock := time.Now()
	store.now = func() time.Time { return clock }
	m := NewManager(store)
	ctx := context.Background()
	id := newLobby(t, m, "host", 2)

	clock = clock.Add(TTL + time.Minute)

	exists, err := store.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists, "lobby outlived its ttl")
	n, err := store.CountLobbies(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUserIDsAndStats(t *testing.T) {
	m := NewManager(NewMemStore())
	ctx := context.Background()
	id := newLobby(t, m, "a-host", 4)
	mustJoin(t, m, id, "u2")
	mustJoin(t, m, id, "u3")

	ids, err := m.UserIDs(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-host", "u2", "u3"}, ids)

	newLobby(t, m, "other", 2)
	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Lobbies)
}

func mustJoin(t *testing.T, m *Manager, id, userID string) {
	t.Helper()
	res, err := m.Join(context.Background(), id, userID, userID+"-name")
	require.NoError(t, err)
	require.True(t, res.Success)
}
