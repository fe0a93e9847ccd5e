package lobby

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"time"
)

// ErrIDExhausted is a hard failure: the caller must surface it, not retry.
var ErrIDExhausted = errors.New("could not generate unique lobby id")

var ErrNotFound = errors.New("lobby not found")

const (
	TTL           = time.Hour
	idAttempts    = 10
	MinStartCount = 2
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusReady    Status = "ready"
	StatusStarting Status = "starting"
	StatusInGame   Status = "in_game"
)

type Data struct {
	ID         string    `json:"id"`
	GameType   string    `json:"gameType"`
	MaxPlayers int       `json:"maxPlayers"`
	CreatedBy  string    `json:"createdBy"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Player struct {
	UserID   string    `json:"userId"`
	Username string    `json:"username"`
	IsHost   bool      `json:"isHost"`
	IsReady  bool      `json:"isReady"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Result reports an authorization or state conflict to the caller without
// being an error; no state is mutated on failure.
type Result struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

const (
	ReasonRoomNotFound   = "room_not_found"
	ReasonAlreadyJoined  = "already_joined"
	ReasonRoomFull       = "room_full"
	ReasonNotHost        = "not_host"
	ReasonCannotKickSelf = "cannot_kick_self"
	ReasonPlayerNotFound = "player_not_found"
	ReasonNotMember      = "not_member"
)

// Store is the ephemeral keyspace lobbies live in. Every write refreshes the
// lobby's TTL; an untouched lobby evaporates after an hour.
type Store interface {
	SaveLobby(ctx context.Context, data Data, ttl time.Duration) error
	GetLobby(ctx context.Context, id string) (Data, bool, error)
	DeleteLobby(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
	SavePlayer(ctx context.Context, lobbyID string, p Player, ttl time.Duration) error
	GetPlayers(ctx context.Context, lobbyID string) ([]Player, error)
	RemovePlayer(ctx context.Context, lobbyID, userID string) error
	CountLobbies(ctx context.Context) (int, error)
}

// Stats is the read model for the ops surface.
type Stats struct {
	Lobbies int `json:"lobbies"`
}

// Manager implements pre-game matchmaking only; it never touches simulation
// state.
type Manager struct {
	store Store
	rng   *rand.Rand
}

func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GenerateUniqueID draws random 8-digit ids until one is free, up to
// idAttempts tries.
func (m *Manager) GenerateUniqueID(ctx context.Context) (string, error) {
	for i := 0; i < idAttempts; i++ {
		id := formatID(10000000 + m.rng.Intn(90000000))
		exists, err := m.store.Exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

func formatID(n int) string {
	buf := [8]byte{}
	for i := 7; i >= 0; i-- {
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[:])
}

// Create seeds the lobby and its host player.
func (m *Manager) Create(ctx context.Context, id, hostID, hostName, gameType string, maxPlayers int) error {
	data := Data{
		ID:         id,
		GameType:   gameType,
		MaxPlayers: maxPlayers,
		CreatedBy:  hostID,
		Status:     StatusWaiting,
		CreatedAt:  time.Now(),
	}
	if err := m.store.SaveLobby(ctx, data, TTL); err != nil {
		return err
	}
	host := Player{
		UserID:   hostID,
		Username: hostName,
		IsHost:   true,
		JoinedAt: time.Now(),
	}
	return m.store.SavePlayer(ctx, id, host, TTL)
}

// Join adds a member. Rejoining is idempotent and reported as success with
// reason already_joined; a member is never double-added.
func (m *Manager) Join(ctx context.Context, id, userID, username string) (Result, error) {
	data, found, err := m.store.GetLobby(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{Reason: ReasonRoomNotFound}, nil
	}
	players, err := m.store.GetPlayers(ctx, id)
	if err != nil {
		return Result{}, err
	}
	for _, p := range players {
		if p.UserID == userID {
			return Result{Success: true, Reason: ReasonAlreadyJoined}, nil
		}
	}
	if len(players) >= data.MaxPlayers {
		return Result{Reason: ReasonRoomFull}, nil
	}
	p := Player{UserID: userID, Username: username, JoinedAt: time.Now()}
	if err := m.store.SavePlayer(ctx, id, p, TTL); err != nil {
		return Result{}, err
	}
	return Result{Success: true}, nil
}

// Leave removes a member and deletes the lobby once it is empty.
func (m *Manager) Leave(ctx context.Context, id, userID string) error {
	if err := m.store.RemovePlayer(ctx, id, userID); err != nil {
		return err
	}
	players, err := m.store.GetPlayers(ctx, id)
	if err != nil {
		return err
	}
	if len(players) == 0 {
		return m.store.DeleteLobby(ctx, id)
	}
	return nil
}

// Kick removes the target if the kicker is host and not kicking themselves.
func (m *Manager) Kick(ctx context.Context, id, kickerID, targetID string) (Result, error) {
	players, err := m.store.GetPlayers(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if len(players) == 0 {
		return Result{Reason: ReasonRoomNotFound}, nil
	}
	if kickerID == targetID {
		return Result{Reason: ReasonCannotKickSelf}, nil
	}
	var kickerIsHost, targetPresent bool
	for _, p := range players {
		if p.UserID == kickerID && p.IsHost {
			kickerIsHost = true
		}
		if p.UserID == targetID {
			targetPresent = true
		}
	}
	if !kickerIsHost {
		return Result{Reason: ReasonNotHost}, nil
	}
	if !targetPresent {
		return Result{Reason: ReasonPlayerNotFound}, nil
	}
	if err := m.store.RemovePlayer(ctx, id, targetID); err != nil {
		return Result{}, err
	}
	return Result{Success: true}, nil
}

// SetReady updates a member's readiness; unknown members are refused.
func (m *Manager) SetReady(ctx context.Context, id, userID string, ready bool) (Result, error) {
	players, err := m.store.GetPlayers(ctx, id)
	if err != nil {
		return Result{}, err
	}
	for _, p := range players {
		if p.UserID == userID {
			p.IsReady = ready
			if err := m.store.SavePlayer(ctx, id, p, TTL); err != nil {
				return Result{}, err
			}
			return Result{Success: true}, nil
		}
	}
	return Result{Reason: ReasonNotMember}, nil
}

func (m *Manager) SetStatus(ctx context.Context, id string, status Status) error {
	data, found, err := m.store.GetLobby(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	data.Status = status
	return m.store.SaveLobby(ctx, data, TTL)
}

func (m *Manager) Data(ctx context.Context, id string) (Data, bool, error) {
	return m.store.GetLobby(ctx, id)
}

func (m *Manager) Players(ctx context.Context, id string) ([]Player, error) {
	return m.store.GetPlayers(ctx, id)
}

func (m *Manager) UserIDs(ctx context.Context, id string) ([]string, error) {
	players, err := m.store.GetPlayers(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.UserID
	}
	return ids, nil
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.DeleteLobby(ctx, id)
}

func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	n, err := m.store.CountLobbies(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Lobbies: n}, nil
}

func sortPlayers(players []Player) {
	sort.Slice(players, func(i, j int) bool {
		if players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].UserID < players[j].UserID
		}
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})
}
