package lobby

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and single-process runs. TTLs are
// honored lazily on read.
type MemStore struct {
	mu      sync.Mutex
	lobbies map[string]memLobby
	now     func() time.Time
}

type memLobby struct {
	data    Data
	players map[string]Player
	expires time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		lobbies: make(map[string]memLobby),
		now:     time.Now,
	}
}

func (s *MemStore) get(id string) (memLobby, bool) {
	l, exists := s.lobbies[id]
	if !exists {
		return memLobby{}, false
	}
	if s.now().After(l.expires) {
		delete(s.lobbies, id)
		return memLobby{}, false
	}
	return l, true
}

func (s *MemStore) SaveLobby(_ context.Context, data Data, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, exists := s.get(data.ID)
	if !exists {
		l = memLobby{players: make(map[string]Player)}
	}
	l.data = data
	l.expires = s.now().Add(ttl)
	s.lobbies[data.ID] = l
	return nil
}

func (s *MemStore) GetLobby(_ context.Context, id string) (Data, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, exists := s.get(id)
	if !exists {
		return Data{}, false, nil
	}
	return l.data, true, nil
}

func (s *MemStore) DeleteLobby(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lobbies, id)
	return nil
}

func (s *MemStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.get(id)
	return exists, nil
}

func (s *MemStore) SavePlayer(_ context.Context, lobbyID string, p Player, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, exists := s.get(lobbyID)
	if !exists {
		l = memLobby{players: make(map[string]Player)}
	}
	l.players[p.UserID] = p
	l.expires = s.now().Add(ttl)
	s.lobbies[lobbyID] = l
	return nil
}

func (s *MemStore) GetPlayers(_ context.Context, lobbyID string) ([]Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, exists := s.get(lobbyID)
	if !exists {
		return nil, nil
	}
	players := make([]Player, 0, len(l.players))
	for _, p := range l.players {
		players = append(players, p)
	}
	sortPlayers(players)
	return players, nil
}

func (s *MemStore) RemovePlayer(_ context.Context, lobbyID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, exists := s.get(lobbyID)
	if !exists {
		return nil
	}
	delete(l.players, userID)
	return nil
}

func (s *MemStore) CountLobbies(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id := range s.lobbies {
		if _, exists := s.get(id); exists {
			count++
		}
	}
	return count, nil
}
