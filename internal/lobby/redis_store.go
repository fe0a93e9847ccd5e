package lobby

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lobbyKeyPrefix = "lobby:"
	playersSuffix  = ":players"
	lobbyScanCount = 100
)

// RedisStore keeps each lobby under two keys: the lobby data as JSON at
// lobby:{id} and the members as a hash at lobby:{id}:players. Both expire
// together so a dead lobby leaves nothing behind.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func lobbyKey(id string) string   { return lobbyKeyPrefix + id }
func playersKey(id string) string { return lobbyKeyPrefix + id + playersSuffix }

func (s *RedisStore) SaveLobby(ctx context.Context, data Data, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, lobbyKey(data.ID), raw, ttl)
	pipe.Expire(ctx, playersKey(data.ID), ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetLobby(ctx context.Context, id string) (Data, bool, error) {
	raw, err := s.client.Get(ctx, lobbyKey(id)).Bytes()
	if err == redis.Nil {
		return Data{}, false, nil
	}
	if err != nil {
		return Data{}, false, err
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return Data{}, false, err
	}
	return data, true, nil
}

func (s *RedisStore) DeleteLobby(ctx context.Context, id string) error {
	return s.client.Del(ctx, lobbyKey(id), playersKey(id)).Err()
}

func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, lobbyKey(id)).Result()
	return n > 0, err
}

func (s *RedisStore) SavePlayer(ctx context.Context, lobbyID string, p Player, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	// Every player write refreshes both keys so the lobby data cannot expire
	// out from under a still-active member hash.
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, playersKey(lobbyID), p.UserID, raw)
	pipe.Expire(ctx, playersKey(lobbyID), ttl)
	pipe.Expire(ctx, lobbyKey(lobbyID), ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetPlayers(ctx context.Context, lobbyID string) ([]Player, error) {
	entries, err := s.client.HGetAll(ctx, playersKey(lobbyID)).Result()
	if err != nil {
		return nil, err
	}
	players := make([]Player, 0, len(entries))
	for _, raw := range entries {
		var p Player
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		players = append(players, p)
	}
	// Hash order is arbitrary; callers expect join order.
	sortPlayers(players)
	return players, nil
}

func (s *RedisStore) RemovePlayer(ctx context.Context, lobbyID, userID string) error {
	return s.client.HDel(ctx, playersKey(lobbyID), userID).Err()
}

func (s *RedisStore) CountLobbies(ctx context.Context) (int, error) {
	var cursor uint64
	count := 0
	for {
		keys, next, err := s.client.Scan(ctx, cursor, lobbyKeyPrefix+"*", lobbyScanCount).Result()
		if err != nil {
			return 0, err
		}
		for _, key := range keys {
			if len(key) > len(playersSuffix) && key[len(key)-len(playersSuffix):] == playersSuffix {
				continue
			}
			count++
		}
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}
