// Package events is the ingress of the game core: it decodes command
// envelopes from the inbound pub/sub channel and routes them to the lobby
// and game managers.
package events

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/SirAlabar/StarCendence-sub002/internal/broadcast"
	"github.com/SirAlabar/StarCendence-sub002/internal/engine"
	"github.com/SirAlabar/StarCendence-sub002/internal/lobby"
	"github.com/SirAlabar/StarCendence-sub002/internal/pubsub"
	"github.com/SirAlabar/StarCendence-sub002/internal/racer"
	"github.com/SirAlabar/StarCendence-sub002/internal/session"
	"github.com/SirAlabar/StarCendence-sub002/internal/types"
)

const (
	GameTypePong  = "pong"
	GameTypeRacer = "racer"

	defaultMaxPlayers = 2
	defaultMaxScore   = 5
	defaultLaps       = 3
)

type Subscriber struct {
	sub      pubsub.Subscriber
	bc       *broadcast.Broadcaster
	lobbies  *lobby.Manager
	sessions *session.Manager
	races    *racer.Manager
	logger   *zap.Logger
}

func NewSubscriber(sub pubsub.Subscriber, bc *broadcast.Broadcaster, lobbies *lobby.Manager,
	sessions *session.Manager, races *racer.Manager, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		sub:      sub,
		bc:       bc,
		lobbies:  lobbies,
		sessions: sessions,
		races:    races,
		logger:   logger.Named("events"),
	}
}

// Run consumes the inbound channel until ctx is cancelled. A malformed
// envelope is logged and skipped; the loop never dies on bad input.
func (s *Subscriber) Run(ctx context.Context) error {
	ch, err := s.sub.Subscribe(ctx, pubsub.ChannelIn)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, open := <-ch:
			if !open {
				return nil
			}
			var env types.Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				s.logger.Warn("bad envelope", zap.Error(err))
				continue
			}
			s.dispatch(ctx, env)
		}
	}
}

func (s *Subscriber) dispatch(ctx context.Context, env types.Envelope) {
	switch env.Type {
	case types.CmdLobbyCreate:
		s.handleLobbyCreate(ctx, env)
	case types.CmdLobbyJoin:
		s.handleLobbyJoin(ctx, env)
	case types.CmdLobbyLeave:
		s.handleLobbyLeave(ctx, env)
	case types.CmdLobbyKick:
		s.handleLobbyKick(ctx, env)
	case types.CmdLobbyReady:
		s.handleLobbyReady(ctx, env)
	case types.CmdLobbyStart:
		s.handleLobbyStart(ctx, env)
	case types.CmdLobbyChat:
		s.handleLobbyChat(ctx, env)
	case types.CmdGameInput:
		s.handleGameInput(env)
	case types.CmdGameReady:
		s.handleGameReady(env)
	default:
		s.logger.Debug("ignoring unknown command", zap.String("type", env.Type))
	}
}

type lobbyCreatePayload struct {
	GameType   string `json:"gameType"`
	MaxPlayers int    `json:"maxPlayers"`
}

type lobbyRefPayload struct {
	LobbyID string `json:"lobbyId"`
}

type lobbyKickPayload struct {
	LobbyID  string `json:"lobbyId"`
	TargetID string `json:"targetId"`
}

type lobbyReadyPayload struct {
	LobbyID string `json:"lobbyId"`
	Ready   bool   `json:"ready"`
}

type lobbyChatPayload struct {
	LobbyID string `json:"lobbyId"`
	Message string `json:"message"`
}

type gameInputPayload struct {
	SessionID  string      `json:"sessionId"`
	Direction  string      `json:"direction"`
	Throttle   float64     `json:"throttle"`
	Steering   float64     `json:"steering"`
	Position   *racer.Vec2 `json:"position"`
	Rotation   float64     `json:"rotation"`
	Velocity   *racer.Vec2 `json:"velocity"`
	Checkpoint *int        `json:"checkpoint"`
}

type gameReadyPayload struct {
	SessionID string `json:"sessionId"`
}

func (s *Subscriber) handleLobbyCreate(ctx context.Context, env types.Envelope) {
	var p lobbyCreatePayload
	if !s.decode(env, &p) {
		return
	}
	if p.GameType == "" {
		p.GameType = GameTypePong
	}
	if p.MaxPlayers < lobby.MinStartCount {
		p.MaxPlayers = defaultMaxPlayers
	}

	id, err := s.lobbies.GenerateUniqueID(ctx)
	if err != nil {
		s.logger.Error("lobby id generation exhausted", zap.Error(err))
		s.bc.ToUser(ctx, env.UserID, "lobby:error", map[string]any{"reason": "id_exhausted"})
		return
	}
	if err := s.lobbies.Create(ctx, id, env.UserID, env.Username, p.GameType, p.MaxPlayers); err != nil {
		s.logger.Error("create lobby failed", zap.String("lobby", id), zap.Error(err))
		return
	}
	s.bc.ToUser(ctx, env.UserID, "lobby:created", map[string]any{
		"lobbyId":    id,
		"gameType":   p.GameType,
		"maxPlayers": p.MaxPlayers,
	})
}

func (s *Subscriber) handleLobbyJoin(ctx context.Context, env types.Envelope) {
	var p lobbyRefPayload
	if !s.decode(env, &p) {
		return
	}
	res, err := s.lobbies.Join(ctx, p.LobbyID, env.UserID, env.Username)
	if err != nil {
		s.logger.Error("join lobby failed", zap.String("lobby", p.LobbyID), zap.Error(err))
		return
	}
	s.bc.ToUser(ctx, env.UserID, "lobby:join:result", res)
	if res.Success && res.Reason != lobby.ReasonAlreadyJoined {
		s.notifyLobby(ctx, p.LobbyID, "lobby:player:joined", map[string]any{
			"lobbyId":  p.LobbyID,
			"userId":   env.UserID,
			"username": env.Username,
		})
	}
}

func (s *Subscriber) handleLobbyLeave(ctx context.Context, env types.Envelope) {
	var p lobbyRefPayload
	if !s.decode(env, &p) {
		return
	}
	if err := s.lobbies.Leave(ctx, p.LobbyID, env.UserID); err != nil {
		s.logger.Warn("leave lobby failed", zap.String("lobby", p.LobbyID), zap.Error(err))
		return
	}
	s.notifyLobby(ctx, p.LobbyID, "lobby:player:left", map[string]any{
		"lobbyId": p.LobbyID,
		"userId":  env.UserID,
	})
}

func (s *Subscriber) handleLobbyKick(ctx context.Context, env types.Envelope) {
	var p lobbyKickPayload
	if !s.decode(env, &p) {
		return
	}
	res, err := s.lobbies.Kick(ctx, p.LobbyID, env.UserID, p.TargetID)
	if err != nil {
		s.logger.Error("kick failed", zap.String("lobby", p.LobbyID), zap.Error(err))
		return
	}
	s.bc.ToUser(ctx, env.UserID, "lobby:kick:result", res)
	if res.Success {
		s.bc.ToUser(ctx, p.TargetID, "lobby:kicked", map[string]any{"lobbyId": p.LobbyID})
		s.notifyLobby(ctx, p.LobbyID, "lobby:player:left", map[string]any{
			"lobbyId": p.LobbyID,
			"userId":  p.TargetID,
		})
	}
}

func (s *Subscriber) handleLobbyReady(ctx context.Context, env types.Envelope) {
	var p lobbyReadyPayload
	if !s.decode(env, &p) {
		return
	}
	res, err := s.lobbies.SetReady(ctx, p.LobbyID, env.UserID, p.Ready)
	if err != nil {
		s.logger.Error("set ready failed", zap.String("lobby", p.LobbyID), zap.Error(err))
		return
	}
	if res.Success {
		s.notifyLobby(ctx, p.LobbyID, "lobby:player:ready", map[string]any{
			"lobbyId": p.LobbyID,
			"userId":  env.UserID,
			"ready":   p.Ready,
		})
	} else {
		s.bc.ToUser(ctx, env.UserID, "lobby:ready:result", res)
	}
}

func (s *Subscriber) handleLobbyChat(ctx context.Context, env types.Envelope) {
	var p lobbyChatPayload
	if !s.decode(env, &p) {
		return
	}
	s.notifyLobby(ctx, p.LobbyID, "lobby:chat", map[string]any{
		"lobbyId":  p.LobbyID,
		"userId":   env.UserID,
		"username": env.Username,
		"message":  p.Message,
	})
}

// handleLobbyStart gates game creation: requester must be host, every
// non-host member ready, and at least MinStartCount members present.
func (s *Subscriber) handleLobbyStart(ctx context.Context, env types.Envelope) {
	var p lobbyRefPayload
	if !s.decode(env, &p) {
		return
	}
	data, found, err := s.lobbies.Data(ctx, p.LobbyID)
	if err != nil || !found {
		s.bc.ToUser(ctx, env.UserID, "lobby:start:result", lobby.Result{Reason: lobby.ReasonRoomNotFound})
		return
	}
	players, err := s.lobbies.Players(ctx, p.LobbyID)
	if err != nil {
		s.logger.Error("read lobby players failed", zap.String("lobby", p.LobbyID), zap.Error(err))
		return
	}
	if reason := startRefusal(players, env.UserID); reason != "" {
		s.bc.ToUser(ctx, env.UserID, "lobby:start:result", lobby.Result{Reason: reason})
		return
	}

	userIDs := make([]string, len(players))
	for i, member := range players {
		userIDs[i] = member.UserID
	}

	var gameID string
	switch data.GameType {
	case GameTypeRacer:
		gameID = p.LobbyID
		seeds := make([]racer.PlayerSeed, len(players))
		for i, member := range players {
			seeds[i] = racer.PlayerSeed{ID: member.UserID, Username: member.Username}
		}
		if err := s.races.CreateGame(gameID, racer.DefaultTrack(), seeds, defaultLaps); err != nil {
			s.logger.Error("create race failed", zap.String("lobby", p.LobbyID), zap.Error(err))
			s.bc.ToUser(ctx, env.UserID, "lobby:start:result", lobby.Result{Reason: "start_failed"})
			return
		}
		s.races.StartRace(gameID)
	default:
		sess, err := s.sessions.CreateSession(ctx, data.GameType, "classic", data.MaxPlayers, defaultMaxScore)
		if err != nil {
			s.logger.Error("create session failed", zap.String("lobby", p.LobbyID), zap.Error(err))
			s.bc.ToUser(ctx, env.UserID, "lobby:start:result", lobby.Result{Reason: "start_failed"})
			return
		}
		gameID = sess.ID
		for _, member := range players {
			s.sessions.AddPlayer(ctx, sess.ID, member.UserID, member.Username)
		}
		s.sessions.StartSession(ctx, sess.ID)
	}

	_ = s.lobbies.SetStatus(ctx, p.LobbyID, lobby.StatusStarting)
	s.bc.ToUsers(ctx, userIDs, "lobby:game:starting", map[string]any{
		"lobbyId":  p.LobbyID,
		"gameId":   gameID,
		"gameType": data.GameType,
	})
	if err := s.lobbies.Delete(ctx, p.LobbyID); err != nil {
		s.logger.Warn("delete lobby after start failed", zap.String("lobby", p.LobbyID), zap.Error(err))
	}
}

// startRefusal returns the reason a start request must be refused, or "".
func startRefusal(players []lobby.Player, requesterID string) string {
	if len(players) < lobby.MinStartCount {
		return "not_enough_players"
	}
	requesterIsHost := false
	for _, p := range players {
		if p.UserID == requesterID && p.IsHost {
			requesterIsHost = true
		}
		if !p.IsHost && !p.IsReady {
			return "players_not_ready"
		}
	}
	if !requesterIsHost {
		return lobby.ReasonNotHost
	}
	return ""
}

func (s *Subscriber) handleGameInput(env types.Envelope) {
	var p gameInputPayload
	if !s.decode(env, &p) {
		return
	}
	switch {
	case p.Direction != "":
		// Pong paddle input; unknown directions are dropped by the engine.
		s.sessions.HandleInput(p.SessionID, env.UserID, engine.Direction(p.Direction))
	case p.Checkpoint != nil:
		s.races.HandleCheckpoint(p.SessionID, env.UserID, *p.Checkpoint)
	case p.Position != nil:
		vel := racer.Vec2{}
		if p.Velocity != nil {
			vel = *p.Velocity
		}
		s.races.HandlePositionUpdate(p.SessionID, env.UserID, *p.Position, p.Rotation, vel)
	default:
		s.races.HandleInput(p.SessionID, env.UserID, engine.Input{
			Throttle: p.Throttle,
			Steering: p.Steering,
		})
	}
}

func (s *Subscriber) handleGameReady(env types.Envelope) {
	var p gameReadyPayload
	if !s.decode(env, &p) {
		return
	}
	s.sessions.MarkConnected(p.SessionID, env.UserID)
}

func (s *Subscriber) notifyLobby(ctx context.Context, lobbyID, msgType string, payload any) {
	ids, err := s.lobbies.UserIDs(ctx, lobbyID)
	if err != nil || len(ids) == 0 {
		return
	}
	s.bc.ToUsers(ctx, ids, msgType, payload)
}

func (s *Subscriber) decode(env types.Envelope, into any) bool {
	if len(env.Payload) == 0 {
		s.logger.Debug("empty payload", zap.String("type", env.Type))
		return false
	}
	if err := json.Unmarshal(env.Payload, into); err != nil {
		s.logger.Warn("bad payload", zap.String("type", env.Type), zap.Error(err))
		return false
	}
	return true
}
