package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SirAlabar/StarCendence-sub002/internal/broadcast"
	"github.com/SirAlabar/StarCendence-sub002/internal/engine"
	"github.com/SirAlabar/StarCendence-sub002/internal/persist"
)

const TickRate = 60 // Hz

// Manager owns the lifecycle of pong sessions. Each started session runs one
// goroutine that is the sole mutator of the session and its engine; inputs
// are funneled through the session inbox so they can never interleave with a
// tick.
type Manager struct {
	store  *Store
	repo   persist.GameRepo
	bc     *broadcast.Broadcaster
	logger *zap.Logger
	tick   time.Duration
}

func NewManager(store *Store, repo persist.GameRepo, bc *broadcast.Broadcaster, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		repo:   repo,
		bc:     bc,
		logger: logger.Named("session"),
		tick:   time.Second / TickRate,
	}
}

// SetTickInterval overrides the tick period. Tests use it to tighten loops.
func (m *Manager) SetTickInterval(d time.Duration) { m.tick = d }

// CreateSession allocates a persisted game record and the in-memory session.
// No engine exists yet; clients never own physics.
func (m *Manager) CreateSession(ctx context.Context, gameType, mode string, maxPlayers, maxScore int) (*Session, error) {
	record, err := m.repo.CreateGame(ctx, gameType, mode, maxPlayers, 2, maxScore)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:         uuid.NewString(),
		GameID:     record.ID,
		Type:       gameType,
		Mode:       mode,
		MaxPlayers: maxPlayers,
		MaxScore:   maxScore,
		Players:    make(map[string]*GamePlayer),
		status:     StatusWaiting,
		lastTick:   time.Now(),
		inbox:      make(chan sessionMsg, 64),
		done:       make(chan struct{}),
	}
	m.store.Store(s.ID, s)
	m.logger.Info("session created",
		zap.String("session", s.ID), zap.Uint("game", s.GameID), zap.String("type", gameType))
	return s, nil
}

// AddPlayer registers a player on a waiting session. Idempotent: re-adding an
// existing member is a no-op.
func (m *Manager) AddPlayer(ctx context.Context, sessionID, userID, username string) {
	s, exists := m.store.Get(sessionID)
	if !exists || s.Running() {
		return
	}
	if _, joined := s.Players[userID]; joined {
		return
	}
	s.Players[userID] = &GamePlayer{
		UserID:   userID,
		Username: username,
		JoinedAt: time.Now(),
	}
	s.order = append(s.order, userID)

	// Best-effort persistence; a failed write never blocks the session.
	if _, err := m.repo.AddPlayer(ctx, s.GameID, userID); err != nil {
		m.logger.Warn("persist add player failed",
			zap.String("session", sessionID), zap.String("user", userID), zap.Error(err))
	}
}

// StartSession marks the session playing and starts its tick task. With
// fewer than two players no engine is created and the session stalls in
// PLAYING with no physics.
func (m *Manager) StartSession(ctx context.Context, sessionID string) {
	s, exists := m.store.Get(sessionID)
	if !exists || s.Running() {
		return
	}
	s.setStarted()

	if err := m.repo.StartGame(ctx, s.GameID); err != nil {
		m.logger.Warn("persist start failed", zap.String("session", sessionID), zap.Error(err))
	}

	if len(s.order) >= 2 {
		s.game = engine.NewPong(s.order[0], s.order[1], s.MaxScore)
	} else {
		m.logger.Warn("session started without enough players, no engine",
			zap.String("session", sessionID), zap.Int("players", len(s.order)))
	}

	go m.run(s)
	m.logger.Info("session started", zap.String("session", sessionID))
}

// HandleInput forwards a direction input into the session's inbox. Unknown
// sessions are a no-op; late messages after teardown are expected.
func (m *Manager) HandleInput(sessionID, playerID string, dir engine.Direction) {
	s, exists := m.store.Get(sessionID)
	if !exists || !s.Running() {
		return
	}
	select {
	case s.inbox <- inputMsg{playerID: playerID, direction: dir}:
	default:
		m.logger.Debug("input dropped, session inbox full", zap.String("session", sessionID))
	}
}

// MarkConnected flags a player's connection live on its session.
func (m *Manager) MarkConnected(sessionID, playerID string) {
	s, exists := m.store.Get(sessionID)
	if !exists {
		return
	}
	if !s.Running() {
		if p, joined := s.Players[playerID]; joined {
			p.Connected = true
		}
		return
	}
	select {
	case s.inbox <- connectedMsg{playerID: playerID}:
	default:
	}
}

// EndSession stops the tick task. Idempotent: ending an unknown or already
// ended session is a no-op.
func (m *Manager) EndSession(sessionID string) {
	s, exists := m.store.Get(sessionID)
	if !exists {
		return
	}
	if !s.Running() {
		return
	}
	select {
	case s.inbox <- stopMsg{}:
	case <-s.done:
	}
}

// Done exposes the session's termination signal for tests and callers that
// need to wait for teardown.
func (m *Manager) Done(sessionID string) <-chan struct{} {
	s, exists := m.store.Get(sessionID)
	if !exists {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

// run is the session actor: sole owner of the session state. It consumes
// inputs and ticks until the game ends or a stop arrives.
func (m *Manager) run(s *Session) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	defer close(s.done)

	ctx := context.Background()
	for {
		select {
		case msg := <-s.inbox:
			switch v := msg.(type) {
			case inputMsg:
				if s.game != nil {
					s.game.HandleInput(v.playerID, engine.Input{Direction: v.direction})
				}
			case connectedMsg:
				if p, joined := s.Players[v.playerID]; joined {
					p.Connected = true
				}
			case stopMsg:
				m.finish(ctx, s, "")
				return
			}
		case <-ticker.C:
			if m.step(ctx, s) {
				return
			}
		}
	}
}

// step advances one tick. Returns true when the session ended.
func (m *Manager) step(ctx context.Context, s *Session) bool {
	tick := s.touch(time.Now())
	if s.game == nil {
		return false
	}

	events := s.game.Update(m.tick)

	// State goes out every tick regardless of events.
	m.bc.ToUsers(ctx, s.PlayerIDs(), "game:state", map[string]any{
		"sessionId": s.ID,
		"tick":      tick,
		"state":     s.game.Snapshot(),
	})

	for _, evt := range events {
		m.broadcastEvent(ctx, s, evt)
		if evt.Type == engine.EvtGoal {
			if p, joined := s.Players[evt.PlayerID]; joined {
				p.Score++
			}
		}
		if evt.Type == engine.EvtGameEnd {
			m.finish(ctx, s, evt.WinnerID)
			return true
		}
	}
	return false
}

func (m *Manager) broadcastEvent(ctx context.Context, s *Session, evt engine.Event) {
	m.bc.ToUsers(ctx, s.PlayerIDs(), "game:"+string(evt.Type), map[string]any{
		"sessionId": s.ID,
		"playerId":  evt.PlayerID,
		"scores":    evt.Scores,
	})
}

// finish is the terminal transition: persist the end, emit the final frame
// and leave the session for the reaper. Safe to reach from both the game-end
// event and an explicit stop.
func (m *Manager) finish(ctx context.Context, s *Session, winnerID string) {
	if !s.finishState(time.Now()) {
		return
	}

	if err := m.repo.EndGame(ctx, s.GameID); err != nil {
		m.logger.Warn("persist end failed", zap.String("session", s.ID), zap.Error(err))
	}

	winnerName := ""
	if winnerID == "" && s.game != nil {
		winnerID, _ = s.game.Winner()
	}
	if p, joined := s.Players[winnerID]; joined {
		winnerName = p.Username
	}
	scores := make(map[string]int, len(s.Players))
	for id, p := range s.Players {
		scores[id] = p.Score
	}
	m.bc.ToUsers(ctx, s.PlayerIDs(), "game:finished", map[string]any{
		"sessionId":  s.ID,
		"scores":     scores,
		"winnerId":   winnerID,
		"winnerName": winnerName,
	})
	m.logger.Info("session finished",
		zap.String("session", s.ID), zap.String("winner", winnerID))
}

// Reap runs one idle-session sweep.
func (m *Manager) Reap() {
	if removed := m.store.Cleanup(time.Now()); removed > 0 {
		m.logger.Info("reaped idle sessions", zap.Int("count", removed))
	}
}
