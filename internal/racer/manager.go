package racer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SirAlabar/StarCendence-sub002/internal/broadcast"
	"github.com/SirAlabar/StarCendence-sub002/internal/engine"
)

var (
	ErrNoPlayersAdded = errors.New("no players could be added to race")
	ErrNotFound       = errors.New("race not found")
)

// StaleAfter is how long a never-started race may linger before cleanup.
const StaleAfter = 10 * time.Minute

type PlayerSeed struct {
	ID       string
	Username string
}

// race couples an engine with its inbox. Once the loop runs, the loop
// goroutine is the sole owner of the engine.
type race struct {
	id      string
	engine  *Engine
	inbox   chan raceMsg
	done    chan struct{}
	running bool
	created time.Time
}

type raceMsg interface{ isRaceMsg() }

type positionMsg struct {
	playerID string
	position Vec2
	rotation float64
	velocity Vec2
}

type checkpointMsg struct {
	playerID   string
	checkpoint int
}

type inputMsg struct {
	playerID string
	input    engine.Input
}

type joinMsg struct {
	playerID string
	username string
}

type leaveMsg struct{ playerID string }

type stopRaceMsg struct{}

func (positionMsg) isRaceMsg()   {}
func (checkpointMsg) isRaceMsg() {}
func (inputMsg) isRaceMsg()      {}
func (joinMsg) isRaceMsg()       {}
func (leaveMsg) isRaceMsg()      {}
func (stopRaceMsg) isRaceMsg()   {}

// Manager owns one tick loop per active race plus the registry of races.
type Manager struct {
	mu     sync.RWMutex
	races  map[string]*race
	bc     *broadcast.Broadcaster
	logger *zap.Logger
	tick   time.Duration
}

func NewManager(bc *broadcast.Broadcaster, logger *zap.Logger) *Manager {
	return &Manager{
		races:  make(map[string]*race),
		bc:     bc,
		logger: logger.Named("racer"),
		tick:   time.Second / TickRate,
	}
}

func (m *Manager) SetTickInterval(d time.Duration) { m.tick = d }

// CreateGame builds the engine and seats every player at a pre-assigned
// spawn slot. Failing to seat a single player is fatal: the engine is
// disposed and the caller gets an error.
func (m *Manager) CreateGame(id string, checkpoints []Checkpoint, players []PlayerSeed, totalLaps int) error {
	if len(players) == 0 || len(players) > MaxPlayers {
		return ErrNoPlayersAdded
	}
	eng, err := NewEngine(checkpoints, totalLaps, m.logger)
	if err != nil {
		return err
	}

	added := 0
	for i, seed := range players {
		if i >= MaxPlayers {
			break
		}
		if err := eng.AddPlayer(seed.ID, seed.Username, SpawnSlots[i]); err != nil {
			m.logger.Warn("could not seat player",
				zap.String("race", id), zap.String("player", seed.ID), zap.Error(err))
			continue
		}
		added++
	}
	if added == 0 {
		return ErrNoPlayersAdded
	}

	m.mu.Lock()
	m.races[id] = &race{
		id:      id,
		engine:  eng,
		inbox:   make(chan raceMsg, 128),
		done:    make(chan struct{}),
		created: time.Now(),
	}
	m.mu.Unlock()

	m.logger.Info("race created", zap.String("race", id), zap.Int("players", added))
	return nil
}

// StartRace begins the countdown and the fixed-rate tick loop.
func (m *Manager) StartRace(id string) bool {
	m.mu.Lock()
	r, exists := m.races[id]
	if !exists || r.running {
		m.mu.Unlock()
		return false
	}
	r.running = true
	m.mu.Unlock()

	r.engine.StartCountdown()
	go m.run(r)
	m.logger.Info("race started", zap.String("race", id))
	return true
}

func (m *Manager) get(id string) (*race, bool) {
	m.mu.RLock()
	r, exists := m.races[id]
	m.mu.RUnlock()
	return r, exists
}

// HandlePositionUpdate funnels a reported transform into the race loop.
// Unknown race ids are a no-op.
func (m *Manager) HandlePositionUpdate(id, playerID string, pos Vec2, rotation float64, vel Vec2) {
	m.post(id, positionMsg{playerID: playerID, position: pos, rotation: rotation, velocity: vel})
}

func (m *Manager) HandleCheckpoint(id, playerID string, checkpoint int) {
	m.post(id, checkpointMsg{playerID: playerID, checkpoint: checkpoint})
}

func (m *Manager) HandleInput(id, playerID string, in engine.Input) {
	m.post(id, inputMsg{playerID: playerID, input: in})
}

// JoinGame seats a late joiner. Before the loop starts the engine is still
// shared state and is mutated under the registry lock; afterwards the join
// goes through the inbox like every other message.
func (m *Manager) JoinGame(id, playerID, username string) error {
	m.mu.Lock()
	r, exists := m.races[id]
	if !exists {
		m.mu.Unlock()
		return ErrNotFound
	}
	if !r.running {
		err := r.engine.AddPlayer(playerID, username, m.spawnFor(r.engine))
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	select {
	case r.inbox <- joinMsg{playerID: playerID, username: username}:
		return nil
	case <-r.done:
		return ErrNotFound
	}
}

func (m *Manager) spawnFor(eng *Engine) Vec2 {
	slot := eng.PlayerCount()
	if slot >= MaxPlayers {
		slot = MaxPlayers - 1
	}
	return SpawnSlots[slot]
}

func (m *Manager) LeaveGame(id, playerID string) {
	m.post(id, leaveMsg{playerID: playerID})
}

func (m *Manager) StopRace(id string) {
	r, exists := m.get(id)
	if !exists || !r.running {
		return
	}
	select {
	case r.inbox <- stopRaceMsg{}:
	case <-r.done:
	}
}

func (m *Manager) post(id string, msg raceMsg) {
	r, exists := m.get(id)
	if !exists || !r.running {
		return
	}
	select {
	case r.inbox <- msg:
	default:
		m.logger.Debug("race inbox full, dropping message", zap.String("race", id))
	}
}

func (m *Manager) Done(id string) <-chan struct{} {
	r, exists := m.get(id)
	if !exists {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return r.done
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.races)
}

// run is the race actor loop.
func (m *Manager) run(r *race) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	defer close(r.done)
	defer m.remove(r.id)

	ctx := context.Background()
	for {
		select {
		case msg := <-r.inbox:
			switch v := msg.(type) {
			case positionMsg:
				r.engine.UpdatePlayerPosition(v.playerID, v.position, v.rotation, v.velocity)
			case checkpointMsg:
				events := r.engine.OnCheckpointPassed(v.playerID, v.checkpoint)
				m.broadcastEvents(ctx, r, events)
			case inputMsg:
				r.engine.HandleInput(v.playerID, v.input)
			case joinMsg:
				if err := r.engine.AddPlayer(v.playerID, v.username, m.spawnFor(r.engine)); err != nil {
					m.logger.Warn("late join refused",
						zap.String("race", r.id), zap.String("player", v.playerID), zap.Error(err))
				}
			case leaveMsg:
				r.engine.RemovePlayer(v.playerID)
				if r.engine.PlayerCount() == 0 {
					m.broadcastEvents(ctx, r, []engine.Event{{Type: engine.EvtRaceEnd}})
					return
				}
			case stopRaceMsg:
				m.broadcastEvents(ctx, r, []engine.Event{{Type: engine.EvtRaceEnd}})
				return
			}
		case <-ticker.C:
			events := r.engine.Update(m.tick)
			m.bc.ToUsers(ctx, r.engine.PlayerIDs(), "race:state", map[string]any{
				"gameId":    r.id,
				"state":     r.engine.Snapshot(),
				"standings": r.engine.Standings(),
			})
			m.broadcastEvents(ctx, r, events)
			if r.engine.IsFinished() {
				return
			}
		}
	}
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.races, id)
	m.mu.Unlock()
}

func (m *Manager) broadcastEvents(ctx context.Context, r *race, events []engine.Event) {
	for _, evt := range events {
		msgType := "race:" + string(evt.Type)
		m.bc.ToUsers(ctx, r.engine.PlayerIDs(), msgType, map[string]any{
			"gameId":     r.id,
			"playerId":   evt.PlayerID,
			"checkpoint": evt.Checkpoint,
			"lap":        evt.Lap,
			"value":      evt.Value,
		})
	}
}

// Cleanup removes races that were created but never started within
// StaleAfter. Running races terminate themselves.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for id, r := range m.races {
		if !r.running && now.Sub(r.created) > StaleAfter {
			delete(m.races, id)
			m.logger.Info("removed stale race", zap.String("race", id))
		}
	}
}
