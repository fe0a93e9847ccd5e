package racer

import (
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/SirAlabar/StarCendence-sub002/internal/engine"
)

var (
	ErrRaceFull      = errors.New("race is full")
	ErrAlreadyJoined = errors.New("player already in race")
	ErrNoCheckpoints = errors.New("track has no checkpoints")
)

const (
	MaxPlayers = 4
	TickRate   = 30 // Hz

	CountdownSeconds     = 3
	MinCheckpointsForLap = 10
	RespawnCooldown      = 3 * time.Second
	// Vertical offset applied when placing a respawned player back on track.
	RespawnLift = 5.0
)

// DefaultBounds is the reference track envelope; tracks may override it.
var DefaultBounds = Bounds{MinX: -400, MaxX: 400, MinY: -400, MaxY: 400}

// SpawnSlots are the pre-assigned grid positions for up to MaxPlayers.
var SpawnSlots = [MaxPlayers]Vec2{
	{X: -15, Y: 0},
	{X: -5, Y: 0},
	{X: 5, Y: 0},
	{X: 15, Y: 0},
}

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCountdown Status = "countdown"
	StatusRacing    Status = "racing"
	StatusFinished  Status = "finished"
)

type Checkpoint struct {
	Position Vec2    `json:"position"`
	Radius   float64 `json:"radius"`
}

type Player struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	Position        Vec2      `json:"position"`
	Rotation        float64   `json:"rotation"`
	Velocity        Vec2      `json:"velocity"`
	CurrentLap      int       `json:"currentLap"`
	CheckpointIndex int       `json:"checkpointIndex"`
	LapTimes        []float64 `json:"lapTimes"`
	BestLap         float64   `json:"bestLap"`
	IsFinished      bool      `json:"isFinished"`
	IsRespawning    bool      `json:"isRespawning"`
	RacePosition    int       `json:"racePosition"`
	Throttle        float64   `json:"throttle"`
	Steering        float64   `json:"steering"`

	lapCheckpoints int
	lapStartedAt   time.Time
	lastUpdateAt   time.Time
	respawnUntil   time.Time
	finishedAt     time.Time
}

// State is the wire snapshot of a race.
type State struct {
	Status      Status       `json:"raceStatus"`
	Countdown   int          `json:"countdown"`
	TotalLaps   int          `json:"totalLaps"`
	Players     []Player     `json:"players"`
	Checkpoints []Checkpoint `json:"checkpoints"`
}

// Engine is the authoritative race state machine. Not safe for concurrent
// use; the owning race loop is its sole caller.
type Engine struct {
	players     map[string]*Player
	order       []string
	checkpoints []Checkpoint
	totalLaps   int
	bounds      Bounds
	status      Status
	countdown   float64
	finishers   int
	validator   *Validator
	now         func() time.Time
	logger      *zap.Logger
}

func NewEngine(checkpoints []Checkpoint, totalLaps int, logger *zap.Logger) (*Engine, error) {
	if len(checkpoints) == 0 {
		return nil, ErrNoCheckpoints
	}
	if totalLaps < 1 {
		totalLaps = 1
	}
	return &Engine{
		players:     make(map[string]*Player),
		checkpoints: checkpoints,
		totalLaps:   totalLaps,
		bounds:      DefaultBounds,
		status:      StatusWaiting,
		validator:   NewValidator(),
		now:         time.Now,
		logger:      logger,
	}, nil
}

func (e *Engine) AddPlayer(id, username string, spawn Vec2) error {
	if _, exists := e.players[id]; exists {
		return ErrAlreadyJoined
	}
	if len(e.players) >= MaxPlayers {
		return ErrRaceFull
	}
	p := &Player{
		ID:         id,
		Username:   username,
		Position:   spawn,
		CurrentLap: 1,
	}
	if e.status == StatusRacing {
		now := e.now()
		p.lapStartedAt = now
		p.lastUpdateAt = now
	}
	e.players[id] = p
	e.order = append(e.order, id)
	return nil
}

func (e *Engine) RemovePlayer(id string) {
	delete(e.players, id)
	e.validator.Forget(id)
	for i, pid := range e.order {
		if pid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

func (e *Engine) StartCountdown() {
	if e.status != StatusWaiting {
		return
	}
	e.status = StatusCountdown
	e.countdown = CountdownSeconds
}

// Update advances the race by dt.
func (e *Engine) Update(dt time.Duration) []engine.Event {
	switch e.status {
	case StatusCountdown:
		return e.tickCountdown(dt)
	case StatusRacing:
		return e.tickRacing()
	default:
		return nil
	}
}

func (e *Engine) tickCountdown(dt time.Duration) []engine.Event {
	e.countdown -= dt.Seconds()
	if e.countdown > 0 {
		return []engine.Event{{Type: engine.EvtCountdownTick, Value: e.countdown}}
	}
	e.status = StatusRacing
	start := e.now()
	for _, p := range e.players {
		p.lapStartedAt = start
		p.lastUpdateAt = start
	}
	return []engine.Event{{Type: engine.EvtRaceStart}}
}

func (e *Engine) tickRacing() []engine.Event {
	var events []engine.Event
	now := e.now()

	for _, id := range e.order {
		p := e.players[id]
		if p.IsFinished {
			continue
		}
		if p.IsRespawning {
			if now.After(p.respawnUntil) {
				p.IsRespawning = false
			}
			continue
		}
		if e.validator.IsOutOfBounds(p.Position, e.bounds) {
			e.respawn(p, now)
			events = append(events, engine.Event{Type: engine.EvtRespawn, PlayerID: p.ID})
		}
	}

	if len(e.players) > 0 && e.allFinished() {
		e.status = StatusFinished
		events = append(events, engine.Event{Type: engine.EvtRaceEnd})
	}
	return events
}

// respawn puts the player back at their last validated checkpoint, lifted
// slightly off the surface, with velocity zeroed.
func (e *Engine) respawn(p *Player, now time.Time) {
	cp := e.checkpoints[p.CheckpointIndex%len(e.checkpoints)]
	p.Position = Vec2{X: cp.Position.X, Y: cp.Position.Y + RespawnLift}
	p.Velocity = Vec2{}
	p.IsRespawning = true
	p.respawnUntil = now.Add(RespawnCooldown)
}

func (e *Engine) allFinished() bool {
	for _, p := range e.players {
		if !p.IsFinished {
			return false
		}
	}
	return true
}

// OnCheckpointPassed applies a client-reported checkpoint pass. Violations
// are dropped and logged, never fatal.
func (e *Engine) OnCheckpointPassed(playerID string, checkpointIndex int) []engine.Event {
	p, exists := e.players[playerID]
	if !exists || p.IsFinished || e.status != StatusRacing {
		return nil
	}
	if checkpointIndex < 0 || checkpointIndex >= len(e.checkpoints) {
		return nil
	}

	cp := e.checkpoints[checkpointIndex]
	res := e.validator.ValidateCheckpoint(playerID, p.Position, cp, checkpointIndex, p.CheckpointIndex, len(e.checkpoints))
	if !res.Valid {
		e.logger.Debug("checkpoint rejected",
			zap.String("player", playerID),
			zap.Int("checkpoint", checkpointIndex),
			zap.String("reason", res.Reason))
		return nil
	}

	if checkpointIndex == 0 {
		if p.lapCheckpoints >= MinCheckpointsForLap {
			return e.completeLap(p)
		}
		// Crossing the line without enough checkpoints this lap is the
		// initial start crossing; ignore it.
		return nil
	}

	p.CheckpointIndex = checkpointIndex
	p.lapCheckpoints++
	return []engine.Event{{Type: engine.EvtCheckpoint, PlayerID: playerID, Checkpoint: checkpointIndex, Lap: p.CurrentLap}}
}

func (e *Engine) completeLap(p *Player) []engine.Event {
	now := e.now()
	lapTime := now.Sub(p.lapStartedAt).Seconds()
	p.LapTimes = append(p.LapTimes, lapTime)
	if p.BestLap == 0 || lapTime < p.BestLap {
		p.BestLap = lapTime
	}
	p.lapStartedAt = now
	p.lapCheckpoints = 0
	p.CurrentLap++

	events := []engine.Event{{Type: engine.EvtLapComplete, PlayerID: p.ID, Lap: p.CurrentLap - 1, Value: lapTime}}

	if p.CurrentLap > e.totalLaps {
		p.IsFinished = true
		p.finishedAt = now
		e.finishers++
		p.RacePosition = e.finishers
		events = append(events, engine.Event{Type: engine.EvtPlayerFinished, PlayerID: p.ID, Value: float64(p.RacePosition)})
	} else {
		p.CheckpointIndex = 0
	}
	return events
}

// UpdatePlayerPosition validates and, if clean, applies a client-reported
// transform. Teleports are dropped; excessive velocity is clamped.
func (e *Engine) UpdatePlayerPosition(playerID string, pos Vec2, rotation float64, vel Vec2) {
	p, exists := e.players[playerID]
	if !exists || p.IsFinished || e.status != StatusRacing {
		return
	}
	now := e.now()
	dt := now.Sub(p.lastUpdateAt)
	p.lastUpdateAt = now

	if res := e.validator.ValidatePositionDelta(p.Position, pos, dt); !res.Valid {
		e.logger.Debug("position update rejected",
			zap.String("player", playerID),
			zap.String("reason", res.Reason))
		return
	}
	clamped, _ := e.validator.ClampVelocity(vel)
	p.Position = pos
	p.Rotation = rotation
	p.Velocity = clamped
}

type Standing struct {
	PlayerID   string  `json:"playerId"`
	Username   string  `json:"username"`
	Position   int     `json:"position"`
	Lap        int     `json:"lap"`
	Checkpoint int     `json:"checkpoint"`
	Finished   bool    `json:"finished"`
	BestLap    float64 `json:"bestLap"`
}

// Standings ranks players: finishers first by finish time, then by lap,
// checkpoint progress and distance to the next checkpoint.
func (e *Engine) Standings() []Standing {
	players := make([]*Player, 0, len(e.players))
	for _, id := range e.order {
		players = append(players, e.players[id])
	}

	sort.SliceStable(players, func(i, j int) bool {
		a, b := players[i], players[j]
		if a.IsFinished != b.IsFinished {
			return a.IsFinished
		}
		if a.IsFinished && b.IsFinished {
			return a.finishedAt.Before(b.finishedAt)
		}
		if a.CurrentLap != b.CurrentLap {
			return a.CurrentLap > b.CurrentLap
		}
		if a.CheckpointIndex != b.CheckpointIndex {
			return a.CheckpointIndex > b.CheckpointIndex
		}
		return e.distanceToNext(a) < e.distanceToNext(b)
	})

	standings := make([]Standing, len(players))
	for i, p := range players {
		standings[i] = Standing{
			PlayerID:   p.ID,
			Username:   p.Username,
			Position:   i + 1,
			Lap:        p.CurrentLap,
			Checkpoint: p.CheckpointIndex,
			Finished:   p.IsFinished,
			BestLap:    p.BestLap,
		}
	}
	return standings
}

func (e *Engine) distanceToNext(p *Player) float64 {
	next := (p.CheckpointIndex + 1) % len(e.checkpoints)
	return p.Position.Sub(e.checkpoints[next].Position).Len()
}

// HandleInput clamps raw axes into range and rate-limits the sender. The
// clamped axes are kept as telemetry; position flows through
// UpdatePlayerPosition under its own checks.
func (e *Engine) HandleInput(playerID string, in engine.Input) {
	// Unknown senders are dropped before the rate limiter sees them, so a
	// spoofed id cannot grow the per-player bookkeeping.
	p, exists := e.players[playerID]
	if !exists {
		return
	}
	if !e.validator.AllowInput(playerID) {
		e.logger.Debug("input rate limit exceeded", zap.String("player", playerID))
		return
	}
	p.Throttle, p.Steering = ClampAxes(in.Throttle, in.Steering)
}

func (e *Engine) Snapshot() any {
	state := State{
		Status:      e.status,
		Countdown:   int(e.countdown + 0.999),
		TotalLaps:   e.totalLaps,
		Checkpoints: e.checkpoints,
		Players:     make([]Player, 0, len(e.order)),
	}
	for _, id := range e.order {
		state.Players = append(state.Players, *e.players[id])
	}
	return state
}

func (e *Engine) Status() Status   { return e.status }
func (e *Engine) IsFinished() bool { return e.status == StatusFinished }
func (e *Engine) PlayerCount() int { return len(e.players) }

func (e *Engine) PlayerIDs() []string {
	ids := make([]string, len(e.order))
	copy(ids, e.order)
	return ids
}

func (e *Engine) Winner() (string, bool) {
	if e.status != StatusFinished {
		return "", false
	}
	for _, p := range e.players {
		if p.RacePosition == 1 {
			return p.ID, true
		}
	}
	return "", false
}
