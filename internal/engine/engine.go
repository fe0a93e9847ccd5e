package engine

import "time"

type Direction string

const (
	DirUp   Direction = "up"
	DirDown Direction = "down"
	DirNone Direction = "none"
)

// Input carries one client input sample. Pong uses Direction; the racer
// variant reads the analog axes.
type Input struct {
	Direction Direction
	Throttle  float64
	Steering  float64
}

type EventType string

const (
	EvtWallHit        EventType = "wall-hit"
	EvtPaddleHit      EventType = "paddle-hit"
	EvtGoal           EventType = "goal"
	EvtGameEnd        EventType = "game-end"
	EvtCountdownTick  EventType = "countdown-tick"
	EvtRaceStart      EventType = "race-start"
	EvtCheckpoint     EventType = "checkpoint"
	EvtLapComplete    EventType = "lap-complete"
	EvtRespawn        EventType = "respawn"
	EvtPlayerFinished EventType = "player-finished"
	EvtRaceEnd        EventType = "race-end"
)

// Event is one domain event emitted by an engine update. Only the fields
// relevant to Type are set; dispatch sites switch on Type.
type Event struct {
	Type       EventType
	PlayerID   string
	WinnerID   string
	Scores     []int
	Checkpoint int
	Lap        int
	Value      float64
}

// Game is the capability contract shared by every engine variant. The tick
// task that owns a session is the sole caller of Update and HandleInput.
type Game interface {
	Update(dt time.Duration) []Event
	HandleInput(playerID string, in Input)
	Snapshot() any
	IsFinished() bool
	Winner() (string, bool)
}
