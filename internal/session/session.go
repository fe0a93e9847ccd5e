package session

import (
	"sync"
	"time"

	"github.com/SirAlabar/StarCendence-sub002/internal/engine"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

type GamePlayer struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Connected bool      `json:"connected"`
	Score     int       `json:"score"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Session is one running game instance. The engine, players and join order
// are owned by the session's tick goroutine once StartSession has run; other
// goroutines communicate through the inbox only. The lifecycle fields below
// mu are also read by the reaper and the ops surface, so they go through the
// session lock.
type Session struct {
	ID         string
	GameID     uint // persisted game record
	Type       string
	Mode       string
	MaxPlayers int
	MaxScore   int

	Players map[string]*GamePlayer

	mu       sync.RWMutex
	status   Status
	running  bool
	tick     uint64
	lastTick time.Time
	ended    bool

	order []string // join order; first two seats get the engine
	game  engine.Game
	inbox chan sessionMsg
	done  chan struct{}
}

// sessionMsg is the sum of messages a session's tick goroutine consumes.
type sessionMsg interface{ isSessionMsg() }

type inputMsg struct {
	playerID  string
	direction engine.Direction
}

type connectedMsg struct{ playerID string }

type stopMsg struct{}

func (inputMsg) isSessionMsg()     {}
func (connectedMsg) isSessionMsg() {}
func (stopMsg) isSessionMsg()      {}

// PlayerIDs returns the members in join order.
func (s *Session) PlayerIDs() []string {
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Session) Tick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

func (s *Session) LastTick() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTick
}

// setStarted is the waiting -> playing transition.
func (s *Session) setStarted() {
	s.mu.Lock()
	s.status = StatusPlaying
	s.running = true
	s.mu.Unlock()
}

// touch records one tick and returns the new tick count.
func (s *Session) touch(now time.Time) uint64 {
	s.mu.Lock()
	s.tick++
	s.lastTick = now
	tick := s.tick
	s.mu.Unlock()
	return tick
}

// finishState performs the terminal transition exactly once; the second and
// later calls report false.
func (s *Session) finishState(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	s.ended = true
	s.running = false
	s.status = StatusFinished
	s.lastTick = now
	return true
}
