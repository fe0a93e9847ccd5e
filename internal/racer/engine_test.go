package racer

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/SirAlabar/StarCendence-sub002/internal/engine"
)

func newTestEngine(t *testing.T, laps int) (*Engine, func(time.Duration)) {
	t.Helper()
	e, err := NewEngine(DefaultTrack(), laps, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	now, advance := fakeClock(time.Now())
	e.now = now
	e.validator.now = now
	return e, advance
}

func startRacing(t *testing.T, e *Engine) {
	t.Helper()
	e.StartCountdown()
	evts := e.Update(time.Duration(CountdownSeconds+1) * time.Second)
	if len(evts) != 1 || evts[0].Type != engine.EvtRaceStart {
		t.Fatalf("expected race start, got %+v", evts)
	}
	if e.Status() != StatusRacing {
		t.Fatalf("status = %v, want racing", e.Status())
	}
}

// warp moves a player to a checkpoint without going through position
// validation, as the tests stand in for a trusted physics client.
func warp(e *Engine, playerID string, checkpoint int) {
	e.players[playerID].Position = e.checkpoints[checkpoint].Position
}

func TestAddPlayer_Limits(t *testing.T) {
	e, _ := newTestEngine(t, 3)

	for i := 0; i < MaxPlayers; i++ {
		id := string(rune('a' + i))
		if err := e.AddPlayer(id, id, SpawnSlots[i]); err != nil {
			t.Fatalf("AddPlayer %d: %v", i, err)
		}
	}
	if err := e.AddPlayer("a", "a", Vec2{}); err != ErrAlreadyJoined {
		t.Fatalf("duplicate join: got %v, want ErrAlreadyJoined", err)
	}
	if err := e.AddPlayer("extra", "extra", Vec2{}); err != ErrRaceFull {
		t.Fatalf("overflow join: got %v, want ErrRaceFull", err)
	}
}

func TestNewEngine_RequiresCheckpoints(t *testing.T) {
	if _, err := NewEngine(nil, 3, zap.NewNop()); err != ErrNoCheckpoints {
		t.Fatalf("got %v, want ErrNoCheckpoints", err)
	}
}

func TestCountdown(t *testing.T) {
	e, _ := newTestEngine(t, 3)
	e.AddPlayer("p1", "alice", SpawnSlots[0])
	e.StartCountdown()

	if e.Status() != StatusCountdown {
		t.Fatalf("status = %v, want countdown", e.Status())
	}
	evts := e.Update(time.Second)
	if len(evts) != 1 || evts[0].Type != engine.EvtCountdownTick {
		t.Fatalf("expected countdown tick, got %+v", evts)
	}
	if evts[0].Value <= 0 || evts[0].Value > CountdownSeconds {
		t.Fatalf("countdown value %v out of range", evts[0].Value)
	}

	evts = e.Update(time.Duration(CountdownSeconds) * time.Second)
	if len(evts) != 1 || evts[0].Type != engine.EvtRaceStart {
		t.Fatalf("expected race start, got %+v", evts)
	}
}

func TestOnCheckpointPassed_SkipRejected(t *testing.T) {
	e, _ := newTestEngine(t, 3)
	e.AddPlayer("p1", "alice", SpawnSlots[0])
	startRacing(t, e)

	// Standing right on checkpoint 2 does not excuse skipping 1.
	warp(e, "p1", 2)
	if evts := e.OnCheckpointPassed("p1", 2); evts != nil {
		t.Fatalf("skip accepted: %+v", evts)
	}
	if got := e.players["p1"].CheckpointIndex; got != 0 {
		t.Fatalf("checkpoint index advanced to %d on rejected pass", got)
	}
}

func TestOnCheckpointPassed_Progress(t *testing.T) {
	e, advance := newTestEngine(t, 3)
	e.AddPlayer("p1", "alice", SpawnSlots[0])
	startRacing(t, e)

	warp(e, "p1", 1)
	evts := e.OnCheckpointPassed("p1", 1)
	if len(evts) != 1 || evts[0].Type != engine.EvtCheckpoint || evts[0].Checkpoint != 1 {
		t.Fatalf("expected checkpoint event, got %+v", evts)
	}
	if e.players["p1"].CheckpointIndex != 1 {
		t.Fatalf("index = %d, want 1", e.players["p1"].CheckpointIndex)
	}

	// Same checkpoint again within the cooldown is dropped.
	warp(e, "p1", 2)
	if evts := e.OnCheckpointPassed("p1", 2); evts != nil {
		t.Fatalf("pass inside cooldown accepted: %+v", evts)
	}
	advance(CheckpointCooldown + time.Millisecond)
	if evts := e.OnCheckpointPassed("p1", 2); len(evts) != 1 {
		t.Fatalf("pass after cooldown rejected: %+v", evts)
	}

	// Too far from a checkpoint is dropped regardless of sequence.
	advance(CheckpointCooldown + time.Millisecond)
	e.players["p1"].Position = Vec2{X: 9999, Y: 9999}
	if evts := e.OnCheckpointPassed("p1", 3); evts != nil {
		t.Fatalf("distant pass accepted: %+v", evts)
	}
}

func driveLap(t *testing.T, e *Engine, advance func(time.Duration), playerID string) []engine.Event {
	t.Helper()
	var last []engine.Event
	for i := 1; i < len(e.checkpoints); i++ {
		advance(CheckpointCooldown + time.Millisecond)
		warp(e, playerID, i)
		if evts := e.OnCheckpointPassed(playerID, i); len(evts) == 0 {
			t.Fatalf("checkpoint %d rejected for %s", i, playerID)
		}
	}
	advance(CheckpointCooldown + time.Millisecond)
	warp(e, playerID, 0)
	last = e.OnCheckpointPassed(playerID, 0)
	if len(last) == 0 {
		t.Fatalf("finish line crossing rejected for %s", playerID)
	}
	return last
}

func TestLapCompletionAndFinish(t *testing.T) {
	e, advance := newTestEngine(t, 1)
	e.AddPlayer("p1", "alice", SpawnSlots[0])
	e.AddPlayer("p2", "bob", SpawnSlots[1])
	startRacing(t, e)

	// Crossing the start line before covering the track does nothing.
	warp(e, "p1", 0)
	if evts := e.OnCheckpointPassed("p1", 0); evts != nil {
		t.Fatalf("premature line crossing counted: %+v", evts)
	}

	evts := driveLap(t, e, advance, "p1")
	var sawLap, sawFinish bool
	for _, ev := range evts {
		switch ev.Type {
		case engine.EvtLapComplete:
			sawLap = true
			if ev.Value <= 0 {
				t.Fatalf("lap time %v not positive", ev.Value)
			}
		case engine.EvtPlayerFinished:
			sawFinish = true
		}
	}
	if !sawLap || !sawFinish {
		t.Fatalf("want lap-complete and player-finished, got %+v", evts)
	}

	p1 := e.players["p1"]
	if !p1.IsFinished || p1.RacePosition != 1 {
		t.Fatalf("p1 finished=%v position=%d", p1.IsFinished, p1.RacePosition)
	}
	if p1.BestLap <= 0 || len(p1.LapTimes) != 1 {
		t.Fatalf("lap times not recorded: best=%v times=%v", p1.BestLap, p1.LapTimes)
	}

	// The race keeps going until everyone is done.
	if got := e.Update(time.Second / TickRate); got != nil {
		for _, ev := range got {
			if ev.Type == engine.EvtRaceEnd {
				t.Fatalf("race ended with a player still on track")
			}
		}
	}

	driveLap(t, e, advance, "p2")
	evts = e.Update(time.Second / TickRate)
	if len(evts) != 1 || evts[0].Type != engine.EvtRaceEnd {
		t.Fatalf("expected race end, got %+v", evts)
	}
	if !e.IsFinished() {
		t.Fatalf("engine not finished after race end")
	}
	if winner, ok := e.Winner(); !ok || winner != "p1" {
		t.Fatalf("winner = %q ok=%v, want p1", winner, ok)
	}
	if e.players["p2"].RacePosition != 2 {
		t.Fatalf("p2 position = %d, want 2", e.players["p2"].RacePosition)
	}
}

func TestMultiLapResetsCheckpointIndex(t *testing.T) {
	e, advance := newTestEngine(t, 2)
	e.AddPlayer("p1", "alice", SpawnSlots[0])
	startRacing(t, e)

	driveLap(t, e, advance, "p1")
	p := e.players["p1"]
	if p.IsFinished {
		t.Fatalf("finished after one lap of two")
	}
	if p.CurrentLap != 2 || p.CheckpointIndex != 0 {
		t.Fatalf("lap=%d index=%d after lap one, want 2 and 0", p.CurrentLap, p.CheckpointIndex)
	}
}

func TestUpdatePlayerPosition_Validation(t *testing.T) {
	e, advance := newTestEngine(t, 3)
	e.AddPlayer("p1", "alice", SpawnSlots[0])
	startRacing(t, e)

	p := e.players["p1"]
	start := p.Position

	// A jump far beyond what one tick allows keeps the server position.
	advance(time.Second / TickRate)
	e.UpdatePlayerPosition("p1", Vec2{X: start.X + 1000, Y: start.Y}, 0, Vec2{})
	if p.Position != start {
		t.Fatalf("teleport applied: %+v", p.Position)
	}

	// A plausible move is applied, with velocity clamped.
	advance(time.Second)
	next := Vec2{X: start.X + 20, Y: start.Y}
	e.UpdatePlayerPosition("p1", next, 1.5, Vec2{X: MaxVelocity * 3, Y: 0})
	if p.Position != next {
		t.Fatalf("legal move dropped: %+v", p.Position)
	}
	if p.Rotation != 1.5 {
		t.Fatalf("rotation = %v", p.Rotation)
	}
	if p.Velocity.Len() > MaxVelocity+1e-9 {
		t.Fatalf("velocity %v not clamped", p.Velocity.Len())
	}
}

func TestOutOfBoundsRespawn(t *testing.T) {
	e, advance := newTestEngine(t, 3)
	e.AddPlayer("p1", "alice", SpawnSlots[0])
	startRacing(t, e)

	p := e.players["p1"]
	p.Position = Vec2{X: DefaultBounds.MaxX + 100, Y: 0}
	p.Velocity = Vec2{X: 30, Y: 0}
	p.CheckpointIndex = 3

	evts := e.Update(time.Second / TickRate)
	if len(evts) != 1 || evts[0].Type != engine.EvtRespawn || evts[0].PlayerID != "p1" {
		t.Fatalf("expected respawn event, got %+v", evts)
	}
	cp := e.checkpoints[3]
	want := Vec2{X: cp.Position.X, Y: cp.Position.Y + RespawnLift}
	if p.Position != want {
		t.Fatalf("respawned at %+v, want %+v", p.Position, want)
	}
	if p.Velocity != (Vec2{}) || !p.IsRespawning {
		t.Fatalf("velocity=%+v respawning=%v", p.Velocity, p.IsRespawning)
	}

	// Frozen while respawning, released after the cooldown.
	if evts := e.Update(time.Second / TickRate); evts != nil {
		t.Fatalf("respawning player triggered events: %+v", evts)
	}
	advance(RespawnCooldown + time.Millisecond)
	e.Update(time.Second / TickRate)
	if p.IsRespawning {
		t.Fatalf("still respawning after cooldown")
	}
}

func TestStandings(t *testing.T) {
	e, advance := newTestEngine(t, 3)
	e.AddPlayer("p1", "alice", SpawnSlots[0])
	e.AddPlayer("p2", "bob", SpawnSlots[1])
	e.AddPlayer("p3", "carol", SpawnSlots[2])
	startRacing(t, e)

	// p2 leads on lap, p3 leads p1 on checkpoint progress.
	driveLap(t, e, advance, "p2")
	advance(CheckpointCooldown + time.Millisecond)
	warp(e, "p3", 1)
	e.OnCheckpointPassed("p3", 1)

	s := e.Standings()
	if len(s) != 3 {
		t.Fatalf("standings size %d", len(s))
	}
	order := []string{s[0].PlayerID, s[1].PlayerID, s[2].PlayerID}
	want := []string{"p2", "p3", "p1"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("standings order %v, want %v", order, want)
		}
	}
	for i, st := range s {
		if st.Position != i+1 {
			t.Fatalf("position field %d at rank %d", st.Position, i)
		}
	}
}

func TestHandleInput_RateLimitAndClamp(t *testing.T) {
	e, advance := newTestEngine(t, 3)
	e.AddPlayer("p1", "alice", SpawnSlots[0])
	startRacing(t, e)

	e.HandleInput("p1", engine.Input{Throttle: 5, Steering: -5})
	p := e.players["p1"]
	if p.Throttle != 1 || p.Steering != -1 {
		t.Fatalf("axes not clamped: %v %v", p.Throttle, p.Steering)
	}

	for i := 0; i < InputRateLimit; i++ {
		e.HandleInput("p1", engine.Input{Throttle: 0.5})
	}
	// The window is saturated; this one must be dropped.
	e.HandleInput("p1", engine.Input{Throttle: -1})
	if p.Throttle != 0.5 {
		t.Fatalf("rate-limited input applied: %v", p.Throttle)
	}

	advance(2 * time.Second)
	e.HandleInput("p1", engine.Input{Throttle: -1})
	if p.Throttle != -1 {
		t.Fatalf("input after window reset dropped: %v", p.Throttle)
	}
}

func TestHandleInput_UnknownPlayerLeavesNoState(t *testing.T) {
	e, _ := newTestEngine(t, 3)
	e.AddPlayer("p1", "alice", SpawnSlots[0])
	startRacing(t, e)

	// Spoofed ids must not accumulate rate-limiter bookkeeping.
	for i := 0; i < 10; i++ {
		e.HandleInput("ghost", engine.Input{Throttle: 1})
	}
	if _, ok := e.validator.inputWindow["ghost"]; ok {
		t.Fatalf("rate window allocated for unknown player")
	}
	if n := len(e.validator.inputWindow); n != 0 {
		t.Fatalf("input windows tracked for %d players, want 0", n)
	}

	e.HandleInput("p1", engine.Input{Throttle: 1})
	if n := len(e.validator.inputWindow); n != 1 {
		t.Fatalf("input windows tracked for %d players, want 1", n)
	}
}
