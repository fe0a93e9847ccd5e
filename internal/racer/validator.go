package racer

import (
	"math"
	"time"
)

// Anti-cheat limits. Velocity is in track units per second.
const (
	MaxVelocity        = 60.0
	PositionTolerance  = 1.5
	InputRateLimit     = 120 // inputs per second per player
	CheckpointCooldown = 500 * time.Millisecond
)

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Sub(o Vec2) Vec2      { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Len() float64         { return math.Hypot(v.X, v.Y) }
func (v Vec2) Scale(s float64) Vec2 { return Vec2{v.X * s, v.Y * s} }

type Bounds struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// ValidationResult is produced by every anti-cheat check. Checks never fail
// hard; callers decide whether to drop or correct the offending value.
type ValidationResult struct {
	Valid     bool
	Reason    string
	Corrected *Vec2
}

func ok() ValidationResult { return ValidationResult{Valid: true} }

// Validator holds per-player timestamp bookkeeping for cooldown and rate
// checks. Each engine owns one; it is only touched from the owning tick
// goroutine.
type Validator struct {
	lastCheckpoint map[string]time.Time
	inputWindow    map[string]*rateWindow
	now            func() time.Time
}

type rateWindow struct {
	start time.Time
	count int
}

func NewValidator() *Validator {
	return &Validator{
		lastCheckpoint: make(map[string]time.Time),
		inputWindow:    make(map[string]*rateWindow),
		now:            time.Now,
	}
}

// ClampAxes forces raw input axes into their documented [-1, 1] ranges.
func ClampAxes(throttle, steering float64) (float64, float64) {
	return clamp(throttle, -1, 1), clamp(steering, -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ValidatePositionDelta rejects a reported position whose implied speed over
// dt exceeds the tolerated maximum. The corrected value is the prior
// position, i.e. the server keeps its last-good state.
func (v *Validator) ValidatePositionDelta(prev, next Vec2, dt time.Duration) ValidationResult {
	if dt <= 0 {
		dt = time.Second / TickRate
	}
	maxDist := MaxVelocity * dt.Seconds() * PositionTolerance
	if next.Sub(prev).Len() > maxDist {
		corrected := prev
		return ValidationResult{Reason: "teleport", Corrected: &corrected}
	}
	return ok()
}

// ClampVelocity caps a reported velocity at MaxVelocity, preserving
// direction. The second return reports whether clamping happened.
func (v *Validator) ClampVelocity(vel Vec2) (Vec2, bool) {
	speed := vel.Len()
	if speed <= MaxVelocity {
		return vel, false
	}
	return vel.Scale(MaxVelocity / speed), true
}

// ValidateCheckpoint enforces the per-player pass cooldown, the proximity
// requirement and the strict next-in-sequence rule. Index 0 is the
// start/finish line and is exempt from the sequence rule; lap accounting for
// it lives in the engine.
func (v *Validator) ValidateCheckpoint(playerID string, pos Vec2, cp Checkpoint, got, current, total int) ValidationResult {
	if pos.Sub(cp.Position).Len() > cp.Radius {
		return ValidationResult{Reason: "too_far"}
	}
	if last, seen := v.lastCheckpoint[playerID]; seen && v.now().Sub(last) < CheckpointCooldown {
		return ValidationResult{Reason: "cooldown"}
	}
	if got != 0 && got != (current+1)%total {
		return ValidationResult{Reason: "sequence"}
	}
	v.lastCheckpoint[playerID] = v.now()
	return ok()
}

// AllowInput rate-limits inputs to InputRateLimit per second per player.
func (v *Validator) AllowInput(playerID string) bool {
	now := v.now()
	w := v.inputWindow[playerID]
	if w == nil || now.Sub(w.start) >= time.Second {
		v.inputWindow[playerID] = &rateWindow{start: now, count: 1}
		return true
	}
	w.count++
	return w.count <= InputRateLimit
}

// IsOutOfBounds reports whether a position left the track bounds.
func (v *Validator) IsOutOfBounds(pos Vec2, b Bounds) bool {
	return pos.X < b.MinX || pos.X > b.MaxX || pos.Y < b.MinY || pos.Y > b.MaxY
}

// Forget drops a player's bookkeeping after leave/finish.
func (v *Validator) Forget(playerID string) {
	delete(v.lastCheckpoint, playerID)
	delete(v.inputWindow, playerID)
}
