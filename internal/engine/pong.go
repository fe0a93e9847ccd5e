package engine

import (
	"math"
	"math/rand"
	"time"
)

// Reference units shared with every client renderer.
const (
	CanvasWidth  = 800.0
	CanvasHeight = 600.0
	BallRadius   = 8.0
	PaddleWidth  = 10.0
	PaddleHeight = 100.0
	PaddleSpeed  = 5.0

	InitialBallSpeed = 5.0
	MaxBallSpeed     = 15.0
	SpeedIncrement   = 0.5

	// Ticks the ball stays frozen after a goal before play resumes.
	GoalCooldownTicks = 30
)

type Ball struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

type Paddle struct {
	Y float64 `json:"y"`
}

type PongState struct {
	Ball    Ball   `json:"ball"`
	Paddle1 Paddle `json:"paddle1"`
	Paddle2 Paddle `json:"paddle2"`
	Scores  [2]int `json:"scores"`
}

// Pong is the authoritative two-player state machine. Not safe for concurrent
// use; the owning tick goroutine is its sole caller.
type Pong struct {
	state         PongState
	players       [2]string
	maxScore      int
	tick          uint64
	resetCooldown int
	finished      bool
	winner        string
	rng           *rand.Rand
}

func NewPong(player1, player2 string, maxScore int) *Pong {
	p := &Pong{
		players:  [2]string{player1, player2},
		maxScore: maxScore,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	p.state.Paddle1.Y = (CanvasHeight - PaddleHeight) / 2
	p.state.Paddle2.Y = (CanvasHeight - PaddleHeight) / 2
	p.resetBall()
	return p
}

// Update advances the simulation by one tick. The tick counter keeps
// advancing through the goal cooldown; only physics is skipped.
func (p *Pong) Update(_ time.Duration) []Event {
	p.tick++
	if p.finished {
		return nil
	}
	if p.resetCooldown > 0 {
		p.resetCooldown--
		return nil
	}

	var events []Event
	ball := &p.state.Ball
	ball.X += ball.DX
	ball.Y += ball.DY

	// Top/bottom walls.
	if ball.Y-BallRadius <= 0 {
		ball.Y = BallRadius
		ball.DY = math.Abs(ball.DY)
		events = append(events, Event{Type: EvtWallHit})
	} else if ball.Y+BallRadius >= CanvasHeight {
		ball.Y = CanvasHeight - BallRadius
		ball.DY = -math.Abs(ball.DY)
		events = append(events, Event{Type: EvtWallHit})
	}

	// Left paddle face sits at x=PaddleWidth, right at CanvasWidth-PaddleWidth.
	if ball.DX < 0 && ball.X-BallRadius <= PaddleWidth &&
		p.paddleCovers(p.state.Paddle1.Y, ball.Y) {
		ball.X = PaddleWidth + BallRadius
		p.bounceOffPaddle(p.state.Paddle1.Y, +1)
		events = append(events, Event{Type: EvtPaddleHit, PlayerID: p.players[0]})
	} else if ball.DX > 0 && ball.X+BallRadius >= CanvasWidth-PaddleWidth &&
		p.paddleCovers(p.state.Paddle2.Y, ball.Y) {
		ball.X = CanvasWidth - PaddleWidth - BallRadius
		p.bounceOffPaddle(p.state.Paddle2.Y, -1)
		events = append(events, Event{Type: EvtPaddleHit, PlayerID: p.players[1]})
	}

	// Goals. A left exit scores for player 2 and freezes the ball for the
	// cooldown window before the next serve.
	if ball.X <= 0 {
		p.state.Scores[1]++
		events = append(events, p.goalEvent(p.players[1]))
		p.resetBall()
		p.resetCooldown = GoalCooldownTicks
		events = p.maybeFinish(events)
	} else if ball.X >= CanvasWidth {
		p.state.Scores[0]++
		events = append(events, p.goalEvent(p.players[0]))
		p.resetBall()
		events = p.maybeFinish(events)
	}

	return events
}

func (p *Pong) paddleCovers(paddleY, ballY float64) bool {
	return ballY >= paddleY && ballY <= paddleY+PaddleHeight
}

// bounceOffPaddle reflects the ball away from the paddle, applies spin from
// the hit position and speeds the ball up toward MaxBallSpeed. The spin can
// push the raw magnitude past the cap, so the rescale always runs: it ratchets
// slow balls up and clamps fast ones back down to MaxBallSpeed.
func (p *Pong) bounceOffPaddle(paddleY float64, dir float64) {
	ball := &p.state.Ball
	hitPos := (ball.Y - paddleY) / PaddleHeight
	ball.DX = dir * math.Abs(ball.DX)
	ball.DY = (hitPos - 0.5) * 2 * InitialBallSpeed

	speed := math.Hypot(ball.DX, ball.DY)
	if speed == 0 {
		return
	}
	next := math.Min(speed+SpeedIncrement, MaxBallSpeed)
	scale := next / speed
	ball.DX *= scale
	ball.DY *= scale
}

func (p *Pong) goalEvent(scorer string) Event {
	return Event{Type: EvtGoal, PlayerID: scorer, Scores: p.state.Scores[:]}
}

func (p *Pong) maybeFinish(events []Event) []Event {
	for i, score := range p.state.Scores {
		if score >= p.maxScore {
			p.finished = true
			p.winner = p.players[i]
			events = append(events, Event{
				Type:     EvtGameEnd,
				WinnerID: p.winner,
				Scores:   p.state.Scores[:],
			})
			break
		}
	}
	return events
}

// resetBall re-centers the ball with a random launch angle within ±45° and a
// random horizontal direction.
func (p *Pong) resetBall() {
	angle := (p.rng.Float64() - 0.5) * math.Pi / 2
	dir := 1.0
	if p.rng.Intn(2) == 0 {
		dir = -1.0
	}
	p.state.Ball = Ball{
		X:  CanvasWidth / 2,
		Y:  CanvasHeight / 2,
		DX: dir * math.Cos(angle) * InitialBallSpeed,
		DY: math.Sin(angle) * InitialBallSpeed,
	}
}

// HandleInput moves the matching paddle one step, clamped to the canvas.
func (p *Pong) HandleInput(playerID string, in Input) {
	if p.finished {
		return
	}
	var paddle *Paddle
	switch playerID {
	case p.players[0]:
		paddle = &p.state.Paddle1
	case p.players[1]:
		paddle = &p.state.Paddle2
	default:
		return
	}

	switch in.Direction {
	case DirUp:
		paddle.Y -= PaddleSpeed
	case DirDown:
		paddle.Y += PaddleSpeed
	default:
		return
	}

	if paddle.Y < 0 {
		paddle.Y = 0
	}
	if paddle.Y > CanvasHeight-PaddleHeight {
		paddle.Y = CanvasHeight - PaddleHeight
	}
}

func (p *Pong) Snapshot() any      { return p.state }
func (p *Pong) State() PongState   { return p.state }
func (p *Pong) IsFinished() bool   { return p.finished }
func (p *Pong) Tick() uint64       { return p.tick }
func (p *Pong) Players() [2]string { return p.players }

func (p *Pong) Winner() (string, bool) {
	if !p.finished {
		return "", false
	}
	return p.winner, true
}
