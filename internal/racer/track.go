package racer

import "math"

const (
	trackCheckpoints        = 12
	trackRadiusX            = 300.0
	trackRadiusY            = 200.0
	DefaultCheckpointRadius = 10.0
)

// DefaultTrack lays trackCheckpoints checkpoints on an oval inside
// DefaultBounds, index 0 being the start/finish line.
func DefaultTrack() []Checkpoint {
	checkpoints := make([]Checkpoint, trackCheckpoints)
	for i := range checkpoints {
		angle := 2 * math.Pi * float64(i) / trackCheckpoints
		checkpoints[i] = Checkpoint{
			Position: Vec2{
				X: math.Cos(angle) * trackRadiusX,
				Y: math.Sin(angle) * trackRadiusY,
			},
			Radius: DefaultCheckpointRadius,
		}
	}
	return checkpoints
}
