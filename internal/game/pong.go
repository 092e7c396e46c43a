// internal/game/pong.go
package game

import (
	"math"
	"math/rand"

	"github.com/google/uuid"
)

// Paddle game constants, in board units.
const (
	PongWidth          = 1200.0
	PongHeight         = 800.0
	PaddleWidth        = 20.0
	PaddleHeight       = 120.0
	PaddleMargin       = 30.0
	BallRadius         = 10.0
	BallSpeed          = 8.0
	SpinFactor         = 4.0
	MaxBallSpeedY      = BallSpeed
	DefaultMaxScore    = 5
	DefaultPaddleSpeed = 10.0
	MinPaddleSpeed     = 4.0
	MaxPaddleSpeed     = 20.0
)

// Direction is a paddle-move command.
type Direction string

const (
	DirUp   Direction = "up"
	DirDown Direction = "down"
	DirStop Direction = "stop"
)

// Ball is the paddle game ball.
type Ball struct {
	Pos    Vec     `json:"pos"`
	Vel    Vec     `json:"vel"`
	Radius float64 `json:"radius"`
}

// Paddle is one player's paddle. Y is the top edge.
type Paddle struct {
	PlayerID  uuid.UUID `json:"playerId"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Width     float64   `json:"width"`
	Height    float64   `json:"height"`
	Speed     float64   `json:"speed,omitempty"`
	Color     string    `json:"color,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

func (p *Paddle) rect() Rect {
	return Rect{X: p.X, Y: p.Y, W: p.Width, H: p.Height}
}

// PongState is the authoritative paddle game simulation.
type PongState struct {
	Width    float64   `json:"width"`
	Height   float64   `json:"height"`
	Ball     Ball      `json:"ball"`
	Paddles  [2]Paddle `json:"paddles"`
	Score    [2]int    `json:"score"`
	MaxScore int       `json:"maxScore"`

	rng *rand.Rand
}

func (*PongState) gameState() {}

// NewPongState lays out the board from both players' configs. The ball rests
// at the center with zero velocity until Kickoff.
func NewPongState(players [2]uuid.UUID, configs [2]PlayerConfig, maxScore int, seed int64) *PongState {
	if maxScore <= 0 {
		maxScore = DefaultMaxScore
	}
	s := &PongState{
		Width:    PongWidth,
		Height:   PongHeight,
		Ball:     Ball{Pos: Vec{PongWidth / 2, PongHeight / 2}, Radius: BallRadius},
		MaxScore: maxScore,
		rng:      rand.New(rand.NewSource(seed)),
	}
	xs := [2]float64{PaddleMargin, PongWidth - PaddleMargin - PaddleWidth}
	for i := range s.Paddles {
		s.Paddles[i] = Paddle{
			PlayerID: players[i],
			X:        xs[i],
			Y:        (PongHeight - PaddleHeight) / 2,
			Width:    PaddleWidth,
			Height:   PaddleHeight,
			Speed:    configs[i].Speed,
			Color:    configs[i].Color,
		}
	}
	return s
}

// Kickoff serves the ball from the center toward a random side.
func (s *PongState) Kickoff() {
	s.serve(s.rng.Intn(2) == 0)
}

// serve resets the ball at the center, heading left or right at an angle
// within 45 degrees of horizontal.
func (s *PongState) serve(toLeft bool) {
	angle := (s.rng.Float64()*2 - 1) * math.Pi / 4
	vx := math.Cos(angle) * BallSpeed
	if toLeft {
		vx = -vx
	}
	s.Ball.Pos = Vec{s.Width / 2, s.Height / 2}
	s.Ball.Vel = Vec{vx, math.Sin(angle) * BallSpeed}
}

// Move shifts a paddle one step and clamps it to the board.
func (s *PongState) Move(slot int, dir Direction) {
	p := &s.Paddles[slot]
	switch dir {
	case DirUp:
		p.Y -= p.Speed
	case DirDown:
		p.Y += p.Speed
	}
	p.Direction = dir
	p.Y = clamp(p.Y, 0, s.Height-p.Height)
}

// Step advances the ball one tick. It returns the slot that scored, or -1,
// and whether that point ended the game.
func (s *PongState) Step() (scorer int, over bool) {
	b := &s.Ball
	b.Pos = b.Pos.Add(b.Vel)

	if b.Pos.Y-b.Radius <= 0 {
		b.Pos.Y = b.Radius
		b.Vel.Y = math.Abs(b.Vel.Y)
	} else if b.Pos.Y+b.Radius >= s.Height {
		b.Pos.Y = s.Height - b.Radius
		b.Vel.Y = -math.Abs(b.Vel.Y)
	}

	left, right := &s.Paddles[0], &s.Paddles[1]
	if b.Vel.X < 0 && left.rect().CircleIntersects(b.Pos, b.Radius) {
		b.Pos.X = left.X + left.Width + b.Radius
		b.Vel.X = math.Abs(b.Vel.X)
		b.Vel.Y = clamp(b.Vel.Y+s.spin(left), -MaxBallSpeedY, MaxBallSpeedY)
	} else if b.Vel.X > 0 && right.rect().CircleIntersects(b.Pos, b.Radius) {
		b.Pos.X = right.X - b.Radius
		b.Vel.X = -math.Abs(b.Vel.X)
		b.Vel.Y = clamp(b.Vel.Y+s.spin(right), -MaxBallSpeedY, MaxBallSpeedY)
	}

	switch {
	case b.Pos.X < 0:
		scorer = 1
	case b.Pos.X > s.Width:
		scorer = 0
	default:
		return -1, false
	}

	s.Score[scorer]++
	if s.Score[scorer] >= s.MaxScore {
		b.Vel = Vec{}
		b.Pos = Vec{s.Width / 2, s.Height / 2}
		return scorer, true
	}
	// The conceding side receives the next serve.
	s.serve(scorer == 1)
	return scorer, false
}

// spin is proportional to how far from the paddle center the ball struck.
func (s *PongState) spin(p *Paddle) float64 {
	center := p.Y + p.Height/2
	offset := (s.Ball.Pos.Y - center) / (p.Height / 2)
	return clamp(offset, -1, 1) * SpinFactor
}

// PongUpdate is the per-tick pong-update payload.
type PongUpdate struct {
	RoomID  uuid.UUID `json:"roomId"`
	Ball    Ball      `json:"ball"`
	Paddles [2]Paddle `json:"paddles"`
	Score   Score     `json:"score"`
}

// Score is a two-player score line.
type Score struct {
	Player1 int `json:"player1"`
	Player2 int `json:"player2"`
}

func (s *PongState) update(roomID uuid.UUID, spectator bool) PongUpdate {
	u := PongUpdate{
		RoomID:  roomID,
		Ball:    s.Ball,
		Paddles: s.Paddles,
		Score:   Score{Player1: s.Score[0], Player2: s.Score[1]},
	}
	if spectator {
		for i := range u.Paddles {
			u.Paddles[i].Speed = 0
			u.Paddles[i].Color = ""
			u.Paddles[i].Direction = ""
		}
	}
	return u
}
