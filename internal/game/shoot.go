// internal/game/shoot.go
package game

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Combat game constants, in board units.
const (
	ShootWidth       = 1200.0
	ShootHeight      = 800.0
	ActorRadius      = 20.0
	ActorHealth      = 100
	ActorMoveSpeed   = 8.0
	ProjectileRadius = 5.0
	ProjectileSpeed  = 12.0
	ProjectileDamage = 10
	DashDistance     = 150.0
	FireCooldown     = 300 * time.Millisecond
	DashCooldown     = 2 * time.Second
	DefaultMapID     = "arena"
)

// Maps lists the static obstacle layouts by id. Spawn points stay clear on every map.
var Maps = map[string][]Rect{
	"arena": {
		{X: 550, Y: 325, W: 100, H: 150},
		{X: 300, Y: 150, W: 60, H: 60},
		{X: 840, Y: 150, W: 60, H: 60},
		{X: 300, Y: 590, W: 60, H: 60},
		{X: 840, Y: 590, W: 60, H: 60},
	},
	"pillars": {
		{X: 380, Y: 100, W: 40, H: 220},
		{X: 380, Y: 480, W: 40, H: 220},
		{X: 780, Y: 100, W: 40, H: 220},
		{X: 780, Y: 480, W: 40, H: 220},
	},
	"open": {},
}

// MapIDs returns the known map ids in a stable order.
func MapIDs() []string {
	ids := make([]string, 0, len(Maps))
	for id := range Maps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Actor is one player's combatant.
type Actor struct {
	PlayerID uuid.UUID `json:"playerId"`
	Pos      Vec       `json:"pos"`
	Facing   Vec       `json:"facing"`
	Radius   float64   `json:"radius"`
	Health   int       `json:"health"`
	Color    string    `json:"color,omitempty"`

	// Remaining cooldowns in milliseconds, filled in for participants only.
	FireCooldownMs int64 `json:"fireCooldownMs,omitempty"`
	DashCooldownMs int64 `json:"dashCooldownMs,omitempty"`

	lastFire time.Time
	lastDash time.Time
}

// Projectile is a shot in flight.
type Projectile struct {
	ID     int     `json:"id"`
	Owner  int     `json:"owner"`
	Pos    Vec     `json:"pos"`
	Vel    Vec     `json:"vel"`
	Radius float64 `json:"radius"`
}

// ShootState is the authoritative combat game simulation.
type ShootState struct {
	Width       float64      `json:"width"`
	Height      float64      `json:"height"`
	MapID       string       `json:"mapId"`
	Obstacles   []Rect       `json:"obstacles"`
	Actors      [2]Actor     `json:"actors"`
	Projectiles []Projectile `json:"projectiles"`

	nextProjectile int
}

func (*ShootState) gameState() {}

// Action is one player-action command. Move is a direction, not a distance.
type Action struct {
	Move Vec  `json:"move"`
	Aim  *Vec `json:"aim,omitempty"`
	Fire bool `json:"fire"`
	Dash bool `json:"dash"`
}

// NewShootState places both actors on the chosen map, facing each other.
func NewShootState(players [2]uuid.UUID, configs [2]PlayerConfig, mapID string) *ShootState {
	obstacles, ok := Maps[mapID]
	if !ok {
		mapID = DefaultMapID
		obstacles = Maps[DefaultMapID]
	}
	s := &ShootState{
		Width:     ShootWidth,
		Height:    ShootHeight,
		MapID:     mapID,
		Obstacles: append([]Rect(nil), obstacles...),
	}
	spawns := [2]Vec{{100, ShootHeight / 2}, {ShootWidth - 100, ShootHeight / 2}}
	facing := [2]Vec{{1, 0}, {-1, 0}}
	for i := range s.Actors {
		s.Actors[i] = Actor{
			PlayerID: players[i],
			Pos:      spawns[i],
			Facing:   facing[i],
			Radius:   ActorRadius,
			Health:   ActorHealth,
			Color:    configs[i].Color,
		}
	}
	return s
}

func (s *ShootState) blocked(pos Vec, radius float64) bool {
	for _, o := range s.Obstacles {
		if o.CircleIntersects(pos, radius) {
			return true
		}
	}
	return false
}

func (s *ShootState) clampToBoard(pos Vec, radius float64) Vec {
	return Vec{clamp(pos.X, radius, s.Width-radius), clamp(pos.Y, radius, s.Height-radius)}
}

// Apply executes a player's action at time now. Movement and dash are
// clamped to the board and do not enter obstacles; fire and dash are
// ignored while on cooldown.
func (s *ShootState) Apply(slot int, a Action, now time.Time) {
	actor := &s.Actors[slot]

	if dir := a.Move.Unit(); !dir.IsZero() {
		actor.Facing = dir
		s.moveActor(actor, dir.Scale(ActorMoveSpeed))
	}
	if a.Aim != nil && !a.Aim.IsZero() {
		actor.Facing = a.Aim.Unit()
	}

	if a.Dash && now.Sub(actor.lastDash) >= DashCooldown {
		actor.lastDash = now
		s.moveActor(actor, actor.Facing.Scale(DashDistance))
	}

	if a.Fire && now.Sub(actor.lastFire) >= FireCooldown {
		actor.lastFire = now
		s.nextProjectile++
		s.Projectiles = append(s.Projectiles, Projectile{
			ID:     s.nextProjectile,
			Owner:  slot,
			Pos:    actor.Pos.Add(actor.Facing.Scale(actor.Radius + ProjectileRadius + 1)),
			Vel:    actor.Facing.Scale(ProjectileSpeed),
			Radius: ProjectileRadius,
		})
	}
}

// moveActor shifts an actor by delta, stopping short of obstacles in
// coarse steps.
func (s *ShootState) moveActor(actor *Actor, delta Vec) {
	steps := int(math.Ceil(delta.Len() / ActorMoveSpeed))
	if steps < 1 {
		steps = 1
	}
	step := delta.Scale(1 / float64(steps))
	for i := 0; i < steps; i++ {
		next := s.clampToBoard(actor.Pos.Add(step), actor.Radius)
		if s.blocked(next, actor.Radius) {
			return
		}
		actor.Pos = next
	}
}

// Step advances projectiles one tick. It returns the winning slot when a hit
// depletes an actor's health, or -1.
func (s *ShootState) Step() int {
	kept := s.Projectiles[:0]
	winner := -1
	for _, p := range s.Projectiles {
		p.Pos = p.Pos.Add(p.Vel)
		if p.Pos.X < 0 || p.Pos.X > s.Width || p.Pos.Y < 0 || p.Pos.Y > s.Height {
			continue
		}
		if s.blocked(p.Pos, p.Radius) {
			continue
		}
		target := 1 - p.Owner
		victim := &s.Actors[target]
		if victim.Pos.Dist(p.Pos) <= victim.Radius+p.Radius {
			victim.Health -= ProjectileDamage
			if victim.Health <= 0 {
				victim.Health = 0
				winner = p.Owner
				break
			}
			continue
		}
		kept = append(kept, p)
	}
	if winner >= 0 {
		s.Projectiles = nil
		return winner
	}
	s.Projectiles = kept
	return -1
}

// ShootUpdate is the per-tick shoot-update payload.
type ShootUpdate struct {
	RoomID      uuid.UUID    `json:"roomId"`
	Actors      [2]Actor     `json:"actors"`
	Projectiles []Projectile `json:"projectiles"`
}

func (s *ShootState) update(roomID uuid.UUID, spectator bool, now time.Time) ShootUpdate {
	u := ShootUpdate{
		RoomID:      roomID,
		Actors:      s.Actors,
		Projectiles: append([]Projectile{}, s.Projectiles...),
	}
	if !spectator {
		for i := range u.Actors {
			u.Actors[i].FireCooldownMs = remaining(u.Actors[i].lastFire, FireCooldown, now)
			u.Actors[i].DashCooldownMs = remaining(u.Actors[i].lastDash, DashCooldown, now)
		}
	}
	return u
}

func remaining(last time.Time, cooldown time.Duration, now time.Time) int64 {
	left := cooldown - now.Sub(last)
	if left <= 0 {
		return 0
	}
	return left.Milliseconds()
}
