// internal/game/shoot_test.go
package game

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShoot(mapID string) *ShootState {
	return NewShootState([2]uuid.UUID{uuid.New(), uuid.New()}, [2]PlayerConfig{}, mapID)
}

func TestShootUnknownMapFallsBack(t *testing.T) {
	s := newTestShoot("nowhere")
	assert.Equal(t, DefaultMapID, s.MapID)
	assert.Len(t, s.Obstacles, len(Maps[DefaultMapID]))
	assert.Equal(t, ActorHealth, s.Actors[0].Health)
	assert.Equal(t, []string{"arena", "open", "pillars"}, MapIDs())
}

func TestSpawnsAreClearOnEveryMap(t *testing.T) {
	for _, id := range MapIDs() {
		s := newTestShoot(id)
		for _, a := range s.Actors {
			assert.False(t, s.blocked(a.Pos, a.Radius), "map %s", id)
		}
	}
}

func TestOwnProjectileNeverDamages(t *testing.T) {
	s := newTestShoot("open")
	s.Projectiles = []Projectile{{
		Owner:  0,
		Pos:    s.Actors[0].Pos,
		Vel:    Vec{0, 1},
		Radius: ProjectileRadius,
	}}

	assert.Equal(t, -1, s.Step())
	assert.Equal(t, ActorHealth, s.Actors[0].Health)
	assert.Len(t, s.Projectiles, 1)
}

func TestProjectileHitAppliesDamage(t *testing.T) {
	s := newTestShoot("open")
	target := s.Actors[1].Pos
	s.Projectiles = []Projectile{{
		Owner:  0,
		Pos:    Vec{target.X - 30, target.Y},
		Vel:    Vec{ProjectileSpeed, 0},
		Radius: ProjectileRadius,
	}}

	assert.Equal(t, -1, s.Step())
	assert.Equal(t, ActorHealth-ProjectileDamage, s.Actors[1].Health)
	assert.Empty(t, s.Projectiles, "a projectile is consumed by its hit")
}

func TestLethalHitEndsAndClearsProjectiles(t *testing.T) {
	s := newTestShoot("open")
	s.Actors[0].Health = ProjectileDamage
	target := s.Actors[0].Pos
	s.Projectiles = []Projectile{
		{Owner: 1, Pos: Vec{target.X + 30, target.Y}, Vel: Vec{-ProjectileSpeed, 0}, Radius: ProjectileRadius},
		{Owner: 0, Pos: Vec{600, 100}, Vel: Vec{ProjectileSpeed, 0}, Radius: ProjectileRadius},
		{Owner: 1, Pos: Vec{600, 700}, Vel: Vec{-ProjectileSpeed, 0}, Radius: ProjectileRadius},
	}

	assert.Equal(t, 1, s.Step())
	assert.Equal(t, 0, s.Actors[0].Health)
	assert.Empty(t, s.Projectiles)
}

func TestProjectilesStopAtObstaclesAndBounds(t *testing.T) {
	s := newTestShoot("arena")
	block := Maps["arena"][0]
	s.Projectiles = []Projectile{
		{Owner: 0, Pos: Vec{block.X - 8, block.Y + 10}, Vel: Vec{ProjectileSpeed, 0}, Radius: ProjectileRadius},
		{Owner: 0, Pos: Vec{5, 50}, Vel: Vec{-ProjectileSpeed, 0}, Radius: ProjectileRadius},
		{Owner: 0, Pos: Vec{600, 50}, Vel: Vec{ProjectileSpeed, 0}, Radius: ProjectileRadius},
	}

	s.Step()
	require.Len(t, s.Projectiles, 1)
	assert.Equal(t, Vec{600 + ProjectileSpeed, 50}, s.Projectiles[0].Pos)
}

func TestFireCooldown(t *testing.T) {
	s := newTestShoot("open")
	t0 := time.Unix(1000, 0)

	s.Apply(0, Action{Fire: true}, t0)
	require.Len(t, s.Projectiles, 1)
	p := s.Projectiles[0]
	assert.Equal(t, 0, p.Owner)
	assert.Greater(t, p.Vel.X, 0.0, "fires along facing")
	assert.False(t, s.Actors[0].Pos.Dist(p.Pos) <= s.Actors[0].Radius, "spawns outside the firer")

	s.Apply(0, Action{Fire: true}, t0.Add(100*time.Millisecond))
	assert.Len(t, s.Projectiles, 1)

	s.Apply(0, Action{Fire: true}, t0.Add(FireCooldown))
	assert.Len(t, s.Projectiles, 2)

	s.Apply(1, Action{Fire: true, Aim: &Vec{0, 1}}, t0)
	require.Len(t, s.Projectiles, 3)
	assert.Equal(t, Vec{0, ProjectileSpeed}, s.Projectiles[2].Vel)
}

func TestDashCooldownAndClamp(t *testing.T) {
	s := newTestShoot("open")
	t0 := time.Unix(1000, 0)
	start := s.Actors[0].Pos

	s.Apply(0, Action{Dash: true}, t0)
	assert.InDelta(t, start.X+DashDistance, s.Actors[0].Pos.X, 1e-6)

	s.Apply(0, Action{Dash: true}, t0.Add(time.Second))
	assert.InDelta(t, start.X+DashDistance, s.Actors[0].Pos.X, 1e-6, "still cooling down")

	s.Actors[0].Facing = Vec{-1, 0}
	s.Apply(0, Action{Dash: true}, t0.Add(DashCooldown))
	s.Apply(0, Action{Dash: true}, t0.Add(2*DashCooldown))
	assert.Equal(t, ActorRadius, s.Actors[0].Pos.X, "clamped to the board")
}

func TestMovementClampsAndRespectsObstacles(t *testing.T) {
	s := newTestShoot("open")
	now := time.Unix(1000, 0)
	for i := 0; i < 100; i++ {
		s.Apply(0, Action{Move: Vec{0, -1}}, now)
	}
	assert.Equal(t, ActorRadius, s.Actors[0].Pos.Y)
	assert.Equal(t, Vec{0, -1}, s.Actors[0].Facing)

	a := newTestShoot("arena")
	block := Maps["arena"][0]
	a.Actors[0].Pos = Vec{block.X - ActorRadius - 2*ActorMoveSpeed - 6, block.Y + block.H/2}
	before := a.Actors[0].Pos
	for i := 0; i < 5; i++ {
		a.Apply(0, Action{Move: Vec{1, 0}}, now)
	}
	assert.Equal(t, before.X+2*ActorMoveSpeed, a.Actors[0].Pos.X)
	assert.False(t, a.blocked(a.Actors[0].Pos, ActorRadius))
}

func TestShootSpectatorUpdateHidesCooldowns(t *testing.T) {
	s := newTestShoot("open")
	now := time.Unix(1000, 0)
	s.Apply(0, Action{Fire: true, Dash: true}, now)

	full := s.update(uuid.New(), false, now)
	spec := s.update(uuid.New(), true, now)
	assert.Equal(t, FireCooldown.Milliseconds(), full.Actors[0].FireCooldownMs)
	assert.Equal(t, DashCooldown.Milliseconds(), full.Actors[0].DashCooldownMs)
	assert.Zero(t, spec.Actors[0].FireCooldownMs)
	assert.Zero(t, spec.Actors[0].DashCooldownMs)
	assert.Len(t, spec.Projectiles, 1)
}
