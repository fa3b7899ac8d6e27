package main

import (
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/plus3/ecsst/ecs"
)

type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

type Velocity struct {
	Linear mgl32.Vec3
}

type AngularVelocity struct {
	Axis  mgl32.Vec3
	Speed float32
}

type Mass float32

type Lifetime struct {
	Remaining float32
}

type Health struct {
	Current int32
	Max     int32
}

type Static struct{}
type Visible struct{}

var gravity = mgl32.Vec3{0, -9.81, 0}

const worldExtent = 500

type componentIDs struct {
	transform, velocity, angular, mass, lifetime, health ecs.ComponentID
	static, visible                                      ecs.ComponentID
}

// optional lists the components a spawned entity may carry besides its
// transform.
func (c componentIDs) optional() []ecs.ComponentID {
	return []ecs.ComponentID{c.velocity, c.angular, c.mass, c.lifetime, c.health, c.static, c.visible}
}

func registerComponents(r *ecs.ComponentRegistry) componentIDs {
	return componentIDs{
		transform: ecs.RegisterComponentFunc(r, func(t *Transform) {
			t.Rotation = mgl32.QuatIdent()
			t.Scale = mgl32.Vec3{1, 1, 1}
		}),
		velocity: ecs.RegisterComponent[Velocity](r),
		angular:  ecs.RegisterComponent[AngularVelocity](r),
		mass: ecs.RegisterComponentFunc(r, func(m *Mass) {
			*m = 1
		}),
		lifetime: ecs.RegisterComponent[Lifetime](r),
		health:   ecs.RegisterComponent[Health](r),
		static:   ecs.RegisterComponent[Static](r),
		visible:  ecs.RegisterComponent[Visible](r),
	}
}

// spawnRandomEntity creates an entity with a transform and up to extra
// random additional components.
func spawnRandomEntity(r *ecs.Registry, rng *rand.Rand, ids componentIDs, extra int) ecs.EntityID {
	pool := ids.optional()
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	components := append([]ecs.ComponentID{ids.transform}, pool[:min(extra, len(pool))]...)
	id := r.CreateEntity(components...)
	initEntity(r, rng, id)
	return id
}

func initEntity(r *ecs.Registry, rng *rand.Rand, id ecs.EntityID) {
	if t := ecs.GetComponent[Transform](r, id); t != nil {
		t.Position = randomVec3(rng, worldExtent)
	}
	if v := ecs.GetComponent[Velocity](r, id); v != nil {
		v.Linear = randomVec3(rng, 10)
	}
	if a := ecs.GetComponent[AngularVelocity](r, id); a != nil {
		a.Axis = randomVec3(rng, 1).Normalize()
		a.Speed = rng.Float32() * 3
	}
	if l := ecs.GetComponent[Lifetime](r, id); l != nil {
		l.Remaining = 1 + rng.Float32()*4
	}
	if h := ecs.GetComponent[Health](r, id); h != nil {
		*h = Health{Current: 100, Max: 100}
	}
}

func randomVec3(rng *rand.Rand, extent float32) mgl32.Vec3 {
	return mgl32.Vec3{
		(rng.Float32()*2 - 1) * extent,
		(rng.Float32()*2 - 1) * extent,
		(rng.Float32()*2 - 1) * extent,
	}
}

type GravitySystem struct{}

func (GravitySystem) Accesses() []ecs.Access {
	return []ecs.Access{ecs.Write[Velocity](), ecs.OptionalRead[Mass](), ecs.Subtractive[Static]()}
}

func (GravitySystem) Execute(frame *ecs.UpdateFrame, chunks []ecs.Chunk) {
	dt := float32(frame.DeltaTime)
	for _, chunk := range chunks {
		velocities := ecs.WriteColumn[Velocity](chunk)
		masses := ecs.OptionalReadColumn[Mass](chunk)
		for i := range velocities {
			g := gravity.Mul(dt)
			if masses != nil && masses[i] > 0 {
				g = g.Mul(float32(masses[i]))
			}
			velocities[i].Linear = velocities[i].Linear.Add(g)
		}
	}
}

type MovementSystem struct{}

func (MovementSystem) Accesses() []ecs.Access {
	return []ecs.Access{ecs.Write[Transform](), ecs.Read[Velocity](), ecs.Subtractive[Static]()}
}

func (MovementSystem) Execute(frame *ecs.UpdateFrame, chunks []ecs.Chunk) {
	dt := float32(frame.DeltaTime)
	for _, chunk := range chunks {
		transforms := ecs.WriteColumn[Transform](chunk)
		velocities := ecs.ReadColumn[Velocity](chunk)
		for i := range transforms {
			p := transforms[i].Position.Add(velocities[i].Linear.Mul(dt))
			for axis := 0; axis < 3; axis++ {
				p[axis] = mgl32.Clamp(p[axis], -worldExtent, worldExtent)
			}
			transforms[i].Position = p
		}
	}
}

type SpinSystem struct{}

func (SpinSystem) Accesses() []ecs.Access {
	return []ecs.Access{ecs.Write[Transform](), ecs.Read[AngularVelocity]()}
}

func (SpinSystem) Execute(frame *ecs.UpdateFrame, chunks []ecs.Chunk) {
	dt := float32(frame.DeltaTime)
	for _, chunk := range chunks {
		transforms := ecs.WriteColumn[Transform](chunk)
		spins := ecs.ReadColumn[AngularVelocity](chunk)
		for i := range transforms {
			if spins[i].Speed == 0 {
				continue
			}
			step := mgl32.QuatRotate(spins[i].Speed*dt, spins[i].Axis)
			transforms[i].Rotation = step.Mul(transforms[i].Rotation).Normalize()
		}
	}
}

// LifetimeSystem expires entities and replaces each with a fresh random
// entity so the population stays stable.
type LifetimeSystem struct {
	ids componentIDs
	rng *rand.Rand
}

func (s *LifetimeSystem) Accesses() []ecs.Access {
	return []ecs.Access{ecs.Write[Lifetime]()}
}

func (s *LifetimeSystem) Execute(frame *ecs.UpdateFrame, chunks []ecs.Chunk) {
	dt := float32(frame.DeltaTime)
	for _, chunk := range chunks {
		entities := chunk.Entities()
		lifetimes := ecs.WriteColumn[Lifetime](chunk)
		for i := range lifetimes {
			lifetimes[i].Remaining -= dt
			if lifetimes[i].Remaining > 0 {
				continue
			}
			frame.Commands.Destroy(entities[i])
			frame.Commands.Defer(func() {
				spawnRandomEntity(frame.Registry, s.rng, s.ids, s.rng.Intn(5)+1)
			})
		}
	}
}

// DamageSystem wears down health and strips the Visible tag from entities
// that reach zero.
type DamageSystem struct {
	ids componentIDs
}

func (s *DamageSystem) Accesses() []ecs.Access {
	return []ecs.Access{ecs.Write[Health](), ecs.Require[Visible]()}
}

func (s *DamageSystem) Execute(frame *ecs.UpdateFrame, chunks []ecs.Chunk) {
	for _, chunk := range chunks {
		entities := chunk.Entities()
		healths := ecs.WriteColumn[Health](chunk)
		for i := range healths {
			healths[i].Current--
			if healths[i].Current <= 0 {
				healths[i].Current = 0
				frame.Commands.Remove(entities[i], s.ids.visible)
			}
		}
	}
}

// Counters collects message traffic observed during the run.
type Counters struct {
	Expired int
	Hidden  int
	Spawned int
	Frames  int
	Wounded int
}

func registerListeners(r *ecs.Registry, ids componentIDs, counters *Counters) {
	ecs.AddMessageListener[Lifetime, ecs.RemovedComponent](r, func(entities []ecs.EntityID) {
		counters.Expired += len(entities)
	})
	ecs.AddMessageListener[Transform, ecs.AddedComponent](r, func(entities []ecs.EntityID) {
		counters.Spawned += len(entities)
	})
	ecs.AddMessageListenerData[Health, ecs.RemovedComponent](r, func(entities []ecs.EntityID, values []Health) {
		for _, h := range values {
			if h.Current < h.Max {
				counters.Wounded++
			}
		}
	})
	ecs.AddMessageListener[Visible, ecs.RemovedComponent](r, func(entities []ecs.EntityID) {
		counters.Hidden += len(entities)
		for _, id := range entities {
			// healed and shown again once the current task has finished
			r.Enque(func() {
				if h := ecs.GetComponent[Health](r, id); h != nil {
					h.Current = h.Max
					r.AssignComponentID(id, ids.visible)
				}
			})
		}
	})
	ecs.AddEventListener[ecs.AfterEvent[FrameEnd]](r, func() {
		counters.Frames++
	})
}

// FrameEnd is raised once all systems of a frame and their commands ran.
type FrameEnd struct{}

// FrameSystem must be registered last; it raises FrameEnd after the
// frame's commands are flushed.
type FrameSystem struct{}

// SimClock is the simulated time advanced by FrameSystem.
type SimClock struct {
	Elapsed float64
	Frames  uint64
}

func (FrameSystem) Accesses() []ecs.Access {
	return []ecs.Access{ecs.Single[SimClock]()}
}

func (FrameSystem) Execute(frame *ecs.UpdateFrame, chunks []ecs.Chunk) {
	clock := ecs.SingleOf[SimClock](frame)
	clock.Elapsed += frame.DeltaTime
	clock.Frames++
	frame.Commands.Defer(func() {
		ecs.EnqueEvent[FrameEnd](frame.Registry)
	})
}
