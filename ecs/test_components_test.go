package ecs_test

import "github.com/plus3/ecsst/ecs"

// Common test component types
type Position struct {
	X, Y float32
}

type Velocity struct {
	DX, DY float32
}

type Health struct {
	Current int
	Max     int
}

type Comp1 struct {
	Value uint32
}

type Comp2 struct {
	Value float64
}

type Comp3 struct {
	A, B uint8
}

type Wide struct {
	Values [4]uint64
}

type AI struct {
	State int
}

// Tags
type PlayerController struct{}
type Frozen struct{}

// Custom primitive types for testing non-struct components
type Score int32
type Temperature float64

// Event types
type Event1 struct{}
type Event2 struct{}
type Event3 struct{}

type testIDs struct {
	position, velocity, health ecs.ComponentID
	comp1, comp2, comp3, wide  ecs.ComponentID
	ai, score, temperature     ecs.ComponentID
	player, frozen             ecs.ComponentID
}

func newTestComponents() (*ecs.ComponentRegistry, testIDs) {
	components := ecs.NewComponentRegistry()
	ids := testIDs{
		position:    ecs.RegisterComponent[Position](components),
		velocity:    ecs.RegisterComponent[Velocity](components),
		health:      ecs.RegisterComponent[Health](components),
		comp1:       ecs.RegisterComponent[Comp1](components),
		comp2:       ecs.RegisterComponent[Comp2](components),
		comp3:       ecs.RegisterComponent[Comp3](components),
		wide:        ecs.RegisterComponent[Wide](components),
		ai:          ecs.RegisterComponent[AI](components),
		score:       ecs.RegisterComponent[Score](components),
		temperature: ecs.RegisterComponent[Temperature](components),
		player:      ecs.RegisterComponent[PlayerController](components),
		frozen:      ecs.RegisterComponent[Frozen](components),
	}
	return components, ids
}

func newTestRegistry(opts ...ecs.Option) (*ecs.Registry, testIDs) {
	components, ids := newTestComponents()
	return ecs.NewRegistry(components, opts...), ids
}
