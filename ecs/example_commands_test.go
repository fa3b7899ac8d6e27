package ecs_test

import (
	"fmt"

	"github.com/plus3/ecsst/ecs"
)

type reaperSystem struct {
	health ecs.ComponentID
}

func (reaperSystem) Accesses() []ecs.Access {
	return []ecs.Access{ecs.Read[Health]()}
}

func (s reaperSystem) Execute(frame *ecs.UpdateFrame, chunks []ecs.Chunk) {
	for _, chunk := range chunks {
		entities := chunk.Entities()
		for i, h := range ecs.ReadColumn[Health](chunk) {
			if h.Current <= 0 {
				frame.Commands.Destroy(entities[i])
				frame.Commands.CreateFunc(func(r *ecs.Registry, id ecs.EntityID) {
					*ecs.GetComponent[Health](r, id) = Health{Current: 100, Max: 100}
				}, s.health)
			}
		}
	}
}

// ExampleCommands shows structural changes being deferred until every
// system of the frame has run.
func ExampleCommands() {
	components := ecs.NewComponentRegistry()
	health := ecs.RegisterComponent[Health](components)
	registry := ecs.NewRegistry(components)

	dead := registry.CreateEntity()
	ecs.AssignComponent[Health](registry, dead)
	alive := registry.CreateEntity()
	ecs.AssignComponent[Health](registry, alive).Current = 5

	scheduler := ecs.NewScheduler(registry)
	scheduler.Register(reaperSystem{health: health})
	scheduler.Once(0.016)

	fmt.Println("dead alive:", registry.IsAlive(dead))
	fmt.Println("entities:", registry.EntityCount())

	// Output:
	// dead alive: false
	// entities: 2
}
