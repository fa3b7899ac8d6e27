package ecs_test

import (
	"testing"

	"github.com/plus3/ecsst/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessTaskOrder(t *testing.T) {
	registry, _ := newTestRegistry()

	var order []string
	registry.Enque(func() {
		order = append(order, "A")
		registry.Enque(func() { order = append(order, "B") })
	})
	registry.Enque(func() { order = append(order, "C") })
	assert.Equal(t, 2, registry.PendingTasks())

	registry.Process()
	assert.Equal(t, []string{"A", "C", "B"}, order)
	assert.Equal(t, 0, registry.PendingTasks())
}

func TestProcessEventStages(t *testing.T) {
	registry, _ := newTestRegistry()

	var got []int
	ecs.AddEventListener[ecs.BeforeEvent[Event1]](registry, func() { got = append(got, 1) })
	ecs.AddEventListener[Event1](registry, func() {
		got = append(got, 2)
		ecs.EnqueEvent[Event2](registry)
	})
	ecs.AddEventListener[ecs.AfterEvent[Event1]](registry, func() { got = append(got, 3) })
	ecs.AddEventListener[ecs.BeforeEvent[Event2]](registry, func() {
		got = append(got, 4)
		ecs.EnqueEvent[Event3](registry)
	})
	ecs.AddEventListener[Event2](registry, func() { got = append(got, 5) })
	ecs.AddEventListener[Event3](registry, func() { got = append(got, 6) })

	ecs.EnqueEvent[Event1](registry)
	registry.Process()

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, got)
}

func TestProcessEventListenersInRegistrationOrder(t *testing.T) {
	registry, _ := newTestRegistry()

	var got []string
	ecs.AddEventListener[Event1](registry, func() { got = append(got, "first") })
	ecs.AddEventListener[Event1](registry, func() { got = append(got, "second") })

	ecs.EnqueEvent[Event1](registry)
	ecs.EnqueEvent[Event1](registry)
	registry.Process()

	assert.Equal(t, []string{"first", "second", "first", "second"}, got)
}

func TestProcessIsNotReentrant(t *testing.T) {
	registry, _ := newTestRegistry()

	registry.Enque(func() {
		assert.Panics(t, func() { registry.Process() })
	})
	registry.Process()

	ran := false
	registry.Enque(func() { ran = true })
	registry.Process()
	assert.True(t, ran, "registry is usable after the nested call was rejected")
}

func TestProcessRecoversFromPanickingTask(t *testing.T) {
	registry, _ := newTestRegistry()

	registry.Enque(func() { panic("boom") })
	registry.Enque(func() {})
	assert.Panics(t, func() { registry.Process() })

	ran := false
	registry.Enque(func() { ran = true })
	registry.Process()
	assert.True(t, ran)
}

func TestProcessEnqueQuery(t *testing.T) {
	registry, ids := newTestRegistry()
	e := registry.CreateEntity(ids.position)

	q := registry.CreateQuery(ecs.Read[Position]())
	var seen []ecs.EntityID
	registry.EnqueQuery(q, func(chunks []ecs.Chunk) {
		for _, c := range chunks {
			seen = append(seen, c.Entities()...)
		}
		// Structural changes from inside iteration are deferred.
		registry.Enque(func() { ecs.AssignComponent[Velocity](registry, e) })
	})

	assert.Empty(t, seen, "nothing runs before Process")
	registry.Process()
	assert.Equal(t, []ecs.EntityID{e}, seen)
	assert.True(t, ecs.HasComponent[Velocity](registry, e))
}

func TestMessagesAddedComponent(t *testing.T) {
	registry, ids := newTestRegistry()

	var seen []ecs.EntityID
	ecs.AddMessageListener[Comp1, ecs.AddedComponent](registry, func(entities []ecs.EntityID) {
		seen = append(seen, entities...)
	})

	created := make([]ecs.EntityID, 10)
	for i := range created {
		created[i] = registry.CreateEntity(ids.comp1)
	}
	registry.CreateEntity(ids.comp2)

	registry.Process()
	assert.Equal(t, created, seen)
}

func TestMessagesRemovedComponentPayload(t *testing.T) {
	registry, ids := newTestRegistry()
	const count = 100

	removed := 0
	var values []uint32
	ecs.AddMessageListenerData[Comp1, ecs.RemovedComponent](registry, func(entities []ecs.EntityID, comps []Comp1) {
		require.Equal(t, len(entities), len(comps))
		removed += len(entities)
		for _, c := range comps {
			values = append(values, c.Value)
		}
	})

	entities := make([]ecs.EntityID, count)
	for i := range entities {
		entities[i] = registry.CreateEntity(ids.comp1, ids.comp2)
		ecs.GetComponent[Comp1](registry, entities[i]).Value = uint32(i)
	}
	registry.Process()
	assert.Equal(t, 0, removed)

	for i, e := range entities {
		if i%2 == 0 {
			registry.DestroyEntity(e)
		} else {
			ecs.RemoveComponent[Comp1](registry, e)
		}
	}
	registry.Process()

	assert.Equal(t, count, removed)
	for i, v := range values {
		assert.Equal(t, uint32(i), v)
	}
}

func TestMessagesVisibleBetweenTasks(t *testing.T) {
	registry, ids := newTestRegistry()

	var log []string
	ecs.AddMessageListener[Position, ecs.AddedComponent](registry, func(entities []ecs.EntityID) {
		log = append(log, "added")
	})

	registry.Enque(func() {
		log = append(log, "task 1")
		registry.CreateEntity(ids.position)
	})
	registry.Enque(func() { log = append(log, "task 2") })
	registry.Process()

	assert.Equal(t, []string{"task 1", "added", "task 2"}, log)
}

func TestMessagesCustomTag(t *testing.T) {
	registry, ids := newTestRegistry()
	e := registry.CreateEntity(ids.health)

	var changed []Health
	ecs.AddMessageListenerData[Health, ecs.ComponentChanged](registry, func(entities []ecs.EntityID, values []Health) {
		assert.Equal(t, []ecs.EntityID{e}, entities)
		changed = append(changed, values...)
	})
	ecs.AddMessageData[ecs.ComponentChanged](registry, e, Health{Current: 3, Max: 9})

	type Healed struct{}
	healed := 0
	ecs.AddMessageListener[Health, Healed](registry, func(entities []ecs.EntityID) { healed += len(entities) })
	ecs.AddMessage[Healed](registry, e, ids.health)
	ecs.AddMessage[Healed](registry, e, ids.velocity)

	registry.Process()
	assert.Equal(t, []Health{{Current: 3, Max: 9}}, changed)
	assert.Equal(t, 1, healed)

	assert.Panics(t, func() {
		ecs.AddMessageListenerData[PlayerController, ecs.AddedComponent](registry, func([]ecs.EntityID, []PlayerController) {})
	})
}

func TestMessagesWithoutListenerAreDropped(t *testing.T) {
	registry, ids := newTestRegistry()

	registry.CreateEntity(ids.comp1)
	registry.Process()

	seen := 0
	ecs.AddMessageListener[Comp1, ecs.AddedComponent](registry, func(entities []ecs.EntityID) {
		seen += len(entities)
	})
	registry.Process()
	assert.Equal(t, 0, seen, "messages produced before the listener existed are lost")
}
