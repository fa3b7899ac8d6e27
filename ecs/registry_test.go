package ecs_test

import (
	"testing"

	"github.com/plus3/ecsst/ecs"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryEntityLifecycle(t *testing.T) {
	registry, ids := newTestRegistry()

	e := registry.CreateEntity()
	assert.True(t, registry.IsAlive(e))
	assert.Nil(t, registry.GetArchetype(e))

	assert.True(t, registry.DestroyEntity(e))
	assert.False(t, registry.IsAlive(e))
	assert.False(t, registry.DestroyEntity(e))

	f := registry.CreateEntity(ids.position, ids.velocity)
	require.NotNil(t, registry.GetArchetype(f))
	assert.Equal(t, 2, registry.GetArchetype(f).Count())
	assert.Equal(t, 1, registry.EntityCount())
}

func TestRegistrySingleComponent(t *testing.T) {
	registry, ids := newTestRegistry()

	e := registry.CreateEntity(ids.comp1, ids.comp2)
	comp1 := ecs.GetComponent[Comp1](registry, e)
	require.NotNil(t, comp1)
	comp1.Value = 0x1234

	assert.Equal(t, uint32(0x1234), ecs.GetComponent[Comp1](registry, e).Value)
	assert.True(t, ecs.HasComponent[Comp2](registry, e))
	assert.False(t, ecs.HasComponent[Comp3](registry, e))
	assert.Nil(t, ecs.GetComponent[Comp3](registry, e))

	other := registry.CreateEntity(ids.comp3)
	assert.False(t, ecs.RemoveComponent[Comp1](registry, other), "unrelated entity has no Comp1")
	assert.False(t, ecs.RemoveComponent[Comp1](registry, registry.CreateEntity()))
}

func TestRegistryAssignComponent(t *testing.T) {
	registry, ids := newTestRegistry()

	e := registry.CreateEntity(ids.comp1)
	ecs.GetComponent[Comp1](registry, e).Value = 0x1234

	comp2 := ecs.AssignComponent[Comp2](registry, e)
	require.NotNil(t, comp2)
	assert.Equal(t, Comp2{}, *comp2)
	comp2.Value = 2.5

	assert.Equal(t, uint32(0x1234), ecs.GetComponent[Comp1](registry, e).Value, "existing values survive migration")
	assert.Equal(t, 2.5, ecs.GetComponent[Comp2](registry, e).Value)

	t.Run("idempotent", func(t *testing.T) {
		arch := registry.GetArchetype(e)
		again := ecs.AssignComponent[Comp2](registry, e)
		assert.Equal(t, 2.5, again.Value)
		assert.Same(t, arch, registry.GetArchetype(e))
	})

	t.Run("on entity without components", func(t *testing.T) {
		bare := registry.CreateEntity()
		pos := ecs.AssignComponent[Position](registry, bare)
		require.NotNil(t, pos)
		pos.X = 3
		assert.Equal(t, float32(3), ecs.GetComponent[Position](registry, bare).X)
	})

	t.Run("tag", func(t *testing.T) {
		assert.True(t, registry.AssignComponentID(e, ids.player))
		assert.True(t, ecs.HasComponent[PlayerController](registry, e))
		assert.Equal(t, uint32(0x1234), ecs.GetComponent[Comp1](registry, e).Value)
	})

	t.Run("stale handle", func(t *testing.T) {
		dead := registry.CreateEntity(ids.comp1)
		registry.DestroyEntity(dead)
		assert.Nil(t, ecs.AssignComponent[Comp2](registry, dead))
		assert.False(t, registry.AssignComponentID(dead, ids.comp2))
	})
}

func TestRegistryRemoveComponent(t *testing.T) {
	registry, ids := newTestRegistry()

	e := registry.CreateEntity(ids.comp1, ids.comp2, ids.frozen)
	ecs.GetComponent[Comp1](registry, e).Value = 7
	ecs.GetComponent[Comp2](registry, e).Value = 8

	require.True(t, ecs.RemoveComponent[Comp1](registry, e))
	assert.False(t, ecs.HasComponent[Comp1](registry, e))
	assert.Equal(t, 8.0, ecs.GetComponent[Comp2](registry, e).Value)
	assert.True(t, ecs.HasComponent[Frozen](registry, e))

	require.True(t, ecs.RemoveComponent[Frozen](registry, e))
	require.True(t, ecs.RemoveComponent[Comp2](registry, e))

	assert.True(t, registry.IsAlive(e), "removing the last component keeps the entity")
	assert.Nil(t, registry.GetArchetype(e))
	assert.False(t, ecs.RemoveComponent[Comp2](registry, e))
}

func TestRegistrySwapRemoveRepointsEntities(t *testing.T) {
	registry, ids := newTestRegistry()

	entities := make([]ecs.EntityID, 10)
	for i := range entities {
		entities[i] = registry.CreateEntity(ids.comp1)
		ecs.GetComponent[Comp1](registry, entities[i]).Value = uint32(i)
	}

	require.True(t, registry.DestroyEntity(entities[0]))
	require.True(t, ecs.RemoveComponent[Comp1](registry, entities[3]))
	require.NotNil(t, ecs.AssignComponent[Comp2](registry, entities[5]))

	for i, e := range entities {
		switch i {
		case 0:
			assert.False(t, registry.IsAlive(e))
		case 3:
			assert.Nil(t, ecs.GetComponent[Comp1](registry, e))
		default:
			comp := ecs.GetComponent[Comp1](registry, e)
			require.NotNil(t, comp, "entity %d", i)
			assert.Equal(t, uint32(i), comp.Value, "entity %d", i)
		}
	}
}

func TestRegistryStorageShrinks(t *testing.T) {
	registry, ids := newTestRegistry(ecs.WithInitialStorageCapacity(4))

	entities := make([]ecs.EntityID, 64)
	for i := range entities {
		entities[i] = registry.CreateEntity(ids.comp1)
	}
	stats := registry.CollectStats()
	require.Len(t, stats.ArchetypeBreakdown, 1)
	assert.Equal(t, 64, stats.ArchetypeBreakdown[0].Capacity)

	for _, e := range entities[:60] {
		registry.DestroyEntity(e)
	}
	stats = registry.CollectStats()
	assert.Equal(t, 4, stats.ArchetypeBreakdown[0].EntityCount)
	assert.Less(t, stats.ArchetypeBreakdown[0].Capacity, 64)
	assert.GreaterOrEqual(t, stats.ArchetypeBreakdown[0].Capacity, 4)

	for _, e := range entities[60:] {
		registry.DestroyEntity(e)
	}
	stats = registry.CollectStats()
	assert.Equal(t, 4, stats.ArchetypeBreakdown[0].Capacity, "never below the initial capacity")
}

func TestRegistryDestroyAllEntities(t *testing.T) {
	registry, ids := newTestRegistry()
	query := registry.CreateQuery(ecs.Read[Position]())

	a := registry.CreateEntity(ids.position)
	b := registry.CreateEntity(ids.position, ids.velocity)
	c := registry.CreateEntity()

	registry.DestroyAllEntities()
	for _, e := range []ecs.EntityID{a, b, c} {
		assert.False(t, registry.IsAlive(e))
	}
	assert.Equal(t, 0, registry.EntityCount())
	assert.Len(t, registry.Archetypes(), 2, "archetypes survive")
	assert.Len(t, registry.QueryArchetypes(query), 2, "query caches survive")

	d := registry.CreateEntity(ids.position)
	assert.True(t, registry.IsAlive(d))
}

func TestRegistryArchetypeReuse(t *testing.T) {
	registry, ids := newTestRegistry()

	a := registry.CreateEntity(ids.velocity, ids.position)
	b := registry.CreateEntity(ids.position)
	ecs.AssignComponent[Velocity](registry, b)

	assert.Same(t, registry.GetArchetype(a), registry.GetArchetype(b))
	assert.Len(t, registry.Archetypes(), 2)
}

func TestRegistryMaxStorageBytes(t *testing.T) {
	registry, ids := newTestRegistry(ecs.WithInitialStorageCapacity(2), ecs.WithMaxStorageBytes(64))

	registry.CreateEntity(ids.comp1)
	registry.CreateEntity(ids.comp1)
	assert.Panics(t, func() {
		for i := 0; i < 8; i++ {
			registry.CreateEntity(ids.comp1)
		}
	})
}

func TestRegistryConfig(t *testing.T) {
	err := ecs.Config{InitialStorageCapacity: 0}.Validate()
	require.Error(t, err)
	assert.True(t, eris.Is(err, ecs.ErrInvalidConfig))

	err = ecs.Config{InitialStorageCapacity: 16, MaxStorageBytes: 8}.Validate()
	assert.True(t, eris.Is(err, ecs.ErrInvalidConfig))

	assert.NoError(t, ecs.DefaultConfig().Validate())

	components, _ := newTestComponents()
	assert.Panics(t, func() { ecs.NewRegistry(components, ecs.WithInitialStorageCapacity(-1)) })
}

func TestRegistrySingleComponents(t *testing.T) {
	registry, _ := newTestRegistry()

	assert.Nil(t, ecs.GetSingleComponent[Score](registry))

	score := ecs.AssignSingleComponent[Score](registry)
	require.NotNil(t, score)
	*score = 42
	assert.Same(t, score, ecs.AssignSingleComponent[Score](registry))
	assert.Equal(t, Score(42), *ecs.GetSingleComponent[Score](registry))

	assert.True(t, ecs.RemoveSingleComponent[Score](registry))
	assert.False(t, ecs.RemoveSingleComponent[Score](registry))
	assert.Nil(t, ecs.GetSingleComponent[Score](registry))
	assert.Equal(t, Score(0), *score, "released values are reset")

	ecs.AssignSingleComponent[Temperature](registry)
	ecs.AssignSingleComponent[Health](registry)
	registry.DestroyAllSingleComponents()
	assert.Empty(t, registry.SingleComponentTypes())

	assert.Panics(t, func() { ecs.AssignSingleComponent[withString](registry) })
}

func TestRegistryUnregisteredComponent(t *testing.T) {
	registry, _ := newTestRegistry()
	e := registry.CreateEntity()

	assert.PanicsWithValue(t, "ecs: component type ecs_test.withPointer not registered", func() {
		ecs.GetComponent[withPointer](registry, e)
	})
}

func TestRegistryClose(t *testing.T) {
	registry, ids := newTestRegistry()
	e := registry.CreateEntity(ids.position)
	ecs.AssignSingleComponent[Score](registry)
	q := registry.CreateQuery(ecs.Read[Position]())

	registry.Execute(q, func(chunks []ecs.Chunk) {
		err := registry.Close()
		assert.True(t, eris.Is(err, ecs.ErrRegistryBusy))
	})

	registry.Enque(func() {
		assert.True(t, eris.Is(registry.Close(), ecs.ErrRegistryBusy))
	})
	registry.Process()

	require.NoError(t, registry.Close())
	assert.False(t, registry.IsAlive(e))
	assert.Nil(t, ecs.GetSingleComponent[Score](registry))
}
