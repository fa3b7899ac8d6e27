package ecs_test

import (
	"reflect"
	"testing"

	"github.com/plus3/ecsst/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryStats(t *testing.T) {
	registry, ids := newTestRegistry()

	stats := registry.CollectStats()
	assert.Equal(t, registry.ID(), stats.RegistryID)
	assert.Equal(t, 0, stats.ArchetypeCount)
	assert.Equal(t, 0, stats.TotalEntityCount)
	assert.Equal(t, 0, stats.SingletonCount)

	registry.CreateEntity(ids.position, ids.health)
	registry.CreateEntity(ids.position, ids.health)
	registry.CreateEntity(ids.temperature, ids.frozen)
	registry.CreateEntity()

	ecs.NewSingleton(registry, Score(3))
	ecs.NewSingleton(registry, Temperature(36.6))
	registry.CreateQuery(ecs.Read[Position]())
	registry.Enque(func() {})

	stats = registry.CollectStats()
	assert.Equal(t, 2, stats.ArchetypeCount)
	assert.Equal(t, 4, stats.TotalEntityCount)
	assert.Equal(t, 3, stats.StoredEntityCount)
	assert.Equal(t, 2, stats.SingletonCount)
	assert.Equal(t, 1, stats.QueryCount)
	assert.Equal(t, 1, stats.PendingTasks)
	assert.Len(t, stats.SingletonTypes, 2)

	require.Len(t, stats.ArchetypeBreakdown, 2)
	first := stats.ArchetypeBreakdown[0]
	assert.Equal(t, 2, first.EntityCount)
	assert.Equal(t, []reflect.Type{reflect.TypeFor[Position](), reflect.TypeFor[Health]()}, first.ComponentTypes)
	assert.Equal(t, 0, first.TagCount)
	assert.Positive(t, first.Bytes)

	second := stats.ArchetypeBreakdown[1]
	assert.Equal(t, 1, second.EntityCount)
	assert.Equal(t, 1, second.TagCount)
	assert.Equal(t, ecs.DefaultInitialStorageCapacity, second.Capacity)
}
