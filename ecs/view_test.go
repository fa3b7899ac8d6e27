package ecs_test

import (
	"testing"

	"github.com/plus3/ecsst/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type moverView struct {
	*Position
	*Velocity
	Health *Health `ecs:"optional"`
}

type taggedView struct {
	*Position
	Player *PlayerController `ecs:"optional"`
}

func TestViewFill(t *testing.T) {
	registry, ids := newTestRegistry()
	view := ecs.NewView[moverView](registry)

	withHealth := registry.CreateEntity(ids.position, ids.velocity, ids.health)
	without := registry.CreateEntity(ids.position, ids.velocity)
	missing := registry.CreateEntity(ids.position)

	t.Run("all components", func(t *testing.T) {
		item := view.Get(withHealth)
		require.NotNil(t, item)
		require.NotNil(t, item.Health)
		item.Position.X = 5
		item.Health.Current = 50

		assert.Equal(t, float32(5), ecs.GetComponent[Position](registry, withHealth).X)
		assert.Equal(t, 50, ecs.GetComponent[Health](registry, withHealth).Current)
	})

	t.Run("optional missing", func(t *testing.T) {
		item := view.Get(without)
		require.NotNil(t, item)
		assert.Nil(t, item.Health)
		assert.NotNil(t, item.Velocity)
	})

	t.Run("required missing", func(t *testing.T) {
		assert.Nil(t, view.Get(missing))
		var item moverView
		assert.False(t, view.Fill(missing, &item))
	})

	t.Run("dead or bare entity", func(t *testing.T) {
		bare := registry.CreateEntity()
		assert.Nil(t, view.Get(bare))
		registry.DestroyEntity(missing)
		assert.Nil(t, view.Get(missing))
	})
}

func TestViewTags(t *testing.T) {
	registry, ids := newTestRegistry()
	view := ecs.NewView[taggedView](registry)

	player := registry.CreateEntity(ids.position, ids.player)
	npc := registry.CreateEntity(ids.position)

	assert.NotNil(t, view.Get(player).Player)
	assert.Nil(t, view.Get(npc).Player)
}

func TestViewChunks(t *testing.T) {
	registry, ids := newTestRegistry()
	view := ecs.NewView[moverView](registry)

	for i := 0; i < 4; i++ {
		e := registry.CreateEntity(ids.position, ids.velocity)
		*ecs.GetComponent[Velocity](registry, e) = Velocity{DX: float32(i)}
	}
	registry.CreateEntity(ids.position, ids.velocity, ids.health)

	q := registry.CreateQuery(view.Accesses()...)
	visited := 0
	registry.Execute(q, func(chunks []ecs.Chunk) {
		for _, chunk := range chunks {
			var item moverView
			for row := 0; row < chunk.Count; row++ {
				require.True(t, view.FillChunk(chunk, row, &item))
				item.Position.X = item.Velocity.DX * 2
				visited++
			}
			assert.False(t, view.FillChunk(chunk, chunk.Count, &item))
		}
	})
	assert.Equal(t, 5, visited)
}

func TestViewValidation(t *testing.T) {
	registry, _ := newTestRegistry()

	assert.Panics(t, func() { ecs.NewView[Position](registry) })
	assert.Panics(t, func() {
		ecs.NewView[struct{ P Position }](registry)
	})
	assert.Panics(t, func() {
		ecs.NewView[struct {
			P *Position `ecs:"sometimes"`
		}](registry)
	})
	assert.Panics(t, func() {
		ecs.NewView[struct{ *GameTime }](registry)
	})
}
