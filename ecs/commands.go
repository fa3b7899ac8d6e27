package ecs

// Commands provides a buffer for deferred structural changes that are applied
// after the systems of a frame have run. Storages are locked while systems
// iterate them, so creating, destroying or migrating entities must go
// through Commands or Registry.Enque.
type Commands struct {
	creates  []createCommand
	destroys []EntityID
	assigns  []assignCommand
	removes  []removeCommand
	defers   []func()
}

func newCommands() *Commands {
	return &Commands{}
}

type createCommand struct {
	ids  []ComponentID
	init func(r *Registry, id EntityID)
}

type assignCommand struct {
	entity EntityID
	comp   ComponentID
	write  func(r *Registry, id EntityID)
}

type removeCommand struct {
	entity EntityID
	comp   ComponentID
}

// Defer queues a function execution operation.
func (c *Commands) Defer(fn func()) {
	c.defers = append(c.defers, fn)
}

// Create queues an entity creation with the given components.
func (c *Commands) Create(ids ...ComponentID) {
	c.creates = append(c.creates, createCommand{ids: ids})
}

// CreateFunc queues an entity creation and calls init with the new entity
// once it exists.
func (c *Commands) CreateFunc(init func(r *Registry, id EntityID), ids ...ComponentID) {
	c.creates = append(c.creates, createCommand{ids: ids, init: init})
}

// Destroy queues an entity destruction.
func (c *Commands) Destroy(entity EntityID) {
	c.destroys = append(c.destroys, entity)
}

// Assign queues a default-constructed component addition.
func (c *Commands) Assign(entity EntityID, comp ComponentID) {
	c.assigns = append(c.assigns, assignCommand{entity: entity, comp: comp})
}

// Remove queues a component removal.
func (c *Commands) Remove(entity EntityID, comp ComponentID) {
	c.removes = append(c.removes, removeCommand{entity: entity, comp: comp})
}

// SetComponent queues assigning T to the entity and overwriting it with value.
func SetComponent[T any](c *Commands, entity EntityID, value T) {
	c.assigns = append(c.assigns, assignCommand{
		entity: entity,
		write: func(r *Registry, id EntityID) {
			if p := AssignComponent[T](r, id); p != nil {
				*p = value
			}
		},
	})
}

// Len returns the number of queued operations.
func (c *Commands) Len() int {
	return len(c.creates) + len(c.destroys) + len(c.assigns) + len(c.removes) + len(c.defers)
}

// Flush applies all commands to the registry and resets the buffer. Destroys
// run first; component operations on entities destroyed by this flush are
// skipped. Commands queued while flushing, including from deferred
// functions, are applied before Flush returns.
func (c *Commands) Flush(r *Registry) {
	for c.Len() > 0 {
		c.flushOnce(r)
	}
}

func (c *Commands) flushOnce(r *Registry) {
	creates, destroys, assigns, removes, defers := c.creates, c.destroys, c.assigns, c.removes, c.defers
	c.creates, c.destroys, c.assigns, c.removes, c.defers = nil, nil, nil, nil, nil

	destroyed := make(map[EntityID]bool, len(destroys))
	for _, id := range destroys {
		r.DestroyEntity(id)
		destroyed[id] = true
	}

	for _, cmd := range removes {
		if !destroyed[cmd.entity] {
			r.RemoveComponentID(cmd.entity, cmd.comp)
		}
	}

	for _, cmd := range assigns {
		if destroyed[cmd.entity] {
			continue
		}
		if cmd.write != nil {
			cmd.write(r, cmd.entity)
		} else {
			r.AssignComponentID(cmd.entity, cmd.comp)
		}
	}

	for _, cmd := range creates {
		id := r.CreateEntity(cmd.ids...)
		if cmd.init != nil {
			cmd.init(r, id)
		}
	}

	for _, fn := range defers {
		fn()
	}
}
