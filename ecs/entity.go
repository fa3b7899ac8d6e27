package ecs

import (
	"fmt"
	"unsafe"
)

// EntityID encodes both the pool slot index (lower 32 bits) and the slot's
// instance counter (upper 32 bits). Instance 0 is never issued.
type EntityID uint64

// InvalidEntityID is the zero handle; it never refers to a live entity.
const InvalidEntityID EntityID = 0

const (
	sizeOfEntityID = unsafe.Sizeof(EntityID(0))
	entityIDAlign  = unsafe.Alignof(EntityID(0))
)

// NewEntityID creates an EntityID from a slot index and instance counter.
func NewEntityID(index uint32, instance uint32) EntityID {
	return EntityID(uint64(instance)<<32 | uint64(index))
}

// Index extracts the pool slot index.
func (e EntityID) Index() uint32 {
	return uint32(e & 0xFFFFFFFF)
}

// Instance extracts the instance counter.
func (e EntityID) Instance() uint32 {
	return uint32(e >> 32)
}

// IsValid reports whether the handle could have been issued by a pool.
func (e EntityID) IsValid() bool {
	return e.Instance() != 0
}

func (e EntityID) String() string {
	return fmt.Sprintf("%d:%d", e.Index(), e.Instance())
}

type entityRef struct {
	storage  *ArchetypeStorage
	row      int
	instance uint32
	alive    bool
}

// EntityPool hands out entity handles and records where each live entity is
// stored. Freed slots are reused after their instance counter is bumped, so
// handles to destroyed entities stop validating.
type EntityPool struct {
	entries   []entityRef
	available []uint32
	live      int
}

// Assign allocates a handle, reusing a free slot when possible.
func (p *EntityPool) Assign() EntityID {
	var idx uint32
	if n := len(p.available); n > 0 {
		idx = p.available[n-1]
		p.available = p.available[:n-1]
	} else {
		idx = uint32(len(p.entries))
		p.entries = append(p.entries, entityRef{instance: 1})
	}

	ref := &p.entries[idx]
	ref.storage = nil
	ref.row = -1
	ref.alive = true
	p.live++
	return NewEntityID(idx, ref.instance)
}

// Unassign frees the slot and invalidates every outstanding handle to it.
func (p *EntityPool) Unassign(id EntityID) bool {
	ref := p.lookup(id)
	if ref == nil {
		return false
	}
	ref.storage = nil
	ref.row = -1
	ref.alive = false
	ref.instance++
	if ref.instance == 0 {
		ref.instance = 1
	}
	p.available = append(p.available, id.Index())
	p.live--
	return true
}

// SetArchetype records the entity's current storage and row. A nil storage
// means the entity currently has no components.
func (p *EntityPool) SetArchetype(id EntityID, storage *ArchetypeStorage, row int) bool {
	ref := p.lookup(id)
	if ref == nil {
		return false
	}
	ref.storage = storage
	ref.row = row
	return true
}

// GetArchetype returns the storage and row of a live entity. The storage is
// nil for entities without components.
func (p *EntityPool) GetArchetype(id EntityID) (*ArchetypeStorage, int, bool) {
	ref := p.lookup(id)
	if ref == nil {
		return nil, -1, false
	}
	return ref.storage, ref.row, true
}

// IsAlive reports whether id refers to a live entity.
func (p *EntityPool) IsAlive(id EntityID) bool {
	return p.lookup(id) != nil
}

// Count returns the number of live entities.
func (p *EntityPool) Count() int {
	return p.live
}

// Clear frees every live slot.
func (p *EntityPool) Clear() {
	for i := range p.entries {
		ref := &p.entries[i]
		if !ref.alive {
			continue
		}
		p.Unassign(NewEntityID(uint32(i), ref.instance))
	}
}

func (p *EntityPool) lookup(id EntityID) *entityRef {
	idx := id.Index()
	if int(idx) >= len(p.entries) {
		return nil
	}
	ref := &p.entries[idx]
	if !ref.alive || ref.instance != id.Instance() {
		return nil
	}
	return ref
}
