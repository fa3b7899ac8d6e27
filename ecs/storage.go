package ecs

import (
	"fmt"
	"math"
	"reflect"
	"sync/atomic"
	"unsafe"

	"github.com/rotisserie/eris"
)

// EraseResult reports what happened to the row vacated by Erase. When Moved
// is true the last entity of the table was moved into the erased row and its
// location must be updated by the caller.
type EraseResult struct {
	Moved  bool
	Entity EntityID
}

// ArchetypeStorage is the columnar table holding every entity of one
// Archetype. The entity column and all component columns live in a single
// allocation; row i of every column belongs to the same entity.
type ArchetypeStorage struct {
	archetype *Archetype
	data      []uint64
	offsets   []uintptr
	count     int
	capacity  int
	maxBytes  uint64
	locks     atomic.Int32

	slot ArchetypeID
}

// NewArchetypeStorage creates a table for arch with room for capacity rows.
// If the initial allocation cannot be made the table starts with capacity 0.
func NewArchetypeStorage(arch *Archetype, capacity int) *ArchetypeStorage {
	return newArchetypeStorage(arch, capacity, 0)
}

func newArchetypeStorage(arch *Archetype, capacity int, maxBytes uint64) *ArchetypeStorage {
	s := &ArchetypeStorage{
		archetype: arch,
		offsets:   make([]uintptr, arch.Count()),
		maxBytes:  maxBytes,
	}
	if capacity > 0 {
		_ = s.Reserve(capacity)
	}
	return s
}

// layout computes the column offsets and the total byte size for capacity
// rows. ok is false when the size does not fit in memory.
func (s *ArchetypeStorage) layout(capacity int, offsets []uintptr) (total uint64, ok bool) {
	rows := uint64(capacity)
	if rows > math.MaxUint64/uint64(sizeOfEntityID) {
		return 0, false
	}
	total = rows * uint64(sizeOfEntityID)

	for i, comp := range s.archetype.Components() {
		align := uint64(comp.Align)
		total = (total + align - 1) &^ (align - 1)
		offsets[i] = uintptr(total)

		size := uint64(comp.Size)
		if size != 0 && rows > (math.MaxUint64-total)/size {
			return 0, false
		}
		total += rows * size
	}

	if total > uint64(math.MaxInt) {
		return 0, false
	}
	return total, true
}

// Reserve resizes the table to hold newCapacity rows, copying live rows into
// the new block. Requests equal to the current capacity or below the current
// count are ignored. When the allocation fails the table is left empty with
// capacity 0 and ErrAllocationFailed is returned.
func (s *ArchetypeStorage) Reserve(newCapacity int) error {
	if s.IsLocked() {
		panic("ecs: cannot resize a locked archetype storage")
	}
	if newCapacity == s.capacity || newCapacity < s.count {
		return nil
	}

	offsets := make([]uintptr, len(s.offsets))
	total, ok := s.layout(newCapacity, offsets)
	if !ok || (s.maxBytes > 0 && total > s.maxBytes) {
		s.data = nil
		s.count = 0
		s.capacity = 0
		return eris.Wrapf(ErrAllocationFailed, "reserve %d rows for %s", newCapacity, s.archetype)
	}

	data := make([]uint64, (total+7)/8)
	if s.count > 0 {
		dst := wordsAsBytes(data)
		src := s.bytes()
		n := uintptr(s.count)
		copy(dst[:n*sizeOfEntityID], src[:n*sizeOfEntityID])
		for i, comp := range s.archetype.Components() {
			size := n * comp.Size
			copy(dst[offsets[i]:offsets[i]+size], src[s.offsets[i]:s.offsets[i]+size])
		}
	}

	s.data = data
	s.offsets = offsets
	s.capacity = newCapacity
	return nil
}

// Add appends id and default-constructs every component of the new row.
// It returns false when the table is full.
func (s *ArchetypeStorage) Add(id EntityID) (int, bool) {
	if s.IsLocked() {
		panic("ecs: cannot add to a locked archetype storage")
	}
	if s.count == s.capacity {
		return -1, false
	}

	row := s.count
	*(*EntityID)(s.entityPtr(row)) = id
	for i, comp := range s.archetype.Components() {
		comp.Construct(s.cell(i, row))
	}
	s.count++
	return row, true
}

// AddEntities appends ids without constructing their components. The caller
// must fill every component of the new rows. It returns the first new row.
func (s *ArchetypeStorage) AddEntities(ids []EntityID) (int, bool) {
	if s.IsLocked() {
		panic("ecs: cannot add to a locked archetype storage")
	}
	if len(ids) > s.capacity-s.count {
		return -1, false
	}
	if len(ids) == 0 {
		return s.count, true
	}

	start := s.count
	s.count += len(ids)
	copy(s.Entities()[start:], ids)
	return start, true
}

// Erase swap-removes row: the last row is moved into its place. Components
// are pointer-free, so nothing needs to be released.
func (s *ArchetypeStorage) Erase(row int) (EraseResult, bool) {
	if s.IsLocked() {
		panic("ecs: cannot erase from a locked archetype storage")
	}
	if row < 0 || row >= s.count {
		return EraseResult{}, false
	}

	last := s.count - 1
	var result EraseResult
	if row != last {
		entities := s.Entities()
		entities[row] = entities[last]
		for i, comp := range s.archetype.Components() {
			if comp.Size == 0 {
				continue
			}
			dst := unsafe.Slice((*byte)(s.cell(i, row)), comp.Size)
			src := unsafe.Slice((*byte)(s.cell(i, last)), comp.Size)
			copy(dst, src)
		}
		result = EraseResult{Moved: true, Entity: entities[row]}
	}
	s.count--
	return result, true
}

// IsValid reports whether row currently holds id.
func (s *ArchetypeStorage) IsValid(id EntityID, row int) bool {
	return row >= 0 && row < s.count && s.Entities()[row] == id
}

// Clear drops every row and keeps the allocation.
func (s *ArchetypeStorage) Clear() {
	if s.IsLocked() {
		panic("ecs: cannot clear a locked archetype storage")
	}
	s.count = 0
}

// Lock marks the table as being iterated. Locks nest.
func (s *ArchetypeStorage) Lock() {
	s.locks.Add(1)
}

// Unlock releases one Lock.
func (s *ArchetypeStorage) Unlock() {
	if s.locks.Add(-1) < 0 {
		s.locks.Add(1)
		panic("ecs: unlock of an unlocked archetype storage")
	}
}

// IsLocked reports whether any Lock is outstanding.
func (s *ArchetypeStorage) IsLocked() bool {
	return s.locks.Load() > 0
}

// Archetype returns the archetype stored in the table.
func (s *ArchetypeStorage) Archetype() *Archetype { return s.archetype }

// Count returns the number of live rows.
func (s *ArchetypeStorage) Count() int { return s.count }

// Capacity returns the number of rows that fit without growing.
func (s *ArchetypeStorage) Capacity() int { return s.capacity }

// Empty reports whether the table has no rows.
func (s *ArchetypeStorage) Empty() bool { return s.count == 0 }

// Entities returns the live part of the entity column.
func (s *ArchetypeStorage) Entities() []EntityID {
	if s.count == 0 {
		return nil
	}
	return unsafe.Slice((*EntityID)(s.entityPtr(0)), s.count)
}

// ComponentData returns the start of the column for id, or nil when the
// archetype has no such data component or the table has no allocation.
func (s *ArchetypeStorage) ComponentData(id ComponentID) unsafe.Pointer {
	idx := s.archetype.IndexOf(id)
	if idx < 0 || len(s.data) == 0 {
		return nil
	}
	return s.cell(idx, 0)
}

// ComponentBytes returns the raw bytes of one component in row.
func (s *ArchetypeStorage) ComponentBytes(id ComponentID, row int) []byte {
	idx := s.archetype.IndexOf(id)
	if idx < 0 || row < 0 || row >= s.count {
		return nil
	}
	size := s.archetype.Components()[idx].Size
	return unsafe.Slice((*byte)(s.cell(idx, row)), size)
}

// Column returns the live part of the column for id typed as T. It returns
// nil when the table has no such component or no rows, and panics when T
// does not match the registered layout.
func Column[T any](s *ArchetypeStorage, id ComponentID) []T {
	idx := s.archetype.IndexOf(id)
	if idx < 0 || s.count == 0 {
		return nil
	}
	checkColumnType[T](s.archetype.Components()[idx])
	return unsafe.Slice((*T)(s.cell(idx, 0)), s.count)
}

func checkColumnType[T any](info ComponentInfo) {
	if t := reflect.TypeFor[T](); t != info.Type {
		panic(fmt.Sprintf("ecs: column of %s accessed as %s", info.Type, t))
	}
}

func (s *ArchetypeStorage) bytes() []byte {
	return wordsAsBytes(s.data)
}

func (s *ArchetypeStorage) entityPtr(row int) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(unsafe.SliceData(s.data)), uintptr(row)*sizeOfEntityID)
}

func (s *ArchetypeStorage) cell(col, row int) unsafe.Pointer {
	size := s.archetype.Components()[col].Size
	return unsafe.Add(unsafe.Pointer(unsafe.SliceData(s.data)), s.offsets[col]+uintptr(row)*size)
}

func wordsAsBytes(words []uint64) []byte {
	if len(words) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), len(words)*8)
}
