package ecs

import (
	"reflect"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"
	"github.com/kamstrup/intmap"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// ArchetypeID is the index of an archetype inside its Registry. It stays
// valid for the Registry's lifetime.
type ArchetypeID uint32

type archetypeEntry struct {
	archetype *Archetype
	storage   *ArchetypeStorage
	addEdges  map[ComponentID]ArchetypeID
	remEdges  map[ComponentID]ArchetypeID
}

// Registry owns entities, their archetype storages, queries, deferred tasks
// and single components. It is not safe for concurrent use: overlapping
// calls from different goroutines panic.
type Registry struct {
	id         uuid.UUID
	components *ComponentRegistry
	config     Config
	logger     zerolog.Logger

	pool       EntityPool
	archetypes []archetypeEntry
	byHash     *intmap.Map[uint64, []ArchetypeID]
	rootEdges  map[ComponentID]ArchetypeID
	queries    []queryData

	messages       *MessageBuilder
	eventListeners map[reflect.Type][]func()
	pendingTasks   []func()
	runTasks       []func()
	draining       bool

	singles map[reflect.Type]*singleComponent

	busy atomic.Bool
}

// NewRegistry creates an empty registry for the given component types. It
// panics when the options produce an invalid Config.
func NewRegistry(components *ComponentRegistry, opts ...Option) *Registry {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		panic("ecs: " + err.Error())
	}

	id := uuid.New()
	return &Registry{
		id:             id,
		components:     components,
		config:         cfg,
		logger:         cfg.Logger.With().Str("registry", id.String()).Logger(),
		byHash:         intmap.New[uint64, []ArchetypeID](64),
		rootEdges:      make(map[ComponentID]ArchetypeID),
		messages:       NewMessageBuilder(components),
		eventListeners: make(map[reflect.Type][]func()),
		singles:        make(map[reflect.Type]*singleComponent),
	}
}

// ID returns the unique instance id used in logs and stats.
func (r *Registry) ID() uuid.UUID { return r.id }

// Components returns the component registry.
func (r *Registry) Components() *ComponentRegistry { return r.components }

// Messages returns the structural message builder.
func (r *Registry) Messages() *MessageBuilder { return r.messages }

func (r *Registry) enter() {
	if !r.busy.CompareAndSwap(false, true) {
		panic("ecs: registry used concurrently")
	}
}

func (r *Registry) leave() {
	r.busy.Store(false)
}

// CreateEntity creates an entity with default-constructed components ids.
// Without ids the entity has no archetype until a component is assigned.
func (r *Registry) CreateEntity(ids ...ComponentID) EntityID {
	r.enter()
	defer r.leave()

	if len(ids) == 0 {
		return r.pool.Assign()
	}

	arch := NewArchetype(NewArchetypeDesc(r.components, ids...), false)
	storage := r.archetypes[r.archetypeFor(arch)].storage
	mustBeUnlocked(storage)
	id := r.pool.Assign()
	row := r.addRow(storage, id)
	r.pool.SetArchetype(id, storage, row)

	for _, comp := range arch.Components() {
		r.messages.Add(id, comp.ID, AddedComponentTag)
	}
	for _, tag := range arch.Tags() {
		r.messages.Add(id, ComponentID(tag), AddedComponentTag)
	}
	return id
}

// DestroyEntity removes the entity and all its components. A
// RemovedComponent message carrying the final value is emitted for each
// component. It returns false for handles that are not alive.
func (r *Registry) DestroyEntity(id EntityID) bool {
	r.enter()
	defer r.leave()

	storage, row, ok := r.pool.GetArchetype(id)
	if !ok {
		return false
	}
	if storage != nil {
		mustBeUnlocked(storage)
		r.emitRemovedAll(id, storage, row)
		r.eraseRow(storage, row)
	}
	r.pool.Unassign(id)
	return true
}

// DestroyAllEntities drops every entity. Archetypes, storages and query
// caches are kept. No messages are emitted.
func (r *Registry) DestroyAllEntities() {
	r.enter()
	defer r.leave()

	for _, entry := range r.archetypes {
		entry.storage.Clear()
	}
	r.pool.Clear()
	r.messages.Clear()
}

// IsAlive reports whether id refers to a live entity.
func (r *Registry) IsAlive(id EntityID) bool {
	r.enter()
	defer r.leave()
	return r.pool.IsAlive(id)
}

// EntityCount returns the number of live entities.
func (r *Registry) EntityCount() int {
	r.enter()
	defer r.leave()
	return r.pool.Count()
}

// GetArchetype returns the entity's archetype, or nil when it has none or is
// not alive.
func (r *Registry) GetArchetype(id EntityID) *Archetype {
	r.enter()
	defer r.leave()

	storage, _, ok := r.pool.GetArchetype(id)
	if !ok || storage == nil {
		return nil
	}
	return storage.Archetype()
}

// HasComponentID reports whether the entity has the component or tag.
func (r *Registry) HasComponentID(id EntityID, comp ComponentID) bool {
	r.enter()
	defer r.leave()

	storage, _, ok := r.pool.GetArchetype(id)
	return ok && storage != nil && storage.Archetype().Has(comp)
}

// AssignComponentID attaches comp to the entity, moving it to the matching
// archetype. Assigning a component the entity already has is a no-op. It
// returns false when the entity is not alive.
func (r *Registry) AssignComponentID(id EntityID, comp ComponentID) bool {
	r.enter()
	defer r.leave()

	_, _, ok := r.assign(id, comp)
	return ok
}

// RemoveComponentID detaches comp from the entity. It returns false when the
// entity is not alive or does not have comp. Removing the last component
// leaves the entity alive without an archetype.
func (r *Registry) RemoveComponentID(id EntityID, comp ComponentID) bool {
	r.enter()
	defer r.leave()
	return r.remove(id, comp)
}

// AssignComponent attaches T to the entity and returns a pointer to its value
// inside the storage. The pointer is valid until the next structural change
// to the entity's storage. Tags return a pointer to a zero value. It returns
// nil when the entity is not alive.
func AssignComponent[T any](r *Registry, id EntityID) *T {
	comp := mustID[T](r.components)

	r.enter()
	defer r.leave()

	storage, row, ok := r.assign(id, comp)
	if !ok {
		return nil
	}
	return componentAt[T](storage, comp, row)
}

// RemoveComponent detaches T from the entity.
func RemoveComponent[T any](r *Registry, id EntityID) bool {
	return r.RemoveComponentID(id, mustID[T](r.components))
}

// GetComponent returns a pointer to the entity's T, or nil when absent. The
// pointer is valid until the next structural change to the entity's storage.
func GetComponent[T any](r *Registry, id EntityID) *T {
	comp := mustID[T](r.components)

	r.enter()
	defer r.leave()

	storage, row, ok := r.pool.GetArchetype(id)
	if !ok || storage == nil || !storage.Archetype().Has(comp) {
		return nil
	}
	return componentAt[T](storage, comp, row)
}

// HasComponent reports whether the entity has T.
func HasComponent[T any](r *Registry, id EntityID) bool {
	return r.HasComponentID(id, mustID[T](r.components))
}

func componentAt[T any](storage *ArchetypeStorage, comp ComponentID, row int) *T {
	idx := storage.Archetype().IndexOf(comp)
	if idx < 0 {
		return new(T)
	}
	return (*T)(storage.cell(idx, row))
}

func (r *Registry) assign(id EntityID, comp ComponentID) (*ArchetypeStorage, int, bool) {
	src, row, ok := r.pool.GetArchetype(id)
	if !ok {
		return nil, -1, false
	}
	if src != nil {
		if src.Archetype().Has(comp) {
			return src, row, true
		}
		mustBeUnlocked(src)
	}

	dst := r.archetypes[r.withComponent(src, comp)].storage
	mustBeUnlocked(dst)
	if src == nil {
		newRow := r.addRow(dst, id)
		r.pool.SetArchetype(id, dst, newRow)
		r.messages.Add(id, comp, AddedComponentTag)
		return dst, newRow, true
	}

	// Migrated columns are copied; only comp is constructed.
	r.ensureCapacity(dst, 1)
	ids := [1]EntityID{id}
	newRow, _ := dst.AddEntities(ids[:])
	for i, c := range dst.Archetype().Components() {
		if c.ID == comp {
			c.Construct(dst.cell(i, newRow))
			continue
		}
		copy(dst.ComponentBytes(c.ID, newRow), src.ComponentBytes(c.ID, row))
	}
	r.eraseRow(src, row)
	r.pool.SetArchetype(id, dst, newRow)
	r.messages.Add(id, comp, AddedComponentTag)
	return dst, newRow, true
}

func (r *Registry) remove(id EntityID, comp ComponentID) bool {
	src, row, ok := r.pool.GetArchetype(id)
	if !ok || src == nil || !src.Archetype().Has(comp) {
		return false
	}
	mustBeUnlocked(src)

	arch := src.Archetype()
	if arch.Count()+len(arch.Tags()) == 1 {
		r.emitRemoved(id, src, row, comp)
		r.eraseRow(src, row)
		r.pool.SetArchetype(id, nil, -1)
		return true
	}

	dst := r.archetypes[r.withoutComponent(src, comp)].storage
	mustBeUnlocked(dst)
	r.emitRemoved(id, src, row, comp)
	r.ensureCapacity(dst, 1)
	ids := [1]EntityID{id}
	newRow, _ := dst.AddEntities(ids[:])
	for _, c := range dst.Archetype().Components() {
		copy(dst.ComponentBytes(c.ID, newRow), src.ComponentBytes(c.ID, row))
	}
	r.eraseRow(src, row)
	r.pool.SetArchetype(id, dst, newRow)
	return true
}

func (r *Registry) emitRemoved(id EntityID, storage *ArchetypeStorage, row int, comp ComponentID) {
	if !r.messages.HasListener(comp, RemovedComponentTag) {
		return
	}
	r.messages.AddWithPayload(id, comp, RemovedComponentTag, storage.ComponentBytes(comp, row))
}

func (r *Registry) emitRemovedAll(id EntityID, storage *ArchetypeStorage, row int) {
	arch := storage.Archetype()
	for _, c := range arch.Components() {
		r.emitRemoved(id, storage, row, c.ID)
	}
	for _, t := range arch.Tags() {
		r.messages.Add(id, ComponentID(t), RemovedComponentTag)
	}
}

func mustBeUnlocked(storage *ArchetypeStorage) {
	if storage.IsLocked() {
		panic("ecs: structural change to " + storage.Archetype().String() + " while it is being iterated")
	}
}

// addRow appends a default-constructed row for id, growing the storage when
// it is full.
func (r *Registry) addRow(storage *ArchetypeStorage, id EntityID) int {
	r.ensureCapacity(storage, 1)
	row, ok := storage.Add(id)
	if !ok {
		panic("ecs: archetype storage has no room after growing")
	}
	return row
}

func (r *Registry) ensureCapacity(storage *ArchetypeStorage, extra int) {
	need := storage.Count() + extra
	if need <= storage.Capacity() {
		return
	}
	newCap := max(storage.Capacity()*2, need, r.config.InitialStorageCapacity)
	if err := storage.Reserve(newCap); err != nil {
		r.logger.Error().Err(err).
			Str("archetype", storage.Archetype().String()).
			Int("capacity", newCap).
			Msg("archetype storage allocation failed")
		panic(eris.Wrap(err, "ecs: grow archetype storage"))
	}
	r.logger.Debug().
		Str("archetype", storage.Archetype().String()).
		Int("capacity", newCap).
		Msg("archetype storage grown")
}

// eraseRow swap-removes row, repoints the entity that moved into it and
// shrinks the storage once it is mostly empty.
func (r *Registry) eraseRow(storage *ArchetypeStorage, row int) {
	result, ok := storage.Erase(row)
	if !ok {
		return
	}
	if result.Moved {
		r.pool.SetArchetype(result.Entity, storage, row)
	}

	initial := r.config.InitialStorageCapacity
	if storage.Capacity() > initial && storage.Count() < storage.Capacity()/4 {
		newCap := max(storage.Capacity()/2, initial)
		if err := storage.Reserve(newCap); err != nil {
			panic(eris.Wrap(err, "ecs: shrink archetype storage"))
		}
		r.logger.Debug().
			Str("archetype", storage.Archetype().String()).
			Int("capacity", newCap).
			Msg("archetype storage shrunk")
	}
}

// archetypeFor returns the id of the archetype equal to arch, creating its
// storage the first time the combination is seen.
func (r *Registry) archetypeFor(arch *Archetype) ArchetypeID {
	ids, _ := r.byHash.Get(arch.Hash())
	for _, aid := range ids {
		if r.archetypes[aid].archetype.Equal(arch) {
			return aid
		}
	}

	aid := ArchetypeID(len(r.archetypes))
	storage := newArchetypeStorage(arch, r.config.InitialStorageCapacity, r.config.MaxStorageBytes)
	storage.slot = aid
	r.archetypes = append(r.archetypes, archetypeEntry{
		archetype: arch,
		storage:   storage,
		addEdges:  make(map[ComponentID]ArchetypeID),
		remEdges:  make(map[ComponentID]ArchetypeID),
	})
	r.byHash.Put(arch.Hash(), append(ids, aid))

	matched := 0
	for i := range r.queries {
		if r.queries[i].matches(arch) {
			r.queries[i].archetypes = append(r.queries[i].archetypes, aid)
			matched++
		}
	}

	r.logger.Debug().
		Uint32("archetype_id", uint32(aid)).
		Str("components", arch.String()).
		Int("queries", matched).
		Msg("archetype created")
	return aid
}

func (r *Registry) withComponent(src *ArchetypeStorage, comp ComponentID) ArchetypeID {
	edges := r.rootEdges
	if src != nil {
		edges = r.archetypes[src.slot].addEdges
	}
	if aid, ok := edges[comp]; ok {
		return aid
	}

	var desc ArchetypeDesc
	if src != nil {
		desc = src.Archetype().Desc().Clone()
	}
	desc.Add(r.components.Info(comp))
	aid := r.archetypeFor(NewArchetype(desc, false))
	edges[comp] = aid
	return aid
}

func (r *Registry) withoutComponent(src *ArchetypeStorage, comp ComponentID) ArchetypeID {
	edges := r.archetypes[src.slot].remEdges
	if aid, ok := edges[comp]; ok {
		return aid
	}

	desc := src.Archetype().Desc().Clone()
	desc.Remove(comp)
	aid := r.archetypeFor(NewArchetype(desc, true))
	edges[comp] = aid
	return aid
}

// Archetypes returns every archetype in creation order.
func (r *Registry) Archetypes() []*Archetype {
	r.enter()
	defer r.leave()

	out := make([]*Archetype, len(r.archetypes))
	for i, entry := range r.archetypes {
		out[i] = entry.archetype
	}
	return out
}

// Storage returns the storage of an archetype.
func (r *Registry) Storage(aid ArchetypeID) *ArchetypeStorage {
	r.enter()
	defer r.leave()

	if int(aid) >= len(r.archetypes) {
		return nil
	}
	return r.archetypes[aid].storage
}

// Close tears the registry down: entities, single components, pending tasks
// and messages are dropped. It fails while the registry is processing tasks
// or any storage is being iterated.
func (r *Registry) Close() error {
	if !r.busy.CompareAndSwap(false, true) {
		return eris.Wrap(ErrRegistryBusy, "close registry")
	}
	defer r.leave()

	if r.draining {
		return eris.Wrap(ErrRegistryBusy, "close registry while processing")
	}
	for _, entry := range r.archetypes {
		if entry.storage.IsLocked() {
			return eris.Wrapf(ErrRegistryBusy, "close registry while %s is locked", entry.archetype)
		}
	}

	for _, entry := range r.archetypes {
		entry.storage.Clear()
	}
	r.pool.Clear()
	r.messages.Clear()
	r.pendingTasks = nil
	r.runTasks = nil
	r.destroySingles()
	r.logger.Debug().Int("archetypes", len(r.archetypes)).Msg("registry closed")
	return nil
}

func bytesOf[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}
