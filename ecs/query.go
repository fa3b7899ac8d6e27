package ecs

import (
	"fmt"
	"reflect"
	"slices"
	"unsafe"

	"github.com/TheBitDrifter/mask"
)

// AccessMode says how a query uses a component type.
type AccessMode uint8

const (
	// AccessRead requires the component and allows reading its column.
	AccessRead AccessMode = iota
	// AccessWrite requires the component and allows writing its column.
	AccessWrite
	// AccessOptionalRead reads the column when the archetype has it.
	AccessOptionalRead
	// AccessOptionalWrite writes the column when the archetype has it.
	AccessOptionalWrite
	// AccessSubtractive excludes archetypes with the component.
	AccessSubtractive
	// AccessRequire requires the component without accessing its column.
	AccessRequire
	// AccessRequireAny requires at least one of the RequireAny components.
	AccessRequireAny
	// AccessSingle hands the single component of the type to the query
	// callback, creating it when missing.
	AccessSingle
	// AccessOptionalSingle hands the single component to the callback, or
	// nil when it does not exist.
	AccessOptionalSingle
)

func (m AccessMode) String() string {
	switch m {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessOptionalRead:
		return "optional-read"
	case AccessOptionalWrite:
		return "optional-write"
	case AccessSubtractive:
		return "subtractive"
	case AccessRequire:
		return "require"
	case AccessRequireAny:
		return "require-any"
	case AccessSingle:
		return "single"
	case AccessOptionalSingle:
		return "optional-single"
	}
	return fmt.Sprintf("AccessMode(%d)", uint8(m))
}

// Access declares one component type used by a query.
type Access struct {
	Mode AccessMode
	Type reflect.Type
}

func Read[T any]() Access          { return Access{AccessRead, reflect.TypeFor[T]()} }
func Write[T any]() Access         { return Access{AccessWrite, reflect.TypeFor[T]()} }
func OptionalRead[T any]() Access  { return Access{AccessOptionalRead, reflect.TypeFor[T]()} }
func OptionalWrite[T any]() Access { return Access{AccessOptionalWrite, reflect.TypeFor[T]()} }
func Subtractive[T any]() Access   { return Access{AccessSubtractive, reflect.TypeFor[T]()} }
func Require[T any]() Access       { return Access{AccessRequire, reflect.TypeFor[T]()} }
func RequireAny[T any]() Access    { return Access{AccessRequireAny, reflect.TypeFor[T]()} }

// Single and OptionalSingle name single components, which need no
// registration and do not affect which archetypes match.
func Single[T any]() Access         { return Access{AccessSingle, reflect.TypeFor[T]()} }
func OptionalSingle[T any]() Access { return Access{AccessOptionalSingle, reflect.TypeFor[T]()} }

// QueryID identifies a compiled query inside its Registry.
type QueryID uint32

type queryAccess struct {
	id   ComponentID
	mode AccessMode
}

type querySingle struct {
	t        reflect.Type
	optional bool
}

type queryData struct {
	required    mask.Mask256
	subtractive mask.Mask256
	requireAny  mask.Mask256
	hasAny      bool
	accesses    []queryAccess
	singles     []querySingle
	archetypes  []ArchetypeID
}

func (q *queryData) matches(arch *Archetype) bool {
	bits := &arch.bits
	if !bits.ContainsAll(q.required) {
		return false
	}
	// ContainsNone is false for an empty argument.
	if bits.ContainsAny(q.subtractive) {
		return false
	}
	return !q.hasAny || bits.ContainsAny(q.requireAny)
}

func (q *queryData) sameAs(other *queryData) bool {
	return q.required == other.required &&
		q.subtractive == other.subtractive &&
		q.requireAny == other.requireAny &&
		slices.Equal(q.accesses, other.accesses) &&
		slices.Equal(q.singles, other.singles)
}

func (q *queryData) singleIndex(t reflect.Type) (int, bool) {
	for i, s := range q.singles {
		if s.t == t {
			return i, true
		}
	}
	return -1, false
}

func (q *queryData) mode(id ComponentID) (AccessMode, bool) {
	for _, a := range q.accesses {
		if a.id == id {
			return a.mode, true
		}
	}
	return 0, false
}

// CreateQuery compiles the accesses into a query and returns its id. Equal
// access lists return the same id. Naming one component type in more than
// one access panics.
func (r *Registry) CreateQuery(accesses ...Access) QueryID {
	q := queryData{accesses: make([]queryAccess, 0, len(accesses))}
	for _, access := range accesses {
		if access.Mode == AccessSingle || access.Mode == AccessOptionalSingle {
			if !isPointerFree(access.Type) {
				panic("ecs: single component " + access.Type.String() + " must not contain pointers")
			}
			if _, dup := q.singleIndex(access.Type); dup {
				panic("ecs: single component " + access.Type.String() + " used more than once in a query")
			}
			q.singles = append(q.singles, querySingle{t: access.Type, optional: access.Mode == AccessOptionalSingle})
			continue
		}

		id, ok := r.components.ids[access.Type]
		if !ok {
			panic("ecs: component type " + access.Type.String() + " not registered")
		}
		if _, dup := q.mode(id); dup {
			panic("ecs: component type " + access.Type.String() + " used more than once in a query")
		}
		q.accesses = append(q.accesses, queryAccess{id: id, mode: access.Mode})

		switch access.Mode {
		case AccessRead, AccessWrite, AccessRequire:
			q.required.Mark(uint32(id))
		case AccessSubtractive:
			q.subtractive.Mark(uint32(id))
		case AccessRequireAny:
			q.requireAny.Mark(uint32(id))
			q.hasAny = true
		}
	}

	r.enter()
	defer r.leave()

	for i := range r.queries {
		if r.queries[i].sameAs(&q) {
			return QueryID(i)
		}
	}

	for aid, entry := range r.archetypes {
		if q.matches(entry.archetype) {
			q.archetypes = append(q.archetypes, ArchetypeID(aid))
		}
	}

	qid := QueryID(len(r.queries))
	r.queries = append(r.queries, q)
	r.logger.Debug().
		Uint32("query_id", uint32(qid)).
		Int("accesses", len(q.accesses)).
		Int("archetypes", len(q.archetypes)).
		Msg("query created")
	return qid
}

// QueryArchetypes returns the archetypes currently matched by q in discovery
// order.
func (r *Registry) QueryArchetypes(q QueryID) []ArchetypeID {
	r.enter()
	defer r.leave()
	return slices.Clone(r.query(q).archetypes)
}

func (r *Registry) query(q QueryID) *queryData {
	if int(q) >= len(r.queries) {
		panic(fmt.Sprintf("ecs: unknown query %d", q))
	}
	return &r.queries[q]
}

// Execute locks every storage matched by q and calls fn once with one chunk
// per storage, in archetype discovery order. Storages without entities yield
// chunks with Count 0. fn runs even when nothing matches. Structural changes
// to the locked storages panic until fn returns; use Enque or Commands to
// defer them.
func (r *Registry) Execute(q QueryID, fn func(chunks []Chunk)) {
	r.ExecuteBatch(q, func(b Batch) {
		fn(b.Chunks)
	})
}

// ExecuteBatch is Execute with the query's single components resolved into
// the Batch. Read them with SingleOf.
func (r *Registry) ExecuteBatch(q QueryID, fn func(b Batch)) {
	b := r.lockBatch(q)
	defer func() {
		for _, c := range b.Chunks {
			c.storage.Unlock()
		}
	}()
	fn(b)
}

func (r *Registry) lockBatch(q QueryID) Batch {
	r.enter()
	defer r.leave()

	data := r.query(q)
	b := Batch{query: data}
	if len(data.singles) > 0 {
		b.singles = make([]unsafe.Pointer, len(data.singles))
		for i, s := range data.singles {
			if s.optional {
				if single, ok := r.singles[s.t]; ok {
					b.singles[i] = single.ptr
				}
				continue
			}
			b.singles[i] = r.singleFor(s.t)
		}
	}

	b.Chunks = make([]Chunk, 0, len(data.archetypes))
	for _, aid := range data.archetypes {
		storage := r.archetypes[aid].storage
		storage.Lock()
		b.Chunks = append(b.Chunks, Chunk{
			Count:      storage.Count(),
			storage:    storage,
			query:      data,
			components: r.components,
		})
	}
	return b
}

// Batch is everything one ExecuteBatch call hands to its callback.
type Batch struct {
	Chunks []Chunk

	query   *queryData
	singles []unsafe.Pointer
}

func (b Batch) singleRef(t reflect.Type) unsafe.Pointer {
	if b.query == nil {
		panic("ecs: single component " + t.String() + " requested outside a query")
	}
	i, ok := b.query.singleIndex(t)
	if !ok {
		panic("ecs: single component " + t.String() + " is not declared in this query")
	}
	return b.singles[i]
}

// SingleSource is implemented by Batch and UpdateFrame.
type SingleSource interface {
	singleRef(t reflect.Type) unsafe.Pointer
}

// SingleOf returns the single component T declared with Single or
// OptionalSingle. It is nil only for a missing OptionalSingle. Asking for an
// undeclared type panics.
func SingleOf[T any](src SingleSource) *T {
	return (*T)(src.singleRef(reflect.TypeFor[T]()))
}

// Chunk is the view of one locked storage during Execute.
type Chunk struct {
	Count int

	storage    *ArchetypeStorage
	query      *queryData
	components *ComponentRegistry
}

// Entities returns the entity column of the chunk.
func (c Chunk) Entities() []EntityID {
	return c.storage.Entities()
}

// Archetype returns the archetype of the chunk.
func (c Chunk) Archetype() *Archetype {
	return c.storage.Archetype()
}

// Has reports whether the chunk's archetype has T.
func Has[T any](c Chunk) bool {
	return c.storage.Archetype().Has(mustID[T](c.components))
}

// ReadColumn returns the column of a component declared with Read or Write.
func ReadColumn[T any](c Chunk) []T {
	return chunkColumn[T](c, AccessRead, AccessWrite)
}

// WriteColumn returns the column of a component declared with Write.
func WriteColumn[T any](c Chunk) []T {
	return chunkColumn[T](c, AccessWrite)
}

// OptionalReadColumn returns the column of an optional component, or nil when
// the chunk's archetype does not have it.
func OptionalReadColumn[T any](c Chunk) []T {
	return chunkColumn[T](c, AccessOptionalRead, AccessOptionalWrite)
}

// OptionalWriteColumn returns the column of a component declared with
// OptionalWrite, or nil when the chunk's archetype does not have it.
func OptionalWriteColumn[T any](c Chunk) []T {
	return chunkColumn[T](c, AccessOptionalWrite)
}

func chunkColumn[T any](c Chunk, allowed ...AccessMode) []T {
	id := mustID[T](c.components)
	mode, ok := c.query.mode(id)
	if !ok || !slices.Contains(allowed, mode) {
		declared := "undeclared"
		if ok {
			declared = "declared " + mode.String()
		}
		panic(fmt.Sprintf("ecs: column %s is %s in this query", reflect.TypeFor[T](), declared))
	}
	return Column[T](c.storage, id)
}
