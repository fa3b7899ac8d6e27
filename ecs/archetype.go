package ecs

import (
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/TheBitDrifter/mask"
)

// ArchetypeDesc is the mutable builder for an Archetype.
type ArchetypeDesc struct {
	Components []ComponentInfo
	Tags       []TagComponentID
}

// NewArchetypeDesc builds a description from registered ids. Ids of zero-size
// types become tags.
func NewArchetypeDesc(r *ComponentRegistry, ids ...ComponentID) ArchetypeDesc {
	var desc ArchetypeDesc
	for _, id := range ids {
		desc.Add(r.Info(id))
	}
	return desc
}

// Add appends a component or tag.
func (d *ArchetypeDesc) Add(info ComponentInfo) *ArchetypeDesc {
	if info.IsTag() {
		d.Tags = append(d.Tags, TagComponentID(info.ID))
	} else {
		d.Components = append(d.Components, info)
	}
	return d
}

// Remove drops a component or tag, returning false when it was not present.
func (d *ArchetypeDesc) Remove(id ComponentID) bool {
	for i := range d.Components {
		if d.Components[i].ID == id {
			d.Components = slices.Delete(d.Components, i, i+1)
			return true
		}
	}
	for i := range d.Tags {
		if d.Tags[i] == TagComponentID(id) {
			d.Tags = slices.Delete(d.Tags, i, i+1)
			return true
		}
	}
	return false
}

// Empty reports whether the description has neither components nor tags.
func (d ArchetypeDesc) Empty() bool {
	return len(d.Components) == 0 && len(d.Tags) == 0
}

// Clone returns a deep copy that can be modified independently.
func (d ArchetypeDesc) Clone() ArchetypeDesc {
	return ArchetypeDesc{
		Components: slices.Clone(d.Components),
		Tags:       slices.Clone(d.Tags),
	}
}

// Archetype represents a unique combination of component and tag types.
// It is immutable once built and shared by every entity with that set.
type Archetype struct {
	desc     ArchetypeDesc
	hash     uint64
	maxAlign uintptr
	bits     mask.Mask256
}

// NewArchetype builds an archetype from desc. Components and tags are sorted
// by id unless sorted is true. An empty description, duplicate ids or a data
// component without a constructor are programmer errors and panic.
func NewArchetype(desc ArchetypeDesc, sorted bool) *Archetype {
	if desc.Empty() {
		panic("ecs: archetype must have at least one component or tag")
	}

	a := &Archetype{desc: desc.Clone()}
	if !sorted {
		sort.SliceStable(a.desc.Components, func(i, j int) bool {
			return a.desc.Components[i].ID < a.desc.Components[j].ID
		})
		slices.Sort(a.desc.Tags)
	}

	for i := 1; i < len(a.desc.Components); i++ {
		if a.desc.Components[i-1].ID >= a.desc.Components[i].ID {
			panic("ecs: archetype components must be unique and sorted by id")
		}
	}
	for i := 1; i < len(a.desc.Tags); i++ {
		if a.desc.Tags[i-1] >= a.desc.Tags[i] {
			panic("ecs: archetype tags must be unique and sorted by id")
		}
	}

	a.maxAlign = entityIDAlign
	for _, comp := range a.desc.Components {
		if comp.ctor == nil {
			panic("ecs: component " + comp.Type.String() + " has no constructor")
		}
		if comp.Size%comp.Align != 0 {
			panic("ecs: component " + comp.Type.String() + " size is not a multiple of its alignment")
		}
		a.maxAlign = max(a.maxAlign, comp.Align)
		a.bits.Mark(uint32(comp.ID))
	}
	for _, tag := range a.desc.Tags {
		a.bits.Mark(uint32(tag))
	}

	a.hash = hashArchetype(a.desc)
	return a
}

// hashArchetype is FNV-1a over the sorted component ids followed by the
// sorted tag ids, seeded with both lengths.
func hashArchetype(desc ArchetypeDesc) uint64 {
	const (
		offset uint64 = 14695981039346656037
		prime  uint64 = 1099511628211
	)
	h := offset
	mix := func(v uint64) {
		h ^= v
		h *= prime
	}

	mix(uint64(len(desc.Components)))
	for _, c := range desc.Components {
		mix(uint64(c.ID))
	}
	mix(uint64(len(desc.Tags)) | 1<<32)
	for _, t := range desc.Tags {
		mix(uint64(t))
	}
	return h
}

// Desc returns the sorted description. Callers must not modify it.
func (a *Archetype) Desc() ArchetypeDesc { return a.desc }

// Components returns the data components sorted by id.
func (a *Archetype) Components() []ComponentInfo { return a.desc.Components }

// Tags returns the tag ids sorted ascending.
func (a *Archetype) Tags() []TagComponentID { return a.desc.Tags }

// Hash returns the precomputed hash.
func (a *Archetype) Hash() uint64 { return a.hash }

// MaxAlign returns the largest alignment of the entity column and components.
func (a *Archetype) MaxAlign() uintptr { return a.maxAlign }

// Bits returns the id mask used for query matching.
func (a *Archetype) Bits() mask.Mask256 { return a.bits }

// Count returns the number of data components.
func (a *Archetype) Count() int { return len(a.desc.Components) }

// IndexOf returns the column index of a data component, or -1.
func (a *Archetype) IndexOf(id ComponentID) int {
	comps := a.desc.Components
	i := sort.Search(len(comps), func(i int) bool { return comps[i].ID >= id })
	if i < len(comps) && comps[i].ID == id {
		return i
	}
	return -1
}

// HasTag reports whether the tag is part of the archetype.
func (a *Archetype) HasTag(id TagComponentID) bool {
	_, found := slices.BinarySearch(a.desc.Tags, id)
	return found
}

// HasComponent reports whether the data component is part of the archetype.
func (a *Archetype) HasComponent(id ComponentID) bool {
	return a.IndexOf(id) >= 0
}

// Has reports whether id is present either as a data component or a tag.
func (a *Archetype) Has(id ComponentID) bool {
	return a.HasComponent(id) || a.HasTag(TagComponentID(id))
}

// Equal compares hash first and then both id sequences; the hash alone is
// never trusted.
func (a *Archetype) Equal(other *Archetype) bool {
	if a == other {
		return true
	}
	if other == nil || a.hash != other.hash {
		return false
	}
	if len(a.desc.Components) != len(other.desc.Components) || len(a.desc.Tags) != len(other.desc.Tags) {
		return false
	}
	for i := range a.desc.Components {
		if a.desc.Components[i].ID != other.desc.Components[i].ID {
			return false
		}
	}
	return slices.Equal(a.desc.Tags, other.desc.Tags)
}

// Contains reports whether every component and tag of other is also in a.
func (a *Archetype) Contains(other *Archetype) bool {
	if a == other {
		return true
	}
	if !containsSorted(a.desc.Components, other.desc.Components, func(c ComponentInfo) ComponentID { return c.ID }) {
		return false
	}
	return containsSorted(a.desc.Tags, other.desc.Tags, func(t TagComponentID) TagComponentID { return t })
}

func containsSorted[E any, K ComponentID | TagComponentID](set, sub []E, key func(E) K) bool {
	li, ri := 0, 0
	for li < len(set) && ri < len(sub) {
		l, r := key(set[li]), key(sub[ri])
		switch {
		case l < r:
			li++
		case l > r:
			return false
		default:
			li++
			ri++
		}
	}
	return ri == len(sub)
}

func (a *Archetype) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, c := range a.desc.Components {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.Type.String())
	}
	if len(a.desc.Tags) > 0 {
		sb.WriteString(" | tags:")
		for _, t := range a.desc.Tags {
			sb.WriteByte(' ')
			sb.WriteString(strconv.Itoa(int(t)))
		}
	}
	sb.WriteByte('}')
	return sb.String()
}
