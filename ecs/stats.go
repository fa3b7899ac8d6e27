package ecs

import (
	"reflect"

	"github.com/google/uuid"
)

// RegistryStats is a snapshot of a registry's size.
type RegistryStats struct {
	RegistryID         uuid.UUID
	ArchetypeCount     int
	TotalEntityCount   int
	StoredEntityCount  int
	SingletonCount     int
	QueryCount         int
	PendingTasks       int
	ArchetypeBreakdown []ArchetypeStats
	SingletonTypes     []reflect.Type
}

// ArchetypeStats describes one archetype storage.
type ArchetypeStats struct {
	ID             ArchetypeID
	Hash           uint64
	ComponentTypes []reflect.Type
	TagCount       int
	EntityCount    int
	Capacity       int
	Bytes          int
}

// CollectStats returns statistics about the registry. Entities without
// components count towards TotalEntityCount but not StoredEntityCount.
func (r *Registry) CollectStats() RegistryStats {
	r.enter()
	defer r.leave()

	stats := RegistryStats{
		RegistryID:         r.id,
		ArchetypeCount:     len(r.archetypes),
		TotalEntityCount:   r.pool.Count(),
		SingletonCount:     len(r.singles),
		QueryCount:         len(r.queries),
		PendingTasks:       len(r.pendingTasks) + len(r.runTasks),
		ArchetypeBreakdown: make([]ArchetypeStats, 0, len(r.archetypes)),
		SingletonTypes:     make([]reflect.Type, 0, len(r.singles)),
	}

	for aid, entry := range r.archetypes {
		types := make([]reflect.Type, 0, entry.archetype.Count())
		for _, comp := range entry.archetype.Components() {
			types = append(types, comp.Type)
		}
		stats.ArchetypeBreakdown = append(stats.ArchetypeBreakdown, ArchetypeStats{
			ID:             ArchetypeID(aid),
			Hash:           entry.archetype.Hash(),
			ComponentTypes: types,
			TagCount:       len(entry.archetype.Tags()),
			EntityCount:    entry.storage.Count(),
			Capacity:       entry.storage.Capacity(),
			Bytes:          len(entry.storage.data) * 8,
		})
		stats.StoredEntityCount += entry.storage.Count()
	}

	for t := range r.singles {
		stats.SingletonTypes = append(stats.SingletonTypes, t)
	}
	return stats
}
