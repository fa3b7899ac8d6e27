package ecs

import (
	"context"
	"reflect"
	"strings"
	"time"
)

// SchedulerStats provides statistics about scheduler execution.
type SchedulerStats struct {
	SystemCount     int
	TotalExecutions int64
	Systems         []SystemStats
}

// SystemStats provides execution statistics for a single system. Chunk and
// entity counts are what the system's query matched on its last run.
type SystemStats struct {
	Name           string
	ExecutionCount int64
	MinDuration    time.Duration
	MaxDuration    time.Duration
	AvgDuration    time.Duration
	LastDuration   time.Duration
	TotalDuration  time.Duration
	LastChunks     int
	LastEntities   int
	TotalEntities  int64
}

type systemStatsInternal struct {
	name           string
	executionCount int64
	minDuration    time.Duration
	maxDuration    time.Duration
	totalDuration  time.Duration
	lastDuration   time.Duration
	lastChunks     int
	lastEntities   int
	totalEntities  int64
}

func (s *systemStatsInternal) record(duration time.Duration, chunks []Chunk) {
	s.executionCount++
	s.lastDuration = duration
	s.totalDuration += duration

	s.lastChunks = len(chunks)
	s.lastEntities = 0
	for _, c := range chunks {
		s.lastEntities += c.Count
	}
	s.totalEntities += int64(s.lastEntities)

	if duration < s.minDuration {
		s.minDuration = duration
	}
	if duration > s.maxDuration {
		s.maxDuration = duration
	}
}

// Scheduler manages and executes systems in order. Every system runs as a
// deferred query task on the registry, so messages emitted by one system are
// delivered before the next one starts.
type Scheduler struct {
	registry    *Registry
	systems     []System
	queries     []QueryID
	systemStats []*systemStatsInternal
}

// NewScheduler creates a new scheduler for the given registry.
func NewScheduler(registry *Registry) *Scheduler {
	return &Scheduler{
		registry: registry,
		systems:  make([]System, 0),
	}
}

// Register adds a system to the scheduler, compiles its query and
// initializes its Singleton and View fields.
func (s *Scheduler) Register(system System) {
	s.initializeFields(system)
	s.systems = append(s.systems, system)
	s.queries = append(s.queries, s.registry.CreateQuery(system.Accesses()...))

	systemType := reflect.TypeOf(system)
	if systemType.Kind() == reflect.Ptr {
		systemType = systemType.Elem()
	}
	systemName := systemType.Name()

	s.systemStats = append(s.systemStats, &systemStatsInternal{
		name:        systemName,
		minDuration: time.Duration(1<<63 - 1),
	})
}

func (s *Scheduler) initializeFields(system System) {
	systemValue := reflect.ValueOf(system)
	if systemValue.Kind() == reflect.Ptr {
		systemValue = systemValue.Elem()
	}

	if systemValue.Kind() != reflect.Struct {
		return
	}

	systemType := systemValue.Type()

	for i := 0; i < systemValue.NumField(); i++ {
		field := systemValue.Field(i)
		fieldType := systemType.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() != reflect.Struct {
			continue
		}

		typeName := field.Type().Name()

		if strings.HasPrefix(typeName, "Singleton[") || strings.HasPrefix(typeName, "View[") {
			initMethod := field.Addr().MethodByName("Init")
			if !initMethod.IsValid() {
				panic("ecs: Init method not found on field: " + fieldType.Name)
			}

			initMethod.Call([]reflect.Value{
				reflect.ValueOf(s.registry),
			})
		}
	}
}

// Once executes all registered systems once with the given delta time, then
// flushes the frame's Commands. It drains the registry with Process and must
// not be called from inside a task.
func (s *Scheduler) Once(dt float64) {
	frame := newUpdateFrame(dt, s.registry)

	for i, system := range s.systems {
		stats := s.systemStats[i]
		s.registry.EnqueBatch(s.queries[i], func(b Batch) {
			frame.batch = b
			defer func() { frame.batch = Batch{} }()

			start := time.Now()
			system.Execute(frame, b.Chunks)
			stats.record(time.Since(start), b.Chunks)
		})
	}
	s.registry.Enque(func() {
		frame.Commands.Flush(s.registry)
	})

	s.registry.Process()
}

// Run executes all systems repeatedly at the given interval until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(lastTime).Seconds()
			lastTime = now
			s.Once(dt)
		}
	}
}

// GetStats returns statistics about system execution.
func (s *Scheduler) GetStats() *SchedulerStats {
	stats := &SchedulerStats{
		SystemCount: len(s.systems),
		Systems:     make([]SystemStats, len(s.systemStats)),
	}

	var totalExecs int64
	for i, internal := range s.systemStats {
		avgDuration := time.Duration(0)
		if internal.executionCount > 0 {
			avgDuration = internal.totalDuration / time.Duration(internal.executionCount)
		}

		stats.Systems[i] = SystemStats{
			Name:           internal.name,
			ExecutionCount: internal.executionCount,
			MinDuration:    internal.minDuration,
			MaxDuration:    internal.maxDuration,
			AvgDuration:    avgDuration,
			LastDuration:   internal.lastDuration,
			TotalDuration:  internal.totalDuration,
			LastChunks:     internal.lastChunks,
			LastEntities:   internal.lastEntities,
			TotalEntities:  internal.totalEntities,
		}
		totalExecs += internal.executionCount
	}

	stats.TotalExecutions = totalExecs
	return stats
}
