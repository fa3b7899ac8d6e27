package main

import (
	"fmt"
	"io"
	"runtime"
	"slices"
	"text/template"
	"time"

	"github.com/plus3/ecsst/ecs"
)

// Report is everything printed after a stress run.
type Report struct {
	Duration   time.Duration
	Interval   time.Duration
	Seed       int64
	Entities   int
	Components int

	Frames     int64
	TotalTime  time.Duration
	Simulated  time.Duration
	FrameTimes FrameTimes
	Counters   Counters
	Scheduler  *ecs.SchedulerStats
	Registry   ecs.RegistryStats

	GCPauseMetrics bool
	MemBefore      runtime.MemStats
	MemAfter       runtime.MemStats
}

// FrameTimes summarizes the duration of Scheduler.Once calls. It stays
// empty when frames are driven by Scheduler.Run.
type FrameTimes struct {
	Samples []time.Duration
	P50     time.Duration
	P99     time.Duration
	Worst   time.Duration
	Mean    time.Duration
}

func (f *FrameTimes) Add(d time.Duration) {
	f.Samples = append(f.Samples, d)
}

// Summarize computes the percentiles; it sorts Samples in place.
func (f *FrameTimes) Summarize() {
	if len(f.Samples) == 0 {
		return
	}
	slices.Sort(f.Samples)

	var total time.Duration
	for _, d := range f.Samples {
		total += d
	}
	f.Mean = total / time.Duration(len(f.Samples))
	f.P50 = f.percentile(50)
	f.P99 = f.percentile(99)
	f.Worst = f.Samples[len(f.Samples)-1]
}

func (f *FrameTimes) percentile(p int) time.Duration {
	return f.Samples[(len(f.Samples)-1)*p/100]
}

// FramesPerSecond is the achieved frame rate over the whole run.
func (r *Report) FramesPerSecond() float64 {
	if r.TotalTime <= 0 {
		return 0
	}
	return float64(r.Frames) / r.TotalTime.Seconds()
}

// StorageBytes is the memory held by every archetype storage.
func (r *Report) StorageBytes() int {
	total := 0
	for _, a := range r.Registry.ArchetypeBreakdown {
		total += a.Bytes
	}
	return total
}

// Occupancy is the share of allocated rows holding an entity.
func (r *Report) Occupancy() float64 {
	rows, capacity := 0, 0
	for _, a := range r.Registry.ArchetypeBreakdown {
		rows += a.EntityCount
		capacity += a.Capacity
	}
	if capacity == 0 {
		return 0
	}
	return float64(rows) / float64(capacity) * 100
}

type memoryRow struct {
	Name          string
	Before, After uint64
}

func (m memoryRow) Delta() int64 { return int64(m.After) - int64(m.Before) }

func (r *Report) Memory() []memoryRow {
	return []memoryRow{
		{"heap in use", r.MemBefore.HeapInuse, r.MemAfter.HeapInuse},
		{"heap objects", r.MemBefore.HeapObjects, r.MemAfter.HeapObjects},
		{"allocated total", r.MemBefore.TotalAlloc, r.MemAfter.TotalAlloc},
		{"mallocs", r.MemBefore.Mallocs, r.MemAfter.Mallocs},
		{"from OS", r.MemBefore.Sys, r.MemAfter.Sys},
		{"gc cycles", uint64(r.MemBefore.NumGC), uint64(r.MemAfter.NumGC)},
	}
}

func (r *Report) GCPause() time.Duration {
	return time.Duration(r.MemAfter.PauseTotalNs - r.MemBefore.PauseTotalNs)
}

const reportTemplate = `
# ECS Stress Run {{.Registry.RegistryID}}

seed {{.Seed}}, {{.Entities}} initial entities, {{.Components}} component types,
{{.Scheduler.SystemCount}} systems, {{.Duration}}{{if .Interval}} at one frame per {{.Interval}}{{else}} unthrottled{{end}}

## Frames
- frames: {{.Frames}} in {{.TotalTime}} ({{printf "%.1f" .FramesPerSecond}}/s), {{.Simulated}} simulated
{{- with .FrameTimes}}{{if .Samples}}
- frame time: mean {{.Mean}}, p50 {{.P50}}, p99 {{.P99}}, worst {{.Worst}}
{{- end}}{{end}}

| System | Runs | Mean | Worst | Chunks | Entities |
|---|---:|---:|---:|---:|---:|
{{- range .Scheduler.Systems}}
| {{.Name}} | {{.ExecutionCount}} | {{.AvgDuration}} | {{.MaxDuration}} | {{.LastChunks}} | {{.LastEntities}} |
{{- end}}

## Storage
{{- with .Registry}}
- entities: {{.TotalEntityCount}} live, {{.StoredEntityCount}} in storages
- archetypes: {{.ArchetypeCount}}, queries: {{.QueryCount}}, singletons: {{.SingletonCount}}
{{- end}}
- storage: {{mib .StorageBytes}} MiB at {{printf "%.0f" .Occupancy}}% occupancy

| Archetype | Components | Tags | Rows | Capacity |
|---|---|---:|---:|---:|
{{- range .Registry.ArchetypeBreakdown}}
| {{.ID}} | {{.ComponentTypes}} | {{.TagCount}} | {{.EntityCount}} | {{.Capacity}} |
{{- end}}

## Messages
- spawned {{.Counters.Spawned}}, expired {{.Counters.Expired}} ({{.Counters.Wounded}} wounded), hidden {{.Counters.Hidden}}

## Memory
| | Before | After | Delta |
|---|---:|---:|---:|
{{- range .Memory}}
| {{.Name}} | {{.Before}} | {{.After}} | {{.Delta}} |
{{- end}}
{{- if .GCPauseMetrics}}

GC paused for {{.GCPause}} in total.
{{- end}}
`

var reportFuncs = template.FuncMap{
	"mib": func(bytes int) string {
		return fmt.Sprintf("%.2f", float64(bytes)/(1<<20))
	},
}

// Generate writes the report as markdown.
func (r *Report) Generate(w io.Writer) error {
	tmpl, err := template.New("report").Funcs(reportFuncs).Parse(reportTemplate)
	if err != nil {
		return err
	}
	return tmpl.Execute(w, r)
}
