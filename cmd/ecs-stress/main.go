package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/pkg/profile"
	"github.com/plus3/ecsst/ecs"
	"github.com/rs/zerolog"
)

func main() {
	duration := flag.Duration("duration", 10*time.Second, "The total duration the test should run for.")
	entityCount := flag.Int("entities", 10000, "The initial number of entities to create.")
	gcPauseMetrics := flag.Bool("gc-pause-metrics", false, "Enable detailed GC pause metrics in the report.")
	profileMode := flag.String("profile", "", "Write a profile to the working directory: cpu or mem.")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn or error.")
	interval := flag.Duration("interval", 0, "Fixed frame interval; 0 runs frames back to back.")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed for entity generation.")
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q: %v\n", *logLevel, err)
		os.Exit(2)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()

	switch *profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.Quiet).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.Quiet).Stop()
	default:
		logger.Fatal().Str("profile", *profileMode).Msg("unknown profile mode")
	}

	logger.Info().Msg("Starting ECS stress test")

	// 1. Setup components, registry and scheduler
	components := ecs.NewComponentRegistry()
	ids := registerComponents(components)
	registry := ecs.NewRegistry(components, ecs.WithLogger(logger), ecs.WithInitialStorageCapacity(64))
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Error().Err(err).Msg("closing registry")
		}
	}()

	rng := rand.New(rand.NewSource(*seed))
	counters := &Counters{}
	registerListeners(registry, ids, counters)

	scheduler := ecs.NewScheduler(registry)
	scheduler.Register(GravitySystem{})
	scheduler.Register(MovementSystem{})
	scheduler.Register(SpinSystem{})
	scheduler.Register(&LifetimeSystem{ids: ids, rng: rng})
	scheduler.Register(&DamageSystem{ids: ids})
	scheduler.Register(FrameSystem{})

	// 2. Populate the registry with initial entities
	logger.Info().Int("entities", *entityCount).Int64("seed", *seed).Msg("Populating registry")
	for i := 0; i < *entityCount; i++ {
		spawnRandomEntity(registry, rng, ids, rng.Intn(5)+1)
	}
	registry.Process()
	logger.Info().Int("archetypes", len(registry.Archetypes())).Msg("Population complete")

	// 3. Run the simulation loop
	report := &Report{
		Duration:       *duration,
		Interval:       *interval,
		Seed:           *seed,
		Entities:       *entityCount,
		Components:     components.Count(),
		GCPauseMetrics: *gcPauseMetrics,
	}

	runtime.ReadMemStats(&report.MemBefore)

	logger.Info().Dur("duration", *duration).Dur("interval", *interval).Msg("Running simulation")
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	startTime := time.Now()
	if *interval > 0 {
		scheduler.Run(ctx, *interval)
	} else {
		runLoop(ctx, scheduler, &report.FrameTimes)
	}

	report.TotalTime = time.Since(startTime)
	runtime.ReadMemStats(&report.MemAfter)
	report.Frames = int64(counters.Frames)
	report.FrameTimes.Summarize()
	report.Counters = *counters
	report.Scheduler = scheduler.GetStats()
	report.Registry = registry.CollectStats()
	if clock := ecs.GetSingleComponent[SimClock](registry); clock != nil {
		report.Simulated = time.Duration(clock.Elapsed * float64(time.Second))
	}

	logger.Info().Msg("Simulation finished")

	// 4. Generate report to console
	fmt.Println("\n\n--- Stress Test Report ---")
	if err := report.Generate(os.Stdout); err != nil {
		logger.Fatal().Err(err).Msg("Failed to generate report")
	}
	fmt.Println("--- End of Report ---")
}

func runLoop(ctx context.Context, scheduler *ecs.Scheduler, frames *FrameTimes) {
	lastFrameTime := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			deltaTime := time.Since(lastFrameTime)
			lastFrameTime = time.Now()

			updateStart := time.Now()
			scheduler.Once(deltaTime.Seconds())
			frames.Add(time.Since(updateStart))
		}
	}
}
