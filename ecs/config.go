package ecs

import (
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// DefaultInitialStorageCapacity is the row capacity of a newly created
// archetype storage.
const DefaultInitialStorageCapacity = 16

// Config holds the tunables of a Registry.
type Config struct {
	// InitialStorageCapacity is the number of rows reserved when a storage is
	// created. Storages never shrink below it.
	InitialStorageCapacity int
	// MaxStorageBytes caps the allocation of a single storage. Zero means no
	// limit. Growing past it fails with ErrAllocationFailed.
	MaxStorageBytes uint64
	// Logger receives registry diagnostics.
	Logger zerolog.Logger
}

// DefaultConfig returns the configuration used by NewRegistry.
func DefaultConfig() Config {
	return Config{
		InitialStorageCapacity: DefaultInitialStorageCapacity,
		Logger:                 zerolog.Nop(),
	}
}

// Validate checks the configuration for values a Registry cannot work with.
func (c Config) Validate() error {
	if c.InitialStorageCapacity <= 0 {
		return eris.Wrapf(ErrInvalidConfig, "initial storage capacity must be positive, got %d", c.InitialStorageCapacity)
	}
	entityBytes := uint64(c.InitialStorageCapacity) * uint64(sizeOfEntityID)
	if c.MaxStorageBytes > 0 && c.MaxStorageBytes < entityBytes {
		return eris.Wrapf(ErrInvalidConfig, "max storage bytes %d cannot hold %d entities", c.MaxStorageBytes, c.InitialStorageCapacity)
	}
	return nil
}

// Option configures a Registry.
type Option func(*Config)

// WithLogger sets the registry logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithInitialStorageCapacity sets the initial row capacity of new storages.
func WithInitialStorageCapacity(rows int) Option {
	return func(c *Config) {
		c.InitialStorageCapacity = rows
	}
}

// WithMaxStorageBytes caps the size of a single storage allocation.
func WithMaxStorageBytes(n uint64) Option {
	return func(c *Config) {
		c.MaxStorageBytes = n
	}
}
