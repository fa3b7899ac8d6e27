package ecs

import "github.com/rotisserie/eris"

var (
	// ErrAllocationFailed is returned when a storage cannot be resized. The
	// storage is left empty.
	ErrAllocationFailed = eris.New("archetype storage allocation failed")
	// ErrRegistryBusy is returned by Close while the registry is draining or
	// iterating.
	ErrRegistryBusy = eris.New("registry is busy")
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = eris.New("invalid registry config")
)
