package ecs

import (
	"reflect"
	"unsafe"
)

// UpdateFrame is passed to every system run by one Scheduler.Once call.
// Structural changes made while iterating chunks must go through Commands.
// Single components declared in a system's Accesses are read with SingleOf.
type UpdateFrame struct {
	DeltaTime float64
	Commands  *Commands
	Registry  *Registry

	batch Batch
}

func (f *UpdateFrame) singleRef(t reflect.Type) unsafe.Pointer {
	return f.batch.singleRef(t)
}

func newUpdateFrame(dt float64, registry *Registry) *UpdateFrame {
	return &UpdateFrame{
		DeltaTime: dt,
		Commands:  newCommands(),
		Registry:  registry,
	}
}
