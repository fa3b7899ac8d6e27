package ecs

// System represents a behavior that operates on entities with specific components.
// Accesses declares the query the Scheduler compiles for the system; Execute
// receives one chunk per matching storage every frame. Systems can include
// Singleton and View fields, which the Scheduler initializes on Register, as
// well as custom state fields that persist between frames.
type System interface {
	Accesses() []Access
	Execute(frame *UpdateFrame, chunks []Chunk)
}
