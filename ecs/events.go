package ecs

import (
	"reflect"
	"unsafe"
)

// BeforeEvent is the stage run before the listeners of Ev.
type BeforeEvent[Ev any] struct{}

// AfterEvent is the stage run after the listeners of Ev.
type AfterEvent[Ev any] struct{}

// Enque defers fn until the next Process.
func (r *Registry) Enque(fn func()) {
	r.enter()
	defer r.leave()
	r.pendingTasks = append(r.pendingTasks, fn)
}

// EnqueQuery defers Execute(q, fn) until the next Process.
func (r *Registry) EnqueQuery(q QueryID, fn func(chunks []Chunk)) {
	r.Enque(func() { r.Execute(q, fn) })
}

// EnqueBatch defers ExecuteBatch(q, fn) until the next Process.
func (r *Registry) EnqueBatch(q QueryID, fn func(b Batch)) {
	r.Enque(func() { r.ExecuteBatch(q, fn) })
}

// EnqueEvent defers the three stages BeforeEvent[Ev], Ev and AfterEvent[Ev].
// Each stage is a separate task.
func EnqueEvent[Ev any](r *Registry) {
	r.Enque(func() { r.runEvent(reflect.TypeFor[BeforeEvent[Ev]]()) })
	r.Enque(func() { r.runEvent(reflect.TypeFor[Ev]()) })
	r.Enque(func() { r.runEvent(reflect.TypeFor[AfterEvent[Ev]]()) })
}

// AddEventListener registers fn for event stage Ev. Use BeforeEvent and
// AfterEvent to listen to the surrounding stages.
func AddEventListener[Ev any](r *Registry, fn func()) {
	r.enter()
	defer r.leave()

	t := reflect.TypeFor[Ev]()
	r.eventListeners[t] = append(r.eventListeners[t], fn)
}

func (r *Registry) runEvent(t reflect.Type) {
	r.enter()
	listeners := r.eventListeners[t]
	r.leave()

	for _, fn := range listeners {
		fn()
	}
}

// Process drains the task queue. Tasks queued before the call run in
// submission order; tasks queued by a running task join the queue after
// every task already in it. Pending messages are delivered before the first
// task and after each task. Calling Process from inside a task panics.
func (r *Registry) Process() {
	r.enter()
	if r.draining {
		r.leave()
		panic("ecs: Process called while already processing")
	}
	r.draining = true
	r.leave()

	defer func() {
		r.enter()
		r.draining = false
		r.runTasks = r.runTasks[:0]
		r.leave()
	}()

	r.messages.Process()
	r.foldPending()

	for {
		fn, ok := r.nextTask()
		if !ok {
			return
		}
		fn()
		r.messages.Process()
		r.foldPending()
	}
}

func (r *Registry) foldPending() {
	r.enter()
	defer r.leave()

	r.runTasks = append(r.runTasks, r.pendingTasks...)
	clear(r.pendingTasks)
	r.pendingTasks = r.pendingTasks[:0]
}

func (r *Registry) nextTask() (func(), bool) {
	r.enter()
	defer r.leave()

	if len(r.runTasks) == 0 {
		return nil, false
	}
	fn := r.runTasks[0]
	r.runTasks[0] = nil
	r.runTasks = r.runTasks[1:]
	return fn, true
}

// PendingTasks returns the number of tasks waiting for the next Process.
func (r *Registry) PendingTasks() int {
	r.enter()
	defer r.leave()
	return len(r.pendingTasks) + len(r.runTasks)
}

// AddMessageListener registers fn for messages with tag Tag about component
// C. Listeners must be registered before messages are produced; messages
// for keys without a listener are dropped.
func AddMessageListener[C, Tag any](r *Registry, fn func(entities []EntityID)) {
	comp := mustID[C](r.components)

	r.enter()
	defer r.leave()

	r.messages.AddListener(comp, TagID[Tag](r.messages), func(msg Message) {
		fn(msg.Entities)
	})
}

// AddMessageListenerData is AddMessageListener with the payloads viewed as
// values of C. C must carry data.
func AddMessageListenerData[C, Tag any](r *Registry, fn func(entities []EntityID, values []C)) {
	comp := mustID[C](r.components)
	if r.components.Info(comp).IsTag() {
		panic("ecs: tag " + reflect.TypeFor[C]().String() + " has no message payload")
	}

	r.enter()
	defer r.leave()

	r.messages.AddListener(comp, TagID[Tag](r.messages), func(msg Message) {
		fn(msg.Entities, MessageData[C](msg))
	})
}

// AddMessage records a message with tag Tag about component comp of entity
// id. It is delivered on the next flush inside Process.
func AddMessage[Tag any](r *Registry, id EntityID, comp ComponentID) {
	r.enter()
	defer r.leave()
	r.messages.Add(id, comp, TagID[Tag](r.messages))
}

// AddMessageData is AddMessage with value as payload.
func AddMessageData[Tag, C any](r *Registry, id EntityID, value C) {
	comp := mustID[C](r.components)

	r.enter()
	defer r.leave()

	var payload []byte
	if unsafe.Sizeof(value) > 0 {
		payload = bytesOf(&value)
	}
	r.messages.AddWithPayload(id, comp, TagID[Tag](r.messages), payload)
}
