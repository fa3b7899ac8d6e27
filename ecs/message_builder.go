package ecs

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/kamstrup/intmap"
)

// MsgTagID identifies the kind of a structural message.
type MsgTagID uint16

// Built-in message tags.
const (
	AddedComponentTag MsgTagID = iota
	RemovedComponentTag
	ComponentChangedTag
)

// AddedComponent tags messages emitted after a component or tag is attached.
type AddedComponent struct{}

// RemovedComponent tags messages emitted before a component or tag is
// detached. Their payload is the component's last value.
type RemovedComponent struct{}

// ComponentChanged tags user messages announcing an in-place modification.
type ComponentChanged struct{}

// Message is one flushed batch: every entity that received (Component, Tag)
// since the previous flush, in submission order. Data holds one payload of
// the component's size per entity, zero-filled where none was given, and is
// nil for tags. Both slices are reused after the listener returns.
type Message struct {
	Component ComponentID
	Tag       MsgTagID
	Entities  []EntityID
	Data      []byte
}

// MessageListener receives flushed batches.
type MessageListener func(msg Message)

type messageBatch struct {
	comp      ComponentID
	tag       MsgTagID
	stride    uintptr
	entities  []EntityID
	payload   []uint64
	used      uintptr
	listeners []MessageListener
	queued    bool
}

// MessageBuilder collects structural messages during a run and delivers them
// in batches. Messages are only recorded for (component, tag) pairs that have
// at least one listener.
type MessageBuilder struct {
	components *ComponentRegistry
	batches    *intmap.Map[uint32, *messageBatch]
	pending    []*messageBatch
	tags       map[reflect.Type]MsgTagID
}

// NewMessageBuilder creates a builder for components of the given registry.
func NewMessageBuilder(components *ComponentRegistry) *MessageBuilder {
	return &MessageBuilder{
		components: components,
		batches:    intmap.New[uint32, *messageBatch](64),
		tags: map[reflect.Type]MsgTagID{
			reflect.TypeFor[AddedComponent]():   AddedComponentTag,
			reflect.TypeFor[RemovedComponent](): RemovedComponentTag,
			reflect.TypeFor[ComponentChanged](): ComponentChangedTag,
		},
	}
}

func messageKey(comp ComponentID, tag MsgTagID) uint32 {
	return uint32(comp)<<16 | uint32(tag)
}

// TagID returns the id of message tag type Tag, assigning the next free id
// the first time a custom tag is seen.
func TagID[Tag any](m *MessageBuilder) MsgTagID {
	t := reflect.TypeFor[Tag]()
	if id, ok := m.tags[t]; ok {
		return id
	}
	id := MsgTagID(len(m.tags))
	m.tags[t] = id
	return id
}

// AddListener registers fn for (comp, tag). Listeners run in registration
// order.
func (m *MessageBuilder) AddListener(comp ComponentID, tag MsgTagID, fn MessageListener) {
	key := messageKey(comp, tag)
	batch, ok := m.batches.Get(key)
	if !ok {
		batch = &messageBatch{
			comp:   comp,
			tag:    tag,
			stride: m.components.Info(comp).Size,
		}
		m.batches.Put(key, batch)
	}
	batch.listeners = append(batch.listeners, fn)
}

// HasListener reports whether any listener is registered for (comp, tag).
func (m *MessageBuilder) HasListener(comp ComponentID, tag MsgTagID) bool {
	_, ok := m.batches.Get(messageKey(comp, tag))
	return ok
}

// Add records a message without payload.
func (m *MessageBuilder) Add(id EntityID, comp ComponentID, tag MsgTagID) {
	m.AddWithPayload(id, comp, tag, nil)
}

// AddWithPayload records a message carrying a copy of payload. The payload
// must be exactly the component's size or nil.
func (m *MessageBuilder) AddWithPayload(id EntityID, comp ComponentID, tag MsgTagID, payload []byte) {
	batch, ok := m.batches.Get(messageKey(comp, tag))
	if !ok {
		return
	}
	if payload != nil && uintptr(len(payload)) != batch.stride {
		panic(fmt.Sprintf("ecs: message payload for component %d is %d bytes, want %d", comp, len(payload), batch.stride))
	}

	if !batch.queued {
		batch.queued = true
		m.pending = append(m.pending, batch)
	}
	batch.entities = append(batch.entities, id)

	if batch.stride == 0 {
		return
	}
	need := batch.used + batch.stride
	if words := int((need + 7) / 8); words > len(batch.payload) {
		grown := make([]uint64, max(words, 2*len(batch.payload)))
		copy(grown, batch.payload)
		batch.payload = grown
	}
	dst := wordsAsBytes(batch.payload)[batch.used:need]
	if payload != nil {
		copy(dst, payload)
	} else {
		clear(dst)
	}
	batch.used = need
}

// Pending returns the number of batches waiting for the next Process.
func (m *MessageBuilder) Pending() int {
	return len(m.pending)
}

// Process delivers every pending batch. Messages recorded by listeners while
// Process runs are kept for the next call.
func (m *MessageBuilder) Process() {
	if len(m.pending) == 0 {
		return
	}

	pending := m.pending
	m.pending = nil

	type detached struct {
		batch   *messageBatch
		msg     Message
		payload []uint64
	}
	flushed := make([]detached, len(pending))
	for i, batch := range pending {
		msg := Message{
			Component: batch.comp,
			Tag:       batch.tag,
			Entities:  batch.entities,
		}
		if batch.stride > 0 {
			msg.Data = wordsAsBytes(batch.payload)[:batch.used]
		}
		flushed[i] = detached{batch: batch, msg: msg, payload: batch.payload}

		batch.entities = nil
		batch.payload = nil
		batch.used = 0
		batch.queued = false
	}

	for _, f := range flushed {
		for _, fn := range f.batch.listeners {
			fn(f.msg)
		}
	}

	// Hand the buffers back to batches that stayed quiet during delivery.
	for _, f := range flushed {
		if f.batch.queued {
			continue
		}
		f.batch.entities = f.msg.Entities[:0]
		f.batch.payload = f.payload
	}
}

// Clear drops every pending message and keeps the listeners.
func (m *MessageBuilder) Clear() {
	for _, batch := range m.pending {
		batch.entities = batch.entities[:0]
		batch.used = 0
		batch.queued = false
	}
	m.pending = nil
}

// MessageData views the payload of msg as a slice of C.
func MessageData[C any](msg Message) []C {
	if len(msg.Data) == 0 {
		return nil
	}
	var zero C
	size := unsafe.Sizeof(zero)
	return unsafe.Slice((*C)(unsafe.Pointer(unsafe.SliceData(msg.Data))), uintptr(len(msg.Data))/size)
}
