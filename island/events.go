package island

import "github.com/StellaSmith/edyn/registry"

type EventType uint8

const (
	EventCollisionStarted EventType = iota
	EventCollisionEnded
	EventIslandSleep
	EventIslandWake
	EventIslandSplit
	EventIslandMerge
)

// Event is implemented by all coordinator events.
type Event interface {
	Type() EventType
}

type CollisionStartedEvent struct {
	BodyA registry.Entity
	BodyB registry.Entity
}

func (CollisionStartedEvent) Type() EventType { return EventCollisionStarted }

type CollisionEndedEvent struct {
	BodyA registry.Entity
	BodyB registry.Entity
}

func (CollisionEndedEvent) Type() EventType { return EventCollisionEnded }

type IslandSleepEvent struct {
	Island registry.Entity
}

func (IslandSleepEvent) Type() EventType { return EventIslandSleep }

type IslandWakeEvent struct {
	Island registry.Entity
}

func (IslandWakeEvent) Type() EventType { return EventIslandWake }

type IslandSplitEvent struct {
	From registry.Entity
	Into registry.Entity
}

func (IslandSplitEvent) Type() EventType { return EventIslandSplit }

type IslandMergeEvent struct {
	Into registry.Entity
	From registry.Entity
}

func (IslandMergeEvent) Type() EventType { return EventIslandMerge }

// EventListener is a callback for events.
type EventListener func(event Event)

// Events buffers coordinator events during a tick and delivers them to
// subscribers at flush.
type Events struct {
	listeners map[EventType][]EventListener
	buffer    []Event
}

func NewEvents() *Events {
	return &Events{
		listeners: make(map[EventType][]EventListener),
		buffer:    make([]Event, 0, 64),
	}
}

// Subscribe adds a listener for an event type.
func (e *Events) Subscribe(eventType EventType, listener EventListener) {
	e.listeners[eventType] = append(e.listeners[eventType], listener)
}

func (e *Events) emit(event Event) {
	e.buffer = append(e.buffer, event)
}

// flush delivers all buffered events and clears the buffer.
func (e *Events) flush() {
	for _, event := range e.buffer {
		if listeners, ok := e.listeners[event.Type()]; ok {
			for _, listener := range listeners {
				listener(event)
			}
		}
	}
	e.buffer = e.buffer[:0]
}
