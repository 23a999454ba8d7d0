package island

import (
	"sync"

	"github.com/StellaSmith/edyn/registry"
)

// Message is anything routed through an island message queue.
type Message interface {
	isMessage()
}

// MsgDelta carries a registry delta from coordinator to worker.
type MsgDelta struct {
	Delta registry.Delta
}

// MsgSync carries a worker's per-step delta to the coordinator.
type MsgSync struct {
	Worker uint64
	Delta  registry.Delta
}

// MsgWakeUp asks a worker to wake its island.
type MsgWakeUp struct{}

// MsgSetPaused pauses or resumes a worker's stepping.
type MsgSetPaused struct {
	Paused bool
}

// MsgStepSimulation runs exactly one step while paused.
type MsgStepSimulation struct{}

// MsgSplitIsland is a worker telling the coordinator its island may have
// become disconnected.
type MsgSplitIsland struct {
	Worker uint64
}

// EntityPair maps one main-registry id to the worker's local id.
type EntityPair struct {
	Main   registry.Entity
	Worker registry.Entity
}

// MsgEntityMap tells a worker which main-registry ids the coordinator
// allocated for entities the worker created, closing the id loop so later
// messages can reference them canonically.
type MsgEntityMap struct {
	Pairs []EntityPair
}

func (MsgDelta) isMessage()          {}
func (MsgSync) isMessage()           {}
func (MsgWakeUp) isMessage()         {}
func (MsgSetPaused) isMessage()      {}
func (MsgStepSimulation) isMessage() {}
func (MsgSplitIsland) isMessage()    {}
func (MsgEntityMap) isMessage()      {}

// Delta entity ids travel in the main registry's id space; ids of entities
// the sender created locally (the coordinator has no id for them yet) are
// tagged with this bit. Entity generations stay far below it.
const senderLocalFlag registry.Entity = 1 << 63

func flagLocal(e registry.Entity) registry.Entity { return e | senderLocalFlag }

func isLocalFlagged(e registry.Entity) bool { return e != registry.Null && e&senderLocalFlag != 0 }

func unflagLocal(e registry.Entity) registry.Entity { return e &^ senderLocalFlag }

// Queue is a multi-producer single-consumer message queue with FIFO order
// per producer. Producers push from any thread; the owner drains on its
// own thread.
type Queue struct {
	mu    sync.Mutex
	items []Message
}

// Push appends a message.
func (q *Queue) Push(m Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
}

// Drain removes and returns all pending messages.
func (q *Queue) Drain() []Message {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}
