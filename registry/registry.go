package registry

import (
	"fmt"
	"reflect"
)

// Registry is a typed component store keyed by entity id. Each component
// type lives in its own densely packed pool, iterated in creation order so
// that every walk over a pool is deterministic.
//
// A Registry is not safe for concurrent mutation; each island worker owns
// its own and the coordinator owns the main one.
type Registry struct {
	generations []uint32
	alive       []bool
	free        []uint32

	pools    map[reflect.Type]storage
	poolList []storage

	ctx map[reflect.Type]any

	destroyObservers []func(Entity)

	// importing is raised while a delta or snapshot is being applied, so
	// that signal observers can tell remote changes from local ones.
	importing bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		pools: make(map[reflect.Type]storage),
		ctx:   make(map[reflect.Type]any),
	}
}

// Create allocates a new entity id.
func (r *Registry) Create() Entity {
	if n := len(r.free); n > 0 {
		index := r.free[n-1]
		r.free = r.free[:n-1]
		r.alive[index] = true
		return makeEntity(index, r.generations[index])
	}
	index := uint32(len(r.generations))
	r.generations = append(r.generations, 0)
	r.alive = append(r.alive, true)
	return makeEntity(index, 0)
}

// Valid reports whether the entity exists and has not been destroyed.
func (r *Registry) Valid(e Entity) bool {
	index := e.Index()
	return index < uint32(len(r.generations)) &&
		r.alive[index] &&
		r.generations[index] == e.Generation()
}

// Destroy removes every component of the entity and releases its id.
// Destroy signals fire for each removed component.
func (r *Registry) Destroy(e Entity) {
	if !r.Valid(e) {
		panic(fmt.Sprintf("registry: destroy of invalid entity %d", e))
	}
	for _, p := range r.poolList {
		p.remove(r, e)
	}
	index := e.Index()
	r.alive[index] = false
	r.generations[index]++
	r.free = append(r.free, index)
	for _, fn := range r.destroyObservers {
		fn(e)
	}
}

// OnDestroyEntity registers an observer invoked after an entity and all of
// its components have been destroyed.
func (r *Registry) OnDestroyEntity(fn func(Entity)) {
	r.destroyObservers = append(r.destroyObservers, fn)
}

// Clear destroys every entity.
func (r *Registry) Clear() {
	for index := range r.generations {
		if r.alive[index] {
			r.Destroy(makeEntity(uint32(index), r.generations[index]))
		}
	}
}

// Importing reports whether a snapshot or delta is currently being applied.
// Observers use this to avoid echoing remote changes back to their origin.
func (r *Registry) Importing() bool {
	return r.importing
}

// SetImporting toggles the importing flag. Callers pair a true with a
// deferred false around delta application.
func (r *Registry) SetImporting(v bool) {
	r.importing = v
}

// storage is the type-erased face of a Pool.
type storage interface {
	remove(r *Registry, e Entity) bool
	contains(e Entity) bool
	componentType() reflect.Type
	size() int
}
