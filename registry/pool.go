package registry

import (
	"fmt"
	"reflect"
)

// Pool stores one component type for a registry. Components are kept in a
// dense slice parallel to the entity slice; a sparse map resolves an entity
// index to its dense position. Removal swaps with the last element, so
// iteration order is creation order disturbed only by removals, and remains
// identical across registries that saw the same operation sequence.
type Pool[T any] struct {
	entities []Entity
	data     []T
	sparse   map[uint32]int

	onConstruct []func(*Registry, Entity)
	onDestroy   []func(*Registry, Entity)
}

func poolOf[T any](r *Registry) *Pool[T] {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if s, ok := r.pools[t]; ok {
		return s.(*Pool[T])
	}
	p := &Pool[T]{sparse: make(map[uint32]int)}
	r.pools[t] = p
	r.poolList = append(r.poolList, p)
	return p
}

func (p *Pool[T]) componentType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (p *Pool[T]) size() int { return len(p.entities) }

func (p *Pool[T]) contains(e Entity) bool {
	i, ok := p.sparse[e.Index()]
	return ok && p.entities[i] == e
}

func (p *Pool[T]) remove(r *Registry, e Entity) bool {
	i, ok := p.sparse[e.Index()]
	if !ok || p.entities[i] != e {
		return false
	}
	for _, fn := range p.onDestroy {
		fn(r, e)
	}
	last := len(p.entities) - 1
	if i != last {
		p.entities[i] = p.entities[last]
		p.data[i] = p.data[last]
		p.sparse[p.entities[i].Index()] = i
	}
	p.entities = p.entities[:last]
	p.data = p.data[:last]
	delete(p.sparse, e.Index())
	return true
}

// Assign adds a component to the entity, or replaces the existing one.
// Construct signals fire only on first assignment.
func Assign[T any](r *Registry, e Entity, value T) {
	if !r.Valid(e) {
		panic(fmt.Sprintf("registry: assign to invalid entity %d", e))
	}
	p := poolOf[T](r)
	if i, ok := p.sparse[e.Index()]; ok && p.entities[i] == e {
		p.data[i] = value
		return
	}
	p.sparse[e.Index()] = len(p.entities)
	p.entities = append(p.entities, e)
	p.data = append(p.data, value)
	for _, fn := range p.onConstruct {
		fn(r, e)
	}
}

// Get returns a pointer to the entity's component. Missing components are a
// registry-integrity bug and panic.
func Get[T any](r *Registry, e Entity) *T {
	p := poolOf[T](r)
	i, ok := p.sparse[e.Index()]
	if !ok || p.entities[i] != e {
		var zero T
		panic(fmt.Sprintf("registry: entity %d has no %T", e, zero))
	}
	return &p.data[i]
}

// TryGet returns a pointer to the entity's component, or nil.
func TryGet[T any](r *Registry, e Entity) *T {
	p := poolOf[T](r)
	i, ok := p.sparse[e.Index()]
	if !ok || p.entities[i] != e {
		return nil
	}
	return &p.data[i]
}

// Has reports whether the entity carries the component.
func Has[T any](r *Registry, e Entity) bool {
	return poolOf[T](r).contains(e)
}

// Remove deletes the entity's component if present, firing destroy signals.
func Remove[T any](r *Registry, e Entity) bool {
	return poolOf[T](r).remove(r, e)
}

// Size returns the number of entities carrying the component.
func Size[T any](r *Registry) int {
	return poolOf[T](r).size()
}

// Each visits every entity carrying T in pool order. The visitor may mutate
// the component through the pointer but must not assign or remove components
// of type T during the walk.
func Each[T any](r *Registry, fn func(Entity, *T)) {
	p := poolOf[T](r)
	for i := range p.entities {
		fn(p.entities[i], &p.data[i])
	}
}

// Entities returns the entities carrying T, in pool order. The returned
// slice is owned by the pool; callers must not retain it across mutations.
func Entities[T any](r *Registry) []Entity {
	return poolOf[T](r).entities
}

// View2 visits every entity carrying both A and B, driven by A's pool order.
func View2[A, B any](r *Registry, fn func(Entity, *A, *B)) {
	pa := poolOf[A](r)
	pb := poolOf[B](r)
	for i := range pa.entities {
		e := pa.entities[i]
		if j, ok := pb.sparse[e.Index()]; ok && pb.entities[j] == e {
			fn(e, &pa.data[i], &pb.data[j])
		}
	}
}

// View3 visits every entity carrying A, B and C, driven by A's pool order.
func View3[A, B, C any](r *Registry, fn func(Entity, *A, *B, *C)) {
	View2(r, func(e Entity, a *A, b *B) {
		if c := TryGet[C](r, e); c != nil {
			fn(e, a, b, c)
		}
	})
}
