package registry

import "github.com/jinzhu/copier"

// ComponentKind is a component type's position in the canonical kind tuple.
// Kinds are allocated once at package init time, in registration order, and
// index the typed pools of a Snapshot or Delta. Both ends of a replication
// channel run the same binary, so indices agree.
type ComponentKind int

// EntityMapper rewrites an entity id from one registry's id space into
// another's during replication.
type EntityMapper func(Entity) Entity

type kindOps struct {
	name   string
	get    func(*Registry, Entity) (any, bool)
	assign func(*Registry, Entity, any, EntityMapper)
	remove func(*Registry, Entity)
	remap  func(any, EntityMapper) any
}

var kindTable []kindOps

// RegisterComponent makes a component type replicable and returns its
// kind. Call from package init; the resulting kind is stable for the
// process lifetime.
func RegisterComponent[T any](name string) ComponentKind {
	return RegisterEntityComponent[T](name, nil)
}

// RegisterImmutableComponent registers a component whose payload is never
// mutated after creation (shapes); replication shares it instead of deep
// copying, which also preserves unexported precomputed state.
func RegisterImmutableComponent[T any](name string) ComponentKind {
	k := ComponentKind(len(kindTable))
	kindTable = append(kindTable, kindOps{
		name: name,
		get: func(r *Registry, e Entity) (any, bool) {
			if p := TryGet[T](r, e); p != nil {
				return *p, true
			}
			return nil, false
		},
		assign: func(r *Registry, e Entity, v any, _ EntityMapper) {
			Assign(r, e, v.(T))
		},
		remove: func(r *Registry, e Entity) {
			Remove[T](r, e)
		},
		remap: func(v any, _ EntityMapper) any {
			return v
		},
	})
	return k
}

// RegisterEntityComponent registers a component whose payload embeds
// entity references; remap is invoked on a copy during replication to
// rewrite them into the receiving registry's id space.
func RegisterEntityComponent[T any](name string, remap func(*T, EntityMapper)) ComponentKind {
	k := ComponentKind(len(kindTable))
	kindTable = append(kindTable, kindOps{
		name: name,
		get: func(r *Registry, e Entity) (any, bool) {
			if p := TryGet[T](r, e); p != nil {
				return *p, true
			}
			return nil, false
		},
		assign: func(r *Registry, e Entity, v any, m EntityMapper) {
			src := v.(T)
			// Deep-copy so slice and map storage inside components is
			// never shared between the source and target registries.
			var dst T
			if err := copier.CopyWithOption(&dst, &src, copier.Option{DeepCopy: true}); err != nil {
				dst = src
			}
			if remap != nil && m != nil {
				remap(&dst, m)
			}
			Assign(r, e, dst)
		},
		remove: func(r *Registry, e Entity) {
			Remove[T](r, e)
		},
		remap: func(v any, m EntityMapper) any {
			src := v.(T)
			var dst T
			if err := copier.CopyWithOption(&dst, &src, copier.Option{DeepCopy: true}); err != nil {
				dst = src
			}
			if remap != nil && m != nil {
				remap(&dst, m)
			}
			return dst
		},
	})
	return k
}

// KindCount returns how many component kinds have been registered.
func KindCount() int {
	return len(kindTable)
}

// KindName returns the registration name of a kind.
func KindName(k ComponentKind) string {
	return kindTable[k].name
}

// GetKind fetches the component of the given kind from an entity, type
// erased.
func GetKind(r *Registry, e Entity, k ComponentKind) (any, bool) {
	return kindTable[k].get(r, e)
}

// AssignKind assigns a type-erased component of the given kind,
// deep-copying the payload and rewriting embedded entity ids through m
// (which may be nil for same-registry copies).
func AssignKind(r *Registry, e Entity, k ComponentKind, v any, m EntityMapper) {
	kindTable[k].assign(r, e, v, m)
}

// RemoveKind removes the component of the given kind from an entity.
func RemoveKind(r *Registry, e Entity, k ComponentKind) {
	kindTable[k].remove(r, e)
}

// RemapKind returns a copy of the payload with embedded entity ids
// rewritten through m.
func RemapKind(k ComponentKind, v any, m EntityMapper) any {
	return kindTable[k].remap(v, m)
}
