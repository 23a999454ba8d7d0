package registry

// Sink connects observers to a pool's construct or destroy signal, in the
// order the connections were made.
type Sink struct {
	connect func(func(*Registry, Entity))
}

// Connect registers fn to be invoked with the registry and entity whenever
// the observed event fires.
func (s Sink) Connect(fn func(*Registry, Entity)) {
	s.connect(fn)
}

// OnConstruct returns the sink fired after a component of type T is first
// assigned to an entity.
func OnConstruct[T any](r *Registry) Sink {
	p := poolOf[T](r)
	return Sink{connect: func(fn func(*Registry, Entity)) {
		p.onConstruct = append(p.onConstruct, fn)
	}}
}

// OnDestroy returns the sink fired before a component of type T is removed
// from an entity, while the component is still readable.
func OnDestroy[T any](r *Registry) Sink {
	p := poolOf[T](r)
	return Sink{connect: func(fn func(*Registry, Entity)) {
		p.onDestroy = append(p.onDestroy, fn)
	}}
}
