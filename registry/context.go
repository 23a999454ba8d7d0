package registry

import "reflect"

// Ctx returns the registry's singleton of type T, allocating it on first
// use. Systems keep per-registry state here (row caches, schedulers,
// deferred work lists) instead of in package globals.
func Ctx[T any](r *Registry) *T {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if v, ok := r.ctx[t]; ok {
		return v.(*T)
	}
	v := new(T)
	r.ctx[t] = v
	return v
}
