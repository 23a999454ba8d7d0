package registry

import "sort"

// Delta is an additive diff between two registries: entities created and
// destroyed since the last sync, plus per-kind component creations, updates
// and destructions. Entity ids in a delta are the sender's; the receiver
// remaps them through its EntityMap.
type Delta struct {
	CreatedEntities   []Entity
	DestroyedEntities []Entity
	Pools             []PoolDelta
}

// PoolDelta carries one kind's created/updated/destroyed sets.
type PoolDelta struct {
	Kind      ComponentKind
	Created   []ComponentValue
	Updated   []ComponentValue
	Destroyed []Entity
}

// ComponentValue pairs a sender-side entity with a component payload.
type ComponentValue struct {
	Entity Entity
	Value  any
}

// Empty reports whether applying the delta would be a no-op.
func (d *Delta) Empty() bool {
	if len(d.CreatedEntities) > 0 || len(d.DestroyedEntities) > 0 {
		return false
	}
	for _, p := range d.Pools {
		if len(p.Created) > 0 || len(p.Updated) > 0 || len(p.Destroyed) > 0 {
			return false
		}
	}
	return true
}

func (d *Delta) pool(k ComponentKind) *PoolDelta {
	for i := range d.Pools {
		if d.Pools[i].Kind == k {
			return &d.Pools[i]
		}
	}
	d.Pools = append(d.Pools, PoolDelta{Kind: k})
	return &d.Pools[len(d.Pools)-1]
}

// ImportInto applies the delta under the registry's importing flag.
// Creations and updates land before destructions so an entity moved in the
// same sync as a component removal resolves consistently.
func (d *Delta) ImportInto(r *Registry, emap *EntityMap) {
	r.SetImporting(true)
	defer r.SetImporting(false)

	for _, remote := range d.CreatedEntities {
		emap.LocalOrCreate(r, remote)
	}
	mapper := emap.mapper(r)
	for _, p := range d.Pools {
		for _, cv := range p.Created {
			AssignKind(r, emap.LocalOrCreate(r, cv.Entity), p.Kind, cv.Value, mapper)
		}
		for _, cv := range p.Updated {
			local := emap.Local(cv.Entity)
			if local == Null {
				local = emap.LocalOrCreate(r, cv.Entity)
			}
			AssignKind(r, local, p.Kind, cv.Value, mapper)
		}
		for _, remote := range p.Destroyed {
			if local := emap.Local(remote); local != Null && r.Valid(local) {
				RemoveKind(r, local, p.Kind)
			}
		}
	}
	for _, remote := range d.DestroyedEntities {
		if local := emap.Local(remote); local != Null && r.Valid(local) {
			r.Destroy(local)
		}
		emap.Erase(remote)
	}
}

// Dirty is a per-entity marker recording which component kinds changed since
// the previous sync. Systems raise it on mutation; the delta builder
// consumes and clears it.
type Dirty struct {
	IsNew     bool
	Created   map[ComponentKind]struct{}
	Updated   map[ComponentKind]struct{}
	Destroyed map[ComponentKind]struct{}
}

// Continuous lists component kinds replicated on every sync regardless of
// dirty state (positions, orientations, velocities of moving bodies).
type Continuous struct {
	Kinds []ComponentKind
}

func dirtyOf(r *Registry, e Entity) *Dirty {
	if d := TryGet[Dirty](r, e); d != nil {
		return d
	}
	Assign(r, e, Dirty{
		Created:   make(map[ComponentKind]struct{}),
		Updated:   make(map[ComponentKind]struct{}),
		Destroyed: make(map[ComponentKind]struct{}),
	})
	return Get[Dirty](r, e)
}

// MarkNew flags the entity as created since the last sync.
func MarkNew(r *Registry, e Entity) {
	dirtyOf(r, e).IsNew = true
}

// MarkCreated records kinds newly assigned to the entity.
func MarkCreated(r *Registry, e Entity, kinds ...ComponentKind) {
	d := dirtyOf(r, e)
	for _, k := range kinds {
		d.Created[k] = struct{}{}
	}
}

// MarkUpdated records kinds whose payload changed on the entity.
func MarkUpdated(r *Registry, e Entity, kinds ...ComponentKind) {
	d := dirtyOf(r, e)
	for _, k := range kinds {
		// A kind created in this sync window replicates as created even if
		// it mutates again before the sync.
		if _, created := d.Created[k]; created {
			continue
		}
		d.Updated[k] = struct{}{}
	}
}

// MarkDestroyed records kinds removed from the entity.
func MarkDestroyed(r *Registry, e Entity, kinds ...ComponentKind) {
	d := dirtyOf(r, e)
	for _, k := range kinds {
		delete(d.Created, k)
		delete(d.Updated, k)
		d.Destroyed[k] = struct{}{}
	}
}

// BuildDelta assembles the delta for the current sync: everything recorded
// in Dirty markers, plus the Continuous kinds of every marked-continuous
// entity, plus the alwaysKinds of every entity carrying them. Dirty markers
// are cleared afterwards.
func BuildDelta(r *Registry, alwaysKinds ...ComponentKind) Delta {
	var d Delta

	Each(r, func(e Entity, dirty *Dirty) {
		if dirty.IsNew {
			d.CreatedEntities = append(d.CreatedEntities, e)
		}
		// Kind sets are maps; walk them in kind order so the delta, and
		// with it the receiver's pool order, is reproducible.
		for _, k := range sortedKinds(dirty.Created) {
			if v, ok := GetKind(r, e, k); ok {
				p := d.pool(k)
				p.Created = append(p.Created, ComponentValue{Entity: e, Value: v})
			}
		}
		for _, k := range sortedKinds(dirty.Updated) {
			if v, ok := GetKind(r, e, k); ok {
				p := d.pool(k)
				p.Updated = append(p.Updated, ComponentValue{Entity: e, Value: v})
			}
		}
		for _, k := range sortedKinds(dirty.Destroyed) {
			p := d.pool(k)
			p.Destroyed = append(p.Destroyed, e)
		}
	})

	Each(r, func(e Entity, c *Continuous) {
		for _, k := range c.Kinds {
			if v, ok := GetKind(r, e, k); ok {
				p := d.pool(k)
				p.Updated = append(p.Updated, ComponentValue{Entity: e, Value: v})
			}
		}
	})

	for _, k := range alwaysKinds {
		p := d.pool(k)
		for _, e := range r.entitiesWithKind(k) {
			if v, ok := GetKind(r, e, k); ok {
				p.Updated = append(p.Updated, ComponentValue{Entity: e, Value: v})
			}
		}
	}

	// Reset markers for the next sync window.
	var marked []Entity
	Each(r, func(e Entity, _ *Dirty) {
		marked = append(marked, e)
	})
	for _, e := range marked {
		Remove[Dirty](r, e)
	}

	return d
}

func sortedKinds(set map[ComponentKind]struct{}) []ComponentKind {
	kinds := make([]ComponentKind, 0, len(set))
	for k := range set {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// entitiesWithKind probes every live entity for the kind, in index order.
// The kind table is type-erased and holds no handle on the pool backing
// the kind, so the lookup scans entities instead; this runs once per sync
// per always-kind.
func (r *Registry) entitiesWithKind(k ComponentKind) []Entity {
	var out []Entity
	seen := make(map[Entity]struct{})
	for index, alive := range r.alive {
		if !alive {
			continue
		}
		e := makeEntity(uint32(index), r.generations[index])
		if _, ok := GetKind(r, e, k); ok {
			if _, dup := seen[e]; !dup {
				seen[e] = struct{}{}
				out = append(out, e)
			}
		}
	}
	return out
}
