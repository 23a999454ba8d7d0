package registry

// Snapshot is a full copy of the replicated components of a set of entities.
// It is the data model used to seed a new registry (worker hand-off, network
// replication); transport is out of scope.
type Snapshot struct {
	Entities []Entity
	Pools    []PoolSnapshot
}

// PoolSnapshot carries one component kind's payload for the snapshot's
// entities. Values[i] belongs to Owners[i].
type PoolSnapshot struct {
	ComponentIndex ComponentKind
	Owners         []Entity
	Values         []any
}

// TakeSnapshot captures the given kinds for the given entities.
func TakeSnapshot(r *Registry, entities []Entity, kinds []ComponentKind) Snapshot {
	snap := Snapshot{Entities: append([]Entity(nil), entities...)}
	for _, k := range kinds {
		ps := PoolSnapshot{ComponentIndex: k}
		for _, e := range entities {
			if v, ok := GetKind(r, e, k); ok {
				ps.Owners = append(ps.Owners, e)
				ps.Values = append(ps.Values, v)
			}
		}
		if len(ps.Owners) > 0 {
			snap.Pools = append(snap.Pools, ps)
		}
	}
	return snap
}

// ImportInto applies the snapshot to a registry, creating local entities for
// unknown remote ids through the entity map. Component payloads are
// deep-copied on assignment.
func (s Snapshot) ImportInto(r *Registry, emap *EntityMap) {
	r.SetImporting(true)
	defer r.SetImporting(false)

	for _, remote := range s.Entities {
		emap.LocalOrCreate(r, remote)
	}
	mapper := emap.mapper(r)
	for _, ps := range s.Pools {
		for i, remote := range ps.Owners {
			local := emap.LocalOrCreate(r, remote)
			AssignKind(r, local, ps.ComponentIndex, ps.Values[i], mapper)
		}
	}
}

// EntityMap translates entity ids between a remote registry and a local one.
type EntityMap struct {
	remoteToLocal map[Entity]Entity
	localToRemote map[Entity]Entity
}

func NewEntityMap() *EntityMap {
	return &EntityMap{
		remoteToLocal: make(map[Entity]Entity),
		localToRemote: make(map[Entity]Entity),
	}
}

// Insert records a remote↔local pair.
func (m *EntityMap) Insert(remote, local Entity) {
	m.remoteToLocal[remote] = local
	m.localToRemote[local] = remote
}

// Local resolves a remote id, returning Null when unknown.
func (m *EntityMap) Local(remote Entity) Entity {
	if local, ok := m.remoteToLocal[remote]; ok {
		return local
	}
	return Null
}

// Remote resolves a local id, returning Null when unknown.
func (m *EntityMap) Remote(local Entity) Entity {
	if remote, ok := m.localToRemote[local]; ok {
		return remote
	}
	return Null
}

// LocalOrCreate resolves a remote id, creating a local entity on first
// sight.
func (m *EntityMap) LocalOrCreate(r *Registry, remote Entity) Entity {
	if local, ok := m.remoteToLocal[remote]; ok {
		return local
	}
	local := r.Create()
	m.Insert(remote, local)
	return local
}

// mapper adapts the entity map for rewriting entity references embedded
// in component payloads, creating local entities for ids seen first inside
// a payload.
func (m *EntityMap) mapper(r *Registry) EntityMapper {
	return func(remote Entity) Entity {
		if remote == Null {
			return Null
		}
		return m.LocalOrCreate(r, remote)
	}
}

// Erase drops the pair for a remote id.
func (m *EntityMap) Erase(remote Entity) {
	if local, ok := m.remoteToLocal[remote]; ok {
		delete(m.localToRemote, local)
		delete(m.remoteToLocal, remote)
	}
}
