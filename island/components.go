// Package island partitions the interaction graph into independently
// simulated islands: one worker per island, each owning a private registry,
// synchronized with the coordinator exclusively through typed deltas.
package island

import (
	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/registry"
)

// Island is the island aggregate component, carried by the island entity.
// Timestamp is the simulation time of the last finished step.
type Island struct {
	Timestamp float64
}

// TreeLeaf is one leaf of a worker's broadphase tree view.
type TreeLeaf struct {
	Entity registry.Entity
	AABB   actor.AABB
}

// TreeView is the snapshot of a worker's dynamic broadphase tree,
// republished every finished step. The coordinator stitches the views
// together into its global broadphase picture and uses overlaps between
// views to merge islands.
type TreeView struct {
	Leaves []TreeLeaf
}

// AggregateAABB merges all leaves.
func (v *TreeView) AggregateAABB() (actor.AABB, bool) {
	if len(v.Leaves) == 0 {
		return actor.AABB{}, false
	}
	box := v.Leaves[0].AABB
	for _, leaf := range v.Leaves[1:] {
		box = box.Merge(leaf.AABB)
	}
	return box, true
}

// Resident records, on the coordinator side, the set of islands containing
// an entity. Procedural bodies belong to exactly one; static and kinematic
// bodies may belong to many.
type Resident struct {
	Islands map[registry.Entity]struct{}
}

var (
	// KindIsland and KindTreeView replicate the island aggregate state
	// between worker and coordinator. Tree leaves reference bodies, so
	// their ids are rewritten on import.
	KindIsland   = registry.RegisterComponent[Island]("island")
	KindTreeView = registry.RegisterEntityComponent[TreeView]("island_tree_view",
		func(v *TreeView, m registry.EntityMapper) {
			for i := range v.Leaves {
				v.Leaves[i].Entity = m(v.Leaves[i].Entity)
			}
		})
)
