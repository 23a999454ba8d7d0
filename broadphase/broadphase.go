// Package broadphase maintains the two bounding-volume trees (procedural
// and non-procedural bodies), discovers intersecting pairs and manages the
// lifecycle of their contact manifolds.
package broadphase

import (
	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/bvh"
	"github.com/StellaSmith/edyn/constraint"
	"github.com/StellaSmith/edyn/job"
	"github.com/StellaSmith/edyn/registry"
)

// DefaultAABBOffset is how much a dynamic body's AABB is inflated when
// querying for candidate pairs, so that manifolds exist slightly before
// touching.
const DefaultAABBOffset = 0.2

// DefaultSeparationThreshold is the separation above which a manifold is
// destroyed and below which contact points survive. It exceeds
// DefaultAABBOffset so freshly created manifolds are not torn down on the
// next step.
const DefaultSeparationThreshold = 0.25

type pairKey struct {
	a, b registry.Entity
}

func makePairKey(a, b registry.Entity) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// Broadphase owns the dynamic tree (procedural bodies) and the
// non-procedural tree (static and kinematic bodies) of one registry.
type Broadphase struct {
	reg *registry.Registry

	tree   *bvh.Tree // procedural
	npTree *bvh.Tree // static + kinematic

	// AABB construction is observed, but the body may still be missing
	// companion components; initialization is deferred to the next update.
	deferred []registry.Entity

	manifolds map[pairKey]registry.Entity

	AABBOffset          float64
	SeparationThreshold float64

	// async pair discovery output, one slot per dynamic body index.
	asyncBodies []registry.Entity
	asyncPairs  [][]registry.Entity
}

// New creates the broadphase for a registry and wires its signals.
func New(reg *registry.Registry) *Broadphase {
	b := &Broadphase{
		reg:                 reg,
		tree:                bvh.NewTree(),
		npTree:              bvh.NewTree(),
		manifolds:           make(map[pairKey]registry.Entity),
		AABBOffset:          DefaultAABBOffset,
		SeparationThreshold: DefaultSeparationThreshold,
	}

	registry.OnConstruct[actor.AABB](reg).Connect(func(r *registry.Registry, e registry.Entity) {
		b.deferred = append(b.deferred, e)
	})
	registry.OnDestroy[actor.TreeNode](reg).Connect(func(r *registry.Registry, e registry.Entity) {
		node := registry.Get[actor.TreeNode](r, e)
		b.treeFor(e).Destroy(node.ID)
	})
	registry.OnConstruct[constraint.Manifold](reg).Connect(func(r *registry.Registry, e registry.Entity) {
		m := registry.Get[constraint.Manifold](r, e)
		b.manifolds[makePairKey(m.BodyA, m.BodyB)] = e
	})
	registry.OnDestroy[constraint.Manifold](reg).Connect(func(r *registry.Registry, e registry.Entity) {
		m := registry.Get[constraint.Manifold](r, e)
		key := makePairKey(m.BodyA, m.BodyB)
		if b.manifolds[key] == e {
			delete(b.manifolds, key)
		}
	})

	return b
}

// Tree returns the procedural tree (used to publish tree views).
func (b *Broadphase) Tree() *bvh.Tree { return b.tree }

// NonProceduralTree returns the static/kinematic tree.
func (b *Broadphase) NonProceduralTree() *bvh.Tree { return b.npTree }

// ManifoldBetween looks up the manifold entity for an unordered body pair.
func (b *Broadphase) ManifoldBetween(e0, e1 registry.Entity) (registry.Entity, bool) {
	m, ok := b.manifolds[makePairKey(e0, e1)]
	return m, ok
}

func (b *Broadphase) treeFor(e registry.Entity) *bvh.Tree {
	if registry.Has[actor.Procedural](b.reg, e) {
		return b.tree
	}
	return b.npTree
}

// Parallelizable reports whether the dynamic-body count justifies async
// pair discovery.
func (b *Broadphase) Parallelizable() bool {
	return b.tree.Count() > 1
}

// Update runs the full broadphase synchronously.
func (b *Broadphase) Update(workers int) {
	b.initDeferred()
	b.destroySeparatedManifolds()
	b.moveNodes()

	bodies := b.dynamicBodies()
	pairs := make([][]registry.Entity, len(bodies))
	indices := make([]int, len(bodies))
	for i := range indices {
		indices[i] = i
	}
	job.Task(workers, indices, func(i int) {
		pairs[i] = b.collectCandidates(bodies[i])
	})
	b.createManifolds(bodies, pairs)
}

// BeginAsync dispatches pair discovery across the job pool; candidate
// pairs land in per-task vectors and FinishAsync merges them serially so
// manifold creation order stays deterministic.
func (b *Broadphase) BeginAsync(d *job.Dispatcher, completion job.Job) {
	b.initDeferred()
	b.destroySeparatedManifolds()
	b.moveNodes()

	b.asyncBodies = b.dynamicBodies()
	b.asyncPairs = make([][]registry.Entity, len(b.asyncBodies))

	bodies := b.asyncBodies
	pairs := b.asyncPairs
	d.ParallelFor(len(bodies), func(i int) {
		pairs[i] = b.collectCandidates(bodies[i])
	}, completion)
}

// FinishAsync creates the manifolds discovered by BeginAsync.
func (b *Broadphase) FinishAsync() {
	b.createManifolds(b.asyncBodies, b.asyncPairs)
	b.asyncBodies = nil
	b.asyncPairs = nil
}

// initDeferred registers queued bodies in the tree matching their
// procedural tag, once their components are complete.
func (b *Broadphase) initDeferred() {
	for _, e := range b.deferred {
		if !b.reg.Valid(e) || registry.Has[actor.TreeNode](b.reg, e) {
			continue
		}
		aabb := registry.TryGet[actor.AABB](b.reg, e)
		if aabb == nil {
			continue
		}
		id := b.treeFor(e).Create(*aabb, e)
		registry.Assign(b.reg, e, actor.TreeNode{ID: id})
	}
	b.deferred = b.deferred[:0]
}

// destroySeparatedManifolds removes manifolds whose bodies' inset AABBs no
// longer intersect, and those whose bodies are gone.
func (b *Broadphase) destroySeparatedManifolds() {
	var stale []registry.Entity
	registry.Each(b.reg, func(e registry.Entity, m *constraint.Manifold) {
		if !b.reg.Valid(m.BodyA) || !b.reg.Valid(m.BodyB) {
			stale = append(stale, e)
			return
		}
		aabbA := registry.Get[actor.AABB](b.reg, m.BodyA)
		aabbB := registry.Get[actor.AABB](b.reg, m.BodyB)
		if !aabbA.Inset(-b.SeparationThreshold).Overlaps(*aabbB) {
			stale = append(stale, e)
		}
	})
	for _, e := range stale {
		b.reg.Destroy(e)
	}
}

// moveNodes refits the trees to the current AABBs. Procedural bodies move
// every step; kinematic ones move in the non-procedural tree when the user
// displaced them.
func (b *Broadphase) moveNodes() {
	registry.View2(b.reg, func(e registry.Entity, node *actor.TreeNode, aabb *actor.AABB) {
		if registry.Has[actor.Procedural](b.reg, e) {
			b.tree.Move(node.ID, *aabb)
		} else if kind := registry.TryGet[actor.Kind](b.reg, e); kind != nil && *kind == actor.KindKinematic {
			b.npTree.Move(node.ID, *aabb)
		}
	})
}

func (b *Broadphase) dynamicBodies() []registry.Entity {
	var bodies []registry.Entity
	registry.View2(b.reg, func(e registry.Entity, _ *actor.Procedural, _ *actor.TreeNode) {
		bodies = append(bodies, e)
	})
	return bodies
}

// collectCandidates queries both trees with the body's offset AABB. It
// only reads the registry and may run concurrently with other calls.
func (b *Broadphase) collectCandidates(e registry.Entity) []registry.Entity {
	aabb := registry.Get[actor.AABB](b.reg, e).Inset(-b.AABBOffset)
	filter := registry.Get[actor.CollisionFilter](b.reg, e)

	var candidates []registry.Entity
	visit := func(other registry.Entity) {
		if other == e {
			return
		}
		otherFilter := registry.TryGet[actor.CollisionFilter](b.reg, other)
		if otherFilter == nil || !actor.ShouldCollide(*filter, *otherFilter) {
			return
		}
		if !aabb.Overlaps(*registry.Get[actor.AABB](b.reg, other)) {
			return
		}
		candidates = append(candidates, other)
	}

	b.tree.Query(aabb, visit)
	b.npTree.Query(aabb, visit)
	return candidates
}

// createManifolds serially turns candidate pairs into manifolds, skipping
// pairs that already have one.
func (b *Broadphase) createManifolds(bodies []registry.Entity, pairs [][]registry.Entity) {
	for i, e := range bodies {
		for _, other := range pairs[i] {
			key := makePairKey(e, other)
			if _, exists := b.manifolds[key]; exists {
				continue
			}
			m := b.reg.Create()
			registry.Assign(b.reg, m, constraint.Manifold{
				BodyA:               e,
				BodyB:               other,
				SeparationThreshold: b.SeparationThreshold,
			})
		}
	}
}
