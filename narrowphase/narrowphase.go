// Package narrowphase generates and maintains contact manifolds for the
// pairs the broadphase discovered. Collision detection itself is pure and
// runs in parallel across manifolds; manifold mutation is serialized
// afterwards so the order of registry changes stays deterministic.
package narrowphase

import (
	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/constraint"
	"github.com/StellaSmith/edyn/job"
	"github.com/StellaSmith/edyn/registry"
)

// parallelThreshold is the manifold count above which the async path pays
// off.
const parallelThreshold = 1

// mergeDistance is how close (in pivot space) a new point must be to an
// existing one to replace it in place, preserving lifetime and warm-start
// impulses.
const mergeDistance = 0.01

// driftDistance is the tangential distance a refreshed point may wander
// from its anchor before it is dropped.
const driftDistance = 0.04

// Parallelizable reports whether the manifold count justifies dispatching
// collision detection across tasks.
func Parallelizable(r *registry.Registry) bool {
	return registry.Size[constraint.Manifold](r) > parallelThreshold
}

func bodyShape(r *registry.Registry, e registry.Entity) Shape {
	return Shape{
		Shape:       *registry.Get[actor.Shape](r, e),
		Position:    *registry.Get[actor.Position](r, e),
		Orientation: *registry.Get[actor.Orientation](r, e),
	}
}

// Update runs collision detection and manifold maintenance synchronously.
func Update(r *registry.Registry, workers int) {
	entities := append([]registry.Entity(nil), registry.Entities[constraint.Manifold](r)...)
	results := detect(r, entities, workers)
	for i, e := range entities {
		applyManifoldUpdate(r, e, results[i])
	}
}

// detect runs the dispatcher for every manifold, in parallel when workers
// allows. It only reads the registry; results land in per-index slots.
func detect(r *registry.Registry, entities []registry.Entity, workers int) [][]Result {
	results := make([][]Result, len(entities))
	indices := make([]int, len(entities))
	for i := range indices {
		indices[i] = i
	}

	job.Task(workers, indices, func(i int) {
		m := registry.Get[constraint.Manifold](r, entities[i])
		results[i] = Collide(
			bodyShape(r, m.BodyA),
			bodyShape(r, m.BodyB),
			m.SeparationThreshold,
		)
	})

	return results
}

// asyncState carries detection output between the async dispatch and the
// serialized merge.
type asyncState struct {
	entities []registry.Entity
	results  [][]Result
}

// BeginAsync dispatches detection across the job pool and enqueues
// completion when every manifold has been processed. FinishAsync must run
// on the owning worker afterwards.
func BeginAsync(r *registry.Registry, d *job.Dispatcher, completion job.Job) {
	state := registry.Ctx[asyncState](r)
	state.entities = append(state.entities[:0], registry.Entities[constraint.Manifold](r)...)
	if cap(state.results) < len(state.entities) {
		state.results = make([][]Result, len(state.entities))
	}
	state.results = state.results[:len(state.entities)]

	entities := state.entities
	results := state.results
	d.ParallelFor(len(entities), func(i int) {
		m := registry.Get[constraint.Manifold](r, entities[i])
		results[i] = Collide(
			bodyShape(r, m.BodyA),
			bodyShape(r, m.BodyB),
			m.SeparationThreshold,
		)
	}, completion)
}

// FinishAsync applies the detection results serially.
func FinishAsync(r *registry.Registry) {
	state := registry.Ctx[asyncState](r)
	for i, e := range state.entities {
		applyManifoldUpdate(r, e, state.results[i])
		state.results[i] = nil
	}
	state.entities = state.entities[:0]
}

// InitManifold generates the initial points of a freshly created or
// imported manifold.
func InitManifold(r *registry.Registry, e registry.Entity) {
	m := registry.Get[constraint.Manifold](r, e)
	results := Collide(bodyShape(r, m.BodyA), bodyShape(r, m.BodyB), m.SeparationThreshold)
	applyManifoldUpdate(r, e, results)
}

// applyManifoldUpdate refreshes the surviving points and merges the new
// detection results into the manifold.
func applyManifoldUpdate(r *registry.Registry, e registry.Entity, results []Result) {
	m := registry.Get[constraint.Manifold](r, e)

	posA := *registry.Get[actor.Position](r, m.BodyA)
	ornA := *registry.Get[actor.Orientation](r, m.BodyA)
	posB := *registry.Get[actor.Position](r, m.BodyB)
	ornB := *registry.Get[actor.Orientation](r, m.BodyB)

	refreshPoints(m, posA, ornA, posB, ornB)

	restitution, friction := combinedMaterials(r, m)

	for _, res := range results {
		cp := constraint.ContactPoint{
			PivotA:      actor.ToLocal(posA, ornA, res.PivotA),
			PivotB:      actor.ToLocal(posB, ornB, res.PivotB),
			NormalB:     ornB.Quat.Conjugate().Rotate(res.Normal),
			Distance:    res.Distance,
			Restitution: restitution,
			Friction:    friction,
		}
		mergePoint(m, cp)
	}
}

// refreshPoints recomputes each point's separation from the current
// transforms, drops stale points, and ages the survivors.
func refreshPoints(m *constraint.Manifold, posA actor.Position, ornA actor.Orientation, posB actor.Position, ornB actor.Orientation) {
	n := 0
	for i := 0; i < m.NumPoints; i++ {
		cp := m.Points[i]

		worldA := actor.ToWorld(posA, ornA, cp.PivotA)
		worldB := actor.ToWorld(posB, ornB, cp.PivotB)
		normal := actor.Rotate(ornB, cp.NormalB)

		delta := worldA.Sub(worldB)
		dist := normal.Dot(delta)
		tangential := delta.Sub(normal.Mul(dist))

		if dist > m.SeparationThreshold || tangential.LenSqr() > driftDistance*driftDistance {
			continue
		}

		cp.Distance = dist
		cp.Lifetime++
		m.Points[n] = cp
		n++
	}
	m.NumPoints = n
}

// mergePoint replaces a coinciding point in place (keeping its lifetime
// and warm-start impulse) or inserts, evicting for maximum contact-patch
// area when full.
func mergePoint(m *constraint.Manifold, cp constraint.ContactPoint) {
	for i := 0; i < m.NumPoints; i++ {
		if m.Points[i].PivotA.Sub(cp.PivotA).LenSqr() < mergeDistance*mergeDistance {
			cp.Lifetime = m.Points[i].Lifetime
			cp.NormalImpulse = m.Points[i].NormalImpulse
			cp.FrictionImpulse = m.Points[i].FrictionImpulse
			m.Points[i] = cp
			return
		}
	}

	if m.NumPoints < constraint.MaxContacts {
		m.Points[m.NumPoints] = cp
		m.NumPoints++
		return
	}

	// Full: keep the deepest of the five candidates plus the three others
	// spanning the largest patch.
	candidates := make([]constraint.ContactPoint, 0, constraint.MaxContacts+1)
	candidates = append(candidates, m.Points[:m.NumPoints]...)
	candidates = append(candidates, cp)

	deepest := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Distance < candidates[deepest].Distance {
			deepest = i
		}
	}

	kept := []constraint.ContactPoint{candidates[deepest]}
	candidates = append(candidates[:deepest], candidates[deepest+1:]...)
	for len(kept) < constraint.MaxContacts && len(candidates) > 0 {
		best := -1
		bestScore := -1.0
		for i, c := range candidates {
			score := 0.0
			for _, k := range kept {
				score += c.PivotA.Sub(k.PivotA).LenSqr()
			}
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		kept = append(kept, candidates[best])
		candidates = append(candidates[:best], candidates[best+1:]...)
	}

	var points [constraint.MaxContacts]constraint.ContactPoint
	copy(points[:], kept)
	m.Points = points
	m.NumPoints = len(kept)
}

func combinedMaterials(r *registry.Registry, m *constraint.Manifold) (restitution, friction float64) {
	matA := registry.TryGet[actor.Material](r, m.BodyA)
	matB := registry.TryGet[actor.Material](r, m.BodyB)
	if matA == nil || matB == nil {
		return 0, 0
	}
	return actor.CombineRestitution(*matA, *matB), actor.CombineFriction(*matA, *matB)
}
