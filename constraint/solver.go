package constraint

import (
	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// DefaultIterations is the default number of solver passes per step.
const DefaultIterations = 10

// Solver runs fixed-iteration projected Gauss-Seidel over the row cache.
// Rows are processed in cache order, which is registry pool order per kind
// and per-constraint row order, so a stable registry gives deterministic
// results.
type Solver struct {
	Iterations int
}

// preparedKinds is the fixed preparation order of the constraint kinds.
var preparedKinds = []Kind{KindDistance, KindPoint, KindHinge, KindGeneric}

// Step advances the dynamics of a registry by dt: integrates external
// acceleration, prepares and solves the constraint rows, folds the velocity
// deltas back, and integrates velocities into transforms.
func (s *Solver) Step(r *registry.Registry, dt float64) {
	iterations := s.Iterations
	if iterations <= 0 {
		iterations = DefaultIterations
	}

	integrateAcceleration(r, dt)
	resetAccumulators(r)

	cache := registry.Ctx[Cache](r)
	cache.Clear()

	prepareContacts(r, cache, dt)
	for _, kind := range preparedKinds {
		prepareJoints(r, cache, dt, kind)
	}

	for it := 0; it < iterations; it++ {
		iterateContacts(r, cache, dt)
		for i := range cache.Rows {
			solveRow(&cache.Rows[i])
		}
	}

	applyAccumulators(r)
	storeContactImpulses(r, cache)
	for _, kind := range preparedKinds {
		storeJointImpulses(r, cache, kind)
	}

	IntegrateVelocity(r, dt)
}

// integrateAcceleration applies per-step external acceleration (gravity)
// to every dynamic body.
func integrateAcceleration(r *registry.Registry, dt float64) {
	registry.View2(r, func(e registry.Entity, vel *actor.LinVel, acc *actor.LinAcc) {
		if *registry.Get[actor.Kind](r, e) != actor.KindDynamic {
			return
		}
		vel.Vec3 = vel.Vec3.Add(acc.Vec3.Mul(dt))
	})
}

// resetAccumulators zeroes (and on first use creates) the delta-velocity
// accumulators of every body, so that row pointers taken during
// preparation stay valid for the whole solve.
func resetAccumulators(r *registry.Registry) {
	for _, e := range registry.Entities[actor.Kind](r) {
		registry.Assign(r, e, DeltaLinVel{})
		registry.Assign(r, e, DeltaAngVel{})
	}
}

// applyAccumulators folds the accumulated deltas into the body velocities
// and zeroes them. Only dynamic bodies move; static and kinematic rows have
// zero inverse mass, so their accumulators stay zero anyway.
func applyAccumulators(r *registry.Registry) {
	registry.View2(r, func(e registry.Entity, dlin *DeltaLinVel, dang *DeltaAngVel) {
		if *registry.Get[actor.Kind](r, e) != actor.KindDynamic {
			dlin.Vec3 = mgl64.Vec3{}
			dang.Vec3 = mgl64.Vec3{}
			return
		}
		registry.Get[actor.LinVel](r, e).Vec3 = registry.Get[actor.LinVel](r, e).Vec3.Add(dlin.Vec3)
		registry.Get[actor.AngVel](r, e).Vec3 = registry.Get[actor.AngVel](r, e).Vec3.Add(dang.Vec3)
		dlin.Vec3 = mgl64.Vec3{}
		dang.Vec3 = mgl64.Vec3{}
	})
}

// IntegrateVelocity advances positions and orientations of dynamic and
// kinematic bodies by their velocities, renormalizing orientations, and
// refreshes the
// per-body caches that depend on the transform (AABB, rotated mesh,
// world-space inertia).
func IntegrateVelocity(r *registry.Registry, dt float64) {
	registry.Each(r, func(e registry.Entity, kind *actor.Kind) {
		// Kinematic bodies are driven by user-set velocities; static
		// bodies never move.
		if *kind == actor.KindStatic {
			return
		}

		pos := registry.Get[actor.Position](r, e)
		orn := registry.Get[actor.Orientation](r, e)
		linvel := registry.Get[actor.LinVel](r, e)
		angvel := registry.Get[actor.AngVel](r, e)

		pos.Vec3 = pos.Vec3.Add(linvel.Vec3.Mul(dt))

		omega := mgl64.Quat{W: 0, V: angvel.Vec3}
		qDot := omega.Mul(orn.Quat).Scale(0.5)
		orn.Quat = orn.Quat.Add(qDot.Scale(dt)).Normalize()

		actor.UpdateAABB(r, e)
		actor.UpdateRotatedMesh(r, e)
		actor.UpdateWorldInertia(r, e)
	})
}
