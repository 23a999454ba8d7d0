package constraint

import (
	"math"

	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// DeltaLinVel accumulates linear velocity corrections during a solve.
type DeltaLinVel struct {
	mgl64.Vec3
}

// DeltaAngVel accumulates angular velocity corrections during a solve.
type DeltaAngVel struct {
	mgl64.Vec3
}

// RowStarts records, per constraint kind, the index of its first row in
// the cache for the current step. It lives in the registry context so the
// iterate pass can find its rows again.
type RowStarts struct {
	Contact  int
	Distance int
	Point    int
	Hinge    int
	Generic  int
}

type bodyState struct {
	pos     actor.Position
	orn     actor.Orientation
	linvel  mgl64.Vec3
	angvel  mgl64.Vec3
	invMass float64
	invI    mgl64.Mat3
	dlin    *mgl64.Vec3
	dang    *mgl64.Vec3
}

func getBodyState(r *registry.Registry, e registry.Entity) bodyState {
	s := bodyState{
		pos:    *registry.Get[actor.Position](r, e),
		orn:    *registry.Get[actor.Orientation](r, e),
		linvel: registry.Get[actor.LinVel](r, e).Vec3,
		angvel: registry.Get[actor.AngVel](r, e).Vec3,
		dlin:   &registry.Get[DeltaLinVel](r, e).Vec3,
		dang:   &registry.Get[DeltaAngVel](r, e).Vec3,
	}
	if mass := registry.TryGet[actor.Mass](r, e); mass != nil {
		s.invMass = mass.Inv
	}
	if inertia := registry.TryGet[actor.Inertia](r, e); inertia != nil {
		s.invI = inertia.WorldInv
	}
	return s
}

func fillRowBodies(row *Row, a, b *bodyState) {
	row.InvMassA = a.invMass
	row.InvMassB = b.invMass
	row.InvIA = a.invI
	row.InvIB = b.invI
	row.DLinA = a.dlin
	row.DAngA = a.dang
	row.DLinB = b.dlin
	row.DAngB = b.dang
}

// solvableManifold reports whether a manifold produces impulses: sensors
// (bodies without a material) only report contacts.
func solvableManifold(r *registry.Registry, m *Manifold) bool {
	return m.NumPoints > 0 &&
		registry.Has[actor.Material](r, m.BodyA) &&
		registry.Has[actor.Material](r, m.BodyB)
}

// prepareContacts appends a normal and a friction row for every contact
// point of every solvable manifold, in pool order.
func prepareContacts(r *registry.Registry, cache *Cache, dt float64) {
	registry.Ctx[RowStarts](r).Contact = len(cache.Rows)

	registry.Each(r, func(_ registry.Entity, m *Manifold) {
		if !solvableManifold(r, m) {
			return
		}
		a := getBodyState(r, m.BodyA)
		b := getBodyState(r, m.BodyB)
		matA := registry.Get[actor.Material](r, m.BodyA)
		matB := registry.Get[actor.Material](r, m.BodyB)
		stiffness := math.Min(matA.Stiffness, matB.Stiffness)
		damping := math.Min(matA.Damping, matB.Damping)

		for i := 0; i < m.NumPoints; i++ {
			cp := &m.Points[i]

			normal := actor.Rotate(b.orn, cp.NormalB)
			rA := actor.Rotate(a.orn, cp.PivotA)
			rB := actor.Rotate(b.orn, cp.PivotB)

			// Normal row.
			row := cache.AddRow()
			row.JLinA = normal
			row.JAngA = rA.Cross(normal)
			row.JLinB = normal.Mul(-1)
			row.JAngB = rB.Cross(normal).Mul(-1)
			fillRowBodies(row, &a, &b)
			row.LowerLimit = 0

			penetration := -cp.Distance
			if stiffness <= 0 || stiffness >= actor.LargeScalar {
				// Zero stiffness means unset; the contact is rigid.
				row.UpperLimit = math.Inf(1)
			} else {
				// Spring-damper contact: the impulse this step cannot
				// exceed the spring force integrated over dt.
				vn := relVelAlong(&a, &b, rA, rB, normal)
				row.UpperLimit = math.Abs(stiffness*penetration+damping*vn) * dt
			}

			vrel := relVelAlong(&a, &b, rA, rB, normal)
			bounce := -cp.Restitution * vrel
			pvel := penetration / dt
			var errVel float64
			if penetration > 0 && pvel > bounce {
				errVel = math.Max(pvel, 0)
			} else {
				errVel = math.Min(pvel, 0)
			}
			row.RHS = -(1+cp.Restitution)*vrel + errVel

			prepareRow(row, cp.NormalImpulse)

			// Friction row. The tangent follows the relative velocity at
			// the contact; limits are filled in during iteration from the
			// accumulated normal impulse.
			vpA := a.linvel.Add(a.angvel.Cross(rA))
			vpB := b.linvel.Add(b.angvel.Cross(rB))
			rel := vpA.Sub(vpB)
			tangentRel := rel.Sub(normal.Mul(normal.Dot(rel)))
			var tangent mgl64.Vec3
			if tangentRel.LenSqr() > 1e-12 {
				tangent = tangentRel.Normalize()
			} else {
				tangent = mgl64.Vec3{1, 0, 0}
			}

			frow := cache.AddRow()
			frow.JLinA = tangent
			frow.JAngA = rA.Cross(tangent)
			frow.JLinB = tangent.Mul(-1)
			frow.JAngB = rB.Cross(tangent).Mul(-1)
			fillRowBodies(frow, &a, &b)
			frow.RHS = -relVelAlong(&a, &b, rA, rB, tangent)
			prepareRow(frow, cp.FrictionImpulse)
		}
		cache.CloseConstraint(2 * m.NumPoints)
	})
}

// relVelAlong projects the relative velocity at the contact onto dir.
func relVelAlong(a, b *bodyState, rA, rB, dir mgl64.Vec3) float64 {
	vpA := a.linvel.Add(a.angvel.Cross(rA))
	vpB := b.linvel.Add(b.angvel.Cross(rB))
	return dir.Dot(vpA.Sub(vpB))
}

// iterateContacts clamps each friction row's limits by the friction cone of
// its normal row's current impulse.
func iterateContacts(r *registry.Registry, cache *Cache, dt float64) {
	idx := registry.Ctx[RowStarts](r).Contact

	registry.Each(r, func(_ registry.Entity, m *Manifold) {
		if !solvableManifold(r, m) {
			return
		}
		for i := 0; i < m.NumPoints; i++ {
			normalRow := &cache.Rows[idx]
			frictionRow := &cache.Rows[idx+1]

			limit := math.Abs(normalRow.Impulse) * m.Points[i].Friction
			frictionRow.LowerLimit = -limit
			frictionRow.UpperLimit = limit

			idx += 2
		}
	})
}

// storeContactImpulses copies the solved impulses back into the manifold
// points for next-step warm starting.
func storeContactImpulses(r *registry.Registry, cache *Cache) {
	idx := registry.Ctx[RowStarts](r).Contact

	registry.Each(r, func(_ registry.Entity, m *Manifold) {
		if !solvableManifold(r, m) {
			return
		}
		for i := 0; i < m.NumPoints; i++ {
			m.Points[i].NormalImpulse = cache.Rows[idx].Impulse
			m.Points[i].FrictionImpulse = cache.Rows[idx+1].Impulse
			idx += 2
		}
	})
}
