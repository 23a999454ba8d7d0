package constraint

import (
	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/geom"
	"github.com/StellaSmith/edyn/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// impulseValue fetches the warm-start impulse for row i of a constraint.
func impulseValue(imp *Impulse, i int) float64 {
	if imp == nil || i >= len(imp.Values) {
		return 0
	}
	return imp.Values[i]
}

// ensureImpulseLen grows a constraint's persistent impulse storage.
func ensureImpulseLen(r *registry.Registry, e registry.Entity, n int) *Impulse {
	imp := registry.TryGet[Impulse](r, e)
	if imp == nil {
		registry.Assign(r, e, Impulse{Values: make([]float64, n)})
		return registry.Get[Impulse](r, e)
	}
	for len(imp.Values) < n {
		imp.Values = append(imp.Values, 0)
	}
	return imp
}

// linearRow appends one row constraining the relative velocity of the two
// pivots along dir, with a positional error corrected over dt.
func linearRow(cache *Cache, a, b *bodyState, rA, rB, dir mgl64.Vec3, posError, dt, warm float64) *Row {
	row := cache.AddRow()
	row.JLinA = dir
	row.JAngA = rA.Cross(dir)
	row.JLinB = dir.Mul(-1)
	row.JAngB = rB.Cross(dir).Mul(-1)
	fillRowBodies(row, a, b)
	row.RHS = -relVelAlong(a, b, rA, rB, dir) - posError/dt
	prepareRow(row, warm)
	return row
}

// angularRow appends one row constraining the relative angular velocity
// along dir.
func angularRow(cache *Cache, a, b *bodyState, dir mgl64.Vec3, angError, dt, warm float64) *Row {
	row := cache.AddRow()
	row.JAngA = dir
	row.JAngB = dir.Mul(-1)
	fillRowBodies(row, a, b)
	row.RHS = -dir.Dot(a.angvel.Sub(b.angvel)) - angError/dt
	prepareRow(row, warm)
	return row
}

func prepareJoints(r *registry.Registry, cache *Cache, dt float64, kind Kind) {
	starts := registry.Ctx[RowStarts](r)
	switch kind {
	case KindDistance:
		starts.Distance = len(cache.Rows)
	case KindPoint:
		starts.Point = len(cache.Rows)
	case KindHinge:
		starts.Hinge = len(cache.Rows)
	case KindGeneric:
		starts.Generic = len(cache.Rows)
	}

	registry.Each(r, func(e registry.Entity, con *Constraint) {
		if con.Kind != kind {
			return
		}
		a := getBodyState(r, con.BodyA)
		b := getBodyState(r, con.BodyB)

		switch kind {
		case KindDistance:
			p := con.Distance
			imp := ensureImpulseLen(r, e, 1)
			rA := actor.Rotate(a.orn, p.PivotA)
			rB := actor.Rotate(b.orn, p.PivotB)
			pA := a.pos.Vec3.Add(rA)
			pB := b.pos.Vec3.Add(rB)
			d := pA.Sub(pB)
			dist := d.Len()
			dir := mgl64.Vec3{1, 0, 0}
			if dist > 1e-9 {
				dir = d.Mul(1 / dist)
			}
			linearRow(cache, &a, &b, rA, rB, dir, dist-p.Length, dt, impulseValue(imp, 0))
			cache.CloseConstraint(1)

		case KindPoint:
			p := con.Point
			imp := ensureImpulseLen(r, e, 3)
			rA := actor.Rotate(a.orn, p.PivotA)
			rB := actor.Rotate(b.orn, p.PivotB)
			err := a.pos.Vec3.Add(rA).Sub(b.pos.Vec3.Add(rB))
			for axis := 0; axis < 3; axis++ {
				var dir mgl64.Vec3
				dir[axis] = 1
				linearRow(cache, &a, &b, rA, rB, dir, err[axis], dt, impulseValue(imp, axis))
			}
			cache.CloseConstraint(3)

		case KindHinge:
			p := con.Hinge
			imp := ensureImpulseLen(r, e, 5)
			rA := actor.Rotate(a.orn, p.PivotA)
			rB := actor.Rotate(b.orn, p.PivotB)
			err := a.pos.Vec3.Add(rA).Sub(b.pos.Vec3.Add(rB))
			for axis := 0; axis < 3; axis++ {
				var dir mgl64.Vec3
				dir[axis] = 1
				linearRow(cache, &a, &b, rA, rB, dir, err[axis], dt, impulseValue(imp, axis))
			}
			// Two angular rows keep the hinge axes aligned; the remaining
			// angular freedom is the hinge itself.
			axisA := actor.Rotate(a.orn, p.AxisA)
			axisB := actor.Rotate(b.orn, p.AxisB)
			u, v := geom.TangentBasis(axisA)
			mis := axisA.Cross(axisB)
			angularRow(cache, &a, &b, u, u.Dot(mis), dt, impulseValue(imp, 3))
			angularRow(cache, &a, &b, v, v.Dot(mis), dt, impulseValue(imp, 4))
			cache.CloseConstraint(5)

		case KindGeneric:
			p := con.Generic
			imp := ensureImpulseLen(r, e, 6)
			rA := actor.Rotate(a.orn, p.PivotA)
			rB := actor.Rotate(b.orn, p.PivotB)
			err := a.pos.Vec3.Add(rA).Sub(b.pos.Vec3.Add(rB))
			numRows := 0
			for axis := 0; axis < 3; axis++ {
				if p.LinearMask&(1<<axis) == 0 {
					continue
				}
				var dir mgl64.Vec3
				dir[axis] = 1
				linearRow(cache, &a, &b, rA, rB, dir, err[axis], dt, impulseValue(imp, numRows))
				numRows++
			}
			// Relative orientation twist, small-angle approximated from
			// the vector part of the relative quaternion.
			qRel := a.orn.Quat.Mul(b.orn.Quat.Conjugate())
			if qRel.W < 0 {
				qRel = qRel.Scale(-1)
			}
			angErr := qRel.V.Mul(2)
			for axis := 0; axis < 3; axis++ {
				if p.AngularMask&(1<<axis) == 0 {
					continue
				}
				var dir mgl64.Vec3
				dir[axis] = 1
				angularRow(cache, &a, &b, dir, angErr[axis], dt, impulseValue(imp, numRows))
				numRows++
			}
			cache.CloseConstraint(numRows)
		}
	})
}

// storeJointImpulses writes the solved impulses back to each joint's
// persistent Impulse component.
func storeJointImpulses(r *registry.Registry, cache *Cache, kind Kind) {
	starts := registry.Ctx[RowStarts](r)
	var idx int
	switch kind {
	case KindDistance:
		idx = starts.Distance
	case KindPoint:
		idx = starts.Point
	case KindHinge:
		idx = starts.Hinge
	case KindGeneric:
		idx = starts.Generic
	}

	registry.Each(r, func(e registry.Entity, con *Constraint) {
		if con.Kind != kind {
			return
		}
		imp := registry.Get[Impulse](r, e)
		n := jointRowCount(con)
		for i := 0; i < n; i++ {
			imp.Values[i] = cache.Rows[idx+i].Impulse
		}
		idx += n
	})
}

func jointRowCount(con *Constraint) int {
	switch con.Kind {
	case KindDistance:
		return 1
	case KindPoint:
		return 3
	case KindHinge:
		return 5
	case KindGeneric:
		n := 0
		for axis := 0; axis < 3; axis++ {
			if con.Generic.LinearMask&(1<<axis) != 0 {
				n++
			}
			if con.Generic.AngularMask&(1<<axis) != 0 {
				n++
			}
		}
		return n
	}
	return 0
}
