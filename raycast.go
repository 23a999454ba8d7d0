package edyn

import (
	"math"

	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// RaycastResult describes the closest hit of a ray.
type RaycastResult struct {
	Entity   registry.Entity
	Point    mgl64.Vec3
	Normal   mgl64.Vec3
	Fraction float64
}

// Raycast finds the closest body hit by the segment from p0 to p1.
func (w *World) Raycast(p0, p1 mgl64.Vec3) (RaycastResult, bool) {
	best := RaycastResult{Fraction: math.Inf(1)}
	found := false

	segment := actor.PointAABB(p0).Merge(actor.PointAABB(p1))

	registry.View2(w.reg, func(e registry.Entity, shape *actor.Shape, aabb *actor.AABB) {
		if !aabb.Overlaps(segment) {
			return
		}
		pos := *registry.Get[actor.Position](w.reg, e)
		orn := *registry.Get[actor.Orientation](w.reg, e)
		if frac, normal, ok := raycastShape(*shape, pos, orn, p0, p1); ok && frac < best.Fraction {
			best = RaycastResult{
				Entity:   e,
				Point:    p0.Add(p1.Sub(p0).Mul(frac)),
				Normal:   normal,
				Fraction: frac,
			}
			found = true
		}
	})

	return best, found
}

// raycastShape intersects a segment with one shape, returning the hit
// fraction along the segment and the world surface normal.
func raycastShape(s actor.Shape, pos actor.Position, orn actor.Orientation, p0, p1 mgl64.Vec3) (float64, mgl64.Vec3, bool) {
	switch s.Kind {
	case actor.ShapeSphere:
		return raySphere(p0, p1, pos.Vec3, s.Sphere.Radius)

	case actor.ShapeBox:
		l0 := actor.ToLocal(pos, orn, p0)
		l1 := actor.ToLocal(pos, orn, p1)
		frac, localNormal, ok := rayBoxLocal(l0, l1, s.Box.HalfExtents)
		if !ok {
			return 0, mgl64.Vec3{}, false
		}
		return frac, actor.Rotate(orn, localNormal), true

	case actor.ShapePlane:
		normal := actor.Rotate(orn, s.Plane.Normal)
		point := pos.Vec3.Add(normal.Mul(s.Plane.Constant))
		d0 := normal.Dot(p0.Sub(point))
		d1 := normal.Dot(p1.Sub(point))
		if d0 < 0 || d0 <= d1 {
			return 0, mgl64.Vec3{}, false
		}
		frac := d0 / (d0 - d1)
		if frac > 1 {
			return 0, mgl64.Vec3{}, false
		}
		return frac, normal, true

	case actor.ShapeCapsule:
		hl := s.Capsule.HalfLength
		a := actor.ToWorld(pos, orn, mgl64.Vec3{0, -hl, 0})
		b := actor.ToWorld(pos, orn, mgl64.Vec3{0, hl, 0})
		return raySegmentRadius(p0, p1, a, b, s.Capsule.Radius)

	case actor.ShapeCylinder:
		// Conservative: treat the cylinder as a capsule of equal radius.
		hl := s.Cylinder.HalfLength
		a := actor.ToWorld(pos, orn, mgl64.Vec3{0, -hl, 0})
		b := actor.ToWorld(pos, orn, mgl64.Vec3{0, hl, 0})
		return raySegmentRadius(p0, p1, a, b, s.Cylinder.Radius)

	case actor.ShapePolyhedron:
		return rayConvex(s.Polyhedron, pos, orn, p0, p1)

	case actor.ShapeMesh:
		return rayMesh(s.Mesh, pos, orn, p0, p1)

	case actor.ShapeCompound:
		bestFrac := math.Inf(1)
		var bestNormal mgl64.Vec3
		hit := false
		for _, child := range s.Compound.Children {
			childPos := actor.Position{Vec3: pos.Vec3.Add(orn.Quat.Rotate(child.Position))}
			childOrn := actor.Orientation{Quat: orn.Quat.Mul(child.Orientation)}
			if frac, normal, ok := raycastShape(child.Shape, childPos, childOrn, p0, p1); ok && frac < bestFrac {
				bestFrac, bestNormal, hit = frac, normal, true
			}
		}
		return bestFrac, bestNormal, hit
	}
	return 0, mgl64.Vec3{}, false
}

func raySphere(p0, p1, center mgl64.Vec3, radius float64) (float64, mgl64.Vec3, bool) {
	d := p1.Sub(p0)
	m := p0.Sub(center)
	a := d.LenSqr()
	if a < 1e-16 {
		return 0, mgl64.Vec3{}, false
	}
	b := m.Dot(d)
	c := m.LenSqr() - radius*radius
	disc := b*b - a*c
	if disc < 0 {
		return 0, mgl64.Vec3{}, false
	}
	t := (-b - math.Sqrt(disc)) / a
	if t < 0 || t > 1 {
		return 0, mgl64.Vec3{}, false
	}
	point := p0.Add(d.Mul(t))
	return t, point.Sub(center).Normalize(), true
}

func rayBoxLocal(l0, l1, half mgl64.Vec3) (float64, mgl64.Vec3, bool) {
	d := l1.Sub(l0)
	tmin, tmax := 0.0, 1.0
	axis := -1
	sign := 1.0

	for i := 0; i < 3; i++ {
		if math.Abs(d[i]) < 1e-12 {
			if l0[i] < -half[i] || l0[i] > half[i] {
				return 0, mgl64.Vec3{}, false
			}
			continue
		}
		inv := 1.0 / d[i]
		t1 := (-half[i] - l0[i]) * inv
		t2 := (half[i] - l0[i]) * inv
		s := -1.0
		if t1 > t2 {
			t1, t2 = t2, t1
			s = 1.0
		}
		if t1 > tmin {
			tmin = t1
			axis = i
			sign = s
		}
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, mgl64.Vec3{}, false
		}
	}
	if axis < 0 {
		return 0, mgl64.Vec3{}, false // started inside
	}
	var normal mgl64.Vec3
	normal[axis] = sign
	return tmin, normal, true
}

// raySegmentRadius intersects the ray with the capsule around segment ab.
func raySegmentRadius(p0, p1, a, b mgl64.Vec3, radius float64) (float64, mgl64.Vec3, bool) {
	// Sample-free approach: solve against the infinite cylinder, then
	// clamp to the caps.
	d := p1.Sub(p0)
	axis := b.Sub(a)
	axisLen := axis.Len()
	if axisLen < 1e-9 {
		return raySphere(p0, p1, a, radius)
	}
	axis = axis.Mul(1 / axisLen)

	m := p0.Sub(a)
	dPerp := d.Sub(axis.Mul(d.Dot(axis)))
	mPerp := m.Sub(axis.Mul(m.Dot(axis)))

	qa := dPerp.LenSqr()
	qb := dPerp.Dot(mPerp)
	qc := mPerp.LenSqr() - radius*radius

	bestT := math.Inf(1)
	var bestNormal mgl64.Vec3
	hit := false

	if qa > 1e-16 {
		disc := qb*qb - qa*qc
		if disc >= 0 {
			t := (-qb - math.Sqrt(disc)) / qa
			if t >= 0 && t <= 1 {
				point := p0.Add(d.Mul(t))
				proj := point.Sub(a).Dot(axis)
				if proj >= 0 && proj <= axisLen {
					onAxis := a.Add(axis.Mul(proj))
					bestT = t
					bestNormal = point.Sub(onAxis).Normalize()
					hit = true
				}
			}
		}
	}

	for _, capCenter := range []mgl64.Vec3{a, b} {
		if t, n, ok := raySphere(p0, p1, capCenter, radius); ok && t < bestT {
			bestT, bestNormal, hit = t, n, true
		}
	}

	return bestT, bestNormal, hit
}

// rayConvex clips the segment against the polyhedron's face half-spaces.
func rayConvex(p *actor.PolyhedronShape, pos actor.Position, orn actor.Orientation, p0, p1 mgl64.Vec3) (float64, mgl64.Vec3, bool) {
	l0 := actor.ToLocal(pos, orn, p0)
	l1 := actor.ToLocal(pos, orn, p1)
	d := l1.Sub(l0)

	tmin, tmax := 0.0, 1.0
	var entryNormal mgl64.Vec3
	entered := false

	for i, n := range p.FaceNormals {
		v := p.Vertices[p.Faces[i][0]]
		denom := n.Dot(d)
		dist := n.Dot(l0.Sub(v))
		if math.Abs(denom) < 1e-12 {
			if dist > 0 {
				return 0, mgl64.Vec3{}, false
			}
			continue
		}
		t := -dist / denom
		if denom < 0 {
			if t > tmin {
				tmin = t
				entryNormal = n
				entered = true
			}
		} else {
			tmax = math.Min(tmax, t)
		}
		if tmin > tmax {
			return 0, mgl64.Vec3{}, false
		}
	}
	if !entered {
		return 0, mgl64.Vec3{}, false
	}
	return tmin, actor.Rotate(orn, entryNormal), true
}

func rayMesh(m *actor.TrimeshShape, pos actor.Position, orn actor.Orientation, p0, p1 mgl64.Vec3) (float64, mgl64.Vec3, bool) {
	l0 := actor.ToLocal(pos, orn, p0)
	l1 := actor.ToLocal(pos, orn, p1)
	query := actor.PointAABB(l0).Merge(actor.PointAABB(l1))

	bestT := math.Inf(1)
	var bestNormal mgl64.Vec3
	hit := false

	m.QueryTriangles(query, func(tri int) {
		verts := m.TriangleVertices(tri)
		if t, ok := rayTriangle(l0, l1, verts[0], verts[1], verts[2]); ok && t < bestT {
			bestT = t
			bestNormal = actor.Rotate(orn, m.Normals[tri])
			hit = true
		}
	})

	return bestT, bestNormal, hit
}

// rayTriangle is the Möller-Trumbore segment/triangle test.
func rayTriangle(p0, p1, a, b, c mgl64.Vec3) (float64, bool) {
	d := p1.Sub(p0)
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	h := d.Cross(e2)
	det := e1.Dot(h)
	if math.Abs(det) < 1e-12 {
		return 0, false
	}
	inv := 1.0 / det
	s := p0.Sub(a)
	u := s.Dot(h) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := d.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * inv
	if t < 0 || t > 1 {
		return 0, false
	}
	return t, true
}
