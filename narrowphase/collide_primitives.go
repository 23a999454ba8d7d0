package narrowphase

import (
	"math"

	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/geom"
	"github.com/go-gl/mathgl/mgl64"
)

func collideSphereSphere(a, b Shape, threshold float64) []Result {
	rA := a.Shape.Sphere.Radius
	rB := b.Shape.Sphere.Radius

	d := a.Position.Vec3.Sub(b.Position.Vec3)
	dist := d.Len()

	normal := mgl64.Vec3{0, 1, 0}
	if dist > 1e-9 {
		normal = d.Mul(1 / dist)
	}

	separation := dist - rA - rB
	if separation > threshold {
		return nil
	}

	return []Result{{
		PivotA:   a.Position.Vec3.Sub(normal.Mul(rA)),
		PivotB:   b.Position.Vec3.Add(normal.Mul(rB)),
		Normal:   normal,
		Distance: separation,
	}}
}

// planeWorld returns a plane shape's world normal and a point on it.
func planeWorld(s Shape) (mgl64.Vec3, mgl64.Vec3) {
	p := s.Shape.Plane
	normal := s.Orientation.Quat.Rotate(p.Normal)
	point := s.Position.Vec3.Add(normal.Mul(p.Constant))
	return normal, point
}

func collideSpherePlane(a, b Shape, threshold float64) []Result {
	r := a.Shape.Sphere.Radius
	normal, point := planeWorld(b)

	separation := normal.Dot(a.Position.Vec3.Sub(point)) - r
	if separation > threshold {
		return nil
	}

	onSphere := a.Position.Vec3.Sub(normal.Mul(r))
	return []Result{{
		PivotA:   onSphere,
		PivotB:   onSphere.Sub(normal.Mul(separation)),
		Normal:   normal,
		Distance: separation,
	}}
}

func collideSphereBox(a, b Shape, threshold float64) []Result {
	r := a.Shape.Sphere.Radius
	half := b.Shape.Box.HalfExtents

	// Sphere center in the box frame.
	local := actor.ToLocal(b.Position, b.Orientation, a.Position.Vec3)
	clamped := mgl64.Vec3{
		math.Max(-half.X(), math.Min(half.X(), local.X())),
		math.Max(-half.Y(), math.Min(half.Y(), local.Y())),
		math.Max(-half.Z(), math.Min(half.Z(), local.Z())),
	}

	delta := local.Sub(clamped)
	distSqr := delta.LenSqr()

	if distSqr > 1e-18 {
		// Center outside the box.
		dist := math.Sqrt(distSqr)
		separation := dist - r
		if separation > threshold {
			return nil
		}
		localNormal := delta.Mul(1 / dist)
		normal := actor.Rotate(b.Orientation, localNormal)
		onBox := actor.ToWorld(b.Position, b.Orientation, clamped)
		return []Result{{
			PivotA:   a.Position.Vec3.Sub(normal.Mul(r)),
			PivotB:   onBox,
			Normal:   normal,
			Distance: separation,
		}}
	}

	// Center inside: push out through the nearest face.
	face := 0
	sign := 1.0
	minDepth := math.Inf(1)
	for axis := 0; axis < 3; axis++ {
		if d := half[axis] - local[axis]; d < minDepth {
			minDepth = d
			face = axis
			sign = 1
		}
		if d := half[axis] + local[axis]; d < minDepth {
			minDepth = d
			face = axis
			sign = -1
		}
	}
	var localNormal mgl64.Vec3
	localNormal[face] = sign
	normal := actor.Rotate(b.Orientation, localNormal)
	onBoxLocal := local
	onBoxLocal[face] = sign * half[face]
	return []Result{{
		PivotA:   a.Position.Vec3.Sub(normal.Mul(r)),
		PivotB:   actor.ToWorld(b.Position, b.Orientation, onBoxLocal),
		Normal:   normal,
		Distance: -(minDepth + r),
	}}
}

// capsuleSegment returns the world endpoints of a capsule's inner segment.
func capsuleSegment(s Shape) (mgl64.Vec3, mgl64.Vec3) {
	hl := s.Shape.Capsule.HalfLength
	p0 := actor.ToWorld(s.Position, s.Orientation, mgl64.Vec3{0, -hl, 0})
	p1 := actor.ToWorld(s.Position, s.Orientation, mgl64.Vec3{0, hl, 0})
	return p0, p1
}

func collideSphereCapsule(a, b Shape, threshold float64) []Result {
	rA := a.Shape.Sphere.Radius
	rB := b.Shape.Capsule.Radius

	p0, p1 := capsuleSegment(b)
	closest, _ := geom.ClosestPointOnSegment(a.Position.Vec3, p0, p1)

	d := a.Position.Vec3.Sub(closest)
	dist := d.Len()
	normal := mgl64.Vec3{0, 1, 0}
	if dist > 1e-9 {
		normal = d.Mul(1 / dist)
	}

	separation := dist - rA - rB
	if separation > threshold {
		return nil
	}

	return []Result{{
		PivotA:   a.Position.Vec3.Sub(normal.Mul(rA)),
		PivotB:   closest.Add(normal.Mul(rB)),
		Normal:   normal,
		Distance: separation,
	}}
}

func collideCapsuleCapsule(a, b Shape, threshold float64) []Result {
	rA := a.Shape.Capsule.Radius
	rB := b.Shape.Capsule.Radius

	a0, a1 := capsuleSegment(a)
	b0, b1 := capsuleSegment(b)

	cA, cB, _, _ := geom.ClosestPointSegmentSegment(a0, a1, b0, b1)
	d := cA.Sub(cB)
	dist := d.Len()
	normal := mgl64.Vec3{0, 1, 0}
	if dist > 1e-9 {
		normal = d.Mul(1 / dist)
	}

	separation := dist - rA - rB
	if separation > threshold {
		return nil
	}

	results := []Result{{
		PivotA:   cA.Sub(normal.Mul(rA)),
		PivotB:   cB.Add(normal.Mul(rB)),
		Normal:   normal,
		Distance: separation,
	}}

	// Nearly parallel segments rest on two points, one per end, for
	// rocking-free stacking.
	axisA := a1.Sub(a0).Normalize()
	axisB := b1.Sub(b0).Normalize()
	if math.Abs(axisA.Dot(axisB)) > 0.999 {
		for _, end := range []mgl64.Vec3{b0, b1} {
			onA, _ := geom.ClosestPointOnSegment(end, a0, a1)
			d2 := onA.Sub(end)
			dist2 := d2.Len()
			sep2 := dist2 - rA - rB
			if sep2 > threshold || dist2 < 1e-9 {
				continue
			}
			n2 := d2.Mul(1 / dist2)
			results = append(results, Result{
				PivotA:   onA.Sub(n2.Mul(rA)),
				PivotB:   end.Add(n2.Mul(rB)),
				Normal:   n2,
				Distance: sep2,
			})
		}
	}

	return results
}

func collideCapsulePlane(a, b Shape, threshold float64) []Result {
	r := a.Shape.Capsule.Radius
	normal, point := planeWorld(b)

	var results []Result
	p0, p1 := capsuleSegment(a)
	for _, end := range []mgl64.Vec3{p0, p1} {
		separation := normal.Dot(end.Sub(point)) - r
		if separation > threshold {
			continue
		}
		onCapsule := end.Sub(normal.Mul(r))
		results = append(results, Result{
			PivotA:   onCapsule,
			PivotB:   onCapsule.Sub(normal.Mul(separation)),
			Normal:   normal,
			Distance: separation,
		})
	}
	return results
}

// collideConvexPlane samples the convex shape's contact feature against
// the plane, covering boxes, cylinders and polyhedra resting on the
// ground.
func collideConvexPlane(a, b Shape, threshold float64) []Result {
	normal, point := planeWorld(b)

	feature := contactFeature(a, normal.Mul(-1))

	var results []Result
	for _, p := range feature {
		separation := normal.Dot(p.Sub(point))
		if separation > threshold {
			continue
		}
		results = append(results, Result{
			PivotA:   p,
			PivotB:   p.Sub(normal.Mul(separation)),
			Normal:   normal,
			Distance: separation,
		})
	}
	if len(results) > 0 {
		return results
	}

	// No feature vertex within range; fall back to the single deepest
	// support point.
	deepest := a.support(normal.Mul(-1))
	separation := normal.Dot(deepest.Sub(point))
	if separation > threshold {
		return nil
	}
	return []Result{{
		PivotA:   deepest,
		PivotB:   deepest.Sub(normal.Mul(separation)),
		Normal:   normal,
		Distance: separation,
	}}
}
