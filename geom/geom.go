// Package geom provides the closest-point and polygon-clipping primitives
// shared by the narrowphase collision routines.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// TangentBasis builds two unit tangents orthogonal to a unit normal.
func TangentBasis(normal mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	tangent1 := mgl64.Vec3{1, 0, 0}
	if math.Abs(normal.X()) > 0.9 {
		tangent1 = mgl64.Vec3{0, 1, 0}
	}

	tangent1 = tangent1.Sub(normal.Mul(tangent1.Dot(normal))).Normalize()
	tangent2 := normal.Cross(tangent1).Normalize()

	return tangent1, tangent2
}

// ClipPolygonAgainstPlane implements Sutherland-Hodgman for a single plane,
// keeping the part of the polygon on the normal side.
func ClipPolygonAgainstPlane(polygon []mgl64.Vec3, planePoint, planeNormal mgl64.Vec3) []mgl64.Vec3 {
	if len(polygon) == 0 {
		return polygon
	}

	const tolerance = 1e-6

	var output []mgl64.Vec3
	for i := 0; i < len(polygon); i++ {
		current := polygon[i]
		next := polygon[(i+1)%len(polygon)]

		currentDist := current.Sub(planePoint).Dot(planeNormal)
		nextDist := next.Sub(planePoint).Dot(planeNormal)

		if currentDist >= -tolerance {
			output = append(output, current)
			if nextDist < -tolerance {
				output = append(output, LineIntersectPlane(current, next, planePoint, planeNormal))
			}
		} else if nextDist >= -tolerance {
			output = append(output, LineIntersectPlane(current, next, planePoint, planeNormal))
		}
	}

	return output
}

// LineIntersectPlane calculates the intersection between a line segment and
// a plane, clamped to the segment.
func LineIntersectPlane(p1, p2, planePoint, planeNormal mgl64.Vec3) mgl64.Vec3 {
	dir := p2.Sub(p1)
	dist := p1.Sub(planePoint).Dot(planeNormal)
	denom := dir.Dot(planeNormal)

	if math.Abs(denom) < 1e-10 {
		return p1 // segment parallel to plane
	}

	t := -dist / denom
	t = math.Max(0, math.Min(1, t))

	return p1.Add(dir.Mul(t))
}

// Centroid calculates the center of a set of points.
func Centroid(points []mgl64.Vec3) mgl64.Vec3 {
	if len(points) == 0 {
		return mgl64.Vec3{}
	}
	var sum mgl64.Vec3
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Mul(1.0 / float64(len(points)))
}

// ClosestPointOnSegment returns the point of segment ab closest to p and
// its parameter t in [0,1].
func ClosestPointOnSegment(p, a, b mgl64.Vec3) (mgl64.Vec3, float64) {
	ab := b.Sub(a)
	denom := ab.LenSqr()
	if denom < 1e-16 {
		return a, 0
	}
	t := p.Sub(a).Dot(ab) / denom
	t = math.Max(0, math.Min(1, t))
	return a.Add(ab.Mul(t)), t
}

// ClosestPointSegmentSegment computes the closest points between segments
// p1q1 and p2q2 and their parameters.
func ClosestPointSegmentSegment(p1, q1, p2, q2 mgl64.Vec3) (c1, c2 mgl64.Vec3, s, t float64) {
	d1 := q1.Sub(p1)
	d2 := q2.Sub(p2)
	r := p1.Sub(p2)
	a := d1.LenSqr()
	e := d2.LenSqr()
	f := d2.Dot(r)

	const eps = 1e-12

	switch {
	case a <= eps && e <= eps:
		return p1, p2, 0, 0
	case a <= eps:
		t = math.Max(0, math.Min(1, f/e))
		return p1, p2.Add(d2.Mul(t)), 0, t
	case e <= eps:
		c := d1.Dot(r)
		s = math.Max(0, math.Min(1, -c/a))
		return p1.Add(d1.Mul(s)), p2, s, 0
	}

	c := d1.Dot(r)
	b := d1.Dot(d2)
	denom := a*e - b*b

	if denom > eps {
		s = math.Max(0, math.Min(1, (b*f-c*e)/denom))
	}
	t = (b*s + f) / e
	if t < 0 {
		t = 0
		s = math.Max(0, math.Min(1, -c/a))
	} else if t > 1 {
		t = 1
		s = math.Max(0, math.Min(1, (b-c)/a))
	}

	return p1.Add(d1.Mul(s)), p2.Add(d2.Mul(t)), s, t
}

// TriangleFeature classifies where on a triangle a closest point lies.
type TriangleFeature uint8

const (
	TriangleFace TriangleFeature = iota
	TriangleEdge0
	TriangleEdge1
	TriangleEdge2
	TriangleVertex0
	TriangleVertex1
	TriangleVertex2
)

// ClosestPointOnTriangle returns the point of triangle abc closest to p and
// the feature it lies on (face interior, an edge, or a vertex).
func ClosestPointOnTriangle(p, a, b, c mgl64.Vec3) (mgl64.Vec3, TriangleFeature) {
	ab := b.Sub(a)
	ac := c.Sub(a)
	ap := p.Sub(a)

	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a, TriangleVertex0
	}

	bp := p.Sub(b)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b, TriangleVertex1
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return a.Add(ab.Mul(v)), TriangleEdge0
	}

	cp := p.Sub(c)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c, TriangleVertex2
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return a.Add(ac.Mul(w)), TriangleEdge2
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return b.Add(c.Sub(b).Mul(w)), TriangleEdge1
	}

	denom := 1.0 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return a.Add(ab.Mul(v)).Add(ac.Mul(w)), TriangleFace
}
