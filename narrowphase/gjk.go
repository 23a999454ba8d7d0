package narrowphase

import (
	"github.com/StellaSmith/edyn/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// Shape is a convex shape with its world transform.
type Shape struct {
	Shape       actor.Shape
	Position    actor.Position
	Orientation actor.Orientation
}

func (s Shape) support(direction mgl64.Vec3) mgl64.Vec3 {
	return actor.SupportWorld(s.Shape, s.Position, s.Orientation, direction)
}

// convexPair bundles the two transformed convex shapes a support query
// runs against.
type convexPair struct {
	shapeA Shape
	shapeB Shape
}

// minkowskiSupport computes a support point in the Minkowski difference
// A - B. Shapes only need a Support function for GJK to work on them.
func (p convexPair) minkowskiSupport(direction mgl64.Vec3) mgl64.Vec3 {
	return p.shapeA.support(direction).Sub(p.shapeB.support(direction.Mul(-1)))
}

// simplex is a set of 1-4 points in Minkowski-difference space, refined
// toward the origin during GJK iterations.
type simplex struct {
	points [4]mgl64.Vec3
	count  int
}

const gjkMaxIterations = 32

// gjk reports whether the two convex shapes overlap. On collision the
// simplex is usually a tetrahedron containing the origin; when the shapes
// only touch it may hold fewer points with the origin on one of its
// features, and epa inflates it before expanding.
func gjk(pair convexPair, s *simplex) bool {
	direction := pair.shapeB.Position.Vec3.Sub(pair.shapeA.Position.Vec3)
	if direction.LenSqr() < 1e-8 {
		direction = mgl64.Vec3{1, 0, 0}
	}

	s.points[0] = pair.minkowskiSupport(direction)
	s.count = 1
	direction = s.points[0].Mul(-1)

	if direction.LenSqr() < 1e-16 {
		return true // shapes exactly touching at a point
	}

	for i := 0; i < gjkMaxIterations; i++ {
		newPoint := pair.minkowskiSupport(direction)

		// If the new point does not pass the origin along the search
		// direction, the origin is unreachable: separation proven.
		if newPoint.Dot(direction) <= 0 {
			return false
		}

		s.points[s.count] = newPoint
		s.count++

		if containsOrigin(s, &direction) {
			return true
		}
	}

	return false
}

// containsOrigin reduces the simplex to its feature closest to the origin
// and updates the search direction. It reports true when a tetrahedron
// encloses the origin, or when the origin lies on a reduced point or edge.
func containsOrigin(s *simplex, direction *mgl64.Vec3) bool {
	switch s.count {
	case 2:
		return simplexLine(s, direction)
	case 3:
		return simplexTriangle(s, direction)
	case 4:
		return simplexTetrahedron(s, direction)
	}
	return false
}

func simplexLine(s *simplex, direction *mgl64.Vec3) bool {
	a := s.points[1] // most recent point
	b := s.points[0]
	ab := b.Sub(a)
	ao := a.Mul(-1)

	if ab.LenSqr() < 1e-8 {
		if ao.LenSqr() < 1e-8 {
			return true
		}
		s.points[0] = a
		s.count = 1
		*direction = ao
		return false
	}

	if ab.Dot(ao) <= 0 {
		s.points[0] = a
		s.count = 1
		*direction = ao
		return false
	}

	abPerp := ab.Cross(ao).Cross(ab)
	if abPerp.LenSqr() < 1e-8 {
		return true // origin on the segment
	}
	*direction = abPerp
	return false
}

// keepEdge reduces the simplex to edge ab with a search direction
// perpendicular to it toward the origin.
func keepEdge(s *simplex, a, b mgl64.Vec3, direction *mgl64.Vec3) bool {
	ab := b.Sub(a)
	ao := a.Mul(-1)
	s.points[0] = b
	s.points[1] = a
	s.count = 2
	perp := ab.Cross(ao).Cross(ab)
	if perp.LenSqr() < 1e-8 {
		return true // origin on the edge
	}
	*direction = perp
	return false
}

func keepPoint(s *simplex, a mgl64.Vec3, direction *mgl64.Vec3) {
	s.points[0] = a
	s.count = 1
	*direction = a.Mul(-1)
}

func simplexTriangle(s *simplex, direction *mgl64.Vec3) bool {
	a := s.points[2] // most recent point
	b := s.points[1]
	c := s.points[0]

	ab := b.Sub(a)
	ac := c.Sub(a)
	ao := a.Mul(-1)
	abc := ab.Cross(ac)

	if abc.Cross(ac).Dot(ao) > 0 {
		if ac.Dot(ao) > 0 {
			return keepEdge(s, a, c, direction)
		}
		if ab.Dot(ao) > 0 {
			return keepEdge(s, a, b, direction)
		}
		keepPoint(s, a, direction)
		return false
	}

	if ab.Cross(abc).Dot(ao) > 0 {
		if ab.Dot(ao) > 0 {
			return keepEdge(s, a, b, direction)
		}
		keepPoint(s, a, direction)
		return false
	}

	if abc.Dot(ao) > 0 {
		// Origin above the triangle.
		s.points[0] = c
		s.points[1] = b
		s.points[2] = a
		s.count = 3
		*direction = abc
		return false
	}

	// Origin below: flip winding so the next support lands on the correct
	// side of the face.
	s.points[0] = b
	s.points[1] = c
	s.points[2] = a
	s.count = 3
	*direction = abc.Mul(-1)
	return false
}

func simplexTetrahedron(s *simplex, direction *mgl64.Vec3) bool {
	a := s.points[3] // apex, most recent point
	b := s.points[2]
	c := s.points[1]
	d := s.points[0]

	ab := b.Sub(a)
	ac := c.Sub(a)
	ad := d.Sub(a)
	ao := a.Mul(-1)

	abc := ab.Cross(ac)
	acd := ac.Cross(ad)
	adb := ad.Cross(ab)

	if abc.Dot(ao) > 0 {
		s.points[0] = c
		s.points[1] = b
		s.points[2] = a
		s.count = 3
		return simplexTriangle(s, direction)
	}
	if acd.Dot(ao) > 0 {
		s.points[0] = d
		s.points[1] = c
		s.points[2] = a
		s.count = 3
		return simplexTriangle(s, direction)
	}
	if adb.Dot(ao) > 0 {
		s.points[0] = b
		s.points[1] = d
		s.points[2] = a
		s.count = 3
		return simplexTriangle(s, direction)
	}

	// Origin inside all four faces.
	return true
}
