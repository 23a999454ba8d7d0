package narrowphase

import (
	"math"

	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/geom"
	"github.com/go-gl/mathgl/mgl64"
)

// contactFeature returns the world-space vertices of the shape feature
// (face, edge or point) whose outward normal best matches outDir.
func contactFeature(s Shape, outDir mgl64.Vec3) []mgl64.Vec3 {
	switch s.Shape.Kind {
	case actor.ShapeSphere:
		return []mgl64.Vec3{s.support(outDir)}

	case actor.ShapeBox:
		return boxFace(s, outDir)

	case actor.ShapeCapsule:
		c := s.Shape.Capsule
		axis := actor.Rotate(s.Orientation, mgl64.Vec3{0, 1, 0})
		if math.Abs(axis.Dot(outDir)) > 0.95 {
			// End cap: a single point.
			return []mgl64.Vec3{s.support(outDir)}
		}
		p0, p1 := capsuleSegment(s)
		r := outDir.Mul(c.Radius)
		return []mgl64.Vec3{p0.Add(r), p1.Add(r)}

	case actor.ShapeCylinder:
		c := s.Shape.Cylinder
		axis := actor.Rotate(s.Orientation, mgl64.Vec3{0, 1, 0})
		along := axis.Dot(outDir)
		if math.Abs(along) > 0.95 {
			// Cap face, sampled around the rim.
			sign := 1.0
			if along < 0 {
				sign = -1
			}
			center := s.Position.Vec3.Add(axis.Mul(sign * c.HalfLength))
			u, v := geom.TangentBasis(axis)
			const samples = 8
			points := make([]mgl64.Vec3, 0, samples)
			for i := 0; i < samples; i++ {
				angle := 2 * math.Pi * float64(i) / samples
				offset := u.Mul(math.Cos(angle) * c.Radius).Add(v.Mul(math.Sin(angle) * c.Radius))
				points = append(points, center.Add(offset))
			}
			return points
		}
		// Side line: the rim points of both caps along the radial part of
		// outDir.
		radial := outDir.Sub(axis.Mul(along))
		if radial.LenSqr() < 1e-12 {
			return []mgl64.Vec3{s.support(outDir)}
		}
		radial = radial.Normalize().Mul(c.Radius)
		top := s.Position.Vec3.Add(axis.Mul(c.HalfLength)).Add(radial)
		bottom := s.Position.Vec3.Sub(axis.Mul(c.HalfLength)).Add(radial)
		return []mgl64.Vec3{bottom, top}

	case actor.ShapePolyhedron:
		p := s.Shape.Polyhedron
		localDir := s.Orientation.Quat.Conjugate().Rotate(outDir)
		best := 0
		bestDot := math.Inf(-1)
		for i, n := range p.FaceNormals {
			if d := n.Dot(localDir); d > bestDot {
				bestDot = d
				best = i
			}
		}
		face := p.Faces[best]
		points := make([]mgl64.Vec3, len(face))
		for i, vi := range face {
			points[i] = actor.ToWorld(s.Position, s.Orientation, p.Vertices[vi])
		}
		return points
	}

	return []mgl64.Vec3{s.support(outDir)}
}

// boxFace returns the four corners of the box face whose outward normal
// best matches outDir, in world space.
func boxFace(s Shape, outDir mgl64.Vec3) []mgl64.Vec3 {
	h := s.Shape.Box.HalfExtents
	localDir := s.Orientation.Quat.Conjugate().Rotate(outDir)

	axis := 0
	if math.Abs(localDir.Y()) > math.Abs(localDir[axis]) {
		axis = 1
	}
	if math.Abs(localDir.Z()) > math.Abs(localDir[axis]) {
		axis = 2
	}
	sign := 1.0
	if localDir[axis] < 0 {
		sign = -1
	}

	u := (axis + 1) % 3
	v := (axis + 2) % 3
	corners := make([]mgl64.Vec3, 4)
	signs := [4][2]float64{{1, 1}, {-1, 1}, {-1, -1}, {1, -1}}
	for i, sv := range signs {
		var local mgl64.Vec3
		local[axis] = sign * h[axis]
		local[u] = sv[0] * h[u]
		local[v] = sv[1] * h[v]
		corners[i] = actor.ToWorld(s.Position, s.Orientation, local)
	}
	return corners
}

// collideConvexConvex is the support-function path for convex pairs with
// no specialized routine: GJK detects the overlap, EPA finds the axis of
// greatest penetration, and the contact patch comes from clipping the
// incident feature against the reference feature.
func collideConvexConvex(a, b Shape, threshold float64) []Result {
	pair := convexPair{shapeA: a, shapeB: b}
	var s simplex
	if !gjk(pair, &s) {
		return nil
	}

	mtv, depth, err := epa(pair, &s)
	if err != nil {
		return nil
	}

	// EPA's normal points from A toward B in Minkowski space; the contact
	// normal convention is from B toward A.
	normal := mtv.Mul(-1)
	return clipFeatures(a, b, normal, depth)
}

// clipFeatures builds the contact patch for a penetration along normal
// (world, from B toward A) of the given depth.
func clipFeatures(a, b Shape, normal mgl64.Vec3, depth float64) []Result {
	featA := contactFeature(a, normal.Mul(-1))
	featB := contactFeature(b, normal)

	// The richer feature serves as reference, the other is clipped into it.
	incident, reference := featB, featA
	if len(featA) < len(featB) {
		incident, reference = featA, featB
	}

	if len(incident) == 1 {
		return []Result{makePenetrationResult(incident[0], normal, depth)}
	}

	clipped := incident
	if len(reference) >= 3 {
		center := geom.Centroid(reference)
		for i := 0; i < len(reference); i++ {
			v1 := reference[i]
			v2 := reference[(i+1)%len(reference)]
			edge := v2.Sub(v1)
			clipNormal := edge.Cross(normal)
			if clipNormal.LenSqr() < 1e-12 {
				continue
			}
			clipNormal = clipNormal.Normalize()
			if center.Sub(v1).Dot(clipNormal) < 0 {
				clipNormal = clipNormal.Mul(-1)
			}
			clipped = geom.ClipPolygonAgainstPlane(clipped, v1, clipNormal)
			if len(clipped) == 0 {
				break
			}
		}
	}

	var results []Result
	for _, p := range clipped {
		results = append(results, makePenetrationResult(p, normal, depth))
	}

	if len(results) == 0 {
		deepest := b.support(normal)
		results = append(results, makePenetrationResult(deepest, normal, depth))
	}

	return results
}

// makePenetrationResult splits a single contact location into pivots on
// either surface, depth apart along the normal.
func makePenetrationResult(p, normal mgl64.Vec3, depth float64) Result {
	return Result{
		PivotA:   p,
		PivotB:   p.Add(normal.Mul(depth)),
		Normal:   normal,
		Distance: -depth,
	}
}
