package narrowphase

import (
	"math"

	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/geom"
	"github.com/go-gl/mathgl/mgl64"
)

// boxAxes returns a box's three world-space face directions.
func boxAxes(s Shape) [3]mgl64.Vec3 {
	return [3]mgl64.Vec3{
		actor.Rotate(s.Orientation, mgl64.Vec3{1, 0, 0}),
		actor.Rotate(s.Orientation, mgl64.Vec3{0, 1, 0}),
		actor.Rotate(s.Orientation, mgl64.Vec3{0, 0, 1}),
	}
}

// boxExtent projects a box's half extents onto a world axis.
func boxExtent(s Shape, axes [3]mgl64.Vec3, n mgl64.Vec3) float64 {
	h := s.Shape.Box.HalfExtents
	return math.Abs(axes[0].Dot(n))*h.X() +
		math.Abs(axes[1].Dot(n))*h.Y() +
		math.Abs(axes[2].Dot(n))*h.Z()
}

// collideBoxBox runs the classic fifteen-axis separating-axis test: the
// six face normals and the nine edge-direction cross products. The axis of
// greatest separation wins; face axes produce a clipped patch, edge axes a
// single closest point.
func collideBoxBox(a, b Shape, threshold float64) []Result {
	axesA := boxAxes(a)
	axesB := boxAxes(b)
	offset := a.Position.Vec3.Sub(b.Position.Vec3)

	bestSep := math.Inf(-1)
	var bestAxis mgl64.Vec3
	bestKind := 0 // 0: face of A, 1: face of B, 2: edge-edge
	bestEdgeA, bestEdgeB := 0, 0

	test := func(n mgl64.Vec3, kind, ea, eb int) bool {
		lenSqr := n.LenSqr()
		if lenSqr < 1e-12 {
			return true // near-parallel edges, skip this axis
		}
		n = n.Mul(1 / math.Sqrt(lenSqr))
		// Point the axis from B toward A.
		if n.Dot(offset) < 0 {
			n = n.Mul(-1)
		}
		sep := math.Abs(n.Dot(offset)) - boxExtent(a, axesA, n) - boxExtent(b, axesB, n)
		if sep > threshold {
			return false // separating axis found
		}
		// Edge axes are preferred only when clearly better, avoiding
		// jitter between face and edge contacts on near-ties.
		margin := 0.0
		if kind == 2 {
			margin = 1e-5
		}
		if sep > bestSep+margin {
			bestSep = sep
			bestAxis = n
			bestKind = kind
			bestEdgeA, bestEdgeB = ea, eb
		}
		return true
	}

	for i := 0; i < 3; i++ {
		if !test(axesA[i], 0, 0, 0) {
			return nil
		}
		if !test(axesB[i], 1, 0, 0) {
			return nil
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if !test(axesA[i].Cross(axesB[j]), 2, i, j) {
				return nil
			}
		}
	}

	normal := bestAxis // from B toward A

	if bestKind == 2 {
		e0A, e1A := supportEdgeBox(a, normal.Mul(-1), bestEdgeA)
		e0B, e1B := supportEdgeBox(b, normal, bestEdgeB)
		pA, pB, _, _ := geom.ClosestPointSegmentSegment(e0A, e1A, e0B, e1B)
		return []Result{{
			PivotA:   pA,
			PivotB:   pB,
			Normal:   normal,
			Distance: bestSep,
		}}
	}

	// Face contact: clip the incident face against the reference face.
	var reference, incident []mgl64.Vec3
	var refNormal mgl64.Vec3
	if bestKind == 0 {
		reference = boxFace(a, normal.Mul(-1))
		incident = boxFace(b, normal)
		refNormal = normal.Mul(-1)
	} else {
		reference = boxFace(b, normal)
		incident = boxFace(a, normal.Mul(-1))
		refNormal = normal
	}

	clipped := incident
	center := geom.Centroid(reference)
	for i := 0; i < len(reference) && len(clipped) > 0; i++ {
		v1 := reference[i]
		v2 := reference[(i+1)%len(reference)]
		clipNormal := v2.Sub(v1).Cross(refNormal)
		if clipNormal.LenSqr() < 1e-12 {
			continue
		}
		clipNormal = clipNormal.Normalize()
		if center.Sub(v1).Dot(clipNormal) < 0 {
			clipNormal = clipNormal.Mul(-1)
		}
		clipped = geom.ClipPolygonAgainstPlane(clipped, v1, clipNormal)
	}

	var results []Result
	refPoint := reference[0]
	for _, p := range clipped {
		sep := refNormal.Dot(p.Sub(refPoint))
		if sep > threshold {
			continue
		}
		onRef := p.Sub(refNormal.Mul(sep))
		res := Result{Normal: normal, Distance: sep}
		if bestKind == 0 {
			// Reference face on A: clipped points lie on B.
			res.PivotA = onRef
			res.PivotB = p
		} else {
			res.PivotA = p
			res.PivotB = onRef
		}
		results = append(results, res)
	}

	if len(results) == 0 {
		// Shallow or speculative contact: single deepest support pair.
		pA := a.support(normal.Mul(-1))
		pB := b.support(normal)
		results = append(results, Result{
			PivotA:   pA,
			PivotB:   pB,
			Normal:   normal,
			Distance: bestSep,
		})
	}

	return results
}

// supportEdgeBox returns the box edge most aligned with the support
// direction: the edge along localAxis whose other coordinates take the
// supporting signs.
func supportEdgeBox(s Shape, dir mgl64.Vec3, localAxis int) (mgl64.Vec3, mgl64.Vec3) {
	h := s.Shape.Box.HalfExtents
	localDir := s.Orientation.Quat.Conjugate().Rotate(dir)

	var p0, p1 mgl64.Vec3
	for axis := 0; axis < 3; axis++ {
		if axis == localAxis {
			p0[axis] = -h[axis]
			p1[axis] = +h[axis]
			continue
		}
		v := h[axis]
		if localDir[axis] < 0 {
			v = -v
		}
		p0[axis] = v
		p1[axis] = v
	}
	return actor.ToWorld(s.Position, s.Orientation, p0),
		actor.ToWorld(s.Position, s.Orientation, p1)
}
