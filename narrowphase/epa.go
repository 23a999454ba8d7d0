package narrowphase

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	epaMaxIterations = 64
	epaTolerance     = 1e-4
)

var errEPADegenerate = errors.New("narrowphase: epa degenerate polytope")

type epaFace struct {
	a, b, c  int
	normal   mgl64.Vec3
	distance float64
}

// epa expands the GJK termination simplex toward the origin of the
// Minkowski difference and returns the minimum translation vector: the
// outward normal of the polytope face closest to the origin, which points
// from A toward B, and the (positive) penetration depth.
func epa(pair convexPair, s *simplex) (mgl64.Vec3, float64, error) {
	if s.count < 4 {
		if !inflateSimplex(pair, s) {
			return mgl64.Vec3{}, 0, errEPADegenerate
		}
	}

	vertices := append([]mgl64.Vec3(nil), s.points[:4]...)
	faces := []epaFace{}
	for _, idx := range [4][3]int{{0, 1, 2}, {0, 2, 3}, {0, 3, 1}, {1, 3, 2}} {
		f, ok := makeFace(vertices, idx[0], idx[1], idx[2])
		if !ok {
			return mgl64.Vec3{}, 0, errEPADegenerate
		}
		faces = append(faces, f)
	}

	for i := 0; i < epaMaxIterations; i++ {
		closest := 0
		for j := 1; j < len(faces); j++ {
			if faces[j].distance < faces[closest].distance {
				closest = j
			}
		}
		face := faces[closest]

		support := pair.minkowskiSupport(face.normal)
		d := support.Dot(face.normal)

		if d-face.distance < epaTolerance {
			return face.normal, math.Max(face.distance, 0), nil
		}

		// Remove every face visible from the support point and stitch the
		// horizon with new faces through it.
		type edge struct{ a, b int }
		var horizon []edge
		var kept []epaFace
		for _, f := range faces {
			if f.normal.Dot(support.Sub(vertices[f.a])) > 0 {
				for _, e := range [3]edge{{f.a, f.b}, {f.b, f.c}, {f.c, f.a}} {
					found := false
					for k, h := range horizon {
						if h.a == e.b && h.b == e.a {
							horizon = append(horizon[:k], horizon[k+1:]...)
							found = true
							break
						}
					}
					if !found {
						horizon = append(horizon, e)
					}
				}
			} else {
				kept = append(kept, f)
			}
		}

		vertices = append(vertices, support)
		vi := len(vertices) - 1
		faces = kept
		for _, e := range horizon {
			if f, ok := makeFace(vertices, e.a, e.b, vi); ok {
				faces = append(faces, f)
			}
		}
		if len(faces) == 0 {
			return mgl64.Vec3{}, 0, errEPADegenerate
		}
	}

	// Did not converge; use the best face found so far.
	closest := 0
	for j := 1; j < len(faces); j++ {
		if faces[j].distance < faces[closest].distance {
			closest = j
		}
	}
	return faces[closest].normal, math.Max(faces[closest].distance, 0), nil
}

// makeFace builds a face with an outward normal (away from the origin).
func makeFace(vertices []mgl64.Vec3, a, b, c int) (epaFace, bool) {
	e1 := vertices[b].Sub(vertices[a])
	e2 := vertices[c].Sub(vertices[a])
	n := e1.Cross(e2)
	if n.LenSqr() < 1e-16 {
		return epaFace{}, false
	}
	n = n.Normalize()
	d := n.Dot(vertices[a])
	if d < 0 {
		n = n.Mul(-1)
		d = -d
		b, c = c, b
	}
	return epaFace{a: a, b: b, c: c, normal: n, distance: d}, true
}

// inflateSimplex grows a degenerate GJK simplex (shapes touching at a
// point, segment or coplanar set) into a tetrahedron by probing the
// principal axes.
func inflateSimplex(pair convexPair, s *simplex) bool {
	axes := []mgl64.Vec3{
		{1, 0, 0}, {-1, 0, 0},
		{0, 1, 0}, {0, -1, 0},
		{0, 0, 1}, {0, 0, -1},
	}
	for _, axis := range axes {
		if s.count == 4 {
			break
		}
		p := pair.minkowskiSupport(axis)
		distinct := true
		for i := 0; i < s.count; i++ {
			if p.Sub(s.points[i]).LenSqr() < 1e-12 {
				distinct = false
				break
			}
		}
		if distinct {
			s.points[s.count] = p
			s.count++
		}
	}
	if s.count < 4 {
		return false
	}
	// Reject a coplanar set: the expansion loop cannot start from it.
	e1 := s.points[1].Sub(s.points[0])
	e2 := s.points[2].Sub(s.points[0])
	e3 := s.points[3].Sub(s.points[0])
	return math.Abs(e1.Cross(e2).Dot(e3)) > 1e-12
}
