package narrowphase

import (
	"github.com/StellaSmith/edyn/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// Result is one collision point produced by the dispatcher: world-space
// pivots on each body, the world normal pointing from B toward A, and the
// signed distance along it (negative when penetrating).
type Result struct {
	PivotA   mgl64.Vec3
	PivotB   mgl64.Vec3
	Normal   mgl64.Vec3
	Distance float64
}

// collideFunc produces contact points between two transformed shapes when
// their distance is at most threshold.
type collideFunc func(a, b Shape, threshold float64) []Result

// dispatch is the exhaustive (shape kind × shape kind) collision matrix.
// Entries above the diagonal are filled by swapping; nil entries mean the
// pair never collides (e.g. plane vs plane).
var dispatch [8][8]collideFunc

func init() {
	set := func(a, b actor.ShapeKind, fn collideFunc) {
		dispatch[a][b] = fn
		if a != b {
			dispatch[b][a] = swapped(fn)
		}
	}

	set(actor.ShapeSphere, actor.ShapeSphere, collideSphereSphere)
	set(actor.ShapeSphere, actor.ShapeBox, collideSphereBox)
	set(actor.ShapeSphere, actor.ShapeCapsule, collideSphereCapsule)
	set(actor.ShapeSphere, actor.ShapeCylinder, collideConvexConvex)
	set(actor.ShapeSphere, actor.ShapePolyhedron, collideConvexConvex)
	set(actor.ShapeSphere, actor.ShapePlane, collideSpherePlane)
	set(actor.ShapeSphere, actor.ShapeMesh, collideSphereMesh)

	set(actor.ShapeBox, actor.ShapeBox, collideBoxBox)
	set(actor.ShapeBox, actor.ShapeCapsule, collideConvexConvex)
	set(actor.ShapeBox, actor.ShapeCylinder, collideConvexConvex)
	set(actor.ShapeBox, actor.ShapePolyhedron, collideConvexConvex)
	set(actor.ShapeBox, actor.ShapePlane, collideConvexPlane)
	set(actor.ShapeBox, actor.ShapeMesh, collideConvexMesh)

	set(actor.ShapeCapsule, actor.ShapeCapsule, collideCapsuleCapsule)
	set(actor.ShapeCapsule, actor.ShapeCylinder, collideConvexConvex)
	set(actor.ShapeCapsule, actor.ShapePolyhedron, collideConvexConvex)
	set(actor.ShapeCapsule, actor.ShapePlane, collideCapsulePlane)
	set(actor.ShapeCapsule, actor.ShapeMesh, collideConvexMesh)

	set(actor.ShapeCylinder, actor.ShapeCylinder, collideConvexConvex)
	set(actor.ShapeCylinder, actor.ShapePolyhedron, collideConvexConvex)
	set(actor.ShapeCylinder, actor.ShapePlane, collideConvexPlane)
	set(actor.ShapeCylinder, actor.ShapeMesh, collideConvexMesh)

	set(actor.ShapePolyhedron, actor.ShapePolyhedron, collideConvexConvex)
	set(actor.ShapePolyhedron, actor.ShapePlane, collideConvexPlane)
	set(actor.ShapePolyhedron, actor.ShapeMesh, collideConvexMesh)

	// Compounds recurse over their children against anything.
	for kind := actor.ShapeKind(0); kind < 8; kind++ {
		set(actor.ShapeCompound, kind, collideCompoundAny)
	}
}

// Collide runs the collision dispatch for a shape pair, returning up to
// MaxContacts points within threshold, reduced by the contact-patch-area
// heuristic when the routine produced more.
func Collide(a, b Shape, threshold float64) []Result {
	fn := dispatch[a.Shape.Kind][b.Shape.Kind]
	if fn == nil {
		return nil
	}
	results := fn(a, b, threshold)
	if len(results) > maxDispatchContacts {
		results = reduceResults(results)
	}
	return results
}

const maxDispatchContacts = 4

func swapped(fn collideFunc) collideFunc {
	return func(a, b Shape, threshold float64) []Result {
		results := fn(b, a, threshold)
		for i := range results {
			results[i].PivotA, results[i].PivotB = results[i].PivotB, results[i].PivotA
			results[i].Normal = results[i].Normal.Mul(-1)
		}
		return results
	}
}

func collideCompoundAny(a, b Shape, threshold float64) []Result {
	var results []Result
	for _, child := range a.Shape.Compound.Children {
		childShape := Shape{
			Shape:       child.Shape,
			Position:    actor.Position{Vec3: a.Position.Vec3.Add(a.Orientation.Quat.Rotate(child.Position))},
			Orientation: actor.Orientation{Quat: a.Orientation.Quat.Mul(child.Orientation)},
		}
		results = append(results, Collide(childShape, b, threshold)...)
	}
	return results
}

// reduceResults keeps the deepest point plus the three others that
// maximize the area of the contact patch.
func reduceResults(results []Result) []Result {
	deepest := 0
	for i := 1; i < len(results); i++ {
		if results[i].Distance < results[deepest].Distance {
			deepest = i
		}
	}

	kept := []Result{results[deepest]}
	remaining := make([]Result, 0, len(results)-1)
	for i := range results {
		if i != deepest {
			remaining = append(remaining, results[i])
		}
	}

	// Greedy spread maximization: each pick adds the candidate with the
	// largest sum of squared distances to the points kept so far.
	for len(kept) < maxDispatchContacts && len(remaining) > 0 {
		best := -1
		bestScore := -1.0
		for i, candidate := range remaining {
			score := 0.0
			for _, k := range kept {
				score += candidate.PivotA.Sub(k.PivotA).LenSqr()
			}
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		kept = append(kept, remaining[best])
		remaining = append(remaining[:best], remaining[best+1:]...)
	}

	return kept
}
