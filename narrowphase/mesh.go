package narrowphase

import (
	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/geom"
	"github.com/go-gl/mathgl/mgl64"
)

// meshQueryAABB is the convex shape's AABB expressed in mesh space,
// inflated by the collision threshold.
func meshQueryAABB(a, mesh Shape, threshold float64) actor.AABB {
	worldAABB := actor.ComputeAABB(a.Shape, a.Position, a.Orientation).Inset(-threshold)
	// The mesh transform is rigid; bound the rotated box by its corners.
	lo, hi := worldAABB.Min, worldAABB.Max
	corners := [8]mgl64.Vec3{
		{lo.X(), lo.Y(), lo.Z()},
		{hi.X(), lo.Y(), lo.Z()},
		{lo.X(), hi.Y(), lo.Z()},
		{hi.X(), hi.Y(), lo.Z()},
		{lo.X(), lo.Y(), hi.Z()},
		{hi.X(), lo.Y(), hi.Z()},
		{lo.X(), hi.Y(), hi.Z()},
		{hi.X(), hi.Y(), hi.Z()},
	}
	local := actor.ToLocal(mesh.Position, mesh.Orientation, corners[0])
	box := actor.PointAABB(local)
	for i := 1; i < 8; i++ {
		box = box.Merge(actor.PointAABB(actor.ToLocal(mesh.Position, mesh.Orientation, corners[i])))
	}
	return box
}

// collideSphereMesh tests the sphere against every candidate triangle via
// closest-point queries. Contacts whose closest feature is a concave or
// coplanar edge keep the face normal, so a sphere rolling across an
// internal seam never sees an edge normal.
func collideSphereMesh(a, b Shape, threshold float64) []Result {
	m := b.Shape.Mesh
	r := a.Shape.Sphere.Radius
	centerLocal := actor.ToLocal(b.Position, b.Orientation, a.Position.Vec3)

	var results []Result
	m.QueryTriangles(meshQueryAABB(a, b, threshold), func(tri int) {
		verts := m.TriangleVertices(tri)
		closest, feature := geom.ClosestPointOnTriangle(centerLocal, verts[0], verts[1], verts[2])
		faceNormal := m.Normals[tri]

		var normalLocal mgl64.Vec3
		var separation float64

		switch {
		case feature == geom.TriangleFace:
			normalLocal = faceNormal
			separation = faceNormal.Dot(centerLocal.Sub(closest)) - r

		case concaveFeature(m, tri, feature):
			// Internal feature: clamp the normal to the face so the seam
			// is invisible to the solver.
			normalLocal = faceNormal
			separation = faceNormal.Dot(centerLocal.Sub(closest)) - r

		default:
			// Convex silhouette edge or vertex keeps its own direction.
			d := centerLocal.Sub(closest)
			dist := d.Len()
			if dist < 1e-9 {
				normalLocal = faceNormal
				separation = -r
			} else {
				normalLocal = d.Mul(1 / dist)
				separation = dist - r
			}
		}

		if separation > threshold {
			return
		}
		if normalLocal.Dot(centerLocal.Sub(closest)) < 0 {
			return // sphere center behind the triangle
		}

		normal := actor.Rotate(b.Orientation, normalLocal)
		onMesh := actor.ToWorld(b.Position, b.Orientation, closest)
		results = append(results, Result{
			PivotA:   a.Position.Vec3.Sub(normal.Mul(r)),
			PivotB:   onMesh,
			Normal:   normal,
			Distance: separation,
		})
	})

	return results
}

func concaveFeature(m *actor.TrimeshShape, tri int, feature geom.TriangleFeature) bool {
	switch feature {
	case geom.TriangleEdge0:
		return m.ConcaveEdge[tri][0]
	case geom.TriangleEdge1:
		return m.ConcaveEdge[tri][1]
	case geom.TriangleEdge2:
		return m.ConcaveEdge[tri][2]
	case geom.TriangleVertex0:
		return m.ConcaveVertex[tri][0]
	case geom.TriangleVertex1:
		return m.ConcaveVertex[tri][1]
	case geom.TriangleVertex2:
		return m.ConcaveVertex[tri][2]
	}
	return false
}

// collideConvexMesh clips the convex shape's contact feature against each
// candidate triangle, always using the triangle's face normal. Face
// normals cannot produce internal-edge artifacts, so no edge suppression
// is needed beyond skipping triangles approached from behind.
func collideConvexMesh(a, b Shape, threshold float64) []Result {
	m := b.Shape.Mesh

	var results []Result
	m.QueryTriangles(meshQueryAABB(a, b, threshold), func(tri int) {
		verts := m.TriangleVertices(tri)
		normalLocal := m.Normals[tri]
		normal := actor.Rotate(b.Orientation, normalLocal)

		triWorld := []mgl64.Vec3{
			actor.ToWorld(b.Position, b.Orientation, verts[0]),
			actor.ToWorld(b.Position, b.Orientation, verts[1]),
			actor.ToWorld(b.Position, b.Orientation, verts[2]),
		}

		if normal.Dot(a.Position.Vec3.Sub(triWorld[0])) < 0 {
			return // shape center behind the triangle
		}

		// Deepest point of the shape against the triangle plane.
		deepest := a.support(normal.Mul(-1))
		deepestSep := normal.Dot(deepest.Sub(triWorld[0]))
		if deepestSep > threshold {
			return
		}

		feature := contactFeature(a, normal.Mul(-1))
		clipped := feature
		if len(feature) >= 2 {
			center := geom.Centroid(triWorld)
			for i := 0; i < 3 && len(clipped) > 0; i++ {
				v1 := triWorld[i]
				v2 := triWorld[(i+1)%3]
				clipNormal := v2.Sub(v1).Cross(normal)
				if clipNormal.LenSqr() < 1e-12 {
					continue
				}
				clipNormal = clipNormal.Normalize()
				if center.Sub(v1).Dot(clipNormal) < 0 {
					clipNormal = clipNormal.Mul(-1)
				}
				clipped = geom.ClipPolygonAgainstPlane(clipped, v1, clipNormal)
			}
		}

		for _, p := range clipped {
			sep := normal.Dot(p.Sub(triWorld[0]))
			if sep > threshold {
				continue
			}
			results = append(results, Result{
				PivotA:   p,
				PivotB:   p.Sub(normal.Mul(sep)),
				Normal:   normal,
				Distance: sep,
			})
		}
	})

	return results
}
