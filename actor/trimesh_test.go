package actor

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

// coplanarQuad is two coplanar triangles sharing the edge from (-1,0,0) to
// (1,0,0); the seam must be flagged so no edge normal ever leaks out.
func coplanarQuad() *TrimeshShape {
	verts := []mgl64.Vec3{
		{-1, 0, 0}, {1, 0, 0}, {0, 0, 1}, {0, 0, -1},
	}
	// Both triangles wind counter-clockwise seen from above (+Y normals).
	tris := [][3]int{
		{0, 2, 1},
		{1, 3, 0},
	}
	return NewTrimesh(verts, tris).Mesh
}

func TestCoplanarSeamIsFlagged(t *testing.T) {
	m := coplanarQuad()

	// The shared edge is vertices 0-1; find it in each triangle.
	flagged := 0
	for tri, idx := range m.Triangles {
		for e := 0; e < 3; e++ {
			a, b := idx[e], idx[(e+1)%3]
			if (a == 0 && b == 1) || (a == 1 && b == 0) {
				if m.ConcaveEdge[tri][e] {
					flagged++
				}
			}
		}
	}
	if flagged != 2 {
		t.Fatalf("coplanar shared edge flagged on %d of 2 triangles", flagged)
	}
}

func TestBoundaryEdgesKeepNormals(t *testing.T) {
	m := coplanarQuad()
	for tri, idx := range m.Triangles {
		for e := 0; e < 3; e++ {
			a, b := idx[e], idx[(e+1)%3]
			shared := (a == 0 && b == 1) || (a == 1 && b == 0)
			if !shared && m.ConcaveEdge[tri][e] {
				t.Fatalf("boundary edge %d of triangle %d wrongly flagged", e, tri)
			}
		}
	}
}

func TestConvexRidgeNotFlagged(t *testing.T) {
	// A roof ridge: the second triangle folds away below the first's
	// plane, so the shared edge is convex and keeps its normals.
	verts := []mgl64.Vec3{
		{-1, 0, 0}, {0, 1, 0}, {0, 1, 1}, {1, 0, 0},
	}
	tris := [][3]int{
		{0, 2, 1}, // left slope, outward normal up-left
		{1, 2, 3}, // right slope, outward normal up-right
	}
	m := NewTrimesh(verts, tris).Mesh

	for tri, idx := range m.Triangles {
		for e := 0; e < 3; e++ {
			a, b := idx[e], idx[(e+1)%3]
			if (a == 1 && b == 2) || (a == 2 && b == 1) {
				if m.ConcaveEdge[tri][e] {
					t.Fatalf("convex ridge flagged concave on triangle %d", tri)
				}
			}
		}
	}
}

func TestQueryTriangles(t *testing.T) {
	m := coplanarQuad()

	var hits []int
	m.QueryTriangles(AABB{Min: mgl64.Vec3{-0.1, -0.1, 0.2}, Max: mgl64.Vec3{0.1, 0.1, 0.4}}, func(tri int) {
		hits = append(hits, tri)
	})
	if len(hits) == 0 {
		t.Fatal("query over the quad found nothing")
	}

	hits = hits[:0]
	m.QueryTriangles(AABB{Min: mgl64.Vec3{5, 5, 5}, Max: mgl64.Vec3{6, 6, 6}}, func(tri int) {
		hits = append(hits, tri)
	})
	if len(hits) != 0 {
		t.Fatalf("query far away hit %v", hits)
	}
}
