package geom

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestClosestPointOnSegment(t *testing.T) {
	a := mgl64.Vec3{0, 0, 0}
	b := mgl64.Vec3{2, 0, 0}

	p, s := ClosestPointOnSegment(mgl64.Vec3{1, 5, 0}, a, b)
	if p != (mgl64.Vec3{1, 0, 0}) || math.Abs(s-0.5) > 1e-12 {
		t.Fatalf("p=%v s=%v", p, s)
	}

	// Beyond the end the parameter clamps.
	p, s = ClosestPointOnSegment(mgl64.Vec3{5, 0, 0}, a, b)
	if p != b || s != 1 {
		t.Fatalf("p=%v s=%v", p, s)
	}
}

func TestClosestPointSegmentSegment(t *testing.T) {
	c1, c2, _, _ := ClosestPointSegmentSegment(
		mgl64.Vec3{-1, 0, 0}, mgl64.Vec3{1, 0, 0},
		mgl64.Vec3{0, 1, -1}, mgl64.Vec3{0, 1, 1},
	)
	if c1 != (mgl64.Vec3{0, 0, 0}) || c2 != (mgl64.Vec3{0, 1, 0}) {
		t.Fatalf("c1=%v c2=%v", c1, c2)
	}
}

func TestClosestPointOnTriangleFeatures(t *testing.T) {
	a := mgl64.Vec3{0, 0, 0}
	b := mgl64.Vec3{2, 0, 0}
	c := mgl64.Vec3{0, 0, 2}

	if _, feature := ClosestPointOnTriangle(mgl64.Vec3{0.5, 3, 0.5}, a, b, c); feature != TriangleFace {
		t.Fatalf("expected face, got %v", feature)
	}
	if p, feature := ClosestPointOnTriangle(mgl64.Vec3{-1, 0, -1}, a, b, c); feature != TriangleVertex0 || p != a {
		t.Fatalf("expected vertex a, got %v at %v", feature, p)
	}
	if _, feature := ClosestPointOnTriangle(mgl64.Vec3{1, -1, -2}, a, b, c); feature != TriangleEdge0 {
		t.Fatalf("expected edge ab, got %v", feature)
	}
}

func TestClipPolygonAgainstPlane(t *testing.T) {
	square := []mgl64.Vec3{
		{-1, 0, -1}, {1, 0, -1}, {1, 0, 1}, {-1, 0, 1},
	}

	// Clip away everything with x < 0.
	clipped := ClipPolygonAgainstPlane(square, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 0, 0})
	if len(clipped) != 4 {
		t.Fatalf("clipped to %d points", len(clipped))
	}
	for _, p := range clipped {
		if p.X() < -1e-6 {
			t.Fatalf("point %v survived on the wrong side", p)
		}
	}

	// A plane missing the polygon keeps it whole.
	whole := ClipPolygonAgainstPlane(square, mgl64.Vec3{-5, 0, 0}, mgl64.Vec3{1, 0, 0})
	if len(whole) != 4 {
		t.Fatalf("polygon lost points: %d", len(whole))
	}

	// A plane excluding everything empties it.
	gone := ClipPolygonAgainstPlane(square, mgl64.Vec3{5, 0, 0}, mgl64.Vec3{1, 0, 0})
	if len(gone) != 0 {
		t.Fatalf("expected empty result, got %d", len(gone))
	}
}

func TestTangentBasis(t *testing.T) {
	for _, n := range []mgl64.Vec3{{0, 1, 0}, {1, 0, 0}, {0.577, 0.577, 0.577}} {
		normal := n.Normalize()
		t1, t2 := TangentBasis(normal)
		if math.Abs(t1.Dot(normal)) > 1e-9 || math.Abs(t2.Dot(normal)) > 1e-9 {
			t.Fatalf("tangents not orthogonal to %v", normal)
		}
		if math.Abs(t1.Dot(t2)) > 1e-9 {
			t.Fatalf("tangents not orthogonal to each other for %v", normal)
		}
	}
}
