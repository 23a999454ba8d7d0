package narrowphase

import (
	"math"
	"testing"

	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/constraint"
	"github.com/StellaSmith/edyn/registry"
	"github.com/go-gl/mathgl/mgl64"
)

func shapeAt(s actor.Shape, pos mgl64.Vec3) Shape {
	return Shape{
		Shape:       s,
		Position:    actor.Position{Vec3: pos},
		Orientation: actor.Orientation{Quat: mgl64.QuatIdent()},
	}
}

func TestSphereSphere(t *testing.T) {
	a := shapeAt(actor.NewSphere(1), mgl64.Vec3{0, 1.5, 0})
	b := shapeAt(actor.NewSphere(1), mgl64.Vec3{0, 0, 0})

	results := Collide(a, b, 0.1)
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	res := results[0]
	if math.Abs(res.Distance-(-0.5)) > 1e-9 {
		t.Fatalf("distance %v", res.Distance)
	}
	if res.Normal.Sub(mgl64.Vec3{0, 1, 0}).Len() > 1e-9 {
		t.Fatalf("normal %v must point from B toward A", res.Normal)
	}

	// Far apart: no contact.
	far := shapeAt(actor.NewSphere(1), mgl64.Vec3{0, 5, 0})
	if got := Collide(far, b, 0.1); len(got) != 0 {
		t.Fatalf("expected none, got %v", got)
	}
}

func TestSpherePlane(t *testing.T) {
	sphere := shapeAt(actor.NewSphere(1), mgl64.Vec3{0, 0.9, 0})
	plane := shapeAt(actor.NewPlane(mgl64.Vec3{0, 1, 0}, 0), mgl64.Vec3{})

	results := Collide(sphere, plane, 0.1)
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	if math.Abs(results[0].Distance-(-0.1)) > 1e-9 {
		t.Fatalf("distance %v", results[0].Distance)
	}
	if math.Abs(results[0].PivotA.Y()-(-0.1)) > 1e-9 {
		t.Fatalf("pivotA %v", results[0].PivotA)
	}
}

func TestPlaneSphereSwapped(t *testing.T) {
	sphere := shapeAt(actor.NewSphere(1), mgl64.Vec3{0, 0.9, 0})
	plane := shapeAt(actor.NewPlane(mgl64.Vec3{0, 1, 0}, 0), mgl64.Vec3{})

	// Reversed argument order flips pivots and normal.
	results := Collide(plane, sphere, 0.1)
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Normal.Sub(mgl64.Vec3{0, -1, 0}).Len() > 1e-9 {
		t.Fatalf("swapped normal %v", results[0].Normal)
	}
}

func TestBoxPlaneRestingFace(t *testing.T) {
	box := shapeAt(actor.NewBox(mgl64.Vec3{0.5, 0.5, 0.5}), mgl64.Vec3{0, 0.45, 0})
	plane := shapeAt(actor.NewPlane(mgl64.Vec3{0, 1, 0}, 0), mgl64.Vec3{})

	results := Collide(box, plane, 0.1)
	if len(results) != 4 {
		t.Fatalf("a face resting on a plane gives 4 points, got %d", len(results))
	}
	for _, res := range results {
		if math.Abs(res.Distance-(-0.05)) > 1e-9 {
			t.Fatalf("distance %v", res.Distance)
		}
		if res.Normal.Sub(mgl64.Vec3{0, 1, 0}).Len() > 1e-9 {
			t.Fatalf("normal %v", res.Normal)
		}
	}
}

func TestBoxBoxFaceContact(t *testing.T) {
	bottom := shapeAt(actor.NewBox(mgl64.Vec3{1, 0.5, 1}), mgl64.Vec3{0, 0, 0})
	top := shapeAt(actor.NewBox(mgl64.Vec3{0.5, 0.5, 0.5}), mgl64.Vec3{0, 0.98, 0})

	results := Collide(top, bottom, 0.1)
	if len(results) == 0 {
		t.Fatal("stacked boxes must touch")
	}
	for _, res := range results {
		if res.Normal.Sub(mgl64.Vec3{0, 1, 0}).Len() > 1e-6 {
			t.Fatalf("normal %v", res.Normal)
		}
		if res.Distance > 0.01 || res.Distance < -0.05 {
			t.Fatalf("distance %v", res.Distance)
		}
	}
	if len(results) != 4 {
		t.Fatalf("face-face stack gives 4 points, got %d", len(results))
	}
}

func TestBoxBoxSeparated(t *testing.T) {
	a := shapeAt(actor.NewBox(mgl64.Vec3{0.5, 0.5, 0.5}), mgl64.Vec3{5, 0, 0})
	b := shapeAt(actor.NewBox(mgl64.Vec3{0.5, 0.5, 0.5}), mgl64.Vec3{0, 0, 0})
	if got := Collide(a, b, 0.1); len(got) != 0 {
		t.Fatalf("expected none, got %v", got)
	}
}

func TestCapsulePlane(t *testing.T) {
	capsule := shapeAt(actor.NewCapsule(0.5, 1), mgl64.Vec3{0, 0.45, 0})
	plane := shapeAt(actor.NewPlane(mgl64.Vec3{0, 1, 0}, 0), mgl64.Vec3{})

	// Lying capsules rest on two points; this one stands on one.
	results := Collide(capsule, plane, 0.1)
	if len(results) != 1 {
		t.Fatalf("standing capsule gives 1 point, got %d", len(results))
	}
	if math.Abs(results[0].Distance-(-1.05)) > 1e-9 {
		t.Fatalf("distance %v", results[0].Distance)
	}
}

func TestConvexConvexGJKPath(t *testing.T) {
	// Cylinder vs box has no specialized routine and exercises GJK/EPA.
	cylinder := shapeAt(actor.NewCylinder(0.5, 0.5), mgl64.Vec3{0, 0.9, 0})
	box := shapeAt(actor.NewBox(mgl64.Vec3{1, 0.5, 1}), mgl64.Vec3{0, 0, 0})

	results := Collide(cylinder, box, 0.1)
	if len(results) == 0 {
		t.Fatal("overlapping cylinder and box must collide")
	}
	for _, res := range results {
		if math.Abs(res.Normal.Y()) < 0.9 {
			t.Fatalf("normal %v should be near vertical", res.Normal)
		}
		if res.Distance > 0 {
			t.Fatalf("distance %v should be penetrating", res.Distance)
		}
	}
}

func registryWithManifold(t *testing.T) (*registry.Registry, registry.Entity, registry.Entity, registry.Entity) {
	t.Helper()
	r := registry.New()

	def := actor.DefaultBodyDef()
	def.Kind = actor.KindDynamic
	def.Mass = 1
	def.Shape = actor.NewSphere(0.5)
	def.Position = mgl64.Vec3{0, 0.45, 0}
	def.Material = &actor.Material{Friction: 0.4, Restitution: 0.1}
	body := actor.CreateBody(r, def)

	planeDef := actor.DefaultBodyDef()
	planeDef.Kind = actor.KindStatic
	planeDef.Shape = actor.NewPlane(mgl64.Vec3{0, 1, 0}, 0)
	planeDef.Material = &actor.Material{Friction: 0.9, Restitution: 0.1}
	plane := actor.CreateBody(r, planeDef)

	m := r.Create()
	registry.Assign(r, m, constraint.Manifold{BodyA: body, BodyB: plane, SeparationThreshold: 0.1})
	return r, m, body, plane
}

func TestManifoldPointGeneration(t *testing.T) {
	r, m, _, _ := registryWithManifold(t)

	Update(r, 1)

	manifold := registry.Get[constraint.Manifold](r, m)
	if manifold.NumPoints != 1 {
		t.Fatalf("expected 1 point, got %d", manifold.NumPoints)
	}
	cp := manifold.Points[0]
	if math.Abs(cp.Distance-(-0.05)) > 1e-9 {
		t.Fatalf("distance %v", cp.Distance)
	}
	// Friction is the geometric mean of the body materials.
	if math.Abs(cp.Friction-math.Sqrt(0.4*0.9)) > 1e-12 {
		t.Fatalf("friction %v", cp.Friction)
	}
	if cp.Restitution != 0.1 {
		t.Fatalf("restitution %v", cp.Restitution)
	}
}

func TestManifoldMergePreservesLifetimeAndImpulse(t *testing.T) {
	r, m, _, _ := registryWithManifold(t)

	Update(r, 1)
	manifold := registry.Get[constraint.Manifold](r, m)
	manifold.Points[0].NormalImpulse = 0.25

	Update(r, 1)
	manifold = registry.Get[constraint.Manifold](r, m)
	if manifold.NumPoints != 1 {
		t.Fatalf("point count %d", manifold.NumPoints)
	}
	if manifold.Points[0].Lifetime == 0 {
		t.Fatal("merged point should have aged")
	}
	if manifold.Points[0].NormalImpulse != 0.25 {
		t.Fatalf("warm-start impulse lost: %v", manifold.Points[0].NormalImpulse)
	}
}

func TestManifoldDropsSeparatedPoints(t *testing.T) {
	r, m, body, _ := registryWithManifold(t)

	Update(r, 1)

	// Lift the body well past the separation threshold.
	registry.Get[actor.Position](r, body).Vec3 = mgl64.Vec3{0, 2, 0}
	actor.UpdateAABB(r, body)
	Update(r, 1)

	manifold := registry.Get[constraint.Manifold](r, m)
	if manifold.NumPoints != 0 {
		t.Fatalf("separated points survived: %d", manifold.NumPoints)
	}
}

func TestReduceKeepsDeepest(t *testing.T) {
	results := []Result{
		{PivotA: mgl64.Vec3{0, 0, 0}, Distance: -0.5},
		{PivotA: mgl64.Vec3{1, 0, 0}, Distance: -0.1},
		{PivotA: mgl64.Vec3{0, 0, 1}, Distance: -0.1},
		{PivotA: mgl64.Vec3{1, 0, 1}, Distance: -0.1},
		{PivotA: mgl64.Vec3{0.5, 0, 0.5}, Distance: -0.2},
		{PivotA: mgl64.Vec3{2, 0, 2}, Distance: -0.3},
	}
	reduced := reduceResults(results)
	if len(reduced) != 4 {
		t.Fatalf("reduced to %d", len(reduced))
	}
	if reduced[0].Distance != -0.5 {
		t.Fatalf("deepest point not kept first: %v", reduced[0])
	}
}

// TestSphereRollsOverCoplanarSeam verifies that a sphere resting on the
// shared edge of two coplanar triangles only ever sees the face normal.
func TestSphereRollsOverCoplanarSeam(t *testing.T) {
	verts := []mgl64.Vec3{
		{-5, 0, -5}, {5, 0, -5}, {5, 0, 5}, {-5, 0, 5},
	}
	tris := [][3]int{
		{0, 2, 1},
		{0, 3, 2},
	}
	mesh := shapeAt(actor.NewTrimesh(verts, tris), mgl64.Vec3{})

	up := mgl64.Vec3{0, 1, 0}
	// March the sphere along the diagonal seam.
	for _, x := range []float64{-1, -0.5, -0.01, 0, 0.01, 0.5, 1} {
		sphere := shapeAt(actor.NewSphere(0.5), mgl64.Vec3{x, 0.48, x})
		results := Collide(sphere, mesh, 0.1)
		if len(results) == 0 {
			t.Fatalf("x=%v: sphere lost contact with the floor", x)
		}
		for _, res := range results {
			if res.Normal.Sub(up).Len() > 1e-6 {
				t.Fatalf("x=%v: contact normal %v leaked off the face", x, res.Normal)
			}
		}
	}
}

func TestCompoundCollides(t *testing.T) {
	// A dumbbell of two spheres; only the lower one reaches the plane.
	compound := shapeAt(actor.NewCompound([]actor.CompoundChild{
		{Shape: actor.NewSphere(0.5), Position: mgl64.Vec3{0, -1, 0}, Orientation: mgl64.QuatIdent()},
		{Shape: actor.NewSphere(0.5), Position: mgl64.Vec3{0, 1, 0}, Orientation: mgl64.QuatIdent()},
	}), mgl64.Vec3{0, 1.45, 0})
	plane := shapeAt(actor.NewPlane(mgl64.Vec3{0, 1, 0}, 0), mgl64.Vec3{})

	results := Collide(compound, plane, 0.1)
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	if math.Abs(results[0].Distance-(-0.05)) > 1e-9 {
		t.Fatalf("distance %v", results[0].Distance)
	}
}
