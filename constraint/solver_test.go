package constraint

import (
	"math"
	"testing"

	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/registry"
	"github.com/go-gl/mathgl/mgl64"
)

const dt = 1.0 / 60.0

var gravity = mgl64.Vec3{0, -9.81, 0}

func createDynamicSphere(r *registry.Registry, position mgl64.Vec3, mass float64) registry.Entity {
	def := actor.DefaultBodyDef()
	def.Kind = actor.KindDynamic
	def.Mass = mass
	def.Shape = actor.NewSphere(0.5)
	def.Position = position
	def.Gravity = gravity
	def.Material = &actor.Material{Friction: 0.5}
	return actor.CreateBody(r, def)
}

func createStaticPlane(r *registry.Registry) registry.Entity {
	def := actor.DefaultBodyDef()
	def.Kind = actor.KindStatic
	def.Shape = actor.NewPlane(mgl64.Vec3{0, 1, 0}, 0)
	def.Material = &actor.Material{Friction: 0.5}
	return actor.CreateBody(r, def)
}

// planeManifold hand-builds a resting contact between a body and a plane
// at the body's lowest point.
func planeManifold(r *registry.Registry, body, plane registry.Entity, pivotA mgl64.Vec3, distance, friction, restitution float64) registry.Entity {
	e := r.Create()
	m := Manifold{BodyA: body, BodyB: plane, SeparationThreshold: 0.1}
	pos := registry.Get[actor.Position](r, body)
	m.Points[0] = ContactPoint{
		PivotA:      pivotA,
		PivotB:      mgl64.Vec3{pos.X() + pivotA.X(), 0, pos.Z() + pivotA.Z()},
		NormalB:     mgl64.Vec3{0, 1, 0},
		Distance:    distance,
		Friction:    friction,
		Restitution: restitution,
	}
	m.NumPoints = 1
	registry.Assign(r, e, m)
	return e
}

func TestFreeFallTrajectory(t *testing.T) {
	r := registry.New()
	body := createDynamicSphere(r, mgl64.Vec3{0, 3, 0}, 1)

	var solver Solver
	const steps = 600 // 10 seconds

	for i := 0; i < steps; i++ {
		solver.Step(r, dt)
	}

	// Semi-implicit Euler: y = y0 - g*dt^2 * N(N+1)/2.
	want := 3.0 - 9.81*dt*dt*float64(steps)*float64(steps+1)/2
	got := registry.Get[actor.Position](r, body).Y()
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("y = %v, want %v", got, want)
	}

	vy := registry.Get[actor.LinVel](r, body).Y()
	if math.Abs(vy-(-9.81*dt*float64(steps))) > 1e-6 {
		t.Fatalf("vy = %v", vy)
	}
}

func TestZeroForceBodyStaysPut(t *testing.T) {
	r := registry.New()
	def := actor.DefaultBodyDef()
	def.Kind = actor.KindDynamic
	def.Mass = 1
	def.Shape = actor.NewSphere(0.5)
	def.Position = mgl64.Vec3{1, 2, 3}
	body := actor.CreateBody(r, def)

	var solver Solver
	for i := 0; i < 100; i++ {
		solver.Step(r, dt)
	}

	pos := registry.Get[actor.Position](r, body)
	if pos.Vec3.Sub(mgl64.Vec3{1, 2, 3}).Len() > 1e-12 {
		t.Fatalf("body drifted to %v", pos.Vec3)
	}
}

func TestStaticBodyNeverMoves(t *testing.T) {
	r := registry.New()
	plane := createStaticPlane(r)
	body := createDynamicSphere(r, mgl64.Vec3{0, 0.4, 0}, 1)
	planeManifold(r, body, plane, mgl64.Vec3{0, -0.5, 0}, -0.1, 0.5, 0)

	var solver Solver
	for i := 0; i < 60; i++ {
		solver.Step(r, dt)
	}

	if registry.Get[actor.Position](r, plane).Vec3 != (mgl64.Vec3{}) {
		t.Fatal("static body moved")
	}
	if registry.Get[actor.LinVel](r, plane).Vec3 != (mgl64.Vec3{}) {
		t.Fatal("static body gained velocity")
	}
}

func TestRestingContactSupportsBody(t *testing.T) {
	r := registry.New()
	plane := createStaticPlane(r)
	body := createDynamicSphere(r, mgl64.Vec3{0, 0.5, 0}, 1)
	manifold := planeManifold(r, body, plane, mgl64.Vec3{0, -0.5, 0}, 0, 0.5, 0)

	var solver Solver
	for i := 0; i < 120; i++ {
		// Keep the contact point's separation current, as the narrowphase
		// would.
		m := registry.Get[Manifold](r, manifold)
		m.Points[0].Distance = registry.Get[actor.Position](r, body).Y() - 0.5
		solver.Step(r, dt)
	}

	y := registry.Get[actor.Position](r, body).Y()
	if math.Abs(y-0.5) > 0.05 {
		t.Fatalf("body sank or launched: y = %v", y)
	}
	vy := registry.Get[actor.LinVel](r, body).Y()
	if math.Abs(vy) > 0.05 {
		t.Fatalf("resting body keeps velocity %v", vy)
	}
}

func TestNormalImpulseNonNegativeAndWithinLimits(t *testing.T) {
	r := registry.New()
	plane := createStaticPlane(r)
	body := createDynamicSphere(r, mgl64.Vec3{0, 0.45, 0}, 1)
	planeManifold(r, body, plane, mgl64.Vec3{0, -0.5, 0}, -0.05, 0.5, 0)

	var solver Solver
	solver.Step(r, dt)

	cache := registry.Ctx[Cache](r)
	if len(cache.Rows) == 0 {
		t.Fatal("no rows prepared")
	}
	if cache.TotalRows() != len(cache.Rows) {
		t.Fatalf("row cache length %d != sum of per-constraint rows %d",
			len(cache.Rows), cache.TotalRows())
	}
	for i, row := range cache.Rows {
		if row.Impulse < row.LowerLimit-1e-12 || row.Impulse > row.UpperLimit+1e-12 {
			t.Fatalf("row %d impulse %v outside [%v, %v]", i, row.Impulse, row.LowerLimit, row.UpperLimit)
		}
	}
	// The first row of the contact is the normal row.
	if cache.Rows[0].Impulse < 0 {
		t.Fatalf("normal impulse %v is negative", cache.Rows[0].Impulse)
	}
}

func TestFrictionConeThreshold(t *testing.T) {
	run := func(vx float64) float64 {
		r := registry.New()
		plane := createStaticPlane(r)
		body := createDynamicSphere(r, mgl64.Vec3{0, 0.5, 0}, 1)
		// Lock rotation so the body slides instead of rolling and the
		// body-fixed contact pivot stays under it.
		inertia := registry.Get[actor.Inertia](r, body)
		inertia.InvDiag = mgl64.Vec3{}
		inertia.WorldInv = mgl64.Mat3{}
		registry.Get[actor.LinVel](r, body).Vec3 = mgl64.Vec3{vx, 0, 0}
		manifold := planeManifold(r, body, plane, mgl64.Vec3{0, -0.5, 0}, 0, 0.5, 0)

		var solver Solver
		for i := 0; i < 60; i++ { // one second
			m := registry.Get[Manifold](r, manifold)
			m.Points[0].Distance = registry.Get[actor.Position](r, body).Y() - 0.5
			solver.Step(r, dt)
		}
		return registry.Get[actor.LinVel](r, body).X()
	}

	// Fast slide: friction is capped at mu*N, decelerating at mu*g.
	vAfter := run(10)
	want := 10 - 0.5*9.81
	if math.Abs(vAfter-want) > 0.5 {
		t.Fatalf("sliding velocity after 1s = %v, want ~%v", vAfter, want)
	}

	// Slow slide: friction wins, the body stops.
	if v := run(0.05); math.Abs(v) > 0.01 {
		t.Fatalf("slow slide not arrested: v = %v", v)
	}
}

func TestWarmStartDeterminism(t *testing.T) {
	impulses := func() []float64 {
		r := registry.New()
		plane := createStaticPlane(r)
		body := createDynamicSphere(r, mgl64.Vec3{0.01, 0.6, 0}, 1)
		manifold := planeManifold(r, body, plane, mgl64.Vec3{0, -0.5, 0}, 0.1, 0.5, 0.3)

		var solver Solver
		var out []float64
		for i := 0; i < 120; i++ {
			m := registry.Get[Manifold](r, manifold)
			m.Points[0].Distance = registry.Get[actor.Position](r, body).Y() - 0.5
			solver.Step(r, dt)
			out = append(out, m.Points[0].NormalImpulse)
		}
		return out
	}

	first := impulses()
	second := impulses()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("step %d: impulses diverge: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestOrientationStaysUnit(t *testing.T) {
	r := registry.New()
	def := actor.DefaultBodyDef()
	def.Kind = actor.KindDynamic
	def.Mass = 1
	def.Shape = actor.NewBox(mgl64.Vec3{0.5, 0.5, 0.5})
	def.AngVel = mgl64.Vec3{3, 5, 7}
	body := actor.CreateBody(r, def)

	var solver Solver
	for i := 0; i < 300; i++ {
		solver.Step(r, dt)
		orn := registry.Get[actor.Orientation](r, body)
		if math.Abs(orn.Len()-1) > 1e-9 {
			t.Fatalf("step %d: |q| = %v", i, orn.Len())
		}
	}
}

func TestDistanceConstraintHoldsLength(t *testing.T) {
	r := registry.New()
	anchor := createStaticPlane(r)
	bob := createDynamicSphere(r, mgl64.Vec3{0, -2, 0}, 1)

	e := r.Create()
	registry.Assign(r, e, Constraint{
		Kind:  KindDistance,
		BodyA: anchor,
		BodyB: bob,
		Distance: &DistanceParams{
			PivotA: mgl64.Vec3{0, 0, 0},
			PivotB: mgl64.Vec3{0, 0, 0},
			Length: 2,
		},
	})

	var solver Solver
	for i := 0; i < 300; i++ {
		solver.Step(r, dt)
	}

	dist := registry.Get[actor.Position](r, bob).Vec3.Len()
	if math.Abs(dist-2) > 0.1 {
		t.Fatalf("pendulum length drifted to %v", dist)
	}
}
