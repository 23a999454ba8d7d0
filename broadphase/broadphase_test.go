package broadphase

import (
	"testing"

	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/constraint"
	"github.com/StellaSmith/edyn/registry"
	"github.com/go-gl/mathgl/mgl64"
)

func newSphereBody(r *registry.Registry, pos mgl64.Vec3, kind actor.Kind) registry.Entity {
	def := actor.DefaultBodyDef()
	def.Kind = kind
	if kind == actor.KindDynamic {
		def.Mass = 1
	}
	def.Shape = actor.NewSphere(0.5)
	def.Position = pos
	def.Material = &actor.Material{Friction: 0.5}
	return actor.CreateBody(r, def)
}

func manifoldCount(r *registry.Registry) int {
	return registry.Size[constraint.Manifold](r)
}

func TestDeferredInitAssignsTreeNodes(t *testing.T) {
	r := registry.New()
	b := New(r)

	dynamic := newSphereBody(r, mgl64.Vec3{0, 0, 0}, actor.KindDynamic)
	static := newSphereBody(r, mgl64.Vec3{10, 0, 0}, actor.KindStatic)

	if registry.Has[actor.TreeNode](r, dynamic) {
		t.Fatal("tree registration must be deferred to the update")
	}

	b.Update(1)

	if !registry.Has[actor.TreeNode](r, dynamic) || !registry.Has[actor.TreeNode](r, static) {
		t.Fatal("bodies not registered after update")
	}
	if b.Tree().Count() != 1 {
		t.Fatalf("dynamic tree holds %d leaves", b.Tree().Count())
	}
	if b.NonProceduralTree().Count() != 1 {
		t.Fatalf("non-procedural tree holds %d leaves", b.NonProceduralTree().Count())
	}
}

func TestManifoldCreatedOnOverlap(t *testing.T) {
	r := registry.New()
	b := New(r)

	a := newSphereBody(r, mgl64.Vec3{0, 0, 0}, actor.KindDynamic)
	c := newSphereBody(r, mgl64.Vec3{0.9, 0, 0}, actor.KindDynamic)

	b.Update(1)

	if manifoldCount(r) != 1 {
		t.Fatalf("expected 1 manifold, got %d", manifoldCount(r))
	}
	if _, ok := b.ManifoldBetween(a, c); !ok {
		t.Fatal("pair lookup failed")
	}

	// A second update must not duplicate it.
	b.Update(1)
	if manifoldCount(r) != 1 {
		t.Fatalf("duplicate manifold: %d", manifoldCount(r))
	}
}

func TestManifoldDestroyedWhenSeparated(t *testing.T) {
	r := registry.New()
	b := New(r)

	newSphereBody(r, mgl64.Vec3{0, 0, 0}, actor.KindDynamic)
	c := newSphereBody(r, mgl64.Vec3{0.9, 0, 0}, actor.KindDynamic)
	b.Update(1)
	if manifoldCount(r) != 1 {
		t.Fatalf("setup failed: %d manifolds", manifoldCount(r))
	}

	// Move them far apart and refresh their AABBs.
	registry.Get[actor.Position](r, c).Vec3 = mgl64.Vec3{10, 0, 0}
	actor.UpdateAABB(r, c)
	b.Update(1)

	if manifoldCount(r) != 0 {
		t.Fatalf("separated manifold survived: %d", manifoldCount(r))
	}

	// The separated-manifold invariant: no manifold whose inset AABBs are
	// disjoint exists after an update.
	registry.Each(r, func(_ registry.Entity, m *constraint.Manifold) {
		aabbA := registry.Get[actor.AABB](r, m.BodyA).Inset(-b.SeparationThreshold)
		aabbB := registry.Get[actor.AABB](r, m.BodyB)
		if !aabbA.Overlaps(*aabbB) {
			t.Fatal("invariant violated")
		}
	})
}

func TestCollisionFilterBlocksPair(t *testing.T) {
	r := registry.New()
	b := New(r)

	def := actor.DefaultBodyDef()
	def.Kind = actor.KindDynamic
	def.Mass = 1
	def.Shape = actor.NewSphere(0.5)
	def.Material = &actor.Material{}
	def.Filter = actor.CollisionFilter{Group: 0b01, Mask: 0b01}
	actor.CreateBody(r, def)

	def.Position = mgl64.Vec3{0.5, 0, 0}
	def.Filter = actor.CollisionFilter{Group: 0b10, Mask: 0b10}
	actor.CreateBody(r, def)

	b.Update(1)
	if manifoldCount(r) != 0 {
		t.Fatalf("filtered pair got a manifold")
	}
}

func TestStaticPairsIgnored(t *testing.T) {
	r := registry.New()
	b := New(r)

	newSphereBody(r, mgl64.Vec3{0, 0, 0}, actor.KindStatic)
	newSphereBody(r, mgl64.Vec3{0.5, 0, 0}, actor.KindStatic)

	b.Update(1)
	if manifoldCount(r) != 0 {
		t.Fatal("static-static pair must not get a manifold")
	}
}

func TestDynamicVsStaticPair(t *testing.T) {
	r := registry.New()
	b := New(r)

	newSphereBody(r, mgl64.Vec3{0, 0, 0}, actor.KindDynamic)
	newSphereBody(r, mgl64.Vec3{0.8, 0, 0}, actor.KindStatic)

	b.Update(1)
	if manifoldCount(r) != 1 {
		t.Fatalf("expected 1 manifold, got %d", manifoldCount(r))
	}
}

func TestTreeNodeDestroyRemovesLeaf(t *testing.T) {
	r := registry.New()
	b := New(r)

	e := newSphereBody(r, mgl64.Vec3{0, 0, 0}, actor.KindDynamic)
	b.Update(1)
	if b.Tree().Count() != 1 {
		t.Fatalf("count %d", b.Tree().Count())
	}

	r.Destroy(e)
	if b.Tree().Count() != 0 {
		t.Fatalf("leaf survived body destruction: %d", b.Tree().Count())
	}
}

func TestParallelizable(t *testing.T) {
	r := registry.New()
	b := New(r)

	newSphereBody(r, mgl64.Vec3{0, 0, 0}, actor.KindDynamic)
	b.Update(1)
	if b.Parallelizable() {
		t.Fatal("one dynamic body is not worth parallelizing")
	}

	newSphereBody(r, mgl64.Vec3{5, 0, 0}, actor.KindDynamic)
	b.Update(1)
	if !b.Parallelizable() {
		t.Fatal("two dynamic bodies cross the threshold")
	}
}

func TestAsyncMatchesSync(t *testing.T) {
	build := func() (*registry.Registry, *Broadphase) {
		r := registry.New()
		b := New(r)
		for i := 0; i < 6; i++ {
			newSphereBody(r, mgl64.Vec3{float64(i) * 0.8, 0, 0}, actor.KindDynamic)
		}
		return r, b
	}

	rSync, bSync := build()
	bSync.Update(1)

	// Drive the async path inline through a single-threaded stand-in.
	rAsync, bAsync := build()
	bAsync.initDeferred()
	bAsync.destroySeparatedManifolds()
	bAsync.moveNodes()
	bAsync.asyncBodies = bAsync.dynamicBodies()
	bAsync.asyncPairs = make([][]registry.Entity, len(bAsync.asyncBodies))
	for i, e := range bAsync.asyncBodies {
		bAsync.asyncPairs[i] = bAsync.collectCandidates(e)
	}
	bAsync.FinishAsync()

	if manifoldCount(rSync) != manifoldCount(rAsync) {
		t.Fatalf("sync %d manifolds, async %d", manifoldCount(rSync), manifoldCount(rAsync))
	}
}
