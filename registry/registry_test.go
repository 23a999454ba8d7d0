package registry

import "testing"

type position struct{ X, Y, Z float64 }
type velocity struct{ X, Y, Z float64 }

var (
	kindPosition = RegisterComponent[position]("test_position")
	kindVelocity = RegisterComponent[velocity]("test_velocity")
)

func TestCreateDestroyValid(t *testing.T) {
	r := New()
	e := r.Create()
	if !r.Valid(e) {
		t.Fatal("fresh entity should be valid")
	}

	r.Destroy(e)
	if r.Valid(e) {
		t.Fatal("destroyed entity should be invalid")
	}

	// The slot is reused with a new generation; the old id stays dead.
	e2 := r.Create()
	if e2 == e {
		t.Fatal("reused slot must carry a new generation")
	}
	if e2.Index() != e.Index() {
		t.Fatalf("expected slot reuse, got index %d want %d", e2.Index(), e.Index())
	}
	if r.Valid(e) {
		t.Fatal("old id must not validate against the reused slot")
	}
}

func TestAssignGetRemove(t *testing.T) {
	r := New()
	e := r.Create()

	Assign(r, e, position{1, 2, 3})
	if !Has[position](r, e) {
		t.Fatal("expected component present")
	}
	if got := Get[position](r, e); got.Y != 2 {
		t.Fatalf("got %v", got)
	}

	// Assign replaces in place.
	Assign(r, e, position{4, 5, 6})
	if got := Get[position](r, e); got.X != 4 {
		t.Fatalf("got %v", got)
	}

	if !Remove[position](r, e) {
		t.Fatal("remove should report true")
	}
	if TryGet[position](r, e) != nil {
		t.Fatal("expected component gone")
	}
}

func TestViewIterationOrder(t *testing.T) {
	r := New()
	var created []Entity
	for i := 0; i < 5; i++ {
		e := r.Create()
		Assign(r, e, position{X: float64(i)})
		created = append(created, e)
	}

	var visited []Entity
	Each(r, func(e Entity, _ *position) {
		visited = append(visited, e)
	})

	for i := range created {
		if visited[i] != created[i] {
			t.Fatalf("iteration order differs at %d: %v vs %v", i, visited[i], created[i])
		}
	}
}

func TestView2(t *testing.T) {
	r := New()
	both := r.Create()
	Assign(r, both, position{X: 1})
	Assign(r, both, velocity{X: 2})

	only := r.Create()
	Assign(r, only, position{X: 3})

	count := 0
	View2(r, func(e Entity, p *position, v *velocity) {
		count++
		if e != both {
			t.Fatalf("unexpected entity %v", e)
		}
	})
	if count != 1 {
		t.Fatalf("expected 1 match, got %d", count)
	}
}

func TestSignals(t *testing.T) {
	r := New()
	var constructed, destroyed int

	OnConstruct[position](r).Connect(func(_ *Registry, _ Entity) { constructed++ })
	OnDestroy[position](r).Connect(func(reg *Registry, e Entity) {
		// The component must still be readable inside the destroy signal.
		if TryGet[position](reg, e) == nil {
			t.Error("component gone inside destroy signal")
		}
		destroyed++
	})

	e := r.Create()
	Assign(r, e, position{})
	Assign(r, e, position{X: 1}) // replacement does not re-fire construct
	r.Destroy(e)

	if constructed != 1 || destroyed != 1 {
		t.Fatalf("constructed=%d destroyed=%d", constructed, destroyed)
	}
}

func TestCtxSingleton(t *testing.T) {
	r := New()
	type counter struct{ N int }

	Ctx[counter](r).N = 7
	if Ctx[counter](r).N != 7 {
		t.Fatal("ctx should return the same singleton")
	}

	other := New()
	if Ctx[counter](other).N != 0 {
		t.Fatal("ctx is per registry")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := New()
	a := src.Create()
	b := src.Create()
	Assign(src, a, position{1, 2, 3})
	Assign(src, a, velocity{4, 5, 6})
	Assign(src, b, position{7, 8, 9})

	snap := TakeSnapshot(src, []Entity{a, b}, []ComponentKind{kindPosition, kindVelocity})

	dst := New()
	emap := NewEntityMap()
	snap.ImportInto(dst, emap)

	la := emap.Local(a)
	lb := emap.Local(b)
	if la == Null || lb == Null {
		t.Fatal("imported entities not mapped")
	}
	if *Get[position](dst, la) != (position{1, 2, 3}) {
		t.Fatalf("position mismatch: %v", Get[position](dst, la))
	}
	if *Get[velocity](dst, la) != (velocity{4, 5, 6}) {
		t.Fatalf("velocity mismatch: %v", Get[velocity](dst, la))
	}
	if *Get[position](dst, lb) != (position{7, 8, 9}) {
		t.Fatalf("position mismatch: %v", Get[position](dst, lb))
	}
	if Has[velocity](dst, lb) {
		t.Fatal("entity b never had a velocity")
	}
}

func TestDeltaBuildAndImport(t *testing.T) {
	src := New()
	e := src.Create()
	Assign(src, e, position{1, 0, 0})
	MarkNew(src, e)
	MarkCreated(src, e, kindPosition)

	delta := BuildDelta(src)
	if delta.Empty() {
		t.Fatal("expected non-empty delta")
	}

	dst := New()
	emap := NewEntityMap()
	delta.ImportInto(dst, emap)

	local := emap.Local(e)
	if local == Null {
		t.Fatal("created entity not mapped")
	}
	if got := Get[position](dst, local); got.X != 1 {
		t.Fatalf("got %v", got)
	}

	// The dirty markers were consumed: the next delta is empty.
	if next := BuildDelta(src); !next.Empty() {
		t.Fatalf("expected empty delta, got %+v", next)
	}

	// An update flows as an update.
	Get[position](src, e).X = 2
	MarkUpdated(src, e, kindPosition)
	delta = BuildDelta(src)
	delta.ImportInto(dst, emap)
	if got := Get[position](dst, local); got.X != 2 {
		t.Fatalf("got %v", got)
	}

	// Destruction removes the mapped entity.
	src.Destroy(e)
	var final Delta
	final.DestroyedEntities = append(final.DestroyedEntities, e)
	final.ImportInto(dst, emap)
	if dst.Valid(local) {
		t.Fatal("destroyed entity still valid in target")
	}
}

func TestContinuousReplication(t *testing.T) {
	src := New()
	e := src.Create()
	Assign(src, e, position{1, 0, 0})
	Assign(src, e, Continuous{Kinds: []ComponentKind{kindPosition}})

	// No dirty marks: the continuous kind still replicates every sync.
	delta := BuildDelta(src)
	found := false
	for _, p := range delta.Pools {
		if p.Kind == kindPosition && len(p.Updated) == 1 {
			found = true
		}
	}
	if !found {
		t.Fatal("continuous component missing from delta")
	}
}

func TestImportingFlagDuringImport(t *testing.T) {
	src := New()
	e := src.Create()
	Assign(src, e, position{})
	MarkNew(src, e)
	MarkCreated(src, e, kindPosition)
	delta := BuildDelta(src)

	dst := New()
	sawImporting := false
	OnConstruct[position](dst).Connect(func(r *Registry, _ Entity) {
		sawImporting = r.Importing()
	})
	delta.ImportInto(dst, NewEntityMap())

	if !sawImporting {
		t.Fatal("construct signal during import must observe the importing flag")
	}
	if dst.Importing() {
		t.Fatal("importing flag must clear after import")
	}
}
