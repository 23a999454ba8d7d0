package bvh

import (
	"testing"

	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/registry"
	"github.com/go-gl/mathgl/mgl64"
)

func box(x, y, z, half float64) actor.AABB {
	h := mgl64.Vec3{half, half, half}
	c := mgl64.Vec3{x, y, z}
	return actor.AABB{Min: c.Sub(h), Max: c.Add(h)}
}

func queryAll(t *Tree, aabb actor.AABB) map[registry.Entity]bool {
	hits := make(map[registry.Entity]bool)
	t.Query(aabb, func(payload registry.Entity) {
		hits[payload] = true
	})
	return hits
}

func TestCreateAndQuery(t *testing.T) {
	tree := NewTree()
	r := registry.New()

	a := r.Create()
	b := r.Create()
	c := r.Create()
	tree.Create(box(0, 0, 0, 0.5), a)
	tree.Create(box(10, 0, 0, 0.5), b)
	tree.Create(box(0.4, 0, 0, 0.5), c)

	hits := queryAll(tree, box(0, 0, 0, 1))
	if !hits[a] || !hits[c] {
		t.Fatalf("expected a and c, got %v", hits)
	}
	if hits[b] {
		t.Fatal("b is far away and must not be visited")
	}
	if tree.Count() != 3 {
		t.Fatalf("count = %d", tree.Count())
	}
}

func TestMoveWithinFattenedAABBIsNoop(t *testing.T) {
	tree := NewTree()
	r := registry.New()
	e := r.Create()
	id := tree.Create(box(0, 0, 0, 0.5), e)

	// Small displacement stays inside the fattened box.
	if moved := tree.Move(id, box(0.05, 0, 0, 0.5)); moved {
		t.Fatal("small move should refit in place")
	}
	// A large displacement must re-insert.
	if moved := tree.Move(id, box(5, 0, 0, 0.5)); !moved {
		t.Fatal("large move should re-insert")
	}

	hits := queryAll(tree, box(5, 0, 0, 1))
	if !hits[e] {
		t.Fatal("moved leaf not found at new location")
	}
	if len(queryAll(tree, box(0, 0, 0, 0.1))) != 0 {
		t.Fatal("moved leaf still found at old location")
	}
}

func TestDestroy(t *testing.T) {
	tree := NewTree()
	r := registry.New()

	var ids []int32
	var entities []registry.Entity
	for i := 0; i < 10; i++ {
		e := r.Create()
		entities = append(entities, e)
		ids = append(ids, tree.Create(box(float64(i)*3, 0, 0, 0.5), e))
	}

	tree.Destroy(ids[4])
	if tree.Count() != 9 {
		t.Fatalf("count = %d", tree.Count())
	}
	if len(queryAll(tree, box(12, 0, 0, 1))) != 0 {
		t.Fatal("destroyed leaf still visited")
	}

	// The rest are intact.
	for i, e := range entities {
		if i == 4 {
			continue
		}
		if !queryAll(tree, box(float64(i)*3, 0, 0, 1))[e] {
			t.Fatalf("leaf %d lost after unrelated destroy", i)
		}
	}
}

func TestManyInsertionsStayQueryable(t *testing.T) {
	tree := NewTree()
	r := registry.New()

	const n = 200
	entities := make([]registry.Entity, n)
	for i := 0; i < n; i++ {
		e := r.Create()
		entities[i] = e
		tree.Create(box(float64(i%20), float64(i/20), 0, 0.4), e)
	}

	for i := 0; i < n; i++ {
		if !queryAll(tree, box(float64(i%20), float64(i/20), 0, 0.5))[entities[i]] {
			t.Fatalf("leaf %d unreachable", i)
		}
	}
}
