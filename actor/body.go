package actor

import (
	"fmt"

	"github.com/StellaSmith/edyn/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// RigidBodyDef collects everything needed to create a body. Zero values
// give a dynamic, massless-invalid body, so dynamic bodies must set Mass.
type RigidBodyDef struct {
	Kind        Kind
	Position    mgl64.Vec3
	Orientation mgl64.Quat
	LinVel      mgl64.Vec3
	AngVel      mgl64.Vec3
	Gravity     mgl64.Vec3
	Mass        float64
	Shape       Shape
	Material    *Material
	Filter      CollisionFilter
	Sensor      bool
}

// DefaultBodyDef returns a definition with identity orientation and the
// catch-all collision filter.
func DefaultBodyDef() RigidBodyDef {
	return RigidBodyDef{
		Orientation: mgl64.QuatIdent(),
		Filter:      DefaultFilter(),
	}
}

// CreateBody materializes the definition as an entity in the registry.
// Dynamic bodies must have positive mass; the inertia tensor is derived
// from the shape. Static and kinematic bodies get the infinite-mass
// sentinel and zero inverses.
func CreateBody(r *registry.Registry, def RigidBodyDef) registry.Entity {
	if def.Kind == KindDynamic && def.Mass <= 0 {
		panic(fmt.Sprintf("actor: dynamic body with mass %v", def.Mass))
	}

	e := r.Create()
	orn := def.Orientation
	if orn.Len() == 0 {
		orn = mgl64.QuatIdent()
	}

	registry.Assign(r, e, def.Kind)
	registry.Assign(r, e, Position{def.Position})
	registry.Assign(r, e, Orientation{orn.Normalize()})
	registry.Assign(r, e, def.Shape)
	registry.Assign(r, e, def.Filter)

	switch def.Kind {
	case KindDynamic:
		inertia := InertiaDiag(def.Shape, def.Mass)
		for axis := 0; axis < 3; axis++ {
			if inertia[axis] <= 0 {
				panic(fmt.Sprintf("actor: dynamic body with non-positive inertia %v", inertia))
			}
		}
		invDiag := mgl64.Vec3{1 / inertia.X(), 1 / inertia.Y(), 1 / inertia.Z()}
		registry.Assign(r, e, Mass{Value: def.Mass, Inv: 1 / def.Mass})
		registry.Assign(r, e, Inertia{
			Diag:     inertia,
			InvDiag:  invDiag,
			WorldInv: WorldInvInertia(Orientation{orn}, invDiag),
		})
		registry.Assign(r, e, LinVel{def.LinVel})
		registry.Assign(r, e, AngVel{def.AngVel})
		registry.Assign(r, e, LinAcc{def.Gravity})
		registry.Assign(r, e, Procedural{})

	case KindKinematic:
		registry.Assign(r, e, Mass{Value: InfiniteMass, Inv: 0})
		registry.Assign(r, e, Inertia{})
		registry.Assign(r, e, LinVel{def.LinVel})
		registry.Assign(r, e, AngVel{def.AngVel})

	case KindStatic:
		registry.Assign(r, e, Mass{Value: InfiniteMass, Inv: 0})
		registry.Assign(r, e, Inertia{})
		registry.Assign(r, e, LinVel{})
		registry.Assign(r, e, AngVel{})
	}

	if def.Material != nil && !def.Sensor {
		registry.Assign(r, e, *def.Material)
	}

	if def.Shape.Kind == ShapePolyhedron {
		registry.Assign(r, e, RotatedMesh{})
		UpdateRotatedMesh(r, e)
	}

	// The AABB is assigned last: the broadphase observes its construction
	// and by now every companion component is in place.
	registry.Assign(r, e, ComputeAABB(def.Shape, Position{def.Position}, Orientation{orn}))

	return e
}

// RotatedMesh caches a polyhedron's world-space vertices and face normals,
// refreshed once per step after the transform integration.
type RotatedMesh struct {
	Vertices []mgl64.Vec3
	Normals  []mgl64.Vec3
}

// UpdateRotatedMesh refreshes the world-space cache of a polyhedron body.
func UpdateRotatedMesh(r *registry.Registry, e registry.Entity) {
	cache := registry.TryGet[RotatedMesh](r, e)
	if cache == nil {
		return
	}
	shape := registry.Get[Shape](r, e)
	if shape.Kind != ShapePolyhedron {
		return
	}
	pos := *registry.Get[Position](r, e)
	orn := *registry.Get[Orientation](r, e)
	p := shape.Polyhedron

	if len(cache.Vertices) != len(p.Vertices) {
		cache.Vertices = make([]mgl64.Vec3, len(p.Vertices))
	}
	if len(cache.Normals) != len(p.FaceNormals) {
		cache.Normals = make([]mgl64.Vec3, len(p.FaceNormals))
	}
	for i, v := range p.Vertices {
		cache.Vertices[i] = ToWorld(pos, orn, v)
	}
	for i, n := range p.FaceNormals {
		cache.Normals[i] = Rotate(orn, n)
	}
}

// UpdateAABB recomputes the world AABB from the current transform.
func UpdateAABB(r *registry.Registry, e registry.Entity) {
	shape := registry.Get[Shape](r, e)
	pos := *registry.Get[Position](r, e)
	orn := *registry.Get[Orientation](r, e)
	*registry.Get[AABB](r, e) = ComputeAABB(*shape, pos, orn)
}

// UpdateWorldInertia refreshes the cached world-space inverse inertia after
// an orientation change.
func UpdateWorldInertia(r *registry.Registry, e registry.Entity) {
	inertia := registry.Get[Inertia](r, e)
	orn := *registry.Get[Orientation](r, e)
	inertia.WorldInv = WorldInvInertia(orn, inertia.InvDiag)
}
