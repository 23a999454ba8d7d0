// Package constraint holds the constraint components, the linearized row
// cache and the sequential-impulse solver that iterates it.
package constraint

import (
	"github.com/StellaSmith/edyn/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// Kind discriminates the constraint variants.
type Kind uint8

const (
	// KindContact rows are owned by a Manifold on the same entity.
	KindContact Kind = iota
	KindDistance
	KindPoint
	KindHinge
	KindGeneric
)

// Constraint is a tagged variant over the concrete constraint kinds. It
// links two bodies; exactly the params field matching Kind is non-nil
// (contact constraints read their manifold instead).
type Constraint struct {
	Kind  Kind
	BodyA registry.Entity
	BodyB registry.Entity

	Distance *DistanceParams
	Point    *PointParams
	Hinge    *HingeParams
	Generic  *GenericParams
}

// DistanceParams keeps two body-local pivots at a fixed distance.
type DistanceParams struct {
	PivotA mgl64.Vec3
	PivotB mgl64.Vec3
	Length float64
}

// PointParams pins two body-local pivots together.
type PointParams struct {
	PivotA mgl64.Vec3
	PivotB mgl64.Vec3
}

// HingeParams pins two pivots and aligns two body-local axes, leaving one
// rotational degree of freedom.
type HingeParams struct {
	PivotA mgl64.Vec3
	PivotB mgl64.Vec3
	AxisA  mgl64.Vec3
	AxisB  mgl64.Vec3
}

// GenericParams locks a configurable subset of the relative linear and
// angular axes (bit i of a mask locks world axis i).
type GenericParams struct {
	PivotA      mgl64.Vec3
	PivotB      mgl64.Vec3
	LinearMask  uint8
	AngularMask uint8
}

// Impulse stores a constraint's accumulated impulses from the previous
// step, one entry per row, for warm starting.
type Impulse struct {
	Values []float64
}

// Replication kinds for the constraint components. Constraints and
// manifolds embed body ids, rewritten when they cross registries.
var (
	KindOfConstraint = registry.RegisterEntityComponent[Constraint]("constraint",
		func(c *Constraint, m registry.EntityMapper) {
			c.BodyA = m(c.BodyA)
			c.BodyB = m(c.BodyB)
		})
	KindOfManifold = registry.RegisterEntityComponent[Manifold]("contact_manifold",
		func(man *Manifold, m registry.EntityMapper) {
			man.BodyA = m(man.BodyA)
			man.BodyB = m(man.BodyB)
		})
	KindOfImpulse = registry.RegisterComponent[Impulse]("constraint_impulse")
)

// Kinds returns the replicated constraint component set.
func Kinds() []registry.ComponentKind {
	return []registry.ComponentKind{KindOfConstraint, KindOfManifold, KindOfImpulse}
}
