package actor

import "github.com/StellaSmith/edyn/registry"

// Canonical component kinds of the body components, in the order they hold
// in snapshots and deltas.
var (
	KindOfKind        = registry.RegisterComponent[Kind]("kind")
	KindPosition      = registry.RegisterComponent[Position]("position")
	KindOrientation   = registry.RegisterComponent[Orientation]("orientation")
	KindLinVel        = registry.RegisterComponent[LinVel]("linvel")
	KindAngVel        = registry.RegisterComponent[AngVel]("angvel")
	KindLinAcc        = registry.RegisterComponent[LinAcc]("linacc")
	KindMass          = registry.RegisterComponent[Mass]("mass")
	KindInertia       = registry.RegisterComponent[Inertia]("inertia")
	KindAABB          = registry.RegisterComponent[AABB]("aabb")
	KindShape         = registry.RegisterImmutableComponent[Shape]("shape")
	KindMaterial      = registry.RegisterComponent[Material]("material")
	KindFilter        = registry.RegisterComponent[CollisionFilter]("collision_filter")
	KindProcedural    = registry.RegisterComponent[Procedural]("procedural")
	KindSleeping      = registry.RegisterComponent[Sleeping]("sleeping")
	KindSleepDisabled = registry.RegisterComponent[SleepingDisabled]("sleeping_disabled")
)

// ContinuousKinds are the components a worker replicates on every sync for
// moving bodies.
func ContinuousKinds() []registry.ComponentKind {
	return []registry.ComponentKind{
		KindPosition, KindOrientation, KindLinVel, KindAngVel,
	}
}

// BodyKinds is the full replicated set for handing a body to another
// registry.
func BodyKinds() []registry.ComponentKind {
	return []registry.ComponentKind{
		KindOfKind, KindPosition, KindOrientation, KindLinVel, KindAngVel,
		KindLinAcc, KindMass, KindInertia, KindAABB, KindShape, KindMaterial,
		KindFilter, KindProcedural, KindSleeping, KindSleepDisabled,
	}
}
