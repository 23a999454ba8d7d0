package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Kind classifies how a body participates in the simulation.
type Kind uint8

const (
	// KindDynamic bodies are affected by forces, gravity and collisions.
	// They have finite mass and can move freely.
	KindDynamic Kind = iota

	// KindKinematic bodies move only when the user moves them. They have
	// infinite mass and push dynamic bodies around without reacting.
	KindKinematic

	// KindStatic bodies are immovable and have infinite mass (e.g. ground,
	// walls).
	KindStatic
)

// InfiniteMass is the sentinel stored for static and kinematic bodies.
const InfiniteMass = math.MaxFloat64

// Position is a body's world-space position.
type Position struct {
	mgl64.Vec3
}

// Orientation is a body's world-space rotation. It is renormalized after
// every angular integration step.
type Orientation struct {
	mgl64.Quat
}

// LinVel is linear velocity in m/s.
type LinVel struct {
	mgl64.Vec3
}

// AngVel is angular velocity in rad/s.
type AngVel struct {
	mgl64.Vec3
}

// LinAcc is an external linear acceleration applied every step (gravity
// lives here).
type LinAcc struct {
	mgl64.Vec3
}

// Mass carries a body's mass and its cached inverse. Static and kinematic
// bodies store InfiniteMass and a zero inverse.
type Mass struct {
	Value float64
	Inv   float64
}

// Inertia is the body-frame diagonal inertia tensor, its inverse, and the
// cached world-space inverse refreshed after each orientation change.
type Inertia struct {
	Diag     mgl64.Vec3
	InvDiag  mgl64.Vec3
	WorldInv mgl64.Mat3
}

// Material holds the surface response parameters. A body without a material
// is a sensor: it generates manifolds but no impulses.
type Material struct {
	Restitution float64
	Friction    float64
	Stiffness   float64
	Damping     float64
}

// LargeScalar marks a stiffness treated as rigid by the contact rows.
const LargeScalar = 1e18

// CombineFriction merges two materials' friction coefficients with the
// geometric mean.
func CombineFriction(a, b Material) float64 {
	return math.Sqrt(a.Friction * b.Friction)
}

// CombineRestitution merges two materials' restitutions; if one bounces, the
// pair bounces.
func CombineRestitution(a, b Material) float64 {
	return math.Max(a.Restitution, b.Restitution)
}

// CollisionFilter gates which pairs of bodies may collide. A pair collides
// iff a.Group&b.Mask != 0 && b.Group&a.Mask != 0.
type CollisionFilter struct {
	Group uint64
	Mask  uint64
}

// DefaultFilter collides with everything.
func DefaultFilter() CollisionFilter {
	return CollisionFilter{Group: ^uint64(0), Mask: ^uint64(0)}
}

// ShouldCollide applies the group/mask rule.
func ShouldCollide(a, b CollisionFilter) bool {
	return a.Group&b.Mask != 0 && b.Group&a.Mask != 0
}

// TreeNode is the body's handle into the broadphase tree it is registered
// with. Destroying this component removes the body from the tree.
type TreeNode struct {
	ID int32
}

// GraphNode is the body's handle into the interaction graph.
type GraphNode struct {
	Index int32
}

// GraphEdge is a constraint's or manifold's handle into the interaction
// graph.
type GraphEdge struct {
	Index int32
}

// Procedural tags bodies simulated by the solver (synonym for dynamic in
// the broadphase: procedural bodies live in the dynamic tree).
type Procedural struct{}

// Sleeping tags entities belonging to a sleeping island.
type Sleeping struct{}

// SleepingDisabled prevents the island containing this entity from ever
// falling asleep.
type SleepingDisabled struct{}

// PresentPosition is the interpolated transform handed to rendering. It is
// fed by the coordinator, never by the solver.
type PresentPosition struct {
	mgl64.Vec3
}

// PresentOrientation is the rendering counterpart of Orientation.
type PresentOrientation struct {
	mgl64.Quat
}

// Rotate transforms a body-space vector to world space.
func Rotate(orn Orientation, v mgl64.Vec3) mgl64.Vec3 {
	return orn.Quat.Rotate(v)
}

// ToWorld transforms a body-space point to world space.
func ToWorld(pos Position, orn Orientation, p mgl64.Vec3) mgl64.Vec3 {
	return pos.Vec3.Add(orn.Quat.Rotate(p))
}

// ToLocal transforms a world-space point to body space.
func ToLocal(pos Position, orn Orientation, p mgl64.Vec3) mgl64.Vec3 {
	return orn.Quat.Conjugate().Rotate(p.Sub(pos.Vec3))
}

// WorldInvInertia computes R * diag(invI) * Rᵀ.
func WorldInvInertia(orn Orientation, invDiag mgl64.Vec3) mgl64.Mat3 {
	R := orn.Quat.Mat4().Mat3()
	local := mgl64.Mat3{
		invDiag.X(), 0, 0,
		0, invDiag.Y(), 0,
		0, 0, invDiag.Z(),
	}
	return R.Mul3(local).Mul3(R.Transpose())
}
