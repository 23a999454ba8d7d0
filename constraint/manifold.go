package constraint

import (
	"github.com/StellaSmith/edyn/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// MaxContacts is the maximum number of points a manifold holds.
const MaxContacts = 4

// ContactPoint is one persistent contact between two bodies. Pivots are
// body-local; the normal is local to body B. Distance is negative when
// penetrating. Impulses survive across steps for warm starting.
type ContactPoint struct {
	PivotA  mgl64.Vec3
	PivotB  mgl64.Vec3
	NormalB mgl64.Vec3

	Distance    float64
	Restitution float64
	Friction    float64

	Lifetime uint32

	NormalImpulse   float64
	FrictionImpulse float64
}

// Manifold is the persistent record of up to MaxContacts contact points
// between an ordered pair of bodies. It exists while the bodies' offset
// AABBs intersect, or while its points' separations remain under
// SeparationThreshold.
type Manifold struct {
	BodyA registry.Entity
	BodyB registry.Entity

	Points    [MaxContacts]ContactPoint
	NumPoints int

	SeparationThreshold float64
}

// Body returns the i-th body of the manifold.
func (m *Manifold) Body(i int) registry.Entity {
	if i == 0 {
		return m.BodyA
	}
	return m.BodyB
}
