package actor

import "github.com/go-gl/mathgl/mgl64"

// AABB represents an axis-aligned bounding box in world space.
type AABB struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// ContainsPoint checks if a point is inside the AABB.
func (a AABB) ContainsPoint(point mgl64.Vec3) bool {
	return point.X() >= a.Min.X() && point.X() <= a.Max.X() &&
		point.Y() >= a.Min.Y() && point.Y() <= a.Max.Y() &&
		point.Z() >= a.Min.Z() && point.Z() <= a.Max.Z()
}

// Overlaps checks if two AABBs overlap.
func (a AABB) Overlaps(other AABB) bool {
	// AABBs overlap if they overlap on all three axes
	return a.Max.X() >= other.Min.X() && a.Min.X() <= other.Max.X() &&
		a.Max.Y() >= other.Min.Y() && a.Min.Y() <= other.Max.Y() &&
		a.Max.Z() >= other.Min.Z() && a.Min.Z() <= other.Max.Z()
}

// Contains reports whether other lies entirely inside a.
func (a AABB) Contains(other AABB) bool {
	return a.Min.X() <= other.Min.X() && a.Min.Y() <= other.Min.Y() && a.Min.Z() <= other.Min.Z() &&
		a.Max.X() >= other.Max.X() && a.Max.Y() >= other.Max.Y() && a.Max.Z() >= other.Max.Z()
}

// Inset shrinks the box by amount on every side; a negative amount
// inflates it.
func (a AABB) Inset(amount float64) AABB {
	d := mgl64.Vec3{amount, amount, amount}
	return AABB{Min: a.Min.Add(d), Max: a.Max.Sub(d)}
}

// Merge returns the smallest AABB enclosing both boxes.
func (a AABB) Merge(other AABB) AABB {
	return AABB{
		Min: mgl64.Vec3{
			min(a.Min.X(), other.Min.X()),
			min(a.Min.Y(), other.Min.Y()),
			min(a.Min.Z(), other.Min.Z()),
		},
		Max: mgl64.Vec3{
			max(a.Max.X(), other.Max.X()),
			max(a.Max.Y(), other.Max.Y()),
			max(a.Max.Z(), other.Max.Z()),
		},
	}
}

// Perimeter is the surface-area proxy used by the dynamic tree's insertion
// cost heuristic.
func (a AABB) Perimeter() float64 {
	d := a.Max.Sub(a.Min)
	return 2.0 * (d.X()*d.Y() + d.Y()*d.Z() + d.Z()*d.X())
}

// Center returns the midpoint of the box.
func (a AABB) Center() mgl64.Vec3 {
	return a.Min.Add(a.Max).Mul(0.5)
}

// PointAABB is the degenerate box around a single point.
func PointAABB(p mgl64.Vec3) AABB {
	return AABB{Min: p, Max: p}
}
