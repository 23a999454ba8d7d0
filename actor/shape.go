package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ShapeKind discriminates the shape variants.
type ShapeKind uint8

const (
	ShapeSphere ShapeKind = iota
	ShapeBox
	ShapeCylinder
	ShapeCapsule
	ShapePolyhedron
	ShapeMesh
	ShapePlane
	ShapeCompound
	shapeKindCount
)

// Shape is a tagged variant over the collision shape kinds. Exactly the
// field matching Kind is non-nil. New kinds get an enum value here, a case
// in every switch below, and an entry in the narrowphase dispatch matrix.
type Shape struct {
	Kind       ShapeKind
	Sphere     *SphereShape
	Box        *BoxShape
	Cylinder   *CylinderShape
	Capsule    *CapsuleShape
	Polyhedron *PolyhedronShape
	Mesh       *TrimeshShape
	Plane      *PlaneShape
	Compound   *CompoundShape
}

// SphereShape is a sphere centered at the body origin.
type SphereShape struct {
	Radius float64
}

// BoxShape is a box defined by its half-extents.
type BoxShape struct {
	HalfExtents mgl64.Vec3
}

// CylinderShape is a cylinder along the local Y axis.
type CylinderShape struct {
	Radius     float64
	HalfLength float64
}

// CapsuleShape is a capsule along the local Y axis.
type CapsuleShape struct {
	Radius     float64
	HalfLength float64
}

// PolyhedronShape is a closed convex mesh. Faces index into Vertices
// counter-clockwise as seen from outside; FaceNormals are unit outward
// normals, precomputed by NewPolyhedron.
type PolyhedronShape struct {
	Vertices    []mgl64.Vec3
	Faces       [][]int
	FaceNormals []mgl64.Vec3
}

// PlaneShape is the infinite half-space n·x <= c, solid below the plane.
// Planes only make sense on static bodies.
type PlaneShape struct {
	Normal   mgl64.Vec3
	Constant float64
}

// CompoundShape aggregates child shapes at fixed offsets from the body
// origin.
type CompoundShape struct {
	Children []CompoundChild
}

type CompoundChild struct {
	Shape       Shape
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

func NewSphere(radius float64) Shape {
	return Shape{Kind: ShapeSphere, Sphere: &SphereShape{Radius: radius}}
}

func NewBox(halfExtents mgl64.Vec3) Shape {
	return Shape{Kind: ShapeBox, Box: &BoxShape{HalfExtents: halfExtents}}
}

func NewCylinder(radius, halfLength float64) Shape {
	return Shape{Kind: ShapeCylinder, Cylinder: &CylinderShape{Radius: radius, HalfLength: halfLength}}
}

func NewCapsule(radius, halfLength float64) Shape {
	return Shape{Kind: ShapeCapsule, Capsule: &CapsuleShape{Radius: radius, HalfLength: halfLength}}
}

// NewPolyhedron builds a convex mesh shape and precomputes face normals.
func NewPolyhedron(vertices []mgl64.Vec3, faces [][]int) Shape {
	p := &PolyhedronShape{Vertices: vertices, Faces: faces}
	p.FaceNormals = make([]mgl64.Vec3, len(faces))
	for i, face := range faces {
		if len(face) < 3 {
			panic("actor: polyhedron face needs at least 3 vertices")
		}
		e1 := vertices[face[1]].Sub(vertices[face[0]])
		e2 := vertices[face[2]].Sub(vertices[face[0]])
		p.FaceNormals[i] = e1.Cross(e2).Normalize()
	}
	return Shape{Kind: ShapePolyhedron, Polyhedron: p}
}

func NewPlane(normal mgl64.Vec3, constant float64) Shape {
	return Shape{Kind: ShapePlane, Plane: &PlaneShape{Normal: normal.Normalize(), Constant: constant}}
}

func NewCompound(children []CompoundChild) Shape {
	return Shape{Kind: ShapeCompound, Compound: &CompoundShape{Children: children}}
}

// planeHalfExtent bounds the otherwise infinite plane AABB.
const planeHalfExtent = 1e6

// Convex reports whether the shape supports point queries through Support
// (everything except meshes, planes and compounds).
func (s Shape) Convex() bool {
	switch s.Kind {
	case ShapeSphere, ShapeBox, ShapeCylinder, ShapeCapsule, ShapePolyhedron:
		return true
	}
	return false
}

// Support returns the local-space point of the shape furthest along the
// local-space direction. Only valid for convex shapes.
func (s Shape) Support(direction mgl64.Vec3) mgl64.Vec3 {
	switch s.Kind {
	case ShapeSphere:
		if direction.LenSqr() < 1e-16 {
			return mgl64.Vec3{s.Sphere.Radius, 0, 0}
		}
		return direction.Normalize().Mul(s.Sphere.Radius)

	case ShapeBox:
		h := s.Box.HalfExtents
		hx, hy, hz := h.X(), h.Y(), h.Z()
		if direction.X() < 0 {
			hx = -hx
		}
		if direction.Y() < 0 {
			hy = -hy
		}
		if direction.Z() < 0 {
			hz = -hz
		}
		return mgl64.Vec3{hx, hy, hz}

	case ShapeCylinder:
		c := s.Cylinder
		radial := mgl64.Vec3{direction.X(), 0, direction.Z()}
		var p mgl64.Vec3
		if radial.LenSqr() > 1e-16 {
			p = radial.Normalize().Mul(c.Radius)
		}
		if direction.Y() >= 0 {
			p[1] = c.HalfLength
		} else {
			p[1] = -c.HalfLength
		}
		return p

	case ShapeCapsule:
		c := s.Capsule
		var tip mgl64.Vec3
		if direction.LenSqr() > 1e-16 {
			tip = direction.Normalize().Mul(c.Radius)
		} else {
			tip = mgl64.Vec3{c.Radius, 0, 0}
		}
		if direction.Y() >= 0 {
			return tip.Add(mgl64.Vec3{0, c.HalfLength, 0})
		}
		return tip.Add(mgl64.Vec3{0, -c.HalfLength, 0})

	case ShapePolyhedron:
		best := 0
		bestDot := math.Inf(-1)
		for i, v := range s.Polyhedron.Vertices {
			if d := v.Dot(direction); d > bestDot {
				bestDot = d
				best = i
			}
		}
		return s.Polyhedron.Vertices[best]
	}
	panic("actor: support query on non-convex shape")
}

// SupportWorld returns the world-space support point for a world-space
// direction, given the shape's transform.
func SupportWorld(s Shape, pos Position, orn Orientation, direction mgl64.Vec3) mgl64.Vec3 {
	localDir := orn.Quat.Conjugate().Rotate(direction)
	localSupport := s.Support(localDir)
	return pos.Vec3.Add(orn.Quat.Rotate(localSupport))
}

// ComputeAABB calculates the world-space bounding box of the shape at the
// given transform.
func ComputeAABB(s Shape, pos Position, orn Orientation) AABB {
	switch s.Kind {
	case ShapeSphere:
		r := mgl64.Vec3{s.Sphere.Radius, s.Sphere.Radius, s.Sphere.Radius}
		return AABB{Min: pos.Vec3.Sub(r), Max: pos.Vec3.Add(r)}

	case ShapeBox:
		h := s.Box.HalfExtents
		corners := [8]mgl64.Vec3{
			{-h.X(), -h.Y(), -h.Z()},
			{+h.X(), -h.Y(), -h.Z()},
			{-h.X(), +h.Y(), -h.Z()},
			{+h.X(), +h.Y(), -h.Z()},
			{-h.X(), -h.Y(), +h.Z()},
			{+h.X(), -h.Y(), +h.Z()},
			{-h.X(), +h.Y(), +h.Z()},
			{+h.X(), +h.Y(), +h.Z()},
		}
		world := orn.Quat.Rotate(corners[0]).Add(pos.Vec3)
		box := AABB{Min: world, Max: world}
		for i := 1; i < 8; i++ {
			world = orn.Quat.Rotate(corners[i]).Add(pos.Vec3)
			box = box.Merge(PointAABB(world))
		}
		return box

	case ShapeCylinder, ShapeCapsule, ShapePolyhedron:
		return supportAABB(s, pos, orn)

	case ShapeMesh:
		return s.Mesh.transformedAABB(pos, orn)

	case ShapePlane:
		// The solid half-space is unbounded; the broadphase sees a large
		// box so every body can pair with it.
		h := mgl64.Vec3{planeHalfExtent, planeHalfExtent, planeHalfExtent}
		return AABB{Min: pos.Vec3.Sub(h), Max: pos.Vec3.Add(h)}

	case ShapeCompound:
		children := s.Compound.Children
		box := childAABB(children[0], pos, orn)
		for _, child := range children[1:] {
			box = box.Merge(childAABB(child, pos, orn))
		}
		return box
	}
	panic("actor: unknown shape kind")
}

func childAABB(child CompoundChild, pos Position, orn Orientation) AABB {
	childPos := Position{pos.Vec3.Add(orn.Quat.Rotate(child.Position))}
	childOrn := Orientation{orn.Quat.Mul(child.Orientation)}
	return ComputeAABB(child.Shape, childPos, childOrn)
}

// supportAABB bounds a convex shape with six support queries along the
// world axes.
func supportAABB(s Shape, pos Position, orn Orientation) AABB {
	var box AABB
	for axis := 0; axis < 3; axis++ {
		var dir mgl64.Vec3
		dir[axis] = 1
		box.Max[axis] = SupportWorld(s, pos, orn, dir)[axis]
		dir[axis] = -1
		box.Min[axis] = SupportWorld(s, pos, orn, dir)[axis]
	}
	return box
}

// InertiaDiag returns the body-frame diagonal inertia tensor for the shape
// at the given mass. Mesh and plane shapes are static-only and have no
// inertia.
func InertiaDiag(s Shape, mass float64) mgl64.Vec3 {
	switch s.Kind {
	case ShapeSphere:
		i := 0.4 * mass * s.Sphere.Radius * s.Sphere.Radius
		return mgl64.Vec3{i, i, i}

	case ShapeBox:
		h := s.Box.HalfExtents
		x, y, z := 2*h.X(), 2*h.Y(), 2*h.Z()
		f := mass / 12.0
		return mgl64.Vec3{f * (y*y + z*z), f * (x*x + z*z), f * (x*x + y*y)}

	case ShapeCylinder:
		c := s.Cylinder
		h := 2 * c.HalfLength
		ixz := mass * (3*c.Radius*c.Radius + h*h) / 12.0
		iy := mass * c.Radius * c.Radius / 2.0
		return mgl64.Vec3{ixz, iy, ixz}

	case ShapeCapsule:
		c := s.Capsule
		// Cylinder plus two hemispheres, masses split by volume.
		h := 2 * c.HalfLength
		r := c.Radius
		cylVol := math.Pi * r * r * h
		sphVol := 4.0 / 3.0 * math.Pi * r * r * r
		cylMass := mass * cylVol / (cylVol + sphVol)
		sphMass := mass - cylMass
		iy := cylMass*r*r/2.0 + sphMass*2.0/5.0*r*r
		ixz := cylMass*(3*r*r+h*h)/12.0 +
			sphMass*(2.0/5.0*r*r+c.HalfLength*c.HalfLength+3.0/8.0*r*c.HalfLength)
		return mgl64.Vec3{ixz, iy, ixz}

	case ShapePolyhedron:
		// Approximated by the inertia of the vertex bounding box.
		box := AABB{Min: s.Polyhedron.Vertices[0], Max: s.Polyhedron.Vertices[0]}
		for _, v := range s.Polyhedron.Vertices[1:] {
			box = box.Merge(PointAABB(v))
		}
		half := box.Max.Sub(box.Min).Mul(0.5)
		return InertiaDiag(NewBox(half), mass)

	case ShapeCompound:
		// Children contribute their own inertia shifted by the parallel
		// axis theorem; off-diagonal terms are dropped.
		var total mgl64.Vec3
		n := float64(len(s.Compound.Children))
		for _, child := range s.Compound.Children {
			childMass := mass / n
			ci := InertiaDiag(child.Shape, childMass)
			d := child.Position
			shift := mgl64.Vec3{
				childMass * (d.Y()*d.Y() + d.Z()*d.Z()),
				childMass * (d.X()*d.X() + d.Z()*d.Z()),
				childMass * (d.X()*d.X() + d.Y()*d.Y()),
			}
			total = total.Add(ci).Add(shift)
		}
		return total
	}
	panic("actor: inertia of static-only shape")
}
