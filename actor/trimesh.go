package actor

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// TrimeshShape is a triangle mesh for static geometry. It owns a static
// AABB tree over its triangles and per-edge convexity flags so the
// narrowphase can suppress contacts on internal features.
type TrimeshShape struct {
	Vertices  []mgl64.Vec3
	Triangles [][3]int

	// Normals[i] is the outward unit normal of Triangles[i].
	Normals []mgl64.Vec3

	// ConcaveEdge[i][e] is true when edge e of triangle i (from vertex e to
	// vertex (e+1)%3) is concave or coplanar with its neighbor. Contacts
	// whose feature is such an edge must not use an edge normal.
	ConcaveEdge [][3]bool

	// ConcaveVertex[i][e] mirrors the flags onto triangle corners: a corner
	// is concave when any incident edge of the triangle is.
	ConcaveVertex [][3]bool

	localAABB AABB
	nodes     []meshNode
	root      int32
}

type meshNode struct {
	aabb        AABB
	left, right int32
	// tri >= 0 marks a leaf.
	tri int32
}

const coplanarEdgeTolerance = 1e-6

// NewTrimesh builds a triangle mesh shape, its static tree and its
// concave-feature flags.
func NewTrimesh(vertices []mgl64.Vec3, triangles [][3]int) Shape {
	m := &TrimeshShape{Vertices: vertices, Triangles: triangles}

	m.Normals = make([]mgl64.Vec3, len(triangles))
	for i, tri := range triangles {
		e1 := vertices[tri[1]].Sub(vertices[tri[0]])
		e2 := vertices[tri[2]].Sub(vertices[tri[0]])
		m.Normals[i] = e1.Cross(e2).Normalize()
	}

	m.markConcaveFeatures()
	m.buildTree()

	m.localAABB = PointAABB(vertices[0])
	for _, v := range vertices[1:] {
		m.localAABB = m.localAABB.Merge(PointAABB(v))
	}

	return Shape{Kind: ShapeMesh, Mesh: m}
}

// TriangleAABB returns the bounding box of one triangle in mesh space.
func (m *TrimeshShape) TriangleAABB(tri int) AABB {
	t := m.Triangles[tri]
	box := PointAABB(m.Vertices[t[0]])
	box = box.Merge(PointAABB(m.Vertices[t[1]]))
	return box.Merge(PointAABB(m.Vertices[t[2]]))
}

// TriangleVertices returns the three corners of a triangle in mesh space.
func (m *TrimeshShape) TriangleVertices(tri int) [3]mgl64.Vec3 {
	t := m.Triangles[tri]
	return [3]mgl64.Vec3{m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]}
}

type edgeKey struct{ a, b int }

func makeEdgeKey(a, b int) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// markConcaveFeatures classifies every shared edge. An edge is convex when
// the neighboring triangle folds away from the face plane; concave and
// coplanar edges are flagged so the narrowphase never emits an edge normal
// across them.
func (m *TrimeshShape) markConcaveFeatures() {
	m.ConcaveEdge = make([][3]bool, len(m.Triangles))
	m.ConcaveVertex = make([][3]bool, len(m.Triangles))

	type edgeRef struct{ tri, edge int }
	edges := make(map[edgeKey][]edgeRef, len(m.Triangles)*3/2)
	for i, tri := range m.Triangles {
		for e := 0; e < 3; e++ {
			k := makeEdgeKey(tri[e], tri[(e+1)%3])
			edges[k] = append(edges[k], edgeRef{tri: i, edge: e})
		}
	}

	for _, refs := range edges {
		if len(refs) < 2 {
			continue // boundary edge, keeps its normal
		}
		for _, ref := range refs {
			for _, other := range refs {
				if other.tri == ref.tri {
					continue
				}
				// The neighbor's corner opposite the shared edge tells the
				// fold direction relative to this triangle's plane.
				opposite := m.oppositeVertex(other.tri, ref.tri)
				n := m.Normals[ref.tri]
				onPlane := m.Vertices[m.Triangles[ref.tri][0]]
				d := n.Dot(m.Vertices[opposite].Sub(onPlane))
				if d > -coplanarEdgeTolerance {
					m.ConcaveEdge[ref.tri][ref.edge] = true
				}
			}
		}
	}

	for i := range m.Triangles {
		for e := 0; e < 3; e++ {
			if m.ConcaveEdge[i][e] {
				m.ConcaveVertex[i][e] = true
				m.ConcaveVertex[i][(e+1)%3] = true
			}
		}
	}
}

// oppositeVertex finds the vertex of tri that is not shared with other.
func (m *TrimeshShape) oppositeVertex(tri, other int) int {
	shared := make(map[int]bool, 3)
	for _, v := range m.Triangles[other] {
		shared[v] = true
	}
	for _, v := range m.Triangles[tri] {
		if !shared[v] {
			return v
		}
	}
	return m.Triangles[tri][0]
}

// buildTree constructs a static median-split AABB tree over the triangles.
func (m *TrimeshShape) buildTree() {
	indices := make([]int32, len(m.Triangles))
	for i := range indices {
		indices[i] = int32(i)
	}
	m.nodes = m.nodes[:0]
	m.root = m.buildNode(indices)
}

func (m *TrimeshShape) buildNode(tris []int32) int32 {
	box := m.TriangleAABB(int(tris[0]))
	for _, t := range tris[1:] {
		box = box.Merge(m.TriangleAABB(int(t)))
	}

	id := int32(len(m.nodes))
	m.nodes = append(m.nodes, meshNode{aabb: box, tri: -1})

	if len(tris) == 1 {
		m.nodes[id].tri = tris[0]
		return id
	}

	// Split at the median along the widest extent.
	extent := box.Max.Sub(box.Min)
	axis := 0
	if extent.Y() > extent.X() {
		axis = 1
	}
	if extent.Z() > extent[axis] {
		axis = 2
	}
	sort.Slice(tris, func(i, j int) bool {
		ci := m.TriangleAABB(int(tris[i])).Center()
		cj := m.TriangleAABB(int(tris[j])).Center()
		return ci[axis] < cj[axis]
	})
	mid := len(tris) / 2

	left := m.buildNode(tris[:mid])
	right := m.buildNode(tris[mid:])
	m.nodes[id].left = left
	m.nodes[id].right = right
	return id
}

// QueryTriangles visits the indices of all triangles whose AABB intersects
// the query box, both in mesh space.
func (m *TrimeshShape) QueryTriangles(box AABB, visit func(tri int)) {
	if len(m.nodes) == 0 {
		return
	}
	var stack []int32
	stack = append(stack, m.root)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &m.nodes[id]
		if !node.aabb.Overlaps(box) {
			continue
		}
		if node.tri >= 0 {
			visit(int(node.tri))
			continue
		}
		stack = append(stack, node.left, node.right)
	}
}

func (m *TrimeshShape) transformedAABB(pos Position, orn Orientation) AABB {
	lo, hi := m.localAABB.Min, m.localAABB.Max
	corners := [8]mgl64.Vec3{
		{lo.X(), lo.Y(), lo.Z()},
		{hi.X(), lo.Y(), lo.Z()},
		{lo.X(), hi.Y(), lo.Z()},
		{hi.X(), hi.Y(), lo.Z()},
		{lo.X(), lo.Y(), hi.Z()},
		{hi.X(), lo.Y(), hi.Z()},
		{lo.X(), hi.Y(), hi.Z()},
		{hi.X(), hi.Y(), hi.Z()},
	}
	world := orn.Quat.Rotate(corners[0]).Add(pos.Vec3)
	box := AABB{Min: world, Max: world}
	for i := 1; i < 8; i++ {
		world = orn.Quat.Rotate(corners[i]).Add(pos.Vec3)
		box = box.Merge(PointAABB(world))
	}
	return box
}
