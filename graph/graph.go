// Package graph implements the interaction graph: nodes are rigid bodies,
// edges are constraints or contact manifolds. The island coordinator and
// workers query its connected components to decide how to partition the
// simulation. Nodes and edges live in pooled arrays addressed by integer
// handles; removals free-list the slot for reuse.
package graph

import "github.com/StellaSmith/edyn/registry"

const null int32 = -1

type node struct {
	entity registry.Entity
	// connecting reports whether the node may bridge islands (dynamic
	// bodies). Non-connecting nodes (static, kinematic) can belong to many
	// components at once and never merge them.
	connecting bool
	firstEdge  int32
	used       bool
	next       int32 // free list
}

type edge struct {
	entity registry.Entity
	nodeA  int32
	nodeB  int32
	nextA  int32 // next edge around nodeA
	nextB  int32 // next edge around nodeB
	used   bool
	next   int32 // free list
}

// Graph is an adjacency-list interaction graph.
type Graph struct {
	nodes []node
	edges []edge

	freeNode int32
	freeEdge int32

	nodeCount int
	edgeCount int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{freeNode: null, freeEdge: null}
}

// NodeCount returns the number of live nodes.
func (g *Graph) NodeCount() int { return g.nodeCount }

// EdgeCount returns the number of live edges.
func (g *Graph) EdgeCount() int { return g.edgeCount }

// InsertNode adds a node carrying the entity. Connecting nodes (dynamic
// bodies) propagate island membership; non-connecting ones do not.
func (g *Graph) InsertNode(e registry.Entity, connecting bool) int32 {
	var id int32
	if g.freeNode != null {
		id = g.freeNode
		g.freeNode = g.nodes[id].next
	} else {
		g.nodes = append(g.nodes, node{})
		id = int32(len(g.nodes) - 1)
	}
	g.nodes[id] = node{entity: e, connecting: connecting, firstEdge: null, used: true, next: null}
	g.nodeCount++
	return id
}

// RemoveNode frees a node. All of its edges must have been removed first.
func (g *Graph) RemoveNode(id int32) {
	if g.nodes[id].firstEdge != null {
		panic("graph: removing node with live edges")
	}
	g.nodes[id].used = false
	g.nodes[id].next = g.freeNode
	g.freeNode = id
	g.nodeCount--
}

// NodeEntity returns the entity stored at a node.
func (g *Graph) NodeEntity(id int32) registry.Entity {
	return g.nodes[id].entity
}

// EdgeEntity returns the entity stored at an edge.
func (g *Graph) EdgeEntity(id int32) registry.Entity {
	return g.edges[id].entity
}

// EdgeNodes returns the two endpoints of an edge.
func (g *Graph) EdgeNodes(id int32) (int32, int32) {
	return g.edges[id].nodeA, g.edges[id].nodeB
}

// InsertEdge links two nodes with an edge carrying the entity.
func (g *Graph) InsertEdge(e registry.Entity, nodeA, nodeB int32) int32 {
	var id int32
	if g.freeEdge != null {
		id = g.freeEdge
		g.freeEdge = g.edges[id].next
	} else {
		g.edges = append(g.edges, edge{})
		id = int32(len(g.edges) - 1)
	}
	g.edges[id] = edge{
		entity: e,
		nodeA:  nodeA,
		nodeB:  nodeB,
		nextA:  g.nodes[nodeA].firstEdge,
		nextB:  g.nodes[nodeB].firstEdge,
		used:   true,
		next:   null,
	}
	g.nodes[nodeA].firstEdge = id
	g.nodes[nodeB].firstEdge = id
	g.edgeCount++
	return id
}

// RemoveEdge unlinks and frees an edge.
func (g *Graph) RemoveEdge(id int32) {
	e := &g.edges[id]
	g.unlink(e.nodeA, id)
	g.unlink(e.nodeB, id)
	e.used = false
	e.next = g.freeEdge
	g.freeEdge = id
	g.edgeCount--
}

func (g *Graph) nextAround(edgeID, nodeID int32) int32 {
	if g.edges[edgeID].nodeA == nodeID {
		return g.edges[edgeID].nextA
	}
	return g.edges[edgeID].nextB
}

func (g *Graph) setNextAround(edgeID, nodeID, next int32) {
	if g.edges[edgeID].nodeA == nodeID {
		g.edges[edgeID].nextA = next
	} else {
		g.edges[edgeID].nextB = next
	}
}

func (g *Graph) unlink(nodeID, edgeID int32) {
	cur := g.nodes[nodeID].firstEdge
	if cur == edgeID {
		g.nodes[nodeID].firstEdge = g.nextAround(edgeID, nodeID)
		return
	}
	for cur != null {
		next := g.nextAround(cur, nodeID)
		if next == edgeID {
			g.setNextAround(cur, nodeID, g.nextAround(edgeID, nodeID))
			return
		}
		cur = next
	}
}

// EachEdgeAround visits every edge incident to a node.
func (g *Graph) EachEdgeAround(nodeID int32, visit func(edgeID int32)) {
	for cur := g.nodes[nodeID].firstEdge; cur != null; cur = g.nextAround(cur, nodeID) {
		visit(cur)
	}
}

// OtherNode returns the endpoint of the edge that is not nodeID.
func (g *Graph) OtherNode(edgeID, nodeID int32) int32 {
	if g.edges[edgeID].nodeA == nodeID {
		return g.edges[edgeID].nodeB
	}
	return g.edges[edgeID].nodeA
}

// Component is one connected component: the nodes and the edges it spans.
type Component struct {
	Nodes []int32
	Edges []int32
}

// ConnectedComponents decomposes the graph by breadth-first search from
// every unvisited connecting node. Non-connecting nodes are listed in each
// component that touches them but never traversed through, so a static body
// shared by two separate stacks does not merge their components.
func (g *Graph) ConnectedComponents() []Component {
	visited := make([]bool, len(g.nodes))
	visitedEdge := make([]bool, len(g.edges))
	var components []Component

	for start := range g.nodes {
		if !g.nodes[start].used || visited[start] || !g.nodes[start].connecting {
			continue
		}

		var comp Component
		queue := []int32{int32(start)}
		visited[start] = true
		inComp := map[int32]bool{int32(start): true}

		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			comp.Nodes = append(comp.Nodes, id)

			g.EachEdgeAround(id, func(edgeID int32) {
				if !visitedEdge[edgeID] {
					visitedEdge[edgeID] = true
					comp.Edges = append(comp.Edges, edgeID)
				}
				other := g.OtherNode(edgeID, id)
				if inComp[other] {
					return
				}
				if g.nodes[other].connecting {
					if !visited[other] {
						visited[other] = true
						inComp[other] = true
						queue = append(queue, other)
					}
				} else {
					// Non-connecting nodes join the component but are not
					// traversed through, so a shared static body never
					// merges two islands.
					inComp[other] = true
					comp.Nodes = append(comp.Nodes, other)
				}
			})
		}

		components = append(components, comp)
	}

	// Isolated connecting nodes already formed their own components above;
	// stray non-connecting nodes belong to no island.
	return components
}

// IsSingleConnectedComponent reports whether all connecting nodes belong to
// one component.
func (g *Graph) IsSingleConnectedComponent() bool {
	return len(g.ConnectedComponents()) <= 1
}
