package island

import (
	"sort"

	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/constraint"
	"github.com/StellaSmith/edyn/graph"
	"github.com/StellaSmith/edyn/job"
	"github.com/StellaSmith/edyn/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// workerContext is the coordinator's bookkeeping for one island worker.
type workerContext struct {
	worker *Worker
	island registry.Entity // main-registry island entity

	// emap maps the worker's entity ids (as they appear in its deltas) to
	// main-registry ids.
	emap *registry.EntityMap

	// entities are the main-registry entities resident in the island.
	entities map[registry.Entity]struct{}
}

// Coordinator owns the main registry, the authoritative interaction graph
// and one message channel per worker. It splits and merges islands and
// routes user input to the right worker.
type Coordinator struct {
	reg   *registry.Registry
	graph *graph.Graph

	nodeFor map[registry.Entity]int32
	edgeFor map[registry.Entity]int32

	workers  map[uint64]*workerContext
	byIsland map[registry.Entity]*workerContext

	inbound *Queue

	dispatcher *job.Dispatcher
	clock      Clock
	settings   Settings

	events *Events

	newBodies      []registry.Entity
	newConstraints []registry.Entity
}

// NewCoordinator wires a coordinator over the main registry.
func NewCoordinator(reg *registry.Registry, dispatcher *job.Dispatcher, settings Settings) *Coordinator {
	c := &Coordinator{
		reg:        reg,
		graph:      graph.New(),
		nodeFor:    make(map[registry.Entity]int32),
		edgeFor:    make(map[registry.Entity]int32),
		workers:    make(map[uint64]*workerContext),
		byIsland:   make(map[registry.Entity]*workerContext),
		inbound:    &Queue{},
		dispatcher: dispatcher,
		settings:   settings,
		events:     NewEvents(),
	}

	registry.OnConstruct[actor.Kind](reg).Connect(func(r *registry.Registry, e registry.Entity) {
		if !r.Importing() {
			c.newBodies = append(c.newBodies, e)
		}
		if _, ok := c.nodeFor[e]; !ok {
			connecting := *registry.Get[actor.Kind](r, e) == actor.KindDynamic
			c.nodeFor[e] = c.graph.InsertNode(e, connecting)
		}
	})

	registry.OnConstruct[constraint.Manifold](reg).Connect(func(r *registry.Registry, e registry.Entity) {
		m := registry.Get[constraint.Manifold](r, e)
		c.addEdge(e, m.BodyA, m.BodyB)
		c.events.emit(CollisionStartedEvent{BodyA: m.BodyA, BodyB: m.BodyB})
	})
	registry.OnDestroy[constraint.Manifold](reg).Connect(func(r *registry.Registry, e registry.Entity) {
		m := registry.Get[constraint.Manifold](r, e)
		c.removeEdge(e)
		c.events.emit(CollisionEndedEvent{BodyA: m.BodyA, BodyB: m.BodyB})
	})

	registry.OnConstruct[constraint.Constraint](reg).Connect(func(r *registry.Registry, e registry.Entity) {
		con := registry.Get[constraint.Constraint](r, e)
		if con.Kind == constraint.KindContact {
			return
		}
		c.addEdge(e, con.BodyA, con.BodyB)
		if !r.Importing() {
			c.newConstraints = append(c.newConstraints, e)
		}
	})
	registry.OnDestroy[constraint.Constraint](reg).Connect(func(r *registry.Registry, e registry.Entity) {
		c.removeEdge(e)
	})

	reg.OnDestroyEntity(func(e registry.Entity) {
		if node, ok := c.nodeFor[e]; ok {
			c.graph.RemoveNode(node)
			delete(c.nodeFor, e)
		}
	})

	return c
}

// Events exposes the coordinator's event manager for subscriptions.
func (c *Coordinator) Events() *Events { return c.events }

// Clock returns the shared wall clock.
func (c *Coordinator) Clock() *Clock { return &c.clock }

// IslandCount returns the number of live islands.
func (c *Coordinator) IslandCount() int { return len(c.workers) }

func (c *Coordinator) addEdge(e, bodyA, bodyB registry.Entity) {
	nodeA, okA := c.nodeFor[bodyA]
	nodeB, okB := c.nodeFor[bodyB]
	if !okA || !okB {
		return
	}
	c.edgeFor[e] = c.graph.InsertEdge(e, nodeA, nodeB)
}

func (c *Coordinator) removeEdge(e registry.Entity) {
	if edge, ok := c.edgeFor[e]; ok {
		c.graph.RemoveEdge(edge)
		delete(c.edgeFor, e)
	}
}

// Update is one coordinator tick: advance the wall clock, apply worker
// deltas, assign fresh bodies and constraints to islands, merge islands
// that came into contact, and flush events.
func (c *Coordinator) Update(dt float64) {
	c.clock.Advance(dt)

	// The wall clock is virtual: nudge every worker so due steps run even
	// when real time and simulated time diverge. The reschedule counter
	// collapses redundant nudges.
	for _, ctx := range c.workers {
		ctx.worker.Reschedule()
	}

	c.drainDeltas()
	c.initNewBodies()
	c.initNewConstraints()
	c.mergeTouchingIslands()
	c.refreshPresentState()
	c.events.flush()
}

// drainDeltas applies incoming worker deltas under the importing flag and
// handles split requests.
func (c *Coordinator) drainDeltas() {
	for _, m := range c.inbound.Drain() {
		switch msg := m.(type) {
		case MsgSync:
			c.applySync(msg)
		case MsgSplitIsland:
			c.splitIsland(msg.Worker)
		}
	}
}

func (c *Coordinator) applySync(msg MsgSync) {
	ctx, ok := c.workers[msg.Worker]
	if !ok {
		return // worker already terminated in a merge
	}

	wasAsleep := registry.Has[actor.Sleeping](c.reg, ctx.island)

	msg.Delta.ImportInto(c.reg, ctx.emap)

	// Answer with the main ids allocated for worker-created entities, and
	// track their residency.
	var pairs []EntityPair
	for _, remote := range msg.Delta.CreatedEntities {
		local := ctx.emap.Local(remote)
		if local == registry.Null {
			continue
		}
		ctx.entities[local] = struct{}{}
		c.setResident(local, ctx.island)
		if isLocalFlagged(remote) {
			pairs = append(pairs, EntityPair{Main: local, Worker: unflagLocal(remote)})
		}
	}
	if len(pairs) > 0 {
		ctx.worker.Send(MsgEntityMap{Pairs: pairs})
	}
	for e := range ctx.entities {
		if !c.reg.Valid(e) {
			delete(ctx.entities, e)
		}
	}

	isAsleep := registry.Has[actor.Sleeping](c.reg, ctx.island)
	if !wasAsleep && isAsleep {
		c.events.emit(IslandSleepEvent{Island: ctx.island})
	} else if wasAsleep && !isAsleep {
		c.events.emit(IslandWakeEvent{Island: ctx.island})
	}
}

func (c *Coordinator) setResident(e, island registry.Entity) {
	res := registry.TryGet[Resident](c.reg, e)
	if res == nil {
		registry.Assign(c.reg, e, Resident{Islands: map[registry.Entity]struct{}{island: {}}})
		return
	}
	if registry.Has[actor.Procedural](c.reg, e) {
		// A procedural entity belongs to exactly one island.
		for k := range res.Islands {
			delete(res.Islands, k)
		}
	}
	res.Islands[island] = struct{}{}
}

// initNewBodies hands bodies created in the main registry to workers.
// Each new dynamic body seeds its own island; non-procedural bodies are
// shared with every worker.
func (c *Coordinator) initNewBodies() {
	bodies := c.newBodies
	c.newBodies = nil

	for _, e := range bodies {
		if !c.reg.Valid(e) {
			continue
		}
		if *registry.Get[actor.Kind](c.reg, e) == actor.KindDynamic {
			c.createIslandFor([]registry.Entity{e})
		} else {
			snap := c.snapshotEntities([]registry.Entity{e})
			for _, ctx := range c.workers {
				c.sendSnapshot(ctx, snap)
				ctx.entities[e] = struct{}{}
				c.setResident(e, ctx.island)
			}
		}
	}
}

// initNewConstraints routes user-created constraints. A constraint whose
// bodies live in different islands merges them first.
func (c *Coordinator) initNewConstraints() {
	cons := c.newConstraints
	c.newConstraints = nil

	for _, e := range cons {
		if !c.reg.Valid(e) {
			continue
		}
		con := registry.Get[constraint.Constraint](c.reg, e)
		ctxA := c.islandOfBody(con.BodyA)
		ctxB := c.islandOfBody(con.BodyB)
		if ctxA == nil && ctxB == nil {
			continue
		}
		target := ctxA
		if target == nil {
			target = ctxB
		}
		if ctxA != nil && ctxB != nil && ctxA != ctxB {
			target = c.merge(ctxA, ctxB)
		}
		snap := c.snapshotEntities([]registry.Entity{e})
		c.sendSnapshot(target, snap)
		target.entities[e] = struct{}{}
		c.setResident(e, target.island)
	}
}

// islandOfBody resolves the worker simulating a procedural body.
func (c *Coordinator) islandOfBody(e registry.Entity) *workerContext {
	res := registry.TryGet[Resident](c.reg, e)
	if res == nil || !registry.Has[actor.Procedural](c.reg, e) {
		return nil
	}
	for island := range res.Islands {
		if ctx, ok := c.byIsland[island]; ok {
			return ctx
		}
	}
	return nil
}

// createIslandFor spawns a worker seeded with the given procedural
// entities plus every non-procedural body.
func (c *Coordinator) createIslandFor(entities []registry.Entity) *workerContext {
	islandEntity := c.reg.Create()
	registry.Assign(c.reg, islandEntity, Island{Timestamp: c.clock.Now()})

	w := NewWorker(c.inbound, c.dispatcher, &c.clock, c.settings)
	ctx := &workerContext{
		worker:   w,
		island:   islandEntity,
		emap:     registry.NewEntityMap(),
		entities: make(map[registry.Entity]struct{}),
	}
	c.workers[w.ID()] = ctx
	c.byIsland[islandEntity] = ctx

	seed := []registry.Entity{islandEntity}
	seed = append(seed, entities...)
	registry.Each(c.reg, func(e registry.Entity, kind *actor.Kind) {
		if *kind != actor.KindDynamic {
			seed = append(seed, e)
		}
	})

	for _, e := range seed {
		ctx.entities[e] = struct{}{}
		c.setResident(e, islandEntity)
	}

	c.sendSnapshot(ctx, c.snapshotEntities(seed))
	w.Start()
	return ctx
}

// snapshotKinds is every component kind replicated when handing entities
// between registries.
func snapshotKinds() []registry.ComponentKind {
	kinds := actor.BodyKinds()
	kinds = append(kinds, constraint.Kinds()...)
	kinds = append(kinds, KindIsland, KindTreeView)
	return kinds
}

func (c *Coordinator) snapshotEntities(entities []registry.Entity) registry.Snapshot {
	return registry.TakeSnapshot(c.reg, entities, snapshotKinds())
}

// sendSnapshot converts a main-registry snapshot into a delta message for
// the worker, ids translated to the ones the worker knows.
func (c *Coordinator) sendSnapshot(ctx *workerContext, snap registry.Snapshot) {
	// Seeded entities travel under their main ids; record the identity
	// mapping so the worker's sync deltas resolve them directly.
	for _, e := range snap.Entities {
		if ctx.emap.Local(e) == registry.Null {
			ctx.emap.Insert(e, e)
		}
	}

	var d registry.Delta
	d.CreatedEntities = append(d.CreatedEntities, snap.Entities...)
	for _, pool := range snap.Pools {
		pd := registry.PoolDelta{Kind: pool.ComponentIndex}
		for i, owner := range pool.Owners {
			pd.Created = append(pd.Created, registry.ComponentValue{Entity: owner, Value: pool.Values[i]})
		}
		d.Pools = append(d.Pools, pd)
	}
	ctx.worker.Send(MsgDelta{Delta: d})
}

// mergeTouchingIslands merges islands whose tree views overlap: a new edge
// is about to form between bodies simulated by different workers, which
// only one worker can own.
func (c *Coordinator) mergeTouchingIslands() {
	type view struct {
		ctx  *workerContext
		tv   *TreeView
		aabb actor.AABB
	}

	var views []view
	for _, ctx := range c.workers {
		tv := registry.TryGet[TreeView](c.reg, ctx.island)
		if tv == nil {
			continue
		}
		aabb, ok := tv.AggregateAABB()
		if !ok {
			continue
		}
		views = append(views, view{ctx: ctx, tv: tv, aabb: aabb.Inset(-c.settings.AABBOffset)})
	}

	for i := 0; i < len(views); i++ {
		for j := i + 1; j < len(views); j++ {
			if views[i].ctx == views[j].ctx {
				continue
			}
			if !views[i].aabb.Overlaps(views[j].aabb) {
				continue
			}
			if !leavesOverlap(views[i].tv, views[j].tv, c.settings.AABBOffset) {
				continue
			}
			merged := c.merge(views[i].ctx, views[j].ctx)
			// Rescan: contexts changed under us.
			for k := range views {
				if views[k].ctx == views[i].ctx || views[k].ctx == views[j].ctx {
					views[k].ctx = merged
				}
			}
		}
	}
}

func leavesOverlap(a, b *TreeView, offset float64) bool {
	for _, la := range a.Leaves {
		inflated := la.AABB.Inset(-offset)
		for _, lb := range b.Leaves {
			if inflated.Overlaps(lb.AABB) {
				return true
			}
		}
	}
	return false
}

// merge folds the smaller island into the larger one: the smaller
// worker's entities are snapshotted into a delta for the larger worker,
// then the smaller worker terminates.
func (c *Coordinator) merge(a, b *workerContext) *workerContext {
	if a == b {
		return a
	}
	big, small := a, b
	if len(small.entities) > len(big.entities) {
		big, small = small, big
	}

	var moved []registry.Entity
	for e := range small.entities {
		if !c.reg.Valid(e) {
			continue
		}
		if _, already := big.entities[e]; already {
			continue
		}
		if e == small.island {
			continue
		}
		moved = append(moved, e)
	}
	// Map iteration order is random; keep hand-off order stable so the
	// receiving worker's pools iterate the same way on every run.
	sort.Slice(moved, func(i, j int) bool { return moved[i] < moved[j] })

	c.sendSnapshot(big, c.snapshotEntities(moved))
	for _, e := range moved {
		big.entities[e] = struct{}{}
		c.setResident(e, big.island)
	}

	c.events.emit(IslandMergeEvent{Into: big.island, From: small.island})
	c.destroyWorker(small)
	return big
}

func (c *Coordinator) destroyWorker(ctx *workerContext) {
	delete(c.workers, ctx.worker.ID())
	delete(c.byIsland, ctx.island)
	if c.reg.Valid(ctx.island) {
		c.reg.Destroy(ctx.island)
	}
	ctx.worker.Terminate()
}

// splitIsland recomputes the connected components of a worker's subgraph;
// more than one component spawns new workers for the extra parts.
func (c *Coordinator) splitIsland(workerID uint64) {
	ctx, ok := c.workers[workerID]
	if !ok {
		return
	}

	components := c.graph.ConnectedComponents()

	// Keep only the components whose bodies live in this island.
	var mine []graph.Component
	for _, comp := range components {
		for _, node := range comp.Nodes {
			e := c.graph.NodeEntity(node)
			if _, resident := ctx.entities[e]; resident && registry.Has[actor.Procedural](c.reg, e) {
				mine = append(mine, comp)
				break
			}
		}
	}
	if len(mine) <= 1 {
		return
	}

	// The largest component stays with the existing worker; the rest move
	// to fresh islands.
	largest := 0
	for i := 1; i < len(mine); i++ {
		if len(mine[i].Nodes) > len(mine[largest].Nodes) {
			largest = i
		}
	}

	for i, comp := range mine {
		if i == largest {
			continue
		}

		var procedural []registry.Entity
		for _, node := range comp.Nodes {
			e := c.graph.NodeEntity(node)
			if registry.Has[actor.Procedural](c.reg, e) {
				procedural = append(procedural, e)
			}
		}
		if len(procedural) == 0 {
			continue
		}

		// Remove the moved bodies from the old worker, then seed the new
		// island with them.
		var removal registry.Delta
		for _, e := range procedural {
			delete(ctx.entities, e)
			removal.DestroyedEntities = append(removal.DestroyedEntities, e)
		}
		ctx.worker.Send(MsgDelta{Delta: removal})

		newCtx := c.createIslandFor(procedural)
		c.events.emit(IslandSplitEvent{From: ctx.island, Into: newCtx.island})
	}
}

// refreshPresentState feeds the render-facing present transforms from the
// latest replicated state.
func (c *Coordinator) refreshPresentState() {
	registry.View2(c.reg, func(e registry.Entity, pos *actor.Position, _ *actor.Procedural) {
		registry.Assign(c.reg, e, actor.PresentPosition{Vec3: pos.Vec3})
		orn := registry.Get[actor.Orientation](c.reg, e)
		registry.Assign(c.reg, e, actor.PresentOrientation{Quat: orn.Quat})
	})
}

// velocityDelta builds a delta carrying an entity's current velocities.
func (c *Coordinator) velocityDelta(e registry.Entity) registry.Delta {
	var d registry.Delta
	for _, k := range []registry.ComponentKind{actor.KindLinVel, actor.KindAngVel} {
		if v, ok := registry.GetKind(c.reg, e, k); ok {
			d.Pools = append(d.Pools, registry.PoolDelta{
				Kind:    k,
				Updated: []registry.ComponentValue{{Entity: e, Value: v}},
			})
		}
	}
	return d
}

// pushVelocity ships the entity's velocities to its worker and wakes the
// island.
func (c *Coordinator) pushVelocity(e registry.Entity) {
	ctx := c.islandOfBody(e)
	if ctx == nil {
		return
	}
	ctx.worker.Send(MsgDelta{Delta: c.velocityDelta(e)})
	ctx.worker.Send(MsgWakeUp{})
}

// ApplyImpulse adds an instantaneous impulse to a dynamic body.
func (c *Coordinator) ApplyImpulse(e registry.Entity, impulse, point mgl64.Vec3) {
	mass := registry.TryGet[actor.Mass](c.reg, e)
	if mass == nil || mass.Inv == 0 {
		return
	}
	linvel := registry.Get[actor.LinVel](c.reg, e)
	linvel.Vec3 = linvel.Vec3.Add(impulse.Mul(mass.Inv))

	if inertia := registry.TryGet[actor.Inertia](c.reg, e); inertia != nil {
		pos := registry.Get[actor.Position](c.reg, e)
		torque := point.Sub(pos.Vec3).Cross(impulse)
		angvel := registry.Get[actor.AngVel](c.reg, e)
		angvel.Vec3 = angvel.Vec3.Add(inertia.WorldInv.Mul3x1(torque))
	}

	c.pushVelocity(e)
}

// SetVelocity overwrites a body's velocities.
func (c *Coordinator) SetVelocity(e registry.Entity, linvel, angvel mgl64.Vec3) {
	registry.Get[actor.LinVel](c.reg, e).Vec3 = linvel
	registry.Get[actor.AngVel](c.reg, e).Vec3 = angvel
	c.pushVelocity(e)
}

// SetIslandPaused pauses or resumes the island containing the entity.
func (c *Coordinator) SetIslandPaused(e registry.Entity, paused bool) {
	if ctx := c.islandOfBody(e); ctx != nil {
		ctx.worker.Send(MsgSetPaused{Paused: paused})
	}
}

// SetPaused pauses or resumes every island.
func (c *Coordinator) SetPaused(paused bool) {
	for _, ctx := range c.workers {
		ctx.worker.Send(MsgSetPaused{Paused: paused})
	}
}

// StepSimulation runs one step on every paused island.
func (c *Coordinator) StepSimulation() {
	for _, ctx := range c.workers {
		ctx.worker.Send(MsgStepSimulation{})
	}
}

// WakeUpIsland wakes the island containing the given entity.
func (c *Coordinator) WakeUpIsland(e registry.Entity) {
	res := registry.TryGet[Resident](c.reg, e)
	if res == nil {
		return
	}
	for island := range res.Islands {
		if ctx, ok := c.byIsland[island]; ok {
			ctx.worker.Send(MsgWakeUp{})
		}
	}
}

// Terminate shuts down every worker and waits for them.
func (c *Coordinator) Terminate() {
	for _, ctx := range c.workers {
		ctx.worker.Terminate()
	}
	for _, ctx := range c.workers {
		ctx.worker.Join()
	}
	c.workers = make(map[uint64]*workerContext)
	c.byIsland = make(map[registry.Entity]*workerContext)
}
