package island

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/broadphase"
	"github.com/StellaSmith/edyn/constraint"
	"github.com/StellaSmith/edyn/graph"
	"github.com/StellaSmith/edyn/job"
	"github.com/StellaSmith/edyn/narrowphase"
	"github.com/StellaSmith/edyn/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// External system hooks. Written once at startup, read-only afterwards;
// every worker invokes them on its own registry.
var (
	externalInit     atomic.Pointer[func(*registry.Registry)]
	externalPreStep  atomic.Pointer[func(*registry.Registry)]
	externalPostStep atomic.Pointer[func(*registry.Registry)]
)

// SetExternalSystemInit installs the hook run once when a worker starts.
func SetExternalSystemInit(fn func(*registry.Registry)) { externalInit.Store(&fn) }

// SetExternalSystemPreStep installs the hook run before each step.
func SetExternalSystemPreStep(fn func(*registry.Registry)) { externalPreStep.Store(&fn) }

// SetExternalSystemPostStep installs the hook run after each step.
func SetExternalSystemPostStep(fn func(*registry.Registry)) { externalPostStep.Store(&fn) }

func callHook(p *atomic.Pointer[func(*registry.Registry)], r *registry.Registry) {
	if fn := p.Load(); fn != nil {
		(*fn)(r)
	}
}

type workerState uint8

const (
	stateInit workerState = iota
	stateStep
	stateBeginStep
	stateSolve
	stateBroadphase
	stateBroadphaseAsync
	stateNarrowphase
	stateNarrowphaseAsync
	stateFinishStep
)

// liveWorkers resolves a job payload back to its worker on the target
// thread; jobs themselves carry only the encoded id.
var liveWorkers sync.Map

var nextWorkerID atomic.Uint64

// Worker simulates one island. It owns a private registry mutated only
// from its own update jobs; the coordinator talks to it exclusively
// through the message queue.
type Worker struct {
	id  uint64
	reg *registry.Registry

	bphase *broadphase.Broadphase
	solver constraint.Solver

	// Local interaction graph, used to decide after a topology change
	// whether the island must split.
	graph   *graph.Graph
	nodeFor map[registry.Entity]int32
	edgeFor map[registry.Entity]int32

	island registry.Entity
	emap   *registry.EntityMap // coordinator ids -> local ids

	in  *Queue
	out *Queue

	dispatcher *job.Dispatcher
	clock      *Clock
	settings   Settings

	state workerState

	// rescheduleCounter guards against duplicate enqueues: a reschedule
	// dispatches only on the 0 -> 1 transition, and update consumes the
	// whole count at entry.
	rescheduleCounter atomic.Int32

	// running keeps update single-threaded when a delayed job races a
	// counter-guarded one; the loser's wakeup is recovered by the next
	// coordinator nudge.
	running atomic.Bool

	// asyncPending is raised while a parallel-for phase is in flight, so
	// a stray wakeup cannot run the serialized merge early.
	asyncPending atomic.Bool

	paused   bool
	stepOnce bool
	sleeping bool

	sleepTimer    float64
	stepStartTime float64

	topologyChanged bool
	splitPending    bool
	splitDeadline   float64

	destroyedEntities []registry.Entity
	newManifolds      []registry.Entity

	terminating atomic.Bool
	mu          sync.Mutex
	cond        *sync.Cond
	terminated  bool
}

// NewWorker creates a worker for a fresh island. It does not run until
// Start is called.
func NewWorker(out *Queue, dispatcher *job.Dispatcher, clock *Clock, settings Settings) *Worker {
	w := &Worker{
		id:         nextWorkerID.Add(1),
		island:     registry.Null,
		reg:        registry.New(),
		graph:      graph.New(),
		nodeFor:    make(map[registry.Entity]int32),
		edgeFor:    make(map[registry.Entity]int32),
		emap:       registry.NewEntityMap(),
		in:         &Queue{},
		out:        out,
		dispatcher: dispatcher,
		clock:      clock,
		settings:   settings,
		state:      stateInit,
	}
	w.cond = sync.NewCond(&w.mu)
	w.bphase = broadphase.New(w.reg)
	w.bphase.AABBOffset = settings.AABBOffset
	w.bphase.SeparationThreshold = settings.SeparationThreshold
	w.solver.Iterations = settings.Iterations
	w.wireSignals()
	liveWorkers.Store(w.id, w)
	return w
}

// ID returns the worker's handle used in messages.
func (w *Worker) ID() uint64 { return w.id }

// Send enqueues a message and wakes the worker.
func (w *Worker) Send(m Message) {
	w.in.Push(m)
	w.Reschedule()
}

// Start schedules the worker's first update.
func (w *Worker) Start() {
	w.Reschedule()
}

func (w *Worker) job() job.Job {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, w.id)
	return job.Job{Data: data, Fn: workerUpdateJob}
}

func workerUpdateJob(data []byte) {
	id := binary.LittleEndian.Uint64(data)
	if v, ok := liveWorkers.Load(id); ok {
		v.(*Worker).update()
	}
}

func (w *Worker) asyncDoneJob() job.Job {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, w.id)
	return job.Job{Data: data, Fn: workerAsyncDoneJob}
}

func workerAsyncDoneJob(data []byte) {
	id := binary.LittleEndian.Uint64(data)
	if v, ok := liveWorkers.Load(id); ok {
		w := v.(*Worker)
		w.asyncPending.Store(false)
		w.update()
	}
}

// Reschedule requests an update; only the 0 -> 1 transition enqueues.
func (w *Worker) Reschedule() {
	if w.rescheduleCounter.Add(1) == 1 {
		w.dispatcher.Dispatch(w.job())
	}
}

// Terminate asks the worker to shut down at its next invocation.
func (w *Worker) Terminate() {
	w.terminating.Store(true)
	w.Reschedule()
}

// Join blocks until the worker has terminated.
func (w *Worker) Join() {
	w.mu.Lock()
	for !w.terminated {
		w.cond.Wait()
	}
	w.mu.Unlock()
}

func (w *Worker) doTerminate() {
	liveWorkers.Delete(w.id)
	w.mu.Lock()
	w.terminated = true
	w.cond.Broadcast()
	w.mu.Unlock()
}

// wireSignals connects the registry observers maintaining the local graph,
// the continuous markers and the delta bookkeeping.
func (w *Worker) wireSignals() {
	r := w.reg

	registry.OnConstruct[actor.Procedural](r).Connect(func(r *registry.Registry, e registry.Entity) {
		registry.Assign(r, e, registry.Continuous{Kinds: actor.ContinuousKinds()})
	})

	registry.OnConstruct[actor.Kind](r).Connect(func(r *registry.Registry, e registry.Entity) {
		if _, ok := w.nodeFor[e]; !ok {
			connecting := *registry.Get[actor.Kind](r, e) == actor.KindDynamic
			w.nodeFor[e] = w.graph.InsertNode(e, connecting)
		}
	})

	registry.OnConstruct[constraint.Manifold](r).Connect(func(r *registry.Registry, e registry.Entity) {
		m := registry.Get[constraint.Manifold](r, e)
		w.addEdge(e, m.BodyA, m.BodyB)
		w.newManifolds = append(w.newManifolds, e)
		if !r.Importing() {
			registry.MarkNew(r, e)
			registry.MarkCreated(r, e, constraint.KindOfManifold)
		}
	})
	registry.OnDestroy[constraint.Manifold](r).Connect(func(r *registry.Registry, e registry.Entity) {
		w.removeEdge(e)
	})

	registry.OnConstruct[constraint.Constraint](r).Connect(func(r *registry.Registry, e registry.Entity) {
		c := registry.Get[constraint.Constraint](r, e)
		if c.Kind != constraint.KindContact {
			w.addEdge(e, c.BodyA, c.BodyB)
		}
	})
	registry.OnDestroy[constraint.Constraint](r).Connect(func(r *registry.Registry, e registry.Entity) {
		w.removeEdge(e)
	})

	r.OnDestroyEntity(func(e registry.Entity) {
		if node, ok := w.nodeFor[e]; ok {
			w.graph.RemoveNode(node)
			delete(w.nodeFor, e)
		}
		if !r.Importing() {
			w.destroyedEntities = append(w.destroyedEntities, e)
		}
	})
}

func (w *Worker) addEdge(e, bodyA, bodyB registry.Entity) {
	nodeA, okA := w.nodeFor[bodyA]
	nodeB, okB := w.nodeFor[bodyB]
	if !okA || !okB {
		return
	}
	w.edgeFor[e] = w.graph.InsertEdge(e, nodeA, nodeB)
}

func (w *Worker) removeEdge(e registry.Entity) {
	if edge, ok := w.edgeFor[e]; ok {
		w.graph.RemoveEdge(edge)
		delete(w.edgeFor, e)
		w.topologyChanged = true
	}
}

// update is the single entry point driven by the job dispatcher. It runs
// state transitions until it must suspend: either waiting for the next
// step time or for an async phase to complete.
func (w *Worker) update() {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		w.running.Store(false)
		// A wakeup that lost the running race above left the counter
		// raised with no job in flight; redispatch so it is not lost.
		if w.rescheduleCounter.Load() > 0 && !w.terminating.Load() {
			w.dispatcher.Dispatch(w.job())
		}
	}()

	if w.terminating.Load() {
		w.doTerminate()
		return
	}

	observed := w.rescheduleCounter.Swap(0)

	for {
		switch w.state {
		case stateInit:
			w.runInit()
			w.state = stateStep

		case stateStep:
			w.processMessages()
			if w.terminating.Load() {
				w.doTerminate()
				return
			}
			if w.paused && !w.stepOnce {
				return // a message will wake us
			}
			if w.sleeping {
				return
			}
			now := w.clock.Now()
			due := w.islandTimestamp() + w.settings.FixedDt
			if !w.stepOnce && now < due {
				if observed > 1 {
					// An external event arrived during this update; run
					// again immediately instead of waiting out the timer.
					w.Reschedule()
				} else {
					w.rescheduleAfter(due - now)
				}
				return
			}
			w.stepOnce = false
			w.stepStartTime = now
			w.state = stateBeginStep

		case stateBeginStep:
			callHook(&externalPreStep, w.reg)
			w.initNewManifolds()
			w.state = stateSolve

		case stateSolve:
			w.solver.Step(w.reg, w.settings.FixedDt)
			w.state = stateBroadphase

		case stateBroadphase:
			if w.bphase.Parallelizable() {
				w.state = stateBroadphaseAsync
				w.asyncPending.Store(true)
				w.bphase.BeginAsync(w.dispatcher, w.asyncDoneJob())
				return
			}
			w.bphase.Update(1)
			w.state = stateNarrowphase

		case stateBroadphaseAsync:
			if w.asyncPending.Load() {
				return // a stray wakeup; the completion job resumes us
			}
			w.bphase.FinishAsync()
			w.state = stateNarrowphase

		case stateNarrowphase:
			if narrowphase.Parallelizable(w.reg) {
				w.state = stateNarrowphaseAsync
				w.asyncPending.Store(true)
				narrowphase.BeginAsync(w.reg, w.dispatcher, w.asyncDoneJob())
				return
			}
			narrowphase.Update(w.reg, 1)
			w.state = stateFinishStep

		case stateNarrowphaseAsync:
			if w.asyncPending.Load() {
				return
			}
			narrowphase.FinishAsync(w.reg)
			w.state = stateFinishStep

		case stateFinishStep:
			w.finishStep()
			w.state = stateStep
		}
	}
}

func (w *Worker) rescheduleAfter(delay float64) {
	w.dispatcher.DispatchAfter(time.Duration(delay*float64(time.Second)), w.job())
	// The delayed job bypasses Reschedule so an external Reschedule can
	// still slip in front of it; update's entry swap absorbs both.
}

// runInit drains the seed messages, runs the external init hook, performs
// one broadphase pass and publishes the initial state.
func (w *Worker) runInit() {
	w.processMessages()

	if w.island == registry.Null || !w.reg.Valid(w.island) {
		// A brand-new island with no imported island entity yet.
		w.island = w.reg.Create()
		registry.Assign(w.reg, w.island, Island{Timestamp: w.clock.Now()})
		registry.MarkNew(w.reg, w.island)
		registry.MarkCreated(w.reg, w.island, KindIsland)
	}

	callHook(&externalInit, w.reg)

	w.bphase.Update(1)
	w.initNewManifolds()
	w.publishTreeView()
	w.sync()
}

func (w *Worker) islandTimestamp() float64 {
	return registry.Get[Island](w.reg, w.island).Timestamp
}

func (w *Worker) processMessages() {
	for _, m := range w.in.Drain() {
		switch msg := m.(type) {
		case MsgDelta:
			msg.Delta.ImportInto(w.reg, w.emap)
			w.adoptIslandEntity()
		case MsgEntityMap:
			for _, p := range msg.Pairs {
				w.emap.Insert(p.Main, p.Worker)
			}
		case MsgWakeUp:
			w.wake()
		case MsgSetPaused:
			w.paused = msg.Paused
			if !w.paused && w.island != registry.Null && w.reg.Valid(w.island) {
				// Resume from now instead of replaying the paused time.
				registry.Get[Island](w.reg, w.island).Timestamp = w.clock.Now()
			}
		case MsgStepSimulation:
			w.stepOnce = true
		}
	}
}

// adoptIslandEntity resolves the island entity imported from the
// coordinator, if one arrived.
func (w *Worker) adoptIslandEntity() {
	if w.island != registry.Null && w.reg.Valid(w.island) {
		return
	}
	registry.Each(w.reg, func(e registry.Entity, _ *Island) {
		w.island = e
	})
}

// initNewManifolds generates contact points for manifolds imported or
// created since the previous step.
func (w *Worker) initNewManifolds() {
	for _, e := range w.newManifolds {
		if w.reg.Valid(e) && registry.Has[constraint.Manifold](w.reg, e) {
			narrowphase.InitManifold(w.reg, e)
		}
	}
	w.newManifolds = w.newManifolds[:0]
}

func (w *Worker) finishStep() {
	island := registry.Get[Island](w.reg, w.island)

	// Advance by the fixed step, but never lag more than the allowed
	// number of steps behind wall time.
	island.Timestamp += w.settings.FixedDt
	now := w.stepStartTime
	lagCap := float64(w.settings.MaxLaggingSteps) * w.settings.FixedDt
	if now-island.Timestamp > lagCap {
		island.Timestamp = now - lagCap
	}

	w.publishTreeView()
	w.maybeSleep()

	if w.topologyChanged {
		w.topologyChanged = false
		w.splitPending = true
		w.splitDeadline = now + w.settings.CalculateSplitDelay
	}
	if w.splitPending && now >= w.splitDeadline {
		w.splitPending = false
		if !w.graph.IsSingleConnectedComponent() {
			w.out.Push(MsgSplitIsland{Worker: w.id})
		}
	}

	callHook(&externalPostStep, w.reg)
	w.sync()
}

// publishTreeView snapshots the dynamic tree for the coordinator.
func (w *Worker) publishTreeView() {
	var view TreeView
	w.bphase.Tree().Each(func(_ int32, aabb actor.AABB, payload registry.Entity) {
		view.Leaves = append(view.Leaves, TreeLeaf{Entity: payload, AABB: aabb})
	})
	registry.Assign(w.reg, w.island, view)
	registry.MarkUpdated(w.reg, w.island, KindIsland, KindTreeView)
}

// sync publishes a delta to the coordinator: every AABB, the continuous
// components of moving bodies, and everything recorded dirty since the
// previous sync.
func (w *Worker) sync() {
	// Manifolds mutate every narrowphase pass; replicate them so the
	// coordinator keeps warm-start state for hand-offs.
	registry.Each(w.reg, func(e registry.Entity, _ *constraint.Manifold) {
		if d := registry.TryGet[registry.Dirty](w.reg, e); d == nil || !d.IsNew {
			registry.MarkUpdated(w.reg, e, constraint.KindOfManifold)
		}
	})

	delta := registry.BuildDelta(w.reg, actor.KindAABB)
	delta.DestroyedEntities = append(delta.DestroyedEntities, w.destroyedEntities...)
	w.destroyedEntities = w.destroyedEntities[:0]

	// Translate worker-local ids back to coordinator ids where known; ids
	// the coordinator has never seen stay local and are mapped on arrival.
	w.out.Push(MsgSync{Worker: w.id, Delta: remapDelta(delta, w.emap)})
}

// remapDelta rewrites local entity ids into the main registry's id space.
// Entities the coordinator has no id for yet travel flagged; the
// coordinator answers with a MsgEntityMap once it allocates main ids.
func remapDelta(d registry.Delta, emap *registry.EntityMap) registry.Delta {
	mapEntity := func(e registry.Entity) registry.Entity {
		if remote := emap.Remote(e); remote != registry.Null {
			return remote
		}
		return flagLocal(e)
	}
	for i, e := range d.CreatedEntities {
		d.CreatedEntities[i] = mapEntity(e)
	}
	for i, e := range d.DestroyedEntities {
		d.DestroyedEntities[i] = mapEntity(e)
	}
	for pi := range d.Pools {
		p := &d.Pools[pi]
		for i := range p.Created {
			p.Created[i].Entity = mapEntity(p.Created[i].Entity)
			p.Created[i].Value = registry.RemapKind(p.Kind, p.Created[i].Value, mapEntity)
		}
		for i := range p.Updated {
			p.Updated[i].Entity = mapEntity(p.Updated[i].Entity)
			p.Updated[i].Value = registry.RemapKind(p.Kind, p.Updated[i].Value, mapEntity)
		}
		for i := range p.Destroyed {
			p.Destroyed[i] = mapEntity(p.Destroyed[i])
		}
	}
	return d
}

// maybeSleep runs the island sleep lifecycle: when every dynamic body has
// been resting long enough and nothing disables sleeping, the island
// sleeps as a whole.
func (w *Worker) maybeSleep() {
	if registry.Size[actor.SleepingDisabled](w.reg) > 0 {
		w.sleepTimer = 0
		return
	}

	resting := true
	registry.Each(w.reg, func(e registry.Entity, kind *actor.Kind) {
		if *kind != actor.KindDynamic {
			return
		}
		linvel := registry.Get[actor.LinVel](w.reg, e)
		angvel := registry.Get[actor.AngVel](w.reg, e)
		if linvel.LenSqr() > w.settings.LinearSleepThreshold*w.settings.LinearSleepThreshold ||
			angvel.LenSqr() > w.settings.AngularSleepThreshold*w.settings.AngularSleepThreshold {
			resting = false
		}
	})

	if !resting {
		w.sleepTimer = 0
		return
	}

	w.sleepTimer += w.settings.FixedDt
	if w.sleepTimer < w.settings.TimeToSleep {
		return
	}

	// Sleep: zero velocities on every procedural body and tag everything.
	registry.Each(w.reg, func(e registry.Entity, _ *actor.Procedural) {
		registry.Get[actor.LinVel](w.reg, e).Vec3 = mgl64.Vec3{}
		registry.Get[actor.AngVel](w.reg, e).Vec3 = mgl64.Vec3{}
		registry.Assign(w.reg, e, actor.Sleeping{})
		registry.MarkCreated(w.reg, e, actor.KindSleeping)
		registry.MarkUpdated(w.reg, e, actor.KindLinVel, actor.KindAngVel)
	})
	registry.Assign(w.reg, w.island, actor.Sleeping{})
	registry.MarkCreated(w.reg, w.island, actor.KindSleeping)

	w.sleeping = true
	w.sleepTimer = 0
}

// wake clears the sleeping tags and resets the island timestamp to wall
// time. Waking an awake island is a no-op.
func (w *Worker) wake() {
	if !w.sleeping && !registry.Has[actor.Sleeping](w.reg, w.island) {
		return
	}

	var tagged []registry.Entity
	registry.Each(w.reg, func(e registry.Entity, _ *actor.Sleeping) {
		tagged = append(tagged, e)
	})
	for _, e := range tagged {
		registry.Remove[actor.Sleeping](w.reg, e)
		registry.MarkDestroyed(w.reg, e, actor.KindSleeping)
	}

	registry.Get[Island](w.reg, w.island).Timestamp = w.clock.Now()
	registry.MarkUpdated(w.reg, w.island, KindIsland)
	w.sleeping = false
	w.sleepTimer = 0
}
