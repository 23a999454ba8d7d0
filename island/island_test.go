package island

import (
	"testing"
	"time"

	"github.com/StellaSmith/edyn/actor"
	"github.com/StellaSmith/edyn/job"
	"github.com/StellaSmith/edyn/registry"
	"github.com/go-gl/mathgl/mgl64"
)

const fixedDt = 1.0 / 60.0

func newTestCoordinator(t *testing.T) (*registry.Registry, *Coordinator, *job.Dispatcher) {
	t.Helper()
	reg := registry.New()
	dispatcher := job.NewDispatcher(4)
	coord := NewCoordinator(reg, dispatcher, DefaultSettings())
	t.Cleanup(func() {
		coord.Terminate()
		dispatcher.Stop()
	})
	return reg, coord, dispatcher
}

func dynamicSphere(reg *registry.Registry, pos, vel mgl64.Vec3) registry.Entity {
	def := actor.DefaultBodyDef()
	def.Kind = actor.KindDynamic
	def.Mass = 1
	def.Shape = actor.NewSphere(0.5)
	def.Position = pos
	def.LinVel = vel
	def.Gravity = mgl64.Vec3{0, -9.81, 0}
	def.Material = &actor.Material{Friction: 0.5}
	return actor.CreateBody(reg, def)
}

func staticPlane(reg *registry.Registry) registry.Entity {
	def := actor.DefaultBodyDef()
	def.Kind = actor.KindStatic
	def.Shape = actor.NewPlane(mgl64.Vec3{0, 1, 0}, 0)
	def.Material = &actor.Material{Friction: 0.5}
	return actor.CreateBody(reg, def)
}

// advanceUntil ticks the coordinator on virtual time until the condition
// holds, giving the worker goroutines real time to run between ticks.
func advanceUntil(t *testing.T, coord *Coordinator, maxSimSeconds float64, cond func() bool) {
	t.Helper()
	steps := int(maxSimSeconds / fixedDt)
	for i := 0; i < steps; i++ {
		coord.Update(fixedDt)
		time.Sleep(2 * time.Millisecond)
		if cond() {
			return
		}
	}
	if !cond() {
		t.Fatalf("condition not reached within %v simulated seconds", maxSimSeconds)
	}
}

func TestBodyFallsUnderGravity(t *testing.T) {
	reg, coord, _ := newTestCoordinator(t)

	body := dynamicSphere(reg, mgl64.Vec3{0, 100, 0}, mgl64.Vec3{})

	advanceUntil(t, coord, 5, func() bool {
		return registry.Get[actor.Position](reg, body).Y() < 95
	})

	if coord.IslandCount() != 1 {
		t.Fatalf("expected a single island, got %d", coord.IslandCount())
	}
}

func TestPresentStateFollowsBody(t *testing.T) {
	reg, coord, _ := newTestCoordinator(t)
	body := dynamicSphere(reg, mgl64.Vec3{0, 50, 0}, mgl64.Vec3{})

	advanceUntil(t, coord, 5, func() bool {
		p := registry.TryGet[actor.PresentPosition](reg, body)
		return p != nil && p.Y() < 49
	})
}

func TestRestingSphereIslandSleeps(t *testing.T) {
	reg, coord, _ := newTestCoordinator(t)

	staticPlane(reg)
	body := dynamicSphere(reg, mgl64.Vec3{0, 0.5, 0}, mgl64.Vec3{})

	advanceUntil(t, coord, 20, func() bool {
		return registry.Has[actor.Sleeping](reg, body)
	})

	// The island entity itself carries the tag too.
	slept := false
	registry.Each(reg, func(e registry.Entity, _ *Island) {
		if registry.Has[actor.Sleeping](reg, e) {
			slept = true
		}
	})
	if !slept {
		t.Fatal("island entity missing the sleeping tag")
	}
}

func TestWakeUpSleepingIsland(t *testing.T) {
	reg, coord, _ := newTestCoordinator(t)

	staticPlane(reg)
	body := dynamicSphere(reg, mgl64.Vec3{0, 0.5, 0}, mgl64.Vec3{})

	advanceUntil(t, coord, 20, func() bool {
		return registry.Has[actor.Sleeping](reg, body)
	})

	coord.WakeUpIsland(body)
	advanceUntil(t, coord, 5, func() bool {
		return !registry.Has[actor.Sleeping](reg, body)
	})
}

func TestWakeAwakeIslandIsNoop(t *testing.T) {
	reg, coord, _ := newTestCoordinator(t)
	body := dynamicSphere(reg, mgl64.Vec3{0, 100, 0}, mgl64.Vec3{})

	advanceUntil(t, coord, 5, func() bool {
		return registry.Get[actor.Position](reg, body).Y() < 99
	})

	// Waking an island that is not asleep must change nothing observable.
	coord.WakeUpIsland(body)
	advanceUntil(t, coord, 2, func() bool {
		return registry.Get[actor.Position](reg, body).Y() < 95
	})
	if registry.Has[actor.Sleeping](reg, body) {
		t.Fatal("body asleep after wake of awake island")
	}
}

func TestPauseFreezesState(t *testing.T) {
	reg, coord, _ := newTestCoordinator(t)
	body := dynamicSphere(reg, mgl64.Vec3{0, 100, 0}, mgl64.Vec3{})

	advanceUntil(t, coord, 5, func() bool {
		return registry.Get[actor.Position](reg, body).Y() < 99
	})

	coord.SetPaused(true)
	// Let in-flight steps finish syncing.
	for i := 0; i < 30; i++ {
		coord.Update(fixedDt)
		time.Sleep(2 * time.Millisecond)
	}

	frozen := *registry.Get[actor.Position](reg, body)
	frozenVel := *registry.Get[actor.LinVel](reg, body)
	for i := 0; i < 60; i++ {
		coord.Update(fixedDt)
		time.Sleep(2 * time.Millisecond)
	}

	if *registry.Get[actor.Position](reg, body) != frozen {
		t.Fatal("position changed while paused")
	}
	if *registry.Get[actor.LinVel](reg, body) != frozenVel {
		t.Fatal("velocity changed while paused")
	}

	// Unpausing resumes the fall.
	coord.SetPaused(false)
	advanceUntil(t, coord, 5, func() bool {
		return registry.Get[actor.Position](reg, body).Y() < frozen.Y()-0.01
	})
}

func TestTouchingBodiesMergeIntoOneIsland(t *testing.T) {
	reg, coord, _ := newTestCoordinator(t)

	// No gravity: two overlapping spheres at rest.
	def := actor.DefaultBodyDef()
	def.Kind = actor.KindDynamic
	def.Mass = 1
	def.Shape = actor.NewSphere(0.5)
	def.Material = &actor.Material{Friction: 0.5}
	def.Position = mgl64.Vec3{0, 0, 0}
	actor.CreateBody(reg, def)
	def.Position = mgl64.Vec3{0.6, 0, 0}
	actor.CreateBody(reg, def)

	advanceUntil(t, coord, 10, func() bool {
		return coord.IslandCount() == 1
	})
}

func TestSeparatingBodiesSplitIslands(t *testing.T) {
	reg, coord, _ := newTestCoordinator(t)

	def := actor.DefaultBodyDef()
	def.Kind = actor.KindDynamic
	def.Mass = 1
	def.Shape = actor.NewSphere(0.5)
	def.Material = &actor.Material{Restitution: 0.0, Friction: 0.5}
	def.Position = mgl64.Vec3{-0.4, 0, 0}
	def.LinVel = mgl64.Vec3{-2, 0, 0}
	a := actor.CreateBody(reg, def)
	def.Position = mgl64.Vec3{0.4, 0, 0}
	def.LinVel = mgl64.Vec3{2, 0, 0}
	b := actor.CreateBody(reg, def)

	// They start merged, then drift apart; after the split delay the
	// coordinator reports two islands again.
	advanceUntil(t, coord, 30, func() bool {
		return coord.IslandCount() == 2 &&
			registry.Get[actor.Position](reg, a).X() < -2 &&
			registry.Get[actor.Position](reg, b).X() > 2
	})
}

func TestSplitMessageForDisconnectedGraph(t *testing.T) {
	// White-box check of the worker-side split detection: removing the
	// only edge flags the topology and emits a split message after the
	// delay.
	out := &Queue{}
	dispatcher := job.NewDispatcher(2)
	defer dispatcher.Stop()

	var clock Clock
	settings := DefaultSettings()
	settings.CalculateSplitDelay = 0.05
	w := NewWorker(out, dispatcher, &clock, settings)
	defer func() {
		w.Terminate()
		w.Join()
	}()

	reg := registry.New()
	a := dynamicSphere(reg, mgl64.Vec3{-0.4, 0, 0}, mgl64.Vec3{-3, 0, 0})
	b := dynamicSphere(reg, mgl64.Vec3{0.4, 0, 0}, mgl64.Vec3{3, 0, 0})
	snap := registry.TakeSnapshot(reg, []registry.Entity{a, b}, snapshotKinds())

	var d registry.Delta
	d.CreatedEntities = append(d.CreatedEntities, snap.Entities...)
	for _, pool := range snap.Pools {
		pd := registry.PoolDelta{Kind: pool.ComponentIndex}
		for i, owner := range pool.Owners {
			pd.Created = append(pd.Created, registry.ComponentValue{Entity: owner, Value: pool.Values[i]})
		}
		d.Pools = append(d.Pools, pd)
	}
	w.Send(MsgDelta{Delta: d})
	w.Start()

	deadline := time.After(5 * time.Second)
	for {
		clock.Advance(fixedDt)
		w.Reschedule()
		time.Sleep(2 * time.Millisecond)

		split := false
		for _, m := range out.Drain() {
			if _, ok := m.(MsgSplitIsland); ok {
				split = true
			}
		}
		if split {
			return
		}
		select {
		case <-deadline:
			t.Fatal("worker never requested a split")
		default:
		}
	}
}
