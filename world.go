// Package edyn is a real-time rigid-body physics engine: a deterministic
// fixed-timestep constraint solver combined with a parallel island
// scheduler that partitions interacting bodies into independently
// simulated units.
package edyn

import (
	"github.com/StellaSmith/edyn/island"
	"github.com/StellaSmith/edyn/job"
	"github.com/StellaSmith/edyn/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// World is the embedding surface of the engine. It owns the coordinator
// and the job dispatcher; the embedding application drives it by calling
// Update from its main loop.
type World struct {
	reg        *registry.Registry
	coord      *island.Coordinator
	dispatcher *job.Dispatcher

	cfg  Config
	step uint64
}

// NewWorld creates a world over the given main registry.
func NewWorld(reg *registry.Registry, cfg Config) *World {
	dispatcher := job.NewDispatcher(cfg.Workers)
	return &World{
		reg:        reg,
		coord:      island.NewCoordinator(reg, dispatcher, cfg.settings()),
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// Registry returns the main registry.
func (w *World) Registry() *registry.Registry { return w.reg }

// Events returns the coordinator's event manager.
func (w *World) Events() *island.Events { return w.coord.Events() }

// Update advances the wall clock by dt, runs one coordinator tick and
// refreshes the present-state transforms used for rendering.
func (w *World) Update(dt float64) {
	w.coord.Update(dt)
	w.step++
}

// CurrentStep is a monotonically increasing update counter.
func (w *World) CurrentStep() uint64 { return w.step }

// IslandCount reports how many islands are currently simulated.
func (w *World) IslandCount() int { return w.coord.IslandCount() }

// SetPaused pauses or resumes the simulation. No steps run while paused,
// so pausing and unpausing preserves state exactly.
func (w *World) SetPaused(paused bool) { w.coord.SetPaused(paused) }

// StepSimulation runs a single fixed step while paused.
func (w *World) StepSimulation() { w.coord.StepSimulation() }

// WakeUpIsland wakes the island containing the entity. Waking an awake
// island is a no-op.
func (w *World) WakeUpIsland(e registry.Entity) { w.coord.WakeUpIsland(e) }

// SetIslandPaused pauses or resumes only the island containing the entity.
func (w *World) SetIslandPaused(e registry.Entity, paused bool) {
	w.coord.SetIslandPaused(e, paused)
}

// ApplyImpulse applies an instantaneous impulse at a world-space point,
// waking the body's island.
func (w *World) ApplyImpulse(e registry.Entity, impulse, point mgl64.Vec3) {
	w.coord.ApplyImpulse(e, impulse, point)
}

// SetVelocity overwrites a body's velocities, waking its island.
func (w *World) SetVelocity(e registry.Entity, linvel, angvel mgl64.Vec3) {
	w.coord.SetVelocity(e, linvel, angvel)
}

// Destroy terminates every island worker and stops the dispatcher.
func (w *World) Destroy() {
	w.coord.Terminate()
	w.dispatcher.Stop()
}

// External system hooks, installed once at startup before the first
// worker spawns.
var (
	SetExternalSystemInit     = island.SetExternalSystemInit
	SetExternalSystemPreStep  = island.SetExternalSystemPreStep
	SetExternalSystemPostStep = island.SetExternalSystemPostStep
)
