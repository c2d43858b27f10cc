package sim

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Engine drives the simulation loop. Ticks are logical; the wall-clock
// interval and speed multiplier live out here, never inside the core.
type Engine struct {
	Interval time.Duration // base tick interval (default 1 second)

	// OnTick advances the world; wired to Simulation.Step at setup.
	OnTick func(tick uint64)

	tick    uint64
	speed   atomic.Int64 // speed ×1000; 0 = paused
	running atomic.Bool
}

// NewEngine creates an engine at speed 1.0 starting after startTick.
func NewEngine(startTick uint64) *Engine {
	e := &Engine{
		Interval: time.Second,
		tick:     startTick,
	}
	e.speed.Store(1000)
	return e
}

// Tick returns the most recently completed tick.
func (e *Engine) Tick() uint64 {
	return atomic.LoadUint64(&e.tick)
}

// Speed returns the current speed multiplier (0 = paused).
func (e *Engine) Speed() float64 {
	return float64(e.speed.Load()) / 1000
}

// SetSpeed changes the speed multiplier. Non-positive pauses.
func (e *Engine) SetSpeed(mult float64) {
	if mult < 0 {
		mult = 0
	}
	e.speed.Store(int64(mult * 1000))
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run starts the loop. Blocks until Stop is called.
func (e *Engine) Run() {
	e.running.Store(true)
	slog.Info("simulation engine started", "tick", e.Tick(), "speed", e.Speed())

	for e.running.Load() {
		speed := e.Speed()
		if speed <= 0 {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		next := atomic.AddUint64(&e.tick, 1)
		if e.OnTick != nil {
			e.OnTick(next)
		}

		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick())
}

// Stop halts the loop.
func (e *Engine) Stop() {
	e.running.Store(false)
}
