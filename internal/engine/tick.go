// Package engine provides the tick orchestrator and the real-time loop that
// drives it.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Engine loop defaults.
const (
	DefaultInterval    = time.Second
	DefaultStepMinutes = 60.0
	MaxReportLines     = 1000
)

// Engine runs ticks on a wall-clock cadence. Every access to the
// simulation, from the loop or from outside, goes through Do.
type Engine struct {
	mu          sync.Mutex
	sim         *Simulation
	speed       float64       // 1.0 = one tick per interval, 0 = paused
	interval    time.Duration // wall time between ticks at speed 1
	stepMinutes float64       // requested minutes per tick
	lines       []string      // most recent report lines, oldest first
	wake        chan struct{} // nudges Run after a cadence change

	// OnTick is called with each report while the lock is held.
	OnTick func(TickReport)
}

// NewEngine wraps a simulation with default settings.
func NewEngine(sim *Simulation) *Engine {
	return &Engine{
		sim:         sim,
		speed:       1.0,
		interval:    DefaultInterval,
		stepMinutes: DefaultStepMinutes,
		wake:        make(chan struct{}, 1),
	}
}

// Configure sets the loop cadence. Non-positive values keep the current
// setting, except speed where zero pauses.
func (e *Engine) Configure(interval time.Duration, stepMinutes, speed float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if interval > 0 {
		e.interval = interval
	}
	if stepMinutes > 0 {
		e.stepMinutes = stepMinutes
	}
	if speed >= 0 {
		e.speed = speed
	}
	e.nudge()
}

// nudge tells Run to recompute its timer. It never blocks.
func (e *Engine) nudge() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Do runs fn with exclusive access to the simulation.
func (e *Engine) Do(fn func(*Simulation) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.sim)
}

// Speed returns the loop speed.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the loop speed; zero pauses. Negative values are ignored.
func (e *Engine) SetSpeed(v float64) {
	if v < 0 {
		return
	}
	e.mu.Lock()
	e.speed = v
	e.mu.Unlock()
	e.nudge()
}

// Step runs one tick of the given minutes.
func (e *Engine) Step(minutes float64) (TickReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stepLocked(minutes)
}

func (e *Engine) stepLocked(minutes float64) (TickReport, error) {
	report, err := e.sim.RunTick(minutes)
	if err != nil {
		return report, err
	}
	e.lines = append(e.lines, report.Lines...)
	if len(e.lines) > MaxReportLines {
		e.lines = append([]string(nil), e.lines[len(e.lines)-MaxReportLines:]...)
	}
	if e.OnTick != nil {
		e.OnTick(report)
	}
	return report, nil
}

// Lines returns up to n of the most recent report lines, oldest first.
func (e *Engine) Lines(n int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n <= 0 || n > len(e.lines) {
		n = len(e.lines)
	}
	return append([]string(nil), e.lines[len(e.lines)-n:]...)
}

// Run ticks until ctx is cancelled. A speed or cadence change takes effect
// at once, measured from the last tick.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("simulation engine started", "tick", e.tickCount(), "speed", e.Speed())

	timer := time.NewTimer(0)
	defer timer.Stop()
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			slog.Info("simulation engine stopped", "tick", e.tickCount())
			return nil
		case <-e.wake:
			e.mu.Lock()
			wait := e.waitLocked()
			e.mu.Unlock()
			timer.Reset(max(time.Until(last.Add(wait)), 0))
			continue
		case <-timer.C:
		}

		e.mu.Lock()
		if e.speed > 0 {
			if _, err := e.stepLocked(e.stepMinutes); err != nil {
				slog.Error("tick failed", "error", err)
			}
			last = time.Now()
		}
		wait := e.waitLocked()
		e.mu.Unlock()
		timer.Reset(wait)
	}
}

// waitLocked is the wall time between ticks. Paused engines check again
// shortly.
func (e *Engine) waitLocked() time.Duration {
	if e.speed <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(float64(e.interval) / e.speed)
}

func (e *Engine) tickCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sim.Tick()
}
