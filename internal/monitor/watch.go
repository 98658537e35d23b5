package monitor

import (
	"context"
	"log/slog"
	"time"
)

// Watcher observes a simulation on an interval and triages each
// observation.
type Watcher struct {
	Observer *Observer
	Interval time.Duration
	// OnHealth receives every successful observation. When nil the verdict
	// is logged.
	OnHealth func(*Snapshot, *WorldHealth)
}

// Run waits for the API, then observes immediately and on every interval
// until ctx is cancelled. Failed observations are logged and retried on the
// next cycle.
func (w *Watcher) Run(ctx context.Context) error {
	slog.Info("waiting for simulation API...", "url", w.Observer.BaseURL)
	for !w.Observer.Ready(ctx) {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
	}

	w.cycle(ctx)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("watcher stopped")
			return nil
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *Watcher) cycle(ctx context.Context) {
	snap, err := w.Observer.Observe(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("observation failed", "error", err)
		}
		return
	}
	health := Triage(snap)
	if w.OnHealth != nil {
		w.OnHealth(snap, health)
		return
	}
	LogHealth(snap, health)
}

// LogHealth writes a verdict at a level matching its severity.
func LogHealth(snap *Snapshot, h *WorldHealth) {
	level := slog.LevelInfo
	switch h.Level {
	case Warning:
		level = slog.LevelWarn
	case Critical:
		level = slog.LevelError
	}
	slog.Log(context.Background(), level, "world triage",
		"level", h.Level,
		"date", snap.Status.DateText,
		"tick", snap.Status.Tick,
		"pending", len(snap.Tasks),
		"overdue", h.Overdue,
	)
	for _, c := range h.Countries {
		if c.Level == Healthy {
			continue
		}
		slog.Warn("country at risk", "country", c.Name, "level", c.Level, "signals", c.Signals)
	}
}
