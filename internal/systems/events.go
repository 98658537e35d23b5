package systems

import (
	"math"

	"github.com/talgya/statecraft/internal/engine"
	"github.com/talgya/statecraft/internal/scheduler"
)

// UnrestInterval is how often troubled countries are checked.
const UnrestInterval = 240

// Events rolls random national events, applies economic drift, checks for
// unrest and evaluates scripted templates.
type Events struct{}

// NewEvents returns the events subsystem.
func NewEvents() *Events { return &Events{} }

func (*Events) Name() string        { return "events" }
func (*Events) Stage() engine.Stage { return engine.StageEvents }

func (e *Events) Executors() map[scheduler.Kind]engine.Executor {
	return map[scheduler.Kind]engine.Executor{
		scheduler.KindUnrestCheck:        e.checkUnrest,
		scheduler.KindScriptedEventCheck: e.checkScripted,
	}
}

// Bootstrap schedules the unrest check and one recurring check per
// scripted template.
func (*Events) Bootstrap(st *engine.State) []engine.Followup {
	out := []engine.Followup{{
		Payload: scheduler.UnrestCheck{},
		Spec:    scheduler.MustEvery(UnrestInterval, UnrestInterval, 0),
	}}
	for _, t := range st.Scripted.Templates() {
		out = append(out, engine.Followup{
			Payload: scheduler.ScriptedEventCheck{Template: t.ID},
			Spec:    scheduler.MustEvery(uint64(t.InitialDelayMinutes), t.CheckMinutes, 0),
		})
	}
	return out
}

func (*Events) Hook(ctx engine.TickContext, st *engine.State) engine.Effect {
	var eff engine.Effect
	if ctx.Scale <= 0 {
		return eff
	}
	s := ctx.Scale
	for _, c := range st.Countries.All() {
		if st.RNG.Chance(math.Min(0.25*s, 1)) {
			switch st.RNG.IntN(3) {
			case 0:
				c.AddGDP(60 * s)
				c.AddApproval(trunc(2 * s))
				eff.Addf("A technology boom accelerates %s's economy", c.Name)
			case 1:
				c.AddStability(-trunc(5 * s))
				c.AddApproval(-trunc(4 * s))
				eff.Addf("Protests spread across %s", c.Name)
			case 2:
				c.AddResources(-trunc(6 * s))
				c.AddMilitary(trunc(3 * s))
				eff.Addf("%s arms itself over border tensions", c.Name)
			}
		}

		drift := float64(c.Stability-50) * 0.4 * s
		if math.Abs(drift) > 0.5 {
			c.AddGDP(drift)
			if drift > 0 {
				eff.Addf("Stable government lifts %s's GDP by %s", c.Name, money(drift))
			} else {
				eff.Addf("Instability costs %s %s of GDP", c.Name, money(-drift))
			}
		}
	}
	return eff
}

func (*Events) checkUnrest(_ engine.TickContext, _ scheduler.Task, st *engine.State) (engine.Effect, error) {
	var eff engine.Effect
	for _, c := range st.Countries.All() {
		switch {
		case c.Stability < 35:
			c.AddApproval(-2)
			eff.Addf("Unrest in %s erodes public support", c.Name)
		case c.Approval < 30:
			c.AddStability(-1)
			eff.Addf("Protests in %s chip away at stability", c.Name)
		}
	}
	return eff, nil
}

func (*Events) checkScripted(ctx engine.TickContext, task scheduler.Task, st *engine.State) (engine.Effect, error) {
	check := task.Payload.(scheduler.ScriptedEventCheck)
	if _, ok := st.Scripted.Get(check.Template); !ok {
		return engine.Effect{}, engine.Dangling("template", check.Template)
	}
	lines, err := st.Scripted.Evaluate(check.Template, ctx.Now, st.Countries.All())
	if err != nil {
		return engine.Effect{}, err
	}
	return engine.Effect{Lines: lines}, nil
}
