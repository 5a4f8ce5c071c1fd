package agent

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Agent is the userspace control/telemetry loop of spec.md §4.10. It
// never touches scheduler V/W/task state — only CapacityMap and
// GlobalMap's rho_max — per the control-plane contract.
type Agent struct {
	cfg      Config
	source   CapacitySource
	capacity CapacityMap
	global   GlobalMap
	hist     HistogramMap
	stats    StatsMap

	tick int
}

// New constructs an Agent from its config and collaborators.
func New(cfg Config, source CapacitySource, capacity CapacityMap, global GlobalMap, hist HistogramMap, stats StatsMap) *Agent {
	return &Agent{
		cfg:      cfg,
		source:   source,
		capacity: capacity,
		global:   global,
		hist:     hist,
		stats:    stats,
	}
}

// Run loops at cfg.PollIntervalMS cadence until ctx is cancelled (the
// signal-driven "termination is driven by a signal flag" of spec.md §5).
func (a *Agent) Run(ctx context.Context) error {
	interval := time.Duration(a.cfg.PollIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logrus.WithFields(logrus.Fields{
		"interval":        interval,
		"refreshEveryNth": a.cfg.CapacityRefreshTicks,
		"telemetry":       a.cfg.TelemetryEnabled,
	}).Info("agent: starting")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("agent: shutting down")
			return nil
		case <-ticker.C:
			a.Tick()
		}
	}
}

// Tick runs one pass of spec.md §4.10's three numbered steps. Exported so
// tests (and a single-shot "-h"-adjacent debug mode, should one ever be
// added) can drive individual ticks deterministically instead of waiting
// on a real ticker.
func (a *Agent) Tick() {
	a.tick++

	refreshCapacities := a.cfg.CapacityRefreshTicks <= 0 || a.tick%a.cfg.CapacityRefreshTicks == 0
	if refreshCapacities {
		a.refreshCapacities()
	}

	if a.cfg.TelemetryEnabled && a.hist != nil && a.stats != nil {
		snap := Telemetry(a.hist, a.stats)
		logrus.WithFields(logrus.Fields{
			"p95Micros":     snap.P95Micros,
			"samples":       snap.Samples,
			"selectCPUHits": snap.SelectCPUHits,
			"enqueueEvents": snap.EnqueueEvents,
			"runningEvents": snap.RunningEvents,
		}).Info("agent: telemetry")
	}
}

// refreshCapacities implements spec.md §4.10 steps 1-2: rescan every
// possible CPU, write back only the ones that changed, then recompute and
// conditionally commit rho_max.
func (a *Agent) refreshCapacities() {
	cpus, err := a.source.PossibleCPUs()
	if err != nil {
		logrus.WithError(err).Warn("agent: could not enumerate possible CPUs, skipping capacity refresh")
		return
	}

	changed := 0
	for _, cpu := range cpus {
		rho := a.source.Capacity(cpu)
		if a.capacity.Get(cpu) != rho {
			a.capacity.Set(cpu, rho)
			changed++
		}
	}

	maxRho := uint32(1)
	for _, cpu := range cpus {
		if rho := a.capacity.Get(cpu); rho > maxRho {
			maxRho = rho
		}
	}
	if len(cpus) > 0 && maxRho != a.global.RhoMax() {
		a.global.SetRhoMax(maxRho)
		logrus.WithField("rhoMax", maxRho).Info("agent: rho_max changed")
	}

	if changed > 0 {
		logrus.WithField("changed", changed).Debug("agent: capacity table refreshed")
	}
}
