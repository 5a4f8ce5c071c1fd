package cmd

import (
	"github.com/inference-sim/sched-core/agent"
	"github.com/inference-sim/sched-core/sched"
)

// defaultCollaborators wires the agent's map interfaces against a fresh,
// process-local capacity table, seeded with the configured BIG_PCT
// threshold. A real deployment instead hands the agent a handle to the
// BPF-backed maps a running sched.Scheduler is also reading; that wiring
// lives outside this repo's scope (spec.md §1 treats the host runtime as
// an external collaborator), so the CLI here runs the agent standalone
// against its own state for demonstration and testing.
func defaultCollaborators(cfg agent.Config) (agent.CapacityMap, agent.GlobalMap, agent.HistogramMap, agent.StatsMap) {
	table := sched.NewCapacityTable()
	table.SetBigPct(uint32(cfg.BigPct))
	return agent.NewCapacityTableMap(table), agent.NewGlobalMap(table), agent.NewInMemoryHistogramMap(), agent.NewInMemoryStatsMap()
}
