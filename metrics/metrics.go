package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/warp/utils/wrappers"
)

// EngineMetrics holds the tick engine's named instruments (SPEC_FULL.md
// §B): tick duration, per-tick admission outcome counts, merge conflict
// counts, and BOAW shard-claim latency.
type EngineMetrics struct {
	Registry prometheus.Registerer

	TickDuration Averager // seconds, one Observe per commit_tick

	CandidatesAdmitted Counter
	CandidatesDeferred Counter
	CandidatesDropped  Counter

	MergeConflicts Counter

	ShardClaimLatency Averager // seconds; registered, but nothing in this module observes it

	ActiveTick Gauge // 1 while a tick is mid-flight, 0 otherwise
}

// NewEngineMetrics registers every EngineMetrics instrument against reg,
// accumulating any registration failures (teacher-style: utils/wrappers.Errs)
// so a caller sees every instrument that failed to register, not just the
// first, before NewEngineMetrics fails construction.
func NewEngineMetrics(reg prometheus.Registerer) (*EngineMetrics, error) {
	var errs wrappers.Errs
	m := &EngineMetrics{Registry: reg}
	r := NewRegistry(reg)

	var err error
	if m.TickDuration, err = NewAverager("warp_tick_duration_seconds", "tick commit duration in seconds", reg); err != nil {
		errs.Add(err)
	}
	if m.ShardClaimLatency, err = NewAverager("warp_shard_claim_latency_seconds", "BOAW worker shard claim latency in seconds", reg); err != nil {
		errs.Add(err)
	}
	if m.CandidatesAdmitted, err = r.NewCounter("warp_candidates_admitted_total", "admitted rewrite candidates"); err != nil {
		errs.Add(err)
	}
	if m.CandidatesDeferred, err = r.NewCounter("warp_candidates_deferred_total", "deferred rewrite candidates"); err != nil {
		errs.Add(err)
	}
	if m.CandidatesDropped, err = r.NewCounter("warp_candidates_dropped_total", "dropped rewrite candidates"); err != nil {
		errs.Add(err)
	}
	if m.MergeConflicts, err = r.NewCounter("warp_merge_conflicts_total", "canonical merge conflicts"); err != nil {
		errs.Add(err)
	}
	if m.ActiveTick, err = r.NewGauge("warp_tick_active", "1 while a tick is mid-flight"); err != nil {
		errs.Add(err)
	}

	if errs.Errored() {
		return nil, errs.Err()
	}
	return m, nil
}

// Register registers an additional prometheus collector against m's
// registry, for callers instrumenting something this struct doesn't name.
func (m *EngineMetrics) Register(collector prometheus.Collector) error {
	return m.Registry.Register(collector)
}
