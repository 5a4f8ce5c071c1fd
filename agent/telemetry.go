package agent

import (
	"gonum.org/v1/gonum/stat"
)

// TelemetrySnapshot is one pass of spec.md §4.10 step 3: per-bucket
// latency histogram summed across CPUs, its p95, and three of the four
// monotonic counters of stats[0..3] (select_cpu idle hits, enqueue events,
// running updates). The reserved fourth counter is not reported.
type TelemetrySnapshot struct {
	P95Micros     float64
	Samples       int
	SelectCPUHits uint64
	EnqueueEvents uint64
	RunningEvents uint64
}

// bucketLowerBoundMicros returns the lower bound, in microseconds, of a
// log2-bucketed latency histogram bucket (bucket 0 covers [0,1),
// bucket k covers [2^(k-1), 2^k) for k>=1).
func bucketLowerBoundMicros(bucket int) float64 {
	if bucket <= 0 {
		return 0
	}
	return float64(uint64(1) << uint(bucket-1))
}

// aggregateHistogram sums a per-CPU histogram map into one bucket slice.
func aggregateHistogram(perCPU map[int32][]uint64) []uint64 {
	var total []uint64
	for _, buckets := range perCPU {
		for i, c := range buckets {
			for len(total) <= i {
				total = append(total, 0)
			}
			total[i] += c
		}
	}
	return total
}

// percentile95 reconstructs an approximate sample population from a
// log2-bucketed histogram (one representative value per bucket, at the
// bucket's lower bound, weighted by the bucket's count) and computes the
// 95th percentile with gonum's stat.Quantile under empirical
// interpolation. This replaces a hand-rolled cumulative-sum walk with a
// real numerical routine (see SPEC_FULL.md §4.12).
func percentile95(buckets []uint64) (p95 float64, samples int) {
	var xs, weights []float64
	for bucket, count := range buckets {
		if count == 0 {
			continue
		}
		xs = append(xs, bucketLowerBoundMicros(bucket))
		weights = append(weights, float64(count))
		samples += int(count)
	}
	if samples == 0 {
		return 0, 0
	}
	// stat.Quantile requires xs sorted ascending; log2 bucket order is
	// already ascending by construction, so no sort is needed here.
	return stat.Quantile(0.95, stat.Empirical, xs, weights), samples
}

// Telemetry performs one telemetry aggregation pass over hist and stats.
func Telemetry(hist HistogramMap, counters StatsMap) TelemetrySnapshot {
	buckets := aggregateHistogram(hist.Buckets())
	p95, samples := percentile95(buckets)
	hist.Reset()
	return TelemetrySnapshot{
		P95Micros:     p95,
		Samples:       samples,
		SelectCPUHits: counters.Get(StatSelectCPUIdleHits),
		EnqueueEvents: counters.Get(StatEnqueueEvents),
		RunningEvents: counters.Get(StatRunningUpdates),
	}
}
