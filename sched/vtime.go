package sched

import "math"

// CapacityScale is CAP_SCALE: the fixed-point normalization constant for
// per-CPU capacities.
const CapacityScale = 1024

// DeadlineScale is SCALE: fixes the arithmetic granularity of virtual
// deadlines (spec.md §4.3).
const DeadlineScale = 100

// BigPct is the default BIG_PCT threshold: a CPU is BIG iff
// 100*rho_c >= BigPct*rho_max.
const BigPct = 90

// AddSignedVTime adds a signed delta to an unsigned virtual-time value,
// saturating at 0 on underflow. u64 virtual time never wraps negative;
// every handler that nudges G.V through a signed correction goes through
// this helper rather than raw arithmetic.
func AddSignedVTime(v uint64, delta int64) uint64 {
	if delta >= 0 {
		d := uint64(delta)
		if v > math.MaxUint64-d {
			return math.MaxUint64
		}
		return v + d
	}
	d := uint64(-delta)
	if d > v {
		return 0
	}
	return v - d
}

// DivSignedU64 divides a magnitude by a positive divisor and reapplies the
// given sign, used by the lag-correction formulas in set_weight/enable/
// disable (spec.md §4.7, §4.8). div == 0 returns 0 rather than panicking:
// callers only reach here after confirming W is positive, but the helper
// stays defensive since it operates on values computed from clamped
// runtime input.
func DivSignedU64(magnitude uint64, sign int, div uint64) int64 {
	if div == 0 || sign == 0 {
		return 0
	}
	q := int64(magnitude / div)
	if sign < 0 {
		return -q
	}
	return q
}

// SignOf returns -1, 0, or 1 matching the sign of a signed lag value.
func SignOf(x int64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// AbsI64 returns the absolute value of x as a uint64, safe for
// math.MinInt64 (which negating as int64 would overflow).
func AbsI64(x int64) uint64 {
	if x >= 0 {
		return uint64(x)
	}
	return uint64(-(x + 1)) + 1
}

// SatSubU64 subtracts b from a, saturating at 0.
func SatSubU64(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// SatAddU32 adds b to a, saturating at math.MaxUint32.
func SatAddU32(a, b uint32) uint32 {
	if a > math.MaxUint32-b {
		return math.MaxUint32
	}
	return a + b
}
