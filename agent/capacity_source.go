package agent

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// CapacitySource enumerates CPUs and reads each one's normalized capacity.
// The sysfs-backed implementation below is the production default; tests
// substitute a fixed map.
type CapacitySource interface {
	// PossibleCPUs returns every CPU id the host could schedule on.
	PossibleCPUs() ([]int32, error)
	// Capacity reads one CPU's capacity, defaulting to CapacityScale
	// per spec.md §7's "capacity I/O errors" taxonomy (missing file or
	// unparseable value both default silently).
	Capacity(cpu int32) uint32
}

// sysfsCapacitySource reads cpu_capacity the way the Linux scheduler
// utilization/capacity-aware code paths do: one small integer file per
// CPU under sysfs, scaled the same way CAP_SCALE normalizes (this mirrors
// the read-only sysfs.System abstraction the containers/nri-plugins
// cpuallocator uses to discover per-core kind/capacity — see
// pkg/cpuallocator/allocator.go in the reference pack — generalized here
// to plain file reads since we don't carry that library's full topology
// model).
type sysfsCapacitySource struct {
	root string
}

// NewSysfsCapacitySource returns a CapacitySource rooted at root (normally
// "/sys/devices/system/cpu").
func NewSysfsCapacitySource(root string) CapacitySource {
	return &sysfsCapacitySource{root: root}
}

// PossibleCPUs parses the sysfs "possible" CPU list, e.g. "0-7" or
// "0-3,8-11".
func (s *sysfsCapacitySource) PossibleCPUs() ([]int32, error) {
	data, err := os.ReadFile(filepath.Join(s.root, "possible"))
	if err != nil {
		return nil, err
	}
	return parseCPUList(strings.TrimSpace(string(data)))
}

// Capacity reads <root>/cpu<N>/cpu_capacity, defaulting to CapacityScale
// on any error (missing file, unparseable value), per spec.md §7.
func (s *sysfsCapacitySource) Capacity(cpu int32) uint32 {
	path := filepath.Join(s.root, "cpu"+strconv.Itoa(int(cpu)), "cpu_capacity")
	data, err := os.ReadFile(path)
	if err != nil {
		return capacityScaleDefault
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		logrus.WithField("path", path).WithError(err).Warn("agent: unparseable cpu_capacity, defaulting")
		return capacityScaleDefault
	}
	return uint32(v)
}

// capacityScaleDefault mirrors sched.CapacityScale without importing the
// sched package here, keeping the agent's I/O layer free of a dependency
// on core scheduler types.
const capacityScaleDefault = 1024

// parseCPUList parses a sysfs CPU range list like "0-3,8,10-11" into
// individual CPU ids.
func parseCPUList(s string) ([]int32, error) {
	if s == "" {
		return nil, nil
	}
	var out []int32
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if dash := strings.IndexByte(part, '-'); dash >= 0 {
			lo, err := strconv.Atoi(part[:dash])
			if err != nil {
				return nil, err
			}
			hi, err := strconv.Atoi(part[dash+1:])
			if err != nil {
				return nil, err
			}
			for i := lo; i <= hi; i++ {
				out = append(out, int32(i))
			}
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, int32(v))
	}
	return out, nil
}

// FixedCapacitySource is a CapacitySource backed by a fixed map, used by
// tests in place of real sysfs reads.
type FixedCapacitySource struct {
	CPUs       []int32
	Capacities map[int32]uint32
}

func (f *FixedCapacitySource) PossibleCPUs() ([]int32, error) { return f.CPUs, nil }

func (f *FixedCapacitySource) Capacity(cpu int32) uint32 {
	if rho, ok := f.Capacities[cpu]; ok {
		return rho
	}
	return capacityScaleDefault
}
