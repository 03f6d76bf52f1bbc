package docker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"

	"github.com/modoterra/wharf/pkg/runtime"
)

// WatchStats decodes the engine's streaming stats endpoint into usage
// samples. The returned channel holds at most the latest sample; a slow
// consumer sees fresh data, never a backlog. The channel closes when the
// stream ends or ctx is done.
func (r *Runtime) WatchStats(ctx context.Context, sourceID string) (<-chan runtime.Stats, error) {
	resp, err := r.cli.ContainerStats(ctx, sourceID, client.ContainerStatsOptions{Stream: true})
	if err != nil {
		return nil, fmt.Errorf("opening stats for container %s: %w", shortID(sourceID), err)
	}

	out := make(chan runtime.Stats, 1)
	stop := context.AfterFunc(ctx, func() { resp.Body.Close() })
	go func() {
		defer stop()
		defer resp.Body.Close()
		defer close(out)

		dec := json.NewDecoder(resp.Body)
		for {
			var sample container.StatsResponse
			if err := dec.Decode(&sample); err != nil {
				return
			}
			s := runtime.Stats{
				CPUPercent: cpuPercent(&sample),
				MemUsage:   memUsage(&sample.MemoryStats),
				MemLimit:   sample.MemoryStats.Limit,
			}
			if s.MemLimit > 0 {
				s.MemPercent = float64(s.MemUsage) / float64(s.MemLimit) * 100
			}
			pushLatest(out, s)
		}
	}()
	return out, nil
}

// pushLatest replaces whatever sample is sitting unread in ch. With a
// single producer the loop terminates after at most one eviction.
func pushLatest(ch chan runtime.Stats, s runtime.Stats) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// cpuPercent mirrors the docker CLI calculation: the container's share of
// the system CPU time delta between two samples, scaled to the number of
// online CPUs.
func cpuPercent(s *container.StatsResponse) float64 {
	cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage) - float64(s.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(s.CPUStats.SystemUsage) - float64(s.PreCPUStats.SystemUsage)
	if cpuDelta <= 0 || sysDelta <= 0 {
		return 0
	}
	cpus := float64(s.CPUStats.OnlineCPUs)
	if cpus == 0 {
		cpus = float64(len(s.CPUStats.CPUUsage.PercpuUsage))
	}
	if cpus == 0 {
		cpus = 1
	}
	return cpuDelta / sysDelta * cpus * 100
}

// memUsage discounts the page cache the way `docker stats` does, via the
// cgroup v2 inactive_file counter with the v1 name as fallback.
func memUsage(m *container.MemoryStats) uint64 {
	if v, ok := m.Stats["inactive_file"]; ok && v < m.Usage {
		return m.Usage - v
	}
	if v, ok := m.Stats["total_inactive_file"]; ok && v < m.Usage {
		return m.Usage - v
	}
	return m.Usage
}
