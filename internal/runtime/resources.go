package runtime

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

// ResourceUsage is a coarse view of the process for the admin API.
type ResourceUsage struct {
	CPUPercent float64 `json:"cpu_percent"`
	HeapBytes  uint64  `json:"heap_bytes"`
	Goroutines uint64  `json:"goroutines"`
	GCCycles   uint64  `json:"gc_cycles"`
}

const (
	sampleCPU        = "/sched/cpu:seconds"
	sampleHeap       = "/memory/classes/heap/objects:bytes"
	sampleGoroutines = "/sched/goroutines:goroutines"
	sampleGC         = "/gc/cycles/total:gc-cycles"
)

// resourceSampler reads runtime/metrics, which unlike ReadMemStats does not
// stop the world. CPU is averaged over the time since the previous sample.
type resourceSampler struct {
	mu      sync.Mutex
	samples []metrics.Sample
	lastCPU float64
	lastAt  time.Time
	numCPU  float64
}

func newResourceSampler() *resourceSampler {
	return &resourceSampler{
		samples: []metrics.Sample{
			{Name: sampleCPU},
			{Name: sampleHeap},
			{Name: sampleGoroutines},
			{Name: sampleGC},
		},
		numCPU: float64(runtime.NumCPU()),
	}
}

func (s *resourceSampler) snapshot() ResourceUsage {
	s.mu.Lock()
	defer s.mu.Unlock()

	metrics.Read(s.samples)
	now := time.Now()

	var usage ResourceUsage
	for _, sample := range s.samples {
		switch sample.Value.Kind() {
		case metrics.KindFloat64:
			if sample.Name != sampleCPU {
				continue
			}
			cpu := sample.Value.Float64()
			if !s.lastAt.IsZero() {
				wall := now.Sub(s.lastAt).Seconds()
				if wall > 0 && s.numCPU > 0 {
					usage.CPUPercent = (cpu - s.lastCPU) / wall / s.numCPU * 100
				}
			}
			s.lastCPU = cpu
		case metrics.KindUint64:
			switch sample.Name {
			case sampleHeap:
				usage.HeapBytes = sample.Value.Uint64()
			case sampleGoroutines:
				usage.Goroutines = sample.Value.Uint64()
			case sampleGC:
				usage.GCCycles = sample.Value.Uint64()
			}
		}
	}
	s.lastAt = now
	return usage
}
