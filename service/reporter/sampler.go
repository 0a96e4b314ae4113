package reporter

import (
	"context"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/viant/faultsim/model"
)

// VirtualMemoryFunc reads system memory; replaced in tests.
type VirtualMemoryFunc func(ctx context.Context) (*mem.VirtualMemoryStat, error)

// Sampler reads process and system memory and tracks the lowest available
// figure observed.
type Sampler struct {
	threshold uint64
	virtual   VirtualMemoryFunc

	mu           sync.Mutex
	minAvailable uint64
}

// NewSampler creates a sampler flagging availability under threshold bytes.
func NewSampler(threshold uint64, virtual VirtualMemoryFunc) *Sampler {
	if virtual == nil {
		virtual = mem.VirtualMemoryWithContext
	}
	return &Sampler{threshold: threshold, virtual: virtual}
}

// Sample returns the current memory figures. A failing system query leaves
// the system fields zero and is reported alongside the process figures.
func (s *Sampler) Sample(ctx context.Context) (model.MemoryStats, error) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	ret := model.MemoryStats{HeapAlloc: stats.HeapAlloc, HeapSys: stats.HeapSys}

	virtual, err := s.virtual(ctx)
	if err != nil {
		return ret, err
	}
	ret.Available = virtual.Available

	s.mu.Lock()
	if s.minAvailable == 0 || ret.Available < s.minAvailable {
		s.minAvailable = ret.Available
	}
	ret.MinAvailable = s.minAvailable
	s.mu.Unlock()
	ret.LowMemory = s.threshold > 0 && ret.Available < s.threshold
	return ret, nil
}
