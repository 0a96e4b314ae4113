package model

import "time"

// MemoryStats is a sample of process and system memory.
type MemoryStats struct {
	HeapAlloc uint64 `json:"heapAlloc"`
	HeapSys   uint64 `json:"heapSys"`
	// Available is the memory the system can still hand out.
	Available uint64 `json:"available"`
	// MinAvailable is the lowest Available seen since start.
	MinAvailable uint64 `json:"minAvailable"`
	LowMemory    bool   `json:"lowMemory"`
}

// Report is the periodic status snapshot of the orchestrator.
type Report struct {
	Sequence int64         `json:"sequence"`
	Uptime   time.Duration `json:"uptime"`
	Runs     int           `json:"runs"`
	Tasks    int           `json:"tasks"`
	Active   []ScenarioID  `json:"active,omitempty"`
	Memory   MemoryStats   `json:"memory"`
	Last     *Run          `json:"last,omitempty"`
}

// Fault describes a kernel level fault: a watchdog reset or a stack overflow.
type Fault struct {
	Kind   string `json:"kind"`
	Task   string `json:"task"`
	Core   int    `json:"core"`
	Detail string `json:"detail,omitempty"`
}
