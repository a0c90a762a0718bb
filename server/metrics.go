package server

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemMetrics reports host memory and this daemon's own footprint for
// the status endpoint.
type SystemMetrics struct {
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
	ProcessRSSMB  float64 `json:"process_rss_mb"`
	Goroutines    int     `json:"goroutines"`
}

const (
	bytesPerMB = 1024 * 1024
	bytesPerGB = 1024 * 1024 * 1024
)

// collectSystemMetrics gathers current resource usage. Collection failures
// leave the affected fields at zero; the status endpoint must answer even
// when /proc is unreadable.
func (s *LoomServer) collectSystemMetrics() SystemMetrics {
	metrics := SystemMetrics{
		Goroutines: runtime.NumGoroutine(),
	}

	if v, err := mem.VirtualMemory(); err == nil && v.Total > 0 {
		metrics.MemoryTotalGB = float64(v.Total) / bytesPerGB
		metrics.MemoryUsedGB = float64(v.Total-v.Available) / bytesPerGB
		metrics.MemoryPercent = (metrics.MemoryUsedGB / metrics.MemoryTotalGB) * 100
	} else if err != nil {
		s.logger.Debugw("Failed to read host memory stats", "error", err)
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil && info != nil {
			metrics.ProcessRSSMB = float64(info.RSS) / bytesPerMB
		}
	}

	return metrics
}
