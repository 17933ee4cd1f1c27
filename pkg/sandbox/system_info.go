package sandbox

import (
	"os"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/denysvitali/ncds-go/internal/models"
)

// systemStats reports process and data directory usage. Failing lookups are
// logged and leave their fields at zero.
func (s *Server) systemStats() models.SystemStats {
	var stats models.SystemStats

	if usage, err := disk.Usage(s.store.dataDir); err != nil {
		s.logger.Warnf("Failed to get disk usage: %v", err)
	} else {
		stats.DiskTotal = usage.Total
		stats.DiskUsed = usage.Used
		stats.DiskFree = usage.Free
		stats.DiskPercent = usage.UsedPercent
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.logger.Warnf("Failed to get process info: %v", err)
		return stats
	}

	if cpu, err := proc.CPUPercent(); err != nil {
		s.logger.Warnf("Failed to get CPU percent: %v", err)
	} else {
		stats.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err != nil {
		s.logger.Warnf("Failed to get memory info: %v", err)
	} else {
		stats.MemoryRSS = mem.RSS
	}
	if pct, err := proc.MemoryPercent(); err != nil {
		s.logger.Warnf("Failed to get memory percent: %v", err)
	} else {
		stats.MemoryPercent = pct
	}

	return stats
}
