package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// HostMetrics reads utilisation gauges of the machine fleetmon runs on.
// All values are percentages in [0, 100].
type HostMetrics interface {
	CPU(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (float64, error)
	Disk(ctx context.Context) (float64, error)
}

// SystemHost reads gauges through gopsutil.
type SystemHost struct {
	DiskPath  string        // defaults to "/"
	CPUWindow time.Duration // sampling window for CPU, defaults to 500ms
}

var _ HostMetrics = SystemHost{}

func (h SystemHost) CPU(ctx context.Context) (float64, error) {
	window := h.CPUWindow
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	pct, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return 0, fmt.Errorf("reading cpu usage: %w", err)
	}
	if len(pct) == 0 {
		return 0, fmt.Errorf("reading cpu usage: no samples")
	}
	return pct[0], nil
}

func (h SystemHost) Memory(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading memory usage: %w", err)
	}
	return vm.UsedPercent, nil
}

func (h SystemHost) Disk(ctx context.Context) (float64, error) {
	path := h.DiskPath
	if path == "" {
		path = "/"
	}
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("reading disk usage of %s: %w", path, err)
	}
	return usage.UsedPercent, nil
}
