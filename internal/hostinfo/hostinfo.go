// Package hostinfo reads host metrics through gopsutil.
package hostinfo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

const cpuSampleInterval = time.Second

// gopsutil entry points, overridable for tests.
var (
	cpuPercent     = cpu.PercentWithContext
	virtualMemory  = mem.VirtualMemoryWithContext
	diskUsage      = disk.UsageWithContext
	hostInfo       = host.InfoWithContext
	loadAvg        = load.AvgWithContext
	netIOCounters  = net.IOCountersWithContext
	netConnections = net.ConnectionsWithContext
	listProcesses  = listProcessSamples
	now            = time.Now
)

var errNoCPUSamples = errors.New("no cpu samples")

// Status is the summary behind /status.
type Status struct {
	OS          string
	Platform    string
	Kernel      string
	Hostname    string
	CPUPercent  float64
	RAMPercent  float64
	DiskPercent float64
	Uptime      time.Duration
	Load1       float64
	Load5       float64
	Load15      float64
}

// ProcessSample is one process in a top-N listing.
type ProcessSample struct {
	PID        int32
	Name       string
	CPUPercent float64
	MemPercent float32
}

// ProcessReport is the top-N listing behind /system.
type ProcessReport struct {
	TopCPU []ProcessSample
	TopRAM []ProcessSample
	Total  int
}

// NetworkStats is the summary behind /network.
type NetworkStats struct {
	Connections int
	BytesSent   uint64
	BytesRecv   uint64
}

// StorageStats is the summary behind /storage.
type StorageStats struct {
	Path        string
	Total       uint64
	Used        uint64
	Free        uint64
	UsedPercent float64
}

// Provider answers metric queries for a fixed disk path.
type Provider struct {
	diskPath string
}

// NewProvider constructs a Provider reporting disk usage for diskPath.
func NewProvider(diskPath string) *Provider {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Provider{diskPath: diskPath}
}

// Status samples CPU over one second and reads memory, disk, host and load.
// Host and load failures are tolerated; CPU, memory and disk are required.
func (p *Provider) Status(ctx context.Context) (Status, error) {
	cpuSamples, err := cpuPercent(ctx, cpuSampleInterval, false)
	if err != nil {
		return Status{}, fmt.Errorf("read cpu: %w", err)
	}
	if len(cpuSamples) == 0 {
		return Status{}, fmt.Errorf("read cpu: %w", errNoCPUSamples)
	}

	vm, err := virtualMemory(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("read memory: %w", err)
	}

	usage, err := diskUsage(ctx, p.diskPath)
	if err != nil {
		return Status{}, fmt.Errorf("read disk %s: %w", p.diskPath, err)
	}

	status := Status{
		CPUPercent:  cpuSamples[0],
		RAMPercent:  vm.UsedPercent,
		DiskPercent: usage.UsedPercent,
	}

	if info, infoErr := hostInfo(ctx); infoErr == nil && info != nil {
		status.OS = info.OS
		status.Platform = info.Platform
		status.Kernel = info.KernelVersion
		status.Hostname = info.Hostname
		if info.BootTime > 0 {
			status.Uptime = now().Sub(time.Unix(int64(info.BootTime), 0)).Truncate(time.Second)
		}
	}

	if avg, loadErr := loadAvg(ctx); loadErr == nil && avg != nil {
		status.Load1, status.Load5, status.Load15 = avg.Load1, avg.Load5, avg.Load15
	}

	return status, nil
}

// TopProcesses returns the n heaviest processes by CPU and by memory.
func (p *Provider) TopProcesses(ctx context.Context, n int) (ProcessReport, error) {
	samples, err := listProcesses(ctx)
	if err != nil {
		return ProcessReport{}, fmt.Errorf("list processes: %w", err)
	}

	return ProcessReport{
		TopCPU: topN(samples, n, func(a, b ProcessSample) bool { return a.CPUPercent > b.CPUPercent }),
		TopRAM: topN(samples, n, func(a, b ProcessSample) bool { return a.MemPercent > b.MemPercent }),
		Total:  len(samples),
	}, nil
}

// Network returns the connection count and aggregate interface counters.
func (p *Provider) Network(ctx context.Context) (NetworkStats, error) {
	counters, err := netIOCounters(ctx, false)
	if err != nil {
		return NetworkStats{}, fmt.Errorf("read network counters: %w", err)
	}

	conns, err := netConnections(ctx, "all")
	if err != nil {
		return NetworkStats{}, fmt.Errorf("read connections: %w", err)
	}

	stats := NetworkStats{Connections: len(conns)}
	for _, c := range counters {
		stats.BytesSent += c.BytesSent
		stats.BytesRecv += c.BytesRecv
	}

	return stats, nil
}

// Storage returns usage for path, or the provider's disk path when empty.
func (p *Provider) Storage(ctx context.Context, path string) (StorageStats, error) {
	if path == "" {
		path = p.diskPath
	}

	usage, err := diskUsage(ctx, path)
	if err != nil {
		return StorageStats{}, fmt.Errorf("read disk %s: %w", path, err)
	}

	return StorageStats{
		Path:        path,
		Total:       usage.Total,
		Used:        usage.Used,
		Free:        usage.Free,
		UsedPercent: usage.UsedPercent,
	}, nil
}

func listProcessSamples(ctx context.Context) ([]ProcessSample, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	samples := make([]ProcessSample, 0, len(procs))
	for _, proc := range procs {
		// Processes exit between listing and inspection; skip them.
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}
		cpuPct, err := proc.CPUPercentWithContext(ctx)
		if err != nil {
			continue
		}
		memPct, err := proc.MemoryPercentWithContext(ctx)
		if err != nil {
			continue
		}
		samples = append(samples, ProcessSample{
			PID:        proc.Pid,
			Name:       name,
			CPUPercent: cpuPct,
			MemPercent: memPct,
		})
	}

	return samples, nil
}

func topN(samples []ProcessSample, n int, less func(a, b ProcessSample) bool) []ProcessSample {
	sorted := make([]ProcessSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}
