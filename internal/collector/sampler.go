package collector

import (
	"context"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/darshan-rambhia/fleetmon/internal/model"
)

// Sampler produces one metric for a server.
type Sampler interface {
	Sample(ctx context.Context, server model.Server) (model.Metric, error)
}

// HostSampler reads real gauges for the local machine and synthesizes
// plausible values for every other server.
type HostSampler struct {
	host HostMetrics
	now  func() time.Time

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewHostSampler creates a sampler. A nil rng seeds one from the runtime.
func NewHostSampler(host HostMetrics, rng *rand.Rand) *HostSampler {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &HostSampler{host: host, now: time.Now, rng: rng}
}

// Sample returns exactly one metric. Local reads fail only when the host
// provider fails.
func (s *HostSampler) Sample(ctx context.Context, server model.Server) (model.Metric, error) {
	if IsLocalAddress(server.Address) {
		return s.sampleLocal(ctx, server)
	}
	return s.synthesize(server), nil
}

func (s *HostSampler) sampleLocal(ctx context.Context, server model.Server) (model.Metric, error) {
	cpuPct, err := s.host.CPU(ctx)
	if err != nil {
		return model.Metric{}, err
	}
	memPct, err := s.host.Memory(ctx)
	if err != nil {
		return model.Metric{}, err
	}
	diskPct, err := s.host.Disk(ctx)
	if err != nil {
		return model.Metric{}, err
	}
	return model.Metric{
		ServerID:     server.ID,
		CPUUsage:     round2(cpuPct),
		MemoryUsage:  round2(memPct),
		DiskUsage:    round2(diskPct),
		ResponseTime: 0,
		Status:       model.StatusUp,
		Timestamp:    s.now().UTC(),
	}, nil
}

func (s *HostSampler) synthesize(server model.Server) model.Metric {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := model.Metric{
		ServerID:     server.ID,
		CPUUsage:     round2(s.rng.Float64() * 100),
		MemoryUsage:  round2(s.rng.Float64() * 100),
		DiskUsage:    round2(s.rng.Float64() * 100),
		ResponseTime: float64(s.rng.IntN(500) + 1),
		Status:       model.StatusUp,
		Timestamp:    s.now().UTC(),
	}
	// One in nine samples reports the server down.
	if s.rng.IntN(9)+1 == 1 {
		m.Status = model.StatusDown
	}
	return m
}

// IsLocalAddress reports whether address names the machine fleetmon runs
// on. An empty address counts as local.
func IsLocalAddress(address string) bool {
	a := strings.TrimSpace(address)
	if a == "" {
		return true
	}
	switch strings.ToLower(a) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	ip := net.ParseIP(strings.Trim(a, "[]"))
	return ip != nil && ip.IsLoopback()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
