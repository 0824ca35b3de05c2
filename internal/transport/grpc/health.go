package grpcx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cwrk-planet/watchparty/pkg/logger"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName — имя сервиса в health v1. Пустое имя отражает состояние всего процесса.
const ServiceName = "watchparty"

type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// HealthProbe периодически проверяет зависимости и выставляет статус в health-сервере.
type HealthProbe struct {
	hs      *health.Server
	checks  []Check
	every   time.Duration
	timeout time.Duration

	mu      sync.RWMutex
	lastErr error
}

func NewHealthProbe(hs *health.Server, every time.Duration, checks ...Check) *HealthProbe {
	if every <= 0 {
		every = 10 * time.Second
	}
	return &HealthProbe{hs: hs, checks: checks, every: every, timeout: every / 2}
}

// CheckOnce прогоняет все проверки и обновляет статус.
func (p *HealthProbe) CheckOnce(ctx context.Context) error {
	var failed error
	for _, c := range p.checks {
		cctx, cancel := context.WithTimeout(ctx, p.timeout)
		err := c.Fn(cctx)
		cancel()
		if err != nil {
			failed = fmt.Errorf("%s: %w", c.Name, err)
			break
		}
	}

	st := healthpb.HealthCheckResponse_SERVING
	if failed != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	p.hs.SetServingStatus("", st)
	p.hs.SetServingStatus(ServiceName, st)

	p.mu.Lock()
	changed := (p.lastErr == nil) != (failed == nil)
	p.lastErr = failed
	p.mu.Unlock()
	if changed {
		logger.FromContext(ctx).Warn("health changed", "status", st.String(), "err", failed)
	}
	return failed
}

// Err — результат последней проверки.
func (p *HealthProbe) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// Run крутит проверки до отмены ctx, затем переводит сервер в NOT_SERVING.
func (p *HealthProbe) Run(ctx context.Context) error {
	_ = p.CheckOnce(ctx)
	ticker := time.NewTicker(p.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.hs.Shutdown()
			return nil
		case <-ticker.C:
			_ = p.CheckOnce(ctx)
		}
	}
}
