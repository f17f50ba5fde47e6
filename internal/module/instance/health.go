package instance

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/searchgate/server/internal/shared/metrics"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Prober checks whether an instance answers a trivial query.
type Prober interface {
	Probe(ctx context.Context, inst *SearchInstance) error
}

// HTTPProber probes an instance over HTTP.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates a prober using the given client.
func NewHTTPProber(client *http.Client) *HTTPProber {
	return &HTTPProber{client: client}
}

// Probe issues a minimal search and requires a 2xx response.
func (p *HTTPProber) Probe(ctx context.Context, inst *SearchInstance) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, inst.URL+"/search?q=time&format=json", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("probe status %d", resp.StatusCode)
	}
	return nil
}

// HealthMonitor periodically probes registered instances and records their
// health. A circuit breaker per instance keeps a flapping endpoint marked
// unhealthy until it has proven itself again.
type HealthMonitor struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]

	registry *Registry
	repo     Repository
	prober   Prober
	metrics  *metrics.Metrics
	logger   *zap.Logger

	checkInterval time.Duration
	stopMonitor   chan struct{}
}

// HealthMonitorConfig contains health monitor configuration.
type HealthMonitorConfig struct {
	CheckInterval time.Duration
}

// NewHealthMonitor creates a new health monitor. Metrics may be nil.
func NewHealthMonitor(registry *Registry, repo Repository, prober Prober, m *metrics.Metrics, cfg HealthMonitorConfig, logger *zap.Logger) *HealthMonitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	return &HealthMonitor{
		breakers:      make(map[string]*gobreaker.CircuitBreaker[any]),
		registry:      registry,
		repo:          repo,
		prober:        prober,
		metrics:       m,
		logger:        logger,
		checkInterval: cfg.CheckInterval,
		stopMonitor:   make(chan struct{}),
	}
}

// Start starts the background health check loop.
func (m *HealthMonitor) Start() {
	go m.monitorLoop()
}

// Stop stops the health monitor.
func (m *HealthMonitor) Stop() {
	close(m.stopMonitor)
}

func (m *HealthMonitor) monitorLoop() {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopMonitor:
			return
		case <-ticker.C:
			m.checkAll()
		}
	}
}

func (m *HealthMonitor) checkAll() {
	for _, inst := range m.registry.All() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		m.CheckInstance(ctx, inst)
		cancel()
	}
}

// CheckInstance probes a single instance and persists the outcome.
func (m *HealthMonitor) CheckInstance(ctx context.Context, inst *SearchInstance) {
	breaker := m.getOrCreateBreaker(inst.URL)
	start := time.Now()

	_, err := breaker.Execute(func() (any, error) {
		return nil, m.prober.Probe(ctx, inst)
	})
	elapsed := time.Since(start)

	status := HealthStatusHealthy
	if err != nil {
		status = HealthStatusUnhealthy
	}

	m.registry.MarkHealth(inst.URL, status)
	if m.metrics != nil {
		healthy := 0.0
		if status == HealthStatusHealthy {
			healthy = 1.0
		}
		m.metrics.InstanceHealthy.WithLabelValues(inst.URL).Set(healthy)
	}

	if err := m.repo.UpdateHealth(ctx, inst.ID, status, elapsed.Milliseconds(), time.Now().UTC()); err != nil {
		m.logger.Warn("failed to persist instance health",
			zap.String("url", inst.URL),
			zap.Error(err),
		)
	}

	if err != nil {
		m.logger.Warn("instance probe failed",
			zap.String("url", inst.URL),
			zap.Error(err),
		)
	}
}

func (m *HealthMonitor) getOrCreateBreaker(url string) *gobreaker.CircuitBreaker[any] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, ok := m.breakers[url]; ok {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        url,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	breaker := gobreaker.NewCircuitBreaker[any](settings)
	m.breakers[url] = breaker
	return breaker
}
