package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itsneelabh/taskctl/core"
)

var (
	// globalRegistry holds the singleton Registry, atomic for lock-free reads
	// on the metric-emission hot path; written once by Initialize.
	globalRegistry atomic.Value // *Registry
	initOnce       sync.Once

	telemetryErrors  atomic.Int64
	telemetryDropped atomic.Int64
)

// Config configures telemetry initialization (§4.16's Telemetry config).
type Config struct {
	ServiceName string
	Endpoint    string
}

// Registry wires an OTelProvider into core.MetricsRegistry so any component
// (plugins, scheduler, session store) can emit metrics without importing
// telemetry directly.
type Registry struct {
	config   Config
	provider *OTelProvider
	logger   *TelemetryLogger

	emitted   atomic.Int64
	startTime time.Time
	lastError atomic.Value

	errorLimiter *RateLimiter
}

// Initialize activates the telemetry system once; subsequent calls are
// no-ops returning the first call's error.
func Initialize(config Config) error {
	var initErr error
	initOnce.Do(func() {
		logger := NewTelemetryLogger(config.ServiceName)
		logger.Info("telemetry initialization starting", map[string]interface{}{
			"service_name": config.ServiceName,
			"endpoint":     config.Endpoint,
		})

		registry, err := newRegistry(config)
		if err != nil {
			initErr = err
			logger.Error("telemetry initialization failed", map[string]interface{}{"error": err.Error()})
			return
		}
		registry.logger = logger

		globalRegistry.Store(registry)
		logger.EnableMetrics()
		core.SetMetricsRegistry(registry)

		logger.Info("telemetry system initialized", map[string]interface{}{
			"initialization_ms": time.Since(registry.startTime).Milliseconds(),
		})
	})
	return initErr
}

func newRegistry(config Config) (*Registry, error) {
	startTime := time.Now()

	if config.Endpoint == "" {
		config.Endpoint = "localhost:4318"
	}
	if config.ServiceName == "" {
		config.ServiceName = "taskctl"
	}

	provider, err := NewOTelProvider(config.ServiceName, config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTel provider: %w", err)
	}

	r := &Registry{
		config:       config,
		provider:     provider,
		startTime:    startTime,
		errorLimiter: NewRateLimiter(1 * time.Second),
	}
	r.lastError.Store("")
	return r, nil
}

func (r *Registry) emit(name string, value float64, labels map[string]string) {
	if r.provider == nil {
		return
	}
	r.provider.RecordMetric(name, value, labels)
	r.emitted.Add(1)
}

// Counter implements core.MetricsRegistry.
func (r *Registry) Counter(name string, labels ...string) {
	r.emit(name, 1, parseLabels(labels...))
}

// Gauge implements core.MetricsRegistry.
func (r *Registry) Gauge(name string, value float64, labels ...string) {
	r.emit(name, value, parseLabels(labels...))
}

// Histogram implements core.MetricsRegistry.
func (r *Registry) Histogram(name string, value float64, labels ...string) {
	r.emit(name, value, parseLabels(labels...))
}

// EmitWithContext implements core.MetricsRegistry, correlating with trace
// baggage when present.
func (r *Registry) EmitWithContext(ctx context.Context, name string, value float64, labels ...string) {
	allLabels := appendBaggageToLabels(ctx, labels)
	r.emit(name, value, parseLabels(allLabels...))
}

// Emit is the package-level convenience API for code that imports telemetry
// directly; within this module only the telemetry package calls it.
func Emit(name string, value float64, labels ...string) {
	registry := globalRegistry.Load()
	if registry == nil {
		return
	}
	r := registry.(*Registry)
	r.emit(name, value, parseLabels(labels...))
}

func parseLabels(labels ...string) map[string]string {
	m := make(map[string]string, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		m[labels[i]] = labels[i+1]
	}
	return m
}

// Shutdown flushes and tears down the telemetry system, unregistering it
// from core so subsequent Emit calls become silent no-ops.
func Shutdown(ctx context.Context) error {
	registry := globalRegistry.Load()
	if registry == nil {
		return nil
	}
	r := registry.(*Registry)

	if r.logger != nil {
		r.logger.Info("shutting down telemetry system", map[string]interface{}{
			"total_emitted": r.emitted.Load(),
			"uptime_ms":     time.Since(r.startTime).Milliseconds(),
		})
	}

	var shutdownErr error
	if r.provider != nil {
		shutdownErr = r.provider.Shutdown(ctx)
	}

	core.SetMetricsRegistry(nil)
	globalRegistry.Store((*Registry)(nil))
	return shutdownErr
}

// GetRegistry returns the active registry, or nil if uninitialized.
func GetRegistry() *Registry {
	r := globalRegistry.Load()
	if r == nil {
		return nil
	}
	return r.(*Registry)
}

// GetTelemetryProvider returns the underlying OTelProvider as core.Telemetry,
// for components (e.g. orchestrator) that need span creation directly.
func GetTelemetryProvider() core.Telemetry {
	r := GetRegistry()
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider
}
