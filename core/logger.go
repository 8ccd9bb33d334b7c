package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ProductionLogger is the default Logger/ComponentAwareLogger implementation:
// text output for local development, JSON for log aggregation, with an
// optional metrics layer enabled once a telemetry provider registers itself
// via SetMetricsRegistry.
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	component   string
	format      string
	output      io.Writer

	metricsEnabled bool
}

// NewProductionLogger creates a logger for serviceName. format is "json" or
// "text"; level is "debug", "info", "warn", or "error".
func NewProductionLogger(serviceName, level, format string, debug bool) *ProductionLogger {
	logger := &ProductionLogger{
		level:       strings.ToLower(level),
		debug:       debug || strings.ToLower(level) == "debug",
		serviceName: serviceName,
		component:   "orchestrator/core",
		format:      format,
		output:      os.Stdout,
	}
	trackLogger(logger)
	return logger
}

// WithComponent returns a logger tagged with component, sharing this
// logger's configuration and metrics-enabled state.
func (p *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{
		level:          p.level,
		debug:          p.debug,
		serviceName:    p.serviceName,
		component:      component,
		format:         p.format,
		output:         p.output,
		metricsEnabled: p.metricsEnabled,
	}
}

// EnableMetrics is called once a metrics registry is installed via
// SetMetricsRegistry.
func (p *ProductionLogger) EnableMetrics() {
	p.metricsEnabled = true
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)

	if p.format == "json" {
		logEntry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": p.component,
			"message":   msg,
		}
		if ctx != nil && p.metricsEnabled {
			for k, v := range getContextBaggage(ctx) {
				logEntry["trace."+k] = v
			}
		}
		for k, v := range fields {
			logEntry[k] = v
		}
		if data, err := json.Marshal(logEntry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
	} else {
		traceInfo := ""
		if ctx != nil && p.metricsEnabled {
			if baggage := getContextBaggage(ctx); baggage["run_id"] != "" {
				traceInfo = fmt.Sprintf("[run=%s] ", baggage["run_id"])
			}
		}

		var fieldStr strings.Builder
		if len(fields) > 0 {
			fieldStr.WriteString(" ")
			for k, v := range fields {
				fieldStr.WriteString(fmt.Sprintf("%s=%v ", k, v))
			}
		}

		fmt.Fprintf(p.output, "%s [%s] [%s/%s] %s%s%s\n",
			timestamp, level, p.serviceName, p.component, traceInfo, msg, fieldStr.String())
	}

	if p.metricsEnabled {
		p.emitOperationMetric(level, ctx)
	}
}

func (p *ProductionLogger) emitOperationMetric(level string, ctx context.Context) {
	labels := []string{"level", level, "service", p.serviceName, "component", p.component}
	if ctx != nil {
		emitMetricWithContext(ctx, "taskctl.log.events", 1.0, labels...)
	} else {
		emitMetric("taskctl.log.events", 1.0, labels...)
	}
}

func emitMetric(name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.Counter(name, labels...)
	}
}

func emitMetricWithContext(ctx context.Context, name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.EmitWithContext(ctx, name, value, labels...)
	}
}

// getContextBaggage returns the trace baggage exposed by the registered
// MetricsRegistry through an optional GetBaggage method; a registry without
// one contributes none.
func getContextBaggage(ctx context.Context) map[string]string {
	if b, ok := globalMetricsRegistry.(interface {
		GetBaggage(context.Context) map[string]string
	}); ok {
		return b.GetBaggage(ctx)
	}
	return make(map[string]string)
}

// DetectEnvironment reports whether the process looks like it's running in
// Kubernetes, used to pick the JSON log format by default.
func DetectEnvironment() bool {
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}
