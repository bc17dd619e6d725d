package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"cyclegc/pkg/config"
	"cyclegc/pkg/memory"
	"cyclegc/pkg/metrics"
	"cyclegc/pkg/scenario"
)

// session is one collector plus the interpreter driving it.
type session struct {
	cfg     *config.Config
	logger  *log.Logger
	metrics *metrics.CollectorMetrics
	c       *memory.Collector
	interp  *scenario.Interp
}

// newSession builds a collector from the config in ctx. Metrics are
// registered with reg when it is non-nil; suffix keeps collector names
// unique when several sessions share a registry.
func newSession(ctx context.Context, out io.Writer, reg prometheus.Registerer, suffix string) *session {
	cfg := configFromContext(ctx)
	logger := loggerFromContext(ctx)

	name := cfg.Collector.Name
	if name == "" {
		name = uuid.NewString()
	} else if suffix != "" {
		name = fmt.Sprintf("%s-%s", name, suffix)
	}

	s := &session{cfg: cfg, logger: logger}
	opts := append(cfg.CollectorOptions(), memory.WithName(name), memory.WithLogger(logger))
	if reg != nil && cfg.Metrics.Enabled {
		s.metrics = metrics.NewCollectorMetricsWithRegistry(reg, name)
		opts = append(opts, memory.WithObserver(s.metrics))
	}
	s.c = memory.New(opts...)
	s.interp = scenario.New(s.c, scenario.WithOutput(out), scenario.WithLogger(logger))
	return s
}

// sample copies point-in-time collector state into the gauges.
func (s *session) sample() {
	if s.metrics != nil {
		s.metrics.RecordStats(s.c.Stats())
	}
}

// writeMetrics dumps reg in the node_exporter textfile format.
func writeMetrics(logger *log.Logger, path string, reg *prometheus.Registry) error {
	if path == "" || reg == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	logger.Debug("metrics written", "path", path)
	return nil
}
