// Package telemetry exposes the node's operational surface: Prometheus
// metrics fed from engine bus events, plus a small HTTP API with health
// and per-sensor statistics reports.
package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/carbonloop/edgesentry/internal/engine"
	"github.com/carbonloop/edgesentry/internal/version"
	"github.com/carbonloop/edgesentry/pkg/models"
	"github.com/carbonloop/edgesentry/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
)

const defaultListen = ":9090"

// ReportSource supplies per-sensor processing statistics.
type ReportSource interface {
	Report() []models.EngineStats
}

// HealthSource reports per-module health by name.
type HealthSource interface {
	Health(ctx context.Context) map[string]plugin.HealthStatus
}

// Module serves /metrics, /healthz, and /api/v1/report.
type Module struct {
	logger *zap.Logger
	listen string

	reports ReportSource
	health  HealthSource

	httpServer *http.Server
}

// New creates the telemetry module.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "telemetry",
		Version:      "0.1.0",
		Description:  "Metrics and statistics HTTP endpoint",
		Dependencies: []string{"engine"},
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.listen = defaultListen
	if deps.Config != nil {
		if l := deps.Config.GetString("listen"); l != "" {
			m.listen = l
		}
	}
	m.logger.Info("telemetry module initialized", zap.String("listen", m.listen))
	return nil
}

// SetReportSource wires the statistics provider. Call before Start.
func (m *Module) SetReportSource(src ReportSource) { m.reports = src }

// SetHealthSource wires the module health provider. Call before Start.
func (m *Module) SetHealthSource(src HealthSource) { m.health = src }

func (m *Module) Start(_ context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", m.handleHealthz)
	mux.HandleFunc("GET /api/v1/report", m.handleReport)

	m.httpServer = &http.Server{
		Addr:         m.listen,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		if err := m.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("telemetry server failed", zap.Error(err))
		}
	}()

	m.logger.Info("telemetry server listening", zap.String("addr", m.listen))
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	if m.httpServer == nil {
		return nil
	}
	if err := m.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	m.logger.Info("telemetry server stopped")
	return nil
}

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: engine.TopicReadingIngested, Handler: m.onReading},
		{Topic: engine.TopicWindowProcessed, Handler: m.onWindow},
		{Topic: engine.TopicAnomalyDetected, Handler: m.onAnomaly},
	}
}

func (m *Module) onReading(_ context.Context, event plugin.Event) {
	re, ok := event.Payload.(engine.ReadingEvent)
	if !ok {
		return
	}
	readingsTotal.WithLabelValues(re.Outcome.String()).Inc()
}

func (m *Module) onWindow(_ context.Context, event plugin.Event) {
	we, ok := event.Payload.(engine.WindowEvent)
	if !ok {
		return
	}
	windowsTotal.WithLabelValues(we.Reason, strconv.FormatBool(we.Transmitted)).Inc()
	windowLatency.Observe(we.Latency.Seconds())
	if !we.Transmitted {
		bandwidthSavedBytes.Add(float64(we.PayloadBytes))
	}
	windowCO2.WithLabelValues(we.Summary.SensorID).Set(we.Summary.AvgCO2)
	windowQuality.WithLabelValues(we.Summary.SensorID).Set(we.Summary.DataQuality)
}

func (m *Module) onAnomaly(_ context.Context, event plugin.Event) {
	ae, ok := event.Payload.(engine.AnomalyDetectedEvent)
	if !ok {
		return
	}
	anomaliesTotal.WithLabelValues(string(ae.Event.Type), string(ae.Event.Severity)).Inc()
}

func (m *Module) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": version.Version,
	}
	if m.health != nil {
		resp["modules"] = m.health.Health(r.Context())
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (m *Module) handleReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if m.reports == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "no report source configured"})
		return
	}
	stats := m.reports.Report()
	if stats == nil {
		stats = []models.EngineStats{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"generated_at": time.Now().UTC(),
		"sensors":      stats,
	})
}
