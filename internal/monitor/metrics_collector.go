package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/t77yq/outbreak-sentinel/internal/model"
)

const systemMetricsSubject = "metrics.system"

// AlertStats summarizes the alerts seen since the collector started
type AlertStats struct {
	Total      int                     `json:"total"`
	ByType     map[model.AlertType]int `json:"by_type"`
	ByLocation map[string]int          `json:"by_location"`
}

// SystemMetrics is the snapshot published on every collection tick
type SystemMetrics struct {
	Timestamp   time.Time  `json:"timestamp"`
	CPUUsage    float64    `json:"cpu_usage"`
	MemoryUsage float64    `json:"memory_usage"`
	Alerts      AlertStats `json:"alerts"`
}

// MetricsCollector collects host metrics and alert counts
type MetricsCollector struct {
	logger   *zap.Logger
	nc       *nats.Conn
	js       nats.JetStreamContext
	interval time.Duration
	mu       sync.RWMutex
	stats    AlertStats
	sub      *nats.Subscription
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(nc *nats.Conn, js nats.JetStreamContext, interval time.Duration, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger:   logger.Named("metrics-collector"),
		nc:       nc,
		js:       js,
		interval: interval,
		stats: AlertStats{
			ByType:     make(map[model.AlertType]int),
			ByLocation: make(map[string]int),
		},
		stop: make(chan struct{}),
	}
}

// Start starts the metrics collector. The alert stream must exist.
func (c *MetricsCollector) Start(ctx context.Context) error {
	c.logger.Info("Starting metrics collector")

	// Only count alerts published from now on
	sub, err := c.js.Subscribe(alertSubjectPrefix+"*", c.handleAlert, nats.DeliverNew())
	if err != nil {
		return fmt.Errorf("failed to subscribe to alerts: %w", err)
	}
	c.sub = sub

	go c.collectLoop(ctx)

	return nil
}

// Stop stops the metrics collector
func (c *MetricsCollector) Stop() {
	c.stopOnce.Do(func() {
		c.logger.Info("Stopping metrics collector")
		if c.sub != nil {
			if err := c.sub.Unsubscribe(); err != nil {
				c.logger.Warn("Failed to unsubscribe from alerts", zap.Error(err))
			}
		}
		close(c.stop)
	})
}

// handleAlert counts a published alert
func (c *MetricsCollector) handleAlert(msg *nats.Msg) {
	if msg.Subject == alertStatusSubject {
		return
	}

	var alert model.GeneratedAlert
	if err := json.Unmarshal(msg.Data, &alert); err != nil {
		c.logger.Error("Failed to unmarshal alert", zap.Error(err))
		return
	}

	c.mu.Lock()
	c.stats.Total++
	c.stats.ByType[alert.Type]++
	c.stats.ByLocation[alert.Location]++
	c.mu.Unlock()
}

// collectLoop runs the metrics collection loop
func (c *MetricsCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.collectMetrics()
		}
	}
}

// collectMetrics samples the host and publishes a snapshot
func (c *MetricsCollector) collectMetrics() {
	cpuPercent, err := cpu.Percent(0, false)
	if err != nil || len(cpuPercent) == 0 {
		c.logger.Error("Failed to get CPU usage", zap.Error(err))
		return
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		c.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}

	metrics := SystemMetrics{
		Timestamp:   time.Now(),
		CPUUsage:    cpuPercent[0],
		MemoryUsage: memInfo.UsedPercent,
		Alerts:      c.GetAlertStats(),
	}

	data, err := json.Marshal(metrics)
	if err != nil {
		c.logger.Error("Failed to marshal metrics", zap.Error(err))
		return
	}

	// metrics.system is not covered by a stream
	if err := c.nc.Publish(systemMetricsSubject, data); err != nil {
		c.logger.Error("Failed to publish metrics", zap.Error(err))
		return
	}

	c.logger.Debug("Metrics collected",
		zap.Float64("cpu_usage", metrics.CPUUsage),
		zap.Float64("memory_usage", metrics.MemoryUsage),
		zap.Int("alert_count", metrics.Alerts.Total))
}

// GetAlertStats returns a copy of the current alert counts
func (c *MetricsCollector) GetAlertStats() AlertStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := AlertStats{
		Total:      c.stats.Total,
		ByType:     make(map[model.AlertType]int, len(c.stats.ByType)),
		ByLocation: make(map[string]int, len(c.stats.ByLocation)),
	}
	for k, v := range c.stats.ByType {
		stats.ByType[k] = v
	}
	for k, v := range c.stats.ByLocation {
		stats.ByLocation[k] = v
	}
	return stats
}
