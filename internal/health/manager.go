// Package health runs periodic self-diagnostics of the querying process —
// host CPU/memory via gopsutil, plus engine-internal gauges (Messenger
// queue depth, outstanding sessions) — and exposes the latest snapshot to
// the REST facade's /v1/health endpoint and, via the EventBus, to MQTT
// telemetry.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kongor-net/agql/internal/client"
	"github.com/kongor-net/agql/internal/config"
	"github.com/kongor-net/agql/internal/events"
	"github.com/kongor-net/agql/internal/util"
)

// Snapshot is the latest self-diagnostic reading.
type Snapshot struct {
	Timestamp           time.Time        `json:"timestamp"`
	System              util.SystemInfo  `json:"system"`
	CPUPercent          float64          `json:"cpu_percent"`
	MemoryUsedPercent   float64          `json:"memory_used_percent"`
	QueueDepth          int              `json:"queue_depth"`
	OutstandingSessions int              `json:"outstanding_sessions"`
}

// Manager runs the periodic self-diagnostic heartbeat.
type Manager struct {
	cfg      *config.Config
	eventBus *events.EventBus
	engine   *client.Client

	mu   sync.RWMutex
	last Snapshot
}

// NewManager creates a health Manager. engine may be nil if no Client has
// been wired yet (e.g. a REST-only deployment querying no fixed engine);
// in that case the engine gauges report zero.
func NewManager(cfg *config.Config, eventBus *events.EventBus, engine *client.Client) *Manager {
	return &Manager{cfg: cfg, eventBus: eventBus, engine: engine}
}

// Start runs the heartbeat loop until ctx is cancelled, sampling once
// immediately so the first /v1/health request after startup is not empty.
func (m *Manager) Start(ctx context.Context) {
	interval := 10 * time.Second

	m.sample(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("health manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("health manager stopped")
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

func (m *Manager) sample(ctx context.Context) {
	snap := Snapshot{
		Timestamp: time.Now(),
		System:    util.GetSystemInfo(),
	}

	if cpuPct, err := util.GetCPUUsage(); err == nil {
		snap.CPUPercent = cpuPct
	} else {
		log.Debug().Err(err).Msg("cpu usage sample failed")
	}

	if memUsage, err := util.GetMemoryUsage(); err == nil {
		snap.MemoryUsedPercent = memUsage.UsedPercent
	} else {
		log.Debug().Err(err).Msg("memory usage sample failed")
	}

	if m.engine != nil {
		snap.QueueDepth = m.engine.QueueDepth()
		snap.OutstandingSessions = m.engine.OutstandingSessions()
	}

	m.mu.Lock()
	m.last = snap
	m.mu.Unlock()

	m.eventBus.Emit(ctx, events.Event{
		Type:   events.EventHeartbeat,
		Source: "health",
		Payload: events.HeartbeatPayload{
			CPUPercent:          snap.CPUPercent,
			MemoryUsedPercent:   snap.MemoryUsedPercent,
			QueueDepth:          snap.QueueDepth,
			OutstandingSessions: snap.OutstandingSessions,
		},
	})
}

// Latest returns the most recent snapshot.
func (m *Manager) Latest() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}
