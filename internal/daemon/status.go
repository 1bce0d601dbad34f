package daemon

import (
	"context"
	"time"

	"browserfetch/internal/catalog"
	"browserfetch/internal/logging"
	"browserfetch/internal/preflight"
	"browserfetch/internal/retry"
)

// Status represents daemon runtime information.
type Status struct {
	Running          bool                   `json:"running"`
	PID              int                    `json:"pid"`
	StartedAt        time.Time              `json:"started_at,omitzero"`
	Executor         string                 `json:"executor"`
	LockPath         string                 `json:"lock_path"`
	CatalogPath      string                 `json:"catalog_path"`
	SocketPath       string                 `json:"socket_path"`
	LogPath          string                 `json:"log_path"`
	APIAddress       string                 `json:"api_address,omitempty"`
	Breaker          retry.BreakerSnapshot  `json:"breaker"`
	RetryStates      int                    `json:"retry_states"`
	ActiveTasks      int                    `json:"active_tasks"`
	TaskCounts       map[string]int         `json:"task_counts"`
	Catalog          catalog.Stats          `json:"catalog"`
	Database         catalog.DatabaseHealth `json:"database"`
	Preflight        []preflight.Result     `json:"preflight"`
	EventSubscribers int                    `json:"event_subscribers"`
	EventsDropped    uint64                 `json:"events_dropped"`
}

// Status returns the current daemon status. Catalog failures are logged and
// leave the corresponding fields empty.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:          d.running.Load(),
		PID:              pid(),
		StartedAt:        d.startedAt,
		Executor:         d.execName,
		LockPath:         d.lockPath,
		CatalogPath:      d.store.Path(),
		SocketPath:       d.cfg.Paths.SocketPath,
		LogPath:          d.logPath,
		APIAddress:       d.api.address(),
		Breaker:          d.coord.GlobalState(),
		RetryStates:      d.coord.TaskCount(),
		ActiveTasks:      d.orch.Active(),
		TaskCounts:       make(map[string]int),
		Preflight:        preflight.RunAll(ctx, d.cfg),
		EventSubscribers: d.hub.Subscribers(),
		EventsDropped:    d.eventsDropped(),
	}
	for _, task := range d.orch.List() {
		status.TaskCounts[string(task.Status)]++
	}

	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("catalog stats unavailable", logging.Error(err))
	}
	status.Catalog = stats
	health, err := d.store.Health(ctx)
	if err != nil {
		d.logger.Warn("catalog health check failed", logging.Error(err))
	}
	status.Database = health
	return status
}

func (d *Daemon) eventsDropped() uint64 {
	dropped := d.hub.Dropped()
	if d.redis != nil {
		dropped += d.redis.Dropped()
	}
	if d.notifier != nil {
		dropped += d.notifier.Dropped()
	}
	return dropped
}
