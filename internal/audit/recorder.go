package audit

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/idiotic-core/internal/device"
)

// writeTimeout bounds each log write.
const writeTimeout = 2 * time.Second

// Logger is the subset of logging.Logger the recorder needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// Recorder turns controller events into activity entries. It implements
// protocol.Observer for connections and automation.MetricsWriter for
// routine executions. Write failures are logged, never returned.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a recorder writing to repo.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// DeviceConnected implements protocol.Observer.
func (r *Recorder) DeviceConnected(ctx context.Context, d device.Device, remoteAddr string, created bool) {
	r.record(ctx, &Entry{
		Action:     ActionConnected,
		EntityType: EntityDevice,
		EntityID:   d.ID(),
		Source:     remoteAddr,
		Details:    map[string]any{"class": d.Class(), "name": d.Name(), "created": created},
	})
}

// DeviceDisconnected implements protocol.Observer.
func (r *Recorder) DeviceDisconnected(ctx context.Context, d device.Device, remoteAddr string) {
	r.record(ctx, &Entry{
		Action:     ActionDisconnected,
		EntityType: EntityDevice,
		EntityID:   d.ID(),
		Source:     remoteAddr,
		Details:    map[string]any{"class": d.Class(), "name": d.Name()},
	})
}

// WriteRoutineExecution implements automation.MetricsWriter.
func (r *Recorder) WriteRoutineExecution(routine string, depth int, took time.Duration, runErr error) {
	e := &Entry{
		Action:     ActionExecuted,
		EntityType: EntityRoutine,
		EntityID:   routine,
		Source:     "engine",
		Details:    map[string]any{"depth": depth, "duration_ms": float64(took.Microseconds()) / 1000},
	}
	if runErr != nil {
		e.Action = ActionFailed
		e.Details["error"] = runErr.Error()
	}
	r.record(context.Background(), e)
}

func (r *Recorder) record(ctx context.Context, e *Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := r.repo.Create(ctx, e); err != nil && r.logger != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("recording activity failed", "action", e.Action, "entity", e.EntityID, "error", err)
	}
}
