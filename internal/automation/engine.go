package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/idiotic-core/internal/device"
	"github.com/nerrad567/idiotic-core/internal/infrastructure/mqtt"
)

// Defaults used when EngineConfig leaves a limit at zero.
const (
	DefaultMaxCascadeDepth = 8
	DefaultQueueLimit      = 1024

	recentExecutions = 32
)

// Logger defines the logging interface used by the automation package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// WSHub broadcasts to WebSocket observers.
type WSHub interface {
	Broadcast(channel string, payload any)
}

// MetricsWriter records routine executions. *influxdb.Client implements it.
type MetricsWriter interface {
	WriteRoutineExecution(routine string, depth int, took time.Duration, runErr error)
}

// EventPublisher announces routine executions on the message bus.
// *mqtt.Client implements it.
type EventPublisher interface {
	PublishEvent(topic string, payload []byte) error
}

// EngineConfig bounds the engine's pending work.
type EngineConfig struct {
	MaxCascadeDepth int
	QueueLimit      int
}

// Execution is the record of one routine run.
type Execution struct {
	ID        string        `json:"id"`
	Routine   string        `json:"routine"`
	Depth     int           `json:"depth"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Pending         int         `json:"pending"`
	Executed        uint64      `json:"executed"`
	Failed          uint64      `json:"failed"`
	Rejected        uint64      `json:"rejected"`
	MaxCascadeDepth int         `json:"max_cascade_depth"`
	QueueLimit      int         `json:"queue_limit"`
	Recent          []Execution `json:"recent"`
}

type work struct {
	routine *Routine
	depth   int
}

// Engine runs routines fired by triggers.
//
// Triggers only Schedule; routines run when a caller Drains the pending
// list, outside every attribute lock. A routine that writes attributes
// may schedule further routines one cascade level deeper, and work past
// MaxCascadeDepth is rejected.
//
// Thread Safety: all methods are safe for concurrent use. At most one
// goroutine drains at a time.
type Engine struct {
	cfg EngineConfig

	mu      sync.Mutex
	pending []work
	recent  []Execution

	drainMu sync.Mutex

	executed atomic.Uint64
	failed   atomic.Uint64
	rejected atomic.Uint64

	logger  Logger
	hub     WSHub
	metrics MetricsWriter
	events  EventPublisher
}

// NewEngine creates an engine. Zero limits take the package defaults.
func NewEngine(cfg EngineConfig, logger Logger) *Engine {
	if cfg.MaxCascadeDepth <= 0 {
		cfg.MaxCascadeDepth = DefaultMaxCascadeDepth
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = DefaultQueueLimit
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{cfg: cfg, logger: logger}
}

// SetHub sets the WebSocket hub that receives routine.fired broadcasts.
func (e *Engine) SetHub(hub WSHub) {
	e.hub = hub
}

// SetMetrics sets the telemetry writer.
func (e *Engine) SetMetrics(m MetricsWriter) {
	e.metrics = m
}

// SetEventPublisher sets the MQTT publisher for routine events.
func (e *Engine) SetEventPublisher(p EventPublisher) {
	e.events = p
}

type depthKey struct{}

// withDepth records the cascade level of the routine running under ctx.
func withDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}

// DepthFrom returns the cascade level carried by ctx: 0 for external
// writes, n inside a routine scheduled at level n.
func DepthFrom(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// Schedule appends r to the pending list one level below the cascade
// level carried by ctx.
//
// Returns:
//   - error: ErrCascadeDepthExceeded or ErrQueueFull; the work is dropped
func (e *Engine) Schedule(ctx context.Context, r *Routine) error {
	depth := DepthFrom(ctx) + 1
	if depth > e.cfg.MaxCascadeDepth {
		e.rejected.Add(1)
		return fmt.Errorf("%w: routine %s at depth %d (max %d)",
			ErrCascadeDepthExceeded, r.Name(), depth, e.cfg.MaxCascadeDepth)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) >= e.cfg.QueueLimit {
		e.rejected.Add(1)
		return fmt.Errorf("%w: routine %s (limit %d)", ErrQueueFull, r.Name(), e.cfg.QueueLimit)
	}
	e.pending = append(e.pending, work{routine: r, depth: depth})
	return nil
}

// Pending returns the number of routines waiting to run.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Drain runs pending routines in FIFO order until none are left. Work
// scheduled by running routines is drained in the same call.
//
// If another goroutine is already draining, Drain returns at once and
// that goroutine picks up the work. Because the active drainer may be
// running work handed off by other callers, cancelling ctx does not
// stop it: routines run under ctx's values without its deadline.
//
// Returns:
//   - int: The number of routines this call ran
func (e *Engine) Drain(ctx context.Context) int {
	ctx = context.WithoutCancel(ctx)
	ran := 0
	for {
		if !e.drainMu.TryLock() {
			return ran
		}
		for {
			w, ok := e.pop()
			if !ok {
				break
			}
			e.run(ctx, w)
			ran++
		}
		e.drainMu.Unlock()

		// Work scheduled between the last pop and the unlock saw a busy
		// drainer and went home.
		if e.Pending() == 0 {
			return ran
		}
	}
}

func (e *Engine) pop() (work, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) == 0 {
		return work{}, false
	}
	w := e.pending[0]
	e.pending[0] = work{}
	e.pending = e.pending[1:]
	return w, true
}

func (e *Engine) run(ctx context.Context, w work) {
	// Routine writes are local: clear any connection origin so the
	// change feed pushes them to every device, including the sender.
	runCtx := withDepth(device.WithOrigin(ctx, nil), w.depth)

	exec := Execution{
		ID:        uuid.New().String(),
		Routine:   w.routine.Name(),
		Depth:     w.depth,
		StartedAt: time.Now().UTC(),
	}
	err := e.invoke(runCtx, w.routine)
	exec.Duration = time.Since(exec.StartedAt)

	e.executed.Add(1)
	if err != nil {
		e.failed.Add(1)
		exec.Error = err.Error()
		e.logger.Error("routine failed",
			"execution_id", exec.ID, "routine", exec.Routine, "depth", exec.Depth,
			"duration_ms", exec.Duration.Milliseconds(), "error", err)
	} else {
		e.logger.Info("routine executed",
			"execution_id", exec.ID, "routine", exec.Routine, "depth", exec.Depth,
			"duration_ms", exec.Duration.Milliseconds())
	}

	e.remember(exec)
	e.report(exec, err)
}

func (e *Engine) invoke(ctx context.Context, r *Routine) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("routine %s panicked: %v", r.Name(), p)
		}
	}()
	return r.Invoke(ctx)
}

func (e *Engine) remember(exec Execution) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recent = append(e.recent, exec)
	if len(e.recent) > recentExecutions {
		e.recent = e.recent[len(e.recent)-recentExecutions:]
	}
}

func (e *Engine) report(exec Execution, err error) {
	if e.hub != nil {
		e.hub.Broadcast("routine.fired", exec)
	}
	if e.metrics != nil {
		e.metrics.WriteRoutineExecution(exec.Routine, exec.Depth, exec.Duration, err)
	}
	if e.events != nil {
		payload, mErr := json.Marshal(exec)
		if mErr != nil {
			return
		}
		if pErr := e.events.PublishEvent(mqtt.Topics{}.RoutineEvent(exec.Routine), payload); pErr != nil {
			e.logger.Warn("publishing routine event failed", "routine", exec.Routine, "error", pErr)
		}
	}
}

// Stats returns counters and the most recent executions, newest last.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Pending:         len(e.pending),
		Executed:        e.executed.Load(),
		Failed:          e.failed.Load(),
		Rejected:        e.rejected.Load(),
		MaxCascadeDepth: e.cfg.MaxCascadeDepth,
		QueueLimit:      e.cfg.QueueLimit,
		Recent:          append([]Execution(nil), e.recent...),
	}
}
