package jobs

import (
	"sync/atomic"

	"github.com/hibiken/asynq"

	"github.com/dadlink/dadlink/internal/telemetry"
)

// Worker processes the engine's background tasks.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	isRunning atomic.Bool
}

// NewWorker creates a task worker over the given Redis instance.
func NewWorker(redisURL string, concurrency int) (*Worker, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, err
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"default":  6,
			"critical": 10,
			"low":      1,
		},
	})

	return &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
	}, nil
}

// RegisterHandler registers a task handler for a task type.
func (w *Worker) RegisterHandler(taskType string, handler asynq.Handler) {
	w.mux.Handle(taskType, handler)
	telemetry.GetGlobalLogger().WithField("task_type", taskType).Info("Registered task handler")
}

// Run starts the worker server. Blocks until shutdown.
func (w *Worker) Run() error {
	w.isRunning.Store(true)
	defer w.isRunning.Store(false)
	return w.server.Run(w.mux)
}

// Shutdown gracefully stops the worker.
func (w *Worker) Shutdown() {
	w.isRunning.Store(false)
	w.server.Shutdown()
}

// IsHealthy reports whether the worker loop is running.
func (w *Worker) IsHealthy() bool {
	return w.isRunning.Load()
}
