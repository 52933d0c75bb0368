package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Worker consumes broker-enqueued jobs and funnels them into the same
// handler the in-memory queue uses.
type Worker struct {
	server  *asynq.Server
	handler HandlerFunc
}

func NewWorker(redisConn asynq.RedisClientOpt, concurrency int, handler HandlerFunc) *Worker {
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: concurrency,
	})
	return &Worker{server: server, handler: handler}
}

// Start runs the asynq server until Shutdown. It blocks, so callers
// run it on its own goroutine.
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(string(KindFetchDue), w.handleTask)
	mux.HandleFunc(string(KindPublishAttempt), w.handleTask)

	slog.Info("starting job worker")
	return w.server.Run(mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func (w *Worker) handleTask(ctx context.Context, task *asynq.Task) error {
	var j Job
	if err := json.Unmarshal(task.Payload(), &j); err != nil {
		return err
	}
	if err := j.Validate(); err != nil {
		return err
	}
	return w.handler(ctx, j)
}
