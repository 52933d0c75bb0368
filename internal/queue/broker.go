package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// BrokerJobQueue hands jobs to asynq so they survive restarts and can
// be consumed by a separate worker pool. Pair it with a Worker running
// against the same Redis.
type BrokerJobQueue struct {
	client *asynq.Client
}

func NewBrokerJobQueue(client *asynq.Client) *BrokerJobQueue {
	return &BrokerJobQueue{client: client}
}

func (q *BrokerJobQueue) Enqueue(ctx context.Context, j Job) error {
	if err := j.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	task := asynq.NewTask(string(j.Kind), payload)
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", j.Kind, err)
	}
	return nil
}

func (q *BrokerJobQueue) Close() error {
	return q.client.Close()
}
