package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the small fixed set of jobs the scheduler emits.
type Kind string

const (
	KindFetchDue       Kind = "scheduler:fetch_due"
	KindPublishAttempt Kind = "publish:attempt"
)

type FetchDuePayload struct {
	Limit int `json:"limit"`
}

type PublishAttemptPayload struct {
	PostID       int64     `json:"post_id"`
	RetryCount   int       `json:"retry_count"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// Job is a tagged union over the job kinds: exactly one payload field
// is set, matching Kind.
type Job struct {
	ID       string                 `json:"id"`
	Kind     Kind                   `json:"kind"`
	FetchDue *FetchDuePayload       `json:"fetch_due,omitempty"`
	Publish  *PublishAttemptPayload `json:"publish,omitempty"`
}

func NewFetchDueJob(limit int) Job {
	return Job{
		ID:       uuid.New().String(),
		Kind:     KindFetchDue,
		FetchDue: &FetchDuePayload{Limit: limit},
	}
}

func NewPublishAttemptJob(item *Item) Job {
	return Job{
		ID:   uuid.New().String(),
		Kind: KindPublishAttempt,
		Publish: &PublishAttemptPayload{
			PostID:       item.PostID,
			RetryCount:   item.RetryCount,
			ScheduledFor: item.ScheduledFor,
		},
	}
}

// Validate checks that the payload matches the declared kind.
func (j Job) Validate() error {
	switch j.Kind {
	case KindFetchDue:
		if j.FetchDue == nil {
			return fmt.Errorf("fetch_due job %s has no payload", j.ID)
		}
	case KindPublishAttempt:
		if j.Publish == nil {
			return fmt.Errorf("publish job %s has no payload", j.ID)
		}
	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
	return nil
}

// HandlerFunc consumes a job. Both JobQueue implementations funnel
// into the same handler.
type HandlerFunc func(ctx context.Context, j Job) error

// JobQueue carries scheduler-emitted jobs to their handler. The
// in-memory implementation dispatches to local goroutines; the broker
// implementation hands them to asynq. The pipeline logic does not
// depend on which backs it.
type JobQueue interface {
	Enqueue(ctx context.Context, j Job) error
	Close() error
}
