package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron"
	config "github.com/snapflow/snapflow/configs"
	"github.com/snapflow/snapflow/internal/metrics"
	"github.com/snapflow/snapflow/internal/publisher"
	"github.com/snapflow/snapflow/internal/queue"
	"github.com/snapflow/snapflow/internal/repository"
)

// PostPublisher runs one publish attempt and reports its structured
// outcome. Satisfied by *publisher.Publisher.
type PostPublisher interface {
	Publish(ctx context.Context, postID int64) publisher.Result
}

// Scheduler drives the pipeline: a cron scan tick finds due posts and
// admits them to the publishing queue, a faster drain tick releases
// queued posts through the job queue to the publisher. Individual
// publish outcomes never stop the loop.
type Scheduler struct {
	cfg   config.Scheduler
	posts repository.PostRepository
	pq    *queue.PublishQueue
	jobs  queue.JobQueue
	pub   PostPublisher
	lock  *Lock // optional
	stats *metrics.Collector

	cron *cron.Cron
	stop chan struct{}
	done chan struct{}
}

func New(
	cfg config.Scheduler,
	posts repository.PostRepository,
	pq *queue.PublishQueue,
	jobs queue.JobQueue,
	pub PostPublisher,
	lock *Lock,
	stats *metrics.Collector,
) *Scheduler {
	return &Scheduler{
		cfg:   cfg,
		posts: posts,
		pq:    pq,
		jobs:  jobs,
		pub:   pub,
		lock:  lock,
		stats: stats,
	}
}

// Start begins the scan and drain ticks. The first scan fires
// immediately so a restart picks up overdue work without waiting a
// full interval.
func (s *Scheduler) Start() error {
	if s.stop != nil {
		return fmt.Errorf("scheduler already started")
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.ScanInterval)
	if err := s.cron.AddFunc(spec, s.scanTick); err != nil {
		return fmt.Errorf("failed to register scan tick: %w", err)
	}
	s.cron.Start()
	s.scanTick()

	go s.drainLoop()

	slog.Info("scheduler started",
		"scan_interval", s.cfg.ScanInterval,
		"drain_interval", s.cfg.DrainInterval,
		"max_concurrent", s.cfg.MaxConcurrent,
		"rate_limit", s.cfg.RateLimit)
	return nil
}

// Stop halts the ticks and waits for the drain loop to exit. In-flight
// publish attempts settle through the job queue's own shutdown.
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	s.cron.Stop()
	close(s.stop)
	<-s.done

	if s.lock != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.lock.Release(ctx); err != nil {
			slog.Warn("failed to release scheduler lock", "error", err)
		}
	}
	slog.Info("scheduler stopped")
}

// HandleJob is the handler both job queue backends funnel into.
func (s *Scheduler) HandleJob(ctx context.Context, j queue.Job) error {
	switch j.Kind {
	case queue.KindFetchDue:
		return s.fetchDue(ctx, j.FetchDue.Limit)
	case queue.KindPublishAttempt:
		s.publishAttempt(ctx, j.Publish)
		return nil
	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
}

func (s *Scheduler) scanTick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.lock != nil {
		held, err := s.lock.TryAcquire(ctx)
		if err != nil {
			slog.Warn("scheduler lock check failed, skipping scan", "error", err)
			return
		}
		if !held {
			return
		}
	}

	if err := s.jobs.Enqueue(ctx, queue.NewFetchDueJob(s.cfg.ScanBatchLimit)); err != nil {
		slog.Error("failed to enqueue fetch-due job", "error", err)
	}
}

func (s *Scheduler) fetchDue(ctx context.Context, limit int) error {
	due, err := s.posts.GetDue(ctx, time.Now().UTC(), limit)
	if err != nil {
		return fmt.Errorf("due-post scan failed: %w", err)
	}

	admitted := 0
	for _, post := range due {
		if s.pq.Add(post) {
			admitted++
		}
	}

	if s.stats != nil {
		s.stats.ScanBatchSize.Observe(float64(len(due)))
	}
	if len(due) > 0 {
		slog.Info("due-post scan complete", "found", len(due), "admitted", admitted)
	}
	return nil
}

func (s *Scheduler) drainLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.drain()
		}
	}
}

// drain releases queued posts until the queue reports none available,
// either because it is empty or a cap is exhausted.
func (s *Scheduler) drain() {
	ctx := context.Background()
	for {
		item, ok := s.pq.GetNext()
		if !ok {
			break
		}
		if err := s.jobs.Enqueue(ctx, queue.NewPublishAttemptJob(item)); err != nil {
			// The slot must not leak when dispatch fails; the post stays
			// due and the next scan re-admits it.
			slog.Error("failed to dispatch publish attempt", "post_id", item.PostID, "error", err)
			s.pq.MarkProcessed(item.PostID, false)
		}
	}
	s.observeQueue()
}

func (s *Scheduler) publishAttempt(ctx context.Context, payload *queue.PublishAttemptPayload) {
	success := false
	// The processing slot is freed on every exit path, panics included.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("publish attempt panicked", "post_id", payload.PostID, "panic", fmt.Sprint(r))
		}
		s.pq.MarkProcessed(payload.PostID, success)
		s.observeQueue()
	}()

	res := s.pub.Publish(ctx, payload.PostID)
	success = res.Success
}

func (s *Scheduler) observeQueue() {
	if s.stats == nil {
		return
	}
	st := s.pq.GetStats()
	s.stats.QueuePending.Set(float64(st.Pending))
	s.stats.QueueInFlight.Set(float64(st.InFlight))
}

// RemoveFromQueue drops a pending queue entry for a cancelled post.
// Best effort: an in-flight post is owned by the publisher until the
// attempt settles.
func (s *Scheduler) RemoveFromQueue(postID int64) bool {
	return s.pq.Remove(postID)
}
