package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/snapflow/snapflow/internal/lifecycle"
	"github.com/snapflow/snapflow/internal/metrics"
	"github.com/snapflow/snapflow/internal/models"
	"github.com/snapflow/snapflow/internal/repository"
	"github.com/snapflow/snapflow/internal/snapchat"
)

// Result is the structured outcome of one publish attempt. Remote
// failures are fully absorbed here: the caller only ever sees a Result,
// never a propagated error.
type Result struct {
	PostID        int64
	Success       bool
	Skipped       bool // post was not in a publishable state
	RemotePostID  string
	Category      Category
	Retrying      bool
	NextAttemptAt time.Time
	FailureReason string
}

// Publisher runs one publish attempt end to end: state guard, remote
// call, result interpretation, retry decision, lifecycle advancement,
// audit logging.
type Publisher struct {
	posts    repository.PostRepository
	accounts repository.SocialAccountRepository
	log      repository.PublishLogRepository
	remote   snapchat.Client
	policy   Policy
	timeout  time.Duration
	metrics  *metrics.Collector

	now func() time.Time
}

type Option func(*Publisher)

// WithClock replaces the publisher's time source for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

func New(
	posts repository.PostRepository,
	accounts repository.SocialAccountRepository,
	log repository.PublishLogRepository,
	remote snapchat.Client,
	policy Policy,
	timeout time.Duration,
	collector *metrics.Collector,
	opts ...Option,
) *Publisher {
	p := &Publisher{
		posts:    posts,
		accounts: accounts,
		log:      log,
		remote:   remote,
		policy:   policy,
		timeout:  timeout,
		metrics:  collector,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish attempts to publish the post. The post must currently be
// scheduled; the claim is a compare-and-set so a race between the
// scheduler loop and a manual trigger resolves to a single winner, the
// loser aborting with no side effects.
func (p *Publisher) Publish(ctx context.Context, postID int64) Result {
	started := p.now()

	post, err := p.posts.GetByID(ctx, postID)
	if err != nil {
		return Result{PostID: postID, Skipped: true, FailureReason: err.Error()}
	}
	if post == nil {
		return Result{PostID: postID, Skipped: true, FailureReason: "post not found"}
	}
	if post.Status != lifecycle.StatusScheduled {
		slog.Info("skipping publish, post not in scheduled state",
			"post_id", postID, "status", post.Status)
		return Result{PostID: postID, Skipped: true}
	}

	claimed, err := p.posts.TransitionStatus(ctx, postID, lifecycle.StatusScheduled, lifecycle.StatusPublishing)
	if err != nil {
		return Result{PostID: postID, Skipped: true, FailureReason: err.Error()}
	}
	if !claimed {
		// Someone else moved the post since we read it.
		return Result{PostID: postID, Skipped: true}
	}

	account, err := p.accounts.GetByID(ctx, post.AccountID)
	if err == nil && account == nil {
		err = fmt.Errorf("invalid media reference: social account %d not found", post.AccountID)
	}

	var remoteRes *snapchat.PublishResult
	if err == nil {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		remoteRes, err = p.remote.Publish(callCtx, post, account)
		cancel()
	}

	var result Result
	if err != nil {
		result = p.handleFailure(ctx, post, err)
	} else {
		result = p.handleSuccess(ctx, post, remoteRes)
	}

	if p.metrics != nil {
		p.metrics.ObservePublish(result.Success, string(result.Category), result.Retrying, p.now().Sub(started))
	}
	return result
}

func (p *Publisher) handleSuccess(ctx context.Context, post *models.ScheduledPost, res *snapchat.PublishResult) Result {
	if _, err := p.posts.MarkPublished(ctx, post.ID, res.PublishedAt); err != nil {
		slog.Error("failed to mark post published", "post_id", post.ID, "error", err)
	}

	p.appendLog(ctx, &models.PublishLogEntry{
		PostID:        post.ID,
		AttemptStatus: models.AttemptStatusSuccess,
		RemotePostID:  res.RemotePostID,
		Response:      res.Raw,
	})

	p.scheduleNextOccurrence(ctx, post)

	slog.Info("post published", "post_id", post.ID, "remote_post_id", res.RemotePostID)
	return Result{
		PostID:       post.ID,
		Success:      true,
		RemotePostID: res.RemotePostID,
	}
}

func (p *Publisher) handleFailure(ctx context.Context, post *models.ScheduledPost, cause error) Result {
	cls := Classify(cause)

	retry := cls.Retryable && p.policy.ShouldRetry(post.RetryCount, post.MaxRetries)

	entry := &models.PublishLogEntry{
		PostID:       post.ID,
		ErrorMessage: cause.Error(),
		ErrorCode:    string(cls.Category),
	}

	if retry {
		delay := p.policy.DelayFor(post.RetryCount + 1)
		nextAt := p.now().UTC().Add(delay)

		entry.AttemptStatus = models.AttemptStatusRetrying
		p.appendLog(ctx, entry)

		ok, err := p.posts.ScheduleRetry(ctx, post.ID, nextAt)
		if err != nil || !ok {
			slog.Error("failed to schedule retry", "post_id", post.ID, "error", err)
			return p.fail(ctx, post, cls, cause.Error(), false)
		}

		slog.Warn("publish failed, retry scheduled",
			"post_id", post.ID,
			"category", cls.Category,
			"retry_count", post.RetryCount+1,
			"next_attempt_at", nextAt,
			"error", cause)

		return Result{
			PostID:        post.ID,
			Category:      cls.Category,
			Retrying:      true,
			NextAttemptAt: nextAt,
			FailureReason: cause.Error(),
		}
	}

	reason := cause.Error()
	if cls.Retryable {
		// Retryable error class, but the budget is spent.
		reason = fmt.Sprintf("max retries exceeded after %d attempts: %s", post.RetryCount+1, cause.Error())
	}
	return p.fail(ctx, post, cls, reason, true)
}

func (p *Publisher) fail(ctx context.Context, post *models.ScheduledPost, cls Classification, reason string, writeLog bool) Result {
	if writeLog {
		p.appendLog(ctx, &models.PublishLogEntry{
			PostID:        post.ID,
			AttemptStatus: models.AttemptStatusFailed,
			ErrorCode:     string(cls.Category),
			ErrorMessage:  reason,
		})
	}

	if _, err := p.posts.MarkFailed(ctx, post.ID, reason); err != nil {
		slog.Error("failed to mark post failed", "post_id", post.ID, "error", err)
	}

	slog.Warn("publish failed permanently", "post_id", post.ID, "category", cls.Category, "reason", reason)
	return Result{
		PostID:        post.ID,
		Category:      cls.Category,
		FailureReason: reason,
	}
}

// scheduleNextOccurrence clones a recurring post into a fresh scheduled
// row for its next occurrence, if the series is not over.
func (p *Publisher) scheduleNextOccurrence(ctx context.Context, post *models.ScheduledPost) {
	if post.Recurrence == nil {
		return
	}

	next, ok := post.Recurrence.NextAfter(post.ScheduledFor)
	if !ok {
		return
	}
	// A heavily overdue recurring post may have occurrences already in
	// the past; skip forward to the first future one.
	now := p.now()
	for next.Before(now) {
		next, ok = post.Recurrence.NextAfter(next)
		if !ok {
			return
		}
	}

	clone := &models.ScheduledPost{
		UserID:       post.UserID,
		AccountID:    post.AccountID,
		ContentType:  post.ContentType,
		MediaURL:     post.MediaURL,
		ThumbnailURL: post.ThumbnailURL,
		Caption:      post.Caption,
		Duration:     post.Duration,
		ScheduledFor: next,
		Timezone:     post.Timezone,
		Recurrence:   post.Recurrence,
		Status:       lifecycle.StatusScheduled,
		MaxRetries:   post.MaxRetries,
	}

	id, err := p.posts.Create(ctx, nil, clone)
	if err != nil {
		slog.Error("failed to schedule next occurrence", "post_id", post.ID, "error", err)
		return
	}
	slog.Info("next occurrence scheduled", "post_id", post.ID, "next_post_id", id, "scheduled_for", next)
}

func (p *Publisher) appendLog(ctx context.Context, entry *models.PublishLogEntry) {
	if _, err := p.log.Create(ctx, entry); err != nil {
		slog.Error("failed to write publish log entry", "post_id", entry.PostID, "error", err)
	}
}
