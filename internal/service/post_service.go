package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/snapflow/snapflow/internal/lifecycle"
	"github.com/snapflow/snapflow/internal/models"
	"github.com/snapflow/snapflow/internal/repository"
	"github.com/snapflow/snapflow/internal/transfer"
)

const scheduledTimeLayout = "2006-01-02T15:04"

var ErrPostNotFound = errors.New("post doesn't exist")

// ValidationError reports a rejected field so handlers can return it
// to the caller verbatim.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// QueueRemover drops a pending post from the publishing queue.
// Satisfied by the scheduler; removal is best effort because an
// in-flight attempt is owned by the publisher until it settles.
type QueueRemover interface {
	RemoveFromQueue(postID int64) bool
}

type PostService interface {
	SchedulePost(ctx context.Context, userID int64, pc *transfer.PostCreation) (int64, error)
	List(ctx context.Context, userID int64) ([]*models.ScheduledPost, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.ScheduledPost, error)
	UpdatePost(ctx context.Context, userID, postID int64, pu *transfer.PostUpdate) error
	CancelPost(ctx context.Context, userID, postID int64) error
	RetryPost(ctx context.Context, userID, postID int64, at time.Time) error
	Remove(ctx context.Context, userID, postID int64) error
	PublishHistory(ctx context.Context, userID, postID int64) ([]*models.PublishLogEntry, error)
}

type postService struct {
	db      *sql.DB
	pr      repository.PostRepository
	ac      repository.SocialAccountRepository
	pl      repository.PublishLogRepository
	remover QueueRemover
	now     func() time.Time
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	ac repository.SocialAccountRepository,
	pl repository.PublishLogRepository,
	remover QueueRemover) PostService {
	return &postService{
		db:      db,
		pr:      pr,
		ac:      ac,
		pl:      pl,
		remover: remover,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *postService) SchedulePost(ctx context.Context, userID int64, pc *transfer.PostCreation) (int64, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return 0, err
	}

	scheduledFor, err := s.parseScheduledTime(pc.ScheduledFor, pc.Timezone)
	if err != nil {
		return 0, err
	}
	if !scheduledFor.After(s.now()) {
		return 0, ValidationError{Field: "scheduled_for", Reason: "must be in the future"}
	}

	if err := validateContent(pc.ContentType, pc.Caption, pc.MediaURL, pc.Duration); err != nil {
		return 0, err
	}
	if err := validateRecurrence(pc.Recurrence); err != nil {
		return 0, err
	}

	exists, err := s.ac.CheckByUserID(ctx, pc.AccountID, userID)
	if err != nil {
		return 0, fmt.Errorf("error checking social account %d: %w", pc.AccountID, err)
	}
	if !exists {
		return 0, ValidationError{Field: "account_id", Reason: "social account does not exist"}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	post := models.ScheduledPost{
		UserID:       userID,
		AccountID:    pc.AccountID,
		ContentType:  pc.ContentType,
		MediaURL:     pc.MediaURL,
		ThumbnailURL: pc.ThumbnailURL,
		Caption:      pc.Caption,
		Duration:     pc.Duration,
		ScheduledFor: scheduledFor.UTC(),
		Timezone:     pc.Timezone,
		Recurrence:   pc.Recurrence,
		Status:       lifecycle.StatusScheduled,
		MaxRetries:   pc.MaxRetries,
	}

	postID, err := s.pr.Create(ctx, tx, &post)
	if err != nil {
		return 0, fmt.Errorf("error creating post: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("post scheduled", "post_id", postID, "scheduled_for", post.ScheduledFor)
	return postID, nil
}

// UpdatePost applies partial edits. Only draft and scheduled posts are
// editable; anything past publishing is immutable.
func (s *postService) UpdatePost(ctx context.Context, userID, postID int64, pu *transfer.PostUpdate) error {
	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return err
	}

	if post.Status != lifecycle.StatusDraft && post.Status != lifecycle.StatusScheduled {
		return ValidationError{Field: "status", Reason: fmt.Sprintf("cannot edit a %s post", post.Status)}
	}

	if pu.Caption != nil {
		post.Caption = *pu.Caption
	}
	if pu.MediaURL != nil {
		post.MediaURL = *pu.MediaURL
	}
	if pu.ThumbnailURL != nil {
		post.ThumbnailURL = *pu.ThumbnailURL
	}
	if pu.Duration != nil {
		post.Duration = *pu.Duration
	}
	if pu.Timezone != nil {
		post.Timezone = *pu.Timezone
	}
	if pu.ScheduledFor != nil {
		scheduledFor, err := s.parseScheduledTime(*pu.ScheduledFor, post.Timezone)
		if err != nil {
			return err
		}
		if !scheduledFor.After(s.now()) {
			return ValidationError{Field: "scheduled_for", Reason: "must be in the future"}
		}
		post.ScheduledFor = scheduledFor.UTC()
	}

	if err := validateContent(post.ContentType, post.Caption, post.MediaURL, post.Duration); err != nil {
		return err
	}

	if err := s.pr.Update(ctx, post); err != nil {
		return fmt.Errorf("error updating post: %w", err)
	}
	return nil
}

// CancelPost moves a draft or scheduled post to cancelled and drops any
// pending queue entry. A post already handed to the publisher keeps its
// slot; the attempt settles on its own.
func (s *postService) CancelPost(ctx context.Context, userID, postID int64) error {
	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return err
	}

	if err := lifecycle.Transition(post.Status, lifecycle.StatusCancelled); err != nil {
		return err
	}

	ok, err := s.pr.TransitionStatus(ctx, postID, post.Status, lifecycle.StatusCancelled)
	if err != nil {
		return fmt.Errorf("error cancelling post: %w", err)
	}
	if !ok {
		// Lost the race, likely to the publisher picking it up.
		return &lifecycle.ErrInvalidTransition{From: post.Status, To: lifecycle.StatusCancelled}
	}

	if s.remover != nil {
		if removed := s.remover.RemoveFromQueue(postID); removed {
			slog.Info("cancelled post removed from queue", "post_id", postID)
		}
	}
	return nil
}

// RetryPost puts a failed post back on the schedule with a fresh retry
// budget.
func (s *postService) RetryPost(ctx context.Context, userID, postID int64, at time.Time) error {
	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return err
	}

	if err := lifecycle.Transition(post.Status, lifecycle.StatusScheduled); err != nil {
		return err
	}

	if at.IsZero() {
		at = s.now()
	}
	ok, err := s.pr.ResetForRetry(ctx, postID, at.UTC())
	if err != nil {
		return fmt.Errorf("error rescheduling post: %w", err)
	}
	if !ok {
		return &lifecycle.ErrInvalidTransition{From: post.Status, To: lifecycle.StatusScheduled}
	}
	return nil
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.ScheduledPost, error) {
	return s.ownedPost(ctx, userID, postID)
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	posts, err := s.pr.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing posts: %w", err)
	}
	return posts, nil
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return err
	}

	if !lifecycle.IsDeletable(post.Status) {
		return ValidationError{Field: "status", Reason: fmt.Sprintf("cannot delete a %s post, cancel it first", post.Status)}
	}

	if err := s.pr.Remove(ctx, postID); err != nil {
		return fmt.Errorf("error removing post: %w", err)
	}
	return nil
}

func (s *postService) PublishHistory(ctx context.Context, userID, postID int64) ([]*models.PublishLogEntry, error) {
	if _, err := s.ownedPost(ctx, userID, postID); err != nil {
		return nil, err
	}

	entries, err := s.pl.ListByPostID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error listing publish history: %w", err)
	}
	return entries, nil
}

func (s *postService) ownedPost(ctx context.Context, userID, postID int64) (*models.ScheduledPost, error) {
	if userID == 0 || postID == 0 {
		slog.Info("invalid user or post id", "user_id", userID, "post_id", postID)
		return nil, ErrPostNotFound
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !isValid {
		slog.Info(ErrPostNotFound.Error(), "post_id", postID)
		return nil, ErrPostNotFound
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post info: %w", err)
	}
	return post, nil
}

func (s *postService) parseScheduledTime(value, timezone string) (time.Time, error) {
	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, ValidationError{Field: "timezone", Reason: "unknown timezone"}
		}
	}

	scheduledFor, err := time.ParseInLocation(scheduledTimeLayout, value, loc)
	if err != nil {
		return time.Time{}, ValidationError{Field: "scheduled_for", Reason: "expected format " + scheduledTimeLayout}
	}
	return scheduledFor, nil
}

func validateContent(contentType, caption, mediaURL string, duration int) error {
	switch contentType {
	case models.ContentTypeImage, models.ContentTypeVideo, models.ContentTypeStory:
	default:
		return ValidationError{Field: "content_type", Reason: "must be image, video or story"}
	}

	if mediaURL == "" {
		return ValidationError{Field: "media_url", Reason: "cannot be empty"}
	}
	if len(caption) > models.MaxCaptionLength {
		return ValidationError{Field: "caption", Reason: fmt.Sprintf("exceeds %d characters", models.MaxCaptionLength)}
	}

	if contentType == models.ContentTypeVideo {
		if duration < models.MinVideoDuration || duration > models.MaxVideoDuration {
			return ValidationError{
				Field:  "duration",
				Reason: fmt.Sprintf("must be between %d and %d seconds", models.MinVideoDuration, models.MaxVideoDuration),
			}
		}
	}
	return nil
}

func validateRecurrence(r *models.Recurrence) error {
	if r == nil {
		return nil
	}
	switch r.Frequency {
	case models.FrequencyDaily, models.FrequencyWeekly:
	default:
		return ValidationError{Field: "recurrence.frequency", Reason: "must be daily or weekly"}
	}
	if r.Interval < 0 {
		return ValidationError{Field: "recurrence.interval", Reason: "cannot be negative"}
	}
	for _, d := range r.DaysOfWeek {
		if d < time.Sunday || d > time.Saturday {
			return ValidationError{Field: "recurrence.days_of_week", Reason: "invalid weekday"}
		}
	}
	return nil
}
