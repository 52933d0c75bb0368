package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/snapflow/snapflow/internal/lifecycle"
	"github.com/snapflow/snapflow/internal/models"
)

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.ScheduledPost, error)
	GetDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error)
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	Update(ctx context.Context, post *models.ScheduledPost) error
	TransitionStatus(ctx context.Context, id int64, from, to lifecycle.Status) (bool, error)
	MarkPublished(ctx context.Context, id int64, publishedAt time.Time) (bool, error)
	ScheduleRetry(ctx context.Context, id int64, nextAttemptAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id int64, reason string) (bool, error)
	ResetForRetry(ctx context.Context, id int64, scheduledFor time.Time) (bool, error)
	Remove(ctx context.Context, id int64) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, account_id, content_type, media_url, thumbnail_url, caption, duration,
	scheduled_for, timezone, recurrence, status, retry_count, max_retries, failure_reason, published_at,
	created_at, updated_at`

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error) {
	query := `
		INSERT INTO scheduled_posts
			(user_id, account_id, content_type, media_url, thumbnail_url, caption, duration,
			 scheduled_for, timezone, recurrence, status, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	var recurrence interface{}
	if post.Recurrence != nil {
		data, err := json.Marshal(post.Recurrence)
		if err != nil {
			return 0, err
		}
		recurrence = data
	}

	maxRetries := post.MaxRetries
	if maxRetries <= 0 {
		maxRetries = models.DefaultMaxRetries
	}

	args := []interface{}{
		post.UserID, post.AccountID, post.ContentType, post.MediaURL, post.ThumbnailURL,
		post.Caption, post.Duration, post.ScheduledFor.UTC(), post.Timezone, recurrence,
		post.Status, maxRetries,
	}

	var id int64
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE id = $1`
	return scanPost(r.db.QueryRowContext(ctx, query, id))
}

func (r *postRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE user_id = $1 ORDER BY scheduled_for DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectPosts(rows)
}

// GetDue returns scheduled posts whose time has come, most overdue
// first, bounded by limit.
func (r *postRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + `
		FROM scheduled_posts
		WHERE status = $1 AND scheduled_for <= $2
		ORDER BY scheduled_for ASC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, lifecycle.StatusScheduled, now.UTC(), limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectPosts(rows)
}

func (r *postRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := `SELECT 1 FROM scheduled_posts WHERE id = $1 AND user_id = $2`

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *postRepository) Update(ctx context.Context, post *models.ScheduledPost) error {
	query := `
		UPDATE scheduled_posts
		SET content_type = $1, media_url = $2, thumbnail_url = $3, caption = $4, duration = $5,
			scheduled_for = $6, timezone = $7, recurrence = $8, status = $9, max_retries = $10,
			updated_at = $11
		WHERE id = $12
	`

	var recurrence interface{}
	if post.Recurrence != nil {
		data, err := json.Marshal(post.Recurrence)
		if err != nil {
			return err
		}
		recurrence = data
	}

	_, err := r.db.ExecContext(ctx, query,
		post.ContentType, post.MediaURL, post.ThumbnailURL, post.Caption, post.Duration,
		post.ScheduledFor.UTC(), post.Timezone, recurrence, post.Status, post.MaxRetries,
		time.Now().UTC(), post.ID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// TransitionStatus performs a compare-and-set status move: the row is
// updated only while it still holds the expected prior status, so two
// racing callers cannot both win.
func (r *postRepository) TransitionStatus(ctx context.Context, id int64, from, to lifecycle.Status) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *postRepository) MarkPublished(ctx context.Context, id int64, publishedAt time.Time) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1, published_at = $2, failure_reason = NULL, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	res, err := r.db.ExecContext(ctx, query,
		lifecycle.StatusPublished, publishedAt.UTC(), time.Now().UTC(), id, lifecycle.StatusPublishing)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ScheduleRetry moves a publishing post back to scheduled with the
// retry counter bumped and scheduled_for advanced, so the next due-post
// scan naturally picks the retry up.
func (r *postRepository) ScheduleRetry(ctx context.Context, id int64, nextAttemptAt time.Time) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1, retry_count = retry_count + 1, scheduled_for = $2, updated_at = $3
		WHERE id = $4 AND status = $5 AND retry_count < max_retries
	`
	res, err := r.db.ExecContext(ctx, query,
		lifecycle.StatusScheduled, nextAttemptAt.UTC(), time.Now().UTC(), id, lifecycle.StatusPublishing)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *postRepository) MarkFailed(ctx context.Context, id int64, reason string) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1, failure_reason = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	res, err := r.db.ExecContext(ctx, query,
		lifecycle.StatusFailed, reason, time.Now().UTC(), id, lifecycle.StatusPublishing)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ResetForRetry reopens a failed post: retry budget restored, failure
// reason cleared, rescheduled for the given time.
func (r *postRepository) ResetForRetry(ctx context.Context, id int64, scheduledFor time.Time) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1, retry_count = 0, failure_reason = NULL, scheduled_for = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	res, err := r.db.ExecContext(ctx, query,
		lifecycle.StatusScheduled, scheduledFor.UTC(), time.Now().UTC(), id, lifecycle.StatusFailed)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *postRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM scheduled_posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (*models.ScheduledPost, error) {
	var post models.ScheduledPost
	var recurrence sql.NullString
	var failureReason sql.NullString
	var publishedAt sql.NullTime

	err := row.Scan(
		&post.ID, &post.UserID, &post.AccountID, &post.ContentType, &post.MediaURL,
		&post.ThumbnailURL, &post.Caption, &post.Duration, &post.ScheduledFor, &post.Timezone,
		&recurrence, &post.Status, &post.RetryCount, &post.MaxRetries, &failureReason,
		&publishedAt, &post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	if recurrence.Valid {
		var rec models.Recurrence
		if err := json.Unmarshal([]byte(recurrence.String), &rec); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		post.Recurrence = &rec
	}
	if failureReason.Valid {
		post.FailureReason = failureReason.String
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		post.PublishedAt = &t
	}

	return &post, nil
}

func collectPosts(rows *sql.Rows) ([]*models.ScheduledPost, error) {
	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}
