package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/snapflow/snapflow/internal/models"
)

// PublishLogRepository is append-only: entries are created once per
// attempt and never updated or deleted.
type PublishLogRepository interface {
	Create(ctx context.Context, entry *models.PublishLogEntry) (int64, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.PublishLogEntry, error)
}

type publishLogRepository struct {
	db *sql.DB
}

func NewPublishLogRepository(db *sql.DB) PublishLogRepository {
	return &publishLogRepository{db: db}
}

func (r *publishLogRepository) Create(ctx context.Context, entry *models.PublishLogEntry) (int64, error) {
	query := `
		INSERT INTO publish_log (post_id, attempt_status, remote_post_id, error_code, error_message, response)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var response interface{}
	if len(entry.Response) > 0 {
		response = []byte(entry.Response)
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		entry.PostID, entry.AttemptStatus, entry.RemotePostID, entry.ErrorCode,
		entry.ErrorMessage, response).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *publishLogRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PublishLogEntry, error) {
	query := `
		SELECT id, post_id, attempt_status, remote_post_id, error_code, error_message, response, attempted_at
		FROM publish_log
		WHERE post_id = $1
		ORDER BY attempted_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var entries []*models.PublishLogEntry
	for rows.Next() {
		var entry models.PublishLogEntry
		var response []byte
		err := rows.Scan(&entry.ID, &entry.PostID, &entry.AttemptStatus, &entry.RemotePostID,
			&entry.ErrorCode, &entry.ErrorMessage, &response, &entry.AttemptedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		entry.Response = response
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
