package migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upInit, downInit)
}

func upInit(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE social_accounts (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		platform TEXT NOT NULL DEFAULT 'snapchat',
		account_id TEXT NOT NULL,
		account_name TEXT NOT NULL DEFAULT '',
		account_username TEXT NOT NULL DEFAULT '',
		access_token TEXT NOT NULL DEFAULT '',
		token_expires_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		account_status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE media_assets (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		file_name TEXT NOT NULL,
		file_type TEXT NOT NULL,
		file_size BIGINT NOT NULL DEFAULT 0,
		file_url TEXT NOT NULL,
		thumbnail_url TEXT NOT NULL DEFAULT '',
		width INT NOT NULL DEFAULT 0,
		height INT NOT NULL DEFAULT 0,
		duration INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE scheduled_posts (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		account_id BIGINT NOT NULL REFERENCES social_accounts(id),
		content_type TEXT NOT NULL,
		media_url TEXT NOT NULL,
		thumbnail_url TEXT NOT NULL DEFAULT '',
		caption TEXT NOT NULL DEFAULT '',
		duration INT NOT NULL DEFAULT 0,
		scheduled_for TIMESTAMPTZ NOT NULL,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		recurrence JSONB,
		status TEXT NOT NULL DEFAULT 'draft',
		retry_count INT NOT NULL DEFAULT 0,
		max_retries INT NOT NULL DEFAULT 3,
		failure_reason TEXT,
		published_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX idx_scheduled_posts_due ON scheduled_posts (status, scheduled_for);
	CREATE INDEX idx_scheduled_posts_user ON scheduled_posts (user_id);

	CREATE TABLE publish_log (
		id BIGSERIAL PRIMARY KEY,
		post_id BIGINT NOT NULL REFERENCES scheduled_posts(id) ON DELETE CASCADE,
		attempt_status TEXT NOT NULL,
		remote_post_id TEXT NOT NULL DEFAULT '',
		error_code TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		response JSONB,
		attempted_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX idx_publish_log_post ON publish_log (post_id);
	`)
	return err
}

func downInit(tx *sql.Tx) error {
	_, err := tx.Exec(`
	DROP TABLE publish_log;
	DROP TABLE scheduled_posts;
	DROP TABLE media_assets;
	DROP TABLE social_accounts;
	`)
	return err
}
