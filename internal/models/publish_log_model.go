package models

import (
	"encoding/json"
	"time"
)

// PublishLogEntry is the append-only audit record of a single publish
// attempt. Entries are never mutated or deleted.
type PublishLogEntry struct {
	ID            int64           `db:"id" json:"id"`
	PostID        int64           `db:"post_id" json:"post_id"`
	AttemptStatus string          `db:"attempt_status" json:"attempt_status"` // success, failed, retrying
	RemotePostID  string          `db:"remote_post_id" json:"remote_post_id,omitempty"`
	ErrorCode     string          `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage  string          `db:"error_message" json:"error_message,omitempty"`
	Response      json.RawMessage `db:"response" json:"response,omitempty"`
	AttemptedAt   time.Time       `db:"attempted_at" json:"attempted_at"`
}

const (
	AttemptStatusSuccess  = "success"
	AttemptStatusFailed   = "failed"
	AttemptStatusRetrying = "retrying"
)
