package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/snapflow/snapflow/internal/lifecycle"
)

type ScheduledPost struct {
	ID            int64            `db:"id" json:"id"`
	UserID        int64            `db:"user_id" json:"user_id"`
	AccountID     int64            `db:"account_id" json:"account_id"`
	ContentType   string           `db:"content_type" json:"content_type"` // image, video, story
	MediaURL      string           `db:"media_url" json:"media_url"`
	ThumbnailURL  string           `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	Caption       string           `db:"caption" json:"caption,omitempty"`
	Duration      int              `db:"duration" json:"duration,omitempty"` // seconds, video only
	ScheduledFor  time.Time        `db:"scheduled_for" json:"scheduled_for"`
	Timezone      string           `db:"timezone" json:"timezone"`
	Recurrence    *Recurrence      `db:"recurrence" json:"recurrence,omitempty"`
	Status        lifecycle.Status `db:"status" json:"status"`
	RetryCount    int              `db:"retry_count" json:"retry_count"`
	MaxRetries    int              `db:"max_retries" json:"max_retries"`
	FailureReason string           `db:"failure_reason" json:"failure_reason,omitempty"`
	PublishedAt   *time.Time       `db:"published_at" json:"published_at,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

const (
	ContentTypeImage = "image"
	ContentTypeVideo = "video"
	ContentTypeStory = "story"

	DefaultMaxRetries = 3
	MaxCaptionLength  = 250
	MinVideoDuration  = 3
	MaxVideoDuration  = 60
)

const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
)

// Recurrence describes an optional repeat schedule. Weekly recurrences
// fire only on the listed weekdays; EndDate, when set, bounds the series.
type Recurrence struct {
	Frequency  string         `json:"frequency"` // daily, weekly
	Interval   int            `json:"interval"`  // every N days/weeks
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"`
	EndDate    *time.Time     `json:"end_date,omitempty"`
}

// NextAfter computes the next occurrence strictly after t, preserving
// the time of day. The second return is false when the series is over.
func (r *Recurrence) NextAfter(t time.Time) (time.Time, bool) {
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}

	var next time.Time
	switch r.Frequency {
	case FrequencyWeekly:
		if len(r.DaysOfWeek) > 0 {
			next = r.nextWeekday(t)
		} else {
			next = t.AddDate(0, 0, 7*interval)
		}
	default:
		next = t.AddDate(0, 0, interval)
	}

	if r.EndDate != nil && next.After(*r.EndDate) {
		return time.Time{}, false
	}
	return next, true
}

func (r *Recurrence) nextWeekday(t time.Time) time.Time {
	// Walk forward one day at a time; the listed weekdays bound the loop
	// to at most 7*interval iterations.
	candidate := t.AddDate(0, 0, 1)
	for i := 0; i < 7*(r.Interval+1); i++ {
		for _, d := range r.DaysOfWeek {
			if candidate.Weekday() == d {
				return candidate
			}
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// Value implements driver.Valuer so the recurrence is stored as a JSON
// column alongside the post row.
func (r *Recurrence) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner for the JSON recurrence column.
func (r *Recurrence) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("unsupported recurrence column type %T", src)
	}
}

// Lateness returns the queue priority of the post at time now: whole
// minutes elapsed past the scheduled time, never negative.
func (p *ScheduledPost) Lateness(now time.Time) int {
	late := int(now.Sub(p.ScheduledFor) / time.Minute)
	if late < 0 {
		return 0
	}
	return late
}
