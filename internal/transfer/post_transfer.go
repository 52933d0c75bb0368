package transfer

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/snapflow/snapflow/internal/models"
)

type PostCreation struct {
	AccountID    int64              `json:"account_id"`
	ContentType  string             `json:"content_type"`
	MediaURL     string             `json:"media_url"`
	ThumbnailURL string             `json:"thumbnail_url"`
	Caption      string             `json:"caption"`
	Duration     int                `json:"duration"`
	ScheduledFor string             `json:"scheduled_for"` // 2006-01-02T15:04
	Timezone     string             `json:"timezone"`
	Recurrence   *models.Recurrence `json:"recurrence,omitempty"`
	MaxRetries   int                `json:"max_retries"`
}

type PostUpdate struct {
	Caption      *string `json:"caption,omitempty"`
	MediaURL     *string `json:"media_url,omitempty"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
	Duration     *int    `json:"duration,omitempty"`
	ScheduledFor *string `json:"scheduled_for,omitempty"`
	Timezone     *string `json:"timezone,omitempty"`
}

type RetryRequest struct {
	ScheduledFor string `json:"scheduled_for,omitempty"`
}

type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
