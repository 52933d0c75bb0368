package publisher

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/snapflow/snapflow/internal/snapchat"
)

// Category buckets a raw publish failure.
type Category string

const (
	CategoryAuth        Category = "AUTH"
	CategoryValidation  Category = "VALIDATION"
	CategoryRateLimit   Category = "RATE_LIMIT"
	CategoryNetwork     Category = "NETWORK"
	CategoryServerError Category = "SERVER_ERROR"
	CategoryClientError Category = "CLIENT_ERROR"
	CategoryUnknown     Category = "UNKNOWN"
)

type Classification struct {
	Category  Category
	Retryable bool
}

var (
	authKeywords       = []string{"401", "unauthorized", "token expired", "invalid token", "invalid_token", "expired token", "authentication"}
	validationKeywords = []string{"invalid media", "unsupported media", "malformed", "caption too long", "invalid caption", "invalid duration", "duration must", "invalid format"}
	rateLimitKeywords  = []string{"429", "too many requests", "rate limit", "rate_limited"}
	networkKeywords    = []string{"connection refused", "connection reset", "timeout", "timed out", "no such host", "dns", "network", "broken pipe", "eof"}
)

// Classify maps a raw failure to a category and a retry verdict.
//
// Categories are checked in priority order: auth and validation first
// so non-recoverable user-facing problems surface immediately instead
// of being retried to exhaustion, then rate limiting, network faults,
// and finally the generic status-code buckets. Unknown failures are
// treated as retryable since most operational failures are transient.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Category: CategoryUnknown, Retryable: true}
	}

	msg := strings.ToLower(err.Error())

	var apiErr *snapchat.APIError
	status := 0
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}

	switch {
	case status == 401 || containsAny(msg, authKeywords):
		return Classification{Category: CategoryAuth, Retryable: false}

	case status == 422 || containsAny(msg, validationKeywords):
		return Classification{Category: CategoryValidation, Retryable: false}

	case status == 429 || containsAny(msg, rateLimitKeywords):
		return Classification{Category: CategoryRateLimit, Retryable: true}

	case isNetworkError(err) || containsAny(msg, networkKeywords):
		return Classification{Category: CategoryNetwork, Retryable: true}

	case status >= 500 && status <= 599:
		return Classification{Category: CategoryServerError, Retryable: true}

	case status >= 400 && status <= 499:
		return Classification{Category: CategoryClientError, Retryable: false}

	default:
		return Classification{Category: CategoryUnknown, Retryable: true}
	}
}

func containsAny(msg string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(msg, k) {
			return true
		}
	}
	return false
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
