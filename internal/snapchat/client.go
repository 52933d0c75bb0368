package snapchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	config "github.com/snapflow/snapflow/configs"
	"github.com/snapflow/snapflow/internal/models"
	"golang.org/x/oauth2"
)

// Client is the remote publish API. One call publishes validated media
// as a story on the target account; failures come back as *APIError
// where the remote side answered at all.
type Client interface {
	Publish(ctx context.Context, post *models.ScheduledPost, account *models.SocialAccount) (*PublishResult, error)
}

type PublishResult struct {
	RemotePostID string
	PublishedAt  time.Time
	Raw          json.RawMessage
}

// APIError is a classified failure from the Snapchat API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("snapchat api error (status %d, code %q): %s", e.StatusCode, e.Code, e.Message)
}

type apiClient struct {
	cfg    config.Snapchat
	client *http.Client
}

func NewClient(cfg config.Config, timeout time.Duration) Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Snapchat.PublishToken})
	client := oauth2.NewClient(context.Background(), ts)
	client.Timeout = timeout

	return &apiClient{
		cfg:    cfg.Snapchat,
		client: client,
	}
}

// Publish runs the two-step flow: register the media by URL, then
// create the story referencing the returned media id.
func (c *apiClient) Publish(ctx context.Context, post *models.ScheduledPost, account *models.SocialAccount) (*PublishResult, error) {
	mediaID, err := c.registerMedia(ctx, post)
	if err != nil {
		return nil, err
	}

	return c.createStory(ctx, account.AccountID, mediaID, post.Caption)
}

func (c *apiClient) registerMedia(ctx context.Context, post *models.ScheduledPost) (string, error) {
	payload := map[string]interface{}{
		"media_url": post.MediaURL,
		"type":      post.ContentType,
	}
	if post.ThumbnailURL != "" {
		payload["thumbnail_url"] = post.ThumbnailURL
	}
	if post.ContentType == models.ContentTypeVideo {
		payload["duration"] = post.Duration
	}

	var result struct {
		MediaID string `json:"media_id"`
	}
	if _, err := c.post(ctx, fmt.Sprintf("%s/v1/media", c.cfg.BaseURL), payload, &result); err != nil {
		return "", err
	}

	if result.MediaID == "" {
		return "", &APIError{StatusCode: http.StatusBadGateway, Code: "empty_media_id", Message: "no media id returned from Snapchat"}
	}
	return result.MediaID, nil
}

func (c *apiClient) createStory(ctx context.Context, accountID, mediaID, caption string) (*PublishResult, error) {
	payload := map[string]interface{}{
		"media_id": mediaID,
	}
	if caption != "" {
		payload["caption"] = caption
	}

	var result struct {
		StoryID     string `json:"story_id"`
		PublishedAt string `json:"published_at"`
	}
	raw, err := c.post(ctx, fmt.Sprintf("%s/v1/accounts/%s/stories", c.cfg.BaseURL, accountID), payload, &result)
	if err != nil {
		return nil, err
	}

	if result.StoryID == "" {
		return nil, &APIError{StatusCode: http.StatusBadGateway, Code: "empty_story_id", Message: "no story id returned from Snapchat"}
	}

	publishedAt := time.Now().UTC()
	if result.PublishedAt != "" {
		if ts, err := time.Parse(time.RFC3339, result.PublishedAt); err == nil {
			publishedAt = ts
		}
	}

	return &PublishResult{
		RemotePostID: result.StoryID,
		PublishedAt:  publishedAt,
		Raw:          raw,
	}, nil
}

func (c *apiClient) post(ctx context.Context, url string, payload interface{}, out interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseAPIError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("error parsing response: %w", err)
	}

	return respBody, nil
}

func parseAPIError(status int, body []byte) *APIError {
	var parsed struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return &APIError{StatusCode: status, Code: parsed.Error.Code, Message: parsed.Error.Message}
	}
	return &APIError{StatusCode: status, Message: string(body)}
}
