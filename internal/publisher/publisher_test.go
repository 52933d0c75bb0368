package publisher

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/snapflow/snapflow/internal/lifecycle"
	"github.com/snapflow/snapflow/internal/models"
	"github.com/snapflow/snapflow/internal/snapchat"
)

// fakePostRepo mimics the CAS semantics of the real repository.
type fakePostRepo struct {
	posts   map[int64]*models.ScheduledPost
	created []*models.ScheduledPost
	nextID  int64
}

func newFakePostRepo(posts ...*models.ScheduledPost) *fakePostRepo {
	r := &fakePostRepo{posts: make(map[int64]*models.ScheduledPost), nextID: 1000}
	for _, p := range posts {
		r.posts[p.ID] = p
	}
	return r
}

func (r *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error) {
	r.nextID++
	post.ID = r.nextID
	r.posts[post.ID] = post
	r.created = append(r.created, post)
	return post.ID, nil
}

func (r *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	p, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (r *fakePostRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	return nil, nil
}

func (r *fakePostRepo) GetDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	return nil, nil
}

func (r *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	return true, nil
}

func (r *fakePostRepo) Update(ctx context.Context, post *models.ScheduledPost) error {
	r.posts[post.ID] = post
	return nil
}

func (r *fakePostRepo) TransitionStatus(ctx context.Context, id int64, from, to lifecycle.Status) (bool, error) {
	p, ok := r.posts[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func (r *fakePostRepo) MarkPublished(ctx context.Context, id int64, publishedAt time.Time) (bool, error) {
	p, ok := r.posts[id]
	if !ok || p.Status != lifecycle.StatusPublishing {
		return false, nil
	}
	p.Status = lifecycle.StatusPublished
	p.PublishedAt = &publishedAt
	p.FailureReason = ""
	return true, nil
}

func (r *fakePostRepo) ScheduleRetry(ctx context.Context, id int64, nextAttemptAt time.Time) (bool, error) {
	p, ok := r.posts[id]
	if !ok || p.Status != lifecycle.StatusPublishing || p.RetryCount >= p.MaxRetries {
		return false, nil
	}
	p.Status = lifecycle.StatusScheduled
	p.RetryCount++
	p.ScheduledFor = nextAttemptAt
	return true, nil
}

func (r *fakePostRepo) MarkFailed(ctx context.Context, id int64, reason string) (bool, error) {
	p, ok := r.posts[id]
	if !ok || p.Status != lifecycle.StatusPublishing {
		return false, nil
	}
	p.Status = lifecycle.StatusFailed
	p.FailureReason = reason
	return true, nil
}

func (r *fakePostRepo) ResetForRetry(ctx context.Context, id int64, scheduledFor time.Time) (bool, error) {
	p, ok := r.posts[id]
	if !ok || p.Status != lifecycle.StatusFailed {
		return false, nil
	}
	p.Status = lifecycle.StatusScheduled
	p.RetryCount = 0
	p.FailureReason = ""
	p.ScheduledFor = scheduledFor
	return true, nil
}

func (r *fakePostRepo) Remove(ctx context.Context, id int64) error {
	delete(r.posts, id)
	return nil
}

type fakeAccountRepo struct{}

func (fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	return &models.SocialAccount{ID: id, AccountID: "acc-1", AccessToken: "tok"}, nil
}

func (fakeAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (fakeAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	return true, nil
}

type fakeLogRepo struct {
	entries []*models.PublishLogEntry
}

func (r *fakeLogRepo) Create(ctx context.Context, entry *models.PublishLogEntry) (int64, error) {
	r.entries = append(r.entries, entry)
	return int64(len(r.entries)), nil
}

func (r *fakeLogRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PublishLogEntry, error) {
	return r.entries, nil
}

type fakeRemote struct {
	err   error
	calls int
}

func (f *fakeRemote) Publish(ctx context.Context, post *models.ScheduledPost, account *models.SocialAccount) (*snapchat.PublishResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &snapchat.PublishResult{RemotePostID: "story-1", PublishedAt: time.Now().UTC()}, nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func scheduledPost(id int64) *models.ScheduledPost {
	return &models.ScheduledPost{
		ID:           id,
		UserID:       1,
		AccountID:    1,
		ContentType:  models.ContentTypeImage,
		MediaURL:     "https://cdn.example.com/a.jpg",
		ScheduledFor: testNow.Add(-time.Minute),
		Status:       lifecycle.StatusScheduled,
		MaxRetries:   3,
	}
}

func newTestPublisher(repo *fakePostRepo, logs *fakeLogRepo, remote *fakeRemote) *Publisher {
	return New(repo, fakeAccountRepo{}, logs, remote, DefaultPolicy(), 30*time.Second, nil,
		WithClock(func() time.Time { return testNow }))
}

func TestPublishSuccess(t *testing.T) {
	repo := newFakePostRepo(scheduledPost(1))
	logs := &fakeLogRepo{}
	p := newTestPublisher(repo, logs, &fakeRemote{})

	res := p.Publish(context.Background(), 1)
	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}
	if res.RemotePostID != "story-1" {
		t.Errorf("remote post id = %s", res.RemotePostID)
	}

	post := repo.posts[1]
	if post.Status != lifecycle.StatusPublished {
		t.Errorf("status = %s, want published", post.Status)
	}
	if post.PublishedAt == nil {
		t.Error("published_at not recorded")
	}

	if len(logs.entries) != 1 || logs.entries[0].AttemptStatus != models.AttemptStatusSuccess {
		t.Fatalf("log entries = %+v, want one success entry", logs.entries)
	}
	if logs.entries[0].RemotePostID != "story-1" {
		t.Error("log entry missing remote post id")
	}
}

func TestPublishRateLimitedRetries(t *testing.T) {
	repo := newFakePostRepo(scheduledPost(1))
	logs := &fakeLogRepo{}
	remote := &fakeRemote{err: &snapchat.APIError{StatusCode: 429, Message: "too many requests"}}
	p := newTestPublisher(repo, logs, remote)

	// First 429: back to scheduled, retry count 1, +60s.
	res := p.Publish(context.Background(), 1)
	if !res.Retrying {
		t.Fatalf("result = %+v, want retrying", res)
	}

	post := repo.posts[1]
	if post.Status != lifecycle.StatusScheduled {
		t.Errorf("status = %s, want scheduled", post.Status)
	}
	if post.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", post.RetryCount)
	}
	if want := testNow.Add(time.Minute); !post.ScheduledFor.Equal(want) {
		t.Errorf("scheduled_for = %v, want %v", post.ScheduledFor, want)
	}

	// Second consecutive 429: retry count 2, +300s.
	res = p.Publish(context.Background(), 1)
	if !res.Retrying {
		t.Fatalf("second result = %+v, want retrying", res)
	}
	if post.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", post.RetryCount)
	}
	if want := testNow.Add(5 * time.Minute); !post.ScheduledFor.Equal(want) {
		t.Errorf("scheduled_for = %v, want %v", post.ScheduledFor, want)
	}

	if len(logs.entries) != 2 {
		t.Fatalf("log entries = %d, want 2", len(logs.entries))
	}
	for _, e := range logs.entries {
		if e.AttemptStatus != models.AttemptStatusRetrying {
			t.Errorf("entry status = %s, want retrying", e.AttemptStatus)
		}
	}
}

func TestPublishAuthFailsImmediately(t *testing.T) {
	repo := newFakePostRepo(scheduledPost(1))
	logs := &fakeLogRepo{}
	remote := &fakeRemote{err: &snapchat.APIError{StatusCode: 401, Message: "token expired"}}
	p := newTestPublisher(repo, logs, remote)

	res := p.Publish(context.Background(), 1)
	if res.Success || res.Retrying {
		t.Fatalf("result = %+v, want terminal failure", res)
	}
	if res.Category != CategoryAuth {
		t.Errorf("category = %s, want AUTH", res.Category)
	}

	post := repo.posts[1]
	if post.Status != lifecycle.StatusFailed {
		t.Errorf("status = %s, want failed", post.Status)
	}
	// Non-retryable errors short-circuit the retry budget.
	if post.RetryCount != 0 {
		t.Errorf("retry count = %d, want 0", post.RetryCount)
	}
	if post.FailureReason == "" {
		t.Error("failure reason not recorded")
	}
}

func TestPublishRetriesExhausted(t *testing.T) {
	post := scheduledPost(1)
	post.RetryCount = 3
	repo := newFakePostRepo(post)
	logs := &fakeLogRepo{}
	remote := &fakeRemote{err: &snapchat.APIError{StatusCode: 503, Message: "unavailable"}}
	p := newTestPublisher(repo, logs, remote)

	res := p.Publish(context.Background(), 1)
	if res.Retrying {
		t.Fatalf("result = %+v, want terminal failure", res)
	}

	stored := repo.posts[1]
	if stored.Status != lifecycle.StatusFailed {
		t.Errorf("status = %s, want failed", stored.Status)
	}
	if stored.RetryCount != 3 {
		t.Errorf("retry count = %d, want 3", stored.RetryCount)
	}
	if stored.FailureReason == "" {
		t.Error("failure reason not recorded")
	}
}

func TestPublishSkipsNonScheduledPost(t *testing.T) {
	post := scheduledPost(1)
	post.Status = lifecycle.StatusPublishing
	repo := newFakePostRepo(post)
	logs := &fakeLogRepo{}
	remote := &fakeRemote{}
	p := newTestPublisher(repo, logs, remote)

	res := p.Publish(context.Background(), 1)
	if !res.Skipped {
		t.Fatalf("result = %+v, want skipped", res)
	}
	if remote.calls != 0 {
		t.Error("remote call made for a non-scheduled post")
	}
	if len(logs.entries) != 0 {
		t.Error("log entry written for a skipped attempt")
	}
	if repo.posts[1].Status != lifecycle.StatusPublishing {
		t.Error("skipped attempt mutated the post")
	}
}

func TestPublishMissingPost(t *testing.T) {
	p := newTestPublisher(newFakePostRepo(), &fakeLogRepo{}, &fakeRemote{})
	res := p.Publish(context.Background(), 42)
	if !res.Skipped {
		t.Fatalf("result = %+v, want skipped", res)
	}
}

func TestPublishSchedulesNextOccurrence(t *testing.T) {
	post := scheduledPost(1)
	post.Recurrence = &models.Recurrence{Frequency: models.FrequencyDaily, Interval: 1}
	repo := newFakePostRepo(post)
	p := newTestPublisher(repo, &fakeLogRepo{}, &fakeRemote{})

	res := p.Publish(context.Background(), 1)
	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}

	if len(repo.created) != 1 {
		t.Fatalf("created %d posts, want 1", len(repo.created))
	}
	clone := repo.created[0]
	if clone.Status != lifecycle.StatusScheduled {
		t.Errorf("clone status = %s, want scheduled", clone.Status)
	}
	if !clone.ScheduledFor.After(testNow) {
		t.Errorf("clone scheduled_for = %v, want after %v", clone.ScheduledFor, testNow)
	}
	if clone.RetryCount != 0 {
		t.Errorf("clone retry count = %d, want 0", clone.RetryCount)
	}
}
