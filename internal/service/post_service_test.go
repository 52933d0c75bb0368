package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/snapflow/snapflow/internal/lifecycle"
	"github.com/snapflow/snapflow/internal/models"
	"github.com/snapflow/snapflow/internal/transfer"
)

type fakePostRepo struct {
	posts map[int64]*models.ScheduledPost

	removed []int64
	resetAt time.Time
	updated *models.ScheduledPost
}

func newFakePostRepo(posts ...*models.ScheduledPost) *fakePostRepo {
	r := &fakePostRepo{posts: make(map[int64]*models.ScheduledPost)}
	for _, p := range posts {
		r.posts[p.ID] = p
	}
	return r
}

func (r *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error) {
	return 0, errors.New("not implemented")
}

func (r *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	p, ok := r.posts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (r *fakePostRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	var out []*models.ScheduledPost
	for _, p := range r.posts {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePostRepo) GetDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	return nil, nil
}

func (r *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	p, ok := r.posts[postID]
	return ok && p.UserID == userID, nil
}

func (r *fakePostRepo) Update(ctx context.Context, post *models.ScheduledPost) error {
	r.updated = post
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
	return false, nil
}

func (r *fakePostRepo) ScheduleRetry(ctx context.Context, id int64, nextAttemptAt time.Time) (bool, error) {
	return false, nil
}

func (r *fakePostRepo) MarkFailed(ctx context.Context, id int64, reason string) (bool, error) {
	return false, nil
}

func (r *fakePostRepo) ResetForRetry(ctx context.Context, id int64, scheduledFor time.Time) (bool, error) {
	p, ok := r.posts[id]
	if !ok || p.Status != lifecycle.StatusFailed {
		return false, nil
	}
	p.Status = lifecycle.StatusScheduled
	p.ScheduledFor = scheduledFor
	p.RetryCount = 0
	r.resetAt = scheduledFor
	return true, nil
}

func (r *fakePostRepo) Remove(ctx context.Context, id int64) error {
	delete(r.posts, id)
	r.removed = append(r.removed, id)
	return nil
}

type fakeAccountRepo struct {
	accounts map[int64]int64 // accountID -> userID
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	return nil, sql.ErrNoRows
}

func (r *fakeAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (r *fakeAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	owner, ok := r.accounts[accountID]
	return ok && owner == userID, nil
}

type fakeLogRepo struct {
	entries []*models.PublishLogEntry
}

func (r *fakeLogRepo) Create(ctx context.Context, entry *models.PublishLogEntry) (int64, error) {
	r.entries = append(r.entries, entry)
	return int64(len(r.entries)), nil
}

func (r *fakeLogRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PublishLogEntry, error) {
	var out []*models.PublishLogEntry
	for _, e := range r.entries {
		if e.PostID == postID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeRemover struct {
	removed []int64
	result  bool
}

func (f *fakeRemover) RemoveFromQueue(postID int64) bool {
	f.removed = append(f.removed, postID)
	return f.result
}

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestService(repo *fakePostRepo, remover QueueRemover) *postService {
	return &postService{
		db:      nil,
		pr:      repo,
		ac:      &fakeAccountRepo{accounts: map[int64]int64{10: 1}},
		pl:      &fakeLogRepo{},
		remover: remover,
		now:     func() time.Time { return testNow },
	}
}

func testPost(id int64, status lifecycle.Status) *models.ScheduledPost {
	return &models.ScheduledPost{
		ID:           id,
		UserID:       1,
		AccountID:    10,
		ContentType:  models.ContentTypeImage,
		MediaURL:     "https://cdn.example.com/a.jpg",
		ScheduledFor: testNow.Add(time.Hour),
		Timezone:     "UTC",
		Status:       status,
		MaxRetries:   models.DefaultMaxRetries,
	}
}

func TestSchedulePostValidation(t *testing.T) {
	s := newTestService(newFakePostRepo(), nil)

	longCaption := make([]byte, models.MaxCaptionLength+1)
	for i := range longCaption {
		longCaption[i] = 'a'
	}

	tests := []struct {
		name  string
		pc    *transfer.PostCreation
		field string
	}{
		{
			name: "past scheduled time",
			pc: &transfer.PostCreation{
				AccountID: 10, ContentType: models.ContentTypeImage,
				MediaURL: "https://x/a.jpg", ScheduledFor: "2026-03-10T11:00", Timezone: "UTC",
			},
			field: "scheduled_for",
		},
		{
			name: "bad timezone",
			pc: &transfer.PostCreation{
				AccountID: 10, ContentType: models.ContentTypeImage,
				MediaURL: "https://x/a.jpg", ScheduledFor: "2026-03-11T11:00", Timezone: "Mars/Olympus",
			},
			field: "timezone",
		},
		{
			name: "unknown content type",
			pc: &transfer.PostCreation{
				AccountID: 10, ContentType: "reel",
				MediaURL: "https://x/a.jpg", ScheduledFor: "2026-03-11T11:00", Timezone: "UTC",
			},
			field: "content_type",
		},
		{
			name: "caption too long",
			pc: &transfer.PostCreation{
				AccountID: 10, ContentType: models.ContentTypeImage, Caption: string(longCaption),
				MediaURL: "https://x/a.jpg", ScheduledFor: "2026-03-11T11:00", Timezone: "UTC",
			},
			field: "caption",
		},
		{
			name: "video too short",
			pc: &transfer.PostCreation{
				AccountID: 10, ContentType: models.ContentTypeVideo, Duration: 2,
				MediaURL: "https://x/a.mp4", ScheduledFor: "2026-03-11T11:00", Timezone: "UTC",
			},
			field: "duration",
		},
		{
			name: "video too long",
			pc: &transfer.PostCreation{
				AccountID: 10, ContentType: models.ContentTypeVideo, Duration: 61,
				MediaURL: "https://x/a.mp4", ScheduledFor: "2026-03-11T11:00", Timezone: "UTC",
			},
			field: "duration",
		},
		{
			name: "missing media",
			pc: &transfer.PostCreation{
				AccountID: 10, ContentType: models.ContentTypeImage,
				ScheduledFor: "2026-03-11T11:00", Timezone: "UTC",
			},
			field: "media_url",
		},
		{
			name: "foreign account",
			pc: &transfer.PostCreation{
				AccountID: 99, ContentType: models.ContentTypeImage,
				MediaURL: "https://x/a.jpg", ScheduledFor: "2026-03-11T11:00", Timezone: "UTC",
			},
			field: "account_id",
		},
		{
			name: "bad recurrence frequency",
			pc: &transfer.PostCreation{
				AccountID: 10, ContentType: models.ContentTypeImage,
				MediaURL: "https://x/a.jpg", ScheduledFor: "2026-03-11T11:00", Timezone: "UTC",
				Recurrence: &models.Recurrence{Frequency: "hourly"},
			},
			field: "recurrence.frequency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SchedulePost(context.Background(), 1, tt.pc)
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, ve.Field)
			}
		})
	}
}

func TestCancelScheduledPost(t *testing.T) {
	repo := newFakePostRepo(testPost(1, lifecycle.StatusScheduled))
	remover := &fakeRemover{result: true}
	s := newTestService(repo, remover)

	if err := s.CancelPost(context.Background(), 1, 1); err != nil {
		t.Fatalf("CancelPost: %v", err)
	}
	if repo.posts[1].Status != lifecycle.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", repo.posts[1].Status)
	}
	if len(remover.removed) != 1 || remover.removed[0] != 1 {
		t.Fatalf("expected queue removal for post 1, got %v", remover.removed)
	}
}

func TestCancelPublishingPostRejected(t *testing.T) {
	repo := newFakePostRepo(testPost(1, lifecycle.StatusPublishing))
	s := newTestService(repo, &fakeRemover{})

	err := s.CancelPost(context.Background(), 1, 1)
	var ite *lifecycle.ErrInvalidTransition
	if !errors.As(err, &ite) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if repo.posts[1].Status != lifecycle.StatusPublishing {
		t.Fatalf("status changed to %s", repo.posts[1].Status)
	}
}

func TestCancelPublishedPostRejected(t *testing.T) {
	repo := newFakePostRepo(testPost(1, lifecycle.StatusPublished))
	s := newTestService(repo, &fakeRemover{})

	err := s.CancelPost(context.Background(), 1, 1)
	var ite *lifecycle.ErrInvalidTransition
	if !errors.As(err, &ite) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRetryFailedPost(t *testing.T) {
	post := testPost(1, lifecycle.StatusFailed)
	post.RetryCount = 3
	repo := newFakePostRepo(post)
	s := newTestService(repo, nil)

	if err := s.RetryPost(context.Background(), 1, 1, time.Time{}); err != nil {
		t.Fatalf("RetryPost: %v", err)
	}
	got := repo.posts[1]
	if got.Status != lifecycle.StatusScheduled {
		t.Fatalf("expected scheduled, got %s", got.Status)
	}
	if got.RetryCount != 0 {
		t.Fatalf("expected retry count reset, got %d", got.RetryCount)
	}
	if !repo.resetAt.Equal(testNow) {
		t.Fatalf("expected reschedule at %v, got %v", testNow, repo.resetAt)
	}
}

func TestRetryNonFailedPostRejected(t *testing.T) {
	repo := newFakePostRepo(testPost(1, lifecycle.StatusScheduled))
	s := newTestService(repo, nil)

	err := s.RetryPost(context.Background(), 1, 1, time.Time{})
	var ite *lifecycle.ErrInvalidTransition
	if !errors.As(err, &ite) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestUpdatePublishedPostRejected(t *testing.T) {
	repo := newFakePostRepo(testPost(1, lifecycle.StatusPublished))
	s := newTestService(repo, nil)

	caption := "new caption"
	err := s.UpdatePost(context.Background(), 1, 1, &transfer.PostUpdate{Caption: &caption})
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if repo.updated != nil {
		t.Fatal("published post was updated")
	}
}

func TestUpdateScheduledPost(t *testing.T) {
	repo := newFakePostRepo(testPost(1, lifecycle.StatusScheduled))
	s := newTestService(repo, nil)

	caption := "updated"
	when := "2026-03-12T09:30"
	err := s.UpdatePost(context.Background(), 1, 1, &transfer.PostUpdate{Caption: &caption, ScheduledFor: &when})
	if err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}
	got := repo.posts[1]
	if got.Caption != "updated" {
		t.Fatalf("caption not applied: %q", got.Caption)
	}
	want := time.Date(2026, time.March, 12, 9, 30, 0, 0, time.UTC)
	if !got.ScheduledFor.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got.ScheduledFor)
	}
}

func TestRemoveOnlyDeletableStatuses(t *testing.T) {
	repo := newFakePostRepo(
		testPost(1, lifecycle.StatusFailed),
		testPost(2, lifecycle.StatusScheduled),
	)
	s := newTestService(repo, nil)

	if err := s.Remove(context.Background(), 1, 1); err != nil {
		t.Fatalf("Remove failed post: %v", err)
	}

	err := s.Remove(context.Background(), 1, 2)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for scheduled post, got %v", err)
	}
	if _, ok := repo.posts[2]; !ok {
		t.Fatal("scheduled post was removed")
	}
}

func TestOwnershipEnforced(t *testing.T) {
	repo := newFakePostRepo(testPost(1, lifecycle.StatusScheduled))
	s := newTestService(repo, nil)

	if _, err := s.PostInfo(context.Background(), 1, 2); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("expected ErrPostNotFound for foreign user, got %v", err)
	}
	if err := s.CancelPost(context.Background(), 2, 1); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("expected ErrPostNotFound, got %v", err)
	}
}
