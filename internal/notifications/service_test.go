package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/realtime"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/fcm"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	paginationpkg "github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

type fakeRepository struct {
	created       []models.Notification
	unread        int64
	createErr     error
	inboxFn       func(ctx context.Context, q inboxQuery) ([]models.Notification, error)
	markReadFn    func(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (bool, error)
	markAllReadFn func(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
}

func (f *fakeRepository) Create(ctx context.Context, notification *models.Notification) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, *notification)
	f.unread++
	return nil
}

func (f *fakeRepository) Inbox(ctx context.Context, q inboxQuery) ([]models.Notification, error) {
	if f.inboxFn != nil {
		return f.inboxFn(ctx, q)
	}
	return nil, nil
}

func (f *fakeRepository) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return f.unread, nil
}

func (f *fakeRepository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (bool, error) {
	if f.markReadFn != nil {
		return f.markReadFn(ctx, userID, notificationID, now)
	}
	return false, nil
}

func (f *fakeRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	if f.markAllReadFn != nil {
		return f.markAllReadFn(ctx, userID, now)
	}
	return 0, nil
}

func (f *fakeRepository) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	return 0, nil
}

type recordingPublisher struct {
	userIDs []uuid.UUID
	events  []realtime.Event
	err     error
}

func (r *recordingPublisher) Publish(_ context.Context, userID uuid.UUID, event realtime.Event) error {
	r.userIDs = append(r.userIDs, userID)
	r.events = append(r.events, event)
	return r.err
}

type recordingPush struct {
	messages []fcm.Message
	err      error
}

func (r *recordingPush) SendToUser(_ context.Context, _ uuid.UUID, msg fcm.Message) error {
	r.messages = append(r.messages, msg)
	return r.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newServiceWithRepo(repo Repository) Service {
	svc, _ := NewService(ServiceParams{Repo: repo, Logger: testLogger()})
	return svc
}

func TestService_ListNotifications(t *testing.T) {
	now := time.Now().UTC()
	first := models.Notification{ID: uuid.New(), Type: enums.NotificationTypeGig, CreatedAt: now}
	second := models.Notification{ID: uuid.New(), Type: enums.NotificationTypeGig, CreatedAt: now.Add(-time.Minute)}
	userID := uuid.New()

	repo := &fakeRepository{
		inboxFn: func(ctx context.Context, q inboxQuery) ([]models.Notification, error) {
			if q.Limit != 1 {
				t.Fatalf("unexpected limit %d", q.Limit)
			}
			if q.UserID != userID {
				t.Fatalf("expected list scoped to %s, got %s", userID, q.UserID)
			}
			if q.After != nil {
				t.Fatalf("first page should have no cursor")
			}
			return []models.Notification{first, second}, nil
		},
	}

	svc := newServiceWithRepo(repo)
	result, err := svc.List(context.Background(), ListParams{UserID: userID, Limit: 1})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].ID != first.ID {
		t.Fatalf("look-ahead row must be trimmed, got %+v", result.Items)
	}
	decoded, err := paginationpkg.ParseCursor(result.Cursor)
	if err != nil || decoded == nil {
		t.Fatalf("invalid cursor %q: %v", result.Cursor, err)
	}
	if decoded.ID != first.ID {
		t.Fatalf("expected cursor id %s got %s", first.ID, decoded.ID)
	}
}

func TestService_ListNotificationsInvalidCursor(t *testing.T) {
	svc := newServiceWithRepo(&fakeRepository{})
	_, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), Cursor: "bad"})
	if err == nil {
		t.Fatal("expected error for invalid cursor")
	}
	errCode := pkgerrors.As(err).Code()
	if errCode != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %s", errCode)
	}
}

func TestService_MarkRead(t *testing.T) {
	repo := &fakeRepository{
		markReadFn: func(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (bool, error) {
			return true, nil
		},
	}
	svc := newServiceWithRepo(repo)
	if err := svc.MarkRead(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("unexpected mark read error: %v", err)
	}
}

func TestService_MarkReadNotFound(t *testing.T) {
	repo := &fakeRepository{
		markReadFn: func(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (bool, error) {
			return false, nil
		},
	}
	svc := newServiceWithRepo(repo)
	if err := svc.MarkRead(context.Background(), uuid.New(), uuid.New()); err == nil {
		t.Fatal("expected not found error")
	} else if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestService_MarkAllRead(t *testing.T) {
	repo := &fakeRepository{
		markAllReadFn: func(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
			return 3, nil
		},
	}
	svc := newServiceWithRepo(repo)
	count, err := svc.MarkAllRead(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected mark all read error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 updated rows, got %d", count)
	}
}

func TestService_MarkAllReadError(t *testing.T) {
	repo := &fakeRepository{
		markAllReadFn: func(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
			return 0, errors.New("boom")
		},
	}
	svc := newServiceWithRepo(repo)
	if _, err := svc.MarkAllRead(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error")
	}
}

func TestService_NotifyFansOut(t *testing.T) {
	repo := &fakeRepository{}
	publisher := &recordingPublisher{}
	push := &recordingPush{}
	svc, err := NewService(ServiceParams{Repo: repo, Realtime: publisher, Push: push, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	userID := uuid.New()

	dto, err := svc.Notify(context.Background(), Input{
		UserID:  userID,
		Type:    enums.NotificationTypeProposal,
		Title:   " New proposal ",
		Message: "A provider offered $80.00",
		Link:    "/gigs/1/proposals",
		Data:    map[string]string{"gig_id": "1", "type": "spoofed"},
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if dto.Title != "New proposal" || dto.Link == nil || *dto.Link != "/gigs/1/proposals" {
		t.Fatalf("unexpected dto %+v", dto)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one row, got %d", len(repo.created))
	}
	var stored map[string]string
	if err := json.Unmarshal(repo.created[0].Data, &stored); err != nil || stored["gig_id"] != "1" {
		t.Fatalf("unexpected stored data %s (%v)", repo.created[0].Data, err)
	}

	if len(publisher.events) != 1 || publisher.userIDs[0] != userID {
		t.Fatalf("expected one realtime event to %s", userID)
	}
	if publisher.events[0].Type != realtime.EventNotificationCreated {
		t.Fatalf("unexpected realtime type %s", publisher.events[0].Type)
	}
	signal, ok := publisher.events[0].Data.(createdSignal)
	if !ok || signal.UnreadCount != 1 {
		t.Fatalf("unexpected realtime payload %+v", publisher.events[0].Data)
	}

	if len(push.messages) != 1 {
		t.Fatalf("expected one push, got %d", len(push.messages))
	}
	if push.messages[0].Data["type"] != string(enums.NotificationTypeProposal) {
		t.Fatalf("reserved push keys must not be overridden: %+v", push.messages[0].Data)
	}
}

func TestService_NotifyDeliveryFailuresAreNotFatal(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := NewService(ServiceParams{
		Repo:     repo,
		Realtime: &recordingPublisher{err: errors.New("redis down")},
		Push:     &recordingPush{err: errors.New("fcm down")},
		Logger:   testLogger(),
	})
	if _, err := svc.Notify(context.Background(), Input{UserID: uuid.New(), Type: enums.NotificationTypeSystem, Title: "Hi"}); err != nil {
		t.Fatalf("expected delivery failures to be swallowed, got %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatal("expected notification persisted")
	}
}

func TestService_NotifyValidates(t *testing.T) {
	repo := &fakeRepository{}
	svc := newServiceWithRepo(repo)
	cases := []Input{
		{Type: enums.NotificationTypeSystem, Title: "x"},
		{UserID: uuid.New(), Type: "bogus", Title: "x"},
		{UserID: uuid.New(), Type: enums.NotificationTypeSystem, Title: "  "},
	}
	for _, in := range cases {
		if _, err := svc.Notify(context.Background(), in); pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
			t.Fatalf("expected validation error for %+v, got %v", in, err)
		}
	}
	if len(repo.created) != 0 {
		t.Fatal("nothing should be persisted")
	}
}

func openNotificationsDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:notifications_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec(`
CREATE TABLE notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  link TEXT,
  data TEXT,
  read_at DATETIME,
  created_at DATETIME
);`).Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func TestRepository_ListPagesAndCleanup(t *testing.T) {
	db := openNotificationsDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	base := time.Now().UTC().Add(-60 * 24 * time.Hour)

	for i := 0; i < 3; i++ {
		n := &models.Notification{
			ID:        uuid.New(),
			UserID:    userID,
			Type:      enums.NotificationTypeSystem,
			Title:     fmt.Sprintf("n%d", i),
			Message:   "m",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := repo.Create(ctx, n); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := repo.Create(ctx, &models.Notification{ID: uuid.New(), UserID: uuid.New(), Type: enums.NotificationTypeSystem, Title: "other", Message: "m", CreatedAt: base}); err != nil {
		t.Fatalf("create: %v", err)
	}

	page, err := repo.Inbox(ctx, inboxQuery{UserID: userID, Limit: 2})
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(page) != 3 || page[0].Title != "n2" {
		t.Fatalf("expected look-ahead row on first page, got %+v", page)
	}
	after := &paginationpkg.Cursor{CreatedAt: page[1].CreatedAt, ID: page[1].ID}
	rest, err := repo.Inbox(ctx, inboxQuery{UserID: userID, Limit: 2, After: after})
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(rest) != 1 || rest[0].Title != "n0" {
		t.Fatalf("unexpected second page %+v", rest)
	}

	readAt := time.Now().UTC().Truncate(time.Second)
	found, err := repo.MarkRead(ctx, userID, page[1].ID, readAt)
	if err != nil || !found {
		t.Fatalf("mark read: %v %v", found, err)
	}
	if found, _ := repo.MarkRead(ctx, userID, page[1].ID, readAt.Add(time.Hour)); !found {
		t.Fatal("re-marking an owned notification should still report found")
	}
	if found, _ := repo.MarkRead(ctx, uuid.New(), page[1].ID, readAt); found {
		t.Fatal("another user's notification must not be found")
	}
	var stored models.Notification
	if err := db.First(&stored, "id = ?", page[1].ID).Error; err != nil || stored.ReadAt == nil || !stored.ReadAt.Equal(readAt) {
		t.Fatalf("read_at should keep the first mark, got %v (%v)", stored.ReadAt, err)
	}

	unread, err := repo.UnreadCount(ctx, userID)
	if err != nil || unread != 2 {
		t.Fatalf("expected 2 unread, got %d (%v)", unread, err)
	}
	unreadOnly, err := repo.Inbox(ctx, inboxQuery{UserID: userID, Limit: 10, UnreadOnly: true})
	if err != nil || len(unreadOnly) != 2 {
		t.Fatalf("expected 2 unread rows, got %d (%v)", len(unreadOnly), err)
	}

	deleted, err := repo.DeleteOlderThan(ctx, nil, time.Now().UTC().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected only the read notification removed, got %d", deleted)
	}
}
