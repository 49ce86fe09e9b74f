package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
	"github.com/angelmondragon/gigmarket-backend/pkg/storage/gcs"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

type memoryDocuments struct {
	rows map[uuid.UUID]*models.ProviderDocument
}

func newMemoryDocuments() *memoryDocuments {
	return &memoryDocuments{rows: map[uuid.UUID]*models.ProviderDocument{}}
}

func (m *memoryDocuments) Create(_ context.Context, doc *models.ProviderDocument) error {
	doc.CreatedAt = time.Now().UTC()
	copied := *doc
	m.rows[doc.ID] = &copied
	return nil
}

func (m *memoryDocuments) FindByID(_ context.Context, id uuid.UUID) (*models.ProviderDocument, error) {
	doc, ok := m.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *doc
	return &copied, nil
}

func (m *memoryDocuments) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ProviderDocument, error) {
	return m.FindByID(ctx, id)
}

func (m *memoryDocuments) ListForProvider(_ context.Context, providerID uuid.UUID) ([]models.ProviderDocument, error) {
	var out []models.ProviderDocument
	for _, doc := range m.rows {
		if doc.ProviderID == providerID && doc.Status != enums.DocumentStatusPendingUpload {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (m *memoryDocuments) ListPendingReview(_ context.Context, _ pagination.Params) ([]models.ProviderDocument, error) {
	var out []models.ProviderDocument
	for _, doc := range m.rows {
		if doc.Status == enums.DocumentStatusPendingReview {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (m *memoryDocuments) ListAbandonedUploads(_ context.Context, cutoff time.Time, limit int) ([]models.ProviderDocument, error) {
	var out []models.ProviderDocument
	for _, doc := range m.rows {
		if doc.Status == enums.DocumentStatusPendingUpload && doc.CreatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (m *memoryDocuments) Update(_ context.Context, id uuid.UUID, updates map[string]any) error {
	doc, ok := m.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if status, ok := updates["status"].(enums.DocumentStatus); ok {
		doc.Status = status
	}
	if note, ok := updates["review_note"].(string); ok {
		doc.ReviewNote = &note
	}
	return nil
}

func (m *memoryDocuments) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.rows, id)
	return nil
}

type stubProfiles map[uuid.UUID]*models.Profile

func (s stubProfiles) FindByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type recordingProfileWriter struct {
	updates map[uuid.UUID]map[string]any
}

func (r *recordingProfileWriter) Update(_ context.Context, id uuid.UUID, updates map[string]any) error {
	if r.updates == nil {
		r.updates = map[uuid.UUID]map[string]any{}
	}
	r.updates[id] = updates
	return nil
}

type fakeStore struct {
	objects map[string]*gcs.ObjectInfo
	deleted []string
	signErr error
}

func (f *fakeStore) SignedURL(bucket, object, contentType string, _ time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return fmt.Sprintf("https://storage.test/%s/%s?ct=%s", bucket, object, contentType), nil
}

func (f *fakeStore) SignedReadURL(bucket, object string, _ time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.test/%s/%s?read=1", bucket, object), nil
}

func (f *fakeStore) StatObject(_ context.Context, _ string, object string) (*gcs.ObjectInfo, error) {
	if info, ok := f.objects[object]; ok {
		return info, nil
	}
	return nil, gcs.ErrObjectNotFound
}

func (f *fakeStore) DeleteObject(_ context.Context, _ string, object string) error {
	f.deleted = append(f.deleted, object)
	return nil
}

type fixture struct {
	svc      Service
	repo     *memoryDocuments
	store    *fakeStore
	outbox   *recordingOutbox
	writer   *recordingProfileWriter
	provider uuid.UUID
	client   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemoryDocuments(),
		store:    &fakeStore{objects: map[string]*gcs.ObjectInfo{}},
		outbox:   &recordingOutbox{},
		writer:   &recordingProfileWriter{},
		provider: uuid.New(),
		client:   uuid.New(),
	}
	profiles := stubProfiles{
		f.provider: {ID: f.provider, Role: enums.UserRoleProvider},
		f.client:   {ID: f.client, Role: enums.UserRoleClient},
	}
	svc, err := NewService(ServiceParams{
		TxRunner:       stubTxRunner{},
		Repo:           f.repo,
		Profiles:       profiles,
		Storage:        f.store,
		Outbox:         f.outbox,
		Logger:         logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Bucket:         "docs",
		MaxUploadBytes: 1 << 20,
		UploadTTL:      15 * time.Minute,
		DownloadTTL:    time.Hour,
		RepoFactory:    func(*gorm.DB) documentRepository { return f.repo },
		ProfileFactory: func(*gorm.DB) profileWriter { return f.writer },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) uploaded(t *testing.T) DocumentDTO {
	t.Helper()
	out, err := f.svc.RequestUpload(context.Background(), f.provider, UploadRequest{
		Kind: "license", FileName: "My License.pdf", MimeType: "application/pdf", SizeBytes: 2048,
	})
	require.NoError(t, err)
	doc := f.repo.rows[out.Document.ID]
	f.store.objects[doc.GCSKey] = &gcs.ObjectInfo{Name: doc.GCSKey, ContentType: "application/pdf", Size: 2048}
	confirmed, err := f.svc.ConfirmUpload(context.Background(), f.provider, doc.ID)
	require.NoError(t, err)
	return *confirmed
}

func TestRequestUpload(t *testing.T) {
	f := newFixture(t)
	out, err := f.svc.RequestUpload(context.Background(), f.provider, UploadRequest{
		Kind: "insurance", FileName: "../policy scan.PDF", MimeType: "Application/PDF", SizeBytes: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.DocumentStatusPendingUpload, out.Document.Status)
	assert.Equal(t, "application/pdf", out.Document.MimeType)

	row := f.repo.rows[out.Document.ID]
	require.NotNil(t, row)
	assert.Equal(t, fmt.Sprintf("documents/%s/%s/policy-scan.PDF", f.provider, row.ID), row.GCSKey)
	assert.Contains(t, out.UploadURL, row.GCSKey)
	assert.True(t, out.ExpiresAt.After(time.Now()))
}

func TestRequestUploadValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name   string
		caller uuid.UUID
		req    UploadRequest
		code   pkgerrors.Code
	}{
		{"bad kind", f.provider, UploadRequest{Kind: "selfie", FileName: "a.pdf", MimeType: "application/pdf", SizeBytes: 1}, pkgerrors.CodeValidation},
		{"bad mime", f.provider, UploadRequest{Kind: "id", FileName: "a.exe", MimeType: "application/x-msdownload", SizeBytes: 1}, pkgerrors.CodeValidation},
		{"too large", f.provider, UploadRequest{Kind: "id", FileName: "a.pdf", MimeType: "application/pdf", SizeBytes: 2 << 20}, pkgerrors.CodeValidation},
		{"client", f.client, UploadRequest{Kind: "id", FileName: "a.pdf", MimeType: "application/pdf", SizeBytes: 1}, pkgerrors.CodeForbidden},
		{"unknown", uuid.New(), UploadRequest{Kind: "id", FileName: "a.pdf", MimeType: "application/pdf", SizeBytes: 1}, pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.RequestUpload(context.Background(), tc.caller, tc.req)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
	assert.Empty(t, f.repo.rows)
}

func TestRequestUploadRemovesRowWhenSigningFails(t *testing.T) {
	f := newFixture(t)
	f.store.signErr = errors.New("no credentials")
	_, err := f.svc.RequestUpload(context.Background(), f.provider, UploadRequest{
		Kind: "id", FileName: "a.pdf", MimeType: "application/pdf", SizeBytes: 1,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Empty(t, f.repo.rows)
}

func TestConfirmUpload(t *testing.T) {
	f := newFixture(t)
	out, err := f.svc.RequestUpload(context.Background(), f.provider, UploadRequest{
		Kind: "id", FileName: "id.png", MimeType: "image/png", SizeBytes: 500,
	})
	require.NoError(t, err)
	key := f.repo.rows[out.Document.ID].GCSKey

	_, err = f.svc.ConfirmUpload(context.Background(), f.provider, out.Document.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "missing object: %v", err)

	f.store.objects[key] = &gcs.ObjectInfo{Name: key, ContentType: "image/png", Size: 499}
	_, err = f.svc.ConfirmUpload(context.Background(), f.provider, out.Document.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "size mismatch: %v", err)

	f.store.objects[key] = &gcs.ObjectInfo{Name: key, ContentType: "image/jpeg", Size: 500}
	_, err = f.svc.ConfirmUpload(context.Background(), f.provider, out.Document.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "type mismatch: %v", err)

	_, err = f.svc.ConfirmUpload(context.Background(), f.client, out.Document.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	f.store.objects[key] = &gcs.ObjectInfo{Name: key, ContentType: "image/png", Size: 500}
	doc, err := f.svc.ConfirmUpload(context.Background(), f.provider, out.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DocumentStatusPendingReview, doc.Status)

	_, err = f.svc.ConfirmUpload(context.Background(), f.provider, out.Document.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestReviewApproveVerifiesProvider(t *testing.T) {
	f := newFixture(t)
	doc := f.uploaded(t)
	admin := uuid.New()

	reviewed, err := f.svc.Review(context.Background(), admin, doc.ID, ReviewRequest{Decision: "approve"})
	require.NoError(t, err)
	assert.Equal(t, enums.DocumentStatusApproved, reviewed.Status)
	assert.Equal(t, map[string]any{"is_verified": true}, f.writer.updates[f.provider])

	require.Len(t, f.outbox.events, 1)
	event := f.outbox.events[0]
	assert.Equal(t, enums.EventDocumentReviewed, event.EventType)
	data, ok := event.Data.(payloads.DocumentReviewedEvent)
	require.True(t, ok)
	assert.Equal(t, f.provider, data.ProviderID)
	assert.Equal(t, enums.DocumentStatusApproved, data.Status)

	_, err = f.svc.Review(context.Background(), admin, doc.ID, ReviewRequest{Decision: "reject", Note: "late"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	err = f.svc.Delete(context.Background(), f.provider, doc.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestReviewRejectRequiresNote(t *testing.T) {
	f := newFixture(t)
	doc := f.uploaded(t)
	admin := uuid.New()

	_, err := f.svc.Review(context.Background(), admin, doc.ID, ReviewRequest{Decision: "reject", Note: "  "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	reviewed, err := f.svc.Review(context.Background(), admin, doc.ID, ReviewRequest{Decision: "reject", Note: "blurry scan"})
	require.NoError(t, err)
	assert.Equal(t, enums.DocumentStatusRejected, reviewed.Status)
	require.NotNil(t, reviewed.ReviewNote)
	assert.Equal(t, "blurry scan", *reviewed.ReviewNote)
	assert.Empty(t, f.writer.updates)
}

func TestDeleteAndDownload(t *testing.T) {
	f := newFixture(t)
	doc := f.uploaded(t)
	key := f.repo.rows[doc.ID].GCSKey

	_, err := f.svc.DownloadURL(context.Background(), f.client, doc.ID, false)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	link, err := f.svc.DownloadURL(context.Background(), uuid.New(), doc.ID, true)
	require.NoError(t, err)
	assert.Contains(t, link.URL, key)

	listed, err := f.svc.List(context.Background(), f.provider)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, f.svc.Delete(context.Background(), f.provider, doc.ID))
	assert.Empty(t, f.repo.rows)
	assert.Equal(t, []string{key}, f.store.deleted)
}

func TestPurgeAbandonedUploads(t *testing.T) {
	f := newFixture(t)
	stale, err := f.svc.RequestUpload(context.Background(), f.provider, UploadRequest{
		Kind: "id", FileName: "old.pdf", MimeType: "application/pdf", SizeBytes: 1,
	})
	require.NoError(t, err)
	f.repo.rows[stale.Document.ID].CreatedAt = time.Now().Add(-48 * time.Hour)
	fresh, err := f.svc.RequestUpload(context.Background(), f.provider, UploadRequest{
		Kind: "id", FileName: "new.pdf", MimeType: "application/pdf", SizeBytes: 1,
	})
	require.NoError(t, err)

	purged, err := f.svc.PurgeAbandonedUploads(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
	assert.NotContains(t, f.repo.rows, stale.Document.ID)
	assert.Contains(t, f.repo.rows, fresh.Document.ID)
	require.Len(t, f.store.deleted, 1)
	assert.True(t, strings.HasSuffix(f.store.deleted[0], "/old.pdf"))
}

func openDocumentsDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`
CREATE TABLE provider_documents (
  id TEXT PRIMARY KEY,
  provider_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending_upload',
  file_name TEXT NOT NULL,
  mime_type TEXT NOT NULL,
  size_bytes INTEGER NOT NULL,
  gcs_key TEXT NOT NULL UNIQUE,
  review_note TEXT,
  reviewed_by TEXT,
  reviewed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)
	return db
}

func TestRepositoryPendingQueuePages(t *testing.T) {
	db := openDocumentsDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	provider := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		doc := &models.ProviderDocument{
			ID:         uuid.New(),
			ProviderID: provider,
			Kind:       enums.DocumentKindLicense,
			Status:     enums.DocumentStatusPendingReview,
			FileName:   fmt.Sprintf("doc-%d.pdf", i),
			MimeType:   "application/pdf",
			SizeBytes:  10,
			GCSKey:     fmt.Sprintf("documents/%s/%d", provider, i),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.Create(ctx, doc))
		ids = append(ids, doc.ID)
	}
	abandoned := &models.ProviderDocument{
		ID:         uuid.New(),
		ProviderID: provider,
		Kind:       enums.DocumentKindID,
		Status:     enums.DocumentStatusPendingUpload,
		FileName:   "x.pdf",
		MimeType:   "application/pdf",
		SizeBytes:  10,
		GCSKey:     "documents/abandoned",
		CreatedAt:  base,
	}
	require.NoError(t, repo.Create(ctx, abandoned))

	first, err := repo.ListPendingReview(ctx, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, ids[0], first[0].ID)

	cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: first[1].CreatedAt, ID: first[1].ID})
	second, err := repo.ListPendingReview(ctx, pagination.Params{Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, ids[2], second[0].ID)

	stale, err := repo.ListAbandonedUploads(ctx, base.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, abandoned.ID, stale[0].ID)

	listed, err := repo.ListForProvider(ctx, provider)
	require.NoError(t, err)
	assert.Len(t, listed, 3)
}
