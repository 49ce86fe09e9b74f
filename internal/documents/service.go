package documents

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/profiles"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
	"github.com/angelmondragon/gigmarket-backend/pkg/storage/gcs"
)

// Service manages provider verification documents.
type Service interface {
	RequestUpload(ctx context.Context, providerID uuid.UUID, req UploadRequest) (*UploadDTO, error)
	ConfirmUpload(ctx context.Context, providerID, documentID uuid.UUID) (*DocumentDTO, error)
	List(ctx context.Context, providerID uuid.UUID) ([]DocumentDTO, error)
	Delete(ctx context.Context, providerID, documentID uuid.UUID) error
	DownloadURL(ctx context.Context, callerID, documentID uuid.UUID, isAdmin bool) (*DownloadDTO, error)
	ListPending(ctx context.Context, params pagination.Params) (pagination.Page[DocumentDTO], error)
	Review(ctx context.Context, adminID, documentID uuid.UUID, req ReviewRequest) (*DocumentDTO, error)
	PurgeAbandonedUploads(ctx context.Context, now time.Time) (int, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type documentRepository interface {
	Create(ctx context.Context, doc *models.ProviderDocument) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ProviderDocument, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ProviderDocument, error)
	ListForProvider(ctx context.Context, providerID uuid.UUID) ([]models.ProviderDocument, error)
	ListPendingReview(ctx context.Context, params pagination.Params) ([]models.ProviderDocument, error)
	ListAbandonedUploads(ctx context.Context, cutoff time.Time, limit int) ([]models.ProviderDocument, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type profileReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

type profileWriter interface {
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type objectStore interface {
	SignedURL(bucket, object, contentType string, expires time.Duration) (string, error)
	SignedReadURL(bucket, object string, expires time.Duration) (string, error)
	StatObject(ctx context.Context, bucket, object string) (*gcs.ObjectInfo, error)
	DeleteObject(ctx context.Context, bucket, object string) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

const (
	abandonedBatchSize = 200
	defaultAbandonAge  = 24 * time.Hour
)

var allowedMimeTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/png":       {},
	"image/heic":      {},
	"image/webp":      {},
}

type ServiceParams struct {
	TxRunner       txRunner
	Repo           documentRepository
	Profiles       profileReader
	Storage        objectStore
	Outbox         outboxEmitter
	Logger         *logger.Logger
	Bucket         string
	MaxUploadBytes int64
	UploadTTL      time.Duration
	DownloadTTL    time.Duration
	AbandonAfter   time.Duration
	RepoFactory    func(tx *gorm.DB) documentRepository
	ProfileFactory func(tx *gorm.DB) profileWriter
}

type service struct {
	tx             txRunner
	repo           documentRepository
	profiles       profileReader
	storage        objectStore
	outbox         outboxEmitter
	logg           *logger.Logger
	bucket         string
	maxUploadBytes int64
	uploadTTL      time.Duration
	downloadTTL    time.Duration
	abandonAfter   time.Duration
	repoFactory    func(tx *gorm.DB) documentRepository
	profileFactory func(tx *gorm.DB) profileWriter
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TxRunner == nil:
		return nil, fmt.Errorf("tx runner is required")
	case params.Repo == nil:
		return nil, fmt.Errorf("document repository is required")
	case params.Profiles == nil:
		return nil, fmt.Errorf("profile reader is required")
	case params.Storage == nil:
		return nil, fmt.Errorf("object storage is required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter is required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case strings.TrimSpace(params.Bucket) == "":
		return nil, fmt.Errorf("bucket is required")
	case params.MaxUploadBytes <= 0:
		return nil, fmt.Errorf("max upload size must be positive")
	case params.UploadTTL <= 0 || params.DownloadTTL <= 0:
		return nil, fmt.Errorf("signed url expiries must be positive")
	}
	if params.AbandonAfter <= 0 {
		params.AbandonAfter = defaultAbandonAge
	}
	if params.RepoFactory == nil {
		params.RepoFactory = func(tx *gorm.DB) documentRepository { return NewRepository(tx) }
	}
	if params.ProfileFactory == nil {
		params.ProfileFactory = func(tx *gorm.DB) profileWriter { return profiles.NewRepository(tx) }
	}
	return &service{
		tx:             params.TxRunner,
		repo:           params.Repo,
		profiles:       params.Profiles,
		storage:        params.Storage,
		outbox:         params.Outbox,
		logg:           params.Logger,
		bucket:         params.Bucket,
		maxUploadBytes: params.MaxUploadBytes,
		uploadTTL:      params.UploadTTL,
		downloadTTL:    params.DownloadTTL,
		abandonAfter:   params.AbandonAfter,
		repoFactory:    params.RepoFactory,
		profileFactory: params.ProfileFactory,
	}, nil
}

// RequestUpload reserves a document row and returns a signed PUT url for it.
func (s *service) RequestUpload(ctx context.Context, providerID uuid.UUID, req UploadRequest) (*UploadDTO, error) {
	kind, err := enums.ParseDocumentKind(strings.TrimSpace(req.Kind))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid document kind")
	}
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file_name is required")
	}
	mimeType := strings.ToLower(strings.TrimSpace(req.MimeType))
	if _, ok := allowedMimeTypes[mimeType]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mime_type not allowed for documents")
	}
	if req.SizeBytes <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "size_bytes must be positive")
	}
	if req.SizeBytes > s.maxUploadBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("size_bytes must be at most %d bytes", s.maxUploadBytes))
	}

	profile, err := s.profiles.FindByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile")
	}
	if !profile.IsProvider() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only providers can upload verification documents")
	}

	docID := uuid.New()
	doc := &models.ProviderDocument{
		ID:         docID,
		ProviderID: providerID,
		Kind:       kind,
		Status:     enums.DocumentStatusPendingUpload,
		FileName:   fileName,
		MimeType:   mimeType,
		SizeBytes:  req.SizeBytes,
		GCSKey:     buildGCSKey(providerID, docID, fileName),
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist document row")
	}

	expiresAt := time.Now().UTC().Add(s.uploadTTL)
	signedURL, err := s.storage.SignedURL(s.bucket, doc.GCSKey, mimeType, s.uploadTTL)
	if err != nil {
		_ = s.repo.Delete(ctx, docID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign upload url")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"document_id": docID.String(),
		"provider_id": providerID.String(),
		"kind":        string(kind),
	}), "documents.upload_requested")
	return &UploadDTO{Document: FromModel(*doc), UploadURL: signedURL, ExpiresAt: expiresAt}, nil
}

// ConfirmUpload checks the object landed in the bucket as declared and queues
// the document for review.
func (s *service) ConfirmUpload(ctx context.Context, providerID, documentID uuid.UUID) (*DocumentDTO, error) {
	doc, err := s.ownedDocument(ctx, providerID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != enums.DocumentStatusPendingUpload {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "document upload already confirmed")
	}

	info, err := s.storage.StatObject(ctx, s.bucket, doc.GCSKey)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "file has not been uploaded yet")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stat uploaded object")
	}
	if info.Size != doc.SizeBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "uploaded file size does not match the declared size").
			WithDetails(map[string]any{"declared": doc.SizeBytes, "actual": info.Size})
	}
	if info.ContentType != "" && !strings.EqualFold(info.ContentType, doc.MimeType) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "uploaded file type does not match the declared type")
	}

	if err := s.repo.Update(ctx, doc.ID, map[string]any{"status": enums.DocumentStatusPendingReview}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark document uploaded")
	}
	doc.Status = enums.DocumentStatusPendingReview
	s.logg.Info(s.logg.WithField(ctx, "document_id", doc.ID.String()), "documents.upload_confirmed")
	dto := FromModel(*doc)
	return &dto, nil
}

func (s *service) List(ctx context.Context, providerID uuid.UUID) ([]DocumentDTO, error) {
	rows, err := s.repo.ListForProvider(ctx, providerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list documents")
	}
	out := make([]DocumentDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return out, nil
}

// Delete removes a document the provider no longer wants reviewed. Approved
// documents back the verified flag and stay.
func (s *service) Delete(ctx context.Context, providerID, documentID uuid.UUID) error {
	doc, err := s.ownedDocument(ctx, providerID, documentID)
	if err != nil {
		return err
	}
	if doc.Status == enums.DocumentStatusApproved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "approved documents cannot be deleted")
	}
	if err := s.repo.Delete(ctx, doc.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete document")
	}
	s.deleteObject(ctx, doc)
	return nil
}

func (s *service) DownloadURL(ctx context.Context, callerID, documentID uuid.UUID, isAdmin bool) (*DownloadDTO, error) {
	doc, err := s.repo.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load document")
	}
	if !isAdmin && doc.ProviderID != callerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	if doc.Status == enums.DocumentStatusPendingUpload {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "document has not been uploaded")
	}
	url, err := s.storage.SignedReadURL(s.bucket, doc.GCSKey, s.downloadTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign download url")
	}
	return &DownloadDTO{URL: url, ExpiresAt: time.Now().UTC().Add(s.downloadTTL)}, nil
}

func (s *service) ListPending(ctx context.Context, params pagination.Params) (pagination.Page[DocumentDTO], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[DocumentDTO]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	params.Limit = pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListPendingReview(ctx, params)
	if err != nil {
		return pagination.Page[DocumentDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending documents")
	}
	dtos := make([]DocumentDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	return pagination.BuildPage(dtos, params.Limit, func(d DocumentDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
	}), nil
}

// Review records the admin decision. Approval marks the provider verified.
func (s *service) Review(ctx context.Context, adminID, documentID uuid.UUID, req ReviewRequest) (*DocumentDTO, error) {
	var status enums.DocumentStatus
	switch req.Decision {
	case "approve":
		status = enums.DocumentStatusApproved
	case "reject":
		status = enums.DocumentStatusRejected
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision must be approve or reject")
	}
	note := strings.TrimSpace(req.Note)
	if status == enums.DocumentStatusRejected && note == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a note is required when rejecting a document")
	}

	var doc *models.ProviderDocument
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repoFactory(tx)
		var err error
		doc, err = repo.FindByIDForUpdate(ctx, documentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load document")
		}
		if doc.Status != enums.DocumentStatusPendingReview {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "document is not awaiting review")
		}

		now := time.Now().UTC()
		updates := map[string]any{
			"status":      status,
			"reviewed_by": adminID,
			"reviewed_at": now,
			"review_note": nil,
		}
		if note != "" {
			updates["review_note"] = note
			doc.ReviewNote = &note
		}
		if err := repo.Update(ctx, doc.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update document")
		}
		doc.Status = status
		doc.ReviewedBy = &adminID
		doc.ReviewedAt = &now

		if status == enums.DocumentStatusApproved {
			if err := s.profileFactory(tx).Update(ctx, doc.ProviderID, map[string]any{"is_verified": true}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark provider verified")
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDocumentReviewed,
			AggregateType: enums.AggregateDocument,
			AggregateID:   doc.ID,
			Actor:         &outbox.ActorRef{UserID: adminID, Role: string(enums.UserRoleAdmin)},
			Data: payloads.DocumentReviewedEvent{
				DocumentID: doc.ID,
				ProviderID: doc.ProviderID,
				Kind:       doc.Kind,
				Status:     status,
				Note:       note,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit document event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"document_id": doc.ID.String(),
		"provider_id": doc.ProviderID.String(),
		"status":      string(status),
	}), "documents.reviewed")
	dto := FromModel(*doc)
	return &dto, nil
}

// PurgeAbandonedUploads drops rows whose signed upload was never confirmed,
// along with any partial object left in the bucket.
func (s *service) PurgeAbandonedUploads(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.abandonAfter)
	purged := 0
	for {
		rows, err := s.repo.ListAbandonedUploads(ctx, cutoff, abandonedBatchSize)
		if err != nil {
			return purged, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list abandoned uploads")
		}
		if len(rows) == 0 {
			return purged, nil
		}
		for i := range rows {
			if err := s.repo.Delete(ctx, rows[i].ID); err != nil {
				return purged, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete abandoned upload")
			}
			s.deleteObject(ctx, &rows[i])
			purged++
		}
		if len(rows) < abandonedBatchSize {
			return purged, nil
		}
	}
}

func (s *service) ownedDocument(ctx context.Context, providerID, documentID uuid.UUID) (*models.ProviderDocument, error) {
	doc, err := s.repo.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load document")
	}
	if doc.ProviderID != providerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	return doc, nil
}

func (s *service) deleteObject(ctx context.Context, doc *models.ProviderDocument) {
	err := s.storage.DeleteObject(ctx, s.bucket, doc.GCSKey)
	if err == nil || errors.Is(err, gcs.ErrObjectNotFound) {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"document_id": doc.ID.String(),
		"gcs_key":     doc.GCSKey,
		"error":       err.Error(),
	}), "documents.object_delete_failed")
}

func buildGCSKey(providerID, docID uuid.UUID, fileName string) string {
	clean := sanitizeFileName(fileName)
	if clean == "" {
		clean = docID.String()
	}
	return fmt.Sprintf("documents/%s/%s/%s", providerID.String(), docID.String(), clean)
}

func sanitizeFileName(name string) string {
	clean := path.Base(strings.TrimSpace(name))
	if clean == "." || clean == "/" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(clean))
	for _, r := range clean {
		switch {
		case r == '/' || r == '\\' || unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-_.")
}
