package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

type DocumentUploadCleanupJobParams struct {
	Logger    *logger.Logger
	Documents abandonedUploadPurger
}

type abandonedUploadPurger interface {
	PurgeAbandonedUploads(ctx context.Context, now time.Time) (int, error)
}

// NewDocumentUploadCleanupJob removes document rows whose signed upload was
// never confirmed.
func NewDocumentUploadCleanupJob(params DocumentUploadCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Documents == nil {
		return nil, fmt.Errorf("documents service required")
	}
	return &documentUploadCleanupJob{
		logg:      params.Logger,
		documents: params.Documents,
		now:       time.Now,
	}, nil
}

type documentUploadCleanupJob struct {
	logg      *logger.Logger
	documents abandonedUploadPurger
	now       func() time.Time
}

func (j *documentUploadCleanupJob) Name() string { return "document-upload-cleanup" }

func (j *documentUploadCleanupJob) Run(ctx context.Context) error {
	purged, err := j.documents.PurgeAbandonedUploads(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("document upload cleanup: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "documents_deleted", purged), "document upload cleanup complete")
	return nil
}
