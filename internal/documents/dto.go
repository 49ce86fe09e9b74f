package documents

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

type UploadRequest struct {
	Kind      string `json:"kind" validate:"required,oneof=id license insurance certification"`
	FileName  string `json:"file_name" validate:"required,max=255"`
	MimeType  string `json:"mime_type" validate:"required,max=100"`
	SizeBytes int64  `json:"size_bytes" validate:"required,min=1"`
}

type ReviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Note     string `json:"note" validate:"max=1000"`
}

type DocumentDTO struct {
	ID         uuid.UUID            `json:"id"`
	ProviderID uuid.UUID            `json:"provider_id"`
	Kind       enums.DocumentKind   `json:"kind"`
	Status     enums.DocumentStatus `json:"status"`
	FileName   string               `json:"file_name"`
	MimeType   string               `json:"mime_type"`
	SizeBytes  int64                `json:"size_bytes"`
	ReviewNote *string              `json:"review_note,omitempty"`
	ReviewedAt *time.Time           `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// UploadDTO tells the client where to PUT the file. The request must carry
// Content-Type equal to the declared mime type or the signature will not match.
type UploadDTO struct {
	Document  DocumentDTO `json:"document"`
	UploadURL string      `json:"upload_url"`
	ExpiresAt time.Time   `json:"expires_at"`
}

type DownloadDTO struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func FromModel(d models.ProviderDocument) DocumentDTO {
	return DocumentDTO{
		ID:         d.ID,
		ProviderID: d.ProviderID,
		Kind:       d.Kind,
		Status:     d.Status,
		FileName:   d.FileName,
		MimeType:   d.MimeType,
		SizeBytes:  d.SizeBytes,
		ReviewNote: d.ReviewNote,
		ReviewedAt: d.ReviewedAt,
		CreatedAt:  d.CreatedAt,
	}
}
