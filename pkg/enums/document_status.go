package enums

import "slices"

// DocumentStatus maps to the document_status enum in Postgres.
type DocumentStatus string

const (
	DocumentStatusPendingUpload DocumentStatus = "pending_upload"
	DocumentStatusPendingReview DocumentStatus = "pending_review"
	DocumentStatusApproved      DocumentStatus = "approved"
	DocumentStatusRejected      DocumentStatus = "rejected"
)

var validDocumentStatuses = []DocumentStatus{
	DocumentStatusPendingUpload,
	DocumentStatusPendingReview,
	DocumentStatusApproved,
	DocumentStatusRejected,
}

// IsValid reports whether the value is a known DocumentStatus.
func (d DocumentStatus) IsValid() bool {
	return slices.Contains(validDocumentStatuses, d)
}

// ParseDocumentStatus converts raw input into a DocumentStatus.
func ParseDocumentStatus(value string) (DocumentStatus, error) {
	return parse("document status", value, validDocumentStatuses)
}
