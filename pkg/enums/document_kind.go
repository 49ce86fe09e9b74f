package enums

import "slices"

// DocumentKind classifies provider verification uploads.
type DocumentKind string

const (
	DocumentKindID            DocumentKind = "id"
	DocumentKindLicense       DocumentKind = "license"
	DocumentKindInsurance     DocumentKind = "insurance"
	DocumentKindCertification DocumentKind = "certification"
)

var validDocumentKinds = []DocumentKind{
	DocumentKindID,
	DocumentKindLicense,
	DocumentKindInsurance,
	DocumentKindCertification,
}

// IsValid reports whether the value is a known DocumentKind.
func (d DocumentKind) IsValid() bool {
	return slices.Contains(validDocumentKinds, d)
}

// ParseDocumentKind converts raw input into a DocumentKind.
func ParseDocumentKind(value string) (DocumentKind, error) {
	return parse("document kind", value, validDocumentKinds)
}
