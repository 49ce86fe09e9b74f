package router

import (
	"strings"

	"github.com/google/uuid"
)

// stringPtr returns a trimmed pointer or nil when the input is empty.
func stringPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// uuidPtr renders the id, treating the zero uuid as absent.
func uuidPtr(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	return stringPtr(id.String())
}

func optionalUUIDPtr(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	return uuidPtr(*id)
}

// int64Ptr returns a pointer to the provided int64 value.
func int64Ptr(value int64) *int64 {
	return &value
}
