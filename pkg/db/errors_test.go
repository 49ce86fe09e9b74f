package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "reviews_gig_reviewer_key"}
	wrapped := fmt.Errorf("insert review: %w", pgErr)

	if !IsUniqueViolation(wrapped, "") {
		t.Fatalf("expected any unique violation to match")
	}
	if !IsUniqueViolation(wrapped, "reviews_gig_reviewer_key") {
		t.Fatalf("expected named constraint to match")
	}
	if IsUniqueViolation(wrapped, "badges_profile_code_key") {
		t.Fatalf("expected other constraint not to match")
	}
	if !IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "x"`), "") {
		t.Fatalf("expected message fallback to match")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatalf("nil is never a violation")
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	if !IsForeignKeyViolation(fmt.Errorf("delete: %w", &pgconn.PgError{Code: "23503"})) {
		t.Fatalf("expected fk violation")
	}
	if IsForeignKeyViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("unique violation is not a fk violation")
	}
}
