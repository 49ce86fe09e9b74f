package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataStatuses(t *testing.T) {
	statuses := map[Code]int{
		CodeValidation:    http.StatusBadRequest,
		CodeUnauthorized:  http.StatusUnauthorized,
		CodeForbidden:     http.StatusForbidden,
		CodeNotFound:      http.StatusNotFound,
		CodeConflict:      http.StatusConflict,
		CodeStateConflict: http.StatusUnprocessableEntity,
		CodeIdempotency:   http.StatusConflict,
		CodeRateLimit:     http.StatusTooManyRequests,
		CodeQuotaExceeded: http.StatusPaymentRequired,
		CodePayment:       http.StatusPaymentRequired,
		CodeInternal:      http.StatusInternalServerError,
		CodeDependency:    http.StatusServiceUnavailable,
	}
	for code, status := range statuses {
		assert.Equal(t, status, MetadataFor(code).HTTPStatus, code)
	}
	assert.Len(t, catalog, len(statuses), "every code needs a status")
}

func TestMetadataHidesInternalDetail(t *testing.T) {
	internal := MetadataFor(CodeInternal)
	assert.False(t, internal.ExposeMessage)
	assert.False(t, internal.DetailsAllowed)
	assert.True(t, internal.Retryable)

	dep := MetadataFor(CodeDependency)
	assert.False(t, dep.ExposeMessage)
	assert.True(t, dep.DetailsAllowed)

	assert.Equal(t, internal, MetadataFor("NOPE"))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("boom")
	err := Wrap(CodeConflict, cause, "save gig")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "CONFLICT: save gig: boom", err.Error())
	assert.Equal(t, "NOT_FOUND: gig 7 missing", Newf(CodeNotFound, "gig %d missing", 7).Error())
}

func TestWithDetails(t *testing.T) {
	err := New(CodeValidation, "bad").WithDetails(map[string]any{"field": "title"})
	assert.Equal(t, map[string]any{"field": "title"}, err.Details())

	var nilErr *Error
	assert.Nil(t, nilErr.WithDetails("x"))
	assert.Equal(t, CodeInternal, nilErr.Code())
}

func TestIsCodeWalksWrappedChain(t *testing.T) {
	outer := fmt.Errorf("view contact: %w", New(CodeQuotaExceeded, "contact views exhausted"))
	assert.True(t, IsCode(outer, CodeQuotaExceeded))
	assert.False(t, IsCode(outer, CodeConflict))
	assert.False(t, IsCode(nil, CodeInternal))
	assert.Nil(t, As(stdErrors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(stdErrors.New("timeout")))
	assert.True(t, IsRetryable(New(CodeDependency, "stripe down")))
	assert.False(t, IsRetryable(fmt.Errorf("wrap: %w", New(CodeValidation, "bad"))))
}

func TestDumpPostgresErrors(t *testing.T) {
	pgx := Wrap(CodeConflict, &pgconn.PgError{Code: "23505", ConstraintName: "reviews_gig_reviewer_key", TableName: "reviews"}, "insert review")
	d := Dump(pgx)
	require.NotNil(t, d.PG)
	assert.Equal(t, "23505", d.PG.Code)
	assert.Equal(t, "reviews_gig_reviewer_key", d.PG.Constraint)
	assert.Equal(t, CodeConflict, d.Code)
	assert.Len(t, d.Chain, 2)

	pqErr := fmt.Errorf("migrate: %w", &pq.Error{Code: "42P01", Table: "gigs"})
	d = Dump(pqErr)
	require.NotNil(t, d.PG)
	assert.Equal(t, "42P01", d.PG.Code)
	assert.Equal(t, "gigs", d.PG.Table)
	assert.Empty(t, d.Code)
}

func TestDumpFields(t *testing.T) {
	assert.Equal(t, ErrorDump{}, Dump(nil))

	fields := Dump(stdErrors.New("plain")).Fields()
	assert.Equal(t, map[string]any{"error": "plain"}, fields)

	fields = Dump(Wrap(CodeInternal, stdErrors.New("io"), "read")).Fields()
	assert.Equal(t, "INTERNAL_ERROR", fields["error_code"])
	assert.Len(t, fields["error_chain"], 2)
	assert.NotContains(t, fields, "pg")
}
