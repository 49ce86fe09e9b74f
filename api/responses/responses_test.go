package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/types"
)

func capture(t *testing.T, err error) (*httptest.ResponseRecorder, types.ErrorEnvelope, map[string]any) {
	t.Helper()
	var logs bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "responses-test", Output: &logs})
	rec := httptest.NewRecorder()
	WriteError(context.Background(), logg, rec, err)

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	return rec, body, entry
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccessStatus(rec, http.StatusCreated, map[string]string{"id": "g-1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"id":"g-1"}}`, rec.Body.String())
}

func TestWriteErrorExposesValidationDetails(t *testing.T) {
	err := pkgerrors.New(pkgerrors.CodeValidation, "title is required").
		WithDetails(map[string]string{"field": "title"})
	rec, body, entry := capture(t, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Equal(t, "title is required", body.Error.Message)
	assert.Equal(t, map[string]any{"field": "title"}, body.Error.Details)
	assert.Equal(t, "warn", entry["level"])
}

func TestWriteErrorQuotaExceededIsPaymentRequired(t *testing.T) {
	err := pkgerrors.New(pkgerrors.CodeQuotaExceeded, "monthly contact views used up").
		WithDetails(map[string]any{"kind": "contact_view", "limit": 5})
	rec, body, _ := capture(t, err)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "monthly contact views used up", body.Error.Message)
	assert.NotNil(t, body.Error.Details)
}

func TestWriteErrorHidesUntypedErrors(t *testing.T) {
	rec, body, entry := capture(t, errors.New("dial tcp 10.0.0.3:5432: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", body.Error.Message)
	assert.Nil(t, body.Error.Details)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "INTERNAL_ERROR", entry["error_code"])
}

func TestWriteErrorDependencyKeepsPublicMessage(t *testing.T) {
	err := pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("stripe 500"), "create payment intent")
	rec, body, _ := capture(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "dependency unavailable", body.Error.Message)
}

func TestWriteErrorEchoesRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-Id", "req-42")
	WriteError(context.Background(), nil, rec, pkgerrors.New(pkgerrors.CodeNotFound, "gig not found"))

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "req-42", body.Error.RequestID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteErrorWithoutLogger(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWriteJSONEncodingFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "response encoding failed")
}
