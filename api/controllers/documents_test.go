package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/api/middleware"
	"github.com/angelmondragon/gigmarket-backend/internal/documents"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

type stubDocumentService struct {
	requestUploadFn func(context.Context, uuid.UUID, documents.UploadRequest) (*documents.UploadDTO, error)
	deleteFn        func(context.Context, uuid.UUID, uuid.UUID) error
	downloadFn      func(context.Context, uuid.UUID, uuid.UUID, bool) (*documents.DownloadDTO, error)
	reviewFn        func(context.Context, uuid.UUID, uuid.UUID, documents.ReviewRequest) (*documents.DocumentDTO, error)
}

func (s stubDocumentService) RequestUpload(ctx context.Context, providerID uuid.UUID, req documents.UploadRequest) (*documents.UploadDTO, error) {
	if s.requestUploadFn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unexpected call")
	}
	return s.requestUploadFn(ctx, providerID, req)
}

func (s stubDocumentService) ConfirmUpload(context.Context, uuid.UUID, uuid.UUID) (*documents.DocumentDTO, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "unexpected call")
}

func (s stubDocumentService) List(context.Context, uuid.UUID) ([]documents.DocumentDTO, error) {
	return nil, nil
}

func (s stubDocumentService) Delete(ctx context.Context, providerID, documentID uuid.UUID) error {
	if s.deleteFn == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "unexpected call")
	}
	return s.deleteFn(ctx, providerID, documentID)
}

func (s stubDocumentService) DownloadURL(ctx context.Context, callerID, documentID uuid.UUID, admin bool) (*documents.DownloadDTO, error) {
	if s.downloadFn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unexpected call")
	}
	return s.downloadFn(ctx, callerID, documentID, admin)
}

func (s stubDocumentService) ListPending(context.Context, pagination.Params) (pagination.Page[documents.DocumentDTO], error) {
	return pagination.Page[documents.DocumentDTO]{}, nil
}

func (s stubDocumentService) Review(ctx context.Context, adminID, documentID uuid.UUID, req documents.ReviewRequest) (*documents.DocumentDTO, error) {
	if s.reviewFn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unexpected call")
	}
	return s.reviewFn(ctx, adminID, documentID, req)
}

func (s stubDocumentService) PurgeAbandonedUploads(context.Context, time.Time) (int, error) {
	return 0, nil
}

func TestRequestDocumentUpload(t *testing.T) {
	providerID := uuid.New()
	var got documents.UploadRequest
	svc := stubDocumentService{
		requestUploadFn: func(_ context.Context, id uuid.UUID, req documents.UploadRequest) (*documents.UploadDTO, error) {
			if id != providerID {
				t.Fatalf("unexpected provider %s", id)
			}
			got = req
			return &documents.UploadDTO{
				Document:  documents.DocumentDTO{ID: uuid.New(), Status: enums.DocumentStatusPendingUpload},
				UploadURL: "https://storage.example/put",
			}, nil
		},
	}
	body := `{"kind":"license","file_name":"license.pdf","mime_type":"application/pdf","size_bytes":2048}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body))
	req = req.WithContext(middleware.WithUserID(req.Context(), providerID.String()))
	resp := httptest.NewRecorder()

	RequestDocumentUpload(svc, controllerLogger())(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.Kind != "license" || got.SizeBytes != 2048 {
		t.Fatalf("unexpected request %+v", got)
	}
	if !strings.Contains(resp.Body.String(), "https://storage.example/put") {
		t.Fatalf("upload url missing from %s", resp.Body.String())
	}
}

func TestRequestDocumentUploadRejectsUnknownKind(t *testing.T) {
	body := `{"kind":"selfie","file_name":"me.jpg","mime_type":"image/jpeg","size_bytes":10}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body))
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	resp := httptest.NewRecorder()

	RequestDocumentUpload(stubDocumentService{}, controllerLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRequestDocumentUploadRequiresAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()

	RequestDocumentUpload(stubDocumentService{}, controllerLogger())(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestDeleteDocumentMapsNotFound(t *testing.T) {
	documentID := uuid.New()
	svc := stubDocumentService{
		deleteFn: func(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
			if id != documentID {
				t.Fatalf("unexpected document %s", id)
			}
			return pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
		},
	}
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+documentID.String(), nil)
	req = addRouteParam(req, "documentId", documentID.String())
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	resp := httptest.NewRecorder()

	DeleteDocument(svc, controllerLogger())(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestDocumentDownloadPassesAdminRole(t *testing.T) {
	documentID := uuid.New()
	for role, wantAdmin := range map[string]bool{"admin": true, "provider": false} {
		var sawAdmin bool
		svc := stubDocumentService{
			downloadFn: func(_ context.Context, _ uuid.UUID, _ uuid.UUID, admin bool) (*documents.DownloadDTO, error) {
				sawAdmin = admin
				return &documents.DownloadDTO{URL: "https://storage.example/get"}, nil
			},
		}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+documentID.String()+"/download", nil)
		req = addRouteParam(req, "documentId", documentID.String())
		ctx := middleware.WithUserID(req.Context(), uuid.NewString())
		req = req.WithContext(middleware.WithRole(ctx, role))
		resp := httptest.NewRecorder()

		DocumentDownload(svc, controllerLogger())(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", role, resp.Code)
		}
		if sawAdmin != wantAdmin {
			t.Fatalf("%s: admin flag %v, want %v", role, sawAdmin, wantAdmin)
		}
	}
}

func TestAdminReviewDocumentValidatesDecision(t *testing.T) {
	documentID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/documents/"+documentID.String()+"/review", strings.NewReader(`{"decision":"maybe"}`))
	req = addRouteParam(req, "documentId", documentID.String())
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	resp := httptest.NewRecorder()

	AdminReviewDocument(stubDocumentService{}, controllerLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
