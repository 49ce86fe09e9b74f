package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gigmarket-backend/api/middleware"
	"github.com/angelmondragon/gigmarket-backend/internal/profiles"
	"github.com/angelmondragon/gigmarket-backend/internal/quotas"
)

type stubProfileService struct {
	profiles.Service
	getPublicFn func(context.Context, uuid.UUID) (*profiles.PublicProfileDTO, error)
}

func (s stubProfileService) GetPublic(ctx context.Context, profileID uuid.UUID) (*profiles.PublicProfileDTO, error) {
	return s.getPublicFn(ctx, profileID)
}

type stubQuotaService struct {
	quotas.Service
	unlockedFn func(context.Context, uuid.UUID, uuid.UUID) (bool, error)
}

func (s stubQuotaService) ContactUnlocked(ctx context.Context, viewerID, targetID uuid.UUID) (bool, error) {
	return s.unlockedFn(ctx, viewerID, targetID)
}

func TestGetPublicProfileContactUnlockedFlag(t *testing.T) {
	profileID := uuid.New()
	viewerID := uuid.New()
	profileSvc := stubProfileService{
		getPublicFn: func(_ context.Context, id uuid.UUID) (*profiles.PublicProfileDTO, error) {
			return &profiles.PublicProfileDTO{ID: id, DisplayName: "Dana"}, nil
		},
	}
	quotaSvc := stubQuotaService{
		unlockedFn: func(_ context.Context, viewer, target uuid.UUID) (bool, error) {
			assert.Equal(t, viewerID, viewer)
			assert.Equal(t, profileID, target)
			return true, nil
		},
	}
	handler := GetPublicProfile(profileSvc, quotaSvc, controllerLogger())

	fetch := func(r *http.Request) map[string]any {
		resp := httptest.NewRecorder()
		handler(resp, addRouteParam(r, "profileId", profileID.String()))
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		var envelope struct {
			Data map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
		return envelope.Data
	}

	anon := fetch(httptest.NewRequest(http.MethodGet, "/api/v1/profiles/"+profileID.String(), nil))
	assert.NotContains(t, anon, "contact_unlocked")

	signed := httptest.NewRequest(http.MethodGet, "/api/v1/profiles/"+profileID.String(), nil)
	signed = signed.WithContext(middleware.WithUserID(signed.Context(), viewerID.String()))
	body := fetch(signed)
	assert.Equal(t, true, body["contact_unlocked"])
}

func TestGetPublicProfileWithoutQuotaService(t *testing.T) {
	profileID := uuid.New()
	profileSvc := stubProfileService{
		getPublicFn: func(_ context.Context, id uuid.UUID) (*profiles.PublicProfileDTO, error) {
			return &profiles.PublicProfileDTO{ID: id}, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles/"+profileID.String(), nil)
	req = addRouteParam(req, "profileId", profileID.String())
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	resp := httptest.NewRecorder()

	GetPublicProfile(profileSvc, nil, controllerLogger())(resp, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.NotContains(t, resp.Body.String(), "contact_unlocked")
}
