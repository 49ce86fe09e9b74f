package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/api/middleware"
	"github.com/angelmondragon/gigmarket-backend/api/responses"
	"github.com/angelmondragon/gigmarket-backend/api/validators"
	"github.com/angelmondragon/gigmarket-backend/internal/gigs"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

func CreateGig(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body gigs.CreateGigRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		gig, err := svc.Create(r.Context(), userID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, gig)
	}
}

// ListGigs is the public marketplace feed of open gigs.
func ListGigs(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := gigFilterFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// GetGig serves anonymous visitors and signed-in owners alike.
func GetGig(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gigID, err := validators.ParseUUIDParam(r, "gigId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var viewer gigs.Viewer
		if userID, ok := middleware.UserUUIDFromContext(r.Context()); ok {
			viewer.UserID = userID
			viewer.Role = enums.UserRole(middleware.RoleFromContext(r.Context()))
		}
		gig, err := svc.Get(r.Context(), viewer, gigID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, gig)
	}
}

// ListMyGigs returns gigs the caller posted (clients) or was hired for (providers).
func ListMyGigs(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := currentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := gigFilterFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseGigStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = status
		}
		page, err := svc.ListMine(r.Context(), gigs.Viewer{UserID: userID, Role: role}, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func UpdateGig(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		gigID, err := validators.ParseUUIDParam(r, "gigId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body gigs.UpdateGigRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		gig, err := svc.Update(r.Context(), userID, gigID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, gig)
	}
}

func CancelGig(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return gigOwnerAction(svc, logg, gigs.Service.Cancel)
}

func CompleteGig(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return gigOwnerAction(svc, logg, gigs.Service.Complete)
}

func AdminPendingGigs(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := gigFilterFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListPending(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func AdminApproveGig(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return gigOwnerAction(svc, logg, gigs.Service.Approve)
}

func AdminRejectGig(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		gigID, err := validators.ParseUUIDParam(r, "gigId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body gigs.RejectGigRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		gig, err := svc.Reject(r.Context(), adminID, gigID, body.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, gig)
	}
}

// gigOwnerAction adapts a (caller, gig) state change into a handler. action
// is a method expression so svc is only touched when a request arrives.
func gigOwnerAction(svc gigs.Service, logg *logger.Logger, action func(svc gigs.Service, ctx context.Context, userID, gigID uuid.UUID) (*gigs.GigDTO, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		gigID, err := validators.ParseUUIDParam(r, "gigId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		gig, err := action(svc, r.Context(), userID, gigID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, gig)
	}
}

func gigFilterFromQuery(r *http.Request) (gigs.ListFilter, error) {
	q := r.URL.Query()
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return gigs.ListFilter{}, err
	}
	categoryID, err := validators.ParseQueryUUIDPtr(r, "category")
	if err != nil {
		return gigs.ListFilter{}, err
	}
	minBudget, err := validators.ParseQueryInt64Ptr(r, "minBudget")
	if err != nil {
		return gigs.ListFilter{}, err
	}
	maxBudget, err := validators.ParseQueryInt64Ptr(r, "maxBudget")
	if err != nil {
		return gigs.ListFilter{}, err
	}
	if minBudget != nil && maxBudget != nil && *minBudget > *maxBudget {
		return gigs.ListFilter{}, pkgerrors.New(pkgerrors.CodeValidation, "minBudget cannot exceed maxBudget")
	}
	return gigs.ListFilter{
		CategoryID: categoryID,
		City:       validators.SanitizeString(q.Get("city"), 120),
		Query:      validators.SanitizeString(q.Get("q"), 200),
		MinBudget:  minBudget,
		MaxBudget:  maxBudget,
		Limit:      limit,
		Cursor:     strings.TrimSpace(q.Get("cursor")),
	}, nil
}
