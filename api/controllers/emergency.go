package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/api/responses"
	"github.com/angelmondragon/gigmarket-backend/api/validators"
	"github.com/angelmondragon/gigmarket-backend/internal/emergency"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

func CreateEmergency(svc emergency.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body emergency.CreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req, err := svc.Create(r.Context(), clientID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, req)
	}
}

func GetEmergency(svc emergency.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := currentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "emergencyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req, err := svc.Get(r.Context(), userID, role, requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, req)
	}
}

func ListMyEmergencies(svc emergency.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListMine(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func AcceptEmergency(svc emergency.Service, logg *logger.Logger) http.HandlerFunc {
	return emergencyAction(svc, logg, emergency.Service.Accept)
}

func EmergencyEnRoute(svc emergency.Service, logg *logger.Logger) http.HandlerFunc {
	return emergencyAction(svc, logg, emergency.Service.MarkEnRoute)
}

func EmergencyArrived(svc emergency.Service, logg *logger.Logger) http.HandlerFunc {
	return emergencyAction(svc, logg, emergency.Service.Arrive)
}

func CompleteEmergency(svc emergency.Service, logg *logger.Logger) http.HandlerFunc {
	return emergencyAction(svc, logg, emergency.Service.Complete)
}

func CancelEmergency(svc emergency.Service, logg *logger.Logger) http.HandlerFunc {
	return emergencyAction(svc, logg, emergency.Service.Cancel)
}

// UpdateProviderLocation is the HTTP twin of the socket location frame.
func UpdateProviderLocation(svc emergency.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body emergency.LocationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.UpdateLocation(r.Context(), providerID, body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func EmergencyTracking(svc emergency.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "emergencyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tracking, err := svc.Tracking(r.Context(), userID, requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tracking)
	}
}

func emergencyAction(svc emergency.Service, logg *logger.Logger, action func(svc emergency.Service, ctx context.Context, userID, requestID uuid.UUID) (*emergency.RequestDTO, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "emergencyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req, err := action(svc, r.Context(), userID, requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, req)
	}
}
