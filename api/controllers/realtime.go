package controllers

import (
	"net/http"

	"github.com/angelmondragon/gigmarket-backend/api/responses"
	"github.com/angelmondragon/gigmarket-backend/internal/realtime"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

// RealtimeSocket upgrades the authenticated request and holds it until the
// client disconnects or the hub shuts down.
func RealtimeSocket(hub *realtime.Hub, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		// The upgrader has already written the HTTP error on failure.
		if err := hub.Serve(w, r, userID); err != nil {
			logg.Warn(logg.WithFields(r.Context(), map[string]any{"error": err.Error()}), "realtime.upgrade_failed")
		}
	}
}
