package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/gigmarket-backend/api/middleware"
	"github.com/angelmondragon/gigmarket-backend/api/responses"
)

type pingResponse struct {
	Status     string    `json:"status"`
	ServerTime time.Time `json:"server_time"`
	UserID     string    `json:"user_id,omitempty"`
	Role       string    `json:"role,omitempty"`
	Plan       string    `json:"plan,omitempty"`
}

// Ping answers with the server clock and, behind Auth, the caller's identity
// as the token presented it. Clients use it to check skew and token state.
func Ping() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		responses.WriteSuccess(w, pingResponse{
			Status:     "ok",
			ServerTime: time.Now().UTC(),
			UserID:     middleware.UserIDFromContext(ctx),
			Role:       middleware.RoleFromContext(ctx),
			Plan:       middleware.PlanFromContext(ctx),
		})
	}
}
