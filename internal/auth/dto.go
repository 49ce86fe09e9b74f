package auth

import (
	"github.com/angelmondragon/gigmarket-backend/internal/users"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest carries the refresh token paired with the (possibly expired) access token.
type RefreshRequest struct {
	AccessToken  string `json:"-"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResponse contains the tokens and the authenticated user.
type LoginResponse struct {
	TokenPair
	User *users.UserDTO `json:"user"`
	Plan enums.PlanTier `json:"plan"`
}
