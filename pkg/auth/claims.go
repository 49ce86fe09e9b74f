package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// AccessTokenPayload is what a caller supplies to MintAccessToken. An empty
// JTI gets a random one; the JTI also keys the refresh session.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.UserRole
	Plan   enums.PlanTier
	JTI    string
}

// AccessTokenClaims is the body of every access token. The plan rides along
// so quota checks need no database read.
type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	Plan   enums.PlanTier `json:"plan,omitempty"`
	jwt.RegisteredClaims
}

var _ jwt.ClaimsValidator = (*AccessTokenClaims)(nil)

// Validate runs after the registered-claim checks. parse also calls it on
// the allow-expired path, where the parser skips it.
func (c *AccessTokenClaims) Validate() error {
	switch {
	case c.UserID == uuid.Nil:
		return errors.New("missing user id")
	case c.Subject != "" && c.Subject != c.UserID.String():
		return fmt.Errorf("subject %q does not match user id", c.Subject)
	case !c.Role.IsValid():
		return fmt.Errorf("unknown role %q", c.Role)
	case c.Plan != "" && !c.Plan.IsValid():
		return fmt.Errorf("unknown plan %q", c.Plan)
	}
	return nil
}
