package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/brindes-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID int64
	Role   enums.ActorRole
	JTI    string
}

// AccessTokenClaims represents the typed JWT presented by clients. Role is
// kept raw because the identity provider may still issue legacy names.
type AccessTokenClaims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// ActorRole resolves the role claim, accepting legacy aliases.
func (c AccessTokenClaims) ActorRole() (enums.ActorRole, error) {
	return enums.ParseActorRole(c.Role)
}
