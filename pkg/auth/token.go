package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/brindes-backend/pkg/config"
	"github.com/angelmondragon/brindes-backend/pkg/enums"
)

var jwtSigningMethod = jwt.SigningMethodHS256

var (
	ErrMissingUser = errors.New("token carries no user id")
	ErrUnknownRole = errors.New("token carries an unknown role")
)

// Actor is the authenticated caller resolved from a verified token.
type Actor struct {
	UserID  int64
	Role    enums.ActorRole
	TokenID string
}

// Verifier checks HS256 access tokens issued by the identity provider.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(cfg config.JWTConfig) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(time.Duration(max(cfg.LeewaySeconds, 0)) * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Verifier{secret: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}, nil
}

// Verify validates raw and resolves its actor. Legacy role names are
// accepted; unknown roles yield ErrUnknownRole.
func (v *Verifier) Verify(raw string) (Actor, error) {
	claims := &AccessTokenClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return Actor{}, err
	}
	if claims.UserID <= 0 {
		return Actor{}, ErrMissingUser
	}
	role, err := claims.ActorRole()
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrUnknownRole, err)
	}
	return Actor{UserID: claims.UserID, Role: role, TokenID: claims.ID}, nil
}

// MintAccessToken signs a token for payload. The API never issues tokens; this
// serves local tooling and tests.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	case payload.UserID <= 0:
		return "", ErrMissingUser
	case !payload.Role.IsValid():
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, payload.Role)
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Role:   payload.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
			ID:        jti,
		},
	}
	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}
