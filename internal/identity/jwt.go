// Package identity adapts JWT bearer tokens to the auth middleware's
// TokenValidator port. The upstream identity provider signs tokens; this
// service only verifies them and extracts the acting user.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "conforma/pkg/domain-errors"
	authmw "conforma/pkg/platform/middleware/auth"
)

// tokenClaims is the JWT claim set issued by the identity provider.
type tokenClaims struct {
	ActorID string `json:"actor_id"`
	jwt.RegisteredClaims
}

// JWTService validates HS256 tokens against a shared signing key.
type JWTService struct {
	signingKey []byte
	issuer     string
}

func NewJWTService(signingKey, issuer string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// ValidateToken parses and verifies a bearer token, returning its claims.
func (s *JWTService) ValidateToken(tokenString string) (*authmw.Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "token is invalid")
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || claims.ActorID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token carries no actor")
	}
	return &authmw.Claims{ActorID: claims.ActorID}, nil
}

// GenerateToken mints a token for the given actor. Used by tests and local
// tooling; production tokens come from the identity provider.
func (s *JWTService) GenerateToken(actorID uuid.UUID, expiresIn time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		ActorID: actorID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}
