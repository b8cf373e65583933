package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by a signed server token.
type Claims struct {
	ServerID string `json:"server_id"`
	jwt.RegisteredClaims
}

// JWTResolver validates HMAC-signed server tokens locally, without a
// token store. The server_id claim becomes the authenticated identity.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

func (r *JWTResolver) Resolve(_ context.Context, token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnknownToken
		}
		return r.secret, nil
	})
	if err != nil {
		return "", ErrUnknownToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.ServerID == "" {
		return "", ErrUnknownToken
	}
	return claims.ServerID, nil
}

// Sign issues a token for a server identity. Used by the CLI when
// provisioning producers; the gateway itself only validates.
func (r *JWTResolver) Sign(serverID string, ttl time.Duration) (string, error) {
	claims := Claims{
		ServerID: serverID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "opm-stats-gateway",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(r.secret)
}
