package utils

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/distributor-server/internal/apperrors"
)

// TokenAudience is the audience Keycloak stamps on access tokens.
const TokenAudience = "account"

// RealmAccess carries the realm roles granted to the token subject.
type RealmAccess struct {
	Roles []string `json:"roles"`
}

// Claims is the decoded, verified payload of a bearer token.
type Claims struct {
	RealmAccess       RealmAccess `json:"realm_access"`
	PreferredUsername string      `json:"preferred_username"`
	jwt.RegisteredClaims
}

// HasRole reports whether any of the wanted roles was granted.
func (c *Claims) HasRole(wanted ...string) bool {
	for _, role := range c.RealmAccess.Roles {
		for _, w := range wanted {
			if role == w {
				return true
			}
		}
	}
	return false
}

// VerifyToken decodes and validates a bearer token against the configured
// key and issuer. Both HMAC and RSA signing families are accepted; the key
// is the shared secret for the former and a PEM public key for the latter.
func VerifyToken(key, issuer, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "RS256"}),
		jwt.WithAudience(TokenAudience),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			return []byte(key), nil
		case *jwt.SigningMethodRSA:
			return jwt.ParseRSAPublicKeyFromPEM([]byte(key))
		default:
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
	}, opts...)

	switch {
	case err == nil && token.Valid:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, apperrors.ExpiredToken("Token Expired")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, apperrors.Unauthorized("Invalid Token")
	default:
		return nil, apperrors.Unauthorized("Error decoding token")
	}
}
