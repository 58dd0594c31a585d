package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/distributor-server/internal/apperrors"
	"github.com/example/distributor-server/internal/config"
	"github.com/example/distributor-server/internal/utils"
)

const (
	preferredUsernameKey = "preferredUsername"
	claimsKey            = "tokenClaims"
)

// AuthRole validates the bearer token and authorizes the caller against the
// generated role name {serviceName}_{endpoint}. Each entry of otherRoles is
// an accepted alternate; pipe-delimited lists are expanded. A missing or
// invalid token yields 401, a role mismatch 403.
func AuthRole(cfg *config.Config, endpoint string, otherRoles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return apperrors.Unauthorized("Missing authentication token")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return apperrors.Unauthorized("invalid authorization header")
		}

		claims, err := utils.VerifyToken(cfg.JWTPublicKey, cfg.JWTIssuer, parts[1])
		if err != nil {
			return err
		}

		authorized := []string{cfg.ServiceName + "_" + endpoint}
		for _, other := range otherRoles {
			for _, role := range strings.Split(other, "|") {
				if role != "" {
					authorized = append(authorized, role)
				}
			}
		}

		if !claims.HasRole(authorized...) {
			return apperrors.Forbidden()
		}

		c.Locals(preferredUsernameKey, claims.PreferredUsername)
		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// PreferredUsername extracts the authenticated caller's subject identifier
// from context.
func PreferredUsername(c *fiber.Ctx) (string, bool) {
	if username, ok := c.Locals(preferredUsernameKey).(string); ok && username != "" {
		return username, true
	}
	return "", false
}

// TokenClaims extracts the verified token claims from context.
func TokenClaims(c *fiber.Ctx) (*utils.Claims, bool) {
	if claims, ok := c.Locals(claimsKey).(*utils.Claims); ok {
		return claims, true
	}
	return nil, false
}
