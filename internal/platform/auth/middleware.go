package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Claims struct {
	jwt.RegisteredClaims
	Role    string `json:"role"`
	StaffID string `json:"staff_id,omitempty"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	// SigningKey is the HMAC key used to verify tokens.
	SigningKey []byte
}

// JWTMiddleware validates the bearer token and resolves the caller into an
// Actor on the request context. Role and staff identity come exclusively from
// the verified claims; nothing client-supplied in the body or query is trusted.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			opts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"HS256"}),
			}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}
			if cfg.Audience != "" {
				opts = append(opts, jwt.WithAudience(cfg.Audience))
			}

			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.SigningKey, nil
			}, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			actor := Actor{
				Subject: claims.Subject,
				Role:    NormalizeRole(claims.Role),
			}
			if claims.StaffID != "" {
				if sid, err := uuid.Parse(claims.StaffID); err == nil {
					actor.StaffID = &sid
				}
			}

			c.SetRequest(c.Request().WithContext(WithActor(c.Request().Context(), actor)))
			return next(c)
		}
	}
}

// DevAuthMiddleware is a permissive middleware for development. Requests
// without a token run as an admin; the X-Dev-Role and X-Dev-Staff-ID headers
// let manual testing impersonate other actors.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := Actor{Subject: "dev-user", Role: RoleAdmin}
			if role := c.Request().Header.Get("X-Dev-Role"); role != "" {
				actor.Role = NormalizeRole(role)
			}
			if sid := c.Request().Header.Get("X-Dev-Staff-ID"); sid != "" {
				if parsed, err := uuid.Parse(sid); err == nil {
					actor.StaffID = &parsed
				}
			}
			c.SetRequest(c.Request().WithContext(WithActor(c.Request().Context(), actor)))
			return next(c)
		}
	}
}
