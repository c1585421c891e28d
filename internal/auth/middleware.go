package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lmendes/licitahub/internal/access"
	"github.com/lmendes/licitahub/internal/models"
)

type contextKey string

const (
	ProfileKey contextKey = "profile"
	AccessKey  contextKey = "access"
)

// Middleware validates the bearer token and resolves it against the access
// gate. A token whose profile is gone answers 401 with force_signout so the
// client tears the session down instead of retrying.
func Middleware(gate *access.Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := userIDFromHeader(c)
			if err != nil {
				return err
			}

			acc, profile, err := gate.Check(c.Request().Context(), userID)
			if errors.Is(err, access.ErrProfileGone) {
				return echo.NewHTTPError(http.StatusUnauthorized, map[string]interface{}{
					"error":         "session no longer valid",
					"force_signout": true,
				})
			}
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "access check unavailable")
			}

			c.Set(string(ProfileKey), profile)
			c.Set(string(AccessKey), acc)
			return next(c)
		}
	}
}

func userIDFromHeader(c echo.Context) (uuid.UUID, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "Missing Authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "Invalid Authorization header format")
	}

	secretKey, err := jwtSecretFromEnv()
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusInternalServerError, "Server auth configuration error")
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secretKey, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "Invalid token claims")
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "Invalid token subject")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "Invalid user ID in token")
	}
	return userID, nil
}

// ProfileFromContext retrieves the gate-checked profile.
func ProfileFromContext(c echo.Context) (*models.Profile, error) {
	p, ok := c.Get(string(ProfileKey)).(*models.Profile)
	if !ok || p == nil {
		return nil, errors.New("profile not found in context")
	}
	return p, nil
}

// AccessFromContext retrieves the computed tier for the request.
func AccessFromContext(c echo.Context) (access.Access, error) {
	a, ok := c.Get(string(AccessKey)).(access.Access)
	if !ok {
		return access.Access{}, errors.New("access not found in context")
	}
	return a, nil
}

// RequireAuthorized refuses the member area to accounts whose trial and
// subscription have both lapsed without staff authorization. Staff, paid
// subscribers and live trials always pass. Mounted after Middleware.
func RequireAuthorized(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		acc, err := AccessFromContext(c)
		if err != nil {
			return echo.NewHTTPError(http.StatusForbidden, "forbidden")
		}
		if !acc.IsFreeAuthorized {
			return echo.NewHTTPError(http.StatusForbidden, map[string]interface{}{
				"error":            "subscription required",
				"upgrade_required": true,
			})
		}
		return next(c)
	}
}

// RequireAdmin rejects non-staff requests. Mounted after Middleware.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := ProfileFromContext(c)
		if err != nil || !p.IsAdmin {
			return echo.NewHTTPError(http.StatusForbidden, "staff only")
		}
		return next(c)
	}
}
