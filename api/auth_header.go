package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

const (
	bearerPrefix = "Bearer "
	userIDKey    = "breakdown.user_id"
)

func bearerToken(raw string) (string, error) {
	raw = strings.Trim(raw, " ")
	if raw == "" {
		return "", errMissingAuthorization
	}
	if len(raw) <= len(bearerPrefix) || !strings.HasPrefix(raw, bearerPrefix) {
		return "", errBadAuthorization
	}
	token := raw[len(bearerPrefix):]
	if strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}

// RequireUser resolves the caller from the Authorization header and stores
// the user id on the request context. Requests without a valid token are
// rejected with 401.
func RequireUser(auth Authenticator, logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				if logger != nil {
					logger.WithError(err).WithField("path", c.Path()).Debug("rejected request")
				}
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			}
			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

// userID returns the identity set by RequireUser.
func userID(c echo.Context) (string, bool) {
	id, ok := c.Get(userIDKey).(string)
	return id, ok && id != ""
}
