package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pulsefit/pulsefit-auth/internal/auth"
	"github.com/pulsefit/pulsefit-auth/internal/config"
	"github.com/pulsefit/pulsefit-auth/internal/ratelimit"
	"github.com/pulsefit/pulsefit-auth/internal/security"
)

// Context key under which the authenticated user id is stored.
const ContextUserID = "userID"

// Cookie names for token transport when the cookie location is enabled.
const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"
)

var errBearerFormat = errors.New("authorization header is not a bearer token")

// tokenFromRequest extracts a raw token per the configured locations.
// The Authorization header wins when both locations carry a token. A
// present but non-Bearer header is reported as errBearerFormat rather
// than falling through to the cookie.
func tokenFromRequest(c *gin.Context, locations []string, cookieName string) (string, error) {
	headerEnabled, cookieEnabled := false, false
	for _, location := range locations {
		switch location {
		case config.TokenLocationHeader:
			headerEnabled = true
		case config.TokenLocationCookie:
			cookieEnabled = true
		}
	}

	if headerEnabled {
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				return "", errBearerFormat
			}
			token = strings.TrimSpace(token)
			if token != "" {
				return token, nil
			}
			return "", errBearerFormat
		}
	}
	if cookieEnabled {
		if token, errCookie := c.Cookie(cookieName); errCookie == nil && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token), nil
		}
	}
	return "", security.ErrTokenMissing
}

// AuthRequired guards a route with access-token authentication and
// stores the resolved user id in the gin context.
func AuthRequired(service *auth.Service, locations []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, errExtract := tokenFromRequest(c, locations, accessTokenCookie)
		if errExtract != nil {
			abortUnauthorized(c, errExtract)
			return
		}
		userID, errAuth := service.Authenticate(c.Request.Context(), raw)
		if errAuth != nil {
			abortUnauthorized(c, errAuth)
			return
		}
		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// RoleRequired layers a role allow-list on top of authentication.
func RoleRequired(service *auth.Service, locations []string, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, errExtract := tokenFromRequest(c, locations, accessTokenCookie)
		if errExtract != nil {
			abortUnauthorized(c, errExtract)
			return
		}
		userID, errAuth := service.AuthorizeRole(c.Request.Context(), raw, roles...)
		if errAuth != nil {
			if errors.Is(errAuth, auth.ErrForbidden) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "You do not have permission to access this route"})
				return
			}
			abortUnauthorized(c, errAuth)
			return
		}
		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// abortUnauthorized maps token and session failures to 401 responses.
// Session-level reasons share one message so responses cannot reveal
// whether an account exists, is deactivated or is logged out.
func abortUnauthorized(c *gin.Context, err error) {
	detail := "Token is invalid"
	switch {
	case errors.Is(err, errBearerFormat):
		detail = "Invalid Token. Should be a 'Bearer <token>'"
	case errors.Is(err, security.ErrTokenMissing):
		detail = "You are not logged in. Token is missing"
	case errors.Is(err, security.ErrTokenExpired):
		detail = "Token has expired, login again"
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrUserNotFound):
		detail = "User session is not active"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": detail})
}

// RateLimit throttles a route per client address. Limiter failures
// never block the request path; the manager falls back internally.
func RateLimit(manager *ratelimit.Manager, route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := manager.Allow(c.Request.Context(), ratelimit.Key(route, c.ClientIP()))
		if err != nil || result.Allowed {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"detail": fmt.Sprintf("Too many requests, limit is %d per second", manager.Limit()),
		})
	}
}
