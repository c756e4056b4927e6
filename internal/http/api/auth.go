package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/pulsefit/pulsefit-auth/internal/auth"
	"github.com/pulsefit/pulsefit-auth/internal/security"
)

// AuthHandler manages the token endpoints.
type AuthHandler struct {
	service   *auth.Service
	locations []string
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(service *auth.Service, locations []string) *AuthHandler {
	return &AuthHandler{service: service, locations: locations}
}

type loginRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// Login exchanges an email and passcode for an access and refresh token
// pair.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid json"})
		return
	}

	result, err := h.service.Login(c.Request.Context(), body.Email, body.OTP)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
		case errors.Is(err, auth.ErrOTPNotRequested):
			c.JSON(http.StatusBadRequest, gin.H{"detail": "User has not requested OTP yet"})
		case errors.Is(err, auth.ErrOTPExpired):
			c.JSON(http.StatusBadRequest, gin.H{"detail": "OTP expired"})
		case errors.Is(err, auth.ErrOTPIncorrect):
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Incorrect OTP"})
		case errors.Is(err, auth.ErrAlreadyLoggedIn):
			c.JSON(http.StatusAlreadyReported, gin.H{"detail": "You are logged in."})
		default:
			log.WithError(err).Error("login failed")
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not login. Try again"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"is_new_user":   result.IsNewUser,
		"username":      result.Username,
	})
}

// Refresh exchanges a refresh token for a fresh access token. The
// session itself is untouched.
func (h *AuthHandler) Refresh(c *gin.Context) {
	raw, errExtract := tokenFromRequest(c, h.locations, refreshTokenCookie)
	if errExtract != nil {
		if errors.Is(errExtract, security.ErrTokenMissing) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Provide refresh token"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid refresh token"})
		return
	}

	accessToken, err := h.service.Refresh(c.Request.Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrTokenExpired):
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Refresh token has expired, login again"})
		case errors.Is(err, auth.ErrUserNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "The user belonging to this token no longer exist"})
		case errors.Is(err, security.ErrTokenMalformed), errors.Is(err, security.ErrTokenWrongKind):
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid refresh token"})
		default:
			log.WithError(err).Error("token refresh failed")
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"access_token": accessToken})
}

// Logout closes the session. Requires authentication; repeating it on a
// dead session just fails the guard.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := c.GetString(ContextUserID)
	if err := h.service.Logout(c.Request.Context(), userID); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("logout failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Successfully logged out"})
}
