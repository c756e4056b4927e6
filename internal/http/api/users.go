package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/pulsefit/pulsefit-auth/internal/auth"
	"github.com/pulsefit/pulsefit-auth/internal/models"
	"github.com/pulsefit/pulsefit-auth/internal/store"
)

// UserHandler manages registration and profile endpoints.
type UserHandler struct {
	service *auth.Service
	users   *store.UserStore
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(service *auth.Service, users *store.UserStore) *UserHandler {
	return &UserHandler{service: service, users: users}
}

type requestOTPRequest struct {
	Email string `json:"email"`
}

type profileRequest struct {
	FullName    *string  `json:"full_name"`
	PhoneNumber *string  `json:"phone_number"`
	Age         *int     `json:"age"`
	Gender      *string  `json:"gender"`
	HeightCm    *float64 `json:"height_cm"`
	WeightKg    *float64 `json:"weight_kg"`
}

// RequestOTP registers the email on first contact and issues a one-time
// passcode. In debug mode the plaintext code rides along in the response.
func (h *UserHandler) RequestOTP(c *gin.Context) {
	var body requestOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid json"})
		return
	}
	email := auth.NormalizeEmail(body.Email)
	if email == "" || !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Provide a valid email"})
		return
	}

	issued, err := h.service.RequestOTP(c.Request.Context(), email)
	if err != nil {
		var retry *auth.RetryError
		switch {
		case errors.As(err, &retry):
			c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("Try again in %d seconds", retry.RetrySeconds())})
		case errors.Is(err, auth.ErrAlreadyLoggedIn):
			c.JSON(http.StatusAlreadyReported, gin.H{"detail": "You are logged in."})
		case errors.Is(err, auth.ErrMailUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Could not sent email"})
		default:
			log.WithError(err).Error("otp request failed")
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		}
		return
	}

	response := gin.H{"detail": issued.Detail}
	if issued.OTP != "" {
		response["otp"] = issued.OTP
	}
	c.JSON(http.StatusCreated, response)
}

// AddProfile fills in the profile of the authenticated user. The
// username in the path is documentation only; the token decides whose
// profile is written.
func (h *UserHandler) AddProfile(c *gin.Context) {
	h.writeProfile(c, http.StatusCreated, "Profile added")
}

// UpdateProfile partially updates the authenticated user's profile.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	h.writeProfile(c, http.StatusOK, "Profile updated")
}

func (h *UserHandler) writeProfile(c *gin.Context, okStatus int, okDetail string) {
	var body profileRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid json"})
		return
	}

	userID := c.GetString(ContextUserID)
	update := store.ProfileUpdate{
		FullName:    body.FullName,
		PhoneNumber: body.PhoneNumber,
		Age:         body.Age,
		Gender:      body.Gender,
		HeightCm:    body.HeightCm,
		WeightKg:    body.WeightKg,
	}
	if err := h.users.UpdateProfile(c.Request.Context(), userID, update); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
			return
		}
		log.WithError(err).WithField("user_id", userID).Error("profile update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		return
	}
	c.JSON(okStatus, gin.H{"detail": okDetail})
}

// GetProfile returns the authenticated user's profile.
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID := c.GetString(ContextUserID)
	user, err := h.users.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
			return
		}
		log.WithError(err).WithField("user_id", userID).Error("profile read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, profileResponse(user))
}

// ListUsers returns active users for admin callers, with an optional
// username/email search.
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context(), c.Query("search"))
	if err != nil {
		log.WithError(err).Error("user listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		return
	}

	items := make([]gin.H, 0, len(users))
	for i := range users {
		items = append(items, profileResponse(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": items, "count": len(items)})
}

func profileResponse(user *models.User) gin.H {
	return gin.H{
		"username":     user.Username,
		"email":        user.Email,
		"full_name":    user.FullName,
		"phone_number": user.PhoneNumber,
		"age":          user.Age,
		"gender":       user.Gender,
		"height_cm":    user.HeightCm,
		"weight_kg":    user.WeightKg,
	}
}
