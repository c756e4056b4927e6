package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pulsefit/pulsefit-auth/internal/auth"
	"github.com/pulsefit/pulsefit-auth/internal/config"
	"github.com/pulsefit/pulsefit-auth/internal/models"
	"github.com/pulsefit/pulsefit-auth/internal/ratelimit"
	"github.com/pulsefit/pulsefit-auth/internal/store"
)

// RegisterRoutes registers v1 routes, middleware, and handlers.
func RegisterRoutes(r *gin.Engine, conn *gorm.DB, service *auth.Service, users *store.UserStore, limiter *ratelimit.Manager, cfg *config.Config) {
	if r == nil || conn == nil {
		return
	}
	locations := cfg.JWT.TokenLocations

	healthHandler := NewHealthHandler(conn)
	r.GET("/healthz", healthHandler.Healthz)

	v1 := r.Group("/api/v1")

	userHandler := NewUserHandler(service, users)
	userGroup := v1.Group("/users")
	userGroup.POST("", RateLimit(limiter, "otp"), userHandler.RequestOTP)

	profileGroup := userGroup.Group("/:username/profile")
	profileGroup.Use(AuthRequired(service, locations))
	profileGroup.POST("", userHandler.AddProfile)
	profileGroup.PATCH("", userHandler.UpdateProfile)
	profileGroup.GET("", userHandler.GetProfile)

	authHandler := NewAuthHandler(service, locations)
	authGroup := v1.Group("/auth")
	authGroup.POST("/token", authHandler.Login)
	authGroup.GET("/refresh", authHandler.Refresh)
	authGroup.GET("/logout", AuthRequired(service, locations), authHandler.Logout)

	adminGroup := v1.Group("/admin")
	adminGroup.Use(RoleRequired(service, locations, models.RoleAdmin))
	adminGroup.GET("/users", userHandler.ListUsers)
}
