package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/pulsefit/pulsefit-auth/internal/auth"
	"github.com/pulsefit/pulsefit-auth/internal/config"
	"github.com/pulsefit/pulsefit-auth/internal/db"
	"github.com/pulsefit/pulsefit-auth/internal/http/api"
	"github.com/pulsefit/pulsefit-auth/internal/mail"
	"github.com/pulsefit/pulsefit-auth/internal/ratelimit"
	"github.com/pulsefit/pulsefit-auth/internal/security"
	"github.com/pulsefit/pulsefit-auth/internal/store"
)

// ProjectName is used in outbound mail and token issuance context.
const ProjectName = "PulseFit"

const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(cfg *config.Config) error {
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer wires the database-backed components and serves until the
// context is cancelled.
func RunServer(ctx context.Context, cfg *config.Config) error {
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	users := store.NewUserStore(conn)
	tokens := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL, nil)

	var sender mail.Sender
	if cfg.MailConfigured() {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			FromName: cfg.Mail.FromName,
		})
	} else if !cfg.Debug {
		log.Warn("mail is not configured, otp delivery will fail outside debug mode")
	}
	dispatcher := mail.NewDispatcher(conn, sender)

	service := auth.NewService(users, tokens, dispatcher, auth.ServiceConfig{
		OTPTTL:      cfg.OTP.TTL,
		OTPLength:   cfg.OTP.Length,
		AccessTTL:   cfg.JWT.AccessTTL,
		Debug:       cfg.Debug,
		ProjectName: ProjectName,
	}, nil)

	limiter := ratelimit.NewManager(ratelimit.Settings{
		Limit:         cfg.OTP.RequestLimitPerSecond,
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		RedisPrefix:   cfg.Redis.Prefix,
	}, nil, nil)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(requestLogger(), gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.WithField("panic", recovered).Error("handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
	}))
	api.RegisterRoutes(engine, conn, service, users, limiter, cfg)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		<-errCh
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// requestLogger logs one line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		}).Info("request handled")
	}
}
