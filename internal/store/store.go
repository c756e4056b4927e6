package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pulsefit/pulsefit-auth/internal/auth"
	"github.com/pulsefit/pulsefit-auth/internal/db"
	"github.com/pulsefit/pulsefit-auth/internal/models"
	"github.com/pulsefit/pulsefit-auth/internal/security"
	"gorm.io/gorm"
)

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique constraint hits.
const pgUniqueViolation = "23505"

// UserStore persists user credentials via GORM. It implements auth.Store;
// every mutation is a single-row update so concurrent issuance and
// consumption for the same user serialize at the database.
type UserStore struct {
	db *gorm.DB
}

// NewUserStore constructs a UserStore.
func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// FindByEmail loads an active user by email. Soft-deleted users are
// reported as not found.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ? AND active = ?", email, true).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auth.ErrUserNotFound
		}
		return nil, dependencyError("find by email", err)
	}
	return &user, nil
}

// FindByID loads an active user by ID. Soft-deleted users are reported
// as not found.
func (s *UserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("id = ? AND active = ?", id, true).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auth.ErrUserNotFound
		}
		return nil, dependencyError("find by id", err)
	}
	return &user, nil
}

// Create registers a new user for the email with the default member role.
// The username is the email local part; on collision a random numeric
// suffix is appended.
func (s *UserStore) Create(ctx context.Context, email string) (*models.User, error) {
	username, errName := s.deriveUsername(ctx, email)
	if errName != nil {
		return nil, errName
	}

	var memberRole models.Role
	if errRole := s.db.WithContext(ctx).
		Where("name = ?", models.RoleMember).
		First(&memberRole).Error; errRole != nil {
		return nil, dependencyError("load member role", errRole)
	}

	user := models.User{
		ID:       uuid.NewString(),
		Username: username,
		Email:    email,
		RoleID:   &memberRole.ID,
		Active:   true,
	}
	if errCreate := s.db.WithContext(ctx).Create(&user).Error; errCreate != nil {
		if isUniqueViolation(errCreate) {
			return nil, dependencyError("create user (integrity violation)", errCreate)
		}
		return nil, dependencyError("create user", errCreate)
	}
	return &user, nil
}

// StoreOTP records the hashed passcode and its creation time, dropping
// any live session in the same atomic update.
func (s *UserStore) StoreOTP(ctx context.Context, id, hashedOTP string, createdAt time.Time) error {
	return s.updateAuthColumns(ctx, id, map[string]any{
		"hashed_otp":     hashedOTP,
		"otp_created_at": createdAt,
		"last_login_at":  nil,
	})
}

// ConsumeOTP clears the passcode fields and records the login time in
// one atomic update.
func (s *UserStore) ConsumeOTP(ctx context.Context, id string, loginAt time.Time) error {
	return s.updateAuthColumns(ctx, id, map[string]any{
		"hashed_otp":     nil,
		"otp_created_at": nil,
		"last_login_at":  loginAt,
	})
}

// ClearSession clears the login time and any stray passcode fields.
func (s *UserStore) ClearSession(ctx context.Context, id string) error {
	return s.updateAuthColumns(ctx, id, map[string]any{
		"hashed_otp":     nil,
		"otp_created_at": nil,
		"last_login_at":  nil,
	})
}

func (s *UserStore) updateAuthColumns(ctx context.Context, id string, columns map[string]any) error {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND active = ?", id, true).
		Updates(columns)
	if res.Error != nil {
		return dependencyError("update auth state", res.Error)
	}
	if res.RowsAffected == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// AuthState loads the columns the authorization guard inspects. The row
// is selected regardless of the active flag so the guard can reject
// deactivated users itself.
func (s *UserStore) AuthState(ctx context.Context, id string) (*models.UserAuthState, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Select("id", "last_login_at", "otp_created_at", "active").
		Where("id = ?", id).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auth.ErrUserNotFound
		}
		return nil, dependencyError("load auth state", err)
	}
	return &models.UserAuthState{
		ID:           user.ID,
		LastLoginAt:  user.LastLoginAt,
		OTPCreatedAt: user.OTPCreatedAt,
		Active:       user.Active,
	}, nil
}

// RoleOf returns the role assigned to an active user.
func (s *UserStore) RoleOf(ctx context.Context, id string) (*models.Role, error) {
	user, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.RoleID == nil {
		return nil, auth.ErrUserNotFound
	}

	var role models.Role
	if errRole := s.db.WithContext(ctx).First(&role, *user.RoleID).Error; errRole != nil {
		if errors.Is(errRole, gorm.ErrRecordNotFound) {
			return nil, auth.ErrUserNotFound
		}
		return nil, dependencyError("load role", errRole)
	}
	return &role, nil
}

// ProfileUpdate carries optional profile fields; nil fields are left
// untouched.
type ProfileUpdate struct {
	FullName    *string
	PhoneNumber *string
	Age         *int
	Gender      *string
	HeightCm    *float64
	WeightKg    *float64
}

// UpdateProfile applies the non-nil profile fields to an active user.
func (s *UserStore) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) error {
	columns := map[string]any{}
	if update.FullName != nil {
		columns["full_name"] = *update.FullName
	}
	if update.PhoneNumber != nil {
		columns["phone_number"] = *update.PhoneNumber
	}
	if update.Age != nil {
		columns["age"] = *update.Age
	}
	if update.Gender != nil {
		columns["gender"] = *update.Gender
	}
	if update.HeightCm != nil {
		columns["height_cm"] = *update.HeightCm
	}
	if update.WeightKg != nil {
		columns["weight_kg"] = *update.WeightKg
	}
	if len(columns) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND active = ?", id, true).
		Updates(columns)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return dependencyError("update profile (integrity violation)", res.Error)
		}
		return dependencyError("update profile", res.Error)
	}
	if res.RowsAffected == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// Deactivate soft-deletes a user. The row stays for the guard and for
// audit, but every read path treats the account as gone. Any open
// session and outstanding passcode are dropped with it.
func (s *UserStore) Deactivate(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]any{
			"active":         false,
			"hashed_otp":     nil,
			"otp_created_at": nil,
			"last_login_at":  nil,
		})
	if res.Error != nil {
		return dependencyError("deactivate", res.Error)
	}
	if res.RowsAffected == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// ListUsers returns all active users, newest first. A non-empty search
// term filters by username or email, case-insensitively on either
// dialect.
func (s *UserStore) ListUsers(ctx context.Context, search string) ([]models.User, error) {
	q := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at DESC")
	if search = strings.TrimSpace(search); search != "" {
		pattern := db.NormalizeLikePattern(s.db, "%"+search+"%")
		q = q.Where(
			db.CaseInsensitiveLikeExpr(s.db, "username")+" OR "+db.CaseInsensitiveLikeExpr(s.db, "email"),
			pattern, pattern,
		)
	}

	var users []models.User
	if err := q.Find(&users).Error; err != nil {
		return nil, dependencyError("list users", err)
	}
	return users, nil
}

// deriveUsername takes the email local part, disambiguating collisions
// with a random numeric suffix.
func (s *UserStore) deriveUsername(ctx context.Context, email string) (string, error) {
	username := email
	if at := strings.Index(email, "@"); at > 0 {
		username = email[:at]
	}

	var count int64
	if errCount := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ?", username).
		Count(&count).Error; errCount != nil {
		return "", dependencyError("check username", errCount)
	}
	if count == 0 {
		return username, nil
	}

	suffix, errSuffix := security.RandomDigits(4)
	if errSuffix != nil {
		return "", fmt.Errorf("user store: username suffix: %w", errSuffix)
	}
	return username + suffix, nil
}

func dependencyError(op string, cause error) error {
	return fmt.Errorf("user store: %s: %w: %w", op, auth.ErrDependency, cause)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
