package models

import "time"

// User represents an end-user account stored in the database.
//
// HashedOTP and OTPCreatedAt are set and cleared together: both non-nil
// between passcode issuance and consumption, both nil otherwise.
// LastLoginAt is non-nil only while the user holds a live session.
type User struct {
	ID string `gorm:"type:text;primaryKey"` // UUID primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name, derived from the email local part.
	Email    string `gorm:"type:text;not null;uniqueIndex"` // Email address, stored lowercased.

	FullName    *string `gorm:"type:text"` // Display name.
	PhoneNumber *string `gorm:"type:text"` // Contact phone number.

	HashedOTP    *string    `gorm:"type:text"` // bcrypt hash of the outstanding passcode.
	OTPCreatedAt *time.Time // When the outstanding passcode was issued.
	LastLoginAt  *time.Time // When the current session started.

	RoleID *uint64 `gorm:"index"`             // Assigned role ID.
	Role   *Role   `gorm:"foreignKey:RoleID"` // Assigned role.

	// Profile fields; a nil Age marks the account as not yet onboarded.
	Age      *int     // Age in years.
	Gender   *string  `gorm:"type:text"` // Self-reported gender.
	HeightCm *float64 // Height in centimeters.
	WeightKg *float64 // Weight in kilograms.

	Active bool `gorm:"not null;default:true"` // False means soft-deleted.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// UserAuthState is the projection of a user the authorization guard needs.
type UserAuthState struct {
	ID           string
	LastLoginAt  *time.Time
	OTPCreatedAt *time.Time
	Active       bool
}
