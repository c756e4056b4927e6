package models

import "time"

// Role names seeded at migration time.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Role is a coarse authorization group; many users share one role.
type Role struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`       // Primary key.
	Name string `gorm:"type:text;not null;uniqueIndex"` // Role name.

	Active bool `gorm:"not null;default:true"` // Whether the role can be assigned.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
