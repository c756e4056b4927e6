package db

import (
	"fmt"

	"github.com/pulsefit/pulsefit-auth/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migrate applies the schema and seeds the default roles.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.OutboundMail{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	return ensureDefaultRoles(conn)
}

// ensureDefaultRoles seeds the admin and member roles when absent.
func ensureDefaultRoles(conn *gorm.DB) error {
	roles := []models.Role{
		{Name: models.RoleAdmin, Active: true},
		{Name: models.RoleMember, Active: true},
	}
	for _, role := range roles {
		if errSeed := conn.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&role).Error; errSeed != nil {
			return fmt.Errorf("db: seed role %s: %w", role.Name, errSeed)
		}
	}
	return nil
}
