package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/router-for-me/mealtracker/internal/models"
	"gorm.io/gorm"
)

// DefaultRoles returns the seed roles with their default names.
func DefaultRoles() []models.Role {
	return []models.Role{
		{ID: models.RoleIDAdministrator, Name: "Administrator"},
		{ID: models.RoleIDDataManager, Name: "DataManager"},
		{ID: models.RoleIDUserManager, Name: "UserManager"},
		{ID: models.RoleIDUser, Name: "User"},
	}
}

// Migrate runs database migrations and seeds the given roles.
// When no roles are passed the defaults are seeded.
func Migrate(conn *gorm.DB, roles ...models.Role) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.Meal{},
		&models.DailyUserCalories{},
		&models.CalorieEstimate{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if len(roles) == 0 {
		roles = DefaultRoles()
	}
	for _, role := range roles {
		if errSeed := ensureRole(conn, role); errSeed != nil {
			return errSeed
		}
	}
	if DialectName(conn) == DialectPostgres {
		if errSeq := syncRoleSequence(conn); errSeq != nil {
			return errSeq
		}
	}
	return nil
}

// ensureRole creates the role with a fixed ID when it is absent.
// Existing rows are left alone so renamed roles survive restarts.
func ensureRole(conn *gorm.DB, role models.Role) error {
	role.Name = strings.TrimSpace(role.Name)
	if role.ID == 0 || role.Name == "" {
		return fmt.Errorf("db: invalid seed role %d %q", role.ID, role.Name)
	}

	var existing models.Role
	errFind := conn.Where("id = ?", role.ID).First(&existing).Error
	if errFind == nil {
		return nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query role %d: %w", role.ID, errFind)
	}
	if errCreate := conn.Create(&role).Error; errCreate != nil {
		return fmt.Errorf("db: create role %q: %w", role.Name, errCreate)
	}
	return nil
}

// syncRoleSequence moves the roles ID sequence past the explicitly seeded IDs.
func syncRoleSequence(conn *gorm.DB) error {
	if errSeq := conn.Exec(`
		SELECT setval(pg_get_serial_sequence('roles', 'id'), GREATEST((SELECT MAX(id) FROM roles), 1))
	`).Error; errSeq != nil {
		return fmt.Errorf("db: sync roles sequence: %w", errSeq)
	}
	return nil
}
