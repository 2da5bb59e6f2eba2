package db

import (
	"path/filepath"
	"testing"

	"github.com/router-for-me/mealtracker/internal/models"
)

func TestMigrateSeedsRoles(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "migrate.db")
	conn, errOpen := Open(dsn)
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if !IsSQLite(conn) {
		t.Fatalf("expected sqlite dialect, got %q", DialectName(conn))
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	// Second run must be a no-op.
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate again: %v", errMigrate)
	}

	var roles []models.Role
	if errFind := conn.Order("id ASC").Find(&roles).Error; errFind != nil {
		t.Fatalf("list roles: %v", errFind)
	}
	if len(roles) != 4 {
		t.Fatalf("expected 4 roles, got %d", len(roles))
	}
	if roles[0].Name != "Administrator" || roles[3].ID != models.RoleIDUser {
		t.Fatalf("unexpected roles: %+v", roles)
	}
}

func TestMigrateKeepsCustomRoleNames(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "custom.db")
	conn, errOpen := Open(dsn)
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	seed := DefaultRoles()
	seed[0].Name = "Root"
	if errMigrate := Migrate(conn, seed...); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	var admin models.Role
	if errFind := conn.First(&admin, models.RoleIDAdministrator).Error; errFind != nil {
		t.Fatalf("find admin role: %v", errFind)
	}
	if admin.Name != "Root" {
		t.Fatalf("expected role name Root, got %q", admin.Name)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "unique.db")
	conn, errOpen := Open(dsn)
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	errCreate := conn.Create(&models.Role{Name: "User"}).Error
	if !IsUniqueViolation(errCreate) {
		t.Fatalf("expected unique violation, got %v", errCreate)
	}
	if IsUniqueViolation(nil) {
		t.Fatalf("expected nil error to not be a unique violation")
	}
}
